package server

import (
	"testing"
	"time"

	"github.com/crimson-sun/winnow/internal/model"
)

func fixedClock(at *time.Time) func() time.Time {
	return func() time.Time { return *at }
}

func pattern(sig string, count uint64, sev model.Severity) model.PatternStats {
	return model.PatternStats{
		Signature:         sig,
		SampleMessage:     "sample for " + sig,
		Count:             count,
		SeverityHistogram: map[model.Severity]uint64{sev: count},
		FirstSeen:         time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		LastSeen:          time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC),
	}
}

func report(service string, patterns ...model.PatternStats) model.StatsReport {
	return model.StatsReport{ServiceName: service, Patterns: patterns}
}

func TestIngestCreatesService(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	store := NewStore(WithStoreClock(fixedClock(&at)))

	accepted, tracked := store.Ingest(report("checkout",
		pattern("aaa", 10, model.SeverityInfo),
		pattern("bbb", 3, model.SeverityError),
	))
	if accepted != 2 {
		t.Fatalf("expected 2 accepted patterns, got %d", accepted)
	}
	if tracked != 2 {
		t.Fatalf("expected 2 tracked patterns, got %d", tracked)
	}

	infos := store.Services()
	if len(infos) != 1 {
		t.Fatalf("expected 1 service, got %d", len(infos))
	}
	info := infos[0]
	if info.Name != "checkout" {
		t.Errorf("expected service checkout, got %q", info.Name)
	}
	if info.Patterns != 2 {
		t.Errorf("expected 2 patterns, got %d", info.Patterns)
	}
	if !info.LastReport.Equal(at) {
		t.Errorf("expected last report %v, got %v", at, info.LastReport)
	}
	if info.PolicyVersion != 0 {
		t.Errorf("expected policy version 0, got %d", info.PolicyVersion)
	}
}

func TestIngestMergesAcrossReports(t *testing.T) {
	store := NewStore()

	store.Ingest(report("checkout", pattern("aaa", 10, model.SeverityInfo)))
	_, tracked := store.Ingest(report("checkout", pattern("aaa", 20, model.SeverityInfo)))
	if tracked != 1 {
		t.Fatalf("expected the same signature to merge into 1 pattern, got %d", tracked)
	}

	current, _, _, ok := store.Rotate("checkout")
	if !ok {
		t.Fatal("expected rotation to succeed")
	}
	if len(current.Stats) != 1 {
		t.Fatalf("expected 1 pattern in window, got %d", len(current.Stats))
	}
	if current.Stats[0].Count != 30 {
		t.Errorf("expected merged count 30, got %d", current.Stats[0].Count)
	}
}

func TestPolicyUnknownService(t *testing.T) {
	store := NewStore()

	if _, known := store.Policy("ghost"); known {
		t.Fatal("expected unknown service to report known=false")
	}
}

func TestPolicyDefaultForUnanalyzedService(t *testing.T) {
	store := NewStore()
	store.Ingest(report("checkout", pattern("aaa", 5, model.SeverityInfo)))

	pol, known := store.Policy("checkout")
	if !known {
		t.Fatal("expected reported service to be known")
	}
	if pol.Version != 0 {
		t.Errorf("expected default policy version 0, got %d", pol.Version)
	}
	if pol.GeneratedBy != "default" {
		t.Errorf("expected generated_by default, got %q", pol.GeneratedBy)
	}
	if pol.SeverityRates[model.SeverityError] != 1.0 {
		t.Errorf("expected ERROR rate 1.0, got %v", pol.SeverityRates[model.SeverityError])
	}
}

func TestPolicyAfterSet(t *testing.T) {
	store := NewStore()
	store.Ingest(report("checkout", pattern("aaa", 5, model.SeverityInfo)))

	pol := model.DefaultPolicy()
	pol.Version = 7
	store.SetPolicy("checkout", pol)

	got, known := store.Policy("checkout")
	if !known {
		t.Fatal("expected service to be known")
	}
	if got.Version != 7 {
		t.Errorf("expected policy version 7, got %d", got.Version)
	}
}

func TestSetPolicyCreatesService(t *testing.T) {
	store := NewStore()
	store.SetPolicy("payments", model.DefaultPolicy())

	if _, known := store.Policy("payments"); !known {
		t.Fatal("expected service created by SetPolicy to be known")
	}
}

func TestRotateReturnsWindowAndResets(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	store := NewStore(WithStoreClock(fixedClock(&at)))

	store.Ingest(report("checkout",
		pattern("aaa", 10, model.SeverityInfo),
		pattern("bbb", 3, model.SeverityError),
	))

	at = at.Add(time.Minute)
	current, history, previous, ok := store.Rotate("checkout")
	if !ok {
		t.Fatal("expected rotation to succeed")
	}
	if len(current.Stats) != 2 {
		t.Fatalf("expected 2 patterns in window, got %d", len(current.Stats))
	}
	if !current.Start.Equal(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("expected window start at ingest time, got %v", current.Start)
	}
	if !current.End.Equal(at) {
		t.Errorf("expected window end %v, got %v", at, current.End)
	}
	if len(history) != 0 {
		t.Errorf("expected empty history on first rotation, got %d windows", len(history))
	}
	if previous != nil {
		t.Errorf("expected no previous policy, got version %d", previous.Version)
	}

	// The window rotated: nothing left to analyze.
	if active := store.ActiveServices(); len(active) != 0 {
		t.Errorf("expected no active services after rotation, got %v", active)
	}
	if _, _, _, ok := store.Rotate("checkout"); ok {
		t.Error("expected rotation of an empty window to be skipped")
	}
}

func TestRotateUnknownService(t *testing.T) {
	store := NewStore()

	if _, _, _, ok := store.Rotate("ghost"); ok {
		t.Fatal("expected rotation of an unknown service to be skipped")
	}
}

func TestRotateHistoryAccumulates(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	store := NewStore(WithStoreClock(fixedClock(&at)))

	for i := 0; i < 2; i++ {
		store.Ingest(report("checkout", pattern("aaa", 10, model.SeverityInfo)))
		at = at.Add(time.Minute)
		if _, _, _, ok := store.Rotate("checkout"); !ok {
			t.Fatalf("expected rotation %d to succeed", i+1)
		}
	}

	store.Ingest(report("checkout", pattern("aaa", 10, model.SeverityInfo)))
	at = at.Add(time.Minute)
	_, history, _, ok := store.Rotate("checkout")
	if !ok {
		t.Fatal("expected third rotation to succeed")
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 windows of history, got %d", len(history))
	}
	if !history[0].End.Before(history[1].End) {
		t.Error("expected history ordered oldest first")
	}
}

func TestRotateHistoryCapped(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	store := NewStore(WithStoreClock(fixedClock(&at)), WithHistorySize(2))

	for i := 0; i < 5; i++ {
		store.Ingest(report("checkout", pattern("aaa", 10, model.SeverityInfo)))
		at = at.Add(time.Minute)
		if _, _, _, ok := store.Rotate("checkout"); !ok {
			t.Fatalf("expected rotation %d to succeed", i+1)
		}
	}

	store.Ingest(report("checkout", pattern("aaa", 10, model.SeverityInfo)))
	at = at.Add(time.Minute)
	_, history, _, ok := store.Rotate("checkout")
	if !ok {
		t.Fatal("expected final rotation to succeed")
	}
	if len(history) != 2 {
		t.Fatalf("expected history capped at 2 windows, got %d", len(history))
	}
	// Rotations ran at 9:01 through 9:05; only the two newest remain.
	wantEnd := time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC)
	if !history[1].End.Equal(wantEnd) {
		t.Errorf("expected newest history window to end at %v, got %v", wantEnd, history[1].End)
	}
}

func TestRotateReturnsPreviousPolicy(t *testing.T) {
	store := NewStore()
	store.Ingest(report("checkout", pattern("aaa", 10, model.SeverityInfo)))

	pol := model.DefaultPolicy()
	pol.Version = 4
	store.SetPolicy("checkout", pol)

	_, _, previous, ok := store.Rotate("checkout")
	if !ok {
		t.Fatal("expected rotation to succeed")
	}
	if previous == nil {
		t.Fatal("expected previous policy")
	}
	if previous.Version != 4 {
		t.Errorf("expected previous version 4, got %d", previous.Version)
	}
}

func TestServicesSortedByName(t *testing.T) {
	store := NewStore()
	store.Ingest(report("zeta", pattern("aaa", 1, model.SeverityInfo)))
	store.Ingest(report("alpha", pattern("bbb", 1, model.SeverityInfo)))

	infos := store.Services()
	if len(infos) != 2 {
		t.Fatalf("expected 2 services, got %d", len(infos))
	}
	if infos[0].Name != "alpha" || infos[1].Name != "zeta" {
		t.Errorf("expected alphabetical order, got %q then %q", infos[0].Name, infos[1].Name)
	}
}

func TestActiveServicesSkipsEmptyWindows(t *testing.T) {
	store := NewStore()
	store.Ingest(report("checkout", pattern("aaa", 1, model.SeverityInfo)))
	store.Ingest(report("payments", pattern("bbb", 1, model.SeverityInfo)))

	if _, _, _, ok := store.Rotate("payments"); !ok {
		t.Fatal("expected rotation to succeed")
	}

	active := store.ActiveServices()
	if len(active) != 1 || active[0] != "checkout" {
		t.Errorf("expected only checkout active, got %v", active)
	}
}
