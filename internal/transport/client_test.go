package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crimson-sun/winnow/internal/model"
)

func TestGetJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":1}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	var dest struct {
		Status  string `json:"status"`
		Version int    `json:"version"`
	}
	err := c.GetJSON(context.Background(), "/health", nil, &dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dest.Status != "ok" || dest.Version != 1 {
		t.Fatalf("unexpected result: %+v", dest)
	}
}

func TestGetJSON_BearerAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-token-123")
	err := c.GetJSON(context.Background(), "/", nil, &struct{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer secret-token-123" {
		t.Fatalf("expected 'Bearer secret-token-123', got %q", gotAuth)
	}
}

func TestGetJSON_QueryParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	q := make(map[string][]string)
	q["from"] = []string{"100"}
	q["to"] = []string{"200"}
	err := c.GetJSON(context.Background(), "/services", q, &struct{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// url.Values.Encode sorts keys alphabetically
	if gotQuery != "from=100&to=200" {
		t.Fatalf("unexpected query: %q", gotQuery)
	}
}

func TestGetJSON_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	err := c.GetJSON(context.Background(), "/bad", nil, &struct{}{})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 400 {
		t.Fatalf("expected status 400, got %d", apiErr.StatusCode)
	}
	if apiErr.Body != `{"error":"bad request"}` {
		t.Fatalf("unexpected body: %q", apiErr.Body)
	}
}

func TestPostJSON_SendsBody(t *testing.T) {
	var gotMethod, gotContentType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(202)
		w.Write([]byte(`{"status":"accepted"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	in := map[string]any{"service_name": "checkout", "count": 3.0}
	var dest struct {
		Status string `json:"status"`
	}
	err := c.PostJSON(context.Background(), "/patterns/stats", in, &dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("expected POST, got %s", gotMethod)
	}
	if gotContentType != "application/json" {
		t.Fatalf("expected application/json, got %q", gotContentType)
	}
	if gotBody["service_name"] != "checkout" || gotBody["count"] != 3.0 {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
	if dest.Status != "accepted" {
		t.Fatalf("expected accepted, got %q", dest.Status)
	}
}

func TestPostJSON_ReplaysBodyOnRetry(t *testing.T) {
	var calls atomic.Int32
	bodies := make([]string, 0, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if calls.Add(1) == 1 {
			w.WriteHeader(503)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	err := c.PostJSON(context.Background(), "/patterns/stats", map[string]string{"k": "v"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
	if len(bodies) != 2 || bodies[0] != bodies[1] || bodies[0] != `{"k":"v"}` {
		t.Fatalf("expected identical replayed bodies, got %q", bodies)
	}
}

func TestGetJSON_RateLimit_RetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(429)
			w.Write([]byte(`rate limited`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	var dest struct {
		OK bool `json:"ok"`
	}
	start := time.Now()
	err := c.GetJSON(context.Background(), "/", nil, &dest)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dest.OK {
		t.Fatal("expected ok=true")
	}
	if elapsed < 900*time.Millisecond {
		t.Fatalf("expected ~1s retry delay, got %v", elapsed)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestGetJSON_RetryOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(503)
			w.Write([]byte(`service unavailable`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	var dest struct {
		OK bool `json:"ok"`
	}
	err := c.GetJSON(context.Background(), "/", nil, &dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dest.OK {
		t.Fatal("expected ok=true")
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

type flakyTransport struct {
	calls atomic.Int32
	base  http.RoundTripper
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if f.calls.Add(1) == 1 {
		return nil, errors.New("connection reset by peer")
	}
	return f.base.RoundTrip(req)
}

func TestGetJSON_RetryOnNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	ft := &flakyTransport{base: http.DefaultTransport}
	c.httpClient.Transport = ft

	var dest struct {
		OK bool `json:"ok"`
	}
	err := c.GetJSON(context.Background(), "/", nil, &dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dest.OK {
		t.Fatal("expected ok=true")
	}
	if ft.calls.Load() != 2 {
		t.Fatalf("expected 2 round trips, got %d", ft.calls.Load())
	}
}

func TestGetJSON_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(429)
		w.Write([]byte(`rate limited`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	// Cancel immediately so the retry sleep is interrupted.
	cancel()

	c := New(srv.URL, "tok")
	err := c.GetJSON(ctx, "/", nil, &struct{}{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGetJSON_MaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(429)
		w.Write([]byte(`rate limited`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	err := c.GetJSON(context.Background(), "/", nil, &struct{}{})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 429 {
		t.Fatalf("expected status 429, got %d", apiErr.StatusCode)
	}
	// 1 initial + 3 retries = 4 total calls
	if calls.Load() != 4 {
		t.Fatalf("expected 4 calls, got %d", calls.Load())
	}
}

func TestFetchPolicy(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"version": 5,
			"global_rate": 0.4,
			"severity_rates": {"DEBUG": 0.05, "INFO": 0.2, "ERROR": 0.5},
			"pattern_rates": {"abc123": 0.01},
			"anomaly_boost": 0.5,
			"some_future_field": true
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	pol, err := c.FetchPolicy(context.Background(), "checkout")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/policies/checkout" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if pol.Version != 5 {
		t.Fatalf("expected version 5, got %d", pol.Version)
	}
	if pol.GlobalRate != 0.4 {
		t.Fatalf("expected global rate 0.4, got %v", pol.GlobalRate)
	}
	// Wire content is clamped on arrival: ERROR pinned back to 1.0,
	// AnomalyBoost floored at 1.0.
	if got := pol.SeverityRates[model.SeverityError]; got != 1.0 {
		t.Fatalf("expected ERROR rate clamped to 1.0, got %v", got)
	}
	if pol.AnomalyBoost != 1.0 {
		t.Fatalf("expected boost floored at 1.0, got %v", pol.AnomalyBoost)
	}
	if got, ok := pol.PatternRate("abc123"); !ok || got != 0.01 {
		t.Fatalf("expected pattern rate 0.01, got %v (ok=%v)", got, ok)
	}
}

func TestFetchPolicy_NoPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		w.Write([]byte(`{"error":"unknown service"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	pol, err := c.FetchPolicy(context.Background(), "ghost")
	if !errors.Is(err, ErrNoPolicy) {
		t.Fatalf("expected ErrNoPolicy, got %v", err)
	}
	if pol != nil {
		t.Fatalf("expected nil policy, got %+v", pol)
	}
}

func TestReportStats(t *testing.T) {
	var gotPath string
	var gotReport model.StatsReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReport)
		w.WriteHeader(202)
		w.Write([]byte(`{"status":"accepted","patterns":2}`))
	}))
	defer srv.Close()

	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	report := model.StatsReport{
		ServiceName: "checkout",
		Patterns: []model.PatternStats{
			{
				Signature:         "aaa111",
				SampleMessage:     "user <n> logged in",
				Count:             40,
				SeverityHistogram: map[model.Severity]uint64{model.SeverityInfo: 40},
				FirstSeen:         t0,
				LastSeen:          t0.Add(time.Minute),
			},
			{
				Signature: "bbb222",
				Count:     3,
				SeverityHistogram: map[model.Severity]uint64{
					model.SeverityError: 3,
				},
			},
		},
	}

	c := New(srv.URL, "tok")
	if err := c.ReportStats(context.Background(), report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/patterns/stats" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotReport.ServiceName != "checkout" {
		t.Fatalf("expected service checkout, got %q", gotReport.ServiceName)
	}
	if len(gotReport.Patterns) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(gotReport.Patterns))
	}
	if gotReport.Patterns[0].Count != 40 {
		t.Fatalf("expected count 40, got %d", gotReport.Patterns[0].Count)
	}
	if gotReport.Patterns[1].SeverityHistogram[model.SeverityError] != 3 {
		t.Fatalf("expected 3 errors, got %+v", gotReport.Patterns[1].SeverityHistogram)
	}
}

func TestReportStats_WrapsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		w.Write([]byte(`{"error":"malformed report"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	err := c.ReportStats(context.Background(), model.StatsReport{ServiceName: "checkout"})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError in chain, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 400 {
		t.Fatalf("expected status 400, got %d", apiErr.StatusCode)
	}
}
