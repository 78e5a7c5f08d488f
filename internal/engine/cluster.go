package engine

import (
	"sort"
	"strings"

	"github.com/crimson-sun/winnow/internal/engine/signature"
	"github.com/crimson-sun/winnow/internal/model"
)

// Templates sharing at least this fraction of tokens merge into one cluster.
const jaccardThreshold = 0.7

// Clusterize greedily groups patterns whose normalized templates look alike.
// A pattern joins the first cluster whose representative template is close
// enough, so with volume-sorted input every representative is the cluster's
// highest-volume member. Output is sorted by total count, largest first.
func Clusterize(patterns []model.PatternStats) []model.Cluster {
	type bucket struct {
		tokens  map[string]struct{}
		cluster model.Cluster
	}

	var buckets []*bucket
	for _, p := range patterns {
		tokens := tokenSet(signature.Normalize(p.SampleMessage))

		var home *bucket
		for _, b := range buckets {
			if jaccard(tokens, b.tokens) >= jaccardThreshold {
				home = b
				break
			}
		}
		if home == nil {
			home = &bucket{
				tokens: tokens,
				cluster: model.Cluster{
					Representative:    p.Signature,
					SampleMessage:     p.SampleMessage,
					SeverityHistogram: make(map[model.Severity]uint64, len(p.SeverityHistogram)),
				},
			}
			buckets = append(buckets, home)
		}

		home.cluster.Members = append(home.cluster.Members, p.Signature)
		home.cluster.TotalCount += p.Count
		for sev, n := range p.SeverityHistogram {
			home.cluster.SeverityHistogram[sev] += n
		}
	}

	out := make([]model.Cluster, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b.cluster)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalCount != out[j].TotalCount {
			return out[i].TotalCount > out[j].TotalCount
		}
		return out[i].Representative < out[j].Representative
	})
	return out
}

func tokenSet(template string) map[string]struct{} {
	fields := strings.Fields(template)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// jaccard is intersection over union; two empty sets count as identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
