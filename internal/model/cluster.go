package model

// Cluster groups patterns whose normalized templates read alike. The
// analyzer merges near-duplicate templates so rate decisions weigh the
// cluster's combined volume instead of each variant alone.
type Cluster struct {
	Representative    string              `json:"representative"`
	Members           []string            `json:"members"`
	SampleMessage     string              `json:"sample_message,omitempty"`
	TotalCount        uint64              `json:"total_count"`
	SeverityHistogram map[Severity]uint64 `json:"severity_histogram,omitempty"`
}

// Noisy reports whether the cluster is pure DEBUG/INFO chatter: it has such
// traffic and nothing at WARNING or above. Only noisy clusters are safe to
// downsample aggressively.
func (c Cluster) Noisy() bool {
	quiet := c.SeverityHistogram[SeverityDebug] + c.SeverityHistogram[SeverityInfo]
	if quiet == 0 {
		return false
	}
	loud := c.SeverityHistogram[SeverityWarning] +
		c.SeverityHistogram[SeverityError] +
		c.SeverityHistogram[SeverityCritical]
	return loud == 0
}
