package policy

import (
	"fmt"
	"strings"

	"github.com/crimson-sun/winnow/internal/model"
)

const (
	defaultTokenBudget = 2000
	maxPromptPatterns  = 10
	maxPromptAnomalies = 5
	sampleClip         = 80
)

const promptSchema = `Respond with a JSON sampling policy of this shape:
{
  "global_rate": 0.0-1.0,
  "severity_rates": {"DEBUG": 0.0-1.0, "INFO": 0.0-1.0, "WARNING": 0.0-1.0, "ERROR": 1.0, "CRITICAL": 1.0},
  "pattern_rates": {"<signature>": 0.0-1.0},
  "anomaly_boost": 1.0-10.0,
  "reasoning": "explain the policy decisions"
}
ERROR and CRITICAL must always be 1.0.`

// buildPrompt renders the analysis for a chat model, spending at most budget
// estimated tokens. The header, severity distribution, and response schema
// always ship; anomaly lines, then pattern lines, fill whatever budget
// remains. A budget below the fixed sections only suppresses the lists.
func buildPrompt(a Analysis, budget int) string {
	if budget <= 0 {
		budget = defaultTokenBudget
	}

	header := fmt.Sprintf(`Analyze these log patterns and propose a sampling policy.

Service: %s
Total logs analyzed: %d
Unique patterns: %d
Clusters found: %d
Anomalies detected: %d
Error rate: %.1f%%

Severity distribution:
%s`,
		a.Service, a.TotalCount(), len(a.Patterns), len(a.Clusters),
		len(a.Anomalies), a.ErrorRate()*100, severityDistribution(a))

	// Count the skeleton as if both lists were empty; added lines can only
	// replace the "none" placeholders, so the estimate stays an upper bound.
	skeleton := header + "\n\nAnomalies:\nnone\n\nTop patterns by frequency:\nnone\n\n" + promptSchema
	spent := EstimateTokens(skeleton)

	var anomalies []string
	for i, ev := range a.Anomalies {
		if i == maxPromptAnomalies {
			break
		}
		line := fmt.Sprintf("- [%s] %s: %s", strings.ToUpper(string(ev.Severity)), ev.Kind, ev.Detail)
		cost := EstimateTokens(line)
		if spent+cost > budget {
			break
		}
		spent += cost
		anomalies = append(anomalies, line)
	}

	var patterns []string
	for i, p := range a.Patterns {
		if i == maxPromptPatterns {
			break
		}
		line := fmt.Sprintf("- pattern %d: %q (count %d, signature %s)",
			i+1, clip(p.SampleMessage, sampleClip), p.Count, clip(p.Signature, 8))
		cost := EstimateTokens(line)
		if spent+cost > budget {
			break
		}
		spent += cost
		patterns = append(patterns, line)
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\nAnomalies:\n")
	writeLines(&b, anomalies)
	b.WriteString("\nTop patterns by frequency:\n")
	writeLines(&b, patterns)
	b.WriteString("\n")
	b.WriteString(promptSchema)
	return b.String()
}

func writeLines(b *strings.Builder, lines []string) {
	if len(lines) == 0 {
		b.WriteString("none\n")
		return
	}
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func severityDistribution(a Analysis) string {
	totals := make(map[model.Severity]uint64)
	for _, p := range a.Patterns {
		for sev, n := range p.SeverityHistogram {
			totals[sev] += n
		}
	}
	if len(totals) == 0 {
		return "  no data"
	}
	var b strings.Builder
	for sev := model.SeverityDebug; sev <= model.SeverityCritical; sev++ {
		if n := totals[sev]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", sev, n)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
