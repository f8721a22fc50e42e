package evaluation

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hrygo/verdict/plugin/ai/composite"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// RenderMarkdown formats a report as a markdown document.
func RenderMarkdown(r *Report) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Evaluation of `%s`\n\n", r.ExecutionID)
	if r.Composite == nil {
		b.WriteString("No composite result.\n")
		return []byte(b.String())
	}
	c := r.Composite

	fmt.Fprintf(&b, "**Score:** %.3f  \n**Recommendation:** %s  \n", c.Score, c.Recommendation)
	fmt.Fprintf(&b, "**Complete:** %t  \n**Single agent:** %t  \n", c.EvaluationComplete, c.SingleAgentMode)
	if r.UID != "" {
		fmt.Fprintf(&b, "**Report:** %s  \n", r.UID)
	}
	b.WriteString("\n## Metrics\n\n")
	b.WriteString("| Metric | Value | Weight | Contribution |\n|---|---:|---:|---:|\n")
	for _, m := range composite.Metrics {
		w, ok := c.Weights[m]
		if !ok {
			fmt.Fprintf(&b, "| %s | excluded | - | - |\n", m)
			continue
		}
		fmt.Fprintf(&b, "| %s | %.3f | %.3f | %.3f |\n", m, c.Values[m], w, c.Contributions[m])
	}

	b.WriteString("\n## Tiers\n\n")
	if r.Similarity != nil {
		fmt.Fprintf(&b, "- **Tier 1:** similarity %.3f, time %.3f, success %.0f (best reference %d)\n",
			r.Similarity.Similarity, r.Similarity.TimeScore, r.Similarity.TaskSuccess, r.Similarity.BestReference)
	} else {
		b.WriteString("- **Tier 1:** unavailable\n")
	}
	if r.Judge != nil {
		fmt.Fprintf(&b, "- **Tier 2:** accuracy %.3f, constructiveness %.3f, planning %.3f via %s/%s (confidence %.2f, $%.4f)\n",
			r.Judge.TechnicalAccuracy, r.Judge.Constructiveness, r.Judge.PlanningRationality,
			r.Judge.Provider, r.Judge.Model, r.Judge.Confidence, r.Judge.EstimatedCost)
	} else {
		b.WriteString("- **Tier 2:** unavailable\n")
	}
	if r.Graph != nil {
		fmt.Fprintf(&b, "- **Tier 3:** tool accuracy %.3f, convergence %.3f, centrality %.3f, balance %.3f, overhead %.3f\n",
			r.Graph.ToolSelectionAccuracy, r.Graph.PathConvergence, r.Graph.CoordinationCentrality,
			r.Graph.TaskDistributionBalance, r.Graph.CommunicationOverhead)
	} else {
		b.WriteString("- **Tier 3:** unavailable\n")
	}
	return []byte(b.String())
}

// RenderHTML renders the markdown report as an HTML fragment.
func RenderHTML(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := markdown.Convert(RenderMarkdown(r), &buf); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}
