package judge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// MaxCriterionScore is the top of every rubric scale.
const MaxCriterionScore = 5.0

type metric string

const (
	metricAccuracy         metric = "technical_accuracy"
	metricConstructiveness metric = "constructiveness"
	metricPlanning         metric = "planning_rationality"
)

type criterion struct {
	key    string
	weight float64
}

// rubric describes one assessment. The score is sum(weight*criterion)/divisor.
type rubric struct {
	metric   metric
	system   string
	criteria []criterion
	divisor  float64
}

var (
	accuracyRubric = rubric{
		metric: metricAccuracy,
		system: accuracySystemPrompt,
		criteria: []criterion{
			{key: "factual_correctness", weight: 0.5},
			{key: "methodology_understanding", weight: 0.3},
			{key: "domain_knowledge", weight: 0.2},
		},
		divisor: MaxCriterionScore,
	}

	constructivenessRubric = rubric{
		metric: metricConstructiveness,
		system: constructivenessSystemPrompt,
		criteria: []criterion{
			{key: "actionable_feedback", weight: 1},
			{key: "balanced_critique", weight: 1},
			{key: "improvement_guidance", weight: 1},
		},
		divisor: 3 * MaxCriterionScore,
	}

	planningRubric = rubric{
		metric: metricPlanning,
		system: planningSystemPrompt,
		criteria: []criterion{
			{key: "logical_flow", weight: 0.3},
			{key: "decision_quality", weight: 0.5},
			{key: "resource_efficiency", weight: 0.2},
		},
		divisor: MaxCriterionScore,
	}
)

const accuracySystemPrompt = `You are a strict reviewer grading the technical accuracy of an answer against a reference.
Score each criterion from 0 to 5:
- factual_correctness: are the claims correct with respect to the reference?
- methodology_understanding: does the answer apply the right methods?
- domain_knowledge: does it show command of the domain?
Respond with JSON only: {"factual_correctness": n, "methodology_understanding": n, "domain_knowledge": n}`

const constructivenessSystemPrompt = `You are a reviewer grading how constructive a piece of feedback is.
Score each criterion from 0 to 5:
- actionable_feedback: can the recipient act on it directly?
- balanced_critique: does it weigh strengths against weaknesses?
- improvement_guidance: does it point to concrete next steps?
Respond with JSON only: {"actionable_feedback": n, "balanced_critique": n, "improvement_guidance": n}`

const planningSystemPrompt = `You are a reviewer grading how rationally a team of agents planned and executed a task.
You get a summary of the execution and the final answer.
Score each criterion from 0 to 5:
- logical_flow: did the steps follow a sensible order?
- decision_quality: were delegation and tool choices sound?
- resource_efficiency: was work done without waste?
Respond with JSON only: {"logical_flow": n, "decision_quality": n, "resource_efficiency": n}`

var codeFence = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// parseScores extracts criterion scores from a provider answer and combines them.
// Each criterion is clamped to [0, MaxCriterionScore].
func (r rubric) parseScores(content string) (float64, map[string]float64, error) {
	content = strings.TrimSpace(content)

	// Handle markdown code blocks
	if strings.Contains(content, "```") {
		if matches := codeFence.FindStringSubmatch(content); len(matches) > 1 {
			content = matches[1]
		}
	}

	var raw map[string]any
	decoder := json.NewDecoder(strings.NewReader(content))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return 0, nil, fmt.Errorf("JSON unmarshal failed: %w", err)
	}

	scores := make(map[string]float64, len(r.criteria))
	var total float64
	for _, c := range r.criteria {
		value, ok := raw[c.key]
		if !ok {
			return 0, nil, fmt.Errorf("missing criterion %q", c.key)
		}
		n, ok := value.(json.Number)
		if !ok {
			return 0, nil, fmt.Errorf("criterion %q is not a number", c.key)
		}
		v, err := n.Float64()
		if err != nil {
			return 0, nil, fmt.Errorf("criterion %q: %w", c.key, err)
		}
		v = min(max(v, 0), MaxCriterionScore)
		scores[c.key] = v
		total += c.weight * v
	}
	return clamp01(total / r.divisor), scores, nil
}
