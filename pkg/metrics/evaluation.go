package metrics

import (
	"strings"

	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// ExactMatch returns 1.0 when the answers match after trimming and case
// folding, 0.0 otherwise.
func ExactMatch(expected, actual string) float64 {
	if strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(actual)) {
		return 1.0
	}
	return 0.0
}

// F1Score calculates the token-level F1 between expected and actual
// answers.
func F1Score(expected, actual string) float64 {
	expectedTokens := tokenize(expected)
	actualTokens := tokenize(actual)

	if len(expectedTokens) == 0 && len(actualTokens) == 0 {
		return 1.0
	}
	if len(expectedTokens) == 0 || len(actualTokens) == 0 {
		return 0.0
	}

	common := intersection(expectedTokens, actualTokens)
	if len(common) == 0 {
		return 0.0
	}

	precision := float64(len(common)) / float64(len(actualTokens))
	recall := float64(len(common)) / float64(len(expectedTokens))
	return 2 * precision * recall / (precision + recall)
}

// OutcomeFor maps an evaluation score to a reinforcement outcome. Scores
// at or above the threshold count as helpful.
func OutcomeFor(score, threshold float64) playbook.Outcome {
	if score >= threshold {
		return playbook.OutcomeHelpful
	}
	return playbook.OutcomeHarmful
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func intersection(a, b []string) []string {
	counts := make(map[string]int, len(a))
	for _, token := range a {
		counts[token]++
	}

	var common []string
	for _, token := range b {
		if counts[token] > 0 {
			counts[token]--
			common = append(common, token)
		}
	}
	return common
}
