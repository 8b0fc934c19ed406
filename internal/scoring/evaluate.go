package scoring

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/hsinlab/cogscreen/internal/model"
)

// DefaultFuzzyThreshold is the similarity cutoff used when a fuzzy rule does
// not declare one.
const DefaultFuzzyThreshold = 0.85

var numberRegex = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)

// Evaluate applies the rule-type-specific algorithm to a transcript and an
// already-expanded rule. It never fails: malformed input and unsupported rule
// types produce a negative result, not an error.
func Evaluate(transcript string, rule model.ScoringRule) model.MatchResult {
	switch rule.Type {
	case model.RuleExact:
		return ScoreExact(transcript, rule.Expected)
	case model.RuleContainsAny:
		return ScoreContainsAny(transcript, rule.Expected)
	case model.RuleContainsAll:
		return ScoreContainsAll(transcript, rule.Expected)
	case model.RuleFuzzy:
		threshold := DefaultFuzzyThreshold
		if rule.Threshold != nil {
			threshold = *rule.Threshold
		}
		return ScoreFuzzy(transcript, rule.Expected, threshold)
	case model.RuleNumericRange:
		return ScoreNumericRange(transcript, rule.MinValue, rule.MaxValue)
	case model.RuleSequenceSubtract:
		var start, step float64
		if rule.Start != nil {
			start = *rule.Start
		}
		if rule.Step != nil {
			step = *rule.Step
		}
		minCorrect := rule.MinCorrect
		if minCorrect <= 0 {
			minCorrect = rule.Count
		}
		return ScoreSequenceSubtract(transcript, start, step, rule.Count, minCorrect)
	default:
		return model.MatchResult{
			Type:      "unknown",
			IsCorrect: false,
			Reason:    "unsupported scoring rule",
		}
	}
}

// ScoreExact matches when the normalized transcript equals the normalized
// form of at least one expected literal.
func ScoreExact(answer string, expected []string) model.MatchResult {
	norm := Normalize(answer)
	var matched []string
	for _, exp := range expected {
		if Normalize(exp) == norm {
			matched = append(matched, exp)
		}
	}
	return model.MatchResult{
		Type:      string(model.RuleExact),
		IsCorrect: len(matched) > 0,
		Matched:   matched,
	}
}

// ScoreContainsAny matches when the normalized transcript contains at least
// one normalized expected literal as a substring.
func ScoreContainsAny(answer string, expected []string) model.MatchResult {
	norm := Normalize(answer)
	var matched []string
	for _, exp := range expected {
		if strings.Contains(norm, Normalize(exp)) {
			matched = append(matched, exp)
		}
	}
	return model.MatchResult{
		Type:      string(model.RuleContainsAny),
		IsCorrect: len(matched) > 0,
		Matched:   matched,
	}
}

// ScoreContainsAll matches when every expected literal is found as a
// normalized substring. An empty expected list is never correct: "no
// requirement" is not "requirement satisfied".
func ScoreContainsAll(answer string, expected []string) model.MatchResult {
	norm := Normalize(answer)
	var matched, missing []string
	for _, exp := range expected {
		if strings.Contains(norm, Normalize(exp)) {
			matched = append(matched, exp)
		} else {
			missing = append(missing, exp)
		}
	}
	return model.MatchResult{
		Type:      string(model.RuleContainsAll),
		IsCorrect: len(expected) > 0 && len(missing) == 0,
		Matched:   matched,
		Missing:   missing,
	}
}

// ScoreFuzzy computes an edit-distance similarity ratio against each expected
// literal and matches when the best ratio reaches the threshold. The best
// literal and its score are reported even below threshold.
func ScoreFuzzy(answer string, expected []string, threshold float64) model.MatchResult {
	norm := Normalize(answer)
	var best string
	bestScore := 0.0
	for _, exp := range expected {
		if score := similarity(norm, Normalize(exp)); score > bestScore {
			best = exp
			bestScore = score
		}
	}
	var matched []string
	if best != "" {
		matched = []string{best}
	}
	return model.MatchResult{
		Type:      string(model.RuleFuzzy),
		IsCorrect: bestScore >= threshold,
		Matched:   matched,
		Score:     &bestScore,
		Threshold: &threshold,
	}
}

// ScoreNumericRange parses the whole trimmed transcript as one float and
// checks it against whichever bounds are supplied (inclusive; a nil bound is
// unconstrained). A non-numeric answer is incorrect with a nil value, not an
// error.
func ScoreNumericRange(answer string, minValue, maxValue *float64) model.MatchResult {
	result := model.MatchResult{
		Type:  string(model.RuleNumericRange),
		Range: []*float64{minValue, maxValue},
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(answer), 64)
	if err != nil {
		return result
	}
	result.Value = &value
	inRange := true
	if minValue != nil && value < *minValue {
		inRange = false
	}
	if maxValue != nil && value > *maxValue {
		inRange = false
	}
	result.IsCorrect = inRange
	return result
}

// ScoreSequenceSubtract extracts every maximal numeric substring from the
// transcript in order and compares the first count of them positionally
// against the progression start + step*i. Correct when the number of
// positional matches reaches minCorrect.
func ScoreSequenceSubtract(answer string, start, step float64, count, minCorrect int) model.MatchResult {
	observed := extractNumbers(answer)

	expected := make([]float64, 0, count)
	for i := 0; i < count; i++ {
		expected = append(expected, start+step*float64(i))
	}

	correct := 0
	for i, want := range expected {
		if i < len(observed) && observed[i] == want {
			correct++
		}
	}

	return model.MatchResult{
		Type:             string(model.RuleSequenceSubtract),
		IsCorrect:        count > 0 && correct >= minCorrect,
		Observed:         observed,
		ExpectedSequence: expected,
		CorrectCount:     &correct,
		RequiredCorrect:  &minCorrect,
	}
}

func extractNumbers(s string) []float64 {
	var numbers []float64
	for _, match := range numberRegex.FindAllString(s, -1) {
		if v, err := strconv.ParseFloat(match, 64); err == nil {
			numbers = append(numbers, v)
		}
	}
	return numbers
}

// similarity is a symmetric edit-distance ratio in [0,1], 1.0 for identical
// strings.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}
