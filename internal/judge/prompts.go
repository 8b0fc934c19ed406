package judge

import (
	"fmt"
	"strings"

	"github.com/hsinlab/cogscreen/internal/model"
)

// Variant selects how demanding the judge prompt is.
type Variant string

const (
	// VariantStrict accepts only answers clearly matching an expected one.
	VariantStrict Variant = "strict"
	// VariantStandard allows common transcription slips and rephrasings.
	VariantStandard Variant = "standard"
	// VariantLenient credits any answer showing the intended knowledge.
	VariantLenient Variant = "lenient"
)

var validVariants = map[Variant]bool{
	VariantStrict:   true,
	VariantStandard: true,
	VariantLenient:  true,
}

// IsValidVariant checks if a variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[Variant(v)]
}

// BuildSystemPrompt builds the judge's system prompt for a variant.
func BuildSystemPrompt(variant Variant) string {
	var sb strings.Builder
	sb.WriteString("You are an evaluator for a cognitive Q&A screening prototype. ")
	sb.WriteString("Given the spoken transcript and expected answers, decide correctness.\n\n")

	switch variant {
	case VariantLenient:
		sb.WriteString("Be lenient: mark the answer correct if it plausibly conveys any expected answer, ")
		sb.WriteString("tolerating speech-recognition errors, homophones and colloquial phrasing.\n")
	case VariantStandard:
		sb.WriteString("Accept answers that clearly convey an expected answer, ")
		sb.WriteString("tolerating minor transcription slips and rephrasings.\n")
	default:
		sb.WriteString("Be strict: mark the answer correct only if it clearly matches one of the expected answers.\n")
	}

	sb.WriteString("\nRespond ONLY with a JSON object with these fields:\n")
	sb.WriteString(`{"normalized_answer": "<cleaned transcript>", "is_correct": <true/false>, "confidence": <0 to 1>, "reason": "<brief reason>", "matched_expected": ["<expected strings that matched>"]}`)
	sb.WriteString("\n")

	return sb.String()
}

// BuildUserPrompt builds the per-question judge input.
func BuildUserPrompt(transcript string, expected []string, ruleType model.RuleType) string {
	return fmt.Sprintf(
		"Transcript: %s\nExpected answers: [%s]\nRule type: %s",
		transcript, strings.Join(expected, ", "), ruleType,
	)
}
