package transcribe

// ReactionTimeMs derives a reaction time in milliseconds from the first
// available start timestamp, preferring word timing over segment timing.
// Returns nil when neither is present.
func ReactionTimeMs(t *Transcription) *float64 {
	if t == nil {
		return nil
	}
	var start *float64
	if len(t.Words) > 0 {
		start = &t.Words[0].Start
	} else if len(t.Segments) > 0 {
		start = &t.Segments[0].Start
	}
	if start == nil {
		return nil
	}
	ms := *start * 1000.0
	return &ms
}
