// Package transcribe wraps the speech-to-text service and derives reaction
// times from its word/segment timestamps.
package transcribe

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Word is one transcribed word with its start time in seconds.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is one transcribed segment with its start time in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcription is the service result as the scoring core sees it.
type Transcription struct {
	Text     string    `json:"text"`
	Words    []Word    `json:"words,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// Client wraps an OpenAI-compatible transcription API.
type Client struct {
	api      *openai.Client
	model    string
	language string
}

// New creates a transcription client. An empty baseURL uses the service
// default; language is an optional hint passed through to the model.
func New(baseURL, apiKey, modelName, language string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:      openai.NewClientWithConfig(config),
		model:    modelName,
		language: language,
	}
}

// Transcribe sends the audio file for transcription with word-level
// timestamps.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: audioPath,
		Language: c.language,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("transcription API call: %w", err)
	}

	t := &Transcription{Text: resp.Text}
	for _, w := range resp.Words {
		t.Words = append(t.Words, Word{Word: w.Word, Start: w.Start, End: w.End})
	}
	for _, s := range resp.Segments {
		t.Segments = append(t.Segments, Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return t, nil
}
