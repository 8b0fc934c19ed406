package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hsinlab/cogscreen/internal/model"
)

// submission wraps the report document the way the sink expects it.
type submission struct {
	Info *model.Report `json:"info"`
}

var submitClient = &http.Client{Timeout: 30 * time.Second}

// Submit posts the report to the sink. A failed submission is surfaced to the
// caller, never retried.
func Submit(ctx context.Context, apiURL string, report *model.Report) error {
	body, err := json.Marshal(submission{Info: report})
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := submitClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("submit report: sink returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}
