package interpreter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPInterpreter forwards dream text to an analysis HTTP endpoint that
// returns the structured interpretation as JSON.
type HTTPInterpreter struct {
	url    string
	client *http.Client
}

func NewHTTPInterpreter(url string, timeout time.Duration) *HTTPInterpreter {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &HTTPInterpreter{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (a *HTTPInterpreter) Analyze(ctx context.Context, req Request) (Interpretation, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Interpretation{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return Interpretation{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := a.client.Do(httpReq)
	if err != nil {
		return Interpretation{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Interpretation{}, fmt.Errorf("interpreter http status %d: %s", res.StatusCode, string(body))
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return Interpretation{}, fmt.Errorf("read response: %w", err)
	}

	var out Interpretation
	if err := json.Unmarshal(body, &out); err != nil {
		// Some analysis endpoints return a bare text summary.
		text := strings.TrimSpace(string(body))
		if text == "" {
			return Interpretation{}, fmt.Errorf("interpreter returned empty body")
		}
		return Interpretation{Summary: text}, nil
	}
	return out, nil
}
