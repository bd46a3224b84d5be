package transcriber

import (
	"context"
	"encoding/json"
	"fmt"

	"scribe/nettrace"
)

type OpenAI struct {
	baseTranscriber
}

func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{baseTranscriber: newBase("https://api.openai.com/v1/audio/transcriptions", apiKey)}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, filename string) (*Result, error) {
	resp, err := o.post(ctx, audio, filename, map[string]string{
		"model":           "gpt-4o-transcribe",
		"response_format": "json",
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("openai API error %d: %s", resp.StatusCode, string(resp.Body))
	}

	var oResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &oResp); err != nil {
		return nil, fmt.Errorf("openai response parse error: %w", err)
	}

	remaining := nettrace.FirstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := nettrace.FirstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:      oResp.Text,
		Metrics:   resp.Metrics,
		RateLimit: remaining + "/" + limit,
	}, nil
}
