// Package transcriber turns stored recordings into text using a
// whisper-compatible HTTP API.
package transcriber

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"scribe/nettrace"
)

var ErrNoProvider = errors.New("no transcription provider configured")

type Segment struct {
	Text         string
	NoSpeechProb float64
	AvgLogProb   float64
	Start        float64
	End          float64
}

type Result struct {
	Text         string
	Metrics      *nettrace.NetworkMetrics
	RateLimit    string
	NoSpeechProb float64
	AvgLogProb   float64
	Duration     float64
	Segments     []Segment
}

type Transcriber interface {
	Name() string
	SetLanguage(lang string)
	GetLanguage() string
	// Transcribe sends one audio file. filename carries the extension the
	// provider uses to detect the format.
	Transcribe(ctx context.Context, audio []byte, filename string) (*Result, error)
}

type baseTranscriber struct {
	client *nettrace.Client
	apiURL string
	apiKey string
	lang   string
}

func (b *baseTranscriber) SetLanguage(lang string) { b.lang = lang }

func (b *baseTranscriber) GetLanguage() string { return b.lang }

// post uploads audio as the "file" field together with fields and returns
// the raw response.
func (b *baseTranscriber) post(ctx context.Context, audio []byte, filename string, fields map[string]string) (*nettrace.Response, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, err
	}
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	if b.lang != "" {
		writer.WriteField("language", b.lang)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return b.client.Do(req)
}

func newBase(apiURL, apiKey string) baseTranscriber {
	return baseTranscriber{
		client: nettrace.New(2*time.Minute, false),
		apiURL: apiURL,
		apiKey: apiKey,
	}
}

// New picks a provider from the configured keys, Groq first.
func New(groqKey, openaiKey string) (Transcriber, error) {
	if groqKey != "" {
		return NewGroq(groqKey), nil
	}
	if openaiKey != "" {
		return NewOpenAI(openaiKey), nil
	}
	return nil, fmt.Errorf("%w: set GROQ_API_KEY or OPENAI_API_KEY", ErrNoProvider)
}
