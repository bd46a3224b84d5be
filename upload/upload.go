// Package upload sends finished recordings to the recording server as a
// multipart form.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"scribe/log"
	"scribe/nettrace"
	"scribe/recorder"
)

// FieldName is the form field carrying the audio file.
const FieldName = "audio_file"

type Client struct {
	endpoint *url.URL
	client   *nettrace.Client
}

// New returns a client posting to endpoint. Cookies set by the server are
// sent back on later uploads, which groups them into one session.
func New(endpoint string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing upload endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upload endpoint %q: scheme must be http or https", endpoint)
	}
	return &Client{endpoint: u, client: nettrace.New(timeout, true)}, nil
}

func (c *Client) Endpoint() string { return c.endpoint.String() }

// Warm opens the connection before the first upload.
func (c *Client) Warm() {
	c.client.Warm(c.endpoint.String())
}

type receiptJSON struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (c *Client) Upload(ctx context.Context, a recorder.Artifact) (recorder.Receipt, error) {
	body, contentType, err := encodeForm(a)
	if err != nil {
		return recorder.Receipt{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), body)
	if err != nil {
		return recorder.Receipt{}, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return recorder.Receipt{}, err
	}

	m := resp.Metrics
	log.Upload(log.UploadMetrics{
		SizeKB:      float64(len(a.Data)) / 1024,
		Chunks:      a.Chunks,
		AudioS:      a.Duration.Seconds(),
		ContentType: a.ContentType,
		Status:      resp.StatusCode,
		DNSTimeMs:   float64(m.DNS.Milliseconds()),
		TLSTimeMs:   float64(m.TLS.Milliseconds()),
		TTFBMs:      float64(m.TTFB.Milliseconds()),
		TotalTimeMs: float64(m.Total.Milliseconds()),
		ConnReused:  m.ConnReused,
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return recorder.Receipt{}, fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(resp.Body))
	}

	var r receiptJSON
	if err := json.Unmarshal(resp.Body, &r); err != nil {
		return recorder.Receipt{}, fmt.Errorf("upload response parse error: %w", err)
	}
	return recorder.Receipt{ID: r.ID, URL: c.resolve(r.URL)}, nil
}

// resolve makes a server-relative recording URL absolute.
func (c *Client) resolve(ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return c.endpoint.ResolveReference(u).String()
}

func encodeForm(a recorder.Artifact) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	filename := a.Filename
	if filename == "" {
		filename = "recording"
	}
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldName, filename))
	h.Set("Content-Type", contentType)
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(a.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &body, writer.FormDataContentType(), nil
}
