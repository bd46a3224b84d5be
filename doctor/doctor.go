// Package doctor runs the non-interactive system checks behind -doctor.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"scribe/audio"
	"scribe/clipboard"
	"scribe/config"
	"scribe/hotkey"
	"scribe/mic"
	"scribe/nettrace"
	"scribe/recorder"
)

// Check is one diagnostic. Run returns a short detail line on success.
type Check struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// Run executes the checks in order and returns an exit code (0=all pass,
// 1=any fail).
func Run(ctx context.Context, w io.Writer, checks []Check) int {
	fmt.Fprintln(w, "scribe doctor - system diagnostics")
	fmt.Fprintln(w, "==================================")

	failed := 0
	for i, c := range checks {
		fmt.Fprintf(w, "\n[%d/%d] %s\n", i+1, len(checks), c.Name)
		detail, err := c.Run(ctx)
		if err != nil {
			fmt.Fprintf(w, "  FAIL: %v\n", err)
			failed++
			continue
		}
		fmt.Fprintf(w, "  PASS: %s\n", detail)
	}

	fmt.Fprintln(w)
	if failed == 0 {
		fmt.Fprintln(w, "All checks passed!")
		return 0
	}
	fmt.Fprintf(w, "%d check(s) failed. See details above.\n", failed)
	return 1
}

// Checks returns the standard diagnostics for cfg.
func Checks(cfg *config.Config) []Check {
	return []Check{
		{Name: "Microphone", Run: func(ctx context.Context) (string, error) {
			return CheckMic(ctx, audio.NewContext, cfg.Client.Device)
		}},
		{Name: "Hotkey", Run: func(context.Context) (string, error) {
			return hotkey.Diagnose()
		}},
		{Name: "Clipboard", Run: func(context.Context) (string, error) {
			return checkClipboard()
		}},
		{Name: "Upload server", Run: func(ctx context.Context) (string, error) {
			return CheckServer(ctx, cfg.Client.UploadURL)
		}},
	}
}

// CheckMic opens the capture device the client would use and reports which
// one it got.
func CheckMic(ctx context.Context, newContext func() (audio.Context, error), device string) (string, error) {
	src := mic.NewSource(mic.Options{NewContext: newContext, Device: device})
	stream, err := src.Open(ctx)
	switch {
	case errors.Is(err, recorder.ErrCapabilityDenied):
		return "", fmt.Errorf("microphone access refused: %w", err)
	case err != nil:
		return "", fmt.Errorf("no microphone: %w", err)
	}
	defer stream.Close()

	name := stream.(*mic.Stream).DeviceName()
	if audio.IsBluetooth(name) {
		return name + " (bluetooth, expect reduced quality)", nil
	}
	return name, nil
}

func checkClipboard() (string, error) {
	if !clipboard.Available() {
		return "", clipboard.ErrUnavailable
	}
	prev, _ := clipboard.Read()
	const sample = "scribe-doctor-test"
	if err := clipboard.Copy(sample); err != nil {
		return "", err
	}
	got, err := clipboard.Read()
	clipboard.Copy(prev)
	if err != nil {
		return "", err
	}
	if got != sample {
		return "", fmt.Errorf("clipboard read back %q", got)
	}
	return "copy and read verified", nil
}

// CheckServer asks the upload server's /health endpoint whether it is up.
func CheckServer(ctx context.Context, uploadURL string) (string, error) {
	u, err := url.Parse(uploadURL)
	if err != nil {
		return "", err
	}
	health := u.ResolveReference(&url.URL{Path: "/health"}).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, health, nil)
	if err != nil {
		return "", err
	}
	resp, err := nettrace.New(5*time.Second, false).Do(req)
	if err != nil {
		return "", fmt.Errorf("%s unreachable: %w", u.Host, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s answered %d", health, resp.StatusCode)
	}
	return fmt.Sprintf("%s up (%dms)", u.Host, resp.Metrics.Total.Milliseconds()), nil
}
