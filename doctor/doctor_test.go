package doctor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scribe/audio"
)

func TestRunReportsFailures(t *testing.T) {
	var out strings.Builder
	code := Run(context.Background(), &out, []Check{
		{Name: "ok", Run: func(context.Context) (string, error) { return "fine", nil }},
		{Name: "broken", Run: func(context.Context) (string, error) { return "", errors.New("boom") }},
	})
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	for _, want := range []string{"[1/2] ok", "PASS: fine", "[2/2] broken", "FAIL: boom", "1 check(s) failed"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunAllPass(t *testing.T) {
	var out strings.Builder
	code := Run(context.Background(), &out, []Check{
		{Name: "ok", Run: func(context.Context) (string, error) { return "fine", nil }},
	})
	if code != 0 || !strings.Contains(out.String(), "All checks passed!") {
		t.Errorf("code = %d, output:\n%s", code, out.String())
	}
}

func TestCheckMic(t *testing.T) {
	fake := func(fc *audio.FakeContext) func() (audio.Context, error) {
		return func() (audio.Context, error) { return fc, nil }
	}

	name, err := CheckMic(context.Background(), fake(audio.NewFakeContextPCM(nil)), "")
	if err != nil || name != "fake" {
		t.Errorf("CheckMic = %q, %v", name, err)
	}

	empty := audio.NewFakeContextPCM(nil)
	empty.NoDevices = true
	if _, err := CheckMic(context.Background(), fake(empty), ""); err == nil || !strings.Contains(err.Error(), "no microphone") {
		t.Errorf("no devices err = %v", err)
	}

	refused := audio.NewFakeContextPCM(nil)
	refused.CaptureErr = errors.New("access denied")
	if _, err := CheckMic(context.Background(), fake(refused), ""); err == nil || !strings.Contains(err.Error(), "refused") {
		t.Errorf("refused err = %v", err)
	}
}

func TestCheckServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("OK\n"))
	}))
	defer srv.Close()

	if _, err := CheckServer(context.Background(), srv.URL+"/upload"); err != nil {
		t.Errorf("healthy server: %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	if _, err := CheckServer(context.Background(), down.URL+"/upload"); err == nil {
		t.Error("502 accepted as healthy")
	}
}
