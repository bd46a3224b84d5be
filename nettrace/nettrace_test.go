package nettrace

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	got := m.Sum()
	want := 195 * time.Millisecond
	if got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit", "100")

	if got := FirstNonEmpty(h, "X-Missing", "X-Rate-Limit"); got != "100" {
		t.Errorf("got %q, want %q", got, "100")
	}
	if got := FirstNonEmpty(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want %q", got, "?")
	}
}

func TestDoReusesConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("X-Test", "yes")
		w.Write([]byte("pong"))
	}))
	defer srv.Close()

	c := New(5*time.Second, false)
	var last *Response
	for i := range 2 {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		resp, err := c.Do(req)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if string(resp.Body) != "pong" || resp.StatusCode != 200 {
			t.Fatalf("response = %d %q", resp.StatusCode, resp.Body)
		}
		if resp.Header.Get("X-Test") != "yes" {
			t.Error("header missing")
		}
		if resp.Metrics.Total <= 0 {
			t.Error("total not measured")
		}
		last = resp
	}
	if !last.Metrics.ConnReused {
		t.Error("second request did not reuse the connection")
	}
}

func TestCookiesKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("sid"); err != nil {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
			w.Write([]byte("new"))
			return
		}
		w.Write([]byte("known"))
	}))
	defer srv.Close()

	c := New(5*time.Second, true)
	var bodies []string
	for range 2 {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		resp, err := c.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		bodies = append(bodies, string(resp.Body))
	}
	if bodies[0] != "new" || bodies[1] != "known" {
		t.Errorf("bodies = %v", bodies)
	}
}

func TestWarmUnreachable(t *testing.T) {
	c := New(time.Second, false)
	if d := c.Warm("http://127.0.0.1:1"); d != 0 {
		t.Errorf("Warm = %v, want 0", d)
	}
}
