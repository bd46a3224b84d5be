package upload

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"scribe/recorder"
)

func TestUploadSendsMultipart(t *testing.T) {
	var gotType, gotName, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		f, hdr, err := r.FormFile(FieldName)
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		gotBody = string(data)
		gotName = hdr.Filename
		gotType = hdr.Header.Get("Content-Type")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "abc", "url": "/recordings/abc"})
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/upload", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	r, err := c.Upload(context.Background(), recorder.Artifact{
		Data:        []byte("AABB"),
		ContentType: "audio/ogg",
		Filename:    "recording.ogg",
		Chunks:      2,
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if gotBody != "AABB" || gotName != "recording.ogg" || gotType != "audio/ogg" {
		t.Errorf("server saw %q %q %q", gotBody, gotName, gotType)
	}
	if r.ID != "abc" || r.URL != srv.URL+"/recordings/abc" {
		t.Errorf("receipt = %+v", r)
	}
}

func TestUploadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, 5*time.Second)
	_, err := c.Upload(context.Background(), recorder.Artifact{Data: []byte("x")})
	if err == nil || !strings.Contains(err.Error(), "415") {
		t.Errorf("err = %v, want 415", err)
	}
}

func TestUploadBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, 5*time.Second)
	if _, err := c.Upload(context.Background(), recorder.Artifact{}); err == nil {
		t.Error("expected parse error")
	}
}

func TestUploadKeepsSessionCookie(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("scribe_session"); err == nil {
			seen = append(seen, ck.Value)
		} else {
			http.SetCookie(w, &http.Cookie{Name: "scribe_session", Value: "s1", Path: "/"})
			seen = append(seen, "")
		}
		w.Write([]byte(`{"id":"1","url":"/recordings/1"}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL+"/upload", 5*time.Second)
	for range 2 {
		if _, err := c.Upload(context.Background(), recorder.Artifact{Data: []byte("x")}); err != nil {
			t.Fatal(err)
		}
	}
	if len(seen) != 2 || seen[0] != "" || seen[1] != "s1" {
		t.Errorf("cookies seen = %q", seen)
	}
}

func TestUploadCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c, _ := New(srv.URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Upload(ctx, recorder.Artifact{}); err == nil {
		t.Error("expected context error")
	}
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	for _, ep := range []string{"ftp://host/upload", "://bad", "localhost:8080"} {
		if _, err := New(ep, time.Second); err == nil {
			t.Errorf("New(%q) accepted", ep)
		}
	}
}
