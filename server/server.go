// Package server receives uploaded recordings, stores them per session and
// transcribes them on request.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"scribe/log"
	"scribe/transcriber"
	"scribe/translate"
)

// FieldName is the multipart field that carries the audio file.
const FieldName = "audio_file"

type Options struct {
	Store          *Store
	Transcriber    transcriber.Transcriber // nil disables transcription
	AllowedTypes   []string
	MaxUploadBytes int64

	// Translator renders a published message into each of TargetLanguages.
	// nil disables publishing.
	Translator      translate.Translator
	SourceLanguage  string
	TargetLanguages []string
}

type Server struct {
	opts Options
}

func New(opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 100 << 20
	}
	return &Server{opts: opts}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(withSession)
	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/recordings/{id}", s.handleRecording).Methods(http.MethodGet)
	api.HandleFunc("/recordings/{id}/transcription", s.handleTranscription).Methods(http.MethodGet)
	api.HandleFunc("/publish", s.handlePublish).Methods(http.MethodPost)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("server_listen: " + addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}

type uploadResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "expected multipart form", http.StatusBadRequest)
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			http.Error(w, "missing "+FieldName, http.StatusBadRequest)
			return
		}
		if err != nil {
			uploadFailed(w, err)
			return
		}
		if part.FormName() != FieldName {
			part.Close()
			continue
		}

		contentType := partType(part.Header.Get("Content-Type"))
		if !slices.Contains(s.opts.AllowedTypes, contentType) {
			log.Warnf("upload rejected: content type %q", contentType)
			http.Error(w, ErrUnsupportedMedia.Error(), http.StatusUnsupportedMediaType)
			return
		}

		rec, err := s.opts.Store.Save(sessionID(r), contentType, part)
		part.Close()
		if err != nil {
			uploadFailed(w, err)
			return
		}
		log.Infof("upload_stored: id=%s type=%s size=%d", rec.ID, rec.ContentType, rec.Size)

		url := "/recordings/" + rec.ID
		w.Header().Set("Location", url)
		writeJSON(w, http.StatusCreated, uploadResponse{ID: rec.ID, URL: url})
		return
	}
}

func partType(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(header))
	}
	return mt
}

func uploadFailed(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
		return
	}
	log.Errorf("upload failed: %v", err)
	http.Error(w, "upload failed", http.StatusInternalServerError)
}

func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := s.opts.Store.Get(sessionID(r), mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleTranscription answers with a server-sent event stream carrying one
// "message" event with the text or one "error" event.
func (s *Server) handleTranscription(w http.ResponseWriter, r *http.Request) {
	session := sessionID(r)
	rec, err := s.opts.Store.Get(session, mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if s.opts.Transcriber == nil && rec.Transcription == "" {
		http.Error(w, transcriber.ErrNoProvider.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flush(w)

	text, err := s.transcribe(r.Context(), session, rec)
	if err != nil {
		if r.Context().Err() != nil {
			log.Debug("transcription client disconnected")
			return
		}
		log.Warnf("error transcribing audio: %v", err)
		writeEvent(w, "error", err.Error())
		return
	}
	writeEvent(w, "message", text)
}

func (s *Server) transcribe(ctx context.Context, session string, rec Recording) (string, error) {
	return s.opts.Store.Transcribe(ctx, session, rec.ID, func(rec Recording) (string, error) {
		data, err := s.opts.Store.Data(rec)
		if err != nil {
			return "", fmt.Errorf("reading recording: %w", err)
		}
		res, err := s.opts.Transcriber.Transcribe(ctx, data, rec.Filename())
		if err != nil {
			return "", err
		}
		log.Infof("transcribed: id=%s provider=%s rate_limit=%s", rec.ID, s.opts.Transcriber.Name(), res.RateLimit)
		return strings.TrimSpace(res.Text), nil
	})
}

// maxPublishBytes bounds the publish form.
const maxPublishBytes = 1 << 20

type publishResponse struct {
	Messages []Message `json:"messages"`
}

// handlePublish translates formatted_message into every target language,
// records each rendering and the original for the session, and answers with
// them in publishing order: targets first, source last.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if s.opts.Translator == nil {
		http.Error(w, "publishing disabled", http.StatusServiceUnavailable)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxPublishBytes)
	message := strings.TrimSpace(r.FormValue("formatted_message"))
	if message == "" {
		http.Error(w, "missing formatted_message", http.StatusBadRequest)
		return
	}

	msgs := make([]Message, 0, len(s.opts.TargetLanguages)+1)
	for _, target := range s.opts.TargetLanguages {
		text, err := s.opts.Translator.Translate(r.Context(), message, target)
		if err != nil {
			log.Warnf("translate to %s: %v", target, err)
			http.Error(w, fmt.Sprintf("translation to %s failed", target), http.StatusBadGateway)
			return
		}
		msgs = append(msgs, Message{Language: target, Text: text})
	}
	msgs = append(msgs, Message{Language: s.opts.SourceLanguage, Text: message})

	if err := s.opts.Store.Publish(sessionID(r), msgs); err != nil {
		log.Errorf("publish failed: %v", err)
		http.Error(w, "publish failed", http.StatusInternalServerError)
		return
	}
	log.Infof("published: languages=%d translator=%s", len(msgs), s.opts.Translator.Name())
	writeJSON(w, http.StatusOK, publishResponse{Messages: msgs})
}

func writeEvent(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
	flush(w)
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	flush(r.ResponseWriter)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Request(r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
