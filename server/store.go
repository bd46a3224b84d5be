package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"scribe/log"
)

var (
	ErrNotFound         = errors.New("recording not found")
	ErrUnsupportedMedia = errors.New("unsupported file format")
)

var extensions = map[string]string{
	"audio/mpeg": ".mp3",
	"audio/ogg":  ".ogg",
	"audio/wav":  ".wav",
	"audio/flac": ".flac",
}

// Extension maps an audio content type to a file extension.
func Extension(contentType string) string {
	if ext, ok := extensions[contentType]; ok {
		return ext
	}
	return ".bin"
}

type Recording struct {
	ID            string    `json:"id"`
	ContentType   string    `json:"content_type"`
	Size          int64     `json:"size"`
	CreatedAt     time.Time `json:"created_at"`
	Transcription string    `json:"transcription,omitempty"`

	session string
	path    string
}

// Filename is the name the recording is sent under to a transcriber.
func (r *Recording) Filename() string {
	return "recording" + Extension(r.ContentType)
}

// Store keeps recordings on disk under <root>/<session>/<id>.<ext> and
// indexes them in memory per session.
type Store struct {
	root string

	mu        sync.Mutex
	bySession map[string]map[string]*Recording
	inflight  map[string]*pendingText
}

// pendingText is a transcription in progress. done is closed once text and
// err are set.
type pendingText struct {
	done    chan struct{}
	waiters int
	text    string
	err     error
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &Store{
		root:      root,
		bySession: make(map[string]map[string]*Recording),
		inflight:  make(map[string]*pendingText),
	}, nil
}

// Save streams src to a new file in the session's directory.
func (s *Store) Save(session, contentType string, src io.Reader) (*Recording, error) {
	if _, err := uuid.Parse(session); err != nil {
		return nil, fmt.Errorf("invalid session id: %w", err)
	}

	id := uuid.New().String()
	dir := filepath.Join(s.root, session)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	path := filepath.Join(dir, id+Extension(contentType))

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	rec := &Recording{
		ID:          id,
		ContentType: contentType,
		Size:        n,
		CreatedAt:   time.Now().UTC(),
		session:     session,
		path:        path,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.bySession[session]
	if recs == nil {
		recs = make(map[string]*Recording)
		s.bySession[session] = recs
	}
	recs[id] = rec
	return rec, nil
}

// Get returns a copy of the session's recording id.
func (s *Store) Get(session, id string) (Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.bySession[session][id]
	if !ok {
		return Recording{}, ErrNotFound
	}
	return *rec, nil
}

func (s *Store) Data(rec Recording) ([]byte, error) {
	return os.ReadFile(rec.path)
}

// Transcribe returns the stored transcription of the session's recording id.
// Without one it calls fn, once for all concurrent callers, and stores the
// result on success. A caller whose leader was cancelled takes over.
func (s *Store) Transcribe(ctx context.Context, session, id string, fn func(Recording) (string, error)) (string, error) {
	for {
		s.mu.Lock()
		rec, ok := s.bySession[session][id]
		if !ok {
			s.mu.Unlock()
			return "", ErrNotFound
		}
		if rec.Transcription != "" {
			text := rec.Transcription
			s.mu.Unlock()
			return text, nil
		}
		if p, ok := s.inflight[rec.path]; ok {
			p.waiters++
			s.mu.Unlock()
			select {
			case <-p.done:
			case <-ctx.Done():
				return "", ctx.Err()
			}
			if p.err != nil && isCancel(p.err) && ctx.Err() == nil {
				continue
			}
			return p.text, p.err
		}

		p := &pendingText{done: make(chan struct{})}
		s.inflight[rec.path] = p
		snapshot := *rec
		s.mu.Unlock()

		p.text, p.err = fn(snapshot)

		s.mu.Lock()
		if p.err == nil {
			rec.Transcription = p.text
		}
		delete(s.inflight, rec.path)
		waiters := p.waiters
		s.mu.Unlock()
		close(p.done)
		if waiters > 0 {
			log.Debug(fmt.Sprintf("transcription %s shared with %d waiting request(s)", id, waiters))
		}
		return p.text, p.err
	}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Message is one published rendering of a message.
type Message struct {
	Language    string    `json:"language"`
	Text        string    `json:"text"`
	PublishedAt time.Time `json:"published_at"`
}

// PublishedFile holds a session's published messages, one JSON object per
// line.
const PublishedFile = "published.jsonl"

// Publish appends msgs to the session's published log.
func (s *Store) Publish(session string, msgs []Message) error {
	if _, err := uuid.Parse(session); err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}
	dir := filepath.Join(s.root, session)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(filepath.Join(dir, PublishedFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	now := time.Now().UTC()
	for i := range msgs {
		msgs[i].PublishedAt = now
		if err := enc.Encode(msgs[i]); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// Count returns the number of recordings held for session.
func (s *Store) Count(session string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bySession[session])
}
