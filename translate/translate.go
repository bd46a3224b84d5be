// Package translate renders transcriptions into other languages before they
// are published.
package translate

import (
	"context"
	"regexp"
	"strings"
)

type Translator interface {
	Name() string
	// Translate renders text, which may carry HTML tags, into target. Tags
	// pass through unchanged.
	Translate(ctx context.Context, text, target string) (string, error)
}

// Pseudo uppercases everything outside tags. It stands in for a real
// provider during development.
type Pseudo struct{}

func (Pseudo) Name() string { return "pseudo" }

var tagOrText = regexp.MustCompile(`<[^>]+>|[^<]+`)

func (Pseudo) Translate(_ context.Context, text, _ string) (string, error) {
	return tagOrText.ReplaceAllStringFunc(text, func(s string) string {
		if strings.HasPrefix(s, "<") {
			return s
		}
		return strings.ToUpper(s)
	}), nil
}

// New returns DeepL when a key is set and pseudo is false, Pseudo otherwise.
func New(deeplKey, source string, pseudo bool) Translator {
	if pseudo || deeplKey == "" {
		return Pseudo{}
	}
	return NewDeepL(deeplKey, source)
}
