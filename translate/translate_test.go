package translate

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPseudoKeepsTags(t *testing.T) {
	tests := []struct{ in, want string }{
		{"hello world", "HELLO WORLD"},
		{"<p>hello <b>there</b></p>", "<p>HELLO <b>THERE</b></p>"},
		{`<a href="x">link</a> after`, `<a href="x">LINK</a> AFTER`},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := Pseudo{}.Translate(context.Background(), tt.in, "fr")
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("Translate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewPicksProvider(t *testing.T) {
	if _, ok := New("", "en", false).(Pseudo); !ok {
		t.Error("no key should give Pseudo")
	}
	if _, ok := New("key", "en", true).(Pseudo); !ok {
		t.Error("pseudo flag should win over a key")
	}
	d, ok := New("key:fx", "en", false).(*DeepL)
	if !ok {
		t.Fatal("key should give DeepL")
	}
	if d.apiURL != deeplFreeAPI {
		t.Errorf("free key url = %q", d.apiURL)
	}
	if NewDeepL("key", "en").apiURL != deeplAPI {
		t.Error("pro key should use the paid endpoint")
	}
}

func TestTargetCode(t *testing.T) {
	for in, want := range map[string]string{"en": "EN-US", "pt": "PT-BR", "fr": "FR", "ES": "ES"} {
		if got := targetCode(in); got != want {
			t.Errorf("targetCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func deeplServer(t *testing.T, status int, body string, check func(r *http.Request)) *DeepL {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	d := NewDeepL("secret", "en")
	d.apiURL = srv.URL
	return d
}

func TestDeepLTranslate(t *testing.T) {
	var auth, target, source, tags, text string
	d := deeplServer(t, 200, `{"translations":[{"detected_source_language":"EN","text":"<p>bonjour</p>"}]}`,
		func(r *http.Request) {
			auth = r.Header.Get("Authorization")
			target = r.FormValue("target_lang")
			source = r.FormValue("source_lang")
			tags = r.FormValue("tag_handling")
			text = r.FormValue("text")
		})

	got, err := d.Translate(context.Background(), "<p>hello</p>", "fr")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "<p>bonjour</p>" {
		t.Errorf("text = %q", got)
	}
	if auth != "DeepL-Auth-Key secret" {
		t.Errorf("auth = %q", auth)
	}
	if target != "FR" || source != "EN" || tags != "html" || text != "<p>hello</p>" {
		t.Errorf("form = target %q source %q tags %q text %q", target, source, tags, text)
	}
}

func TestDeepLErrors(t *testing.T) {
	d := deeplServer(t, 456, `{"message":"Quota exceeded"}`, nil)
	if _, err := d.Translate(context.Background(), "hi", "es"); err == nil || !strings.Contains(err.Error(), "456") {
		t.Errorf("err = %v, want status 456", err)
	}

	d = deeplServer(t, 200, `{"translations":[]}`, nil)
	if _, err := d.Translate(context.Background(), "hi", "es"); err == nil {
		t.Error("empty translations should fail")
	}
}
