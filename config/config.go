// Package config loads scribe settings from defaults, a TOML file, a .env
// file and SCRIBE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

type Config struct {
	LogLevel string `toml:"log_level"`
	LogDir   string `toml:"log_dir"`

	Client        Client        `toml:"client"`
	Server        Server        `toml:"server"`
	Transcription Transcription `toml:"transcription"`
	Translation   Translation   `toml:"translation"`
}

type Client struct {
	UploadURL      string `toml:"upload_url"`
	UploadTimeoutS int    `toml:"upload_timeout_s"`
	Device         string `toml:"device"`
	Gain           int    `toml:"gain"`
	Beep           bool   `toml:"beep"`
	CopyLink       bool   `toml:"copy_link"`
	Hotkey         bool   `toml:"hotkey"`
}

type Server struct {
	Addr         string   `toml:"addr"`
	UploadPath   string   `toml:"upload_path"`
	MaxUploadMB  int64    `toml:"max_upload_mb"`
	AllowedTypes []string `toml:"allowed_types"`
}

type Transcription struct {
	GroqAPIKey   string `toml:"groq_api_key"`
	OpenAIAPIKey string `toml:"openai_api_key"`
	Language     string `toml:"language"`
}

// Translation drives POST /publish. Without a DeepL key, or with Pseudo
// set, messages are pseudo-translated.
type Translation struct {
	SourceLanguage  string   `toml:"source_language"`
	TargetLanguages []string `toml:"target_languages"`
	DeepLAPIKey     string   `toml:"deepl_api_key"`
	Pseudo          bool     `toml:"pseudo"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Client: Client{
			UploadURL:      "http://localhost:8080/upload",
			UploadTimeoutS: 60,
			Beep:           true,
			Hotkey:         true,
		},
		Server: Server{
			Addr:        ":8080",
			UploadPath:  "uploads",
			MaxUploadMB: 100,
			AllowedTypes: []string{
				"audio/mpeg",
				"audio/ogg",
				"audio/wav",
				"audio/flac",
			},
		},
		Translation: Translation{
			SourceLanguage:  "en",
			TargetLanguages: []string{"es", "fr", "it", "ru", "pt"},
		},
	}
}

// DefaultPath is the config file used when neither -config nor
// SCRIBE_CONFIG is given.
func DefaultPath() (string, error) {
	return expandPath("~/.config/scribe/config.toml")
}

// Load builds the effective configuration. path may be empty; a missing
// default file is not an error, a missing explicit one is. envFile names a
// dotenv file to read; a missing one is ignored. The returned string is the
// config file actually read, or empty. The result is not validated; callers
// apply their command-line overrides first and then call Validate.
func Load(path, envFile string) (*Config, string, error) {
	cfg := Default()

	resolved, explicit, err := resolvePath(path)
	if err != nil {
		return nil, "", err
	}

	used := ""
	file, err := os.Open(resolved)
	switch {
	case err == nil:
		defer file.Close()
		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", fmt.Errorf("parse config %s: %w", resolved, err)
		}
		used = resolved
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, "", fmt.Errorf("open config: %w", err)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", err
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	return &cfg, used, nil
}

func resolvePath(path string) (string, bool, error) {
	if path == "" {
		path = os.Getenv("SCRIBE_CONFIG")
	}
	if path != "" {
		p, err := expandPath(path)
		return p, true, err
	}
	p, err := DefaultPath()
	return p, false, err
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"SCRIBE_LOG_LEVEL":       &c.LogLevel,
		"SCRIBE_LOG_PATH":        &c.LogDir,
		"SCRIBE_UPLOAD_URL":      &c.Client.UploadURL,
		"SCRIBE_DEVICE":          &c.Client.Device,
		"SCRIBE_ADDR":            &c.Server.Addr,
		"SCRIBE_UPLOAD_PATH":     &c.Server.UploadPath,
		"SCRIBE_LANGUAGE":        &c.Transcription.Language,
		"GROQ_API_KEY":           &c.Transcription.GroqAPIKey,
		"OPENAI_API_KEY":         &c.Transcription.OpenAIAPIKey,
		"SCRIBE_SOURCE_LANGUAGE": &c.Translation.SourceLanguage,
		"DEEPL_API_KEY":          &c.Translation.DeepLAPIKey,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	flags := map[string]*bool{
		"SCRIBE_BEEP":             &c.Client.Beep,
		"SCRIBE_COPY_LINK":        &c.Client.CopyLink,
		"SCRIBE_HOTKEY":           &c.Client.Hotkey,
		"SCRIBE_PSEUDO_TRANSLATE": &c.Translation.Pseudo,
	}
	for key, dst := range flags {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}

	if v := os.Getenv("SCRIBE_MAX_UPLOAD_MB"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SCRIBE_MAX_UPLOAD_MB: %w", err)
		}
		c.Server.MaxUploadMB = n
	}
	if v := os.Getenv("SCRIBE_ALLOWED_TYPES"); v != "" {
		c.Server.AllowedTypes = splitList(v)
	}
	if v := os.Getenv("SCRIBE_TARGET_LANGUAGES"); v != "" {
		c.Translation.TargetLanguages = splitList(v)
	}
	return nil
}

func (c *Config) normalize() error {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Client.UploadURL = strings.TrimSpace(c.Client.UploadURL)
	for i, t := range c.Server.AllowedTypes {
		c.Server.AllowedTypes[i] = strings.ToLower(strings.TrimSpace(t))
	}
	c.Translation.SourceLanguage = strings.ToLower(strings.TrimSpace(c.Translation.SourceLanguage))
	for i, l := range c.Translation.TargetLanguages {
		c.Translation.TargetLanguages[i] = strings.ToLower(strings.TrimSpace(l))
	}
	if c.Server.UploadPath != "" {
		p, err := expandPath(c.Server.UploadPath)
		if err != nil {
			return err
		}
		c.Server.UploadPath = p
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	if c.Client.UploadURL == "" {
		return errors.New("client.upload_url must be set")
	}
	u, err := url.Parse(c.Client.UploadURL)
	if err != nil {
		return fmt.Errorf("client.upload_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("client.upload_url %q: want an http(s) URL", c.Client.UploadURL)
	}
	if c.Client.UploadTimeoutS <= 0 {
		return errors.New("client.upload_timeout_s must be positive")
	}
	if c.Client.Gain < 0 || c.Client.Gain > 16 {
		return fmt.Errorf("client.gain %d out of range 0-16", c.Client.Gain)
	}
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return fmt.Errorf("server.addr: %w", err)
	}
	if c.Server.UploadPath == "" {
		return errors.New("server.upload_path must be set")
	}
	if c.Server.MaxUploadMB <= 0 {
		return errors.New("server.max_upload_mb must be positive")
	}
	if len(c.Server.AllowedTypes) == 0 {
		return errors.New("server.allowed_types must not be empty")
	}
	if c.Translation.SourceLanguage == "" {
		return errors.New("translation.source_language must be set")
	}
	if slices.Contains(c.Translation.TargetLanguages, c.Translation.SourceLanguage) {
		return fmt.Errorf("translation.target_languages must not include the source %q", c.Translation.SourceLanguage)
	}
	return nil
}

// Sample renders the defaults as TOML, secrets left empty.
func Sample() ([]byte, error) {
	return toml.Marshal(Default())
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Transcription.GroqAPIKey != "" {
		c.Transcription.GroqAPIKey = "***"
	}
	if c.Transcription.OpenAIAPIKey != "" {
		c.Transcription.OpenAIAPIKey = "***"
	}
	if c.Translation.DeepLAPIKey != "" {
		c.Translation.DeepLAPIKey = "***"
	}
	c.Server.AllowedTypes = append([]string(nil), c.Server.AllowedTypes...)
	c.Translation.TargetLanguages = append([]string(nil), c.Translation.TargetLanguages...)
	return c
}

func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// CreateSample writes the default configuration to path.
func CreateSample(path string) error {
	data, err := Sample()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
