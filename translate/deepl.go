package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scribe/log"
	"scribe/nettrace"
)

const (
	deeplAPI     = "https://api.deepl.com/v2/translate"
	deeplFreeAPI = "https://api-free.deepl.com/v2/translate"
)

type DeepL struct {
	client *nettrace.Client
	apiURL string
	apiKey string
	source string
}

// NewDeepL picks the free endpoint for ":fx" keys.
func NewDeepL(apiKey, source string) *DeepL {
	apiURL := deeplAPI
	if strings.HasSuffix(apiKey, ":fx") {
		apiURL = deeplFreeAPI
	}
	return &DeepL{
		client: nettrace.New(30*time.Second, false),
		apiURL: apiURL,
		apiKey: apiKey,
		source: source,
	}
}

func (d *DeepL) Name() string { return "deepl" }

type deeplResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
}

// targetCode maps a bare language to the regional variant DeepL requires.
func targetCode(lang string) string {
	switch lang = strings.ToLower(lang); lang {
	case "en":
		return "EN-US"
	case "pt":
		return "PT-BR"
	default:
		return strings.ToUpper(lang)
	}
}

func (d *DeepL) Translate(ctx context.Context, text, target string) (string, error) {
	form := url.Values{
		"text":         {text},
		"target_lang":  {targetCode(target)},
		"tag_handling": {"html"},
	}
	if d.source != "" {
		form.Set("source_lang", strings.ToUpper(d.source))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+d.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deepl API error %d: %s", resp.StatusCode, string(resp.Body))
	}

	var dResp deeplResponse
	if err := json.Unmarshal(resp.Body, &dResp); err != nil {
		return "", fmt.Errorf("deepl response parse error: %w", err)
	}
	if len(dResp.Translations) == 0 {
		return "", fmt.Errorf("deepl returned no translation for %s", target)
	}
	log.Debug(fmt.Sprintf("translated: target=%s total=%s reused=%t", target, resp.Metrics.Total, resp.Metrics.ConnReused))
	return dResp.Translations[0].Text, nil
}
