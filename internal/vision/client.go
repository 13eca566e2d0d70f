// Package vision wraps the vision-language model behind a narrow
// describe-one-image capability so the extraction pipeline stays testable
// with stubs.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	appLog "snapcal/internal/log"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is the model used when config does not name one.
	DefaultModel = "gemini-2.0-flash"

	requestTimeout = 60 * time.Second
	maxAttempts    = 3
	retryBaseDelay = 500 * time.Millisecond
	minInterval    = 100 * time.Millisecond
)

// DefaultInstruction is the built-in extraction prompt. The response
// contract it demands (a bare JSON array in one of two field-naming
// schemes) is what extract.Extract and extract.Decode tolerate.
const DefaultInstruction = `You are reading a photographed document such as an event flyer, a ticket, or a screenshot. Extract every calendar event it describes.

Respond with ONLY a JSON array, no other text. Each object must have these fields:
- "title": short event title (required)
- "location": venue or address, omit if unknown
- "description": extra details worth keeping, omit if none
- "start_datetime": start as YYYY-MM-DDTHH:MM:SS, or use "start_date" as YYYY-MM-DD when the document gives no time
- "end_datetime" or "end_date": same formats, omit if unknown
- "all_day": true when the event has no specific time of day

Example format:
[{"title": "Spring Gala", "location": "City Hall", "start_datetime": "2025-06-01T19:00:00", "end_datetime": "2025-06-01T22:00:00"}]`

// Describer turns one image plus instruction text into free-form model
// output. Implementations must honor ctx cancellation; callers assume at
// most one request in flight per user action and simply ignore stale
// results.
type Describer interface {
	Describe(ctx context.Context, instruction string, image []byte, mimeType string) (string, error)
}

// Client calls the Gemini generateContent API.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	httpc   *http.Client

	throttleMu  sync.Mutex
	lastRequest time.Time
}

// NewClient builds a Client. Empty model/baseURL fall back to defaults;
// httpc may be nil.
func NewClient(apiKey, model, baseURL string, httpc *http.Client) *Client {
	if model == "" {
		model = DefaultModel
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpc == nil {
		httpc = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
	}
}

// IsConfigured reports whether an API key is present.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// Describe sends the instruction plus one inline image and returns the
// model's text. Transient failures (network, 429, 5xx) are retried with
// exponential backoff; 4xx responses are terminal.
func (c *Client) Describe(ctx context.Context, instruction string, image []byte, mimeType string) (string, error) {
	if !c.IsConfigured() {
		return "", errors.New("vision: api key not configured")
	}
	if len(image) == 0 {
		return "", errors.New("vision: empty image")
	}
	if instruction == "" {
		instruction = DefaultInstruction
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	// Keep a minimum spacing between requests.
	c.throttleMu.Lock()
	if since := time.Since(c.lastRequest); since < minInterval {
		time.Sleep(minInterval - since)
	}
	c.lastRequest = time.Now()
	c.throttleMu.Unlock()

	reqBody := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: instruction},
				{InlineData: &inlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
		GenerationConfig: &generationConfig{
			Temperature:     0.2,
			MaxOutputTokens: 2048,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("vision: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, c.model, url.QueryEscape(c.apiKey))

	var text string
	err = retry.Do(
		func() error {
			out, rerr := c.doOnce(ctx, endpoint, bodyBytes)
			if rerr != nil {
				return rerr
			}
			text = out
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(maxAttempts),
		retry.Delay(retryBaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			appLog.Error("vision request retrying", err, "attempt", n+1, "model", c.model)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("vision: request failed: %w", err)
	}
	return text, nil
}

func (c *Client) doOnce(ctx context.Context, endpoint string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", retry.Unrecoverable(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("vision API status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", retry.Unrecoverable(fmt.Errorf("vision API error %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
	}
	if out.Error != nil {
		return "", retry.Unrecoverable(fmt.Errorf("vision API error: %s", out.Error.Message))
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", retry.Unrecoverable(errors.New("vision API returned an empty response"))
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}
