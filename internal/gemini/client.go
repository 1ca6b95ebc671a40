// Package gemini is a thin REST client for the Gemini generateContent API.
//
// Two calls are made by the backend:
//   - ClassifyImage: a civic-issue photo check answered with VALID or INVALID
//   - Extract: structured complaint fields pulled out of a free-text email
//
// A nil *Client means AI is not configured; every call then returns a
// CollaboratorError so callers apply their own fallback policy.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"grievance/internal/api"
	apperrors "grievance/internal/errors"
	"grievance/internal/logging"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const imagePrompt = `Analyze this image for a government grievance portal.
Is this image related to civic issues like: Garbage, Potholes, Water leakage, Broken roads, Street lights, Sewer issues, or Construction debris?

- If YES (it looks like a valid complaint): Respond with "VALID"
- If NO (it looks like a laptop, selfie, person face, computer screen, animal, or random object): Respond with "INVALID"`

const extractPrompt = `Analyze this email text and extract complaint details for a government portal.

EMAIL TEXT: %q

Task: Extract these fields into JSON:
- name (Citizen Name)
- phone (Mobile Number)
- type (Complaint Type e.g., Pothole, Garbage, Street Light)
- loc (Location)
- desc (Description)

Rules:
- If phone is missing, use "+91 00000 00000".
- If type is unclear, categorize it as "General Grievance".
- Return ONLY valid JSON. No Markdown.`

// Client calls Gemini over the shared pooled HTTP client.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     logging.Logger
}

// NewClient returns nil when apiKey is empty.
func NewClient(apiKey, model string, httpClient *http.Client, log logging.Logger) *Client {
	if apiKey == "" {
		log.Warn("GEMINI_API_KEY not set, AI checks disabled")
		return nil
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		http:    httpClient,
		log:     log,
	}
}

// WithRateLimit spaces requests so at most perMinute are sent per minute.
// The free tier answers 429 well before the backend notices otherwise.
func (c *Client) WithRateLimit(perMinute int) *Client {
	if perMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return c
}

// WithBaseURL points the client at another endpoint (used by tests).
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
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
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ClassifyImage asks whether an image shows a civic issue and returns the
// model's raw answer text.
func (c *Client) ClassifyImage(ctx context.Context, image []byte, mimeType string) (string, error) {
	if c == nil {
		return "", apperrors.NewCollaboratorError("gemini", "not configured", nil)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return c.generate(ctx, []part{
		{Text: imagePrompt},
		{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(image)}},
	})
}

// Extract pulls complaint fields out of an email body.
func (c *Client) Extract(ctx context.Context, emailText string) (Extraction, error) {
	if c == nil {
		return Extraction{}, apperrors.NewCollaboratorError("gemini", "not configured", nil)
	}
	text, err := c.generate(ctx, []part{{Text: fmt.Sprintf(extractPrompt, emailText)}})
	if err != nil {
		return Extraction{}, err
	}
	return ParseExtraction(text)
}

func (c *Client) generate(ctx context.Context, parts []part) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", apperrors.NewCollaboratorError("gemini", "rate limit wait", err)
		}
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	resp, err := api.PostJSON(ctx, c.http, url, generateRequest{Contents: []content{{Parts: parts}}})
	if err != nil {
		return "", apperrors.NewCollaboratorError("gemini", "generateContent", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		c.log.Warn("gemini rate limited")
		return "", apperrors.NewCollaboratorError("gemini", "rate limited", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewCollaboratorError("gemini", fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(resp.Body), 200)), nil)
	}

	var out generateResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", apperrors.NewCollaboratorError("gemini", "decode response", err)
	}
	if out.Error != nil {
		return "", apperrors.NewCollaboratorError("gemini", out.Error.Message, nil)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", apperrors.NewCollaboratorError("gemini", "empty response", nil)
	}
	return strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
