// Package telegram posts complaint notifications to the officials' chat.
//
// This package handles:
//   - New complaint broadcasts (HTML formatted)
//   - Operational alerts from the email agent
//   - The pending-complaints summary image (sendPhoto)
//
// A nil *Client means Telegram is not configured; every method is then a no-op.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"grievance/internal/api"
	"grievance/internal/complaint"
	apperrors "grievance/internal/errors"
	"grievance/internal/logging"
)

const defaultBaseURL = "https://api.telegram.org"

// Client represents a Telegram bot bound to one chat.
type Client struct {
	botToken   string
	chatID     string
	baseURL    string
	publicBase string
	http       *http.Client
	debug      bool
	log        logging.Logger
}

// Message represents a Telegram message for sending.
type Message struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int `json:"message_id"`
	} `json:"result"`
}

// NewClient returns nil when the token or chat id is missing.
func NewClient(botToken, chatID, publicBase string, httpClient *http.Client, debug bool, log logging.Logger) *Client {
	if botToken == "" || chatID == "" {
		log.Warn("TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID not set, officials channel disabled")
		return nil
	}
	return &Client{
		botToken:   botToken,
		chatID:     chatID,
		baseURL:    defaultBaseURL,
		publicBase: strings.TrimRight(publicBase, "/"),
		http:       httpClient,
		debug:      debug,
		log:        log.With(logging.F("component", "telegram")),
	}
}

// WithBaseURL points the client at another endpoint (used by tests).
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.botToken, method)
}

// doRequest posts a JSON payload to a bot API method and checks the "ok" flag.
func (c *Client) doRequest(ctx context.Context, method string, payload interface{}) (*apiResponse, error) {
	resp, err := api.PostJSON(ctx, c.http, c.methodURL(method), payload)
	if err != nil {
		return nil, apperrors.NewCollaboratorError("telegram", method, err)
	}
	return decode(method, resp)
}

func decode(method string, resp *api.Response) (*apiResponse, error) {
	var out apiResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, apperrors.NewCollaboratorError("telegram", method, fmt.Errorf("status %d: %w", resp.StatusCode, err))
	}
	if !out.OK {
		return nil, apperrors.NewCollaboratorError("telegram", method+": "+out.Description, nil)
	}
	return &out, nil
}

// SendComplaint broadcasts a newly registered complaint.
//
// Message format:
//
//	📋 Complaint : SIGW-42
//	🏢 Public Works Department (PWD)
//	🏷️ Pothole · 📅 2024-03-09
//	💬 Details: ...
//	📍 Location
//	📎 Upload link
func (c *Client) SendComplaint(ctx context.Context, comp complaint.Complaint) error {
	if c == nil {
		return nil
	}

	text := fmt.Sprintf(
		"📋 <b>Complaint : %s</b>\n\n"+
			"🏢 %s\n"+
			"🏷️ %s · 📅 %s\n"+
			"📡 via %s\n\n"+
			"💬 <b>Details:</b>\n%s\n\n"+
			"📍 %s\n"+
			"📎 %s/upload.html?id=%s",
		html.EscapeString(comp.ID),
		html.EscapeString(comp.Dept),
		html.EscapeString(comp.Type),
		html.EscapeString(comp.Date),
		html.EscapeString(string(comp.Source)),
		html.EscapeString(comp.Desc),
		html.EscapeString(comp.Loc),
		c.publicBase, html.EscapeString(comp.ID),
	)
	return c.send(ctx, text)
}

// SendAlert sends an operational alert, for example a mailbox that keeps failing.
func (c *Client) SendAlert(ctx context.Context, title, detail string, attempts int) error {
	if c == nil {
		return nil
	}
	text := fmt.Sprintf(
		"🚨 <b>%s</b>\n\n"+
			"<b>Error:</b> %s\n"+
			"<b>Consecutive failures:</b> %d\n"+
			"<b>Timestamp:</b> %s",
		html.EscapeString(title),
		html.EscapeString(detail),
		attempts,
		time.Now().Format("2006-01-02 15:04:05"),
	)
	return c.send(ctx, text)
}

func (c *Client) send(ctx context.Context, text string) error {
	if c.debug {
		c.log.Info("debug mode: telegram message not sent", logging.F("text", text))
		return nil
	}
	_, err := c.doRequest(ctx, "sendMessage", Message{
		ChatID:                c.chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	return err
}

// SendPhoto uploads a PNG with a caption.
func (c *Client) SendPhoto(ctx context.Context, caption string, png []byte) error {
	if c == nil {
		return nil
	}
	if c.debug {
		c.log.Info("debug mode: telegram photo not sent", logging.F("bytes", len(png)))
		return nil
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("chat_id", c.chatID)
	_ = w.WriteField("caption", caption)
	fw, err := w.CreateFormFile("photo", "summary.png")
	if err != nil {
		return err
	}
	if _, err := fw.Write(png); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendPhoto"), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := api.Do(c.http, req)
	if err != nil {
		return apperrors.NewCollaboratorError("telegram", "sendPhoto", err)
	}
	_, err = decode("sendPhoto", resp)
	return err
}
