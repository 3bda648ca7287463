package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"interview-backend/internal/shared/telemetry"
)

// TelegramOptions configures the Telegram Bot API client.
type TelegramOptions struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
}

// Telegram implements Provider on the Telegram Bot API. Owner refs are chat ids.
type Telegram struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewTelegram validates opts and builds a client.
func NewTelegram(opts TelegramOptions) (*Telegram, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Telegram{token: opts.Token, baseURL: base, httpClient: client}, nil
}

func (t *Telegram) Name() string { return "telegram" }

type telegramEnvelope struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Notify sends a plain text message to a chat.
func (t *Telegram) Notify(ctx context.Context, to, text string) bool {
	payload, err := json.Marshal(map[string]string{"chat_id": to, "text": text})
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.method("sendMessage"), bytes.NewReader(payload))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if _, err := t.call(req); err != nil {
		telemetry.Warn("messaging.send.failed", map[string]any{"provider": t.Name(), "to": to, "error": err})
		return false
	}
	telemetry.Debug("messaging.send.ok", map[string]any{"provider": t.Name(), "to": to, "length": len(text)})
	return true
}

// DownloadMedia resolves a file id to a path with getFile and downloads it.
func (t *Telegram) DownloadMedia(ctx context.Context, mediaID string) ([]byte, error) {
	if strings.TrimSpace(mediaID) == "" {
		return nil, ErrMediaNotFound
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.method("getFile")+"?file_id="+url.QueryEscape(mediaID), nil)
	if err != nil {
		return nil, err
	}
	result, err := t.call(req)
	if err != nil {
		return nil, fmt.Errorf("telegram getFile: %w", err)
	}
	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(result, &file); err != nil || file.FilePath == "" {
		return nil, fmt.Errorf("telegram file %s: %w", mediaID, ErrMediaNotFound)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/file/bot"+t.token+"/"+file.FilePath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram download: status %d", resp.StatusCode)
	}
	return readLimited(resp.Body)
}

func (t *Telegram) method(name string) string {
	return t.baseURL + "/bot" + t.token + "/" + name
}

func (t *Telegram) call(req *http.Request) (json.RawMessage, error) {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var env telegramEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("status %d: decode: %w", resp.StatusCode, err)
	}
	if !env.OK {
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("%s: %w", env.Description, ErrMediaNotFound)
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, env.Description)
	}
	return env.Result, nil
}

var _ Provider = (*Telegram)(nil)
