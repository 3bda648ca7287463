package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"interview-backend/internal/shared/telemetry"
)

// WhatsAppOptions configures the WhatsApp Cloud API client.
type WhatsAppOptions struct {
	Token         string
	PhoneNumberID string
	APIVersion    string
	BaseURL       string
	HTTPClient    *http.Client
}

// WhatsApp implements Provider on the WhatsApp Cloud API.
type WhatsApp struct {
	token         string
	phoneNumberID string
	baseURL       string
	httpClient    *http.Client
}

// NewWhatsApp validates opts and builds a client.
func NewWhatsApp(opts WhatsAppOptions) (*WhatsApp, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, fmt.Errorf("WHATSAPP_TOKEN is required")
	}
	if strings.TrimSpace(opts.PhoneNumberID) == "" {
		return nil, fmt.Errorf("WHATSAPP_PHONE_NUMBER_ID is required")
	}
	version := strings.TrimSpace(opts.APIVersion)
	if version == "" {
		version = "v21.0"
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = "https://graph.facebook.com"
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &WhatsApp{
		token:         opts.Token,
		phoneNumberID: opts.PhoneNumberID,
		baseURL:       base + "/" + version,
		httpClient:    client,
	}, nil
}

func (w *WhatsApp) Name() string { return "whatsapp" }

type whatsAppText struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// Notify sends a text message to a WhatsApp number.
func (w *WhatsApp) Notify(ctx context.Context, to, text string) bool {
	msg := whatsAppText{MessagingProduct: "whatsapp", To: to, Type: "text"}
	msg.Text.Body = text
	payload, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/"+w.phoneNumberID+"/messages", bytes.NewReader(payload))
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		telemetry.Warn("messaging.send.failed", map[string]any{"provider": w.Name(), "to": to, "error": err})
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		telemetry.Warn("messaging.send.failed", map[string]any{
			"provider": w.Name(),
			"to":       to,
			"status":   resp.StatusCode,
			"body":     snippet(resp.Body),
		})
		return false
	}
	telemetry.Debug("messaging.send.ok", map[string]any{"provider": w.Name(), "to": to, "length": len(text)})
	return true
}

// DownloadMedia resolves the media URL and then fetches the bytes.
func (w *WhatsApp) DownloadMedia(ctx context.Context, mediaID string) ([]byte, error) {
	if strings.TrimSpace(mediaID) == "" {
		return nil, ErrMediaNotFound
	}
	meta, err := w.get(ctx, w.baseURL+"/"+mediaID)
	if err != nil {
		return nil, fmt.Errorf("whatsapp media lookup: %w", err)
	}
	defer meta.Body.Close()
	var info struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(meta.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("whatsapp media lookup: %w", err)
	}
	if info.URL == "" {
		return nil, fmt.Errorf("whatsapp media %s: %w", mediaID, ErrMediaNotFound)
	}

	file, err := w.get(ctx, info.URL)
	if err != nil {
		return nil, fmt.Errorf("whatsapp media download: %w", err)
	}
	defer file.Body.Close()
	return readLimited(file.Body)
}

func (w *WhatsApp) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrMediaNotFound
	case resp.StatusCode != http.StatusOK:
		defer resp.Body.Close()
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, snippet(resp.Body))
	}
	return resp, nil
}

var _ Provider = (*WhatsApp)(nil)
