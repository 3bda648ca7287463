package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxMediaBytes caps downloaded voice messages.
const MaxMediaBytes = 100 << 20

var (
	// ErrMediaNotFound is returned when the provider does not know the media id.
	ErrMediaNotFound = errors.New("media not found")
	// ErrMediaTooLarge is returned when a download exceeds MaxMediaBytes.
	ErrMediaTooLarge = errors.New("media too large")
)

// Provider talks to a chat platform on behalf of interview owners.
type Provider interface {
	Name() string
	// Notify sends a text message and reports whether it was delivered.
	// Failures are logged, never returned.
	Notify(ctx context.Context, to, text string) bool
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider string

	WhatsAppToken         string
	WhatsAppPhoneNumberID string
	WhatsAppAPIVersion    string
	WhatsAppBaseURL       string

	TelegramBotToken string
	TelegramBaseURL  string

	// LocalMediaDir serves media ids as file names for the log provider.
	LocalMediaDir string

	Timeout time.Duration
}

// New builds the provider named in cfg.
func New(cfg Config) (Provider, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.Timeout <= 0 {
		client.Timeout = 60 * time.Second
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "whatsapp":
		return NewWhatsApp(WhatsAppOptions{
			Token:         cfg.WhatsAppToken,
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
			APIVersion:    cfg.WhatsAppAPIVersion,
			BaseURL:       cfg.WhatsAppBaseURL,
			HTTPClient:    client,
		})
	case "telegram":
		return NewTelegram(TelegramOptions{
			Token:      cfg.TelegramBotToken,
			BaseURL:    cfg.TelegramBaseURL,
			HTTPClient: client,
		})
	case "", "log":
		return &LogProvider{MediaDir: cfg.LocalMediaDir}, nil
	default:
		return nil, fmt.Errorf("unknown messaging provider: %s", cfg.Provider)
	}
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxMediaBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxMediaBytes {
		return nil, ErrMediaTooLarge
	}
	return data, nil
}

func snippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(data))
}
