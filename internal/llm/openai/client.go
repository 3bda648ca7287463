package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"interview-backend/internal/llm"
	"interview-backend/internal/shared/telemetry"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Options configures a Client.
type Options struct {
	APIKey          string
	ChatModel       string
	TranscribeModel string
	// BaseURL overrides the API root, mostly for tests and proxies.
	BaseURL string
	Timeout time.Duration
}

// Client implements llm.Transcriber with Whisper and llm.Analyzer with Chat Completions.
type Client struct {
	apiKey          string
	chatModel       string
	transcribeModel string
	baseURL         string
	httpClient      *http.Client
}

// NewClient constructs a new OpenAI client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(opts.ChatModel) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	transcribeModel := strings.TrimSpace(opts.TranscribeModel)
	if transcribeModel == "" {
		transcribeModel = "whisper-1"
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		apiKey:          opts.APIKey,
		chatModel:       opts.ChatModel,
		transcribeModel: transcribeModel,
		baseURL:         baseURL,
		httpClient:      &http.Client{Timeout: timeout},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type transcriptionResponse struct {
	Text  string    `json:"text"`
	Error *apiError `json:"error,omitempty"`
}

// Analyze asks the chat model for an interview report. Models that reject a
// fixed temperature are retried once with the provider default.
func (c *Client) Analyze(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", errors.New("empty transcript")
	}
	messages := []chatMessage{
		{Role: "system", Content: llm.AnalysisPrompt()},
		{Role: "user", Content: "TRANSCRIPT:\n" + transcript},
	}
	withTemp := !isGPT5(c.chatModel)
	content, err := c.chat(ctx, messages, withTemp)
	if err != nil && withTemp && isTemperatureUnsupported(err) {
		telemetry.Warn("llm.temperature.retry", map[string]any{"model": c.chatModel})
		content, err = c.chat(ctx, messages, false)
	}
	return content, err
}

func (c *Client) chat(ctx context.Context, messages []chatMessage, withTemp bool) (string, error) {
	reqBody := chatRequest{Model: c.chatModel, Messages: messages}
	if withTemp {
		temp := float32(0.2)
		reqBody.Temperature = &temp
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("openai response parse: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("openai error: %s (%s)", parsed.Error.Message, parsed.Error.Type)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openai response missing choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("openai response empty content")
	}

	fields := map[string]any{"model": c.chatModel, "response_id": parsed.ID}
	if parsed.Usage != nil {
		fields["prompt_tokens"] = parsed.Usage.PromptTokens
		fields["completion_tokens"] = parsed.Usage.CompletionTokens
		fields["total_tokens"] = parsed.Usage.TotalTokens
	}
	telemetry.Info("llm.response", fields)
	return content, nil
}

// Transcribe sends one audio chunk to the transcription endpoint.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("empty audio chunk")
	}
	if filename == "" {
		filename = "audio.ogg"
	}
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("model", c.transcribeModel); err != nil {
		return "", err
	}
	if err := form.WriteField("response_format", "json"); err != nil {
		return "", err
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	var parsed transcriptionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("openai transcription parse: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("openai error: %s (%s)", parsed.Error.Message, parsed.Error.Type)
	}
	text := strings.TrimSpace(parsed.Text)
	if text == "" {
		return "", fmt.Errorf("openai transcription empty")
	}
	return text, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, fmt.Errorf("openai request timeout: %w", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("openai status %d", resp.StatusCode)
	}
	return body, nil
}

func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}

func isTemperatureUnsupported(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "temperature") && strings.Contains(msg, "unsupported")
}

var (
	_ llm.Transcriber = (*Client)(nil)
	_ llm.Analyzer    = (*Client)(nil)
)
