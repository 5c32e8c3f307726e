package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/MrSnakeDoc/promobot/internal/logger"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"
)

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// OpenAI calls the chat completions endpoint.
type OpenAI struct {
	cfg    OpenAIConfig
	client *resty.Client
	logger logger.Logger
}

var _ Generator = (*OpenAI)(nil)

func NewOpenAI(cfg OpenAIConfig, log logger.Logger) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 300
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &OpenAI{cfg: cfg, client: client, logger: log}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (o *OpenAI) Generate(ctx context.Context, prompt Prompt) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if prompt.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: prompt.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt.User})

	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model:       o.cfg.Model,
			Messages:    messages,
			MaxTokens:   o.cfg.MaxTokens,
			Temperature: o.cfg.Temperature,
		}).
		Post("/chat/completions")
	if err != nil {
		if isTimeout(ctx, err) {
			return "", &Error{Kind: KindTimeout, Err: err}
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &Error{Kind: KindInvalidResponse, Err: err}
	}

	if !resp.IsSuccess() {
		var body apiError
		_ = json.Unmarshal(resp.Body(), &body)
		msg := body.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		kind := KindInvalidResponse
		switch {
		case resp.StatusCode() == 429:
			// Both quota exhaustion and throttling mean the key can't be used right now.
			kind = KindQuotaExceeded
		case resp.StatusCode() == 408 || resp.StatusCode() == 504:
			kind = KindTimeout
		}
		return "", &Error{Kind: kind, Status: resp.StatusCode(), Err: errors.New(msg)}
	}

	var body chatResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", &Error{Kind: KindInvalidResponse, Status: resp.StatusCode(), Err: fmt.Errorf("malformed response: %w", err)}
	}
	if len(body.Choices) == 0 {
		return "", &Error{Kind: KindInvalidResponse, Status: resp.StatusCode(), Err: errors.New("no choices in response")}
	}
	text := strings.TrimSpace(body.Choices[0].Message.Content)
	if text == "" {
		return "", &Error{Kind: KindInvalidResponse, Status: resp.StatusCode(), Err: errors.New("empty completion")}
	}

	o.logger.Debug("text generated",
		logger.String("model", o.cfg.Model),
		logger.Int("tokens", body.Usage.TotalTokens),
		logger.String("finish_reason", body.Choices[0].FinishReason))
	return text, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
