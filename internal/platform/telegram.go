package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/MrSnakeDoc/promobot/internal/domain"
	"github.com/MrSnakeDoc/promobot/internal/logger"
)

const (
	DefaultTelegramAPIURL = "https://api.telegram.org"
	TelegramMaxLength     = 4096
	// SecretTelegramToken names the bot token in the credentials table.
	SecretTelegramToken = "telegram"
)

type TelegramConfig struct {
	APIURL  string
	RPS     float64 // global send pacing; Telegram allows about 30 msg/s per bot
	Timeout time.Duration
}

// Telegram posts to channels through the Bot API sendMessage method.
type Telegram struct {
	client  *resty.Client
	limiter *rate.Limiter
	creds   *Credentials
	logger  logger.Logger
}

var _ Publisher = (*Telegram)(nil)

func NewTelegram(cfg TelegramConfig, creds *Credentials, log logger.Logger) *Telegram {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultTelegramAPIURL
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 25
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Telegram{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), 1),
		creds:   creds,
		logger:  log,
	}
}

func (t *Telegram) Platform() domain.Platform { return domain.PlatformTelegram }
func (t *Telegram) MaxLength() int            { return TelegramMaxLength }

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
	Result      struct {
		MessageID int64 `json:"message_id"`
		Date      int64 `json:"date"`
	} `json:"result"`
	Parameters struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (t *Telegram) Publish(ctx context.Context, text string, binding domain.ChannelBinding) (Receipt, error) {
	if binding.Target == "" {
		return Receipt{}, t.fail(KindRejected, 0, errors.New("no chat id bound"))
	}
	token, err := t.creds.Resolve(binding.CredentialsRef, SecretTelegramToken)
	if err != nil {
		return Receipt{}, t.fail(KindUnauthorized, 0, err)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return Receipt{}, err
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id":                  binding.Target,
			"text":                     text,
			"disable_web_page_preview": false,
		}).
		Post("/bot" + token + "/sendMessage")
	if err != nil {
		if ctx.Err() != nil {
			return Receipt{}, ctx.Err()
		}
		return Receipt{}, t.fail(KindServerError, 0, redact(err, token))
	}

	var body telegramResponse
	_ = json.Unmarshal(resp.Body(), &body)

	if !resp.IsSuccess() || !body.OK {
		status := resp.StatusCode()
		desc := body.Description
		if desc == "" {
			desc = resp.Status()
		}
		kind := classify(status, desc, telegramTooLong)
		if kind == KindRateLimited && body.Parameters.RetryAfter > 0 {
			desc += " (retry after " + strconv.Itoa(body.Parameters.RetryAfter) + "s)"
		}
		return Receipt{}, t.fail(kind, status, errors.New(desc))
	}

	posted := time.Now().UTC()
	if body.Result.Date > 0 {
		posted = time.Unix(body.Result.Date, 0).UTC()
	}
	return Receipt{
		RemoteID: strconv.FormatInt(body.Result.MessageID, 10),
		PostedAt: posted,
	}, nil
}

func (t *Telegram) fail(kind Kind, status int, err error) error {
	return &Error{Platform: domain.PlatformTelegram, Kind: kind, Status: status, Err: err}
}

func telegramTooLong(desc string) bool {
	return strings.Contains(desc, "too long")
}

// redact strips the bot token from transport errors, which include the URL.
func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "<token>"))
}
