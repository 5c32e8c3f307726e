package platform

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/MrSnakeDoc/promobot/internal/domain"
	"github.com/MrSnakeDoc/promobot/internal/logger"
)

const (
	DefaultMastodonMaxLength = 500
	// SecretMastodonToken names the access token in the credentials table.
	SecretMastodonToken = "mastodon"
)

type MastodonConfig struct {
	// Instance is used when a binding has no target instance.
	Instance   string
	MaxLength  int
	Visibility string
	Timeout    time.Duration
}

// Mastodon posts statuses through the REST API.
type Mastodon struct {
	cfg    MastodonConfig
	client *resty.Client
	creds  *Credentials
	logger logger.Logger
}

var _ Publisher = (*Mastodon)(nil)

func NewMastodon(cfg MastodonConfig, creds *Credentials, log logger.Logger) *Mastodon {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMastodonMaxLength
	}
	if cfg.Visibility == "" {
		cfg.Visibility = "public"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Mastodon{
		cfg:    cfg,
		client: resty.New().SetTimeout(cfg.Timeout),
		creds:  creds,
		logger: log,
	}
}

func (m *Mastodon) Platform() domain.Platform { return domain.PlatformMastodon }
func (m *Mastodon) MaxLength() int            { return m.cfg.MaxLength }

type mastodonStatus struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

type mastodonError struct {
	Error string `json:"error"`
}

func (m *Mastodon) Publish(ctx context.Context, text string, binding domain.ChannelBinding) (Receipt, error) {
	instance := strings.TrimRight(binding.Target, "/")
	if instance == "" {
		instance = strings.TrimRight(m.cfg.Instance, "/")
	}
	if instance == "" {
		return Receipt{}, m.fail(KindRejected, 0, errors.New("no mastodon instance configured"))
	}
	token, err := m.creds.Resolve(binding.CredentialsRef, SecretMastodonToken)
	if err != nil {
		return Receipt{}, m.fail(KindUnauthorized, 0, err)
	}

	req := m.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetFormData(map[string]string{
			"status":     text,
			"visibility": m.cfg.Visibility,
		})
	if key := IdempotencyKey(ctx); key != "" {
		req.SetHeader("Idempotency-Key", key)
	}

	resp, err := req.Post(instance + "/api/v1/statuses")
	if err != nil {
		if ctx.Err() != nil {
			return Receipt{}, ctx.Err()
		}
		return Receipt{}, m.fail(KindServerError, 0, err)
	}

	if !resp.IsSuccess() {
		var body mastodonError
		_ = json.Unmarshal(resp.Body(), &body)
		msg := body.Error
		if msg == "" {
			msg = resp.Status()
		}
		status := resp.StatusCode()
		return Receipt{}, m.fail(classify(status, msg, mastodonTooLong), status, errors.New(msg))
	}

	var status mastodonStatus
	if err := json.Unmarshal(resp.Body(), &status); err != nil || status.ID == "" {
		// The status was accepted; a retry would post it twice.
		m.logger.Warn("mastodon accepted the status but the response did not parse",
			logger.String("instance", instance),
			logger.Int("status", resp.StatusCode()))
	}
	if status.CreatedAt.IsZero() {
		status.CreatedAt = time.Now()
	}
	return Receipt{RemoteID: status.ID, URL: status.URL, PostedAt: status.CreatedAt.UTC()}, nil
}

func (m *Mastodon) fail(kind Kind, status int, err error) error {
	return &Error{Platform: domain.PlatformMastodon, Kind: kind, Status: status, Err: err}
}

func mastodonTooLong(msg string) bool {
	return strings.Contains(msg, "character limit") || strings.Contains(msg, "too long")
}
