package platform

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/promobot/internal/domain"
	"github.com/MrSnakeDoc/promobot/internal/logger"
)

func testCreds() *Credentials {
	return NewCredentials(map[string]string{
		SecretTelegramToken: "123:abc",
		SecretMastodonToken: "masto-token",
		"shop-bot":          "999:zzz",
	})
}

func TestCredentialsResolve(t *testing.T) {
	c := testCreds()
	c.lookup = func(name string) (string, bool) {
		if name == "SHOP_TOKEN" {
			return "from-env", true
		}
		return "", false
	}

	tests := []struct {
		name     string
		ref      string
		fallback string
		want     string
		wantErr  bool
	}{
		{name: "fallback", fallback: SecretTelegramToken, want: "123:abc"},
		{name: "named secret", ref: "shop-bot", fallback: SecretTelegramToken, want: "999:zzz"},
		{name: "environment", ref: "env:SHOP_TOKEN", want: "from-env"},
		{name: "missing env", ref: "env:NOPE", wantErr: true},
		{name: "unknown secret", ref: "nope", wantErr: true},
		{name: "nothing", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Resolve(tt.ref, tt.fallback)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNoCredentials)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTelegramPublish(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":77,"date":1714557600}}`)
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{APIURL: srv.URL}, testCreds(), logger.Nop())
	receipt, err := tg.Publish(context.Background(), "hello", domain.ChannelBinding{
		Platform: domain.PlatformTelegram,
		Target:   "@shop",
	})
	require.NoError(t, err)
	require.Equal(t, "77", receipt.RemoteID)
	require.Equal(t, int64(1714557600), receipt.PostedAt.Unix())
	require.Equal(t, "@shop", got["chat_id"])
	require.Equal(t, "hello", got["text"])
}

func TestTelegramFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		want      Kind
		retryable bool
	}{
		{name: "bad token", status: 401, body: `{"ok":false,"error_code":401,"description":"Unauthorized"}`, want: KindUnauthorized},
		{name: "not admin", status: 403, body: `{"ok":false,"error_code":403,"description":"Forbidden: bot is not a member of the channel chat"}`, want: KindUnauthorized},
		{name: "too long", status: 400, body: `{"ok":false,"error_code":400,"description":"Bad Request: message is too long"}`, want: KindTooLong, retryable: true},
		{name: "unknown chat", status: 400, body: `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, want: KindRejected},
		{name: "flood", status: 429, body: `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`, want: KindRateLimited, retryable: true},
		{name: "gateway", status: 502, body: `bad gateway`, want: KindServerError, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			tg := NewTelegram(TelegramConfig{APIURL: srv.URL}, testCreds(), logger.Nop())
			_, err := tg.Publish(context.Background(), "hello", domain.ChannelBinding{Target: "@shop"})

			var perr *Error
			require.ErrorAs(t, err, &perr)
			require.Equal(t, tt.want, perr.Kind)
			require.Equal(t, tt.status, perr.Status)
			require.Equal(t, tt.retryable, perr.Retryable())
			require.Equal(t, tt.want, KindOf(err))
		})
	}
}

func TestTelegramTransportErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	tg := NewTelegram(TelegramConfig{APIURL: url}, testCreds(), logger.Nop())
	_, err := tg.Publish(context.Background(), "hello", domain.ChannelBinding{Target: "@shop"})
	require.Equal(t, KindServerError, KindOf(err))
	require.NotContains(t, err.Error(), "123:abc")
}

func TestTelegramMissingCredentials(t *testing.T) {
	tg := NewTelegram(TelegramConfig{APIURL: "http://127.0.0.1:1"}, NewCredentials(nil), logger.Nop())
	_, err := tg.Publish(context.Background(), "hello", domain.ChannelBinding{Target: "@shop"})
	require.Equal(t, KindUnauthorized, KindOf(err))
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestMastodonPublish(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/statuses", r.URL.Path)
		assert.Equal(t, "Bearer masto-token", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "hello fediverse", r.PostForm.Get("status"))
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		_, _ = io.WriteString(w, `{"id":"110","url":"https://social.example/@shop/110","created_at":"2024-05-01T10:00:00.000Z"}`)
	}))
	defer srv.Close()

	m := NewMastodon(MastodonConfig{Instance: srv.URL}, testCreds(), logger.Nop())
	require.Equal(t, DefaultMastodonMaxLength, m.MaxLength())

	ctx := WithIdempotencyKey(context.Background(), "chain-1")
	for i := 0; i < 2; i++ {
		receipt, err := m.Publish(ctx, "hello fediverse", domain.ChannelBinding{Platform: domain.PlatformMastodon})
		require.NoError(t, err)
		require.Equal(t, "110", receipt.RemoteID)
		require.True(t, strings.HasSuffix(receipt.URL, "/110"))
	}
	require.Equal(t, []string{"chain-1", "chain-1"}, keys)
}

func TestMastodonFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{name: "revoked token", status: 401, body: `{"error":"The access token is invalid"}`, want: KindUnauthorized},
		{name: "too long", status: 422, body: `{"error":"Validation failed: Text character limit of 500 exceeded"}`, want: KindTooLong},
		{name: "blank", status: 422, body: `{"error":"Validation failed: Text can't be blank"}`, want: KindRejected},
		{name: "throttled", status: 429, body: `{"error":"Too many requests"}`, want: KindRateLimited},
		{name: "down", status: 503, body: ``, want: KindServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			m := NewMastodon(MastodonConfig{}, testCreds(), logger.Nop())
			_, err := m.Publish(context.Background(), "hello", domain.ChannelBinding{Target: srv.URL})
			require.Equal(t, tt.want, KindOf(err))
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(
		NewTelegram(TelegramConfig{}, testCreds(), logger.Nop()),
		NewMastodon(MastodonConfig{}, testCreds(), logger.Nop()),
	)
	require.Len(t, r, 2)
	require.Equal(t, TelegramMaxLength, r[domain.PlatformTelegram].MaxLength())
}
