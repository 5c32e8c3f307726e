package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/promobot/internal/app"
	"github.com/MrSnakeDoc/promobot/internal/config"
	"github.com/MrSnakeDoc/promobot/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:           t.TempDir(),
		StoreBackend:      config.BackendFile,
		BackupEvery:       1,
		MaxBackups:        3,
		BackupMaxAge:      7 * 24 * time.Hour,
		MaxProducts:       5,
		HistoryLimit:      50,
		RateLimitRequests: 10,
		RateLimitWindow:   time.Minute,
		PostLimit:         5,
		PostWindow:        5 * time.Minute,
		RetryBase:         time.Millisecond,
		OpenAIAPIKey:      "test",
		OpenAIBaseURL:     "http://127.0.0.1:1",
	}
}

// run executes one command line against cfg, as a fresh process would.
func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(&RootOptions{
		NewApp: func(ctx context.Context) (*app.App, error) {
			return app.New(ctx, cfg, logger.Nop())
		},
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "promobot", cmd.Use)

	userFlag := cmd.PersistentFlags().Lookup("user")
	require.NotNil(t, userFlag)
	assert.Equal(t, "u", userFlag.Shorthand)
	assert.Equal(t, defaultOperator, userFlag.DefValue)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"serve"}, {"stats"}, {"version"}, {"generate"}, {"post"}, {"promote"},
		{"language"}, {"history"},
		{"product", "add"}, {"product", "list"}, {"product", "remove"},
		{"channel", "bind"}, {"channel", "unbind"},
		{"backups", "list"}, {"backups", "prune"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, testConfig(t), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "promobot ")
	assert.Contains(t, out, "commit=")
}

func TestSettingsFlow(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "-u", "42", "channel", "bind", "Telegram", "@promo_chan", "--auto-post")
	require.NoError(t, err)
	assert.Contains(t, out, "telegram bound to @promo_chan")

	out, err = run(t, cfg, "-u", "42", "language", "ru-RU")
	require.NoError(t, err)
	assert.Contains(t, out, "language set to ru")

	_, err = run(t, cfg, "-u", "42", "language", "de")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Supported languages")

	out, err = run(t, cfg, "-u", "42", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No posts yet.")

	out, err = run(t, cfg, "-u", "42", "product", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No products yet.")

	_, err = run(t, cfg, "-u", "42", "post", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "That product does not exist.")

	out, err = run(t, cfg, "-u", "42", "channel", "unbind", "telegram")
	require.NoError(t, err)
	assert.Contains(t, out, "telegram unbound")

	_, err = run(t, cfg, "-u", "42", "channel", "unbind", "telegram")
	require.Error(t, err)
}

func TestStatsAndBackups(t *testing.T) {
	cfg := testConfig(t)

	_, err := run(t, cfg, "-u", "7", "language", "en")
	require.NoError(t, err)
	_, err = run(t, cfg, "-u", "8", "language", "ro")
	require.NoError(t, err)

	out, err := run(t, cfg, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "users")
	assert.Contains(t, out, "messages")

	out, err = run(t, cfg, "backups", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "users")

	out, err = run(t, cfg, "backups", "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned 0 backup(s)")
}

func TestPrivateURLIsRefused(t *testing.T) {
	_, err := run(t, testConfig(t), "product", "add", "http://127.0.0.1/item")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private network")
}

func TestEmptyUserIsRejected(t *testing.T) {
	_, err := run(t, testConfig(t), "-u", "", "history")
	require.Error(t, err)
}
