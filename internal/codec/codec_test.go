package codec

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/promobot/internal/domain"
)

func sampleUsers(t *testing.T) *domain.Users {
	t.Helper()
	now := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)

	doc := domain.NewUsers()
	u, _ := doc.Ensure("42", now)
	u.Language = "ro"
	require.NoError(t, u.AddProduct(domain.Product{
		ID:          "3f1c1b8e-6d0a-4f4e-9d55-1b6f7c1b2a10",
		Title:       "Lampă <de birou> & \"LED\"",
		Price:       "129,99 lei",
		Description: "Lumină caldă\nreglabilă",
		SourceURL:   "https://shop.example.com/p/lampa",
		CreatedAt:   now,
	}, 5))
	require.NoError(t, u.Bind(domain.ChannelBinding{
		Platform: domain.PlatformTelegram, Target: "@promo", AutoPost: true, Enabled: true,
	}))
	require.NoError(t, u.Bind(domain.ChannelBinding{
		Platform: domain.PlatformMastodon, Target: "https://mastodon.social", CredentialsRef: "env:MASTODON_TOKEN", Enabled: true,
	}))
	u.AppendHistory(domain.PostEntry{
		ProductID: "3f1c1b8e-6d0a-4f4e-9d55-1b6f7c1b2a10", Platform: domain.PlatformMastodon,
		Timestamp: now, Status: domain.PostFailure, ErrorDetail: "server-error", TextLength: 480, Attempts: 3,
	}, 50)
	u.LastGeneration = &domain.Generation{ProductID: "3f1c1b8e-6d0a-4f4e-9d55-1b6f7c1b2a10", Style: "classic", Text: "🔥 Cumpără!", CreatedAt: now}

	doc.Ensure("7", now.Add(time.Hour))
	return doc
}

func TestRoundTrip(t *testing.T) {
	stats := domain.NewStats()
	stats.TotalUsers = 2
	stats.TotalGenerations = 10
	stats.RecordError("server-error")
	stats.Touch(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name string
		doc  domain.Document
	}{
		{name: "users", doc: sampleUsers(t)},
		{name: "empty users", doc: domain.NewUsers()},
		{name: "stats", doc: stats},
		{name: "empty stats", doc: domain.NewStats()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.doc)
			require.NoError(t, err)

			got, err := Decode(tt.doc.Key(), data)
			require.NoError(t, err)
			require.Equal(t, tt.doc, got)

			again, err := Encode(got)
			require.NoError(t, err)
			require.Equal(t, string(data), string(again))
		})
	}
}

func TestEncodeIsDeterministicAndReadable(t *testing.T) {
	doc := sampleUsers(t)

	a, err := Encode(doc)
	require.NoError(t, err)
	b, err := Encode(doc.Clone())
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.Contains(t, string(a), `"schema_version": 2`)
	require.Contains(t, string(a), `"kind": "users"`)
	require.Contains(t, string(a), `<de birou> &`)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		key  domain.DocumentKey
		data string
	}{
		{name: "garbage", key: domain.UsersKey, data: `{{{`},
		{name: "truncated", key: domain.UsersKey, data: `{"schema_version": 2, "kind": "users", "data": {"users": {`},
		{name: "unknown top-level field", key: domain.UsersKey, data: `{"schema_version": 2, "kind": "users", "data": {"users": {}}, "extra": 1}`},
		{name: "bare legacy map", key: domain.UsersKey, data: `{"42": {"products": []}}`},
		{name: "kind mismatch", key: domain.UsersKey, data: `{"schema_version": 2, "kind": "stats", "data": {}}`},
		{name: "missing data", key: domain.StatsKey, data: `{"schema_version": 2, "kind": "stats"}`},
		{name: "null data", key: domain.StatsKey, data: `{"schema_version": 2, "kind": "stats", "data": null}`},
		{name: "missing version", key: domain.StatsKey, data: `{"kind": "stats", "data": {}}`},
		{name: "trailing data", key: domain.StatsKey, data: `{"schema_version": 2, "kind": "stats", "data": {}} {}`},
		{name: "invalid shape", key: domain.StatsKey, data: `{"schema_version": 2, "kind": "stats", "data": {"total_posts": -1}}`},
		{name: "wrong field type", key: domain.StatsKey, data: `{"schema_version": 2, "kind": "stats", "data": {"total_posts": "many"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.key, []byte(tt.data))
			var decErr *DecodeError
			require.ErrorAs(t, err, &decErr)
			require.Equal(t, tt.key, decErr.Key)
		})
	}
}

func TestDecodeFutureVersionFailsClosed(t *testing.T) {
	_, err := Decode(domain.StatsKey, []byte(`{"schema_version": 99, "kind": "stats", "data": {}}`))

	var schemaErr *UnsupportedSchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, 99, schemaErr.Version)
	require.Equal(t, CurrentVersion, schemaErr.Supported)

	var decErr *DecodeError
	require.False(t, errors.As(err, &decErr))
}

const v1Users = `{
  "schema_version": 1,
  "kind": "users",
  "data": {
    "42": {
      "language": "ru",
      "created_at": "2024-05-01T10:00:00.123456",
      "products": [
        {"name": "Kettle", "price": "$20", "description": "Steel", "url": "https://shop.example.com/kettle", "created_at": "2024-05-01T10:05:00"},
        {"name": "Mug", "price": "$5", "description": "", "url": "https://shop.example.com/mug", "created_at": "2024-05-02 08:00:00"}
      ],
      "channel_info": {"channel_id": "@kitchen", "auto_post": true},
      "post_history": [
        {"product": "Kettle", "timestamp": "2024-05-01T11:00:00", "status": "success"},
        {"product": "Toaster", "timestamp": "2024-05-01T12:00:00", "status": "failed: chat not found"}
      ],
      "last_generated_promo": "Boil faster!"
    }
  }
}`

func TestDecodeMigratesV1Users(t *testing.T) {
	doc, err := Decode(domain.UsersKey, []byte(v1Users))
	require.NoError(t, err)

	users := doc.(*domain.Users)
	u, ok := users.Get("42")
	require.True(t, ok)
	require.Equal(t, "ru", u.Language)
	require.Len(t, u.Products, 2)
	require.Equal(t, "Kettle", u.Products[0].Title)
	require.Equal(t, "https://shop.example.com/kettle", u.Products[0].SourceURL)
	require.NotEmpty(t, u.Products[0].ID)
	require.NotEqual(t, u.Products[0].ID, u.Products[1].ID)
	require.Equal(t, time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC), u.Products[1].CreatedAt)

	binding := u.Channels[domain.PlatformTelegram]
	require.Equal(t, "@kitchen", binding.Target)
	require.True(t, binding.AutoPost)
	require.True(t, binding.Enabled)

	require.Len(t, u.History, 2)
	require.Equal(t, u.Products[0].ID, u.History[0].ProductID)
	require.Equal(t, domain.PostSuccess, u.History[0].Status)
	require.Equal(t, domain.PostFailure, u.History[1].Status)
	require.Equal(t, "chat not found", u.History[1].ErrorDetail)
	require.Equal(t, "Boil faster!", u.LastGeneration.Text)

	// Migration is deterministic and the migrated document round-trips.
	again, err := Decode(domain.UsersKey, []byte(v1Users))
	require.NoError(t, err)
	require.Equal(t, doc, again)

	data, err := Encode(doc)
	require.NoError(t, err)
	back, err := Decode(domain.UsersKey, data)
	require.NoError(t, err)
	require.Equal(t, doc, back)
}

func TestDecodeMigratesV1Stats(t *testing.T) {
	data := `{"schema_version": 1, "kind": "stats", "data": {
		"total_users": 3, "total_messages": 40, "total_promos_generated": 12,
		"total_posts_to_channels": 7, "start_time": "2024-05-01T10:00:00", "last_updated": "2024-06-01T10:00:00"}}`

	doc, err := Decode(domain.StatsKey, []byte(data))
	require.NoError(t, err)

	st := doc.(*domain.Stats)
	require.Equal(t, int64(3), st.TotalUsers)
	require.Equal(t, int64(40), st.TotalMessages)
	require.Equal(t, int64(12), st.TotalGenerations)
	require.Equal(t, int64(7), st.TotalPosts)
	require.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), st.StartedAt)
	require.NotNil(t, st.ErrorsByKind)
}
