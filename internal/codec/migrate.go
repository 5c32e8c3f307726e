package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/promobot/internal/domain"
)

// migration rewrites the data payload of one schema version into the next one.
type migration func(key domain.DocumentKey, raw json.RawMessage) (json.RawMessage, error)

var migrations = map[int]migration{
	1: migrateV1,
}

func migrate(key domain.DocumentKey, from int, raw json.RawMessage) (json.RawMessage, error) {
	for v := from; v < CurrentVersion; v++ {
		step, ok := migrations[v]
		if !ok {
			return nil, &DecodeError{Key: key, Reason: fmt.Sprintf("no migration from schema_version %d", v)}
		}
		next, err := step(key, raw)
		if err != nil {
			return nil, &DecodeError{Key: key, Reason: fmt.Sprintf("migration from schema_version %d", v), Err: err}
		}
		raw = next
	}
	return raw, nil
}

// v1 is the layout of the first release: users keyed by id at the top of the
// payload, products identified by name, a single Telegram channel and
// free-form post statuses.

type v1Product struct {
	Name        string `json:"name"`
	Price       string `json:"price"`
	Description string `json:"description"`
	URL         string `json:"url"`
	CreatedAt   string `json:"created_at"`
}

type v1Channel struct {
	ChannelID string `json:"channel_id"`
	AutoPost  bool   `json:"auto_post"`
}

type v1Post struct {
	Product   string `json:"product"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

type v1User struct {
	Language           string      `json:"language"`
	Products           []v1Product `json:"products"`
	ChannelInfo        *v1Channel  `json:"channel_info"`
	PostHistory        []v1Post    `json:"post_history"`
	CreatedAt          string      `json:"created_at"`
	LastGeneratedPromo string      `json:"last_generated_promo"`
}

type v1Stats struct {
	TotalUsers           int64  `json:"total_users"`
	TotalMessages        int64  `json:"total_messages"`
	TotalPromos          int64  `json:"total_promos_generated"`
	TotalPostsToChannels int64  `json:"total_posts_to_channels"`
	StartTime            string `json:"start_time"`
	LastUpdated          string `json:"last_updated"`
}

func migrateV1(key domain.DocumentKey, raw json.RawMessage) (json.RawMessage, error) {
	switch key {
	case domain.UsersKey:
		var legacy map[string]v1User
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return nil, err
		}
		doc := domain.NewUsers()
		for id, lu := range legacy {
			doc.Users[domain.Identity(id)] = migrateV1User(domain.Identity(id), lu)
		}
		return json.Marshal(doc)

	case domain.StatsKey:
		var legacy v1Stats
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return nil, err
		}
		st := domain.NewStats()
		st.TotalUsers = legacy.TotalUsers
		st.TotalMessages = legacy.TotalMessages
		st.TotalGenerations = legacy.TotalPromos
		st.TotalPosts = legacy.TotalPostsToChannels
		st.StartedAt = parseLegacyTime(legacy.StartTime)
		st.UpdatedAt = parseLegacyTime(legacy.LastUpdated)
		return json.Marshal(st)

	default:
		return nil, fmt.Errorf("unknown document %q", key)
	}
}

func migrateV1User(id domain.Identity, lu v1User) *domain.User {
	created := parseLegacyTime(lu.CreatedAt)
	u := domain.NewUser(id, created)
	if lang, ok := domain.MatchLanguage(lu.Language); ok {
		u.Language = lang
	}

	byName := make(map[string]string, len(lu.Products))
	for i, lp := range lu.Products {
		p := domain.Product{
			ID:          legacyProductID(id, strconv.Itoa(i)+"|"+lp.URL+"|"+lp.Name),
			Title:       lp.Name,
			Price:       lp.Price,
			Description: lp.Description,
			SourceURL:   lp.URL,
			CreatedAt:   parseLegacyTime(lp.CreatedAt),
		}
		u.Products = append(u.Products, p)
		if _, dup := byName[lp.Name]; !dup {
			byName[lp.Name] = p.ID
		}
	}

	if ch := lu.ChannelInfo; ch != nil && ch.ChannelID != "" {
		u.Channels = map[domain.Platform]domain.ChannelBinding{
			domain.PlatformTelegram: {
				Platform: domain.PlatformTelegram,
				Target:   ch.ChannelID,
				AutoPost: ch.AutoPost,
				Enabled:  true,
			},
		}
	}

	for _, lp := range lu.PostHistory {
		productID, ok := byName[lp.Product]
		if !ok {
			productID = legacyProductID(id, "deleted|"+lp.Product)
		}
		entry := domain.PostEntry{
			ProductID: productID,
			Platform:  domain.PlatformTelegram,
			Timestamp: parseLegacyTime(lp.Timestamp),
			Status:    domain.PostSuccess,
			Attempts:  1,
		}
		if lp.Status != "success" {
			entry.Status = domain.PostFailure
			entry.ErrorDetail = strings.TrimSpace(strings.TrimPrefix(lp.Status, "failed:"))
		}
		u.History = append(u.History, entry)
	}

	if lu.LastGeneratedPromo != "" {
		u.LastGeneration = &domain.Generation{Text: lu.LastGeneratedPromo, CreatedAt: created}
	}
	u.UpdatedAt = created
	return u
}

// legacyProductID derives a stable id so migrating the same bytes twice
// yields the same document.
func legacyProductID(id domain.Identity, seed string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("promobot:"+string(id)+"|"+seed)).String()
}

var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseLegacyTime reads the naive timestamps of v1 files as UTC.
func parseLegacyTime(s string) time.Time {
	for _, layout := range legacyTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
