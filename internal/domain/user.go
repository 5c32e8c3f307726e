package domain

import (
	"maps"
	"slices"
	"sort"
	"time"
)

// Identity is the stable key of one end-user (a Telegram user id in practice).
type Identity string

// Platform names an external publishing target.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformMastodon Platform = "mastodon"
)

// Platforms returns every supported platform in a stable order.
func Platforms() []Platform {
	return []Platform{PlatformMastodon, PlatformTelegram}
}

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	return p == PlatformTelegram || p == PlatformMastodon
}

// Product is a product page the user asked to promote.
type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Price       string    `json:"price"`
	Description string    `json:"description"`
	SourceURL   string    `json:"source_url"`
	Brand       string    `json:"brand,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChannelBinding is a configured publishing target.
// Secrets are never stored here, only a reference resolved at send time.
type ChannelBinding struct {
	Platform       Platform `json:"platform"`
	Target         string   `json:"target"`
	CredentialsRef string   `json:"credentials_ref,omitempty"`
	AutoPost       bool     `json:"auto_post"`
	Enabled        bool     `json:"enabled"`
}

type PostStatus string

const (
	PostSuccess PostStatus = "success"
	PostFailure PostStatus = "failure"
)

// PostEntry records the final state of one distribution attempt chain to one platform.
type PostEntry struct {
	ProductID   string     `json:"product_id"`
	Platform    Platform   `json:"platform"`
	Timestamp   time.Time  `json:"timestamp"`
	Status      PostStatus `json:"status"`
	ErrorDetail string     `json:"error_detail,omitempty"`
	TextLength  int        `json:"text_length"`
	RemoteID    string     `json:"remote_id,omitempty"`
	Attempts    int        `json:"attempts"`
}

// Generation is the last promotional text produced for a user.
type Generation struct {
	ProductID string    `json:"product_id"`
	Style     string    `json:"style"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// User is everything persisted about one Identity.
type User struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	ID        Identity  `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// ─────────────────────────────
	// Preferences
	// ─────────────────────────────

	// Language is a BCP 47 base tag: en, ru or ro.
	Language string `json:"language"`

	// Channels holds at most one binding per platform.
	Channels map[Platform]ChannelBinding `json:"channels,omitempty"`

	// ─────────────────────────────
	// Owned records
	// ─────────────────────────────

	// Products is capped, insertion beyond the cap fails.
	Products []Product `json:"products"`

	// History is append-only and pruned oldest first.
	History []PostEntry `json:"history"`

	LastGeneration *Generation `json:"last_generation,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewUser creates the record for a first interaction.
func NewUser(id Identity, now time.Time) *User {
	return &User{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Language:  DefaultLanguage,
		Products:  []Product{},
		History:   []PostEntry{},
	}
}

// AddProduct appends p unless the user already holds max products.
func (u *User) AddProduct(p Product, max int) error {
	if len(u.Products) >= max {
		return &CapacityError{Limit: max}
	}
	u.Products = append(u.Products, p)
	return nil
}

// Product returns the product with the given id.
func (u *User) Product(id string) (Product, bool) {
	for _, p := range u.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// RemoveProduct deletes the product with the given id. History entries that
// reference it are kept.
func (u *User) RemoveProduct(id string) bool {
	for i, p := range u.Products {
		if p.ID == id {
			u.Products = slices.Delete(u.Products, i, i+1)
			return true
		}
	}
	return false
}

// Bind sets the binding for b.Platform, replacing any previous one.
func (u *User) Bind(b ChannelBinding) error {
	if !b.Platform.Valid() {
		return ErrUnknownPlatform
	}
	if u.Channels == nil {
		u.Channels = make(map[Platform]ChannelBinding, 2)
	}
	u.Channels[b.Platform] = b
	return nil
}

// Unbind removes the binding for p and reports whether one existed.
func (u *User) Unbind(p Platform) bool {
	if _, ok := u.Channels[p]; !ok {
		return false
	}
	delete(u.Channels, p)
	return true
}

// EnabledChannels returns enabled bindings sorted by platform.
func (u *User) EnabledChannels() []ChannelBinding {
	out := make([]ChannelBinding, 0, len(u.Channels))
	for _, b := range u.Channels {
		if b.Enabled {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}

// AppendHistory adds e and prunes the oldest entries beyond limit.
func (u *User) AppendHistory(e PostEntry, limit int) {
	u.History = append(u.History, e)
	if limit > 0 && len(u.History) > limit {
		u.History = slices.Clone(u.History[len(u.History)-limit:])
	}
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Products = slices.Clone(u.Products)
	c.History = slices.Clone(u.History)
	c.Channels = maps.Clone(u.Channels)
	if u.LastGeneration != nil {
		g := *u.LastGeneration
		c.LastGeneration = &g
	}
	return &c
}
