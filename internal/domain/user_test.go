package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestAddProductCapacity(t *testing.T) {
	u := NewUser("42", time.Now().UTC())
	for i := 0; i < 5; i++ {
		if err := u.AddProduct(Product{ID: fmt.Sprintf("p%d", i)}, 5); err != nil {
			t.Fatalf("AddProduct(%d) error = %v", i, err)
		}
	}

	err := u.AddProduct(Product{ID: "p5"}, 5)
	var capErr *CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("AddProduct() error = %v, want CapacityError", err)
	}
	if capErr.Limit != 5 {
		t.Errorf("CapacityError.Limit = %d, want 5", capErr.Limit)
	}
	if len(u.Products) != 5 {
		t.Errorf("products = %d, want 5", len(u.Products))
	}
	if u.Products[0].ID != "p0" {
		t.Errorf("first product evicted: %q", u.Products[0].ID)
	}
}

func TestAppendHistoryPrunesOldest(t *testing.T) {
	u := NewUser("42", time.Now().UTC())
	for i := 0; i < 7; i++ {
		u.AppendHistory(PostEntry{ProductID: fmt.Sprintf("p%d", i), Platform: PlatformTelegram, Status: PostSuccess}, 5)
	}

	if len(u.History) != 5 {
		t.Fatalf("history = %d, want 5", len(u.History))
	}
	if u.History[0].ProductID != "p2" || u.History[4].ProductID != "p6" {
		t.Errorf("history window = %q..%q, want p2..p6", u.History[0].ProductID, u.History[4].ProductID)
	}
}

func TestUserCloneIsDeep(t *testing.T) {
	u := NewUser("42", time.Now().UTC())
	_ = u.AddProduct(Product{ID: "p1", Title: "Lamp"}, 5)
	_ = u.Bind(ChannelBinding{Platform: PlatformTelegram, Target: "@shop", Enabled: true})
	u.LastGeneration = &Generation{ProductID: "p1", Text: "buy"}

	c := u.Clone()
	c.Products[0].Title = "Chair"
	c.Channels[PlatformTelegram] = ChannelBinding{Platform: PlatformTelegram, Target: "@other"}
	c.LastGeneration.Text = "changed"

	if u.Products[0].Title != "Lamp" {
		t.Error("clone shares products")
	}
	if u.Channels[PlatformTelegram].Target != "@shop" {
		t.Error("clone shares channels")
	}
	if u.LastGeneration.Text != "buy" {
		t.Error("clone shares last generation")
	}
}

func TestEnabledChannels(t *testing.T) {
	u := NewUser("42", time.Now().UTC())
	_ = u.Bind(ChannelBinding{Platform: PlatformTelegram, Target: "@shop", Enabled: true})
	_ = u.Bind(ChannelBinding{Platform: PlatformMastodon, Target: "https://mastodon.social", Enabled: false})

	got := u.EnabledChannels()
	if len(got) != 1 || got[0].Platform != PlatformTelegram {
		t.Fatalf("EnabledChannels() = %+v, want telegram only", got)
	}

	if err := u.Bind(ChannelBinding{Platform: "myspace"}); !errors.Is(err, ErrUnknownPlatform) {
		t.Errorf("Bind(unknown) error = %v, want ErrUnknownPlatform", err)
	}
	if !u.Unbind(PlatformMastodon) || u.Unbind(PlatformMastodon) {
		t.Error("Unbind() should succeed once")
	}
}

func TestUsersValidate(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name    string
		mutate  func(*Users)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Users) {}},
		{name: "id mismatch", mutate: func(u *Users) { u.Users["42"].ID = "43" }, wantErr: true},
		{name: "duplicate product", mutate: func(u *Users) {
			u.Users["42"].Products = []Product{{ID: "a"}, {ID: "a"}}
		}, wantErr: true},
		{name: "bad status", mutate: func(u *Users) {
			u.Users["42"].History = []PostEntry{{Platform: PlatformTelegram, Status: "maybe"}}
		}, wantErr: true},
		{name: "nil record", mutate: func(u *Users) { u.Users["43"] = nil }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := NewUsers()
			doc.Ensure("42", now)
			tt.mutate(doc)
			if err := doc.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"en", "en", true},
		{"ru-RU", "ru", true},
		{"ro", "ro", true},
		{"not a tag!", "en", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := MatchLanguage(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("MatchLanguage(%q) = %q, %v, want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{in: `  <b>Kettle</b> "Pro" `, max: 100, want: "bKettle/b Pro"},
		{in: "Чайник электрический", max: 6, want: "Чайник"},
		{in: "plain", max: 0, want: "plain"},
		{in: "it's", max: 10, want: "its"},
	}

	for _, tt := range tests {
		if got := SanitizeInput(tt.in, tt.max); got != tt.want {
			t.Errorf("SanitizeInput(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
