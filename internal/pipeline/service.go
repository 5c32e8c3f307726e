// Package pipeline orchestrates the extract, generate and distribute stages
// for one identity. Slow I/O always happens before the store is mutated.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/promobot/internal/domain"
	"github.com/MrSnakeDoc/promobot/internal/extract"
	"github.com/MrSnakeDoc/promobot/internal/generate"
	"github.com/MrSnakeDoc/promobot/internal/logger"
	"github.com/MrSnakeDoc/promobot/internal/metrics"
	"github.com/MrSnakeDoc/promobot/internal/platform"
	"github.com/MrSnakeDoc/promobot/internal/ratelimit"
	"github.com/MrSnakeDoc/promobot/internal/store"
)

// Action classes of the inbound limiter.
const (
	ActionAddProduct = "add_product"
	ActionGenerate   = "generate"
	ActionPost       = "post"
	ActionSettings   = "settings"
)

const (
	DefaultMaxProducts  = 5
	DefaultHistoryLimit = 50
	DefaultMaxRetries   = 2
	DefaultRetryBase    = time.Second
)

var (
	ErrNoText              = errors.New("nothing generated for this product yet")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrInvalidTarget       = errors.New("invalid channel target")
)

// URLGuard refuses URLs outside the public internet.
type URLGuard interface {
	Check(ctx context.Context, rawURL string) (*url.URL, error)
}

// StyleSource looks up prompt styles by name; "" is the default style.
type StyleSource interface {
	Get(name string) (*domain.Style, bool)
}

type Config struct {
	MaxProducts  int
	HistoryLimit int
	// MaxRetries bounds publish retries after the first attempt. Zero means
	// DefaultMaxRetries; a negative value disables retries.
	MaxRetries   int
	RetryBase    time.Duration
	Now          func() time.Time
}

type Deps struct {
	Store      *store.Store
	Inbound    *ratelimit.Limiter
	Outbound   *ratelimit.Limiter
	Guard      URLGuard
	Extractor  extract.Extractor
	Generator  generate.Generator
	Styles     StyleSource
	Publishers platform.Registry
	Logger     logger.Logger
}

// Service is the API every caller (CLI, bot front-end) goes through.
type Service struct {
	deps Deps
	cfg  Config
	log  logger.Logger
}

func New(deps Deps, cfg Config) *Service {
	if cfg.MaxProducts <= 0 {
		cfg.MaxProducts = DefaultMaxProducts
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRetryBase
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &Service{deps: deps, cfg: cfg, log: deps.Logger}
}

func (s *Service) now() time.Time { return s.cfg.Now().UTC() }

// gate admits one inbound action and counts it as an interaction.
func (s *Service) gate(ctx context.Context, id domain.Identity, action string) error {
	if s.deps.Inbound != nil {
		key := ratelimit.InboundKey(id, action)
		if ok, wait := s.deps.Inbound.Reserve(key); !ok {
			return s.rejected(ctx, s.deps.Inbound, key, wait)
		}
	}
	if _, err := s.deps.Store.MutateStats(ctx, func(st *domain.Stats) { st.TotalMessages++ }); err != nil {
		s.log.Warn("failed to count interaction", logger.String("user", string(id)), logger.Error(err))
	}
	return nil
}

func (s *Service) rejected(ctx context.Context, l *ratelimit.Limiter, key string, wait time.Duration) error {
	metrics.RateLimited.WithLabelValues(l.Name()).Inc()
	s.recordError(ctx, domain.ErrorKindRateLimited)
	s.log.Info("🚦 rate limited",
		logger.String("limiter", l.Name()),
		logger.String("key", key),
		logger.Duration("retry_after", wait))
	return &ratelimit.RateLimitedError{Limiter: l.Name(), Key: key, RetryAfter: wait}
}

// recordError counts kind in the stats document. The count survives a
// cancelled caller.
func (s *Service) recordError(ctx context.Context, kind string) {
	if err := s.deps.Store.RecordError(context.WithoutCancel(ctx), kind); err != nil {
		s.log.Warn("failed to record error", logger.String("kind", kind), logger.Error(err))
	}
}

// mutateUser applies fn to the user record, creating it on first use.
func (s *Service) mutateUser(ctx context.Context, id domain.Identity, fn func(*domain.User) error) (*domain.User, error) {
	var (
		created bool
		out     *domain.User
	)
	_, err := s.deps.Store.MutateUsers(ctx, func(users *domain.Users) error {
		u, isNew := users.Ensure(id, s.now())
		created = isNew
		if err := fn(u); err != nil {
			return err
		}
		u.UpdatedAt = s.now()
		out = u.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		if _, err := s.deps.Store.MutateStats(context.WithoutCancel(ctx), func(st *domain.Stats) { st.TotalUsers++ }); err != nil {
			s.log.Warn("failed to count new user", logger.String("user", string(id)), logger.Error(err))
		}
		s.log.Info("👤 new user", logger.String("user", string(id)))
	}
	return out, nil
}

// User returns the record of id.
func (s *Service) User(ctx context.Context, id domain.Identity) (*domain.User, error) {
	users, err := s.deps.Store.Users(ctx)
	if err != nil {
		return nil, err
	}
	u, ok := users.Get(id)
	if !ok {
		return nil, domain.ErrUnknownUser
	}
	return u, nil
}

// Touch registers an interaction from id, creating its record if needed.
func (s *Service) Touch(ctx context.Context, id domain.Identity) (*domain.User, error) {
	if _, err := s.deps.Store.MutateStats(ctx, func(st *domain.Stats) { st.TotalMessages++ }); err != nil {
		return nil, err
	}
	return s.mutateUser(ctx, id, func(*domain.User) error { return nil })
}

// ─────────────────────────────────────────────────────────────────
// Products
// ─────────────────────────────────────────────────────────────────

// AddProduct extracts the product at rawURL and adds it to id's set.
func (s *Service) AddProduct(ctx context.Context, id domain.Identity, rawURL string) (domain.Product, error) {
	if err := s.gate(ctx, id, ActionAddProduct); err != nil {
		return domain.Product{}, err
	}

	// Fail fast before fetching anything.
	if u, err := s.User(ctx, id); err == nil && len(u.Products) >= s.cfg.MaxProducts {
		s.recordError(ctx, domain.ErrorKindCapacity)
		return domain.Product{}, &domain.CapacityError{Limit: s.cfg.MaxProducts}
	}

	u, err := s.deps.Guard.Check(ctx, rawURL)
	if err != nil {
		s.recordError(ctx, string(extract.KindOf(err)))
		return domain.Product{}, err
	}

	fields, err := s.deps.Extractor.Extract(ctx, u.String())
	if err != nil {
		if kind := extract.KindOf(err); kind != "" {
			s.recordError(ctx, string(kind))
		}
		s.log.Warn("product extraction failed",
			logger.String("user", string(id)),
			logger.String("url", u.String()),
			logger.Error(err))
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:          uuid.NewString(),
		Title:       domain.SanitizeInput(fields.Title, 200),
		Price:       domain.SanitizeInput(fields.Price, 50),
		Description: domain.SanitizeInput(fields.Description, 500),
		Brand:       domain.SanitizeInput(fields.Brand, 50),
		ImageURL:    fields.ImageURL,
		SourceURL:   u.String(),
		CreatedAt:   s.now(),
	}
	if product.Title == "" {
		err := &extract.Error{Kind: extract.KindNoProductFound, URL: rawURL, Err: errors.New("empty title")}
		s.recordError(ctx, string(err.Kind))
		return domain.Product{}, err
	}

	_, err = s.mutateUser(ctx, id, func(u *domain.User) error {
		return u.AddProduct(product, s.cfg.MaxProducts)
	})
	if err != nil {
		var capErr *domain.CapacityError
		if errors.As(err, &capErr) {
			s.recordError(ctx, domain.ErrorKindCapacity)
		}
		return domain.Product{}, err
	}

	s.log.Info("📦 product added",
		logger.String("user", string(id)),
		logger.String("product", product.ID),
		logger.String("title", product.Title))
	return product, nil
}

// Products returns id's products in insertion order.
func (s *Service) Products(ctx context.Context, id domain.Identity) ([]domain.Product, error) {
	u, err := s.User(ctx, id)
	if errors.Is(err, domain.ErrUnknownUser) {
		return []domain.Product{}, nil
	}
	if err != nil {
		return nil, err
	}
	return u.Products, nil
}

// RemoveProduct deletes a product from id's set.
func (s *Service) RemoveProduct(ctx context.Context, id domain.Identity, productID string) error {
	if err := s.gate(ctx, id, ActionSettings); err != nil {
		return err
	}
	_, err := s.mutateUser(ctx, id, func(u *domain.User) error {
		if !u.RemoveProduct(productID) {
			return domain.ErrUnknownProduct
		}
		if u.LastGeneration != nil && u.LastGeneration.ProductID == productID {
			u.LastGeneration = nil
		}
		return nil
	})
	return err
}

// ─────────────────────────────────────────────────────────────────
// Generation
// ─────────────────────────────────────────────────────────────────

// Generate writes promotional text for one of id's products in the given
// style ("" for the default) and remembers it as the last generation.
func (s *Service) Generate(ctx context.Context, id domain.Identity, productID, styleName string) (domain.Generation, error) {
	if err := s.gate(ctx, id, ActionGenerate); err != nil {
		return domain.Generation{}, err
	}

	u, err := s.User(ctx, id)
	if err != nil {
		return domain.Generation{}, err
	}
	product, ok := u.Product(productID)
	if !ok {
		return domain.Generation{}, domain.ErrUnknownProduct
	}
	style, ok := s.deps.Styles.Get(strings.ToLower(styleName))
	if !ok {
		return domain.Generation{}, fmt.Errorf("%w: %s", domain.ErrUnknownStyle, styleName)
	}

	prompt, err := generate.BuildPrompt(style, u.Language, product)
	if err != nil {
		return domain.Generation{}, err
	}

	text, err := s.deps.Generator.Generate(ctx, prompt)
	if generate.KindOf(err) == generate.KindTimeout {
		s.log.Warn("generation timed out, retrying once", logger.String("user", string(id)))
		text, err = s.deps.Generator.Generate(ctx, prompt)
	}
	if err != nil {
		kind := generate.KindOf(err)
		if kind == "" {
			kind = generate.KindInvalidResponse
		}
		metrics.Generations.WithLabelValues(string(kind)).Inc()
		s.recordError(ctx, string(kind))
		s.log.Warn("generation failed",
			logger.String("user", string(id)),
			logger.String("product", productID),
			logger.Error(err))
		return domain.Generation{}, err
	}

	gen := domain.Generation{
		ProductID: product.ID,
		Style:     style.Name,
		Text:      text,
		CreatedAt: s.now(),
	}

	// The text exists now; recording it must not depend on the caller waiting.
	rctx := context.WithoutCancel(ctx)
	if _, err := s.mutateUser(rctx, id, func(u *domain.User) error {
		g := gen
		u.LastGeneration = &g
		return nil
	}); err != nil {
		return domain.Generation{}, err
	}
	if _, err := s.deps.Store.MutateStats(rctx, func(st *domain.Stats) { st.TotalGenerations++ }); err != nil {
		s.log.Warn("failed to count generation", logger.Error(err))
	}
	metrics.Generations.WithLabelValues("success").Inc()

	s.log.Info("✍️ text generated",
		logger.String("user", string(id)),
		logger.String("product", product.ID),
		logger.String("style", style.Name),
		logger.Int("length", len([]rune(text))))
	return gen, nil
}

// ─────────────────────────────────────────────────────────────────
// Settings
// ─────────────────────────────────────────────────────────────────

// BindChannel sets id's binding for b.Platform.
func (s *Service) BindChannel(ctx context.Context, id domain.Identity, b domain.ChannelBinding) error {
	if err := s.gate(ctx, id, ActionSettings); err != nil {
		return err
	}
	if !b.Platform.Valid() {
		return fmt.Errorf("%w: %s", domain.ErrUnknownPlatform, b.Platform)
	}
	b.Target = strings.TrimSpace(b.Target)
	if b.Target != domain.SanitizeInput(b.Target, 200) || (b.Target == "" && b.Platform == domain.PlatformTelegram) {
		return ErrInvalidTarget
	}

	_, err := s.mutateUser(ctx, id, func(u *domain.User) error { return u.Bind(b) })
	if err == nil {
		s.log.Info("🔗 channel bound",
			logger.String("user", string(id)),
			logger.String("platform", string(b.Platform)),
			logger.String("target", b.Target))
	}
	return err
}

// UnbindChannel removes id's binding for p.
func (s *Service) UnbindChannel(ctx context.Context, id domain.Identity, p domain.Platform) error {
	if err := s.gate(ctx, id, ActionSettings); err != nil {
		return err
	}
	_, err := s.mutateUser(ctx, id, func(u *domain.User) error {
		if !u.Unbind(p) {
			return fmt.Errorf("%w: no %s binding", domain.ErrUnknownPlatform, p)
		}
		return nil
	})
	return err
}

// SetLanguage stores id's preferred language and returns the matched tag.
func (s *Service) SetLanguage(ctx context.Context, id domain.Identity, raw string) (string, error) {
	if err := s.gate(ctx, id, ActionSettings); err != nil {
		return "", err
	}
	lang, ok := domain.MatchLanguage(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedLanguage, raw, strings.Join(domain.SupportedLanguages(), ", "))
	}
	_, err := s.mutateUser(ctx, id, func(u *domain.User) error {
		u.Language = lang
		return nil
	})
	return lang, err
}

// History returns up to limit of id's post entries, newest first.
func (s *Service) History(ctx context.Context, id domain.Identity, limit int) ([]domain.PostEntry, error) {
	u, err := s.User(ctx, id)
	if errors.Is(err, domain.ErrUnknownUser) {
		return []domain.PostEntry{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.PostEntry, len(u.History))
	copy(out, u.History)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────
// Promote
// ─────────────────────────────────────────────────────────────────

// PromoteResult is the outcome of the whole extract, generate and distribute flow.
type PromoteResult struct {
	Product    domain.Product
	Generation domain.Generation
	// Distribution is nil when no binding has auto_post set.
	Distribution *Result
}

// Promote adds the product at rawURL, generates text for it and posts the
// text to every enabled binding with auto_post set.
func (s *Service) Promote(ctx context.Context, id domain.Identity, rawURL, styleName string) (PromoteResult, error) {
	var res PromoteResult

	product, err := s.AddProduct(ctx, id, rawURL)
	if err != nil {
		return res, err
	}
	res.Product = product

	gen, err := s.Generate(ctx, id, product.ID, styleName)
	if err != nil {
		return res, err
	}
	res.Generation = gen

	u, err := s.User(ctx, id)
	if err != nil {
		return res, err
	}
	var targets []domain.ChannelBinding
	for _, b := range u.EnabledChannels() {
		if b.AutoPost {
			targets = append(targets, b)
		}
	}
	if len(targets) == 0 {
		return res, nil
	}

	if err := s.gate(ctx, id, ActionPost); err != nil {
		return res, err
	}
	dist := s.distribute(ctx, id, product, gen.Text, targets)
	res.Distribution = &dist
	return res, nil
}
