package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/MrSnakeDoc/promobot/internal/domain"
	"github.com/MrSnakeDoc/promobot/internal/logger"
	"github.com/MrSnakeDoc/promobot/internal/metrics"
	"github.com/MrSnakeDoc/promobot/internal/platform"
	"github.com/MrSnakeDoc/promobot/internal/ratelimit"
)

// State is the terminal state of one target.
type State string

const (
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	// StateRejected means the outbound limiter refused the target; nothing was sent.
	StateRejected State = "rejected"
)

// Failure kinds raised by the pipeline itself.
const (
	KindCancelled    = "cancelled"
	KindUnconfigured = "unconfigured"
)

// A too-long rejection shrinks the next attempt's budget by a fifth.
const (
	tooLongShrinkNum = 4
	tooLongShrinkDen = 5
	minTooLongBudget = 16
)

// Outcome is the final state of one target's attempt chain.
type Outcome struct {
	Platform   domain.Platform
	State      State
	Kind       string // failure kind, empty on success
	Err        error
	Attempts   int
	TextLength int // runes of the last text sent
	Receipt    platform.Receipt
}

// Result maps every attempted platform to its outcome.
type Result struct {
	ProductID string
	Outcomes  map[domain.Platform]Outcome
}

// Succeeded returns the platforms that accepted the post, sorted.
func (r Result) Succeeded() []domain.Platform {
	return r.filter(func(o Outcome) bool { return o.State == StateSucceeded })
}

// Failed returns the platforms that did not, sorted.
func (r Result) Failed() []domain.Platform {
	return r.filter(func(o Outcome) bool { return o.State != StateSucceeded })
}

func (r Result) filter(keep func(Outcome) bool) []domain.Platform {
	out := make([]domain.Platform, 0, len(r.Outcomes))
	for p, o := range r.Outcomes {
		if keep(o) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Distribute posts text to every enabled binding of id. An empty text posts
// the last generation for productID.
func (s *Service) Distribute(ctx context.Context, id domain.Identity, productID, text string) (Result, error) {
	if err := s.gate(ctx, id, ActionPost); err != nil {
		return Result{}, err
	}

	u, err := s.User(ctx, id)
	if err != nil {
		return Result{}, err
	}
	product, ok := u.Product(productID)
	if !ok {
		return Result{}, domain.ErrUnknownProduct
	}
	if text == "" {
		if u.LastGeneration == nil || u.LastGeneration.ProductID != productID {
			return Result{}, ErrNoText
		}
		text = u.LastGeneration.Text
	}
	targets := u.EnabledChannels()
	if len(targets) == 0 {
		return Result{}, domain.ErrNoChannels
	}
	return s.distribute(ctx, id, product, text, targets), nil
}

// distribute runs one attempt chain per target concurrently and records
// each outcome as soon as it is final.
func (s *Service) distribute(ctx context.Context, id domain.Identity, product domain.Product, text string, targets []domain.ChannelBinding) Result {
	res := Result{ProductID: product.ID, Outcomes: make(map[domain.Platform]Outcome, len(targets))}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, b := range targets {
		wg.Add(1)
		go func(b domain.ChannelBinding) {
			defer wg.Done()

			o := s.deliver(ctx, id, product, text, b)
			s.record(ctx, id, product.ID, o)

			mu.Lock()
			res.Outcomes[b.Platform] = o
			mu.Unlock()
		}(b)
	}
	wg.Wait()

	s.log.Info("📣 distribution finished",
		logger.String("user", string(id)),
		logger.String("product", product.ID),
		logger.Int("succeeded", len(res.Succeeded())),
		logger.Int("failed", len(res.Failed())))
	return res
}

// deliver walks one target through validate, admit and send. Content that
// fails sanitization never takes an outbound slot.
func (s *Service) deliver(ctx context.Context, id domain.Identity, product domain.Product, text string, b domain.ChannelBinding) Outcome {
	o := Outcome{Platform: b.Platform}
	fail := func(state State, kind string, err error) Outcome {
		o.State, o.Kind, o.Err = state, kind, err
		return o
	}

	pub, ok := s.deps.Publishers[b.Platform]
	if !ok {
		return fail(StateFailed, KindUnconfigured, fmt.Errorf("no publisher for %s", b.Platform))
	}

	clean, err := Sanitize(text)
	if err != nil {
		return fail(StateFailed, domain.ErrorKindInvalidContent, err)
	}

	if s.deps.Outbound != nil {
		key := ratelimit.OutboundKey(id, b.Platform)
		if ok, wait := s.deps.Outbound.Reserve(key); !ok {
			metrics.RateLimited.WithLabelValues(s.deps.Outbound.Name()).Inc()
			return fail(StateRejected, domain.ErrorKindRateLimited,
				&ratelimit.RateLimitedError{Limiter: s.deps.Outbound.Name(), Key: key, RetryAfter: wait})
		}
	}

	tags := Hashtags(product.Title)
	budget := pub.MaxLength()

	// Every attempt of this chain shares one key so platforms that honor it
	// never publish twice.
	ctx = platform.WithIdempotencyKey(ctx, uuid.NewString())
	backoff := retry.WithMaxRetries(uint64(s.cfg.MaxRetries), retry.NewExponential(s.cfg.RetryBase))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		o.Attempts++
		body := Compose(clean, tags, budget)
		o.TextLength = utf8.RuneCountInString(body)
		metrics.PostAttempts.WithLabelValues(string(b.Platform)).Inc()

		receipt, err := pub.Publish(ctx, body, b)
		if err == nil {
			o.Receipt = receipt
			return nil
		}

		var perr *platform.Error
		if !errors.As(err, &perr) || !perr.Retryable() {
			return err
		}
		if perr.Kind == platform.KindTooLong {
			budget = max(budget*tooLongShrinkNum/tooLongShrinkDen, minTooLongBudget)
		}
		s.log.Warn("publish attempt failed, retrying",
			logger.String("user", string(id)),
			logger.String("platform", string(b.Platform)),
			logger.Int("attempt", o.Attempts),
			logger.Error(err))
		return retry.RetryableError(err)
	})
	if err != nil {
		return fail(StateFailed, failureKind(err), err)
	}

	o.State = StateSucceeded
	return o
}

func failureKind(err error) string {
	if kind := platform.KindOf(err); kind != "" {
		return string(kind)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return string(platform.KindServerError)
}

// record appends the history entry for o and bumps the counters. It runs
// even when the caller has gone away.
func (s *Service) record(ctx context.Context, id domain.Identity, productID string, o Outcome) {
	ctx = context.WithoutCancel(ctx)
	now := s.now()

	entry := domain.PostEntry{
		ProductID:   productID,
		Platform:    o.Platform,
		Timestamp:   now,
		Status:      domain.PostSuccess,
		TextLength:  o.TextLength,
		RemoteID:    o.Receipt.RemoteID,
		Attempts:    o.Attempts,
		ErrorDetail: o.Kind,
	}
	if o.State != StateSucceeded {
		entry.Status = domain.PostFailure
	}
	metrics.PostOutcomes.WithLabelValues(string(o.Platform), string(entry.Status)).Inc()

	_, err := s.deps.Store.MutateUsers(ctx, func(users *domain.Users) error {
		u, ok := users.Get(id)
		if !ok {
			return domain.ErrUnknownUser
		}
		u.AppendHistory(entry, s.cfg.HistoryLimit)
		u.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.log.Error("failed to record post outcome",
			logger.String("user", string(id)),
			logger.String("platform", string(o.Platform)),
			logger.String("status", string(entry.Status)),
			logger.Error(err))
	}

	_, err = s.deps.Store.MutateStats(ctx, func(st *domain.Stats) {
		if o.State == StateSucceeded {
			st.TotalPosts++
			return
		}
		st.RecordError(o.Kind)
	})
	if err != nil {
		s.log.Warn("failed to count post outcome", logger.Error(err))
	}

	if o.State == StateSucceeded {
		s.log.Info("✅ posted",
			logger.String("user", string(id)),
			logger.String("platform", string(o.Platform)),
			logger.String("remote_id", o.Receipt.RemoteID),
			logger.Int("attempts", o.Attempts))
		return
	}
	s.log.Warn("❌ post failed",
		logger.String("user", string(id)),
		logger.String("platform", string(o.Platform)),
		logger.String("kind", o.Kind),
		logger.Int("attempts", o.Attempts),
		logger.Error(o.Err))
}
