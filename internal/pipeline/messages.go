package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrSnakeDoc/promobot/internal/codec"
	"github.com/MrSnakeDoc/promobot/internal/domain"
	"github.com/MrSnakeDoc/promobot/internal/extract"
	"github.com/MrSnakeDoc/promobot/internal/generate"
	"github.com/MrSnakeDoc/promobot/internal/platform"
	"github.com/MrSnakeDoc/promobot/internal/ratelimit"
	"github.com/MrSnakeDoc/promobot/internal/store"
)

// UserMessage turns err into text an end-user can act on.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		rl     *ratelimit.RateLimitedError
		capErr *domain.CapacityError
		xerr   *extract.Error
		gerr   *generate.Error
		perr   *platform.Error
		werr   *store.StorageWriteError
		serr   *codec.UnsupportedSchemaError
	)
	switch {
	case errors.As(err, &rl):
		return fmt.Sprintf("Too many requests. Please wait %s and try again.", roundUp(rl.RetryAfter))
	case errors.As(err, &capErr):
		return fmt.Sprintf("You already have %d products. Remove one before adding another.", capErr.Limit)
	case errors.As(err, &xerr):
		switch xerr.Kind {
		case extract.KindPrivateNetworkBlocked:
			return "This link points to a private network and cannot be used."
		case extract.KindNoProductFound:
			return "No product information was found on this page."
		default:
			return "The page could not be reached. Check the link and try again."
		}
	case errors.As(err, &gerr):
		switch gerr.Kind {
		case generate.KindQuotaExceeded:
			return "The text service is over its quota. Please try again later."
		case generate.KindTimeout:
			return "The text service took too long to answer. Please try again."
		default:
			return "The text service returned an unusable answer. Please try again."
		}
	case errors.As(err, &perr):
		return platformMessage(perr)
	case errors.Is(err, ErrInvalidContent):
		return "The text contains characters or markup that cannot be posted."
	case errors.Is(err, ErrNoText):
		return "Generate a text for this product before posting it."
	case errors.Is(err, ErrUnsupportedLanguage):
		return "Supported languages: " + strings.Join(domain.SupportedLanguages(), ", ") + "."
	case errors.Is(err, ErrInvalidTarget):
		return "The channel target is not valid."
	case errors.Is(err, domain.ErrNoChannels):
		return "No channel is configured. Bind one first."
	case errors.Is(err, domain.ErrUnknownProduct):
		return "That product does not exist."
	case errors.Is(err, domain.ErrUnknownPlatform):
		return "That platform is not supported or not bound."
	case errors.Is(err, domain.ErrUnknownStyle):
		return "That style does not exist."
	case errors.As(err, &werr), errors.As(err, &serr):
		return "Your data could not be saved right now. Please try again later."
	default:
		return "Something went wrong. Please try again later."
	}
}

func platformMessage(perr *platform.Error) string {
	switch perr.Kind {
	case platform.KindUnauthorized:
		return fmt.Sprintf("The %s credentials were refused. Check the channel settings.", perr.Platform)
	case platform.KindRejected:
		return fmt.Sprintf("%s rejected the post. Check the channel target.", perr.Platform)
	default:
		return fmt.Sprintf("%s is not accepting posts right now. Please try again later.", perr.Platform)
	}
}

// OutcomeMessage describes one target's outcome.
func OutcomeMessage(o Outcome) string {
	switch o.State {
	case StateSucceeded:
		return fmt.Sprintf("%s: posted", o.Platform)
	case StateRejected:
		return fmt.Sprintf("%s: %s", o.Platform, UserMessage(o.Err))
	}
	if o.Kind == KindUnconfigured {
		return fmt.Sprintf("%s: not configured on this bot", o.Platform)
	}
	return fmt.Sprintf("%s: %s", o.Platform, UserMessage(o.Err))
}

func roundUp(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	return (d + time.Second - 1).Truncate(time.Second)
}
