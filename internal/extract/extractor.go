// Package extract turns a product page URL into product fields. Only public
// http(s) addresses are fetched.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/MrSnakeDoc/promobot/internal/domain"
	"github.com/MrSnakeDoc/promobot/internal/logger"
	"github.com/MrSnakeDoc/promobot/internal/utils"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultMaxBytes  = 5 << 20
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

	maxTitleLen       = 200
	maxPriceLen       = 50
	maxDescriptionLen = 500
	minDescriptionLen = 20
	maxBrandLen       = 50
)

// Fields is what a product page yields. Only Title is guaranteed.
type Fields struct {
	Title       string
	Price       string
	Description string
	Brand       string
	ImageURL    string
	SourceURL   string
}

// Extractor fetches a product page and reads its fields.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (Fields, error)
}

type Config struct {
	Timeout      time.Duration
	MaxBytes     int64
	UserAgent    string
	MaxRedirects int
}

// HTMLExtractor reads product fields from HTML with CSS selectors.
type HTMLExtractor struct {
	cfg    Config
	guard  *Guard
	client *resty.Client
	logger logger.Logger
}

var _ Extractor = (*HTMLExtractor)(nil)

func NewHTMLExtractor(guard *Guard, cfg Config, log logger.Logger) *HTMLExtractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 5
	}

	transport := &http.Transport{
		DialContext:           guard.DialContext(cfg.Timeout),
		TLSHandshakeTimeout:   cfg.Timeout,
		ResponseHeaderTimeout: cfg.Timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}

	client := resty.New().
		SetTransport(transport).
		SetTimeout(cfg.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(cfg.MaxRedirects)).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	return &HTMLExtractor{cfg: cfg, guard: guard, client: client, logger: log}
}

func (x *HTMLExtractor) Extract(ctx context.Context, rawURL string) (Fields, error) {
	u, err := x.guard.Check(ctx, rawURL)
	if err != nil {
		return Fields{}, err
	}

	resp, err := x.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		if errors.Is(err, errBlockedDial) {
			return Fields{}, &Error{Kind: KindPrivateNetworkBlocked, URL: rawURL, Err: err}
		}
		return Fields{}, &Error{Kind: KindUnreachable, URL: rawURL, Err: err}
	}
	body := resp.RawBody()
	defer utils.Close(body)

	if !resp.IsSuccess() {
		return Fields{}, &Error{Kind: KindUnreachable, URL: rawURL, Err: fmt.Errorf("unexpected status %s", resp.Status())}
	}
	if n := resp.RawResponse.ContentLength; n > x.cfg.MaxBytes {
		return Fields{}, &Error{Kind: KindUnreachable, URL: rawURL, Err: fmt.Errorf("page too large (%d bytes)", n)}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, x.cfg.MaxBytes))
	if err != nil {
		return Fields{}, &Error{Kind: KindUnreachable, URL: rawURL, Err: fmt.Errorf("failed to read page: %w", err)}
	}

	// Relative links resolve against the final URL after redirects.
	base := u
	if resp.RawResponse.Request != nil && resp.RawResponse.Request.URL != nil {
		base = resp.RawResponse.Request.URL
	}

	fields := Parse(doc, base)
	fields.SourceURL = u.String()
	if fields.Title == "" {
		return Fields{}, &Error{Kind: KindNoProductFound, URL: rawURL, Err: errors.New("page has no product title")}
	}

	x.logger.Debug("product extracted",
		logger.String("url", fields.SourceURL),
		logger.String("title", fields.Title),
		logger.Bool("has_price", fields.Price != ""))
	return fields, nil
}

var (
	titleSelectors = []string{
		`meta[property="og:title"]`,
		`h1[data-automation-id="product-title"]`,
		`h1.product-title`,
		`h1#product-title`,
		`.product-name h1`,
		`.product-title`,
		`h1[class*="title"]`,
		`h1[class*="product"]`,
		`title`,
		`h1`,
	}
	priceSelectors = []string{
		`.price-current`,
		`.price`,
		`.product-price`,
		`[class*="price"]`,
		`[data-testid*="price"]`,
		`.cost`,
		`.amount`,
	}
	descriptionSelectors = []string{
		`meta[property="og:description"]`,
		`.product-description`,
		`.description`,
		`[class*="description"]`,
		`.product-details`,
		`.product-info`,
		`meta[name="description"]`,
	}
	imageSelectors = []string{
		`meta[property="og:image"]`,
		`.product-image img`,
		`.main-image img`,
		`[class*="product"] img`,
		`img[alt*="product"]`,
		`img[class*="product"]`,
	}
	brandSelectors = []string{
		`meta[property="product:brand"]`,
		`[itemprop="brand"] [itemprop="name"]`,
		`span[itemprop="brand"]`,
		`.brand`,
		`.product-brand`,
		`[class*="brand"]`,
	}

	pricePattern = regexp.MustCompile(`[$€£¥₽]\s*[\d,]+\.?\d*|\d+[,.]?\d*\s*[$€£¥₽]`)
)

// Parse reads product fields from a page. base resolves relative image links.
func Parse(doc *goquery.Document, base *url.URL) Fields {
	return Fields{
		Title:       first(doc, titleSelectors, func(s string) bool { return s != "" }, maxTitleLen),
		Price:       price(doc),
		Description: first(doc, descriptionSelectors, func(s string) bool { return len(s) > minDescriptionLen }, maxDescriptionLen),
		Brand:       first(doc, brandSelectors, func(s string) bool { return s != "" && len(s) < maxBrandLen }, maxBrandLen),
		ImageURL:    image(doc, base),
	}
}

// first returns the first selector match whose cleaned text passes ok.
func first(doc *goquery.Document, selectors []string, ok func(string) bool, max int) string {
	for _, sel := range selectors {
		found := ""
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if text := clean(value(s), max); ok(text) {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func price(doc *goquery.Document) string {
	// Structured data first.
	if amount := clean(value(doc.Find(`[itemprop="price"]`).First()), maxPriceLen); amount != "" {
		currency := clean(value(doc.Find(`[itemprop="priceCurrency"]`).First()), 8)
		return strings.TrimSpace(amount + " " + currency)
	}
	for _, sel := range []string{`meta[property="product:price:amount"]`, `meta[property="og:price:amount"]`} {
		if amount := clean(value(doc.Find(sel).First()), maxPriceLen); amount != "" {
			currency := clean(value(doc.Find(`meta[property="product:price:currency"], meta[property="og:price:currency"]`).First()), 8)
			return strings.TrimSpace(amount + " " + currency)
		}
	}

	for _, sel := range priceSelectors {
		found := ""
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if m := pricePattern.FindString(s.Text()); m != "" {
				found = clean(m, maxPriceLen)
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func image(doc *goquery.Document, base *url.URL) string {
	for _, sel := range imageSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		src := value(s)
		if src == "" {
			src = s.AttrOr("data-src", "")
		}
		if src == "" {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(src))
		if err != nil {
			continue
		}
		abs := ref
		if base != nil {
			abs = base.ResolveReference(ref)
		}
		if abs.Scheme == "http" || abs.Scheme == "https" {
			return abs.String()
		}
	}
	return ""
}

// value is the content of meta tags, the src of images and the text of anything else.
func value(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	switch goquery.NodeName(s) {
	case "meta":
		return s.AttrOr("content", "")
	case "img":
		return s.AttrOr("src", "")
	}
	if v, ok := s.Attr("content"); ok {
		return v
	}
	return s.Text()
}

func clean(s string, max int) string {
	return domain.SanitizeInput(strings.Join(strings.Fields(s), " "), max)
}
