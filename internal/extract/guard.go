package extract

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/MrSnakeDoc/promobot/internal/utils"
)

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Guard refuses URLs that point into private networks. It checks the URL
// before a fetch and every address actually dialed, so a name that
// re-resolves to a private address mid-fetch is still refused.
type Guard struct {
	resolver Resolver
	// allow exempts ranges from the check; used by tests against local servers.
	allow *utils.IPMatcher
}

func NewGuard(resolver Resolver, allow ...string) *Guard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Guard{resolver: resolver, allow: utils.NewIPMatcher(allow)}
}

func (g *Guard) permitted(addr netip.Addr) bool {
	return utils.IsPublicAddr(addr) || g.allow.Contains(addr)
}

// Check validates rawURL and resolves its host. Every resolved address must
// be public.
func (g *Guard) Check(ctx context.Context, rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, &Error{Kind: KindUnreachable, URL: rawURL, Err: fmt.Errorf("invalid url: %w", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &Error{Kind: KindUnreachable, URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	host := u.Hostname()
	if host == "" {
		return nil, &Error{Kind: KindUnreachable, URL: rawURL, Err: errors.New("missing host")}
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if !g.permitted(addr) {
			return nil, &Error{Kind: KindPrivateNetworkBlocked, URL: rawURL, Err: fmt.Errorf("address %s is not public", addr)}
		}
		return u, nil
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return nil, &Error{Kind: KindPrivateNetworkBlocked, URL: rawURL, Err: fmt.Errorf("host %s is local", host)}
	}

	addrs, err := g.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, &Error{Kind: KindUnreachable, URL: rawURL, Err: fmt.Errorf("failed to resolve %s: %w", host, err)}
	}
	if len(addrs) == 0 {
		return nil, &Error{Kind: KindUnreachable, URL: rawURL, Err: fmt.Errorf("no addresses for %s", host)}
	}
	for _, addr := range addrs {
		if !g.permitted(addr) {
			return nil, &Error{Kind: KindPrivateNetworkBlocked, URL: rawURL, Err: fmt.Errorf("%s resolves to %s", host, addr)}
		}
	}
	return u, nil
}

var errBlockedDial = errors.New("dial to non-public address blocked")

// DialContext dials like net.Dialer but refuses non-public addresses at
// connect time.
func (g *Guard) DialContext(timeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{
		Timeout: timeout,
		Control: func(_, address string, _ syscall.RawConn) error {
			ap, err := netip.ParseAddrPort(address)
			if err != nil {
				return err
			}
			if !g.permitted(ap.Addr()) {
				return fmt.Errorf("%w: %s", errBlockedDial, ap.Addr())
			}
			return nil
		},
	}
	return d.DialContext
}
