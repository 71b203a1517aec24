package urlcheck

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
)

// privateRanges lists networks the pipeline must never be tricked into
// fetching from: RFC1918, loopback, link-local, and their IPv6 equivalents.
var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// LookupFunc resolves a hostname for one address family ("ip4" or "ip6").
type LookupFunc func(ctx context.Context, network, host string) ([]net.IP, error)

// Validator guards job submission against SSRF. It is stateless beyond the
// resolver it queries.
type Validator struct {
	lookup LookupFunc
}

// New builds a validator using the default system resolver.
func New() *Validator {
	return &Validator{lookup: func(ctx context.Context, network, host string) ([]net.IP, error) {
		return net.DefaultResolver.LookupIP(ctx, network, host)
	}}
}

// NewWithLookup builds a validator with a custom resolver, for tests.
func NewWithLookup(lookup LookupFunc) *Validator {
	return &Validator{lookup: lookup}
}

// Validate reports whether a submitted URL is safe to fetch. It never returns
// an error to the caller: every failure, including resolver trouble, comes
// back as (false, reason). A failing URL must never produce a job record.
func (v *Validator) Validate(ctx context.Context, raw string) (bool, string) {
	u, err := url.Parse(raw)
	if err != nil {
		return false, err.Error()
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false, "scheme must be http/https"
	}
	host := u.Hostname()
	if host == "" {
		return false, "missing hostname"
	}

	// A hostname that is already an IP literal skips DNS.
	if addr, err := netip.ParseAddr(host); err == nil {
		if isPrivate(addr) {
			return false, "private address not allowed"
		}
		return true, ""
	}

	for _, family := range []string{"ip4", "ip6"} {
		ips, err := v.lookup(ctx, family, host)
		if err != nil {
			// Resolution failure for one family is tolerated; the fetch
			// stage will surface a host that resolves nowhere.
			continue
		}
		for _, ip := range ips {
			addr, ok := netip.AddrFromSlice(ip)
			if !ok {
				return false, fmt.Sprintf("unparseable address %q", ip)
			}
			if isPrivate(addr.Unmap()) {
				return false, "private address not allowed"
			}
		}
	}
	return true, ""
}

func isPrivate(addr netip.Addr) bool {
	for _, p := range privateRanges {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
