package urlcheck

import (
	"context"
	"errors"
	"net"
	"testing"
)

func lookupReturning(ip4, ip6 []net.IP) LookupFunc {
	return func(_ context.Context, network, _ string) ([]net.IP, error) {
		switch network {
		case "ip4":
			if ip4 == nil {
				return nil, errors.New("no A records")
			}
			return ip4, nil
		case "ip6":
			if ip6 == nil {
				return nil, errors.New("no AAAA records")
			}
			return ip6, nil
		}
		return nil, errors.New("unknown network")
	}
}

func TestValidateRejectsLoopbackLiteral(t *testing.T) {
	v := New()
	ok, reason := v.Validate(context.Background(), "http://127.0.0.1/x")
	if ok {
		t.Fatal("loopback literal must be rejected")
	}
	if reason != "private address not allowed" {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestValidateRejectsPrivateLiteral(t *testing.T) {
	v := New()
	if ok, _ := v.Validate(context.Background(), "http://10.1.2.3/"); ok {
		t.Fatal("rfc1918 literal must be rejected")
	}
	if ok, _ := v.Validate(context.Background(), "http://[::1]/"); ok {
		t.Fatal("ipv6 loopback literal must be rejected")
	}
}

func TestValidateAcceptsPublicResolution(t *testing.T) {
	v := NewWithLookup(lookupReturning([]net.IP{net.ParseIP("93.184.216.34")}, nil))
	ok, reason := v.Validate(context.Background(), "https://example.com/")
	if !ok {
		t.Fatalf("public host should be accepted, got %q", reason)
	}
}

func TestValidateRejectsPrivateResolution(t *testing.T) {
	v := NewWithLookup(lookupReturning(
		[]net.IP{net.ParseIP("93.184.216.34")},
		[]net.IP{net.ParseIP("fe80::1")},
	))
	ok, _ := v.Validate(context.Background(), "https://internal.example/")
	if ok {
		t.Fatal("host resolving to link-local must be rejected")
	}
}

func TestValidateSchemeAndHost(t *testing.T) {
	v := New()
	if ok, reason := v.Validate(context.Background(), "ftp://example.com/"); ok || reason != "scheme must be http/https" {
		t.Fatalf("ftp should be rejected, got ok=%v reason=%q", ok, reason)
	}
	if ok, reason := v.Validate(context.Background(), "http:///nohost"); ok || reason != "missing hostname" {
		t.Fatalf("missing host should be rejected, got ok=%v reason=%q", ok, reason)
	}
}

func TestValidateToleratesSingleFamilyFailure(t *testing.T) {
	// AAAA lookup fails; the A answer alone decides.
	v := NewWithLookup(lookupReturning([]net.IP{net.ParseIP("8.8.8.8")}, nil))
	if ok, reason := v.Validate(context.Background(), "https://v4only.example/"); !ok {
		t.Fatalf("v4-only host should pass, got %q", reason)
	}
}
