package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrPrivateAddress is returned when a URL resolves only to loopback,
// link-local or private addresses. It never blacklists the domain.
var ErrPrivateAddress = errors.New("blocked connection to private/local address")

var privateIPBlocks []*net.IPNet

func init() {
	for _, cidr := range []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"100.64.0.0/10",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	} {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Errorf("parse error on %q: %v", cidr, err))
		}
		privateIPBlocks = append(privateIPBlocks, block)
	}
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, block := range privateIPBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// safeDialContext resolves the host, picks the first public address and
// dials that address directly, so a second lookup cannot swap in a private
// one. TLS callers still pass the original hostname for SNI.
func safeDialContext(dialer *net.Dialer) dialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, err
		}
		var safe net.IP
		for _, a := range addrs {
			if !isPrivateIP(a.IP) {
				safe = a.IP
				break
			}
		}
		if safe == nil {
			return nil, fmt.Errorf("%w: %s", ErrPrivateAddress, host)
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(safe.String(), port))
	}
}

func dialerFor(dialer *net.Dialer, allowPrivate bool) dialFunc {
	if allowPrivate {
		return dialer.DialContext
	}
	return safeDialContext(dialer)
}
