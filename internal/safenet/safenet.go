// Package safenet keeps outbound probes and notification posts away from
// private and reserved networks.
package safenet

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// ErrBlocked is wrapped by every error DialControl returns.
var ErrBlocked = errors.New("blocked")

var reserved []*net.IPNet

func init() {
	for _, cidr := range []string{
		"0.0.0.0/8",
		"10.0.0.0/8",
		"100.64.0.0/10",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"172.16.0.0/12",
		"192.0.0.0/24",
		"192.0.2.0/24",
		"192.168.0.0/16",
		"198.18.0.0/15",
		"198.51.100.0/24",
		"203.0.113.0/24",
		"224.0.0.0/4",
		"240.0.0.0/4",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	} {
		_, n, _ := net.ParseCIDR(cidr)
		reserved = append(reserved, n)
	}
}

// IsPrivateIP reports whether ip is loopback, private, link-local or
// otherwise reserved.
func IsPrivateIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, n := range reserved {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// DialControl runs after DNS resolution and before connect, so a public
// hostname that resolves to a private address is still refused.
func DialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: invalid address %q", ErrBlocked, address)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: unparseable IP %q", ErrBlocked, host)
	}
	if IsPrivateIP(ip) {
		return fmt.Errorf("%w: %s is a private or reserved address", ErrBlocked, ip)
	}
	return nil
}

// MaybeDialControl returns nil (no restriction) when allowPrivate is set.
func MaybeDialControl(allowPrivate bool) func(string, string, syscall.RawConn) error {
	if allowPrivate {
		return nil
	}
	return DialControl
}

// NewClient returns an HTTP client whose dialer applies MaybeDialControl.
// Redirects are followed with the default policy; every hop is dialed
// through the same guard.
func NewClient(timeout time.Duration, allowPrivate bool) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: timeout,
				Control: MaybeDialControl(allowPrivate),
			}).DialContext,
			TLSHandshakeTimeout: timeout,
			DisableKeepAlives:   true,
		},
	}
}
