package sourcemap

import (
	"net"
	"net/netip"
	"net/url"
	"syscall"

	"github.com/posthog/cymbal/pkg/symbolstore"
)

var internalPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // carrier-grade NAT
}

// isInternal reports whether ip belongs to a range that must not be reachable
// through client supplied URLs.
func isInternal(ip netip.Addr) bool {
	ip = ip.Unmap()
	if ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsUnspecified() {
		return true
	}
	for _, p := range internalPrefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// checkURL rejects unsupported schemes and literal internal addresses before
// any connection is attempted. Host names are checked at dial time.
func (p *Provider) checkURL(u *url.URL) error {
	switch u.Scheme {
	case "http", "https":
	default:
		return &symbolstore.ForbiddenDestinationError{URL: u.String()}
	}
	if u.Host == "" {
		return &symbolstore.ForbiddenDestinationError{URL: u.String()}
	}
	if p.cfg.AllowInternalIPs {
		return nil
	}
	if ip, err := netip.ParseAddr(u.Hostname()); err == nil && isInternal(ip) {
		return &symbolstore.ForbiddenDestinationError{URL: u.String(), Addr: ip.String()}
	}
	return nil
}

// controlDial runs after name resolution, so it sees every address the
// transport actually connects to, including redirect targets.
func (p *Provider) controlDial(_, address string, _ syscall.RawConn) error {
	if p.cfg.AllowInternalIPs {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return &symbolstore.ForbiddenDestinationError{Addr: address}
	}
	ip, err := netip.ParseAddr(host)
	if err != nil || isInternal(ip) {
		return &symbolstore.ForbiddenDestinationError{Addr: address}
	}
	return nil
}
