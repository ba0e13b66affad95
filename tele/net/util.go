package telenet

import (
	"net"
	"net/url"
	"sync/atomic"

	"github.com/juju/errors"
)

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// parseURI accepts udp://host:port, udp4:// and udp6:// schemes.
func parseURI(s string) (network, hostport string, err error) {
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return "", "", err
	}
	switch u.Scheme {
	case "udp", "udp4", "udp6":
	default:
		return "", "", errors.NotSupportedf("scheme=%s url=%s", u.Scheme, s)
	}
	return u.Scheme, u.Host, nil
}

// nonceNext returns next 16 bit counter value, skips 0.
func nonceNext(addr *uint32) uint16 {
again:
	n := uint16(atomic.AddUint32(addr, 1))
	if n == 0 {
		goto again
	}
	return n
}
