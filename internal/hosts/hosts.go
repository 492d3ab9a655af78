// Package hosts decides whether a host string names the local machine and
// splits user@host target specifications.
package hosts

import (
	"net"
	"strings"
)

const (
	// Loopback is the address every local lookup falls back to.
	Loopback = "127.0.0.1"

	// routeAddr is never contacted; connecting a UDP socket toward it only
	// selects the outbound interface.
	routeAddr = "10.255.255.255:1"
)

// LocalIP returns the address of the interface the machine would use for
// outbound traffic, or 127.0.0.1 when it cannot be determined.
func LocalIP() string {
	conn, err := net.Dial("udp", routeAddr)
	if err != nil {
		return Loopback
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil || addr.IP.IsUnspecified() {
		return Loopback
	}
	return addr.IP.String()
}

// Resolver answers locality questions. The zero value uses LocalIP.
type Resolver struct {
	// LocalIPFunc overrides local address discovery, mainly for tests.
	LocalIPFunc func() string
}

// IsLocal reports whether host is 127.0.0.1 or the current local IP. The
// local IP is recomputed on every call.
func (r Resolver) IsLocal(host string) bool {
	host = strings.TrimSpace(host)
	if host == "" || host == Loopback {
		return true
	}
	lookup := r.LocalIPFunc
	if lookup == nil {
		lookup = LocalIP
	}
	return host == lookup()
}

// Target is a parsed remote target specification.
type Target struct {
	User string
	Host string
}

// ParseTarget splits "user@host" or "host". An empty host means loopback.
func ParseTarget(addr string) Target {
	addr = strings.TrimSpace(addr)
	var target Target
	if idx := strings.LastIndex(addr, "@"); idx >= 0 {
		target.User = addr[:idx]
		target.Host = addr[idx+1:]
	} else {
		target.Host = addr
	}
	if target.Host == "" {
		target.Host = Loopback
	}
	return target
}

// String renders the target back into ssh's user@host form.
func (t Target) String() string {
	if t.User == "" {
		return t.Host
	}
	return t.User + "@" + t.Host
}
