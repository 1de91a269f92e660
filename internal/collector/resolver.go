package collector

import (
	"context"
	"net"
	"os"
	"time"
)

// Resolver determines the host identity reported in a snapshot.
type Resolver struct {
	probeAddress string
	probeTimeout time.Duration

	hostname func() (string, error)
	lookupIP func(ctx context.Context, network, host string) ([]net.IP, error)
	dial     func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewResolver creates a resolver. probeAddress is a public UDP endpoint used to
// discover the outbound interface; nothing is sent to it.
func NewResolver(probeAddress string) *Resolver {
	dialer := &net.Dialer{}
	return &Resolver{
		probeAddress: probeAddress,
		probeTimeout: 2 * time.Second,
		hostname:     os.Hostname,
		lookupIP:     net.DefaultResolver.LookupIP,
		dial:         dialer.DialContext,
	}
}

// Hostname returns the machine's host name, or "unknown" if it cannot be read.
func (r *Resolver) Hostname() (string, error) {
	name, err := r.hostname()
	if err != nil || name == "" {
		return "unknown", err
	}
	return name, nil
}

// IPAddress returns a best-effort routable IPv4 address. The local address of
// a UDP socket connected to the probe address wins. Otherwise the first address
// the hostname resolves to is used, preferring non-loopback ones.
func (r *Resolver) IPAddress(ctx context.Context, hostname string) string {
	if ip := r.probe(ctx); ip != "" {
		return ip
	}

	if hostname != "" {
		if ips, err := r.lookupIP(ctx, "ip4", hostname); err == nil && len(ips) > 0 {
			for _, ip := range ips {
				if !ip.IsLoopback() {
					return ip.String()
				}
			}
			return ips[0].String()
		}
	}

	return "127.0.0.1"
}

func (r *Resolver) probe(ctx context.Context) string {
	if r.probeAddress == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	conn, err := r.dial(ctx, "udp4", r.probeAddress)
	if err != nil {
		return ""
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil || addr.IP.IsUnspecified() {
		return ""
	}
	return addr.IP.String()
}
