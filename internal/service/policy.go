package service

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"

	"collage-devserver/internal/config"
)

// HostPolicy restricts which upstream URLs the proxy will fetch. The zero
// value allows everything.
type HostPolicy struct {
	schemes      map[string]bool
	hosts        []string
	blockPrivate bool
}

// NewHostPolicy builds a HostPolicy from proxy config.
func NewHostPolicy(cfg *config.ProxyConfig) *HostPolicy {
	p := &HostPolicy{blockPrivate: cfg.BlockPrivate}
	if len(cfg.AllowedSchemes) > 0 {
		p.schemes = make(map[string]bool, len(cfg.AllowedSchemes))
		for _, s := range cfg.AllowedSchemes {
			p.schemes[strings.ToLower(s)] = true
		}
	}
	for _, h := range cfg.AllowedHosts {
		p.hosts = append(p.hosts, strings.ToLower(h))
	}
	return p
}

// Unrestricted reports whether the policy lets every URL through.
func (p *HostPolicy) Unrestricted() bool {
	return p == nil || (p.schemes == nil && len(p.hosts) == 0 && !p.blockPrivate)
}

// Check returns an error describing why target may not be fetched.
func (p *HostPolicy) Check(target string) error {
	if p.Unrestricted() {
		return nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("parse target: %w", err)
	}
	if p.schemes != nil && !p.schemes[strings.ToLower(u.Scheme)] {
		return fmt.Errorf("scheme %q is not allowed", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("target %q has no host", target)
	}
	if len(p.hosts) > 0 && !p.hostAllowed(host) {
		return fmt.Errorf("host %q is not in the allowlist", host)
	}
	if p.blockPrivate && IsPrivateHost(host) {
		return fmt.Errorf("host %q is a local or private address", host)
	}
	return nil
}

func (p *HostPolicy) hostAllowed(host string) bool {
	for _, allowed := range p.hosts {
		if suffix, ok := strings.CutPrefix(allowed, "*."); ok {
			if host == suffix || strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if host == allowed {
			return true
		}
	}
	return false
}

// IsPrivateHost reports whether host names the local machine or is an IP
// literal in a loopback, private, link-local or unspecified range.
func IsPrivateHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	addr, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return false
	}
	return IsPrivateAddr(addr)
}

// IsPrivateAddr reports whether addr must not be reached through the proxy.
func IsPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}
