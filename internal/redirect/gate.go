// Package redirect decides which origins the bridge handshake may send a
// browser to.
package redirect

import (
	"net/url"
	"strings"

	"github.com/marcogenualdo/edge-bridge/internal/config"
)

type Gate struct {
	hosts    map[string]struct{}
	patterns []config.PreviewPattern
}

func NewGate(allowedHosts []string, patterns []config.PreviewPattern) *Gate {
	hosts := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		hosts[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}

	normalized := make([]config.PreviewPattern, 0, len(patterns))
	for _, p := range patterns {
		if p.Suffix == "" || p.Contains == "" {
			continue
		}
		normalized = append(normalized, config.PreviewPattern{
			Suffix:   strings.ToLower(p.Suffix),
			Contains: strings.ToLower(p.Contains),
		})
	}

	return &Gate{hosts: hosts, patterns: normalized}
}

// IsAllowed reports whether candidate is an absolute http(s) URL whose host is
// allow-listed or matches a preview pattern. Unparsable input is rejected.
func (g *Gate) IsAllowed(candidate string) bool {
	u, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	if _, ok := g.hosts[host]; ok {
		return true
	}

	for _, p := range g.patterns {
		label, ok := strings.CutSuffix(host, p.Suffix)
		if ok && label != "" && strings.Contains(label, p.Contains) {
			return true
		}
	}
	return false
}

// Origin returns scheme://host[:port] of an allowed candidate.
func Origin(candidate string) (string, error) {
	u, err := url.Parse(candidate)
	if err != nil {
		return "", err
	}
	return u.Scheme + "://" + u.Host, nil
}
