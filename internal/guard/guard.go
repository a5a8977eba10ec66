// Package guard rejects forward targets whose hostname is on the block list.
package guard

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/net/idna"

	"cors-wrapper-go/internal/config"
)

// BlockedCategory is the error category reported for a rejected hostname.
const BlockedCategory = "Blocked hostname"

// BlockedError is returned by Check when the target hostname is blocked.
type BlockedError struct {
	Host string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("host %q is blocked", e.Host)
}

// Message is the text reported to the caller.
func (e *BlockedError) Message() string {
	return fmt.Sprintf("Cannot proxy requests to %s for security reasons", e.Host)
}

// HostGuard holds the normalized block set for the active deployment mode.
type HostGuard struct {
	blocked map[string]struct{}
	logger  *slog.Logger
}

// NewHostGuard builds a HostGuard from the configured block list.
func NewHostGuard(cfg *config.Config, logger *slog.Logger) *HostGuard {
	return New(cfg.BlockedHosts(), logger)
}

// New builds a HostGuard blocking hosts. The loopback address is always added.
func New(hosts []string, logger *slog.Logger) *HostGuard {
	g := &HostGuard{
		blocked: make(map[string]struct{}, len(hosts)+1),
		logger:  logger.With("component", "host_guard"),
	}
	g.blocked[config.LoopbackHost] = struct{}{}
	for _, h := range hosts {
		g.blocked[normalize(h)] = struct{}{}
	}
	return g
}

// Check returns a *BlockedError when hostname is blocked, nil otherwise.
// Matching ignores case, a trailing dot, IPv6 brackets and IDNA spelling.
func (g *HostGuard) Check(hostname string) error {
	if _, ok := g.blocked[normalize(hostname)]; ok {
		g.logger.Warn("blocked hostname", "host", hostname)
		return &BlockedError{Host: hostname}
	}
	return nil
}

// Blocked returns the sorted, normalized block set.
func (g *HostGuard) Blocked() []string {
	out := make([]string, 0, len(g.blocked))
	for h := range g.blocked {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

func normalize(host string) string {
	h := strings.TrimSpace(host)
	h = strings.TrimPrefix(h, "[")
	h = strings.TrimSuffix(h, "]")
	h = strings.TrimSuffix(h, ".")
	if ascii, err := idna.Lookup.ToASCII(h); err == nil {
		h = ascii
	}
	return strings.ToLower(h)
}
