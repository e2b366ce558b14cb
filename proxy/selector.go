// Package proxy selects outbound proxies for the discovery crawler.
package proxy

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pithecene-io/magnetmeta/log"
	"github.com/pithecene-io/magnetmeta/types"
)

// ErrUnknownPool is returned for a pool name that was never registered.
var ErrUnknownPool = errors.New("unknown proxy pool")

// pickFunc chooses an endpoint index. It runs with the selector lock held.
type pickFunc func(p *pool, req SelectRequest, now time.Time) (int, error)

var strategies = map[types.ProxyStrategy]pickFunc{
	types.ProxyStrategyRoundRobin: pickRoundRobin,
	types.ProxyStrategyRandom:     pickRandom,
	types.ProxyStrategySticky:     pickSticky,
}

// Selector hands out endpoints from registered pools. Safe for
// concurrent use.
type Selector struct {
	mu     sync.Mutex
	pools  map[string]*pool
	logger *log.Logger
	now    func() time.Time
}

type pool struct {
	def    types.ProxyPool
	ttl    time.Duration
	next   int64
	pinned map[string]assignment
}

type assignment struct {
	index   int
	expires time.Time // zero never expires
}

func (a assignment) live(now time.Time) bool {
	return a.expires.IsZero() || now.Before(a.expires)
}

// NewSelector returns an empty selector. A nil logger discards warnings.
func NewSelector(logger *log.Logger) *Selector {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Selector{
		pools:  make(map[string]*pool),
		logger: logger.Named("proxy"),
		now:    time.Now,
	}
}

// RegisterPool validates def and adds it, replacing a pool of the same
// name and dropping that pool's rotation state.
func (s *Selector) RegisterPool(def *types.ProxyPool) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("pool validation failed: %w", err)
	}
	ttl, _ := def.Sticky.Expiry()
	for _, w := range def.Warnings() {
		s.logger.Warn(w, map[string]any{"pool": def.Name})
	}

	p := &pool{def: *def, ttl: ttl, pinned: make(map[string]assignment)}
	p.def.Endpoints = append([]types.ProxyEndpoint(nil), def.Endpoints...)

	s.mu.Lock()
	s.pools[def.Name] = p
	s.mu.Unlock()
	return nil
}

// SelectRequest describes one selection.
type SelectRequest struct {
	Pool string
	// StrategyOverride replaces the pool's strategy for this call.
	StrategyOverride *types.ProxyStrategy
	// StickyKey, when set, is used instead of Domain or Origin.
	StickyKey string
	// Domain is the request host.
	Domain string
	// Origin is scheme://host[:port].
	Origin string
	// Commit advances rotation and records sticky assignments. Without it
	// Select only previews.
	Commit bool
}

// Select returns a copy of the chosen endpoint.
func (s *Selector) Select(req SelectRequest) (*types.ProxyEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[req.Pool]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPool, req.Pool)
	}
	strategy := p.def.Strategy
	if req.StrategyOverride != nil {
		strategy = *req.StrategyOverride
	}
	pick, ok := strategies[strategy]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}

	idx, err := pick(p, req, s.now())
	if err != nil {
		return nil, err
	}
	ep := p.def.Endpoints[idx]
	return &ep, nil
}

// ProxyFunc adapts the selector to http.Transport.Proxy. Every request
// commits a selection keyed by its URL.
func (s *Selector) ProxyFunc(poolName string) func(*http.Request) (*url.URL, error) {
	return func(r *http.Request) (*url.URL, error) {
		ep, err := s.Select(SelectRequest{
			Pool:   poolName,
			Domain: r.URL.Hostname(),
			Origin: r.URL.Scheme + "://" + r.URL.Host,
			Commit: true,
		})
		if err != nil {
			return nil, err
		}
		s.logger.Debug("proxy selected", map[string]any{
			"pool":     poolName,
			"endpoint": ep.String(),
			"host":     r.URL.Host,
		})
		return ep.URL(), nil
	}
}

func pickRoundRobin(p *pool, req SelectRequest, _ time.Time) (int, error) {
	idx := int(p.next % int64(len(p.def.Endpoints)))
	if req.Commit {
		p.next++
	}
	return idx, nil
}

func pickRandom(p *pool, _ SelectRequest, _ time.Time) (int, error) {
	return rand.IntN(len(p.def.Endpoints)), nil
}

func pickSticky(p *pool, req SelectRequest, now time.Time) (int, error) {
	key := p.stickyKey(req)
	if key == "" {
		return 0, errors.New("sticky selection requires a sticky key")
	}
	if a, ok := p.pinned[key]; ok {
		if a.live(now) {
			return a.index, nil
		}
		delete(p.pinned, key)
	}

	idx, _ := pickRandom(p, req, now)
	if req.Commit {
		a := assignment{index: idx}
		if p.ttl > 0 {
			a.expires = now.Add(p.ttl)
		}
		p.pinned[key] = a
	}
	return idx, nil
}

// stickyKey prefers the explicit key, then the value the scope names.
// Pools with no sticky block pin by domain.
func (p *pool) stickyKey(req SelectRequest) string {
	switch {
	case req.StickyKey != "":
		return req.StickyKey
	case p.def.Sticky != nil && p.def.Sticky.Scope == types.ProxyStickyOrigin:
		return req.Origin
	default:
		return req.Domain
	}
}

// PoolStats is a snapshot of one pool's rotation state.
type PoolStats struct {
	RoundRobinIndex int64
	StickyEntries   int
}

// Stats snapshots the named pool.
func (s *Selector) Stats(poolName string) (*PoolStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[poolName]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPool, poolName)
	}
	return &PoolStats{RoundRobinIndex: p.next, StickyEntries: len(p.pinned)}, nil
}

// CleanExpiredSticky drops expired sticky assignments in every pool.
func (s *Selector) CleanExpiredSticky() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, p := range s.pools {
		for key, a := range p.pinned {
			if !a.live(now) {
				delete(p.pinned, key)
			}
		}
	}
}
