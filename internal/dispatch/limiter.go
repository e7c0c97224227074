package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// Limits configures the dispatcher's worker pool.
type Limits struct {
	GlobalMax       int `yaml:"global_max"`       // max concurrent runs system-wide (default: 32)
	PerOrganization int `yaml:"per_organization"` // max concurrent runs per tenant (default: 4)
}

// Limiter bounds how many execution instances run simultaneously, using
// channel-based counting semaphores at two levels: global and per
// organization. The per-organization level is what keeps one tenant's event
// volume from starving another's.
type Limiter struct {
	global      chan struct{}
	perOrg      map[string]chan struct{}
	mu          sync.Mutex
	limits      Limits
	activeCount atomic.Int64
}

// NewLimiter creates a limiter with the given limits.
func NewLimiter(limits Limits) *Limiter {
	if limits.GlobalMax <= 0 {
		limits.GlobalMax = 32
	}
	if limits.PerOrganization <= 0 {
		limits.PerOrganization = 4
	}
	return &Limiter{
		global: make(chan struct{}, limits.GlobalMax),
		perOrg: make(map[string]chan struct{}),
		limits: limits,
	}
}

// Acquire blocks until both a global and a per-organization slot are
// available, or returns an error if the context is cancelled.
func (l *Limiter) Acquire(ctx context.Context, orgID string) error {
	select {
	case l.global <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	orgCh := l.getOrCreateOrgChan(orgID)
	select {
	case orgCh <- struct{}{}:
		l.activeCount.Add(1)
		return nil
	case <-ctx.Done():
		// Release the global slot since the org slot never arrived.
		<-l.global
		return ctx.Err()
	}
}

// Release returns both the global and per-organization slots.
func (l *Limiter) Release(orgID string) {
	l.activeCount.Add(-1)

	l.mu.Lock()
	if ch, ok := l.perOrg[orgID]; ok {
		select {
		case <-ch:
		default:
		}
	}
	l.mu.Unlock()

	select {
	case <-l.global:
	default:
	}
}

// Stats reports current usage.
type Stats struct {
	ActiveRuns      int `json:"active_runs"`
	GlobalMax       int `json:"global_max"`
	PerOrganization int `json:"per_organization"`
}

func (l *Limiter) Stats() Stats {
	return Stats{
		ActiveRuns:      int(l.activeCount.Load()),
		GlobalMax:       l.limits.GlobalMax,
		PerOrganization: l.limits.PerOrganization,
	}
}

func (l *Limiter) getOrCreateOrgChan(orgID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.perOrg[orgID]
	if !ok {
		ch = make(chan struct{}, l.limits.PerOrganization)
		l.perOrg[orgID] = ch
	}
	return ch
}
