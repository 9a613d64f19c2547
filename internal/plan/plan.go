// Package plan resolves the billing plan policy of an owner.
package plan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/emrgen/notesync/internal/cache"
	"github.com/sirupsen/logrus"
)

const (
	Free = "free"
	Pro  = "pro"
	Team = "team"
)

// Plan is the policy consumed by the attachment and revision components.
// A RevisionRetentionCount of zero or less keeps every revision.
type Plan struct {
	Name                   string `json:"name"`
	AttachmentSizeMB       int64  `json:"attachmentSizeMB"`
	RevisionRetentionCount int    `json:"revisionRetentionCount"`
}

// AttachmentSizeBytes is the largest accepted attachment.
func (p Plan) AttachmentSizeBytes() int64 {
	return p.AttachmentSizeMB * 1024 * 1024
}

// Provider looks up the active plan of an owner.
type Provider interface {
	PlanFor(ctx context.Context, ownerID string) (Plan, error)
}

func DefaultPlans() map[string]Plan {
	return map[string]Plan{
		Free: {Name: Free, AttachmentSizeMB: 10, RevisionRetentionCount: 20},
		Pro:  {Name: Pro, AttachmentSizeMB: 100, RevisionRetentionCount: 200},
		Team: {Name: Team, AttachmentSizeMB: 250, RevisionRetentionCount: 0},
	}
}

var _ Provider = (*StaticProvider)(nil)

// StaticProvider serves plans from an in-memory table and per-owner assignments.
type StaticProvider struct {
	mu          sync.RWMutex
	plans       map[string]Plan
	assignments map[string]string
	defaultPlan string
}

func NewStaticProvider(plans map[string]Plan, defaultPlan string) *StaticProvider {
	return &StaticProvider{
		plans:       plans,
		assignments: make(map[string]string),
		defaultPlan: defaultPlan,
	}
}

// Assign moves an owner to a plan.
func (s *StaticProvider) Assign(ownerID, planName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[planName]; !ok {
		return fmt.Errorf("unknown plan %q", planName)
	}
	s.assignments[ownerID] = planName
	return nil
}

func (s *StaticProvider) PlanFor(ctx context.Context, ownerID string) (Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name, ok := s.assignments[ownerID]
	if !ok {
		name = s.defaultPlan
	}

	p, ok := s.plans[name]
	if !ok {
		return Plan{}, fmt.Errorf("unknown plan %q", name)
	}

	return p, nil
}

var _ Provider = (*CachedProvider)(nil)

// CachedProvider is a read-through redis cache in front of another provider.
// Cache failures fall through to the wrapped provider.
type CachedProvider struct {
	next  Provider
	cache *cache.Redis
	ttl   time.Duration
}

func NewCachedProvider(next Provider, cache *cache.Redis, ttl time.Duration) *CachedProvider {
	return &CachedProvider{next: next, cache: cache, ttl: ttl}
}

func planKey(ownerID string) string {
	return "plan:" + ownerID
}

func (c *CachedProvider) PlanFor(ctx context.Context, ownerID string) (Plan, error) {
	var p Plan
	err := c.cache.Get(ctx, planKey(ownerID), &p)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		logrus.Warnf("plan cache read failed for %s: %v", ownerID, err)
	}

	p, err = c.next.PlanFor(ctx, ownerID)
	if err != nil {
		return Plan{}, err
	}

	if err := c.cache.Set(ctx, planKey(ownerID), p, c.ttl); err != nil {
		logrus.Warnf("plan cache write failed for %s: %v", ownerID, err)
	}

	return p, nil
}

// Invalidate drops the cached plan of an owner, called after a plan change.
func (c *CachedProvider) Invalidate(ctx context.Context, ownerID string) error {
	return c.cache.Delete(ctx, planKey(ownerID))
}

// ApplyAssignments assigns every owner to its plan and drops the cached plan
// of each reassigned owner. cached may be nil.
func ApplyAssignments(ctx context.Context, static *StaticProvider, cached *CachedProvider, assignments map[string]string) error {
	for ownerID, name := range assignments {
		if err := static.Assign(ownerID, name); err != nil {
			return fmt.Errorf("assign %s: %w", ownerID, err)
		}
		if cached == nil {
			continue
		}
		if err := cached.Invalidate(ctx, ownerID); err != nil {
			logrus.Warnf("plan cache invalidate failed for %s: %v", ownerID, err)
		}
	}

	return nil
}
