// Package revision records the edit history of notes and prunes it per plan.
package revision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emrgen/notesync/internal/compress"
	"github.com/emrgen/notesync/internal/model"
	"github.com/emrgen/notesync/internal/plan"
	"github.com/emrgen/notesync/internal/store"
	"github.com/emrgen/notesync/internal/worker"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	maxAttempts  = 5
	pruneTimeout = 30 * time.Second
)

var (
	// ErrInvalidCause is returned for a cause other than manual, ai or collab.
	ErrInvalidCause = errors.New("invalid revision cause")
	// ErrNumberConflict is returned when concurrent writers kept taking the next number.
	ErrNumberConflict = errors.New("revision number conflict")
)

// Revision is a decoded revision row.
type Revision struct {
	ID             string    `json:"id"`
	NoteID         string    `json:"noteId"`
	RevisionNumber int64     `json:"revisionNumber"`
	OwnerID        string    `json:"ownerId"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Diff           string    `json:"diff,omitempty"`
	DiffFormat     string    `json:"diffFormat"`
	FullSnapshot   bool      `json:"fullSnapshot"`
	Cause          string    `json:"cause"`
	CreatedAt      time.Time `json:"createdAt"`
}

type Option func(*Tracker)

func WithDiffer(d Differ) Option {
	return func(t *Tracker) {
		t.diff = d
	}
}

type Tracker struct {
	store store.RevisionStore
	plans plan.Provider
	codec compress.Compress
	pool  *worker.Pool
	diff  Differ
	now   func() time.Time
}

func NewTracker(store store.RevisionStore, plans plan.Provider, codec compress.Compress, pool *worker.Pool, opts ...Option) *Tracker {
	t := &Tracker{
		store: store,
		plans: plans,
		codec: codec,
		pool:  pool,
		diff:  PatchDiff,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}

	return t
}

func validCause(cause string) (string, error) {
	switch cause {
	case "":
		return model.RevisionCauseManual, nil
	case model.RevisionCauseManual, model.RevisionCauseAI, model.RevisionCauseCollab:
		return cause, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCause, cause)
	}
}

// RecordRevision stores the transition from before to after as revision max+1.
// The first revision of a note, and any revision whose diff fails, is a full snapshot.
// An update that left title and content alone gets an empty patch.
func (t *Tracker) RecordRevision(ctx context.Context, noteID, ownerID string, before, after Snapshot, cause string) (*model.NoteRevision, error) {
	cause, err := validCause(cause)
	if err != nil {
		return nil, err
	}

	content, err := t.codec.Encode([]byte(after.Content))
	if err != nil {
		return nil, err
	}

	var (
		diff    string
		diffErr error
		diffed  bool
	)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		latest, err := t.store.MaxRevisionNumber(ctx, noteID)
		if err != nil {
			return nil, err
		}

		rev := &model.NoteRevision{
			ID:             uuid.New().String(),
			NoteID:         noteID,
			RevisionNumber: latest + 1,
			OwnerID:        ownerID,
			Title:          after.Title,
			Content:        content,
			Compression:    t.codec.Name(),
			DiffFormat:     FormatSnapshot,
			FullSnapshot:   true,
			Cause:          cause,
			CreatedAt:      t.now(),
		}

		if latest > 0 && before == after {
			// tag, status or visibility only updates
			rev.DiffFormat = FormatPatch
			rev.FullSnapshot = false
		} else if latest > 0 {
			if !diffed {
				diff, diffErr = t.safeDiff(before, after)
				diffed = true
				if diffErr != nil {
					logrus.Warnf("diff for note %s failed, storing full snapshot: %v", noteID, diffErr)
				}
			}
			if diffErr == nil {
				rev.Diff = diff
				rev.DiffFormat = FormatPatch
				rev.FullSnapshot = false
			}
		}

		err = t.store.CreateRevision(ctx, rev)
		if errors.Is(err, store.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return nil, err
		}

		return rev, nil
	}

	return nil, ErrNumberConflict
}

func (t *Tracker) safeDiff(before, after Snapshot) (diff string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("diff panicked: %v", r)
		}
	}()

	return t.diff(before, after)
}

// PruneRevisions deletes the oldest revisions beyond the owner's plan retention count.
func (t *Tracker) PruneRevisions(ctx context.Context, noteID, ownerID string) (int64, error) {
	p, err := t.plans.PlanFor(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	keep := p.RevisionRetentionCount
	if keep <= 0 {
		return 0, nil
	}

	numbers, err := t.store.ListRevisionNumbers(ctx, noteID)
	if err != nil {
		return 0, err
	}
	if len(numbers) <= keep {
		return 0, nil
	}

	return t.store.DeleteRevisionsUpTo(ctx, noteID, numbers[keep])
}

// SchedulePrune runs PruneRevisions in the background. Failures are only logged.
func (t *Tracker) SchedulePrune(noteID, ownerID string) {
	t.pool.Submit(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
		defer cancel()

		n, err := t.PruneRevisions(ctx, noteID, ownerID)
		if err != nil {
			return fmt.Errorf("prune revisions of note %s: %w", noteID, err)
		}
		if n > 0 {
			logrus.Infof("pruned %d revisions of note %s", n, noteID)
		}
		return nil
	})
}

// ListRevisions returns the decoded revisions of a note, newest first.
func (t *Tracker) ListRevisions(ctx context.Context, noteID string) ([]*Revision, error) {
	rows, err := t.store.ListRevisions(ctx, noteID)
	if err != nil {
		return nil, err
	}

	revs := make([]*Revision, 0, len(rows))
	for _, row := range rows {
		rev, err := decode(row)
		if err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}

	return revs, nil
}

func (t *Tracker) GetRevision(ctx context.Context, noteID string, number int64) (*Revision, error) {
	row, err := t.store.GetRevision(ctx, noteID, number)
	if err != nil {
		return nil, err
	}

	return decode(row)
}

func decode(row *model.NoteRevision) (*Revision, error) {
	codec, err := compress.ByName(row.Compression)
	if err != nil {
		return nil, err
	}

	content, err := codec.Decode(row.Content)
	if err != nil {
		return nil, fmt.Errorf("decode revision %d of note %s: %w", row.RevisionNumber, row.NoteID, err)
	}

	return &Revision{
		ID:             row.ID,
		NoteID:         row.NoteID,
		RevisionNumber: row.RevisionNumber,
		OwnerID:        row.OwnerID,
		Title:          row.Title,
		Content:        string(content),
		Diff:           row.Diff,
		DiffFormat:     row.DiffFormat,
		FullSnapshot:   row.FullSnapshot,
		Cause:          row.Cause,
		CreatedAt:      row.CreatedAt,
	}, nil
}
