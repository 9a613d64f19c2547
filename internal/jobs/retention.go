package jobs

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/notesync/internal/model"
	"github.com/sirupsen/logrus"
)

type UpdatedNotes interface {
	ListNotesUpdatedBetween(ctx context.Context, from, to time.Time) ([]*model.Note, error)
}

type Pruner interface {
	PruneRevisions(ctx context.Context, noteID, ownerID string) (int64, error)
}

var _ CronJob = (*RetentionSweeper)(nil)

// RetentionSweeper prunes the revisions of notes updated since its last run.
// It catches prunes that were dropped by a full worker pool.
type RetentionSweeper struct {
	notes    UpdatedNotes
	pruner   Pruner
	schedule string
	window   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

// NewRetentionSweeper creates a sweeper, its first run looks back over window.
func NewRetentionSweeper(schedule string, window time.Duration, notes UpdatedNotes, pruner Pruner) *RetentionSweeper {
	return &RetentionSweeper{
		notes:    notes,
		pruner:   pruner,
		schedule: schedule,
		window:   window,
		now:      time.Now,
	}
}

func (c *RetentionSweeper) Name() string {
	return "revision_retention"
}

func (c *RetentionSweeper) Schedule() string {
	return c.schedule
}

func (c *RetentionSweeper) Run() {
	c.mu.Lock()
	to := c.now().UTC()
	from := c.lastRun
	if from.IsZero() {
		from = to.Add(-c.window)
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	notes, err := c.notes.ListNotesUpdatedBetween(ctx, from, to)
	if err != nil {
		logrus.Errorf("retention: list notes updated since %s: %v", from.Format(time.RFC3339), err)
		return
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	var pruned int64
	for _, note := range notes {
		if !seen.Add(note.ID) {
			continue
		}

		n, err := c.pruner.PruneRevisions(ctx, note.ID, note.OwnerID)
		if err != nil {
			logrus.Warnf("retention: prune note %s: %v", note.ID, err)
			continue
		}
		pruned += n
	}

	c.mu.Lock()
	c.lastRun = to
	c.mu.Unlock()

	logrus.Infof("retention: checked %d notes, pruned %d revisions", seen.Cardinality(), pruned)
}
