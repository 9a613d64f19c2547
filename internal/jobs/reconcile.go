package jobs

import (
	"context"
	"time"

	"github.com/emrgen/notesync/internal/audit"
	"github.com/sirupsen/logrus"
)

var _ CronJob = (*ReconcileTask)(nil)

// ReconcileTask repairs the tag pivots and usage counters of every owner.
type ReconcileTask struct {
	toolkit  *audit.Toolkit
	schedule string
	timeout  time.Duration
}

func NewReconcileTask(schedule string, toolkit *audit.Toolkit) *ReconcileTask {
	return &ReconcileTask{
		toolkit:  toolkit,
		schedule: schedule,
		timeout:  10 * time.Minute,
	}
}

func (r *ReconcileTask) Name() string {
	return "tag_reconcile"
}

func (r *ReconcileTask) Schedule() string {
	return r.schedule
}

func (r *ReconcileTask) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	owners, err := r.toolkit.Owners(ctx)
	if err != nil {
		logrus.Errorf("reconcile: list owners: %v", err)
		return
	}

	start := time.Now()
	repaired := 0
	for _, owner := range owners {
		res, rep, err := r.toolkit.Repair(ctx, owner)
		if err != nil {
			logrus.Errorf("reconcile owner %s: %v", owner, err)
			continue
		}
		if !rep.OK() {
			logrus.Warnf("reconcile owner %s finished with %d failed steps", owner, len(rep.Errors()))
		}
		if res.Backfill.Patched+res.Dedupe.Removed+res.Reconcile.Corrected > 0 {
			repaired++
		}
	}

	logrus.Infof("reconciled %d owners, %d had drift, took %s", len(owners), repaired, time.Since(start))
}
