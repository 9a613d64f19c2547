// Package report collects the failures of best-effort steps.
//
// A Report never fails the primary operation. Callers may inspect it, merge it into
// a parent report, or ignore it; every recorded failure is also logged.
package report

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// SyncError is the failure of a single best-effort step.
type SyncError struct {
	Op     string
	Step   string
	Target string
	Err    error
}

func (e *SyncError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s/%s: %v", e.Op, e.Step, e.Err)
	}
	return fmt.Sprintf("%s/%s %s: %v", e.Op, e.Step, e.Target, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Report aggregates the SyncErrors of one operation. It is safe for concurrent use.
type Report struct {
	Op string

	mu     sync.Mutex
	errors []*SyncError
}

func New(op string) *Report {
	return &Report{Op: op}
}

// Record logs and keeps err when it is not nil. It returns true if err was recorded.
func (r *Report) Record(step, target string, err error) bool {
	if err == nil {
		return false
	}

	e := &SyncError{Op: r.Op, Step: step, Target: target, Err: err}
	logrus.WithFields(logrus.Fields{
		"op":     e.Op,
		"step":   e.Step,
		"target": e.Target,
		"error":  err,
	}).Warn("best-effort step failed")

	r.mu.Lock()
	r.errors = append(r.errors, e)
	r.mu.Unlock()

	return true
}

// Merge appends the errors of other without logging them again.
func (r *Report) Merge(other *Report) {
	if other == nil || other == r {
		return
	}

	errs := other.Errors()
	r.mu.Lock()
	r.errors = append(r.errors, errs...)
	r.mu.Unlock()
}

func (r *Report) Errors() []*SyncError {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*SyncError, len(r.errors))
	copy(out, r.errors)
	return out
}

func (r *Report) OK() bool {
	return len(r.Errors()) == 0
}

// Err joins the recorded failures, nil when there are none.
func (r *Report) Err() error {
	errs := r.Errors()
	if len(errs) == 0 {
		return nil
	}

	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return errors.Join(joined...)
}

// Steps lists the failed step names, in order.
func (r *Report) Steps() []string {
	errs := r.Errors()
	steps := make([]string, len(errs))
	for i, e := range errs {
		steps[i] = e.Step
	}
	return steps
}
