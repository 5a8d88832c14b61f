package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/robfig/cron/v3"
)

// gcDiscardRatio is the fraction of a value-log file that must be stale
// before Badger rewrites it.
const gcDiscardRatio = 0.7

// RunGC runs one pass of value-log garbage collection.
// A pass with nothing to rewrite is not an error.
func (r *BadgerRepository) RunGC() error {
	err := r.db.RunValueLogGC(gcDiscardRatio)
	if errors.Is(err, badger.ErrNoRewrite) {
		r.log.Debug("BadgerDB GC: no rewrite needed")
		return nil
	}
	if err != nil {
		r.log.WithError(err).Error("BadgerDB GC failed")
		return err
	}
	r.log.Info("BadgerDB GC completed")
	return nil
}

// ScheduleGC starts a cron scheduler that calls RunGC on spec
// (e.g. "@every 10m"). The caller stops it with the returned scheduler's Stop.
func (r *BadgerRepository) ScheduleGC(spec string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { _ = r.RunGC() }); err != nil {
		return nil, fmt.Errorf("invalid gc schedule %q: %w", spec, err)
	}
	c.Start()
	r.log.WithField("schedule", spec).Info("BadgerDB GC scheduled")
	return c, nil
}
