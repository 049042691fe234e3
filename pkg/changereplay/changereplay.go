// Package changereplay implements the per-resource change-replay cursor
// (C10): a dedicated environment holding one scalar, lastReplayedRevision,
// and a trigger loop that feeds every committed revision since that
// cursor to the owning synchronizer's replay function, advancing the
// cursor only past revisions that replayed successfully. A cycle backs
// off without consuming the cursor when an optional connection-test
// checker (SetChecker) reports the synchronizer unreachable.
package changereplay

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sinklabs/sink/pkg/entitystore"
	"github.com/sinklabs/sink/pkg/events"
	"github.com/sinklabs/sink/pkg/health"
	"github.com/sinklabs/sink/pkg/key"
	"github.com/sinklabs/sink/pkg/log"
	"github.com/sinklabs/sink/pkg/metrics"
	"github.com/sinklabs/sink/pkg/store"
)

const (
	dbMeta        = "__metadata"
	metaLastRepl  = "lastReplayedRevision"
	envNameSuffix = ".changereplay"
)

// EnvPath returns the on-disk path of the change-replay environment for
// a resource rooted at dataDir, per §6's on-disk layout:
// <data>/storage/<resource>.changereplay/.
func EnvPath(dataDir, resource string) string {
	return filepath.Join(dataDir, "storage", resource+envNameSuffix)
}

// ReplayFunc is supplied by the owning synchronizer. It is called once
// per revision, in revision order, and may fail: a failure stops the
// cursor from advancing past the first failing revision, so the next
// trigger retries from there.
type ReplayFunc func(ctx context.Context, typ string, id []byte, revision uint64, rec entitystore.Record) error

// Cursor drives outbound replay for one resource.
type Cursor struct {
	resource string
	env      *store.Environment
	entities *entitystore.Store
	replay   ReplayFunc
	checker  health.Checker
	logger   zerolog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped chan struct{}
}

// SetChecker wires a sink_connectiontest probe (§12) that Trigger
// consults before running a cycle. A resource without a synchronizer
// driver leaves this unset, and Trigger runs unconditionally.
func (c *Cursor) SetChecker(checker health.Checker) {
	c.checker = checker
}

// Open opens (creating if necessary) the <resource>.changereplay
// environment at path and wires it to entities, whose committed
// revisions it replays via fn.
func Open(path string, resource string, entities *entitystore.Store, fn ReplayFunc) (*Cursor, error) {
	env, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	return &Cursor{
		resource: resource,
		env:      env,
		entities: entities,
		replay:   fn,
		logger:   log.WithComponent("changereplay").With().Str("resource", resource).Logger(),
	}, nil
}

func (c *Cursor) Close() error { return c.env.Close() }

// LastReplayedRevision returns the persisted cursor, or 0 if replay has
// never advanced it.
func (c *Cursor) LastReplayedRevision() (uint64, error) {
	tx, err := c.env.CreateTransaction(store.ReadOnly)
	if err != nil {
		return 0, err
	}
	defer tx.Abort()
	return c.readCursor(tx)
}

func (c *Cursor) readCursor(tx *store.Transaction) (uint64, error) {
	db, err := tx.Database(dbMeta)
	if store.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var out uint64
	found := false
	if err := db.Scan([]byte(metaLastRepl), func(_, v []byte) (bool, error) {
		n, perr := strconv.ParseUint(string(v), 10, 64)
		if perr != nil {
			return false, perr
		}
		out = n
		found = true
		return false, nil
	}); err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return out, nil
}

func (c *Cursor) writeCursor(upper uint64) error {
	tx, err := c.env.CreateTransaction(store.ReadWrite)
	if err != nil {
		return err
	}
	defer tx.Abort()
	db, err := tx.CreateDatabaseIfNotExists(dbMeta, false)
	if err != nil {
		return err
	}
	if err := db.Write([]byte(metaLastRepl), []byte(strconv.FormatUint(upper, 10))); err != nil {
		return err
	}
	return tx.Commit()
}

// Start subscribes to the entity store's revision notifier and runs one
// Trigger cycle per commit batch until Stop is called. Commits are
// coalesced: if several land while a cycle is running, the next cycle
// simply catches up to the latest maxRevision.
func (c *Cursor) Start(ctx context.Context, broker *events.Broker) {
	sub := broker.Subscribe()
	c.stopCh = make(chan struct{})
	c.stopped = make(chan struct{})

	go func() {
		defer close(c.stopped)
		defer broker.Unsubscribe(sub)
		for {
			select {
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			case _, ok := <-sub:
				if !ok {
					return
				}
				if err := c.Trigger(ctx); err != nil {
					c.logger.Error().Err(err).Msg("change-replay cycle failed")
				}
			}
		}
	}()
}

// Stop halts the trigger loop started by Start and waits for it to exit.
func (c *Cursor) Stop() {
	if c.stopCh == nil {
		return
	}
	close(c.stopCh)
	<-c.stopped
}

// Trigger runs one replay cycle: every revision in (lastReplayed, maxRevision]
// is looked up in the revision log, re-materialized against the type's
// main table, and handed to the replay function in order. The cursor
// only advances past revisions that replayed without error.
func (c *Cursor) Trigger(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.checker != nil {
		if res := c.checker.Check(ctx); !res.Healthy {
			c.logger.Warn().Str("reason", res.Message).Msg("change-replay cycle skipped: connection test failed")
			return nil
		}
	}

	timer := metrics.NewTimer()
	outcome := "success"
	defer func() {
		timer.ObserveDurationVec(metrics.ChangeReplayCycleDuration, c.resource)
		metrics.ChangeReplayCyclesTotal.WithLabelValues(c.resource, outcome).Inc()
	}()

	lower, err := c.LastReplayedRevision()
	if err != nil {
		outcome = "error"
		return err
	}
	upper, err := c.entities.MaxRevision()
	if err != nil {
		outcome = "error"
		return err
	}
	metrics.ChangeReplayLagRevisions.WithLabelValues(c.resource).Set(float64(upper - lower))
	if upper <= lower {
		return nil
	}

	advanced := lower
	err = c.entities.ReadRevisions(lower+1, upper, func(revision uint64, id []byte, typ string) (bool, error) {
		rec, ok, ferr := c.entities.FindLatest(typ, id)
		if ferr != nil {
			return false, ferr
		}
		if !ok {
			advanced = revision
			return true, nil
		}
		k := key.NewKey(mustIdentifier(id), key.Revision(revision))
		if rerr := c.replay(ctx, typ, k.ToInternalByteArray(), revision, rec); rerr != nil {
			return false, rerr
		}
		advanced = revision
		return true, nil
	})
	if advanced > lower {
		if werr := c.writeCursor(advanced); werr != nil {
			outcome = "error"
			return werr
		}
		metrics.ChangeReplayLagRevisions.WithLabelValues(c.resource).Set(float64(upper - advanced))
	}
	if err != nil {
		outcome = "error"
		c.logger.Warn().Err(err).Uint64("stoppedAt", advanced+1).Msg("change-replay cycle stopped at first failing revision")
		return err
	}
	return nil
}

func mustIdentifier(b []byte) key.Identifier {
	id, err := key.IdentifierFromInternalByteArray(b)
	if err != nil {
		panic("changereplay: malformed identifier: " + err.Error())
	}
	return id
}
