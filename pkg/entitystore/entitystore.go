// Package entitystore implements the revisioned entity store (C6): the
// main per-type table keyed by Identifier⧺Revision, the shared revision
// log, and the uid/type indexes, with every mutation running the
// registered pipeline inside the same write transaction.
package entitystore

import (
	"bytes"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sinklabs/sink/pkg/domain"
	"github.com/sinklabs/sink/pkg/events"
	"github.com/sinklabs/sink/pkg/key"
	"github.com/sinklabs/sink/pkg/log"
	"github.com/sinklabs/sink/pkg/metrics"
	"github.com/sinklabs/sink/pkg/pipeline"
	"github.com/sinklabs/sink/pkg/store"
)

const (
	dbRevisions     = "revisions"
	dbRevisionType  = "revisionType"
	dbUids          = "uids"
	dbTypeuids      = "typeuids"
	dbMetadata      = "__metadata"
	metaMaxRevision = "maxRevision"
	metaCleanedUp   = "cleanedUpRevision"
)

// Store is the revisioned entity store for one resource environment.
type Store struct {
	env       *store.Environment
	pipelines map[string]*pipeline.Pipeline
	logger    zerolog.Logger
	broker    *events.Broker
	resource  string
}

// Open opens (creating if necessary) the entity store environment at path.
func Open(path string) (*Store, error) {
	env, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	return &Store{
		env:       env,
		pipelines: map[string]*pipeline.Pipeline{},
		logger:    log.WithComponent("entitystore"),
		resource:  filepath.Base(path),
	}, nil
}

func (s *Store) Close() error { return s.env.Close() }

// Env exposes the underlying environment so other components (the query
// runner, the change-replay cursor) can open their own transactions
// against the same databases this store writes to.
func (s *Store) Env() *store.Environment { return s.env }

// RegisterPipeline associates the preprocessor chain run for every
// mutation of entities of type typ. A type with no registered pipeline
// still gets its record written; it simply has no index maintenance.
func (s *Store) RegisterPipeline(typ string, p *pipeline.Pipeline) {
	s.pipelines[typ] = p
}

// SetBroker wires the revision notifier every successful commit
// publishes to, so live queries (C9) learn about new revisions without
// polling maxRevision.
func (s *Store) SetBroker(b *events.Broker) { s.broker = b }

func (s *Store) publish(typ string, revision uint64) {
	if s.broker != nil {
		s.broker.Publish(events.RevisionCommitted{Type: typ, Revision: revision})
	}
}

// commit commits tx and records the commit metrics (§10.5): a counter
// split by outcome and a duration histogram, both labeled by resource.
func (s *Store) commit(tx *store.Transaction) error {
	timer := metrics.NewTimer()
	err := tx.Commit()
	timer.ObserveDurationVec(metrics.StoreCommitDuration, s.resource)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.StoreCommitsTotal.WithLabelValues(s.resource, outcome).Inc()
	if err == nil {
		if max, merr := s.MaxRevision(); merr == nil {
			metrics.StoreMaxRevision.WithLabelValues(s.resource).Set(float64(max))
		}
		if cleaned, cerr := s.CleanedUpRevision(); cerr == nil {
			metrics.StoreCleanedUpRevision.WithLabelValues(s.resource).Set(float64(cleaned))
		}
	}
	return err
}

func (s *Store) pipelineFor(typ string) *pipeline.Pipeline {
	if p, ok := s.pipelines[typ]; ok {
		return p
	}
	return pipeline.New()
}

func mainDBName(typ string) string { return typ + ".main" }

// Add creates a new entity of type typ. If id is nil, a fresh identifier
// is generated. Returns the identifier and the revision it was written
// at. Fails with KindConstraintViolation if id already names a live
// (non-tombstoned) entity.
func (s *Store) Add(typ string, id []byte, e *domain.Entity) ([]byte, uint64, error) {
	tx, err := s.env.CreateTransaction(store.ReadWrite)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Abort()

	if id == nil {
		id = key.NewIdentifier().ToInternalByteArray()
	}

	if prior, ok, err := s.findLatestInTx(tx, typ, id); err != nil {
		return nil, 0, err
	} else if ok && !prior.IsTombstone() {
		return nil, 0, store.NewError(mainDBName(typ), store.KindConstraintViolation, "identifier already exists")
	}

	newRevision, err := s.nextRevision(tx)
	if err != nil {
		return nil, 0, err
	}

	record := Record{
		Revision:   newRevision,
		Operation:  OpCreate,
		Properties: e.Properties(),
		Changed:    e.AvailableProperties(),
		WrittenAt:  timeNow(),
	}

	if err := s.writeRecord(tx, typ, id, newRevision, record); err != nil {
		return nil, 0, err
	}
	if err := s.registerUid(tx, typ, id); err != nil {
		return nil, 0, err
	}
	if err := s.pipelineFor(typ).Created(tx, id, e); err != nil {
		return nil, 0, err
	}

	if err := s.commit(tx); err != nil {
		s.logger.Error().Err(err).Str("type", typ).Msg("commit of new entity failed")
		return nil, 0, err
	}
	s.publish(typ, newRevision)
	return id, newRevision, nil
}

// Modify updates an existing entity. deletions names properties to
// remove outright; e carries the new/changed property values. baseRevision,
// if non-zero, must not be older than the stored latest revision, or the
// write fails with KindConflict.
func (s *Store) Modify(typ string, id []byte, e *domain.Entity, deletions []string, baseRevision uint64) (uint64, error) {
	tx, err := s.env.CreateTransaction(store.ReadWrite)
	if err != nil {
		return 0, err
	}
	defer tx.Abort()

	prior, ok, err := s.findLatestInTx(tx, typ, id)
	if err != nil {
		return 0, err
	}
	if !ok || prior.IsTombstone() {
		return 0, store.NewError(mainDBName(typ), store.KindNotFound, "no prior revision for identifier")
	}
	if baseRevision != 0 && baseRevision < prior.Revision {
		return 0, store.NewError(mainDBName(typ), store.KindConflict, "modify against a stale base revision")
	}

	merged := make(map[string]any, len(prior.Properties))
	for k, v := range prior.Properties {
		merged[k] = v
	}
	for _, p := range e.AvailableProperties() {
		v, _ := e.Get(p)
		merged[p] = v
	}
	changedSet := map[string]bool{}
	for _, p := range e.ChangedProperties() {
		changedSet[p] = true
	}
	for _, p := range deletions {
		delete(merged, p)
		changedSet[p] = true
	}
	changed := make([]string, 0, len(changedSet))
	for p := range changedSet {
		changed = append(changed, p)
	}

	newRevision, err := s.nextRevision(tx)
	if err != nil {
		return 0, err
	}
	record := Record{
		Revision:   newRevision,
		Operation:  OpModify,
		Properties: merged,
		Changed:    changed,
		WrittenAt:  timeNow(),
	}
	if err := s.writeRecord(tx, typ, id, newRevision, record); err != nil {
		return 0, err
	}

	oldEntity := domain.Load(domain.Type(typ), domain.Coerce(domain.Type(typ), prior.Properties))
	newEntity := domain.Load(domain.Type(typ), domain.Coerce(domain.Type(typ), merged))
	if err := s.pipelineFor(typ).Modified(tx, id, oldEntity, newEntity); err != nil {
		return 0, err
	}

	if err := s.commit(tx); err != nil {
		s.logger.Error().Err(err).Str("type", typ).Msg("commit of modified entity failed")
		return 0, err
	}
	s.publish(typ, newRevision)
	return newRevision, nil
}

// Remove writes a tombstone revision for id. Preprocessors receive the
// last live record so they can remove its index entries.
func (s *Store) Remove(typ string, id []byte) (uint64, error) {
	tx, err := s.env.CreateTransaction(store.ReadWrite)
	if err != nil {
		return 0, err
	}
	defer tx.Abort()

	prior, ok, err := s.findLatestInTx(tx, typ, id)
	if err != nil {
		return 0, err
	}
	if !ok || prior.IsTombstone() {
		return 0, store.NewError(mainDBName(typ), store.KindNotFound, "no live entity for identifier")
	}

	newRevision, err := s.nextRevision(tx)
	if err != nil {
		return 0, err
	}
	record := Record{
		Revision:  newRevision,
		Operation: OpDelete,
		WrittenAt: timeNow(),
	}
	if err := s.writeRecord(tx, typ, id, newRevision, record); err != nil {
		return 0, err
	}

	oldEntity := domain.Load(domain.Type(typ), domain.Coerce(domain.Type(typ), prior.Properties))
	if err := s.pipelineFor(typ).Deleted(tx, id, oldEntity); err != nil {
		return 0, err
	}

	if err := s.commit(tx); err != nil {
		s.logger.Error().Err(err).Str("type", typ).Msg("commit of tombstone failed")
		return 0, err
	}
	s.publish(typ, newRevision)
	return newRevision, nil
}

// FindLatest returns the latest revision record for id, and whether one
// exists at all (false if the identifier has never been written).
func (s *Store) FindLatest(typ string, id []byte) (Record, bool, error) {
	tx, err := s.env.CreateTransaction(store.ReadOnly)
	if err != nil {
		return Record{}, false, err
	}
	defer tx.Abort()
	return s.findLatestInTx(tx, typ, id)
}

func (s *Store) findLatestInTx(tx *store.Transaction, typ string, id []byte) (Record, bool, error) {
	db, err := tx.Database(mainDBName(typ))
	if store.IsNotFound(err) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}

	var rec Record
	found := false
	err = db.FindLatest(id, func(_, v []byte) error {
		r, err := decodeRecord(v)
		if err != nil {
			return err
		}
		rec = r
		found = true
		return nil
	})
	if store.IsNotFound(err) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, found, nil
}

// ReadAllUids visits every identifier registered for typ exactly once,
// whether or not it is currently tombstoned.
func (s *Store) ReadAllUids(typ string, fn func(id []byte) (bool, error)) error {
	tx, err := s.env.CreateTransaction(store.ReadOnly)
	if err != nil {
		return err
	}
	defer tx.Abort()

	db, err := tx.Database(dbTypeuids)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return db.Scan([]byte(typ), func(_, v []byte) (bool, error) {
		return fn(append([]byte{}, v...))
	})
}

// ReadAll visits the latest live (non-tombstoned) record of every
// identifier registered for typ.
func (s *Store) ReadAll(typ string, fn func(id []byte, rec Record) (bool, error)) error {
	var outerErr error
	keepGoing := true
	err := s.ReadAllUids(typ, func(id []byte) (bool, error) {
		rec, ok, err := s.FindLatest(typ, id)
		if err != nil {
			return false, err
		}
		if !ok || rec.IsTombstone() {
			return true, nil
		}
		keepGoing, outerErr = fn(id, rec)
		if outerErr != nil {
			return false, outerErr
		}
		return keepGoing, nil
	})
	if err != nil {
		return err
	}
	return outerErr
}

// ReadRevisions visits every (revision, identifier, type) triple with
// revision in [lower, upper], in revision order.
func (s *Store) ReadRevisions(lower, upper uint64, fn func(revision uint64, id []byte, typ string) (bool, error)) error {
	tx, err := s.env.CreateTransaction(store.ReadOnly)
	if err != nil {
		return err
	}
	defer tx.Abort()

	revisionsDB, err := tx.Database(dbRevisions)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	revisionTypeDB, err := tx.Database(dbRevisionType)
	if err != nil {
		return err
	}

	lowerKey := key.Revision(lower).ToInternalByteArray()
	upperKey := key.Revision(upper).ToInternalByteArray()

	return revisionsDB.FindAllInRange(lowerKey, upperKey, func(k, v []byte) (bool, error) {
		rev, err := key.RevisionFromInternalByteArray(k)
		if err != nil {
			return false, err
		}
		var typ string
		if err := revisionTypeDB.Scan(k, func(_, tv []byte) (bool, error) {
			typ = string(tv)
			return false, nil
		}); err != nil {
			return false, err
		}
		return fn(uint64(rev), append([]byte{}, v...), typ)
	})
}

// MaxRevision returns the highest revision committed so far in this
// environment, or 0 if none has been written yet.
func (s *Store) MaxRevision() (uint64, error) {
	tx, err := s.env.CreateTransaction(store.ReadOnly)
	if err != nil {
		return 0, err
	}
	defer tx.Abort()
	return s.readMetaUint(tx, metaMaxRevision)
}

// CleanedUpRevision returns the low-watermark below which revisions have
// already been garbage collected.
func (s *Store) CleanedUpRevision() (uint64, error) {
	tx, err := s.env.CreateTransaction(store.ReadOnly)
	if err != nil {
		return 0, err
	}
	defer tx.Abort()
	return s.readMetaUint(tx, metaCleanedUp)
}

func (s *Store) nextRevision(tx *store.Transaction) (uint64, error) {
	current, err := s.readMetaUint(tx, metaMaxRevision)
	if err != nil {
		return 0, err
	}
	next := current + 1
	db, err := tx.CreateDatabaseIfNotExists(dbMetadata, false)
	if err != nil {
		return 0, err
	}
	if err := db.Write([]byte(metaMaxRevision), []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) readMetaUint(tx *store.Transaction, name string) (uint64, error) {
	db, err := tx.Database(dbMetadata)
	if store.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var out uint64
	found := false
	if err := db.Scan([]byte(name), func(_, v []byte) (bool, error) {
		n, err := strconv.ParseUint(string(v), 10, 64)
		if err != nil {
			return false, err
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

func (s *Store) writeRecord(tx *store.Transaction, typ string, id []byte, revision uint64, record Record) error {
	mainDB, err := tx.CreateDatabaseIfNotExists(mainDBName(typ), false)
	if err != nil {
		return err
	}
	encoded, err := encodeRecord(record)
	if err != nil {
		return err
	}
	k := key.NewKey(mustIdentifier(id), key.Revision(revision)).ToInternalByteArray()
	if err := mainDB.Write(k, encoded); err != nil {
		return err
	}

	revisionsDB, err := tx.CreateDatabaseIfNotExists(dbRevisions, false)
	if err != nil {
		return err
	}
	if err := revisionsDB.Write(key.Revision(revision).ToInternalByteArray(), id); err != nil {
		return err
	}

	revisionTypeDB, err := tx.CreateDatabaseIfNotExists(dbRevisionType, false)
	if err != nil {
		return err
	}
	return revisionTypeDB.Write(key.Revision(revision).ToInternalByteArray(), []byte(typ))
}

func (s *Store) registerUid(tx *store.Transaction, typ string, id []byte) error {
	uidsDB, err := tx.CreateDatabaseIfNotExists(dbUids, false)
	if err != nil {
		return err
	}
	if err := uidsDB.Write(id, []byte(typ)); err != nil {
		return err
	}
	typeuidsDB, err := tx.CreateDatabaseIfNotExists(dbTypeuids, true)
	if err != nil {
		return err
	}
	return typeuidsDB.Write([]byte(typ), id)
}

// CollectGarbage drops every revision of typ's entities at or below
// lowWatermark, keeping only the latest revision of each identifier —
// unless the latest revision is itself a tombstone at or below the
// watermark, in which case the identifier is fully retired (its
// revision-log entries and uid registration removed too). lowWatermark
// is normally the lowest revision every live query has already
// processed; advancing cleanedUpRevision past a revision a live query
// still has to read would make that query's replay cursor unsatisfiable.
func (s *Store) CollectGarbage(typ string, lowWatermark uint64) (int, error) {
	tx, err := s.env.CreateTransaction(store.ReadWrite)
	if err != nil {
		return 0, err
	}
	defer tx.Abort()

	mainDB, err := tx.Database(mainDBName(typ))
	if store.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	revisionsDB, err := tx.Database(dbRevisions)
	if err != nil {
		return 0, err
	}
	revisionTypeDB, err := tx.Database(dbRevisionType)
	if err != nil {
		return 0, err
	}

	type group struct {
		id   []byte
		keys [][]byte
		recs []Record
	}
	var groups []group
	var cur *group
	if err := mainDB.Scan(nil, func(k, v []byte) (bool, error) {
		parsed, err := key.KeyFromInternalByteArray(k)
		if err != nil {
			return false, err
		}
		rec, err := decodeRecord(v)
		if err != nil {
			return false, err
		}
		id := parsed.Identifier().ToInternalByteArray()
		if cur == nil || !bytes.Equal(cur.id, id) {
			groups = append(groups, group{id: id})
			cur = &groups[len(groups)-1]
		}
		cur.keys = append(cur.keys, append([]byte{}, k...))
		cur.recs = append(cur.recs, rec)
		return true, nil
	}); err != nil {
		return 0, err
	}

	removed := 0
	for _, g := range groups {
		last := len(g.recs) - 1
		latest := g.recs[last]
		if latest.IsTombstone() && latest.Revision <= lowWatermark {
			for _, k := range g.keys {
				if err := mainDB.Remove(k); err != nil {
					return removed, err
				}
			}
			if err := s.retireIdentifier(tx, revisionsDB, revisionTypeDB, typ, g.id, g.recs); err != nil {
				return removed, err
			}
			removed += len(g.keys)
			continue
		}
		for i := 0; i < last; i++ {
			if g.recs[i].Revision > lowWatermark {
				continue
			}
			if err := mainDB.Remove(g.keys[i]); err != nil {
				return removed, err
			}
			if err := s.removeRevisionLogEntry(revisionsDB, revisionTypeDB, g.recs[i].Revision); err != nil {
				return removed, err
			}
			removed++
		}
	}

	if err := s.advanceCleanedUpRevision(tx, lowWatermark); err != nil {
		return removed, err
	}
	if err := s.commit(tx); err != nil {
		s.logger.Error().Err(err).Str("type", typ).Msg("commit of garbage collection failed")
		return removed, err
	}
	s.logger.Info().Str("type", typ).Int("removed", removed).Uint64("watermark", lowWatermark).Msg("garbage collection pass complete")
	return removed, nil
}

func (s *Store) retireIdentifier(tx *store.Transaction, revisionsDB, revisionTypeDB *store.NamedDatabase, typ string, id []byte, recs []Record) error {
	for _, r := range recs {
		if err := s.removeRevisionLogEntry(revisionsDB, revisionTypeDB, r.Revision); err != nil {
			return err
		}
	}
	if uidsDB, err := tx.Database(dbUids); err == nil {
		if err := uidsDB.Remove(id); err != nil {
			return err
		}
	}
	if typeuidsDB, err := tx.Database(dbTypeuids); err == nil {
		if err := typeuidsDB.RemoveValue([]byte(typ), id); err != nil {
			return err
		}
	}
	return nil
}

// removeRevisionLogEntry strips revision's entry from both the shared
// revision log and its type-lookup side table, for a revision no live
// query can still need (at or below the GC low watermark).
func (s *Store) removeRevisionLogEntry(revisionsDB, revisionTypeDB *store.NamedDatabase, revision uint64) error {
	revKey := key.Revision(revision).ToInternalByteArray()
	if err := revisionsDB.Remove(revKey); err != nil {
		return err
	}
	return revisionTypeDB.Remove(revKey)
}

func (s *Store) advanceCleanedUpRevision(tx *store.Transaction, watermark uint64) error {
	current, err := s.readMetaUint(tx, metaCleanedUp)
	if err != nil {
		return err
	}
	if watermark <= current {
		return nil
	}
	db, err := tx.CreateDatabaseIfNotExists(dbMetadata, false)
	if err != nil {
		return err
	}
	return db.Write([]byte(metaCleanedUp), []byte(strconv.FormatUint(watermark, 10)))
}

func mustIdentifier(b []byte) key.Identifier {
	id, err := key.IdentifierFromInternalByteArray(b)
	if err != nil {
		panic("entitystore: malformed identifier: " + err.Error())
	}
	return id
}

// timeNow is a var so tests can make it deterministic if ever needed.
var timeNow = time.Now
