// Package upgrade implements the version gate (C11): every environment
// records its schema version in __metadata. Gate.Check classifies the
// recorded version against the code's, and Gate.Upgrade runs the
// registered migration steps in order and records the new version. The
// gate does not itself block writes to an environment whose recorded
// version is older than the code's.
package upgrade

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/sinklabs/sink/pkg/log"
	"github.com/sinklabs/sink/pkg/store"
)

const (
	dbMetadata  = "__metadata"
	metaVersion = "databaseVersion"
)

// Step is one registered migration, run in ascending order starting
// just above the environment's currently recorded version.
type Step struct {
	// ToVersion is the version this step brings the environment to.
	ToVersion int
	// Migrate performs the migration inside tx; a non-nil error rolls
	// back tx and stops the upgrade, leaving the recorded version at the
	// last step that completed.
	Migrate func(tx *store.Transaction) error
}

// Gate guards one environment's schema version against the set of
// migrations the running code knows about.
type Gate struct {
	env            *store.Environment
	currentVersion int
	steps          []Step
	logger         zerolog.Logger
}

// NewGate builds a Gate for env. currentVersion is the schema version
// the running code expects; steps must be registered in ascending
// ToVersion order and contiguous from 1 to currentVersion.
func NewGate(env *store.Environment, currentVersion int, steps []Step) *Gate {
	return &Gate{
		env:            env,
		currentVersion: currentVersion,
		steps:          steps,
		logger:         log.WithComponent("upgrade"),
	}
}

// Status reports the environment's recorded version against the
// running code's current version.
type Status int

const (
	// StatusCurrent means the recorded version matches currentVersion;
	// the environment may be opened for writing immediately.
	StatusCurrent Status = iota
	// StatusNeedsUpgrade means the recorded version is older (or the
	// environment is new and has never recorded one); Upgrade must run
	// before any write is attempted.
	StatusNeedsUpgrade
	// StatusTooNew means the recorded version is newer than the running
	// code's currentVersion; opening is refused outright, downgrade is
	// not supported.
	StatusTooNew
)

// Check reads the environment's recorded version and classifies it
// against currentVersion.
func (g *Gate) Check() (Status, int, error) {
	recorded, err := g.readVersion()
	if err != nil {
		return 0, 0, err
	}
	switch {
	case recorded == g.currentVersion:
		return StatusCurrent, recorded, nil
	case recorded > g.currentVersion:
		return StatusTooNew, recorded, nil
	default:
		return StatusNeedsUpgrade, recorded, nil
	}
}

// Upgrade runs every registered step whose ToVersion is greater than
// the recorded version, in order, each inside its own write
// transaction, and finally records currentVersion. Refuses to run if
// the environment is already newer than currentVersion.
func (g *Gate) Upgrade() error {
	status, recorded, err := g.Check()
	if err != nil {
		return err
	}
	if status == StatusTooNew {
		return store.NewError(dbMetadata, store.KindVersionMismatch,
			fmt.Sprintf("database version %d is newer than supported version %d", recorded, g.currentVersion))
	}
	if status == StatusCurrent {
		return nil
	}

	for _, step := range g.steps {
		if step.ToVersion <= recorded {
			continue
		}
		g.logger.Info().Int("fromVersion", recorded).Int("toVersion", step.ToVersion).Msg("running migration step")
		tx, err := g.env.CreateTransaction(store.ReadWrite)
		if err != nil {
			return err
		}
		if err := step.Migrate(tx); err != nil {
			_ = tx.Abort()
			return fmt.Errorf("upgrade: migration to version %d failed: %w", step.ToVersion, err)
		}
		if err := g.writeVersionInTx(tx, step.ToVersion); err != nil {
			_ = tx.Abort()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		recorded = step.ToVersion
	}

	if recorded != g.currentVersion {
		if err := g.writeVersion(g.currentVersion); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gate) readVersion() (int, error) {
	tx, err := g.env.CreateTransaction(store.ReadOnly)
	if err != nil {
		return 0, err
	}
	defer tx.Abort()

	db, err := tx.Database(dbMetadata)
	if store.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var version int
	found := false
	if err := db.Scan([]byte(metaVersion), func(_, v []byte) (bool, error) {
		n, perr := strconv.Atoi(string(v))
		if perr != nil {
			return false, perr
		}
		version = n
		found = true
		return false, nil
	}); err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return version, nil
}

func (g *Gate) writeVersion(version int) error {
	tx, err := g.env.CreateTransaction(store.ReadWrite)
	if err != nil {
		return err
	}
	defer tx.Abort()
	if err := g.writeVersionInTx(tx, version); err != nil {
		return err
	}
	return tx.Commit()
}

func (g *Gate) writeVersionInTx(tx *store.Transaction, version int) error {
	db, err := tx.CreateDatabaseIfNotExists(dbMetadata, false)
	if err != nil {
		return err
	}
	return db.Write([]byte(metaVersion), []byte(strconv.Itoa(version)))
}
