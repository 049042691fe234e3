package upgrade

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinklabs/sink/pkg/store"
)

func newEnv(t *testing.T) *store.Environment {
	t.Helper()
	env, err := store.Open(filepath.Join(t.TempDir(), "env.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func TestNewEnvironmentNeedsUpgradeThenBecomesCurrent(t *testing.T) {
	env := newEnv(t)
	g := NewGate(env, 2, []Step{
		{ToVersion: 1, Migrate: func(tx *store.Transaction) error { return nil }},
		{ToVersion: 2, Migrate: func(tx *store.Transaction) error { return nil }},
	})

	status, recorded, err := g.Check()
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsUpgrade, status)
	assert.Equal(t, 0, recorded)

	require.NoError(t, g.Upgrade())

	status, recorded, err = g.Check()
	require.NoError(t, err)
	assert.Equal(t, StatusCurrent, status)
	assert.Equal(t, 2, recorded)
}

func TestUpgradeRunsOnlyStepsAboveRecordedVersion(t *testing.T) {
	env := newEnv(t)
	var ran []int
	step := func(v int) Step {
		return Step{ToVersion: v, Migrate: func(tx *store.Transaction) error {
			ran = append(ran, v)
			return nil
		}}
	}
	require.NoError(t, NewGate(env, 1, []Step{step(1)}).Upgrade())

	ran = nil
	require.NoError(t, NewGate(env, 3, []Step{step(1), step(2), step(3)}).Upgrade())
	assert.Equal(t, []int{2, 3}, ran)
}

func TestOpeningNewerDatabaseIsRefused(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, NewGate(env, 5, nil).Upgrade())

	status, _, err := NewGate(env, 3, nil).Check()
	require.NoError(t, err)
	assert.Equal(t, StatusTooNew, status)

	err = NewGate(env, 3, nil).Upgrade()
	require.Error(t, err)
	assert.True(t, store.IsVersionMismatch(err))
}
