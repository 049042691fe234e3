package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadResourceConfig(t *testing.T) {
	dir := t.TempDir()
	rc := &ResourceConfig{
		AccountID: "acc1",
		Type:      "maildir",
		Params:    map[string]interface{}{"path": "/home/user/Maildir"},
	}
	require.NoError(t, SaveResourceConfig(dir, "maildir.acc1", rc))

	loaded, err := LoadResourceConfig(dir, "maildir.acc1")
	require.NoError(t, err)
	assert.Equal(t, "acc1", loaded.AccountID)
	assert.Equal(t, "maildir", loaded.Type)
	assert.Equal(t, "/home/user/Maildir", loaded.Params["path"])
}

func TestLoadResourceConfigMissingFileErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadResourceConfig(dir, "nonexistent")
	assert.Error(t, err)
}

func TestRegistryRoundTripAndLookup(t *testing.T) {
	dir := t.TempDir()

	reg, err := LoadRegistry(dir)
	require.NoError(t, err)
	assert.Empty(t, reg.Resources)

	reg.Register("maildir.acc1", "maildir")
	reg.Register("imap.acc2", "imap")
	reg.Register("maildir.acc1", "maildir")
	require.NoError(t, SaveRegistry(dir, reg))

	reloaded, err := LoadRegistry(filepath.Join(dir))
	require.NoError(t, err)
	assert.Len(t, reloaded.Resources, 2)
	assert.ElementsMatch(t, []string{"maildir.acc1"}, reloaded.OfType("maildir"))
	assert.ElementsMatch(t, []string{"maildir.acc1", "imap.acc2"}, reloaded.OfType(""))

	reloaded.Unregister("imap.acc2")
	assert.Len(t, reloaded.Resources, 1)
}

func TestNewIdentifier(t *testing.T) {
	assert.Equal(t, "maildir.acc1", NewIdentifier("maildir", "acc1"))
}
