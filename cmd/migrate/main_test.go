package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute(t *testing.T) {
	t.Run("unknown command", func(t *testing.T) {
		err := execute(nil, t.TempDir(), "sideways", nil)
		assert.ErrorContains(t, err, "unknown command")
	})

	t.Run("create requires a name", func(t *testing.T) {
		err := execute(nil, t.TempDir(), "create", nil)
		assert.ErrorContains(t, err, "migration name")
	})

	t.Run("create writes a sql migration", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, execute(nil, dir, "create", []string{"add_deal_tags"}))

		matches, err := filepath.Glob(filepath.Join(dir, "*_add_deal_tags.sql"))
		require.NoError(t, err)
		require.Len(t, matches, 1)

		content, err := os.ReadFile(matches[0])
		require.NoError(t, err)
		assert.Contains(t, string(content), "-- +goose Up")
	})

	t.Run("targeted commands need a version", func(t *testing.T) {
		for _, name := range []string{"up-to", "down-to"} {
			err := execute(nil, t.TempDir(), name, []string{"latest"})
			assert.ErrorContains(t, err, "invalid version", name)

			err = execute(nil, t.TempDir(), name, nil)
			assert.ErrorContains(t, err, "target version", name)
		}
	})
}

func TestCommandNames(t *testing.T) {
	names := commandNames()
	assert.Equal(t, []string{"create", "down", "down-to", "redo", "reset", "status", "up", "up-to", "version"}, names)
}
