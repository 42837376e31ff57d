package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--log-level", "error"))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

func TestCreateAndList(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "create", "Add bill index", "speeds up customer lookups", "--path", dir)
	require.NoError(t, err)
	_, err = execute(t, "create", "drop-unused", "--path", dir)
	require.NoError(t, err)

	for _, name := range []string{
		"000001_add_bill_index.up.sql",
		"000001_add_bill_index.down.sql",
		"000002_drop_unused.up.sql",
	} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	up, err := os.ReadFile(filepath.Join(dir, "000001_add_bill_index.up.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(up), "-- speeds up customer lookups")

	out, err := execute(t, "list", "--path", dir)
	require.NoError(t, err)
	assert.Equal(t, "  - 000001_add_bill_index\n  - 000002_drop_unused\n", out)
}

func TestArgumentValidation(t *testing.T) {
	_, err := execute(t, "create")
	assert.Error(t, err)

	_, err = execute(t, "step")
	assert.Error(t, err)

	_, err = execute(t, "up", "extra")
	assert.Error(t, err)

	_, err = execute(t, "bogus")
	assert.Error(t, err)
}
