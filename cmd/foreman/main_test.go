package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
id: nightly
name: Nightly
steps:
  - id: prepare
    type: script
    config:
      script: return { ready = true }
    next:
      - step: finish
  - id: finish
    type: wait
    config:
      duration: 1ms
`

const danglingYAML = `
id: broken
name: Broken
steps:
  - id: only
    type: script
    next:
      - step: nowhere
    config:
      script: return {}
`

func TestCheckValid(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "nightly.yaml", validYAML)

	out, errOut, err := execute("check", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "nightly, 2 steps")
	assert.Empty(t, errOut)
}

func TestCheckFailures(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "nightly.yaml", validYAML)
	bad := writeFile(t, dir, "broken.yaml", danglingYAML)
	junk := writeFile(t, dir, "junk.yaml", "steps: [")
	missing := filepath.Join(dir, "missing.yaml")

	out, errOut, err := execute("check", good, bad, junk, missing)
	assert.ErrorIs(t, err, ErrCheckFailed)
	assert.Contains(t, out, good)
	assert.Contains(t, errOut, "FAIL "+bad)
	assert.Contains(t, errOut, "FAIL "+junk)
	assert.Contains(t, errOut, "FAIL "+missing)
	assert.Contains(t, errOut, "3 of 4 files")
}

func TestCheckRequiresFiles(t *testing.T) {
	_, _, err := execute("check")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, _, err := execute("version")
	require.NoError(t, err)
	assert.Equal(t, "foreman 0.1.0\n", out)
}

func TestLoadEnv(t *testing.T) {
	assert.NoError(t, loadEnv(""))

	dir := t.TempDir()
	path := writeFile(t, dir, "test.env", "FOREMAN_TEST_VALUE=loaded\n")
	t.Setenv("FOREMAN_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("FOREMAN_TEST_VALUE"))

	require.NoError(t, loadEnv(path))
	assert.Equal(t, "loaded", os.Getenv("FOREMAN_TEST_VALUE"))

	err := loadEnv(filepath.Join(dir, "missing.env"))
	assert.ErrorIs(t, err, ErrLoadEnv)
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	t.Setenv("API_PORT", "not-a-port")
	err := runServe(t.Context(), filepath.Join(t.TempDir(), "none.env"))
	assert.ErrorIs(t, err, ErrLoadEnv)

	dir := t.TempDir()
	path := writeFile(t, dir, "bad.env", "API_PORT=not-a-port\n")
	err = runServe(t.Context(), path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func execute(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
