package main

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/pingcap-incubator/tinystm/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, cmdArgs ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRunCommand()
	switch cmdArgs[0] {
	case "config-check":
		cmd = newConfigCheckCommand()
	case "version":
		cmd = newVersionCommand()
	}
	cmd.SetOutput(&out)
	cmd.SetArgs(cmdArgs[1:])
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Release Version:")
	assert.Contains(t, out, "Git Commit Hash:")
}

func TestConfigCheck(t *testing.T) {
	out, err := execute(t, "config-check", "--philosophers", "4", "--region-size", "1KiB")
	require.NoError(t, err)
	assert.Contains(t, out, "config check successful")
	assert.Contains(t, out, "philosophers = 4")
	assert.Contains(t, out, `region-size = "1KiB"`)

	_, err = execute(t, "config-check", "--philosophers", "1")
	assert.Error(t, err)
}

func TestConfigCheckWarnings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tinystm.toml")
	require.NoError(t, ioutil.WriteFile(path, []byte("unknown-item = 1\n"), 0644))
	out, err := execute(t, "config-check", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "unknown-item")
	assert.NotContains(t, out, "config check successful")
}

func TestRun(t *testing.T) {
	out, err := execute(t, "run",
		"--log-level", "error",
		"--output", "json",
		"--philosophers", "4",
		"--rounds", "100",
		"--observer-samples", "20",
		"--observer-interval", "0s")
	require.NoError(t, err)

	var report workload.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Interrupted)
	assert.Len(t, report.Spins, 4)
	assert.True(t, report.Stats.WriteCommits >= 800)
}
