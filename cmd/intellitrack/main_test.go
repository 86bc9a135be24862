package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
logging:
  level: error
world:
  name: lab
  scenes:
    - name: bench
      lines:
        - name: edge
          from: [0, 0]
          to: [10, 0]
  detectors:
    - name: motion
      kind: movement
  assignments:
    - detector: motion
      scene: bench
`

func TestInspectPrintsTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"inspect", "-c", path})
	require.NoError(t, cmd.Execute())

	want := `lab world
  scenes group
    bench scene
      areas group
      lines group
        edge line
      detectors group
  detectors group
    motion detector
      objects group
`
	assert.Equal(t, want, out.String())
}

func TestInspectSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"inspect", "--summary", "-c", path})
	require.NoError(t, cmd.Execute())

	want := `detector 1
group 6
line 1
scene 1
world 1
`
	assert.Equal(t, want, out.String())
}

func TestInspectRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("space:\n  strategy: sparse\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"inspect", "-c", path})
	assert.Error(t, cmd.Execute())
}
