package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioYAML = `
seed: 42
regional-gis: [gis-east]
resources:
  - name: Res_0
    machines: 1
    pes: 4
    mips: 100
    cost: 3
    policy: space-shared
    regional-gis: gis-east
users:
  - name: User_0
    resource: Res_0
    workload:
      count: 3
      arrival: {kind: fixed, interval: 1}
      length: {kind: constant, value: 1000}
      pes: {kind: constant, value: 1}
`

func writeScenario(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, scenarioYAML))
	require.NoError(t, err)

	assert.Equal(t, int64(42), sc.Seed)
	require.Len(t, sc.Resources, 1)
	assert.Equal(t, "space-shared", sc.Resources[0].Policy)
	require.Len(t, sc.Users, 1)
	assert.Equal(t, 3, sc.Users[0].Workload.Count)
}

func TestLoadScenario_RejectsUnknownTarget(t *testing.T) {
	bad := `
resources:
  - {name: Res_0, machines: 1, pes: 4, mips: 100}
users:
  - name: User_0
    resource: Res_X
    workload: {count: 1}
`
	_, err := LoadScenario(writeScenario(t, bad))
	assert.Error(t, err)
}

func TestLoadScenario_RejectsEmptyResources(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, "users: []\n"))
	assert.Error(t, err)
}

func TestRunScenario_EndToEnd(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, scenarioYAML))
	require.NoError(t, err)

	dir := t.TempDir()
	statsDir = dir
	defer func() { statsDir = "" }()

	require.NoError(t, runScenario(sc))

	_, err = os.Stat(filepath.Join(dir, "User_0.csv"))
	assert.NoError(t, err, "per-entity statistics are written")
}
