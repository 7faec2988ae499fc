package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

const sample = `
[[job]]
name = "services"

  [[job.policy]]
  condition = "new_vmo"
  action = "deny"

  [[job.process]]
  name = "echo"
  program = "echo"

  [[job.job]]
  name = "clients"

    [[job.job.process]]
    name = "client"
    program = "client"
    args = ["3"]
    connect = "echo"

[[job]]
name = "idle"
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, m.Jobs, 2)

	services := m.Jobs[0]
	assert.Equal(t, "services", services.Name)
	require.Len(t, services.Processes, 1)
	assert.Equal(t, "echo", services.Processes[0].Program)
	require.Len(t, services.Jobs, 1)

	client := services.Jobs[0].Processes[0]
	assert.Equal(t, []string{"3"}, client.Args)
	assert.Equal(t, "echo", client.Connect)

	policies, err := services.BasicPolicies()
	require.NoError(t, err)
	assert.Equal(t, []sys.PolicyBasic{{Condition: sys.PolicyNewVMO, Policy: sys.PolicyActionDeny}}, policies)
}

func TestWalkOrder(t *testing.T) {
	m, err := Parse([]byte(sample))
	require.NoError(t, err)

	var visited []string
	require.NoError(t, m.Walk(func(parent, job *Job) error {
		p := ""
		if parent != nil {
			p = parent.Name
		}
		visited = append(visited, p+">"+job.Name)
		return nil
	}))
	assert.Equal(t, []string{">services", "services>clients", ">idle"}, visited)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{"syntax", "[[job]\n", "failed to parse manifest"},
		{"unknown key", "[[job]]\nname = \"a\"\ncolour = \"red\"\n", "failed to parse manifest"},
		{"missing name", "[[job]]\n", "name is required"},
		{"long name", "[[job]]\nname = \"" + strings.Repeat("n", 40) + "\"\n", "name longer than"},
		{"bad condition", "[[job]]\nname = \"a\"\n[[job.policy]]\ncondition = \"sometimes\"\naction = \"deny\"\n", "unknown policy condition"},
		{"bad action", "[[job]]\nname = \"a\"\n[[job.policy]]\ncondition = \"new_any\"\naction = \"shrug\"\n", "unknown policy action"},
		{"no program", "[[job]]\nname = \"a\"\n[[job.process]]\nname = \"p\"\n", "program is required"},
		{"duplicate process", "[[job]]\nname = \"a\"\n[[job.process]]\nname = \"p\"\nprogram = \"x\"\n[[job.process]]\nname = \"p\"\nprogram = \"x\"\n", "declared twice"},
		{"unknown peer", "[[job]]\nname = \"a\"\n[[job.process]]\nname = \"p\"\nprogram = \"x\"\nconnect = \"q\"\n", "unknown process"},
		{"self peer", "[[job]]\nname = \"a\"\n[[job.process]]\nname = \"p\"\nprogram = \"x\"\nconnect = \"p\"\n", "itself"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	m, err := Parse([]byte(sample))
	require.NoError(t, err)
	data, err := m.Encode()
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, m, again)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, m.Jobs, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "failed to read manifest")
}

func TestParsePolicyNames(t *testing.T) {
	for _, c := range conditions {
		got, err := ParseCondition(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	for _, a := range actions {
		got, err := ParseAction(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
}
