package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeeperTargets(t *testing.T) {
	ctxA := solana.NewWallet().PublicKey()
	ctxB := solana.NewWallet().PublicKey()

	raw := `{
		"` + ctxB.String() + `": {"program": " Event ", "static": {"probability": 500000}},
		"` + ctxA.String() + `": {"program": "volatility", "source": "PYTH", "feed": "0xabc"}
	}`

	targets, err := parseKeeperTargets(raw)
	require.NoError(t, err)
	require.Len(t, targets, 2)

	byContext := map[solana.PublicKey]KeeperTarget{}
	for _, target := range targets {
		byContext[target.Context] = target
	}
	assert.Less(t, targets[0].Context.String(), targets[1].Context.String())

	event := byContext[ctxB]
	assert.Equal(t, "event", event.Program)
	assert.Equal(t, "static", event.Source)
	assert.JSONEq(t, `{"probability": 500000}`, string(event.Static))

	vol := byContext[ctxA]
	assert.Equal(t, "pyth", vol.Source)
	assert.Equal(t, "0xabc", vol.Feed)
}

func TestParseKeeperTargetsRejects(t *testing.T) {
	ctx := solana.NewWallet().PublicKey().String()

	cases := map[string]string{
		"bad json":     `{`,
		"bad context":  `{"nope": {"program": "event"}}`,
		"bad source":   `{"` + ctx + `": {"program": "event", "source": "carrier-pigeon"}}`,
		"missing feed": `{"` + ctx + `": {"program": "event", "source": "ws"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseKeeperTargets(raw)
			assert.Error(t, err)
		})
	}

	targets, err := parseKeeperTargets("  ")
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestLoadProgramIDs(t *testing.T) {
	solver := solana.NewWallet().PublicKey()
	jpy := solana.NewWallet().PublicKey()
	t.Setenv("SOLVER_MATCHER_PROGRAM_ID", solver.String())
	t.Setenv("JPY_MATCHER_PROGRAM_ID", jpy.String())
	t.Setenv("VOL_MATCHER_PROGRAM_ID", "")
	t.Setenv("MACRO_MATCHER_PROGRAM_ID", "")
	t.Setenv("EVENT_MATCHER_PROGRAM_ID", "")

	ids, err := loadProgramIDs()
	require.NoError(t, err)
	assert.Equal(t, ProgramIDs{"solver": solver, "compliance": jpy}, ids)
	assert.Equal(t, []string{"compliance", "solver"}, ids.Names())

	t.Setenv("EVENT_MATCHER_PROGRAM_ID", "not-a-key")
	_, err = loadProgramIDs()
	assert.Error(t, err)
}

func TestFlattenYAML(t *testing.T) {
	flat, err := flattenYAML([]byte(`
keeper:
  poll-interval: 5s
  skip_preflight: true
  targets_json: ~
solana:
  rpc_url: http://rpc
api_server:
  allowed_origins: [https://a.example, " ", https://b.example]
`))
	require.NoError(t, err)
	assert.Equal(t, "5s", flat["KEEPER_POLL_INTERVAL"])
	assert.Equal(t, "true", flat["KEEPER_SKIP_PREFLIGHT"])
	assert.Equal(t, "http://rpc", flat["SOLANA_RPC_URL"])
	assert.Equal(t, "https://a.example,https://b.example", flat["API_SERVER_ALLOWED_ORIGINS"])
	assert.NotContains(t, flat, "KEEPER_TARGETS_JSON")

	_, err = flattenYAML([]byte("- a\n- b\n"))
	assert.Error(t, err)
	_, err = flattenYAML([]byte("a: [{b: 1}]"))
	assert.Error(t, err)
}

func TestEnvSegment(t *testing.T) {
	assert.Equal(t, "RPC_URL", envSegment(" rpc--url "))
	assert.Equal(t, "A1_B", envSegment("a1.b."))
	assert.Empty(t, envSegment("__"))
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("indexer:\n  db_dsn: postgres://file\n"), 0o644))

	s, err := loadSettings("", path)
	require.NoError(t, err)
	assert.True(t, s.source.Loaded)
	assert.Equal(t, "local", s.source.Phase)
	assert.Equal(t, "postgres://file", s.lookup("INDEXER_DB_DSN"))

	t.Setenv("INDEXER_DB_DSN", "postgres://env")
	assert.Equal(t, "postgres://env", s.lookup("INDEXER_DB_DSN"))

	_, err = loadSettings("prod", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	s, err = loadSettings("staging", "")
	require.NoError(t, err)
	assert.False(t, s.source.Loaded)
}

func TestTypedLookups(t *testing.T) {
	t.Setenv("TEST_DURATION", "250ms")
	t.Setenv("TEST_NEGATIVE", "-1s")
	t.Setenv("TEST_COMMITMENT", "Finalized")
	t.Setenv("TEST_ZERO", "0")
	t.Setenv("TEST_LIST", " a, ,b ")

	d, err := envDuration("TEST_DURATION", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)
	_, err = envDuration("TEST_NEGATIVE", time.Second)
	assert.ErrorContains(t, err, "TEST_NEGATIVE")

	c, err := envCommitment("TEST_COMMITMENT", rpc.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, rpc.CommitmentFinalized, c)

	retries, err := envOptionalUint("TEST_ZERO")
	require.NoError(t, err)
	require.NotNil(t, retries)
	assert.Zero(t, *retries)
	retries, err = envOptionalUint("TEST_UNSET_RETRIES")
	require.NoError(t, err)
	assert.Nil(t, retries)

	_, err = envInt("TEST_ZERO", 3)
	assert.Error(t, err)

	assert.Equal(t, []string{"a", "b"}, envList("TEST_LIST", nil))
	assert.Equal(t, []string{"*"}, envList("TEST_UNSET_LIST", []string{"*"}))
}

func TestExpandHomePath(t *testing.T) {
	t.Setenv("HOME", "/home/keeper")
	got, err := expandHomePath("~/.config/solana/id.json")
	require.NoError(t, err)
	assert.Equal(t, "/home/keeper/.config/solana/id.json", got)

	got, err = expandHomePath("~keeper/id.json")
	require.NoError(t, err)
	assert.Equal(t, "~keeper/id.json", got)
}
