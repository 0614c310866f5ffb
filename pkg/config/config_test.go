package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tablelandnetwork/arak/pkg/config"
	"github.com/tablelandnetwork/arak/pkg/indexer"
)

const sample = `
ethrpc = "https://example.invalid/rpc"

[database.sqlite]
connection = "file:arak.db"

[indexer]
page-size = 500
poll-interval = 0.25

[[event]]
name = "transfers"
start = 100
contract = "*"
topics = ["any"]
signature = "event Transfer(address indexed from, address indexed to, uint256 value)"

[[hook]]
type = "finalize"
init = true
sql = "select 1"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "arak.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadParsesConfig(t *testing.T) {
	path := writeConfig(t, sample)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "https://example.invalid/rpc", cfg.EthRPC)
	require.NotNil(t, cfg.Database.Sqlite)
	require.Nil(t, cfg.Database.Postgres)
	require.EqualValues(t, 500, cfg.Indexer.PageSize)
	require.Len(t, cfg.Events, 1)
	require.Len(t, cfg.Hooks, 1)
}

func TestLoadAppliesIndexerDefaultsWhenOmitted(t *testing.T) {
	path := writeConfig(t, `
ethrpc = "https://example.invalid/rpc"
[database.sqlite]
connection = "file:arak.db"
[[event]]
name = "transfers"
contract = "*"
signature = "event Transfer(address indexed from, address indexed to, uint256 value)"
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.EqualValues(t, 1000, cfg.Indexer.PageSize)
	require.InDelta(t, 0.1, cfg.Indexer.PollInterval, 1e-9)
}

func TestLoadRejectsBothOrNeitherDatabase(t *testing.T) {
	path := writeConfig(t, `
ethrpc = "https://example.invalid/rpc"
[[event]]
name = "transfers"
contract = "*"
signature = "event Transfer(address indexed from, address indexed to, uint256 value)"
`)
	_, err := config.Load(path)
	require.Error(t, err)

	path = writeConfig(t, `
ethrpc = "https://example.invalid/rpc"
[database.sqlite]
connection = "file:arak.db"
[database.postgres]
connection = "postgres://localhost/arak"
[[event]]
name = "transfers"
contract = "*"
signature = "event Transfer(address indexed from, address indexed to, uint256 value)"
`)
	_, err = config.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsTooManyTopics(t *testing.T) {
	path := writeConfig(t, `
ethrpc = "https://example.invalid/rpc"
[database.sqlite]
connection = "file:arak.db"
[[event]]
name = "transfers"
contract = "*"
topics = ["any", "any", "any", "any"]
signature = "event Transfer(address indexed from, address indexed to, uint256 value)"
`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestAdaptersAndHooksBuildFromConfig(t *testing.T) {
	path := writeConfig(t, sample)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	adapters, err := cfg.Adapters()
	require.NoError(t, err)
	require.Len(t, adapters, 1)
	require.Equal(t, "transfers", adapters[0].Name())
	require.EqualValues(t, 100, adapters[0].Start())

	hooks, err := cfg.Hooks(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	require.Equal(t, "select 1", hooks[0].SQL)
	require.Equal(t, indexer.HookFinalize|indexer.HookInit, hooks[0].On)
}

func TestIndexerConfigConvertsPollIntervalToDuration(t *testing.T) {
	path := writeConfig(t, sample)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	ic := cfg.IndexerConfig()
	require.EqualValues(t, 500, ic.PageSize)
	require.Equal(t, int64(250), ic.PollInterval.Milliseconds())
}
