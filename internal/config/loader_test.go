package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadSettingsDefaultsQueueKey(t *testing.T) {
	p := writeTemp(t, "settings.json", `{
		"namespace": "mainnet",
		"rpc": {"url": "https://rpc.example", "retry": 3, "request_time_out": 5000000000},
		"redis": {"host": "localhost", "port": 6379, "db": 0, "data_retention": {"max_blocks": 100, "ttl_seconds": 3600}},
		"logs": {"debug_mode": false, "write_to_files": true, "level": "info"},
		"processor": {"max_concurrent_workers": 64}
	}`)
	s, err := LoadSettings(p)
	require.NoError(t, err)
	require.Equal(t, "mainnet", s.Namespace)
	require.Equal(t, "pending_transactions", s.Processor.RedisQueueKey)
	require.Equal(t, 64, s.Processor.MaxConcurrentWorkers)
}

func TestLoadSettingsMissingFile(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadPreloaderConfigPreservesOrder(t *testing.T) {
	p := writeTemp(t, "preloaders.json", `{"preloaders": [
		{"task_type": "dump", "module": "receiptdumper", "class_name": "ReceiptDumper"},
		{"task_type": "filter", "module": "eventfilter", "class_name": "EventFilter"}
	]}`)
	c, err := LoadPreloaderConfig(p)
	require.NoError(t, err)
	require.Len(t, c.Preloaders, 2)
	require.Equal(t, "dump", c.Preloaders[0].TaskType)
	require.Equal(t, "filter", c.Preloaders[1].TaskType)
}

func TestEventFilterConfigPathEnvOverride(t *testing.T) {
	t.Setenv(eventFilterConfigPathEnv, "/env/path.json")
	require.Equal(t, "/env/path.json", EventFilterConfigPath("/fallback/path.json"))

	t.Setenv(eventFilterConfigPathEnv, "")
	require.Equal(t, "/fallback/path.json", EventFilterConfigPath("/fallback/path.json"))
}

func TestLoadProjectAddressesUnionsAndNormalizes(t *testing.T) {
	p := writeTemp(t, "projects.json", `{"config": [
		{"projects": ["0xABCDEF00000000000000000000000000000001"]},
		{"projects": ["abcdef0000000000000000000000000000000a", "0xabcdef0000000000000000000000000000000a"]}
	]}`)
	addrs, err := LoadProjectAddresses(p)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{
		"0xabcdef00000000000000000000000000000001",
		"0xabcdef0000000000000000000000000000000a",
	}, addrs)
}

func TestLoadProjectAddressesEmptyPath(t *testing.T) {
	addrs, err := LoadProjectAddresses("")
	require.NoError(t, err)
	require.Nil(t, addrs)
}
