package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestTemplateCommandWritesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "settings.template.json")
	app := &cli.App{Commands: []*cli.Command{templateCommand()}}
	require.NoError(t, app.Run([]string{"txprocessor", "template", "--out", out}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(data), "${NAMESPACE}")
	require.Contains(t, string(data), "${RPC_URL}")
}

func TestReportCommandReadsPreloaderConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preloaders.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"preloaders":[{"task_type":"dump","module":"receipt_dumper","class_name":"ReceiptDumper"}]}`), 0o644))

	app := &cli.App{
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "preloaders"},
		},
		Commands: []*cli.Command{reportCommand()},
	}
	require.NoError(t, app.Run([]string{"txprocessor", "--preloaders", path, "report"}))
}
