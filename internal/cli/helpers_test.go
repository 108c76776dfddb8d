package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// workspace is a temp dir with a config pointing at files inside it.
type workspace struct {
	dir    string
	config string
	db     string
	inbox  string
	outbox string
}

func newWorkspace(t *testing.T, extra string) *workspace {
	t.Helper()
	dir := t.TempDir()
	w := &workspace{
		dir:    dir,
		config: filepath.Join(dir, "agreements.yaml"),
		db:     filepath.Join(dir, "agreements.db"),
		inbox:  filepath.Join(dir, "inbox.yaml"),
		outbox: filepath.Join(dir, "outbox.jsonl"),
	}
	cfg := fmt.Sprintf(`database: %s
inbox: %s
outbox: %s
http_addr: ""
poll_schedule: "@every 1h"
%s`, w.db, w.inbox, w.outbox, extra)
	require.NoError(t, os.WriteFile(w.config, []byte(cfg), 0o644))
	return w
}

func (w *workspace) writeInbox(t *testing.T, yaml string) {
	t.Helper()
	require.NoError(t, os.WriteFile(w.inbox, []byte(yaml), 0o644))
}

// execute runs a subcommand built by newCmd and returns its stdout.
func execute(t *testing.T, newCmd func(*RootOptions) *cobra.Command, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newCmd(opts)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
