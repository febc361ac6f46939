package shell

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0xRadioAc7iv/caskdb/core"
	"github.com/0xRadioAc7iv/caskdb/internal/metrics"
)

func newShell(t *testing.T, collector *metrics.Collector) *Shell {
	t.Helper()

	opts := []core.Option{core.WithLogger(zap.NewNop())}
	var snap Snapshotter
	if collector != nil {
		opts = append(opts, core.WithObserver(collector))
		snap = collector
	}

	ds, err := core.Open(t.TempDir(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	return New(ds, snap, zap.NewNop())
}

func exec(t *testing.T, s *Shell, line string) string {
	t.Helper()
	reply, quit := s.ExecuteLine(line)
	assert.False(t, quit)
	return reply
}

func TestExecute(t *testing.T) {
	s := newShell(t, nil)

	assert.Equal(t, "nil", exec(t, s, "get foo"))
	assert.Equal(t, "ok", exec(t, s, "set foo bar"))
	assert.Equal(t, "bar", exec(t, s, "get foo"))
	assert.Equal(t, "ok", exec(t, s, `set city "new york"`))
	assert.Equal(t, "new york", exec(t, s, "get city"))
	assert.Equal(t, "true", exec(t, s, "exists foo"))
	assert.Equal(t, "2", exec(t, s, "count"))
	assert.Equal(t, "----- KEYS START -----\ncity\nfoo\n----- KEYS END -----", exec(t, s, "list"))

	assert.Equal(t, "ok", exec(t, s, "delete foo"))
	assert.Equal(t, "false", exec(t, s, "exists foo"))
	assert.Equal(t, "nil", exec(t, s, "get foo"))
	assert.Equal(t, "ok", exec(t, s, "sync"))

	assert.Equal(t, "ok", exec(t, s, "delete city"))
	assert.Equal(t, "nil", exec(t, s, "list"))
}

func TestExecuteErrors(t *testing.T) {
	s := newShell(t, nil)

	assert.Equal(t, "Invalid Command", exec(t, s, "ping"))
	assert.Contains(t, exec(t, s, "get"), "parse error")
	assert.Equal(t, "", exec(t, s, ""))
	assert.Equal(t, "error: "+core.ErrEmptyValue.Error(), exec(t, s, `set k ""`))
	assert.Equal(t, "metrics disabled", exec(t, s, "stats"))
}

func TestHelpAndRecovery(t *testing.T) {
	s := newShell(t, nil)

	assert.Contains(t, exec(t, s, "help"), "Available Commands:")

	out := exec(t, s, "recovery")
	assert.Contains(t, out, "files scanned:      0")
	assert.Contains(t, out, "active file:        data")
}

func TestStats(t *testing.T) {
	s := newShell(t, metrics.NewCollector())

	exec(t, s, "set k v")
	exec(t, s, "get k")

	out := exec(t, s, "stats")
	assert.Contains(t, out, `caskdb_datastore_operations_total{op="get",outcome="ok"} 1`)
	assert.Contains(t, out, `caskdb_datastore_operations_total{op="insert",outcome="ok"} 1`)
}

func TestRun(t *testing.T) {
	s := newShell(t, nil)

	in := strings.NewReader("set a 1\nget a\n\nexit\nget a\n")
	var out bytes.Buffer

	require.NoError(t, s.Run(context.Background(), in, &out))

	got := out.String()
	assert.Equal(t, 1, strings.Count(got, "> 1\n"))
	assert.Contains(t, got, "ok\n")
	assert.True(t, strings.HasSuffix(got, "bye\n"), got)
}

func TestRunStopsAtEOF(t *testing.T) {
	s := newShell(t, nil)

	var out bytes.Buffer
	require.NoError(t, s.Run(context.Background(), strings.NewReader("count\n"), &out))
	assert.Contains(t, out.String(), "0\n")
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newShell(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	assert.NoError(t, s.Run(ctx, strings.NewReader(""), &out))
}

func TestRunClosesInputOnCancel(t *testing.T) {
	s := newShell(t, nil)

	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		var out bytes.Buffer
		done <- s.Run(ctx, pr, &out)
	}()

	// Nothing is ever written, so the reader is blocked when ctx ends.
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, err := pw.Write([]byte("get k\n"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
