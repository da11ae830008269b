package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/bulkship/internal/cliconfig"
	"github.com/bft-labs/bulkship/pkg/log"
	"github.com/bft-labs/bulkship/pkg/ship"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, kv := range os.Environ() {
		if k, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "BULKSHIP_") {
			t.Setenv(k, "")
		}
	}
	return &app{cfg: cliconfig.DefaultConfig(), logger: log.NewNoopLogger()}
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func writeJSONL(t *testing.T, dir, name string, n int) string {
	t.Helper()
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		fmt.Fprintf(&buf, `{"id":%d}`+"\n", i)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestOutcome(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		report ship.RunReport
		err    error
		want   error
	}{
		{"all delivered", ship.RunReport{BatchesTotal: 3, Succeeded: 3}, nil, nil},
		{"some persisted", ship.RunReport{BatchesTotal: 3, Succeeded: 1}, nil, errUndelivered},
		{"run error wins", ship.RunReport{BatchesTotal: 3, Succeeded: 1}, boom, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := outcome(tt.report, tt.err)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPlanCommand(t *testing.T) {
	a := newTestApp(t)
	path := writeJSONL(t, t.TempDir(), "orders.jsonl", 10)

	out, err := execute(t, a, "plan", "--batch-count", "4", "--verify", path)
	require.NoError(t, err)

	var sum planSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, "orders", sum.Source)
	assert.Equal(t, 10, sum.Records)
	assert.Equal(t, 3, sum.PlannedBatches)
	assert.Equal(t, 3, sum.Batches)
	assert.Zero(t, sum.SplitEvents)
	assert.Empty(t, sum.Oversized)
	assert.Positive(t, sum.LargestBytes)
}

func TestSendCommand_Delivers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := newTestApp(t)
	path := writeJSONL(t, t.TempDir(), "events.jsonl", 5)

	out, err := execute(t, a, "send",
		"--endpoint", srv.URL,
		"--auth-token", "secret",
		"--failure-dir", t.TempDir(),
		"--batch-count", "2",
		path)
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())

	var rep fileReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, path, rep.File)
	assert.Equal(t, 3, rep.Succeeded)
	assert.Equal(t, 5, rep.Records)
	assert.Equal(t, ship.StatusCompleted, rep.Status)
}

func TestSendCommand_Undelivered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	a := newTestApp(t)
	failDir := t.TempDir()
	path := writeJSONL(t, t.TempDir(), "events.jsonl", 2)

	_, err := execute(t, a, "send",
		"--endpoint", srv.URL,
		"--auth-token", "secret",
		"--failure-dir", failDir,
		path)
	require.ErrorIs(t, err, errUndelivered)

	entries, err := os.ReadDir(failDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSetup_Precedence(t *testing.T) {
	a := newTestApp(t)
	cfgPath := filepath.Join(t.TempDir(), "bulkship.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
endpoint = "https://file.example.com"
auth_token = "from-file"
worker_count = 7
max_retries = 9
`), 0o644))
	t.Setenv("BULKSHIP_MAX_RETRIES", "2")

	path := writeJSONL(t, t.TempDir(), "x.jsonl", 1)
	_, err := execute(t, a, "plan", "--config", cfgPath, "--workers", "3", path)
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com", a.cfg.Endpoint)
	assert.Equal(t, "from-file", a.cfg.AuthToken)
	assert.Equal(t, 3, a.cfg.WorkerCount, "flag beats file")
	assert.Equal(t, 2, a.cfg.MaxRetries, "env beats file")
}

func TestSetup_InvalidConfig(t *testing.T) {
	a := newTestApp(t)
	path := writeJSONL(t, t.TempDir(), "x.jsonl", 1)

	_, err := execute(t, a, "send", "--endpoint", "ftp://nope", "--auth-token", "x", path)
	require.ErrorIs(t, err, ship.ErrInvalidConfig)
}

func TestHelp_HidesEnvToken(t *testing.T) {
	a := newTestApp(t)
	t.Setenv("BULKSHIP_AUTH_TOKEN", "s3cr3t-token")
	a.cfg = cliconfig.DefaultConfig()

	out, err := execute(t, a, "send", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "--auth-token")
	assert.NotContains(t, out, "s3cr3t-token")

	// the env token still reaches the config once flags are parsed
	path := writeJSONL(t, t.TempDir(), "x.jsonl", 1)
	_, err = execute(t, a, "plan", path)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t-token", a.cfg.AuthToken)
}
