package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thavlik/foldy-bench/client"
	"github.com/thavlik/foldy-bench/sweep"
)

func isolateEnv(t *testing.T) {
	t.Setenv("REDIS_URI", "")
	t.Setenv("FOLDY_ARTIFACT_BACKEND", "local")
	t.Setenv("FOLDY_MSA_FALLBACK", "")
	t.Setenv("FOLDY_RETRIES", "0")
}

func requireExitCode(t *testing.T, err error, code int) {
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected ExitError, got %v", err)
	assert.Equal(t, code, exitErr.Code)
}

func TestRunUsage(t *testing.T) {
	isolateEnv(t)
	out := &bytes.Buffer{}
	requireExitCode(t, run(out, nil), 2)
	assert.Contains(t, out.String(), "Usage:")

	out.Reset()
	require.NoError(t, run(out, []string{"help"}))
	assert.Contains(t, out.String(), "Usage:")

	requireExitCode(t, run(&bytes.Buffer{}, []string{"fold"}), 2)
}

func TestBatchRequiresDirectories(t *testing.T) {
	isolateEnv(t)
	requireExitCode(t, run(&bytes.Buffer{}, []string{"batch", "-defs", t.TempDir()}), 2)
	requireExitCode(t, run(&bytes.Buffer{}, []string{"batch", "-bogus"}), 2)
	requireExitCode(t, run(&bytes.Buffer{}, []string{
		"batch", "-defs", t.TempDir(), "-out", t.TempDir(), "-log-level", "loud",
	}), 2)
}

func TestBatchThenSummarize(t *testing.T) {
	isolateEnv(t)
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, client.PredictPath, r.URL.Path)
		doc := make(map[string]interface{})
		require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		mu.Lock()
		calls++
		mu.Unlock()
		if doc["polymers"].([]interface{})[0].(map[string]interface{})["sequence"] == "MKV" {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("internal error"))
			return
		}
		w.Write([]byte(`{"confidence": 0.8}`))
	}))
	defer srv.Close()

	root := t.TempDir()
	defs := filepath.Join(root, "yamls")
	require.NoError(t, os.MkdirAll(defs, 0o755))
	write := func(name, seq string) {
		body := "version: 1\nsequences:\n  - protein:\n      id: A\n      sequence: " + seq + "\n"
		require.NoError(t, os.WriteFile(filepath.Join(defs, name), []byte(body), 0o644))
	}
	write("good.yaml", "MKTAYIAKQR")
	write("bad.yaml", "MKV")
	require.NoError(t, os.WriteFile(filepath.Join(defs, "broken.yaml"), []byte("sequences: [\n"), 0o644))
	results := filepath.Join(root, "results")

	out := &bytes.Buffer{}
	require.NoError(t, run(out, []string{
		"batch", "-defs", defs, "-out", results, "-base-url", srv.URL, "-steps", "50", "-log-level", "error",
	}))
	assert.Contains(t, out.String(), "Processed 2 of 3 definitions: 1 ok, 1 error, 1 skipped")
	assert.Equal(t, 2, calls)

	goodFile := filepath.Join(root, "good.txt")
	out.Reset()
	require.NoError(t, run(out, []string{"summarize", "-out", results, "-good", goodFile}))
	assert.Contains(t, out.String(), "2 artifacts: 1 ok, 1 error, 0 unreadable")
	assert.Contains(t, out.String(), "good\tok=1\terror=0")
	data, err := os.ReadFile(goodFile)
	require.NoError(t, err)
	assert.Equal(t, "good\n", string(data))
}

func TestBatchUnreadableDefinitionsIsFatal(t *testing.T) {
	isolateEnv(t)
	err := run(&bytes.Buffer{}, []string{
		"batch", "-defs", filepath.Join(t.TempDir(), "missing"), "-out", t.TempDir(), "-log-level", "error",
	})
	require.Error(t, err)
	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestSweepCommandMode(t *testing.T) {
	isolateEnv(t)
	root := t.TempDir()
	logPath := filepath.Join(root, "timings.tsv")
	out := &bytes.Buffer{}
	require.NoError(t, run(out, []string{
		"sweep", "-mode", "command", "-param", "batch_size", "-values", "1,2", "-repeats", "2",
		"-log", logPath, "-dir", root, "-log-level", "error",
		"--", "sh", "-c", "echo {value} >> seen.txt",
	}))
	parameter, rows, err := sweep.ReadTimingLog(logPath)
	require.NoError(t, err)
	assert.Equal(t, "batch_size", parameter)
	require.Len(t, rows, 4)
	assert.Equal(t, 2, rows[3].Run)
	assert.Equal(t, 2, rows[3].Value)
	seen, err := os.ReadFile(filepath.Join(root, "seen.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n1\n2\n", string(seen))
	assert.Contains(t, out.String(), "Run 2, batch_size 2: ")
}

func TestSweepRejectsBadGrid(t *testing.T) {
	isolateEnv(t)
	requireExitCode(t, run(&bytes.Buffer{}, []string{"sweep", "-values", "a,b", "-log", "x.tsv"}), 2)
	requireExitCode(t, run(&bytes.Buffer{}, []string{"sweep", "-values", "1", "-log", "x.tsv"}), 2)
}

func TestPlanRunsSweepsInOrder(t *testing.T) {
	isolateEnv(t)
	var mu sync.Mutex
	var got []client.ServeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req client.ServeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		got = append(got, req)
		mu.Unlock()
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	root := t.TempDir()
	src := `
sweep "steps" {
  mode       = "serve"
  base_url   = "` + srv.URL + `"
  values     = [10, 20]
  data       = "/data/yamls"
  timing_log = "` + filepath.Join(root, "steps.tsv") + `"
}

sweep "batches" {
  mode           = "serve"
  parameter      = "batch_size"
  base_url       = "` + srv.URL + `"
  values         = [4]
  sampling_steps = 50
  data           = "/data/yamls"
  timing_log     = "` + filepath.Join(root, "batches.tsv") + `"
}
`
	planPath := filepath.Join(root, "plan.hcl")
	require.NoError(t, os.WriteFile(planPath, []byte(src), 0o644))
	out := &bytes.Buffer{}
	require.NoError(t, run(out, []string{"plan", "-f", planPath, "-log-level", "error"}))
	assert.Equal(t, []client.ServeRequest{
		{Data: "/data/yamls", SamplingSteps: 10},
		{Data: "/data/yamls", SamplingSteps: 20},
		{Data: "/data/yamls", SamplingSteps: 50, BatchSize: 4},
	}, got)
	assert.True(t, strings.Index(out.String(), "=== steps") < strings.Index(out.String(), "=== batches"))
}

func TestPlanStopsAtFirstFailure(t *testing.T) {
	isolateEnv(t)
	root := t.TempDir()
	second := filepath.Join(root, "second.tsv")
	src := `
sweep "first" {
  mode       = "command"
  values     = [1]
  command    = ["true"]
  timing_log = "` + filepath.Join(root, "missing", "first.tsv") + `"
}

sweep "second" {
  mode       = "command"
  values     = [1]
  command    = ["true"]
  timing_log = "` + second + `"
}
`
	planPath := filepath.Join(root, "plan.hcl")
	require.NoError(t, os.WriteFile(planPath, []byte(src), 0o644))
	err := run(&bytes.Buffer{}, []string{"plan", "-f", planPath, "-log-level", "error"})
	var envErr *sweep.EnvironmentError
	require.True(t, errors.As(err, &envErr))
	assert.NoFileExists(t, second)
}

func TestSweepRequestTimeout(t *testing.T) {
	isolateEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	logPath := filepath.Join(t.TempDir(), "timings.tsv")
	require.NoError(t, run(&bytes.Buffer{}, []string{
		"sweep", "-mode", "serve", "-values", "10", "-data", "/data/yamls",
		"-base-url", srv.URL, "-timeout", "100ms", "-log", logPath, "-log-level", "error",
	}))
	_, rows, err := sweep.ReadTimingLog(logPath)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Less(t, rows[0].Seconds, 4.0)
}
