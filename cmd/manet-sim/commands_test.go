package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/manet-simulator/internal/resultstore"
	"github.com/signalsfoundry/manet-simulator/internal/sweep"
	"github.com/signalsfoundry/manet-simulator/model"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const smallConfig = `
algorithm: flooding
nodes: 6
delay: 1
seed: 3
termination:
  timeout: 100
  stop_on_convergence: true
`

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	if root.Use != "manet-sim" {
		t.Errorf("expected Use 'manet-sim', got %q", root.Use)
	}
	for _, name := range []string{"run", "sweep", "aggregate", "strategies"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestStrategiesCommand(t *testing.T) {
	out, err := execute(t, "strategies")
	if err != nil {
		t.Fatalf("strategies: %v", err)
	}
	lines := strings.Fields(out)
	if len(lines) != 8 || lines[0] != "flooding" || lines[7] != "area" {
		t.Fatalf("unexpected strategies %v", lines)
	}
}

func TestRunCommand(t *testing.T) {
	cfgPath := writeConfig(t, smallConfig)
	outDir := t.TempDir()
	storePath := filepath.Join(t.TempDir(), "runs.db")

	out, err := execute(t, "run", "--config", cfgPath, "--algorithm", "bft", "--out", outDir, "--store", storePath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var sum model.RunSummary
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("summary is not JSON: %v\n%s", err, out)
	}
	if sum.Algorithm != "bft" || sum.Nodes != 6 || sum.Delay != 1 {
		t.Fatalf("overrides not applied: %+v", sum)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), "bft6nodes0x") {
		t.Fatalf("unexpected result directories %v", entries)
	}
}

func TestRunCommandRejectsBadConfig(t *testing.T) {
	cfgPath := writeConfig(t, "algorithm: gossip\ntermination:\n  timeout: 10\n")
	if _, err := execute(t, "run", "--config", cfgPath); err == nil {
		t.Fatalf("unknown algorithm must fail")
	}
	if _, err := execute(t, "run", "--algorithm", "bft"); err == nil {
		t.Fatalf("a run without termination must fail")
	}
}

func TestSweepThenAggregate(t *testing.T) {
	cfgPath := writeConfig(t, smallConfig)
	storePath := filepath.Join(t.TempDir(), "runs.db")

	out, err := execute(t, "sweep", "--config", cfgPath,
		"--algorithms", "flooding,hop",
		"--delays", "1",
		"--min-nodes", "4", "--max-nodes", "6", "--step", "2",
		"--repetitions", "2",
		"--store", storePath,
	)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	var report sweep.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, out)
	}
	if report.Runs != 8 {
		t.Fatalf("expected 8 runs, got %+v", report)
	}

	out, err = execute(t, "aggregate", "--store", storePath)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	var aggs []resultstore.Aggregate
	if err := json.Unmarshal([]byte(out), &aggs); err != nil {
		t.Fatalf("aggregates are not JSON: %v\n%s", err, out)
	}
	total := 0
	for _, a := range aggs {
		if a.Delay != 1 {
			t.Fatalf("unexpected delay in %+v", a)
		}
		total += a.Runs
	}
	if total != 8-report.Disconnected {
		t.Fatalf("aggregates cover %d runs, want %d connected", total, 8-report.Disconnected)
	}
}

func TestSweepNeedsDestination(t *testing.T) {
	if _, err := execute(t, "sweep", "--config", writeConfig(t, smallConfig)); err == nil {
		t.Fatalf("sweep without --out or --store must fail")
	}
}
