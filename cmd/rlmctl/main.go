// Command rlmctl is a thin CLI over the rlmtool tool surface (spec.md
// §6.2), in the style of examples/multi-llm-review/main.go: manual
// subcommand dispatch, a small YAML config file for defaults, flags for
// everything else, fmt.Fprintf(os.Stderr, ...)+os.Exit(1) on failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v2"

	"github.com/dshills/rlm-engine/run"
	"github.com/dshills/rlm-engine/rlmtool"
	"github.com/dshills/rlm-engine/scheduler"
)

// Config is rlmctl's YAML configuration file shape.
type Config struct {
	BaseDir         string `yaml:"base_dir"`
	DefaultModel    string `yaml:"default_model"`
	InterpreterPath string `yaml:"interpreter_path"`
}

func defaultConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "rlmctl.yaml"
		}
		return filepath.Join(homeDir, ".rlmctl", "config.yaml")
	}
	return filepath.Join(configDir, "rlmctl", "config.yaml")
}

const defaultConfigTemplate = `# rlmctl configuration

# Directory under which every run's directory is created.
base_dir: .rlm-runs

# Provider-qualified default model for interactive queries, e.g.
# "anthropic:claude-sonnet-4-5-20250929". The matching provider API key
# (ANTHROPIC_API_KEY / OPENAI_API_KEY / GOOGLE_API_KEY) must be set in
# the environment.
default_model: anthropic:claude-sonnet-4-5-20250929

# Path to the python3 interpreter used for interactive queries.
interpreter_path: python3
`

func loadConfig(path string) (Config, error) {
	cfg := Config{BaseDir: ".rlm-runs", InterpreterPath: "python3"}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func createDefaultConfigIfAbsent(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("creating config file: %w", err)
	}
	defer file.Close()
	_, err = file.WriteString(defaultConfigTemplate)
	return err
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "rlmctl: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfgPath := defaultConfigPath()
	if err := createDefaultConfigIfAbsent(cfgPath); err != nil {
		fail("%v", err)
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fail("%v", err)
	}

	sub, args := os.Args[1], os.Args[2:]
	switch sub {
	case "start":
		cmdStart(cfg, args)
	case "step":
		cmdStep(cfg, args)
	case "run":
		cmdRun(cfg, args)
	case "status":
		cmdStatus(cfg, args)
	case "cancel":
		cmdCancel(cfg, args)
	case "resume":
		cmdResume(cfg, args)
	case "synthesize":
		cmdSynthesize(cfg, args)
	case "export":
		cmdExport(cfg, args)
	case "query":
		cmdQuery(cfg, args)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "rlmctl: unknown command %q\n", sub)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: rlmctl <command> [flags]

commands:
  start       start a new run (repo_rlm_start)
  step        process one batch of queued nodes (repo_rlm_step)
  run         run to completion or a node cap (repo_rlm_run)
  status      print the run's current snapshot (repo_rlm_status)
  cancel      cancel a run (repo_rlm_cancel)
  resume      resume a cancelled run (repo_rlm_resume)
  synthesize  build review/wiki artifacts (repo_rlm_synthesize)
  export      build the CI export document (repo_rlm_export)
  query       run one interactive rlm(...) query`)
}

func toolset(cfg Config) *rlmtool.Toolset {
	return rlmtool.NewToolset(cfg.BaseDir, nil)
}

func cmdStart(cfg Config, args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	runID := fs.String("run", "", "run id (required)")
	objective := fs.String("objective", "", "run objective (required)")
	mode := fs.String("mode", run.ModeGeneric, "run mode: generic, review, or wiki")
	scope := fs.String("scope", "", "comma-separated repo-relative scope paths (required)")
	maxDepth := fs.Int("max-depth", 4, "maximum recursion depth")
	maxLLMCalls := fs.Int("max-llm-calls", 300, "maximum llm calls across the run")
	fs.Parse(args)

	if *runID == "" || *objective == "" || *scope == "" {
		fail("start requires -run, -objective, and -scope")
	}

	r, err := toolset(cfg).Start(scheduler.StartRunParams{
		RunID:      *runID,
		Objective:  *objective,
		Mode:       *mode,
		ScopePaths: strings.Split(*scope, ","),
		Config:     run.Config{MaxDepth: *maxDepth, MaxLLMCalls: *maxLLMCalls},
	})
	if err != nil {
		fail("%v", err)
	}
	printRun(r)
}

func cmdStep(cfg Config, args []string) {
	runID, maxNodes := parseRunAndN(args, "step", 1)
	res, err := toolset(cfg).Step(runID, maxNodes)
	if err != nil {
		fail("%v", err)
	}
	fmt.Printf("processed %d node(s), aggregated %d\n", res.ProcessedNodes, res.AggregatedNodes)
	printRun(res.Run)
}

func cmdRun(cfg Config, args []string) {
	runID, maxNodes := parseRunAndN(args, "run", 10000)
	res, err := toolset(cfg).Run(runID, maxNodes)
	if err != nil {
		fail("%v", err)
	}
	fmt.Printf("processed %d node(s), aggregated %d\n", res.ProcessedNodes, res.AggregatedNodes)
	printRun(res.Run)
}

func cmdStatus(cfg Config, args []string) {
	runID := parseRunOnly(args, "status")
	doc, err := toolset(cfg).Status(runID)
	if err != nil {
		fail("%v", err)
	}
	printRun(doc.Run)
	fmt.Printf("results: %d, depth histogram: %v\n", doc.ResultCount, doc.DepthHistogram)
	for _, b := range doc.ActiveBranches {
		fmt.Printf("  active: %s depth=%d status=%s decision=%s\n", b.NodeID, b.Depth, b.Status, b.Decision)
	}
}

func cmdCancel(cfg Config, args []string) {
	runID := parseRunOnly(args, "cancel")
	r, err := toolset(cfg).Cancel(runID)
	if err != nil {
		fail("%v", err)
	}
	printRun(r)
}

func cmdResume(cfg Config, args []string) {
	runID := parseRunOnly(args, "resume")
	r, err := toolset(cfg).Resume(runID)
	if err != nil {
		fail("%v", err)
	}
	printRun(r)
}

func cmdSynthesize(cfg Config, args []string) {
	runID := parseRunOnly(args, "synthesize")
	artifacts, err := toolset(cfg).Synthesize(runID)
	if err != nil {
		fail("%v", err)
	}
	fmt.Printf("risk score: %.2f, clusters: %d, findings: %d\n", artifacts.Ranked.RiskScore, artifacts.Ranked.ClusterCount, artifacts.Ranked.DedupedCount)
}

func cmdExport(cfg Config, args []string) {
	runID := parseRunOnly(args, "export")
	doc, err := toolset(cfg).Export(runID)
	if err != nil {
		fail("%v", err)
	}
	fmt.Printf("exported run %s (%d findings)\n", doc.RunID, len(doc.Ranked.Findings))
}

func cmdQuery(cfg Config, args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	query := fs.String("query", "", "question to ask (required)")
	contextFile := fs.String("context-file", "", "path to a file containing the context text (required)")
	model := fs.String("model", cfg.DefaultModel, "provider-qualified model id, e.g. anthropic:claude-sonnet-4-5-20250929")
	maxIterations := fs.Int("max-iterations", 15, "maximum REPL iterations before falling back to summarization")
	fs.Parse(args)

	if *query == "" || *contextFile == "" {
		fail("query requires -query and -context-file")
	}
	contextBytes, err := os.ReadFile(*contextFile)
	if err != nil {
		fail("reading context file: %v", err)
	}

	registry := rlmtool.NewEnvRegistry(nil)
	answer, _, tree, err := toolset(cfg).Query(context.Background(), registry, nil, rlmtool.QueryParams{
		Query:           *query,
		Context:         string(contextBytes),
		Model:           *model,
		MaxIterations:   *maxIterations,
		InterpreterPath: cfg.InterpreterPath,
	})
	if err != nil {
		fail("%v", err)
	}
	fmt.Println(answer)
	fmt.Printf("iterations: %d, sub-calls: %d llm + %d rlm, max depth: %d\n", tree.Iterations, tree.TotalLLMCalls, tree.TotalRLMCalls, tree.MaxDepth)
}

func parseRunAndN(args []string, name string, defaultN int) (string, int) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	runID := fs.String("run", "", "run id (required)")
	n := fs.Int("n", defaultN, "maximum nodes to process")
	fs.Parse(args)
	if *runID == "" {
		fail("%s requires -run", name)
	}
	return *runID, *n
}

func parseRunOnly(args []string, name string) string {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	runID := fs.String("run", "", "run id (required)")
	fs.Parse(args)
	if *runID == "" {
		fail("%s requires -run", name)
	}
	return *runID
}

func printRun(r run.Run) {
	fmt.Printf("run %s: status=%s nodes=%d/%d completed\n", r.RunID, r.Status, r.Progress.NodesCompleted, r.Progress.NodesTotal)
}
