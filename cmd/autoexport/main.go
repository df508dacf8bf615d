// Command autoexport scans a project document for blueprints and exports the
// blueprints and levels that changed since the previous run.
//
// Usage:
//
//	autoexport scan    [flags] <project.json|yaml>
//	autoexport run     [flags] <project.json|yaml>
//	autoexport watch   [flags] <project.json|yaml>
//	autoexport inspect <file.gltf|glb>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"autoexport/internal/blueprint"
	"autoexport/internal/export"
	"autoexport/internal/scene"
	"autoexport/internal/session"
	"autoexport/pkg/domain"
)

var exitFunc = os.Exit

const usage = `usage: autoexport <scan|run|watch|inspect> [flags] <path>`

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	switch args[0] {
	case "scan":
		return runScan(args[1:], stdout, stderr)
	case "run":
		return runOnce(args[1:], stdout, stderr)
	case "watch":
		return runWatch(args[1:], stdout, stderr)
	case "inspect":
		return runInspect(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		fmt.Fprintln(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s\n", args[0], usage)
		return 2
	}
}

// commonFlags are shared by scan, run and watch.
type commonFlags struct {
	config   string
	store    string
	out      string
	logLevel string
}

func parseCommon(name string, args []string, stderr io.Writer) (*flag.FlagSet, *commonFlags, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	cf := &commonFlags{}
	fs.StringVar(&cf.config, "config", "", "path to a TOML configuration file")
	fs.StringVar(&cf.store, "store", "", "settings/snapshot store driver (sqlite|postgres|memory)")
	fs.StringVar(&cf.out, "out", "", "output directory for the fs blob driver (default: the assets directory)")
	fs.StringVar(&cf.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() != 1 {
		return nil, nil, fmt.Errorf("%s: expected exactly one project path", name)
	}
	return fs, cf, nil
}

func (cf *commonFlags) resolve() (Config, error) {
	cfg, err := loadConfig(cf.config)
	if err != nil {
		return Config{}, err
	}
	if cf.store != "" {
		cfg.Store.Driver = cf.store
	}
	if cf.out != "" {
		cfg.Blob.FSRoot = cf.out
	}
	if cf.logLevel != "" {
		cfg.Log.Level = cf.logLevel
	}
	return cfg, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type scanOutput struct {
	Project       string              `json:"project"`
	MainScenes    []string            `json:"main_scenes"`
	LibraryScenes []string            `json:"library_scenes"`
	Blueprints    []*domain.Blueprint `json:"blueprints"`
	Internal      []string            `json:"internal"`
	External      []string            `json:"external"`
}

func runScan(args []string, stdout, stderr io.Writer) int {
	fs, cf, err := parseCommon("scan", args, stderr)
	if err != nil {
		return 2
	}
	cfg, err := cf.resolve()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	ctx := context.Background()
	a, err := openApp(ctx, cfg, fs.Arg(0), stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer a.Close()

	s := a.loaded.Engine
	main, library := scene.Split(a.project, s.MainSceneNames, s.LibrarySceneNames)
	g, err := blueprint.Scan(a.project, main, library, blueprint.ScanConfig{ExportMarkedAssets: s.ExportMarkedAssets})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := blueprint.InjectExportPaths(g, nil, a.layout.BlueprintFile); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	out := scanOutput{
		Project:       a.project.Name,
		MainScenes:    scene.Names(main),
		LibraryScenes: scene.Names(library),
		Blueprints:    g.Blueprints,
		Internal:      domain.BlueprintNames(g.Internal),
		External:      domain.BlueprintNames(g.External),
	}
	if err := writeJSON(stdout, out); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

type runOutput struct {
	ID            string                 `json:"id,omitempty"`
	Skipped       bool                   `json:"skipped"`
	ConfigChanged bool                   `json:"config_changed"`
	ChangedScenes []string               `json:"changed_scenes"`
	Exported      []export.Target        `json:"exported"`
	Records       []*export.ExportRecord `json:"records"`
	Error         string                 `json:"error,omitempty"`
}

func summarize(res session.Result, err error) runOutput {
	out := runOutput{
		ID:            res.Report.ID,
		Skipped:       res.Skipped,
		ConfigChanged: res.ConfigChanged,
		ChangedScenes: res.Changes.Scenes(),
		Exported:      res.Report.Exported(),
		Records:       res.Report.Records,
	}
	if out.Exported == nil {
		out.Exported = []export.Target{}
	}
	if out.Records == nil {
		out.Records = []*export.ExportRecord{}
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func runOnce(args []string, stdout, stderr io.Writer) int {
	fs, cf, err := parseCommon("run", args, stderr)
	if err != nil {
		return 2
	}
	cfg, err := cf.resolve()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	ctx := context.Background()
	a, err := openApp(ctx, cfg, fs.Arg(0), stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer a.Close()

	res, runErr := a.session.Run(ctx, a.project, session.RunOptions{External: true})
	if err := writeJSON(stdout, summarize(res, runErr)); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	return 0
}

func runWatch(args []string, stdout, stderr io.Writer) int {
	fs, cf, err := parseCommon("watch", args, stderr)
	if err != nil {
		return 2
	}
	cfg, err := cf.resolve()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := watch(ctx, cfg, fs.Arg(0), stdout, stderr); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func runInspect(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "inspect: expected exactly one file")
		return 2
	}
	raw, err := os.ReadFile(filepath.Clean(args[0]))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	m, err := export.Inspect(raw)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := writeJSON(stdout, m); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
