package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/h2compose/h2compose/internal/convert"
	"github.com/h2compose/h2compose/internal/convert/builtin/fixperm"
	"github.com/h2compose/h2compose/internal/convert/extensions"
	"github.com/h2compose/h2compose/internal/coreerr"
	"github.com/h2compose/h2compose/internal/helmfile"
	"github.com/h2compose/h2compose/internal/ingest"
	"github.com/h2compose/h2compose/internal/k8s"
	"github.com/h2compose/h2compose/internal/k8s/parser"
	"github.com/h2compose/h2compose/internal/logging"
	"github.com/h2compose/h2compose/internal/projectconfig"
	"github.com/h2compose/h2compose/internal/watch"
)

const projectConfigFileName = ".h2compose-project.yaml"

type convertOptions struct {
	helmfileDir   string
	fromDir       string
	environment   string
	outputDir     string
	composeFile   string
	extensionsDir string
	watchMode     bool
	dryRun        bool
}

func newConvertCommand() *cobra.Command {
	opts := &convertOptions{}

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert rendered Kubernetes manifests into a Docker Compose project",
		Long: `convert reads a directory of rendered Kubernetes manifests — either
produced by invoking helmfile directly (--helmfile-dir) or already sitting
on disk (--from-dir) — and writes a compose.yml, a Caddyfile, and a
persisted project-config file to --output-dir.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConvert(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.helmfileDir, "helmfile-dir", "", "directory containing helmfile.yaml to render")
	f.StringVar(&opts.fromDir, "from-dir", "", "directory of already-rendered manifests")
	f.StringVarP(&opts.environment, "environment", "e", "", "helmfile environment to render")
	f.StringVar(&opts.outputDir, "output-dir", "", "target directory for all emitted files (required)")
	f.StringVar(&opts.composeFile, "compose-file", "", "override the compose output filename")
	f.StringVar(&opts.extensionsDir, "extensions-dir", "", "load extensions from here")
	f.BoolVar(&opts.watchMode, "watch", false, "watch the input directory and re-run on change")
	f.BoolVar(&opts.dryRun, "dry-run", false, "print the manifest-to-service derivation tree instead of writing files")

	return cmd
}

func runConvert(cmd *cobra.Command, opts *convertOptions) error {
	ctx := cmd.Context()
	logger := logging.FromContext(ctx)

	if err := validateConvertOptions(opts); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	if opts.watchMode {
		return runConvertWatch(ctx, cmd, opts, logger)
	}

	result, report, err := runConvertOnce(ctx, opts, logger)
	if err != nil {
		return mapCoreError(err)
	}

	if opts.dryRun {
		printDryRunTree(cmd, result)
	}

	printConvertSummary(cmd, result, report)

	if len(result.Project.Services) == 0 {
		return &ExitError{Code: 2, Err: fmt.Errorf("pipeline produced zero compose services")}
	}

	return nil
}

// runConvertOnce performs exactly one ingest->pipeline->assemble cycle.
func runConvertOnce(ctx context.Context, opts *convertOptions, logger *slog.Logger) (*convert.Result, *convert.AssembleReport, error) {
	p := parser.NewParser()

	documents, warnings, err := loadManifests(ctx, p, opts)
	if err != nil {
		return nil, nil, err
	}

	for _, w := range warnings {
		logger.Warn("input warning", slog.String("error", w.Error()))
	}

	projectConfigPath := filepath.Join(opts.outputDir, projectConfigFileName)
	defaultName := filepath.Base(opts.outputDir)

	cfg, migrated, err := projectconfig.Load(projectConfigPath, defaultName)
	if err != nil {
		return nil, nil, coreerr.Wrap(coreerr.MalformedProjectConfig, err, "loading project config %q", projectConfigPath)
	}

	if migrated {
		logger.Warn("project config migrated from legacy key layout", slog.String("path", projectConfigPath))
	}

	registry := extensions.NewRegistry()
	registry.Classify(fixperm.New())

	if opts.extensionsDir != "" {
		if loadErr := registry.Load(opts.extensionsDir); loadErr != nil {
			logger.Warn("extension load failure", slog.String("error", loadErr.Error()))
		}

		for _, failure := range registry.LoadFailures {
			logger.Warn("extension load failure", slog.String("detail", failure))
		}
	}

	result, err := convert.Run(documents, cfg, registry)
	if err != nil {
		return nil, nil, err
	}

	for _, w := range result.Warnings {
		logger.Warn(w.Message, slog.String("kind", w.Kind))
	}

	report, err := convert.Assemble(result, convert.AssembleOptions{
		OutputDir:         opts.outputDir,
		ComposeFile:       opts.composeFile,
		ProjectConfigPath: projectConfigPath,
		DryRun:            opts.dryRun,
	})
	if err != nil {
		return nil, nil, err
	}

	return result, report, nil
}

func runConvertWatch(ctx context.Context, cmd *cobra.Command, opts *convertOptions, logger *slog.Logger) error {
	watchDir := opts.fromDir
	if watchDir == "" {
		watchDir = opts.helmfileDir
	}

	watchOpts := watch.DefaultOptions()
	watchOpts.FromDir = watchDir
	watchOpts.Logger = logger
	watchOpts.Out = cmd.ErrOrStderr()
	watchOpts.Validate = false
	watchOpts.Up = false

	if opts.extensionsDir != "" {
		watchOpts.ExtraFiles = append(watchOpts.ExtraFiles, opts.extensionsDir)
	}

	runFn := func(runCtx context.Context) (*watch.RunResult, error) {
		result, report, err := runConvertOnce(runCtx, opts, logger)
		if err != nil {
			return nil, err
		}

		return &watch.RunResult{
			ResourceCount: len(result.Project.Services),
			OutputPath:    report.ComposePath,
		}, nil
	}

	if err := watch.Run(ctx, watchOpts, runFn); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	return nil
}

func validateConvertOptions(opts *convertOptions) error {
	if opts.outputDir == "" {
		return fmt.Errorf("--output-dir is required")
	}

	if opts.helmfileDir == "" && opts.fromDir == "" {
		return fmt.Errorf("exactly one of --helmfile-dir or --from-dir must be set")
	}

	if opts.helmfileDir != "" && opts.fromDir != "" {
		return fmt.Errorf("--helmfile-dir and --from-dir are mutually exclusive")
	}

	return nil
}

// mapCoreError maps a pipeline-originated error to its process exit code.
// Every error runConvertOnce returns is already fatal by construction
// (InputUnreadable or MalformedProjectConfig; non-fatal kinds are recorded
// on the warning sink instead and never returned as an error), so this
// always maps to exit 1.
func mapCoreError(err error) error {
	return &ExitError{Code: 1, Err: err}
}

func printConvertSummary(cmd *cobra.Command, result *convert.Result, report *convert.AssembleReport) {
	w := cmd.ErrOrStderr()

	fmt.Fprintf(w, "\n--- Conversion Summary ---\n")
	fmt.Fprintf(w, "Services:  %d\n", len(result.Project.Services))
	fmt.Fprintf(w, "Volumes:   %d\n", len(result.Project.Volumes))
	fmt.Fprintf(w, "Ingress:   %d host(s)\n", len(result.Ingress))
	fmt.Fprintf(w, "Warnings:  %d\n", len(result.Warnings))

	if report != nil {
		fmt.Fprintf(w, "Compose:   %s\n", report.ComposePath)

		if report.CaddyfilePath != "" {
			fmt.Fprintf(w, "Caddyfile: %s\n", report.CaddyfilePath)
		}

		fmt.Fprintf(w, "Config:    %s\n", report.ProjectConfigPath)
	}

	fmt.Fprintf(w, "--------------------------\n")
}

// printDryRunTree renders the manifest->service derivation tree to stdout
// via treeprint, grounded in the same library used for structural
// summaries elsewhere in the retrieved corpus.
func printDryRunTree(cmd *cobra.Command, result *convert.Result) {
	tree := treeprint.New()
	tree.SetValue("compose project")

	services := tree.AddBranch("services")
	for _, name := range result.Project.SortedServiceNames() {
		services.AddNode(name)
	}

	if len(result.Ingress) > 0 {
		ingressBranch := tree.AddBranch("ingress")
		for _, entry := range result.Ingress {
			host := ingressBranch.AddBranch(entry.Host)
			for _, route := range entry.Routes {
				host.AddNode(fmt.Sprintf("%s -> %s", route.Path, route.Upstream))
			}
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), tree.String())
}

// loadManifests dispatches to the helmfile-rendering or direct-read code
// path per the CLI's mutually-exclusive input flags.
func loadManifests(ctx context.Context, p parser.Parser, opts *convertOptions) ([]*k8s.Manifest, []error, error) {
	if opts.fromDir != "" {
		return ingest.LoadDir(ctx, p, opts.fromDir)
	}

	renderCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	renderedDir := filepath.Join(opts.outputDir, ".rendered")

	if err := helmfile.Render(renderCtx, opts.helmfileDir, opts.environment, renderedDir); err != nil {
		return nil, nil, err
	}

	return ingest.LoadHelmfileDir(ctx, p, renderedDir, opts.environment)
}
