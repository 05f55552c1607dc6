package convert

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/h2compose/h2compose/internal/caddyfile"
	"github.com/h2compose/h2compose/internal/coreerr"
	"github.com/h2compose/h2compose/internal/output"
	"github.com/h2compose/h2compose/internal/projectconfig"
)

// AssembleOptions configures phase 10's file emission.
type AssembleOptions struct {
	// OutputDir is the target directory for every emitted file.
	OutputDir string

	// ComposeFile overrides the default "compose.yml" filename.
	ComposeFile string

	// ProjectConfigPath is where the project config is persisted.
	ProjectConfigPath string

	// DryRun skips every write; Assemble still reports what it would have
	// written for the CLI's --dry-run summary.
	DryRun bool
}

// AssembleReport is what Assemble wrote (or, under DryRun, would write).
type AssembleReport struct {
	ComposePath       string
	CaddyfilePath     string
	ProjectConfigPath string
	FilesWritten      []string
}

// Assemble is the Output Assembler (phase 10): it marshals the finished
// compose.Project to YAML, renders the Caddyfile (written as
// Caddyfile-<project name> when ingress is disabled, skipped when there are
// no ingress entries), persists the project config, and writes every
// materialised ConfigMap/Secret/volume file to disk under OutputDir.
func Assemble(result *Result, opts AssembleOptions) (*AssembleReport, error) {
	composeFile := opts.ComposeFile
	if composeFile == "" {
		composeFile = "compose.yml"
	}

	report := &AssembleReport{
		ComposePath:       filepath.Join(opts.OutputDir, composeFile),
		ProjectConfigPath: opts.ProjectConfigPath,
	}

	composeYAML, err := yaml.Marshal(result.Project)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.InputUnreadable, err, "marshaling compose project")
	}

	if len(result.Ingress) > 0 && !result.Config.DisableIngress {
		report.CaddyfilePath = filepath.Join(opts.OutputDir, "Caddyfile")
	} else if len(result.Ingress) > 0 {
		report.CaddyfilePath = filepath.Join(opts.OutputDir, fmt.Sprintf("Caddyfile-%s", result.Config.Name))
	}

	for _, f := range result.Files {
		report.FilesWritten = append(report.FilesWritten, filepath.Join(opts.OutputDir, f.RelPath))
	}

	if opts.DryRun {
		return report, nil
	}

	if err := os.MkdirAll(opts.OutputDir, 0o750); err != nil {
		return nil, coreerr.Wrap(coreerr.InputUnreadable, err, "creating output directory %q", opts.OutputDir)
	}

	composeWriter := output.NewFileWriter(report.ComposePath)
	if err := composeWriter.Write(composeYAML); err != nil {
		return nil, coreerr.Wrap(coreerr.InputUnreadable, err, "writing compose file")
	}

	if report.CaddyfilePath != "" {
		rendered, err := caddyfile.Render(result.Ingress)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.InputUnreadable, err, "rendering Caddyfile")
		}

		caddyWriter := output.NewFileWriter(report.CaddyfilePath)
		if err := caddyWriter.Write([]byte(rendered)); err != nil {
			return nil, coreerr.Wrap(coreerr.InputUnreadable, err, "writing Caddyfile")
		}
	}

	for _, f := range result.Files {
		fileWriter := output.NewFileWriter(filepath.Join(opts.OutputDir, f.RelPath))
		if err := fileWriter.Write([]byte(f.Content)); err != nil {
			return nil, coreerr.Wrap(coreerr.InputUnreadable, err, "writing materialised file %q", f.RelPath)
		}
	}

	if err := projectconfig.Save(report.ProjectConfigPath, result.Config); err != nil {
		return nil, coreerr.Wrap(coreerr.InputUnreadable, err, "saving project config")
	}

	return report, nil
}
