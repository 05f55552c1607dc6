// Package helmfile shells out to the external helmfile binary: the
// upstream renderer is an external collaborator (spec non-goal), so this
// package never parses Helm chart semantics itself — it only invokes the
// binary and hands its output directory back to the caller.
package helmfile

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"

	"github.com/h2compose/h2compose/internal/coreerr"
)

// Render invokes `helmfile template --output-dir <dir> [-e environment]`
// against dir (the directory containing the helmfile.yaml), writing the
// rendered manifests under outputDir. It returns only an error.
func Render(ctx context.Context, dir, environment, outputDir string) error {
	path, err := exec.LookPath("helmfile")
	if err != nil {
		return coreerr.Wrap(coreerr.InputUnreadable, err, "helmfile binary not found on PATH")
	}

	args := []string{"--file", dir, "template", "--output-dir", outputDir}
	if environment != "" {
		args = append(args, "--environment", environment)
	}

	cmd := exec.CommandContext(ctx, path, args...) //nolint:gosec

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return coreerr.Wrap(coreerr.InputUnreadable, err, "rendering helmfile directory %q: %s", dir, stderr.String())
	}

	return nil
}

// ReleaseNamespace is one entry of `helmfile list --output json`.
type ReleaseNamespace struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

// ListNamespaces invokes `helmfile list --output json` against dir and
// returns the release -> namespace map it reports. Used as the last
// fallback tier of namespace inference (see ingest.InferNamespaces).
func ListNamespaces(ctx context.Context, dir, environment string) (map[string]string, error) {
	path, err := exec.LookPath("helmfile")
	if err != nil {
		return nil, coreerr.Wrap(coreerr.InputUnreadable, err, "helmfile binary not found on PATH")
	}

	args := []string{"--file", dir, "list", "--output", "json"}
	if environment != "" {
		args = append(args, "--environment", environment)
	}

	cmd := exec.CommandContext(ctx, path, args...) //nolint:gosec

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, coreerr.Wrap(coreerr.InputUnreadable, err, "listing helmfile releases %q: %s", dir, stderr.String())
	}

	var releases []ReleaseNamespace
	if err := json.Unmarshal(stdout.Bytes(), &releases); err != nil {
		return nil, coreerr.Wrap(coreerr.InputUnreadable, err, "parsing helmfile list output")
	}

	out := make(map[string]string, len(releases))
	for _, r := range releases {
		out[r.Name] = r.Namespace
	}

	return out, nil
}
