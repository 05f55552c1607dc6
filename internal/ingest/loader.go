// Package ingest reads a directory of rendered Kubernetes manifests from
// disk into parsed k8s.Manifest values, and — on the --helmfile-dir code
// path only — infers the namespace a sibling-less manifest belongs to from
// the helmfile release directory layout.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/h2compose/h2compose/internal/coreerr"
	"github.com/h2compose/h2compose/internal/helmfile"
	"github.com/h2compose/h2compose/internal/k8s"
	"github.com/h2compose/h2compose/internal/k8s/parser"
)

// LoadDir walks dir recursively, parsing every *.yaml/*.yml file into
// manifests via p. Files that fail to parse are skipped with a
// MalformedDocument CoreError appended to warnings rather than aborting the
// whole load.
func LoadDir(ctx context.Context, p parser.Parser, dir string) ([]*k8s.Manifest, []error, error) {
	var (
		manifests []*k8s.Manifest
		warnings  []error
	)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			warnings = append(warnings, coreerr.Wrap(coreerr.MalformedDocument, readErr, "reading %s", path))
			return nil
		}

		parsed, parseErr := p.Parse(ctx, data)
		if parseErr != nil {
			warnings = append(warnings, coreerr.Wrap(coreerr.MalformedDocument, parseErr, "parsing %s", path))
			return nil
		}

		manifests = append(manifests, parsed...)

		return nil
	})
	if err != nil {
		return nil, nil, coreerr.Wrap(coreerr.InputUnreadable, err, "reading input directory %q", dir)
	}

	return manifests, warnings, nil
}

// LoadHelmfileDir loads a helmfile `template --output-dir` tree: each
// immediate subdirectory of root is a release directory named per
// helmfile's `helmfile.yaml-<hash>-<release-name>` convention. Namespace
// inference (see InferNamespaces) runs across the resulting per-release
// groups before the manifests are flattened and returned.
func LoadHelmfileDir(ctx context.Context, p parser.Parser, root, environment string) ([]*k8s.Manifest, []error, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, coreerr.Wrap(coreerr.InputUnreadable, err, "reading helmfile output directory %q", root)
	}

	roots := make(map[string][]*k8s.Manifest)
	known := make(map[string]bool)

	var warnings []error

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dirPath := filepath.Join(root, entry.Name())

		manifests, loadWarnings, loadErr := LoadDir(ctx, p, dirPath)
		if loadErr != nil {
			return nil, nil, loadErr
		}

		roots[dirPath] = manifests
		warnings = append(warnings, loadWarnings...)

		for _, m := range manifests {
			if m.Namespace != "" {
				known[m.Namespace] = true
			}
		}
	}

	InferNamespaces(ctx, root, environment, roots, known)

	var out []*k8s.Manifest
	for _, manifests := range roots {
		out = append(out, manifests...)
	}

	return out, warnings, nil
}

// helmfileReleaseDir matches helmfile's per-release output directory naming
// convention: helmfile.yaml-<hash>-<release-name>.
var helmfileReleaseDir = regexp.MustCompile(`^helmfile\.yaml-[0-9a-f]+-(.+)$`)

// InferNamespaces fills in metadata.namespace for any manifest loaded from
// a helmfile-rendered tree that left it blank, using the three-tier
// inference the precursor implementation performed:
//  1. sibling inference — a namespace already present among manifests
//     discovered under the same release directory wins;
//  2. the release name itself, if it matches a namespace already seen
//     elsewhere in the tree;
//  3. helmfile's own release->namespace map, queried once via
//     `helmfile list --output json`.
//
// --from-dir input is assumed to already carry correct namespaces and never
// calls this function.
func InferNamespaces(ctx context.Context, helmfileDir, environment string, roots map[string][]*k8s.Manifest, known map[string]bool) {
	var releaseMap map[string]string

	for releaseDir, manifests := range roots {
		release := releaseNameFromDir(releaseDir)
		if release == "" {
			continue
		}

		ns := siblingNamespace(manifests)

		if ns == "" && known[release] {
			ns = release
		}

		if ns == "" {
			if releaseMap == nil {
				releaseMap, _ = helmfile.ListNamespaces(ctx, helmfileDir, environment)
			}

			ns = releaseMap[release]
		}

		if ns == "" {
			continue
		}

		for _, m := range manifests {
			if m.Namespace == "" {
				m.Namespace = ns
			}
		}
	}
}

func releaseNameFromDir(dir string) string {
	base := filepath.Base(dir)

	match := helmfileReleaseDir.FindStringSubmatch(base)
	if match == nil {
		return ""
	}

	return match[1]
}

func siblingNamespace(manifests []*k8s.Manifest) string {
	for _, m := range manifests {
		if m.Namespace != "" {
			return m.Namespace
		}
	}

	return ""
}
