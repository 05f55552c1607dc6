// Package extensions loads, classifies and orders the pluggable converters,
// transforms and ingress rewriters the Pipeline Driver dispatches to. Units
// are loaded from compiled Go plugins (.so files) under --extensions-dir;
// there is no ecosystem plugin-loading library in play here, so classification
// goes through reflection over whatever symbols the plugin exports rather
// than an import of the extension's own package (which would defeat the
// point of out-of-tree loading).
package extensions

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"reflect"
	"sort"

	"github.com/h2compose/h2compose/internal/compose"
	"github.com/h2compose/h2compose/internal/convert/ingress"
	"github.com/h2compose/h2compose/internal/convert/pipectx"
	"github.com/h2compose/h2compose/internal/k8s"
)

const defaultPriority = 100

// Converter claims a set of kinds and turns one matching manifest into a
// ConverterResult or ProviderResult. Structural dispatch on the return value
// (see pipectx.AsProvider) decides which.
type Converter interface {
	Kinds() map[string]bool
	Convert(m *k8s.Manifest, ctx *pipectx.ConvertContext) interface{}
}

// Transform runs once per pipeline over the full compose/ingress set.
type Transform interface {
	TransformName() string
	Transform(services map[string]*compose.Service, entries []pipectx.IngressEntry, ctx *pipectx.ConvertContext)
}

// Prioritized is satisfied by any extension unit that wants a non-default
// dispatch order; units that don't implement it get defaultPriority.
type Prioritized interface {
	Priority() int
}

// Registry holds every loaded extension unit, classified by capability and
// sorted ascending by priority (lower runs first), ties broken by load
// order.
type Registry struct {
	Converters        []converterEntry
	Transforms        []transformEntry
	IngressRewriters  ingress.Registry
	LoadFailures      []string
}

type converterEntry struct {
	priority  int
	converter Converter
}

type transformEntry struct {
	priority  int
	transform Transform
}

// NewRegistry returns an empty Registry, ready for Load calls.
func NewRegistry() *Registry {
	return &Registry{}
}

// Load walks dir one level deep: a leaf ".so" file, or a ".so" file inside a
// subdirectory one level down, is a candidate extension unit. Each exported
// "New" symbol (func() interface{}) is invoked and the result classified by
// capability set. A unit that fails to load or export "New" is recorded as
// a load failure and otherwise skipped — extension loading never aborts the
// run.
func (r *Registry) Load(dir string) error {
	if dir == "" {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading extensions dir %s: %w", dir, err)
	}

	var candidates []string

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())

		if e.IsDir() {
			inner, err := os.ReadDir(path)
			if err != nil {
				continue
			}

			for _, f := range inner {
				if filepath.Ext(f.Name()) == ".so" {
					candidates = append(candidates, filepath.Join(path, f.Name()))
				}
			}

			continue
		}

		if filepath.Ext(e.Name()) == ".so" {
			candidates = append(candidates, path)
		}
	}

	for _, path := range candidates {
		if err := r.loadOne(path); err != nil {
			r.LoadFailures = append(r.LoadFailures, fmt.Sprintf("%s: %v", path, err))
		}
	}

	return nil
}

func (r *Registry) loadOne(path string) error {
	p, err := plugin.Open(path)
	if err != nil {
		return err
	}

	sym, err := p.Lookup("New")
	if err != nil {
		return err
	}

	factory := reflect.ValueOf(sym)
	if factory.Kind() != reflect.Func || factory.Type().NumOut() != 1 {
		return fmt.Errorf("New must be func() interface{}")
	}

	out := factory.Call(nil)
	if len(out) != 1 {
		return fmt.Errorf("New returned no value")
	}

	unit := out[0].Interface()
	r.Classify(unit)

	return nil
}

// Classify performs the structural capability check described in the
// Extension Registry design: the presence of the relevant methods, not an
// identity comparison against a declared type. Exported so built-in
// extensions (e.g. fixperm) can register themselves the same way a loaded
// plugin would.
func (r *Registry) Classify(unit interface{}) {
	priority := defaultPriority
	if p, ok := unit.(Prioritized); ok {
		priority = p.Priority()
	}

	classified := false

	if c, ok := unit.(Converter); ok && c.Kinds() != nil {
		r.Converters = append(r.Converters, converterEntry{priority: priority, converter: c})
		classified = true
	}

	if rw, ok := unit.(ingress.Rewriter); ok {
		r.IngressRewriters = append(r.IngressRewriters, ingress.Entry{Priority: priority, Rewriter: rw})
		classified = true
	}

	if t, ok := unit.(Transform); ok {
		if _, isConverter := unit.(Converter); !isConverter {
			r.Transforms = append(r.Transforms, transformEntry{priority: priority, transform: t})
			classified = true
		}
	}

	if !classified {
		r.LoadFailures = append(r.LoadFailures, "loaded unit satisfies no known capability (Converter, Transform, IngressRewriter)")
	}
}

// SortedConverters returns converters claiming kind, ascending by priority.
func (r *Registry) SortedConverters(kind string) []Converter {
	var claiming []converterEntry

	for _, entry := range r.Converters {
		if entry.converter.Kinds()[kind] {
			claiming = append(claiming, entry)
		}
	}

	sort.SliceStable(claiming, func(i, j int) bool { return claiming[i].priority < claiming[j].priority })

	out := make([]Converter, len(claiming))
	for i, entry := range claiming {
		out[i] = entry.converter
	}

	return out
}

// SortedTransforms returns every registered transform, ascending by
// priority.
func (r *Registry) SortedTransforms() []Transform {
	sorted := make([]transformEntry, len(r.Transforms))
	copy(sorted, r.Transforms)

	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].priority < sorted[j].priority })

	out := make([]Transform, len(sorted))
	for i, entry := range sorted {
		out[i] = entry.transform
	}

	return out
}
