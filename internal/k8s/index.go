package k8s

import "fmt"

// indexKey identifies a manifest by kind and name, ignoring namespace: the
// index is deliberately flat, documented as a known gap when two manifests
// of the same kind share a name across namespaces.
type indexKey struct {
	kind string
	name string
}

// Index is a flat mapping (kind, name) -> Manifest plus per-kind lists. If
// two manifests of the same kind share a name, the later one wins. Immutable
// after the ingestion phase, except for synthetic-manifest insertions which
// the pipeline driver serialises during the converter fan-out phase.
type Index struct {
	byKey  map[indexKey]*Manifest
	byKind map[string][]*Manifest
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{
		byKey:  make(map[indexKey]*Manifest),
		byKind: make(map[string][]*Manifest),
	}
}

// Add inserts or replaces a manifest. Replacing preserves ordering within
// ByKind by overwriting the existing slice entry rather than appending a
// duplicate.
func (idx *Index) Add(m *Manifest) {
	key := indexKey{kind: m.GVK.Kind, name: m.Name}

	if _, exists := idx.byKey[key]; exists {
		list := idx.byKind[m.GVK.Kind]
		for i, existing := range list {
			if existing.Name == m.Name {
				list[i] = m
				break
			}
		}
	} else {
		idx.byKind[m.GVK.Kind] = append(idx.byKind[m.GVK.Kind], m)
	}

	idx.byKey[key] = m
}

// Get looks up a manifest by kind and name.
func (idx *Index) Get(kind, name string) (*Manifest, bool) {
	m, ok := idx.byKey[indexKey{kind: kind, name: name}]
	return m, ok
}

// ByKind returns all manifests of the given kind, in insertion order.
func (idx *Index) ByKind(kind string) []*Manifest {
	return idx.byKind[kind]
}

// All returns every manifest in the index, in insertion order within each
// kind but with no cross-kind ordering guarantee.
func (idx *Index) All() []*Manifest {
	var out []*Manifest
	for _, list := range idx.byKind {
		out = append(out, list...)
	}

	return out
}

// Workloads returns every manifest whose kind is a workload kind
// (Deployment, StatefulSet, DaemonSet, Job).
func (idx *Index) Workloads() []*Manifest {
	var out []*Manifest

	for kind, list := range idx.byKind {
		if IsWorkloadKind(kind) {
			out = append(out, list...)
		}
	}

	return out
}

// String renders a compact summary, useful in warnings and debug logging.
func (idx *Index) String() string {
	return fmt.Sprintf("Index{%d manifests across %d kinds}", len(idx.byKey), len(idx.byKind))
}
