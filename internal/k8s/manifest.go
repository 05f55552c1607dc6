// Package k8s provides Kubernetes manifest abstractions: the parsed
// Manifest type, GVK classification, and the null-safe field reads the
// conversion pipeline relies on when walking conditionally-templated
// documents.
package k8s

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Manifest is a single parsed Kubernetes-shaped document, classified by
// kind, with its full field tree preserved in Object. Immutable after
// ingestion except for the synthetic-manifest insertions the converter
// fan-out phase performs.
type Manifest struct {
	// GVK is the GroupVersionKind of the manifest.
	GVK schema.GroupVersionKind

	// Name is metadata.name.
	Name string

	// Namespace is metadata.namespace (may be empty for cluster-scoped).
	Namespace string

	// Labels from metadata.labels.
	Labels map[string]string

	// Annotations from metadata.annotations.
	Annotations map[string]string

	// Synthetic marks a manifest injected by an extension converter rather
	// than read from the input directory.
	Synthetic bool

	// Object is the full unstructured representation.
	Object *unstructured.Unstructured
}

// APIVersion returns the apiVersion string (e.g. "apps/v1").
func (m *Manifest) APIVersion() string {
	if m.Object != nil {
		return m.Object.GetAPIVersion()
	}

	return m.GVK.GroupVersion().String()
}

// Kind returns the manifest kind (e.g. "Deployment").
func (m *Manifest) Kind() string {
	return m.GVK.Kind
}

// QualifiedName returns "kind/name" for display purposes.
func (m *Manifest) QualifiedName() string {
	return m.GVK.Kind + "/" + m.Name
}

// NestedMap reads a nested map field, treating both an absent field and an
// explicit null as the empty map rather than an error.
func (m *Manifest) NestedMap(fields ...string) map[string]interface{} {
	if m.Object == nil {
		return map[string]interface{}{}
	}

	v, found, err := unstructured.NestedMap(m.Object.Object, fields...)
	if err != nil || !found || v == nil {
		return map[string]interface{}{}
	}

	return v
}

// NestedSlice reads a nested slice field, treating both an absent field and
// an explicit null as the empty slice.
func (m *Manifest) NestedSlice(fields ...string) []interface{} {
	if m.Object == nil {
		return nil
	}

	v, found, err := unstructured.NestedSlice(m.Object.Object, fields...)
	if err != nil || !found || v == nil {
		return nil
	}

	return v
}

// NestedString reads a nested string field, returning "" when absent, null,
// or of the wrong type.
func (m *Manifest) NestedString(fields ...string) string {
	if m.Object == nil {
		return ""
	}

	v, found, err := unstructured.NestedString(m.Object.Object, fields...)
	if err != nil || !found {
		return ""
	}

	return v
}

// NestedStringMap reads a nested map[string]string field (e.g. a ConfigMap's
// data or a Service's selector), treating absence and null as empty.
func (m *Manifest) NestedStringMap(fields ...string) map[string]string {
	raw := m.NestedMap(fields...)
	out := make(map[string]string, len(raw))

	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}

	return out
}

// VolumeClaimTemplateNames returns spec.volumeClaimTemplates[*].metadata.name
// for a StatefulSet, or nil for any other kind. These names are an implicit
// PVC source available to the StatefulSet's own mounts without a matching
// pod-spec volumes entry.
func (m *Manifest) VolumeClaimTemplateNames() []string {
	if m.GVK.Kind != "StatefulSet" {
		return nil
	}

	templates := m.NestedSlice("spec", "volumeClaimTemplates")
	if len(templates) == 0 {
		return nil
	}

	names := make([]string, 0, len(templates))

	for _, t := range templates {
		tm, ok := t.(map[string]interface{})
		if !ok {
			continue
		}

		meta, ok := tm["metadata"].(map[string]interface{})
		if !ok {
			continue
		}

		name, ok := meta["name"].(string)
		if !ok || name == "" {
			continue
		}

		names = append(names, name)
	}

	return names
}

// WorkloadKinds enumerates the kinds that contain pod templates and
// therefore produce compose services: Deployment, StatefulSet, DaemonSet,
// Job. CronJob is known-but-unsupported and deliberately excluded.
var WorkloadKinds = map[string]bool{
	"Deployment":  true,
	"StatefulSet": true,
	"DaemonSet":   true,
	"Job":         true,
}

// IsWorkloadKind returns true if the kind represents a pod-bearing workload
// the pipeline converts.
func IsWorkloadKind(kind string) bool {
	return WorkloadKinds[kind]
}
