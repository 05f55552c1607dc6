package k8s_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/h2compose/h2compose/internal/k8s"
)

func TestManifest_APIVersion(t *testing.T) {
	t.Run("from object", func(t *testing.T) {
		m := &k8s.Manifest{
			GVK: schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"},
			Object: &unstructured.Unstructured{
				Object: map[string]interface{}{
					"apiVersion": "apps/v1",
					"kind":       "Deployment",
				},
			},
		}
		assert.Equal(t, "apps/v1", m.APIVersion())
	})

	t.Run("nil object falls back to GVK", func(t *testing.T) {
		m := &k8s.Manifest{
			GVK: schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"},
		}
		assert.Equal(t, "apps/v1", m.APIVersion())
	})

	t.Run("core group", func(t *testing.T) {
		m := &k8s.Manifest{
			GVK: schema.GroupVersionKind{Group: "", Version: "v1", Kind: "Service"},
		}
		assert.Equal(t, "v1", m.APIVersion())
	})
}

func TestManifest_Kind(t *testing.T) {
	m := &k8s.Manifest{GVK: schema.GroupVersionKind{Kind: "ConfigMap"}}
	assert.Equal(t, "ConfigMap", m.Kind())
}

func TestManifest_QualifiedName(t *testing.T) {
	m := &k8s.Manifest{GVK: schema.GroupVersionKind{Kind: "Deployment"}, Name: "nginx"}
	assert.Equal(t, "Deployment/nginx", m.QualifiedName())
}

func TestManifest_NestedMap(t *testing.T) {
	t.Run("nil object", func(t *testing.T) {
		m := &k8s.Manifest{}
		assert.Empty(t, m.NestedMap("metadata", "annotations"))
	})

	t.Run("explicit null", func(t *testing.T) {
		m := &k8s.Manifest{Object: &unstructured.Unstructured{Object: map[string]interface{}{
			"metadata": map[string]interface{}{"annotations": nil},
		}}}
		assert.Empty(t, m.NestedMap("metadata", "annotations"))
	})

	t.Run("present", func(t *testing.T) {
		m := &k8s.Manifest{Object: &unstructured.Unstructured{Object: map[string]interface{}{
			"metadata": map[string]interface{}{"annotations": map[string]interface{}{"a": "b"}},
		}}}
		assert.Equal(t, map[string]interface{}{"a": "b"}, m.NestedMap("metadata", "annotations"))
	})
}

func TestManifest_NestedSlice(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		m := &k8s.Manifest{Object: &unstructured.Unstructured{Object: map[string]interface{}{}}}
		assert.Nil(t, m.NestedSlice("spec", "rules"))
	})

	t.Run("explicit null", func(t *testing.T) {
		m := &k8s.Manifest{Object: &unstructured.Unstructured{Object: map[string]interface{}{
			"spec": map[string]interface{}{"rules": nil},
		}}}
		assert.Nil(t, m.NestedSlice("spec", "rules"))
	})
}

func TestManifest_NestedStringMap(t *testing.T) {
	m := &k8s.Manifest{Object: &unstructured.Unstructured{Object: map[string]interface{}{
		"data": map[string]interface{}{"FOO": "bar"},
	}}}
	assert.Equal(t, map[string]string{"FOO": "bar"}, m.NestedStringMap("data"))
}

func TestManifest_VolumeClaimTemplateNames(t *testing.T) {
	t.Run("non-StatefulSet returns nil", func(t *testing.T) {
		m := &k8s.Manifest{GVK: schema.GroupVersionKind{Kind: "Deployment"}}
		assert.Nil(t, m.VolumeClaimTemplateNames())
	})

	t.Run("StatefulSet with templates", func(t *testing.T) {
		m := &k8s.Manifest{
			GVK: schema.GroupVersionKind{Kind: "StatefulSet"},
			Object: &unstructured.Unstructured{Object: map[string]interface{}{
				"spec": map[string]interface{}{
					"volumeClaimTemplates": []interface{}{
						map[string]interface{}{"metadata": map[string]interface{}{"name": "data"}},
						map[string]interface{}{"metadata": map[string]interface{}{"name": "logs"}},
					},
				},
			}},
		}
		assert.Equal(t, []string{"data", "logs"}, m.VolumeClaimTemplateNames())
	})

	t.Run("StatefulSet with no templates", func(t *testing.T) {
		m := &k8s.Manifest{
			GVK:    schema.GroupVersionKind{Kind: "StatefulSet"},
			Object: &unstructured.Unstructured{Object: map[string]interface{}{}},
		}
		assert.Nil(t, m.VolumeClaimTemplateNames())
	})
}

func TestIsWorkloadKind(t *testing.T) {
	assert.True(t, k8s.IsWorkloadKind("Deployment"))
	assert.True(t, k8s.IsWorkloadKind("Job"))
	assert.False(t, k8s.IsWorkloadKind("CronJob"))
	assert.False(t, k8s.IsWorkloadKind("ReplicaSet"))
}
