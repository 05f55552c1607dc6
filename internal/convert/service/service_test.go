package service_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/h2compose/h2compose/internal/convert/pipectx"
	"github.com/h2compose/h2compose/internal/convert/service"
	"github.com/h2compose/h2compose/internal/k8s"
	"github.com/h2compose/h2compose/internal/projectconfig"
)

func deployment(name string, containers []interface{}, initContainers []interface{}) *k8s.Manifest {
	spec := map[string]interface{}{
		"template": map[string]interface{}{
			"spec": map[string]interface{}{
				"containers": containers,
			},
		},
	}

	podSpec := spec["template"].(map[string]interface{})["spec"].(map[string]interface{})
	if initContainers != nil {
		podSpec["initContainers"] = initContainers
	}

	return &k8s.Manifest{
		GVK:  schema.GroupVersionKind{Group: "apps", Kind: "Deployment"},
		Name: name,
		Object: &unstructured.Unstructured{Object: map[string]interface{}{
			"spec": spec,
		}},
	}
}

func newCtx() *pipectx.ConvertContext {
	return pipectx.NewContext(k8s.NewIndex(), projectconfig.Default("demo"))
}

func TestBuild_MainContainer(t *testing.T) {
	m := deployment("web", []interface{}{
		map[string]interface{}{"name": "app", "image": "nginx:1.25"},
	}, nil)

	result := service.Build(newCtx(), m)

	require := assert.New(t)
	require.Contains(result.Services, "web")
	require.Equal("nginx:1.25", result.Services["web"].Image)
	require.Empty(result.Services["web"].Restart)
}

func TestBuild_JobGetsRestartOnFailure(t *testing.T) {
	m := deployment("migrate", []interface{}{
		map[string]interface{}{"name": "app", "image": "migrate:latest"},
	}, nil)
	m.GVK = schema.GroupVersionKind{Group: "batch", Kind: "Job"}

	result := service.Build(newCtx(), m)
	assert.Equal(t, "on-failure", result.Services["migrate"].Restart)
}

func TestBuild_InitContainerNamedAndRestarting(t *testing.T) {
	m := deployment("web", []interface{}{
		map[string]interface{}{"name": "app", "image": "nginx:1.25"},
	}, []interface{}{
		map[string]interface{}{"name": "migrate", "image": "migrate:latest"},
	})

	result := service.Build(newCtx(), m)

	svc, ok := result.Services["web-init-migrate"]
	assert.True(t, ok)
	assert.Equal(t, "on-failure", svc.Restart)
}

func TestBuild_SidecarSharesNetworkNamespace(t *testing.T) {
	m := deployment("web", []interface{}{
		map[string]interface{}{"name": "app", "image": "nginx:1.25"},
		map[string]interface{}{"name": "proxy", "image": "envoy:latest"},
	}, nil)

	result := service.Build(newCtx(), m)

	svc, ok := result.Services["web-proxy"]
	assert.True(t, ok)
	assert.Equal(t, "container:web", svc.NetworkMode)
	assert.Nil(t, svc.Networks)
}

func TestBuild_CommandArgsMapToEntrypointCommand(t *testing.T) {
	m := deployment("web", []interface{}{
		map[string]interface{}{
			"name":    "app",
			"image":   "nginx:1.25",
			"command": []interface{}{"/bin/sh", "-c"},
			"args":    []interface{}{"echo hi"},
		},
	}, nil)

	result := service.Build(newCtx(), m)
	svc := result.Services["web"]
	assert.Equal(t, []string{"/bin/sh", "-c"}, svc.Entrypoint)
	assert.Equal(t, []string{"echo hi"}, svc.Command)
}

func TestBuild_KubeletVarExpandedInArgs(t *testing.T) {
	m := deployment("web", []interface{}{
		map[string]interface{}{
			"name":  "app",
			"image": "nginx:1.25",
			"env": []interface{}{
				map[string]interface{}{"name": "HOST", "value": "example.com"},
			},
			"args": []interface{}{"--host=$(HOST)"},
		},
	}, nil)

	result := service.Build(newCtx(), m)
	svc := result.Services["web"]
	assert.Equal(t, []string{"--host=example.com"}, svc.Command)
}

func TestTruncateHostname_Short(t *testing.T) {
	assert.Equal(t, "web", service.TruncateHostname("web"))
}

func TestTruncateHostname_LongTrimsTrailingDash(t *testing.T) {
	name := strings.Repeat("a", 62) + "--suffix"
	out := service.TruncateHostname(name)
	assert.LessOrEqual(t, len(out), 63)
	assert.NotEqual(t, byte('-'), out[len(out)-1])
}

func TestBuild_NoContainersWarns(t *testing.T) {
	m := deployment("web", []interface{}{}, nil)
	ctx := newCtx()

	result := service.Build(ctx, m)
	assert.Empty(t, result.Services)
	assert.NotEmpty(t, ctx.Warnings.All())
}

func TestBuild_PublishesNodePortService(t *testing.T) {
	ctx := newCtx()
	ctx.Index.Add(&k8s.Manifest{
		GVK:  schema.GroupVersionKind{Kind: "Service"},
		Name: "web-svc",
		Object: &unstructured.Unstructured{Object: map[string]interface{}{
			"spec": map[string]interface{}{
				"type": "NodePort",
				"ports": []interface{}{
					map[string]interface{}{"port": int64(80), "nodePort": int64(30080)},
				},
			},
		}},
	})
	ctx.Aliases["web-svc"] = "web"
	ctx.ServicePorts[pipectx.ServicePortKey{Service: "web-svc", Port: "80"}] = 8080

	m := deployment("web", []interface{}{
		map[string]interface{}{"name": "app", "image": "nginx:1.25"},
	}, nil)

	result := service.Build(ctx, m)
	assert.Equal(t, []string{"30080:8080"}, result.Services["web"].Ports)
}

func TestBuild_ClusterIPServiceDoesNotPublish(t *testing.T) {
	ctx := newCtx()
	ctx.Index.Add(&k8s.Manifest{
		GVK:  schema.GroupVersionKind{Kind: "Service"},
		Name: "web-svc",
		Object: &unstructured.Unstructured{Object: map[string]interface{}{
			"spec": map[string]interface{}{
				"type":  "ClusterIP",
				"ports": []interface{}{map[string]interface{}{"port": int64(80)}},
			},
		}},
	})
	ctx.Aliases["web-svc"] = "web"
	ctx.ServicePorts[pipectx.ServicePortKey{Service: "web-svc", Port: "80"}] = 8080

	m := deployment("web", []interface{}{
		map[string]interface{}{"name": "app", "image": "nginx:1.25"},
	}, nil)

	result := service.Build(ctx, m)
	assert.Empty(t, result.Services["web"].Ports)
}
