package fixperm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/h2compose/h2compose/internal/compose"
	"github.com/h2compose/h2compose/internal/convert/builtin/fixperm"
	"github.com/h2compose/h2compose/internal/convert/pipectx"
	"github.com/h2compose/h2compose/internal/k8s"
	"github.com/h2compose/h2compose/internal/projectconfig"
)

func newCtx(targets ...pipectx.FixPermTarget) *pipectx.ConvertContext {
	ctx := pipectx.NewContext(k8s.NewIndex(), projectconfig.Default("demo"))
	ctx.FixPermTargets = targets

	return ctx
}

func TestTransform_InjectsServiceForHostPathTarget(t *testing.T) {
	services := map[string]*compose.Service{
		"db": {Image: "postgres:16"},
	}

	ctx := newCtx(pipectx.FixPermTarget{Workload: "db", UID: 999, HostPath: "./data/db"})

	tr := fixperm.New().(*fixperm.Transform)
	tr.Transform(services, nil, ctx)

	fix, ok := services["db-fix-perms-999"]
	assert.True(t, ok)
	assert.Equal(t, "no", fix.Restart)
	assert.Equal(t, []string{"chown", "-R", "999:999", "/fixperm/0"}, fix.Command)
	assert.Equal(t, []string{"./data/db:/fixperm/0"}, fix.Volumes)
}

func TestTransform_NoTargetsInjectsNothing(t *testing.T) {
	services := map[string]*compose.Service{
		"web": {Image: "nginx:1.25"},
	}

	tr := &fixperm.Transform{}
	tr.Transform(services, nil, newCtx())

	assert.Len(t, services, 1)
}

func TestTransform_SharedUIDReusesOneService(t *testing.T) {
	services := map[string]*compose.Service{
		"app": {Image: "app:1"},
	}

	ctx := newCtx(
		pipectx.FixPermTarget{Workload: "app", UID: 1000, HostPath: "./data/a"},
		pipectx.FixPermTarget{Workload: "app", UID: 1000, HostPath: "./data/b"},
	)

	tr := &fixperm.Transform{}
	tr.Transform(services, nil, ctx)

	fix, ok := services["app-fix-perms-1000"]
	assert.True(t, ok)
	assert.Equal(t, []string{"chown", "-R", "1000:1000", "/fixperm/0", "/fixperm/1"}, fix.Command)
	assert.Equal(t, []string{"./data/a:/fixperm/0", "./data/b:/fixperm/1"}, fix.Volumes)

	count := 0
	for name := range services {
		if name == "app-fix-perms-1000" {
			count++
		}
	}

	assert.Equal(t, 1, count)
}

func TestTransform_DifferentWorkloadsSameUIDGetSeparateServices(t *testing.T) {
	services := map[string]*compose.Service{
		"app": {Image: "app:1"},
		"db":  {Image: "postgres:16"},
	}

	ctx := newCtx(
		pipectx.FixPermTarget{Workload: "app", UID: 1000, HostPath: "./data/a"},
		pipectx.FixPermTarget{Workload: "db", UID: 1000, HostPath: "./data/b"},
	)

	tr := &fixperm.Transform{}
	tr.Transform(services, nil, ctx)

	_, appOK := services["app-fix-perms-1000"]
	_, dbOK := services["db-fix-perms-1000"]
	assert.True(t, appOK)
	assert.True(t, dbOK)
}

func TestTransform_IdempotentOnRerun(t *testing.T) {
	services := map[string]*compose.Service{
		"db": {Image: "postgres:16"},
	}

	target := pipectx.FixPermTarget{Workload: "db", UID: 999, HostPath: "./data/db"}

	tr := &fixperm.Transform{}
	tr.Transform(services, nil, newCtx(target))
	tr.Transform(services, nil, newCtx(target))

	count := 0
	for name := range services {
		if name == "db-fix-perms-999" {
			count++
		}
	}

	assert.Equal(t, 1, count)
}
