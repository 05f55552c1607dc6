package compose_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/h2compose/h2compose/internal/compose"
)

func TestService_SetEnv_AppendsNew(t *testing.T) {
	s := &compose.Service{}
	s.SetEnv("FOO", "bar")
	assert.Equal(t, []string{"FOO=bar"}, s.Environment)
}

func TestService_SetEnv_ReplacesInPlace(t *testing.T) {
	s := &compose.Service{Environment: []string{"FOO=bar", "BAZ=qux"}}
	s.SetEnv("FOO", "updated")
	assert.Equal(t, []string{"FOO=updated", "BAZ=qux"}, s.Environment)
}

func TestProject_SortedServiceNames(t *testing.T) {
	p := compose.NewProject()
	p.Services["web"] = &compose.Service{}
	p.Services["api"] = &compose.Service{}
	p.Services["db"] = &compose.Service{}

	assert.Equal(t, []string{"api", "db", "web"}, p.SortedServiceNames())
}

func TestProject_DeleteService(t *testing.T) {
	p := compose.NewProject()
	p.Services["web"] = &compose.Service{}
	p.DeleteService("web")
	assert.NotContains(t, p.Services, "web")
}
