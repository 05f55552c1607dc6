package convert_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2compose/h2compose/internal/compose"
	"github.com/h2compose/h2compose/internal/convert"
	"github.com/h2compose/h2compose/internal/convert/pipectx"
	"github.com/h2compose/h2compose/internal/convert/volumes"
	"github.com/h2compose/h2compose/internal/projectconfig"
)

func sampleResult(name string) *convert.Result {
	project := compose.NewProject()
	project.Services["web"] = &compose.Service{Image: "nginx:1.27"}

	return &convert.Result{
		Project: project,
		Config:  projectconfig.Default(name),
		Files: []volumes.File{
			{RelPath: "configmaps/web-config/app.conf", Content: "key=value"},
		},
	}
}

func TestAssemble_WritesComposeAndFiles(t *testing.T) {
	dir := t.TempDir()
	result := sampleResult("myproj")

	report, err := convert.Assemble(result, convert.AssembleOptions{
		OutputDir:         dir,
		ProjectConfigPath: filepath.Join(dir, ".h2compose-project.yaml"),
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "compose.yml"), report.ComposePath)
	assert.Empty(t, report.CaddyfilePath)
	assert.Len(t, report.FilesWritten, 1)

	composeData, err := os.ReadFile(report.ComposePath)
	require.NoError(t, err)
	assert.Contains(t, string(composeData), "nginx:1.27")

	fileData, err := os.ReadFile(filepath.Join(dir, "configmaps/web-config/app.conf"))
	require.NoError(t, err)
	assert.Equal(t, "key=value", string(fileData))

	_, err = os.Stat(report.ProjectConfigPath)
	assert.NoError(t, err)
}

func TestAssemble_RendersCaddyfileWhenIngressPresent(t *testing.T) {
	dir := t.TempDir()
	result := sampleResult("myproj")
	result.Ingress = []pipectx.IngressEntry{
		{Host: "app.example.com", Routes: []pipectx.Route{{Path: "/", Upstream: "web:80"}}},
	}

	report, err := convert.Assemble(result, convert.AssembleOptions{
		OutputDir:         dir,
		ProjectConfigPath: filepath.Join(dir, ".h2compose-project.yaml"),
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "Caddyfile"), report.CaddyfilePath)

	_, err = os.Stat(report.CaddyfilePath)
	assert.NoError(t, err)
}

func TestAssemble_DisabledIngressUsesNamedCaddyfile(t *testing.T) {
	dir := t.TempDir()
	result := sampleResult("myproj")
	result.Config.DisableIngress = true
	result.Ingress = []pipectx.IngressEntry{
		{Host: "app.example.com", Routes: []pipectx.Route{{Path: "/", Upstream: "web:80"}}},
	}

	report, err := convert.Assemble(result, convert.AssembleOptions{
		OutputDir:         dir,
		ProjectConfigPath: filepath.Join(dir, ".h2compose-project.yaml"),
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "Caddyfile-myproj"), report.CaddyfilePath)
}

func TestAssemble_DryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	result := sampleResult("myproj")
	result.Ingress = []pipectx.IngressEntry{
		{Host: "app.example.com", Routes: []pipectx.Route{{Path: "/", Upstream: "web:80"}}},
	}

	report, err := convert.Assemble(result, convert.AssembleOptions{
		OutputDir:         dir,
		ProjectConfigPath: filepath.Join(dir, ".h2compose-project.yaml"),
		DryRun:            true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, report.ComposePath)
	assert.NotEmpty(t, report.CaddyfilePath)
	assert.Len(t, report.FilesWritten, 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAssemble_CustomComposeFilename(t *testing.T) {
	dir := t.TempDir()
	result := sampleResult("myproj")

	report, err := convert.Assemble(result, convert.AssembleOptions{
		OutputDir:         dir,
		ComposeFile:       "docker-compose.yaml",
		ProjectConfigPath: filepath.Join(dir, ".h2compose-project.yaml"),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "docker-compose.yaml"), report.ComposePath)
}
