package helmfile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/h2compose/h2compose/internal/coreerr"
	"github.com/h2compose/h2compose/internal/helmfile"
)

// withEmptyPATH guarantees exec.LookPath("helmfile") fails regardless of
// what's installed on the machine running the test.
func withEmptyPATH(t *testing.T) {
	t.Helper()
	t.Setenv("PATH", t.TempDir())
}

func TestRender_BinaryNotFound(t *testing.T) {
	withEmptyPATH(t)

	err := helmfile.Render(context.Background(), "testdata/chart", "dev", t.TempDir())

	var coreErr *coreerr.CoreError
	assert.True(t, errors.As(err, &coreErr))
	assert.Equal(t, coreerr.InputUnreadable, coreErr.Kind)
}

func TestListNamespaces_BinaryNotFound(t *testing.T) {
	withEmptyPATH(t)

	releases, err := helmfile.ListNamespaces(context.Background(), "testdata/chart", "dev")

	assert.Nil(t, releases)

	var coreErr *coreerr.CoreError
	assert.True(t, errors.As(err, &coreErr))
	assert.Equal(t, coreerr.InputUnreadable, coreErr.Kind)
}
