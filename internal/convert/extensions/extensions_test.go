package extensions_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/h2compose/h2compose/internal/compose"
	"github.com/h2compose/h2compose/internal/convert/extensions"
	"github.com/h2compose/h2compose/internal/convert/ingress"
	"github.com/h2compose/h2compose/internal/convert/pipectx"
	"github.com/h2compose/h2compose/internal/k8s"
)

type fakeConverter struct {
	kinds    map[string]bool
	priority int
}

func (f *fakeConverter) Kinds() map[string]bool { return f.kinds }
func (f *fakeConverter) Convert(*k8s.Manifest, *pipectx.ConvertContext) interface{} { return nil }
func (f *fakeConverter) Priority() int { return f.priority }

type fakeTransform struct{ name string }

func (f *fakeTransform) TransformName() string { return f.name }
func (f *fakeTransform) Transform(map[string]*compose.Service, []pipectx.IngressEntry, *pipectx.ConvertContext) {
}

type fakeRewriter struct{ name string }

func (f *fakeRewriter) RewriterName() string                                       { return f.name }
func (f *fakeRewriter) Match(*k8s.Manifest, *pipectx.ConvertContext) bool           { return true }
func (f *fakeRewriter) Rewrite(*k8s.Manifest, *pipectx.ConvertContext) []pipectx.IngressEntry { return nil }

func TestClassify_Converter(t *testing.T) {
	reg := extensions.NewRegistry()
	reg.Classify(&fakeConverter{kinds: map[string]bool{"Ingress": true}, priority: 50})

	convs := reg.SortedConverters("Ingress")
	assert.Len(t, convs, 1)
}

func TestClassify_TransformNotAlsoConverter(t *testing.T) {
	reg := extensions.NewRegistry()
	reg.Classify(&fakeTransform{name: "inject-labels"})

	assert.Len(t, reg.SortedTransforms(), 1)
	assert.Empty(t, reg.Converters)
}

func TestClassify_IngressRewriter(t *testing.T) {
	reg := extensions.NewRegistry()
	reg.Classify(&fakeRewriter{name: "nginx"})

	assert.Len(t, reg.IngressRewriters, 1)
}

func TestClassify_UnknownCapabilityRecordsFailure(t *testing.T) {
	reg := extensions.NewRegistry()
	reg.Classify(struct{}{})

	assert.Len(t, reg.LoadFailures, 1)
}

func TestSortedConverters_OrdersByPriority(t *testing.T) {
	reg := extensions.NewRegistry()
	reg.Classify(&fakeConverter{kinds: map[string]bool{"Pod": true}, priority: 200})
	reg.Classify(&fakeConverter{kinds: map[string]bool{"Pod": true}, priority: 10})

	convs := reg.SortedConverters("Pod")
	assert.Len(t, convs, 2)
	assert.Equal(t, 10, convs[0].(*fakeConverter).priority)
}

func TestLoad_MissingDirReturnsError(t *testing.T) {
	reg := extensions.NewRegistry()
	err := reg.Load("/nonexistent/path/for/extensions")
	assert.Error(t, err)
}

func TestLoad_EmptyPathIsNoop(t *testing.T) {
	reg := extensions.NewRegistry()
	err := reg.Load("")
	assert.NoError(t, err)
}

var _ ingress.Rewriter = (*fakeRewriter)(nil)
