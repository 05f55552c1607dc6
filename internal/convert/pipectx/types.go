// Package pipectx holds the types shared between the Pipeline Driver and
// every builder/extension it calls: the read-mostly ConvertContext, the
// converter/provider result shapes, and the append-only warning sink. It
// exists as its own package (rather than living in convert) so that the
// service, ingress, and extensions builders can depend on it without an
// import cycle back through the driver.
package pipectx

import (
	"fmt"
	"sync"

	"github.com/h2compose/h2compose/internal/compose"
	"github.com/h2compose/h2compose/internal/k8s"
	"github.com/h2compose/h2compose/internal/projectconfig"
)

// Warning is one append-only entry in the run's diagnostic sink.
type Warning struct {
	Kind    string
	Message string
}

// WarningSink collects warnings in insertion order. Safe for use from
// extension calls invoked synchronously by the single-threaded driver.
type WarningSink struct {
	mu    sync.Mutex
	items []Warning
}

// Add appends a warning.
func (s *WarningSink) Add(kind, format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, Warning{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// All returns every warning recorded so far, in insertion order.
func (s *WarningSink) All() []Warning {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Warning, len(s.items))
	copy(out, s.items)

	return out
}

// Route is one path rule within an IngressEntry.
type Route struct {
	Path      string
	Upstream  string // compose-service:port
	TLS       bool
	Directives []string
}

// IngressEntry is one Caddy site block: a host and its ordered routes.
type IngressEntry struct {
	Host   string
	Routes []Route
}

// ConvertContext is the read-mostly bundle passed to every extension call.
// It grows monotonically: the alias map and service-port map are populated
// in phase 3, before any transform or ingress rewriter runs.
type ConvertContext struct {
	Index *k8s.Index

	Config *projectconfig.Config

	// Aliases maps a Kubernetes Service name to the compose service name of
	// the workload it selects.
	Aliases map[string]string

	// ServicePorts maps (service name, port name-or-number) to the numeric
	// container port.
	ServicePorts map[ServicePortKey]int32

	// VolumeRoot is the resolved directory prefix bare host-path volume
	// names are mounted under.
	VolumeRoot string

	Warnings *WarningSink

	// IngressTypes is the project's ingressClassName -> canonical rewriter
	// name mapping.
	IngressTypes map[string]string

	// FixPermTargets records, for every host-path-backed PVC mount fed to a
	// non-root container, the (workload, UID, host path) triple a
	// fix-permissions transform would need to chown it. Populated by the
	// Service Builder as it walks each workload; consulted only by the
	// fixperm extension, if registered.
	FixPermTargets []FixPermTarget
}

// FixPermTarget is one host-path-backed PVC mount whose container runs
// under a non-root UID (securityContext.runAsUser).
type FixPermTarget struct {
	Workload string
	UID      int
	HostPath string
}

// ServicePortKey identifies an entry in ConvertContext.ServicePorts.
type ServicePortKey struct {
	Service string
	Port    string // either the port name or its numeric string form
}

// NewContext builds a ConvertContext over idx, ready for phase 3 to
// populate the alias and service-port maps.
func NewContext(idx *k8s.Index, cfg *projectconfig.Config) *ConvertContext {
	return &ConvertContext{
		Index:        idx,
		Config:       cfg,
		Aliases:      make(map[string]string),
		ServicePorts: make(map[ServicePortKey]int32),
		VolumeRoot:   cfg.VolumeRoot,
		Warnings:     &WarningSink{},
		IngressTypes: cfg.IngressTypes,
	}
}

// ConverterResult is produced by a converter invocation: zero or more
// synthetic manifests injected back into the index for downstream
// converters, and zero or more warnings.
type ConverterResult struct {
	Synthetic []*k8s.Manifest
	Warnings  []string
}

// ProviderResult extends ConverterResult with compose services and ingress
// entries the provider wants injected directly. Structural dispatch (see
// AsProvider) detects this capability without a type assertion against a
// specific concrete type, so an extension's own copy of the contract
// interoperates.
type ProviderResult struct {
	ConverterResult
	Services map[string]*compose.Service
	Ingress  []IngressEntry
}

// servicesProvider is the structural capability ProviderResult satisfies.
// Detection goes through this interface (duck typing), not a concrete type
// assertion, so extensions that define their own ProviderResult-shaped type
// still dispatch correctly.
type servicesProvider interface {
	GetServices() map[string]*compose.Service
}

// GetServices implements servicesProvider.
func (p *ProviderResult) GetServices() map[string]*compose.Service {
	return p.Services
}

// AsProvider performs the structural capability check described in the
// Extension Registry design: it looks for the "has services" capability on
// whatever a converter returned, rather than asserting an exact type.
func AsProvider(result interface{}) (servicesProvider, bool) {
	p, ok := result.(servicesProvider)
	return p, ok
}

