// Package ingress turns Ingress manifests into Caddy site entries via
// pluggable rewriters, resolving each path's backend through the Service
// index (including ExternalName chains) and the service-port map.
package ingress

import (
	"sort"
	"strconv"
	"strings"

	"github.com/h2compose/h2compose/internal/convert/pipectx"
	"github.com/h2compose/h2compose/internal/k8s"
)

// maxExternalNameHops bounds the ExternalName chain walk so a cyclic alias
// graph cannot loop forever.
const maxExternalNameHops = 8

// Rewriter translates controller-specific Ingress annotations into routing
// directives. Any value whose method set structurally satisfies this
// interface dispatches correctly, including one loaded from an extension.
type Rewriter interface {
	RewriterName() string
	Match(m *k8s.Manifest, ctx *pipectx.ConvertContext) bool
	Rewrite(m *k8s.Manifest, ctx *pipectx.ConvertContext) []pipectx.IngressEntry
}

// Entry pairs a rewriter with its registry priority (ascending, lower runs
// first), mirroring the Extension Registry's ordering rule.
type Entry struct {
	Priority int
	Rewriter Rewriter
}

// Registry is a priority-sorted list of rewriters sharing a canonical name.
type Registry []Entry

// Sorted returns a copy of reg ordered ascending by priority, ties broken by
// original (registration) order — Go's sort.SliceStable preserves that.
func (reg Registry) Sorted() Registry {
	out := make(Registry, len(reg))
	copy(out, reg)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })

	return out
}

// Build runs the Ingress Builder over one Ingress manifest: it resolves the
// canonical rewriter name via ctx.IngressTypes, finds the first matching
// rewriter in priority order, and resolves every returned route's backend.
func Build(ctx *pipectx.ConvertContext, m *k8s.Manifest, registry Registry) []pipectx.IngressEntry {
	className := m.NestedString("spec", "ingressClassName")
	canonical := resolveCanonical(className, ctx.IngressTypes)

	var candidates Registry

	for _, entry := range registry.Sorted() {
		if entry.Rewriter.RewriterName() == canonical {
			candidates = append(candidates, entry)
		}
	}

	if len(candidates) == 0 {
		ctx.Warnings.Add("MissingReference", "no ingress rewriter registered for class %q on %s", className, m.QualifiedName())
		return nil
	}

	var chosen Rewriter

	for _, entry := range candidates {
		if entry.Rewriter.Match(m, ctx) {
			chosen = entry.Rewriter
			break
		}
	}

	if chosen == nil {
		ctx.Warnings.Add("MissingReference", "no ingress rewriter matched %s (class %q)", m.QualifiedName(), className)
		return nil
	}

	entries := chosen.Rewrite(m, ctx)

	for i := range entries {
		for j := range entries[i].Routes {
			entries[i].Routes[j] = resolveRoute(ctx, m, entries[i].Routes[j])
		}

		entries[i].Routes = orderBySpecificity(entries[i].Routes)
	}

	return entries
}

// resolveCanonical applies the project's ingress_types mapping: exact match
// first, then substring match, falling back to the raw class name so a
// rewriter can register itself directly under the class string.
func resolveCanonical(className string, ingressTypes map[string]string) string {
	if canonical, ok := ingressTypes[className]; ok {
		return canonical
	}

	for pattern, canonical := range ingressTypes {
		if strings.Contains(className, pattern) {
			return canonical
		}
	}

	return className
}

// resolveRoute fills in route.Upstream by chaining through ExternalName
// services, applying the alias map and service-port map, and detecting an
// HTTPS backend to mark TLS.
func resolveRoute(ctx *pipectx.ConvertContext, m *k8s.Manifest, route pipectx.Route) pipectx.Route {
	serviceName, portKey := splitBackend(route.Upstream)
	if serviceName == "" {
		ctx.Warnings.Add("MissingReference", "ingress %s has a route with no resolvable backend", m.QualifiedName())
		return route
	}

	resolvedService, tls, ok := resolveBackendChain(ctx, m, serviceName)
	if !ok {
		return route
	}

	workloadName, ok := ctx.Aliases[resolvedService]
	if !ok {
		ctx.Warnings.Add("MissingReference", "ingress %s backend %q has no known workload", m.QualifiedName(), resolvedService)
		return route
	}

	containerPort := int32(0)
	if v, ok := ctx.ServicePorts[pipectx.ServicePortKey{Service: resolvedService, Port: portKey}]; ok {
		containerPort = v
	}

	if containerPort == 0 {
		route.Upstream = workloadName
	} else {
		route.Upstream = workloadName + ":" + strconv.Itoa(int(containerPort))
	}

	route.TLS = route.TLS || tls

	return route
}

// resolveBackendChain walks ExternalName services (keeping only the first
// DNS label of each externalName, so docs-media ->
// minio.ns.svc.cluster.local continues at Service minio) until it lands on
// a non-ExternalName Service, the chain runs
// out of known services, or the hop bound is hit.
func resolveBackendChain(ctx *pipectx.ConvertContext, m *k8s.Manifest, name string) (string, bool, bool) {
	seen := map[string]bool{}
	current := name
	tls := false

	for hop := 0; hop < maxExternalNameHops; hop++ {
		if seen[current] {
			ctx.Warnings.Add("MissingReference", "cycle detected resolving ingress %s backend chain at %q", m.QualifiedName(), current)
			return current, tls, true
		}

		seen[current] = true

		svc, ok := ctx.Index.Get("Service", current)
		if !ok {
			ctx.Warnings.Add("MissingReference", "ingress %s references unknown Service %q", m.QualifiedName(), current)
			return "", false, false
		}

		if svc.NestedString("spec", "type") != "ExternalName" {
			tls = tls || backendIsHTTPS(svc)
			return current, tls, true
		}

		tls = tls || backendIsHTTPS(svc)

		target := svc.NestedString("spec", "externalName")
		if target == "" {
			return current, tls, true
		}

		current = strings.SplitN(target, ".", 2)[0]
	}

	ctx.Warnings.Add("MissingReference", "ingress %s backend chain exceeded %d hops, using %q", m.QualifiedName(), maxExternalNameHops, current)

	return current, tls, true
}

func backendIsHTTPS(svc *k8s.Manifest) bool {
	for _, raw := range svc.NestedSlice("spec", "ports") {
		portSpec, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}

		if proto, ok := portSpec["appProtocol"].(string); ok && strings.EqualFold(proto, "https") {
			return true
		}
	}

	return false
}

// orderBySpecificity sorts routes by path length, longest first, with the
// catch-all "/" last; routes whose paths have equal length keep their
// relative order.
func orderBySpecificity(routes []pipectx.Route) []pipectx.Route {
	out := make([]pipectx.Route, len(routes))
	copy(out, routes)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path == "/" {
			return false
		}

		if out[j].Path == "/" {
			return true
		}

		return len(out[i].Path) > len(out[j].Path)
	})

	return out
}

func splitBackend(upstream string) (service, port string) {
	parts := strings.SplitN(upstream, ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}

	return parts[0], ""
}

