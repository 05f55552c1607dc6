// Package convert is the Pipeline Driver: it orchestrates the phased
// conversion from a raw Manifest Index through Service/Ingress building,
// alias injection, extension transforms, post-processing, overrides and
// exclusion into a finished compose.Project and ingress entry set.
package convert

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/h2compose/h2compose/internal/compose"
	"github.com/h2compose/h2compose/internal/convert/extensions"
	"github.com/h2compose/h2compose/internal/convert/ingress"
	"github.com/h2compose/h2compose/internal/convert/pipectx"
	"github.com/h2compose/h2compose/internal/convert/service"
	"github.com/h2compose/h2compose/internal/convert/volumes"
	"github.com/h2compose/h2compose/internal/k8s"
	"github.com/h2compose/h2compose/internal/maputil"
	"github.com/h2compose/h2compose/internal/projectconfig"
)

// maxConvergenceCycles bounds the converter fan-out's re-evaluation of
// synthetic manifests, per the ConvergenceExhaustion error kind.
const maxConvergenceCycles = 3

// Result is everything the Pipeline Driver produces, ready for the Output
// Assembler to write to disk.
type Result struct {
	Project  *compose.Project
	Ingress  []pipectx.IngressEntry
	Config   *projectconfig.Config
	Files    []volumes.File
	Warnings []pipectx.Warning
}

// Run executes phases 1 through 9 over the given raw documents; phase 10
// (emit) is Assemble.
func Run(documents []*k8s.Manifest, cfg *projectconfig.Config, registry *extensions.Registry) (*Result, error) {
	idx := k8s.NewIndex()
	ctx := pipectx.NewContext(idx, cfg)

	// Phase 1: ingest & index.
	ingest(idx, ctx, documents, registry)

	// Phase 2: converter fan-out.
	providerServices := runConverters(idx, ctx, registry)

	// Phase 3: alias & port map construction.
	buildAliasAndPortMaps(ctx)

	// Phase 4: workload build.
	project := compose.NewProject()

	for name, svc := range providerServices {
		project.Services[name] = svc
	}

	var files []volumes.File

	for _, w := range idx.Workloads() {
		res := service.Build(ctx, w)

		for name, svc := range res.Services {
			project.Services[name] = svc
		}

		for name, vol := range res.NamedVolumes {
			project.Volumes[name] = vol
		}

		files = append(files, res.Files...)
	}

	// Phase 5: ingress build.
	var ingressEntries []pipectx.IngressEntry

	for _, ing := range idx.ByKind("Ingress") {
		entries := ingress.Build(ctx, ing, registry.IngressRewriters)
		ingressEntries = append(ingressEntries, entries...)
	}

	if !cfg.DisableIngress && len(ingressEntries) > 0 {
		synthesizeCaddyService(project, cfg)
	}

	// Phase 6: alias injection.
	injectAliases(ctx, project)

	// Phase 7: transforms.
	for _, t := range registry.SortedTransforms() {
		t.Transform(project.Services, ingressEntries, ctx)
	}

	// Phase 8: post-process.
	postProcess(ctx, project, ingressEntries, files)

	// Phase 9: overrides & merge.
	applyOverrides(ctx, project, cfg)
	applyExclusions(ctx, project, ingressEntries, cfg)

	return &Result{
		Project:  project,
		Ingress:  ingressEntries,
		Config:   cfg,
		Files:    files,
		Warnings: ctx.Warnings.All(),
	}, nil
}

// ingest classifies each raw document: silently-ignored kinds are dropped,
// known-unsupported kinds get one warning per kind, and unknown kinds are
// kept only if some converter claims them.
func ingest(idx *k8s.Index, ctx *pipectx.ConvertContext, documents []*k8s.Manifest, registry *extensions.Registry) {
	warnedUnsupported := map[string]bool{}
	warnedUnknown := map[string]bool{}

	for _, m := range documents {
		if m.Name == "" || m.GVK.Kind == "" {
			ctx.Warnings.Add("MalformedDocument", "dropping document with missing kind or metadata.name")
			continue
		}

		if k8s.IsSilentlyIgnored(m.GVK) {
			continue
		}

		if k8s.IsKnownUnsupported(m.GVK) {
			if !warnedUnsupported[m.GVK.Kind] {
				warnedUnsupported[m.GVK.Kind] = true
				ctx.Warnings.Add("UnsupportedKind", "kind %q is recognised but not converted", m.GVK.Kind)
			}

			continue
		}

		if isRecognized(m.GVK) {
			idx.Add(m)
			continue
		}

		if registry != nil && len(registry.SortedConverters(m.GVK.Kind)) > 0 {
			idx.Add(m)
			continue
		}

		if !warnedUnknown[m.GVK.Kind] {
			warnedUnknown[m.GVK.Kind] = true
			ctx.Warnings.Add("UnknownKind", "kind %q is not recognised and claimed by no extension", m.GVK.Kind)
		}
	}
}

func isRecognized(gvk schema.GroupVersionKind) bool {
	return k8s.IsWorkload(gvk) || k8s.IsService(gvk) || k8s.IsConfig(gvk) || k8s.IsStorage(gvk) || k8s.IsNetworking(gvk)
}

// runConverters invokes claiming converters for each manifest whose kind is
// claimed, re-evaluating synthetic manifests for up to maxConvergenceCycles.
// Services from any ProviderResult are collected and returned for the
// workload-build phase to merge in alongside Service-Builder output.
func runConverters(idx *k8s.Index, ctx *pipectx.ConvertContext, registry *extensions.Registry) map[string]*compose.Service {
	providerServices := map[string]*compose.Service{}

	if registry == nil {
		return providerServices
	}

	pending := idx.All()

	for cycle := 0; cycle < maxConvergenceCycles; cycle++ {
		var synthetic []*k8s.Manifest

		for _, m := range pending {
			for _, conv := range registry.SortedConverters(m.GVK.Kind) {
				result := conv.Convert(m, ctx)
				if result == nil {
					continue
				}

				if provider, ok := pipectx.AsProvider(result); ok {
					for name, svc := range provider.GetServices() {
						providerServices[name] = svc
					}
				}

				synthetic = append(synthetic, extractConverterResult(result).Synthetic...)
			}
		}

		if len(synthetic) == 0 {
			return providerServices
		}

		for _, m := range synthetic {
			m.Synthetic = true
			idx.Add(m)
		}

		pending = synthetic
	}

	ctx.Warnings.Add("ConvergenceExhaustion", "converter fan-out exceeded %d cycles, proceeding with current state", maxConvergenceCycles)

	return providerServices
}

func extractConverterResult(result interface{}) pipectx.ConverterResult {
	switch r := result.(type) {
	case *pipectx.ConverterResult:
		return *r
	case *pipectx.ProviderResult:
		return r.ConverterResult
	default:
		return pipectx.ConverterResult{}
	}
}

// buildAliasAndPortMaps walks Service manifests, matching each against
// workload pod labels to build the alias map, and indexes each Service's
// ports by name and number.
func buildAliasAndPortMaps(ctx *pipectx.ConvertContext) {
	workloads := ctx.Index.Workloads()

	for _, svc := range ctx.Index.ByKind("Service") {
		if svc.NestedString("spec", "type") == "ExternalName" {
			continue
		}

		selector := svc.NestedStringMap("spec", "selector")

		workloadName := matchWorkload(workloads, selector)
		if workloadName != "" {
			if existing, ok := ctx.Aliases[svc.Name]; !ok || existing > workloadName {
				ctx.Aliases[svc.Name] = workloadName
			}
		}

		for _, raw := range svc.NestedSlice("spec", "ports") {
			portSpec, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}

			containerPort := resolveTargetPort(portSpec)
			if containerPort == 0 {
				continue
			}

			if name, ok := portSpec["name"].(string); ok && name != "" {
				ctx.ServicePorts[pipectx.ServicePortKey{Service: svc.Name, Port: name}] = containerPort
			}

			if port, ok := portSpec["port"]; ok {
				ctx.ServicePorts[pipectx.ServicePortKey{Service: svc.Name, Port: fmt.Sprintf("%d", toInt64(port))}] = containerPort
			}
		}
	}
}

// matchWorkload finds the workload whose pod template labels are a superset
// of selector, tie-breaking lexicographically on workload name per the
// documented multiple-Services-one-workload ambiguity.
func matchWorkload(workloads []*k8s.Manifest, selector map[string]string) string {
	if len(selector) == 0 {
		return ""
	}

	var candidates []string

	for _, w := range workloads {
		labels := w.NestedStringMap("spec", "template", "metadata", "labels")

		matches := true

		for k, v := range selector {
			if labels[k] != v {
				matches = false
				break
			}
		}

		if matches {
			candidates = append(candidates, w.Name)
		}
	}

	if len(candidates) == 0 {
		return ""
	}

	sort.Strings(candidates)

	return candidates[0]
}

func resolveTargetPort(portSpec map[string]interface{}) int32 {
	if tp, ok := portSpec["targetPort"]; ok {
		switch v := tp.(type) {
		case string:
			return 0 // named targetPort without container introspection: left unresolved.
		default:
			return int32(toInt64(v))
		}
	}

	if port, ok := portSpec["port"]; ok {
		return int32(toInt64(port))
	}

	return 0
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}

	return 0
}

// synthesizeCaddyService adds the Caddy ingress container, reading the
// rendered Caddyfile from the output directory (written at phase 10).
func synthesizeCaddyService(project *compose.Project, cfg *projectconfig.Config) {
	image := "caddy:2"

	svc := &compose.Service{
		Image: image,
		Ports: []string{"80:80", "443:443"},
		Volumes: []string{
			caddyfileMountSource(cfg) + ":/etc/caddy/Caddyfile",
		},
	}

	if cfg.Extensions.Caddy.TLSInternal {
		svc.Environment = append(svc.Environment, "CADDY_TLS_INTERNAL=1")
	}

	project.Services["caddy"] = svc
}

func caddyfileMountSource(cfg *projectconfig.Config) string {
	if cfg.DisableIngress {
		return "./Caddyfile-" + cfg.Name
	}

	return "./Caddyfile"
}

// injectAliases attaches networks.default.aliases to every service whose
// name is a workload targeted by one or more Service aliases: the workload
// name itself, plus the Kubernetes-DNS-style variants for every aliasing
// Service.
func injectAliases(ctx *pipectx.ConvertContext, project *compose.Project) {
	byWorkload := map[string][]string{}

	for svcName, workload := range ctx.Aliases {
		byWorkload[workload] = append(byWorkload[workload], svcName)
	}

	for workload, svcNames := range byWorkload {
		svc, ok := project.Services[workload]
		if !ok {
			continue
		}

		aliasSet := map[string]bool{workload: true}

		for _, svcName := range svcNames {
			manifest, ok := ctx.Index.Get("Service", svcName)
			ns := "default"

			if ok && manifest.Namespace != "" {
				ns = manifest.Namespace
			}

			aliasSet[svcName] = true
			aliasSet[svcName+"."+ns] = true
			aliasSet[svcName+"."+ns+".svc"] = true
			aliasSet[svcName+"."+ns+".svc.cluster.local"] = true
		}

		aliases := make([]string, 0, len(aliasSet))
		for a := range aliasSet {
			aliases = append(aliases, a)
		}

		sort.Strings(aliases)

		if svc.Networks == nil {
			svc.Networks = map[string]*compose.Network{}
		}

		svc.Networks["default"] = &compose.Network{Aliases: aliases}
	}
}

// postProcess applies placeholder substitution ($secret:<name>:<key>,
// $volume_root) and literal replacements across env values, command arrays,
// Caddyfile upstreams and materialised file content.
func postProcess(ctx *pipectx.ConvertContext, project *compose.Project, entries []pipectx.IngressEntry, files []volumes.File) {
	resolve := func(s string) string {
		return resolvePlaceholders(ctx, s)
	}

	for _, svc := range project.Services {
		for i, e := range svc.Environment {
			svc.Environment[i] = applyReplacements(resolve(e), ctx.Config.Replacements)
		}

		for i, c := range svc.Command {
			svc.Command[i] = applyReplacements(resolve(c), ctx.Config.Replacements)
		}

		for i, c := range svc.Entrypoint {
			svc.Entrypoint[i] = applyReplacements(resolve(c), ctx.Config.Replacements)
		}
	}

	for i := range entries {
		for j := range entries[i].Routes {
			entries[i].Routes[j].Upstream = applyReplacements(resolve(entries[i].Routes[j].Upstream), ctx.Config.Replacements)
		}
	}

	for i := range files {
		files[i].Content = applyReplacements(resolve(files[i].Content), ctx.Config.Replacements)
	}
}

func applyReplacements(s string, replacements []projectconfig.Replacement) string {
	for _, r := range replacements {
		if r.Old == "" {
			continue
		}

		s = strings.ReplaceAll(s, r.Old, r.New)
	}

	return s
}

// secretPlaceholderPattern matches $secret:<name>:<key>; volumeRootPlaceholder
// matches the bare $volume_root token. Both resolved at post-process, after
// transforms, per the design note on placeholder resolution order.
var secretPlaceholderPattern = regexp.MustCompile(`\$secret:([^:\s$]+):([^:\s$]+)`)

const volumeRootPlaceholder = "$volume_root"

func resolvePlaceholders(ctx *pipectx.ConvertContext, s string) string {
	s = strings.ReplaceAll(s, volumeRootPlaceholder, ctx.VolumeRoot)

	return secretPlaceholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := secretPlaceholderPattern.FindStringSubmatch(match)
		name, key := groups[1], groups[2]

		secret, ok := ctx.Index.Get("Secret", name)
		if !ok {
			ctx.Warnings.Add("MissingReference", "unresolved placeholder %q: no such Secret", match)
			return match
		}

		raw := secret.NestedStringMap("data")

		encoded, ok := raw[key]
		if !ok {
			ctx.Warnings.Add("MissingReference", "unresolved placeholder %q: Secret %q has no key %q", match, name, key)
			return match
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return encoded
		}

		return string(decoded)
	})
}

// applyOverrides deep-merges project-config overrides into compose
// services by name (a null leaf deletes the key, at any depth) and then
// adds each project-config services entry under its name, decoded into a
// compose.Service (keys outside that struct's fields are dropped; an entry
// replaces a built service of the same name). Override values are resolved
// for $secret/$volume_root placeholders before merging, the same order the
// precursor's _apply_overrides/_deep_merge pair runs in.
func applyOverrides(ctx *pipectx.ConvertContext, project *compose.Project, cfg *projectconfig.Config) {
	for name, override := range cfg.Overrides {
		svc, ok := project.Services[name]
		if !ok {
			continue
		}

		overrideMap, ok := override.(map[string]interface{})
		if !ok {
			continue
		}

		resolved := resolvePlaceholdersDeep(ctx, maputil.DeepCopyMap(overrideMap))

		applyServiceOverride(svc, resolved.(map[string]interface{}))
	}

	for name, raw := range cfg.Services {
		fragment, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}

		custom := &compose.Service{}
		applyServiceOverride(custom, maputil.DeepCopyMap(fragment))
		project.Services[name] = custom
	}
}

// resolvePlaceholdersDeep recursively resolves $secret/$volume_root
// placeholders in every string leaf of a decoded override value.
func resolvePlaceholdersDeep(ctx *pipectx.ConvertContext, v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return resolvePlaceholders(ctx, val)
	case map[string]interface{}:
		for k, item := range val {
			val[k] = resolvePlaceholdersDeep(ctx, item)
		}

		return val
	case []interface{}:
		for i, item := range val {
			val[i] = resolvePlaceholdersDeep(ctx, item)
		}

		return val
	default:
		return v
	}
}

// applyServiceOverride deep-merges an arbitrary override document into svc
// by round-tripping svc through its YAML map representation: this covers
// every field the Compose schema subset carries (ports, volumes, hostname,
// networks, labels, depends_on, ...), not a fixed key list, and a null leaf
// at any depth deletes that key rather than merging into it.
func applyServiceOverride(svc *compose.Service, override map[string]interface{}) {
	data, err := yaml.Marshal(svc)
	if err != nil {
		return
	}

	var base map[string]interface{}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return
	}

	if base == nil {
		base = map[string]interface{}{}
	}

	maputil.DeepMerge(base, override)

	merged, err := yaml.Marshal(base)
	if err != nil {
		return
	}

	var out compose.Service
	if err := yaml.Unmarshal(merged, &out); err != nil {
		return
	}

	*svc = out
}

// applyExclusions drops services matching cfg.Exclude fnmatch patterns,
// along with their init/sidecar services and any ingress route pointing at
// them.
func applyExclusions(ctx *pipectx.ConvertContext, project *compose.Project, entries []pipectx.IngressEntry, cfg *projectconfig.Config) {
	if len(cfg.Exclude) == 0 {
		return
	}

	var globs []glob.Glob

	for _, pattern := range cfg.Exclude {
		g, err := glob.Compile(pattern)
		if err != nil {
			ctx.Warnings.Add("MalformedDocument", "invalid exclude pattern %q: %v", pattern, err)
			continue
		}

		globs = append(globs, g)
	}

	excluded := map[string]bool{}

	for name := range project.Services {
		for _, g := range globs {
			if g.Match(name) {
				excluded[name] = true
				break
			}
		}
	}

	var dependents []string

	for name, svc := range project.Services {
		for parent := range excluded {
			if svc.NetworkMode == "container:"+parent || strings.HasPrefix(name, parent+"-init-") {
				dependents = append(dependents, name)
				break
			}
		}
	}

	for _, name := range dependents {
		excluded[name] = true
	}

	for name := range excluded {
		project.DeleteService(name)
	}

	for i := range entries {
		var kept []pipectx.Route

		for _, route := range entries[i].Routes {
			upstreamService := route.Upstream
			if idx := strings.IndexByte(upstreamService, ':'); idx >= 0 {
				upstreamService = upstreamService[:idx]
			}

			if excluded[upstreamService] {
				ctx.Warnings.Add("MissingReference", "dropping route %s -> %s: backend excluded", route.Path, route.Upstream)
				continue
			}

			kept = append(kept, route)
		}

		entries[i].Routes = kept
	}
}
