// Package service turns a workload manifest (Deployment, StatefulSet,
// DaemonSet, Job) into its compose service entries: one for the main
// container, one per init container, one per sidecar.
package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/h2compose/h2compose/internal/compose"
	"github.com/h2compose/h2compose/internal/convert/env"
	"github.com/h2compose/h2compose/internal/convert/pipectx"
	"github.com/h2compose/h2compose/internal/convert/volumes"
	"github.com/h2compose/h2compose/internal/k8s"
)

// Result is everything Build produces for one workload.
type Result struct {
	Services     map[string]*compose.Service
	NamedVolumes map[string]*compose.Volume
	Files        []volumes.File
}

// Build runs the Service Builder over one workload manifest.
func Build(ctx *pipectx.ConvertContext, m *k8s.Manifest) Result {
	result := Result{
		Services:     map[string]*compose.Service{},
		NamedVolumes: map[string]*compose.Volume{},
	}

	podSpec := m.NestedMap("spec", "template", "spec")
	containers := listOfMaps(podSpec["containers"])

	if len(containers) == 0 {
		ctx.Warnings.Add("MalformedDocument", "workload %s has no containers, skipping", m.QualifiedName())
		return result
	}

	isJob := m.GVK.Kind == "Job"
	warn := func(format string, args ...interface{}) { ctx.Warnings.Add("MissingReference", format, args...) }

	vctNames := m.VolumeClaimTemplateNames()

	main := buildContainerService(ctx, podSpec, containers[0], m.Name, m.Name, isJob, vctNames, &result, warn)
	main.Ports = resolvePublishedPorts(ctx, m.Name)
	result.Services[m.Name] = main

	for _, initContainer := range listOfMaps(podSpec["initContainers"]) {
		name, _ := initContainer["name"].(string)
		svcName := fmt.Sprintf("%s-init-%s", m.Name, name)
		svc := buildContainerService(ctx, podSpec, initContainer, svcName, m.Name, true, vctNames, &result, warn)
		result.Services[svcName] = svc
	}

	for _, sidecar := range containers[1:] {
		name, _ := sidecar["name"].(string)
		svcName := fmt.Sprintf("%s-%s", m.Name, name)
		svc := buildContainerService(ctx, podSpec, sidecar, svcName, m.Name, isJob, vctNames, &result, warn)
		svc.NetworkMode = "container:" + m.Name
		svc.Networks = nil
		result.Services[svcName] = svc
	}

	return result
}

func buildContainerService(ctx *pipectx.ConvertContext, podSpec, container map[string]interface{}, svcName, workloadName string, restartOnFailure bool, vctNames []string, result *Result, warn env.WarnFunc) *compose.Service {
	svc := &compose.Service{}

	svc.Image, _ = container["image"].(string)

	if svc.Image != "" {
		if err := k8s.ValidateImageRef(svc.Image); err != nil {
			warn("service %s has a malformed image reference %q: %v", svcName, svc.Image, err)
		}
	}

	resolvedEnv := env.Resolve(container, ctx.Index, workloadName, warn)
	svc.Environment = resolvedEnv

	resolvedMap := envListToMap(resolvedEnv)

	if cmd := stringList(container["command"]); len(cmd) > 0 {
		svc.Entrypoint = expandAll(cmd, resolvedMap)
	}

	if args := stringList(container["args"]); len(args) > 0 {
		svc.Command = expandAll(args, resolvedMap)
	}

	if restartOnFailure {
		svc.Restart = "on-failure"
	}

	vr := volumes.Resolve(podSpec, container, ctx.Index, ctx.Config, vctNames, func(format string, args ...interface{}) {
		ctx.Warnings.Add("MissingReference", format, args...)
	})
	svc.Volumes = vr.Mounts

	for name, v := range vr.NamedVolumes {
		result.NamedVolumes[name] = v
	}

	result.Files = append(result.Files, vr.Files...)

	if len(vr.HostPathPVCs) > 0 {
		if uid, ok := resolveRunAsUser(podSpec, container); ok && uid > 0 {
			for _, hostPath := range vr.HostPathPVCs {
				ctx.FixPermTargets = append(ctx.FixPermTargets, pipectx.FixPermTarget{
					Workload: workloadName,
					UID:      uid,
					HostPath: hostPath,
				})
			}
		}
	}

	if len(svcName) > 63 {
		svc.Hostname = TruncateHostname(svcName)
	}

	return svc
}

// TruncateHostname implements the 63-character hostname rule: right-trim to
// 63 characters, then keep trimming while the last character is '-' so the
// result always ends on an alphanumeric.
func TruncateHostname(name string) string {
	if len(name) <= 63 {
		return name
	}

	truncated := name[:63]

	for len(truncated) > 0 && truncated[len(truncated)-1] == '-' {
		truncated = truncated[:len(truncated)-1]
	}

	return truncated
}

// resolvePublishedPorts returns the host-published ports: entries for ports
// belonging to a Service of type NodePort or LoadBalancer that selects
// workloadName. ClusterIP-only ports never publish.
func resolvePublishedPorts(ctx *pipectx.ConvertContext, workloadName string) []string {
	var ports []string

	for svcName, target := range ctx.Aliases {
		if target != workloadName {
			continue
		}

		svcManifest, ok := ctx.Index.Get("Service", svcName)
		if !ok {
			continue
		}

		svcType := svcManifest.NestedString("spec", "type")
		if svcType != "NodePort" && svcType != "LoadBalancer" {
			continue
		}

		for _, raw := range svcManifest.NestedSlice("spec", "ports") {
			portSpec, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}

			containerPort := resolveContainerPort(ctx, svcName, portSpec)
			if containerPort == 0 {
				continue
			}

			hostPort := containerPort
			if np, ok := portSpec["nodePort"]; ok {
				hostPort = toInt32(np)
			} else if p, ok := portSpec["port"]; ok {
				hostPort = toInt32(p)
			}

			ports = append(ports, fmt.Sprintf("%d:%d", hostPort, containerPort))
		}
	}

	return ports
}

func resolveContainerPort(ctx *pipectx.ConvertContext, svcName string, portSpec map[string]interface{}) int32 {
	keys := []string{}

	if name, ok := portSpec["name"].(string); ok && name != "" {
		keys = append(keys, name)
	}

	if port, ok := portSpec["port"]; ok {
		keys = append(keys, strconv.Itoa(int(toInt32(port))))
	}

	for _, key := range keys {
		if v, ok := ctx.ServicePorts[pipectx.ServicePortKey{Service: svcName, Port: key}]; ok {
			return v
		}
	}

	return 0
}

func listOfMaps(v interface{}) []map[string]interface{} {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}

	out := make([]map[string]interface{}, 0, len(raw))

	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}

	return out
}

func stringList(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}

	out := make([]string, 0, len(raw))

	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}

	return out
}

func envListToMap(entries []string) map[string]string {
	out := make(map[string]string, len(entries))

	for _, entry := range entries {
		if idx := strings.Index(entry, "="); idx >= 0 {
			out[entry[:idx]] = entry[idx+1:]
		}
	}

	return out
}

func expandAll(values []string, resolved map[string]string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = env.ExpandKubeletVars(v, resolved)
	}

	return out
}

// resolveRunAsUser returns the effective securityContext.runAsUser for a
// container: the container-level value if set, else the pod-level value.
func resolveRunAsUser(podSpec, container map[string]interface{}) (int, bool) {
	if sc, ok := container["securityContext"].(map[string]interface{}); ok {
		if uid, ok := sc["runAsUser"]; ok {
			return int(toInt32(uid)), true
		}
	}

	if sc, ok := podSpec["securityContext"].(map[string]interface{}); ok {
		if uid, ok := sc["runAsUser"]; ok {
			return int(toInt32(uid)), true
		}
	}

	return 0, false
}

func toInt32(v interface{}) int32 {
	switch n := v.(type) {
	case int64:
		return int32(n)
	case int32:
		return n
	case int:
		return int32(n)
	case float64:
		return int32(n)
	}

	return 0
}
