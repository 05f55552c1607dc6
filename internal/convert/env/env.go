// Package env resolves a container's environment into an ordered list of
// "KEY=VALUE" compose entries from literal values, ConfigMap/Secret
// references, the one supported fieldRef, and kubelet-style $(VAR)
// expansion.
package env

import (
	"encoding/base64"
	"regexp"

	"github.com/h2compose/h2compose/internal/k8s"
)

// WarnFunc records a warning during resolution.
type WarnFunc func(format string, args ...interface{})

// entry is one resolved (or pending) environment variable in first-seen
// order.
type entry struct {
	key      string
	value    string
	resolved bool
}

// Resolve builds the ordered environment for one container. workloadName is
// the compose service name of the containing workload, used to resolve the
// one supported fieldRef (status.podIP).
func Resolve(container map[string]interface{}, idx *k8s.Index, workloadName string, warn WarnFunc) []string {
	var entries []entry
	seen := map[string]int{}

	put := func(key, value string, resolved bool) {
		if i, ok := seen[key]; ok {
			entries[i] = entry{key: key, value: value, resolved: resolved}
			return
		}

		seen[key] = len(entries)
		entries = append(entries, entry{key: key, value: value, resolved: resolved})
	}

	// envFrom: expand referenced ConfigMap/Secret into individual entries
	// before the per-entry resolution rules run.
	for _, raw := range sliceField(container, "envFrom") {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}

		prefix, _ := m["prefix"].(string)

		if ref, ok := m["configMapRef"].(map[string]interface{}); ok {
			name, _ := ref["name"].(string)
			data := lookupConfigMapData(idx, name)

			for k, v := range data {
				put(prefix+k, v, true)
			}
		}

		if ref, ok := m["secretRef"].(map[string]interface{}); ok {
			name, _ := ref["name"].(string)
			data := lookupSecretData(idx, name)

			for k, v := range data {
				put(prefix+k, v, true)
			}
		}
	}

	// env[]: literal / configMapKeyRef / secretKeyRef / fieldRef, in order.
	for _, raw := range sliceField(container, "env") {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}

		name, _ := m["name"].(string)
		if name == "" {
			continue
		}

		if v, ok := m["value"].(string); ok {
			put(name, v, false)
			continue
		}

		valueFrom, _ := m["valueFrom"].(map[string]interface{})
		if valueFrom == nil {
			put(name, "", true)
			continue
		}

		switch {
		case valueFrom["configMapKeyRef"] != nil:
			ref, _ := valueFrom["configMapKeyRef"].(map[string]interface{})
			refName, _ := ref["name"].(string)
			key, _ := ref["key"].(string)
			data := lookupConfigMapData(idx, refName)

			if v, ok := data[key]; ok {
				put(name, v, true)
			} else {
				warn("missing ConfigMap reference %s/%s for env %s", refName, key, name)
			}

		case valueFrom["secretKeyRef"] != nil:
			ref, _ := valueFrom["secretKeyRef"].(map[string]interface{})
			refName, _ := ref["name"].(string)
			key, _ := ref["key"].(string)
			data := lookupSecretData(idx, refName)

			if v, ok := data[key]; ok {
				put(name, v, true)
			} else {
				warn("missing Secret reference %s/%s for env %s", refName, key, name)
			}

		case valueFrom["fieldRef"] != nil:
			ref, _ := valueFrom["fieldRef"].(map[string]interface{})
			path, _ := ref["fieldPath"].(string)

			if path == "status.podIP" {
				put(name, workloadName, true)
			} else {
				warn("unsupported fieldRef %q for env %s", path, name)
			}

		default:
			warn("unresolvable valueFrom for env %s", name)
		}
	}

	// Kubelet $(VAR) expansion using previously-resolved entries of the
	// same container, in list order.
	resolvedSoFar := map[string]string{}

	for i := range entries {
		entries[i].value = expandKubeletVars(entries[i].value, resolvedSoFar)
		resolvedSoFar[entries[i].key] = entries[i].value
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.key+"="+escapeShellVars(e.value))
	}

	return out
}

var kubeletVarPattern = regexp.MustCompile(`\$\(([A-Za-z_][A-Za-z0-9_]*)\)`)

// ExpandKubeletVars replaces $(VAR) with already-resolved values; an
// unresolved reference is left literal. Exported so the Service Builder can
// apply the same expansion to command/args arrays, which follow the same
// rule but are not part of the env list.
func ExpandKubeletVars(value string, resolved map[string]string) string {
	return expandKubeletVars(value, resolved)
}

func expandKubeletVars(value string, resolved map[string]string) string {
	return kubeletVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := kubeletVarPattern.FindStringSubmatch(match)[1]
		if v, ok := resolved[name]; ok {
			return v
		}

		return match
	})
}

var shellVarPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*|\{[^}]*\})`)

// escapeShellVars doubles $ before variable-looking references so Compose's
// own interpolation does not re-expand them.
func escapeShellVars(value string) string {
	return shellVarPattern.ReplaceAllString(value, `$$$$${1}`)
}

func sliceField(m map[string]interface{}, key string) []interface{} {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}

	s, ok := v.([]interface{})
	if !ok {
		return nil
	}

	return s
}

func lookupConfigMapData(idx *k8s.Index, name string) map[string]string {
	m, ok := idx.Get("ConfigMap", name)
	if !ok {
		return nil
	}

	return m.NestedStringMap("data")
}

func lookupSecretData(idx *k8s.Index, name string) map[string]string {
	m, ok := idx.Get("Secret", name)
	if !ok {
		return nil
	}

	raw := m.NestedStringMap("data")
	out := make(map[string]string, len(raw))

	for k, v := range raw {
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			out[k] = v
			continue
		}

		out[k] = string(decoded)
	}

	return out
}
