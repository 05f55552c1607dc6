// Package volumes maps a pod spec's volumes and a container's volumeMounts
// into Compose volume mount strings, named-volume declarations, and the
// ConfigMap/Secret file content that the Output Assembler materialises to
// disk at phase 10.
package volumes

import (
	"path"
	"strings"

	"github.com/h2compose/h2compose/internal/compose"
	"github.com/h2compose/h2compose/internal/k8s"
	"github.com/h2compose/h2compose/internal/projectconfig"
)

// WarnFunc records a warning during resolution.
type WarnFunc func(format string, args ...interface{})

// File is one ConfigMap/Secret key materialised to a path under the
// output directory, to be written (after post-process placeholder
// substitution) at phase 10.
type File struct {
	RelPath string
	Content string
}

// Resolved is everything one container's volumeMounts contribute.
type Resolved struct {
	Mounts       []string
	NamedVolumes map[string]*compose.Volume
	Files        []File

	// HostPathPVCs lists the resolved host paths of every PVC mount backed
	// by a configured host_path override (not a named Docker volume). The
	// fixperm transform, if registered, uses this plus the container's
	// runAsUser to decide what to chown.
	HostPathPVCs []string
}

// Resolve walks container's volumeMounts against podSpec's volumes, falling
// back to vctNames (a StatefulSet's volumeClaimTemplates, see
// k8s.Manifest.VolumeClaimTemplateNames) as an implicit PVC source for any
// mount name with no matching pod-spec volumes entry.
func Resolve(podSpec map[string]interface{}, container map[string]interface{}, idx *k8s.Index, cfg *projectconfig.Config, vctNames []string, warn WarnFunc) Resolved {
	out := Resolved{NamedVolumes: map[string]*compose.Volume{}}

	podVolumes := indexPodVolumes(podSpec)
	templateNames := make(map[string]bool, len(vctNames))
	for _, n := range vctNames {
		templateNames[n] = true
	}

	mounts, _ := container["volumeMounts"].([]interface{})

	for _, raw := range mounts {
		mount, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}

		name, _ := mount["name"].(string)
		mountPath, _ := mount["mountPath"].(string)
		subPath, _ := mount["subPath"].(string)
		readOnly, _ := mount["readOnly"].(bool)

		vol, ok := podVolumes[name]
		if !ok {
			if templateNames[name] {
				resolvePVC(&out, map[string]interface{}{
					"persistentVolumeClaim": map[string]interface{}{"claimName": name},
				}, mountPath, readOnly, cfg)
				continue
			}

			warn("volumeMount %q references unknown volume", name)
			continue
		}

		switch {
		case vol["persistentVolumeClaim"] != nil:
			resolvePVC(&out, vol, mountPath, readOnly, cfg)

		case vol["configMap"] != nil:
			resolveConfigLike(&out, idx, "ConfigMap", "configmaps", vol["configMap"], mountPath, subPath, readOnly, warn)

		case vol["secret"] != nil:
			resolveConfigLike(&out, idx, "Secret", "secrets", vol["secret"], mountPath, subPath, readOnly, warn)

		case vol["emptyDir"] != nil:
			out.Mounts = append(out.Mounts, mountPath)

		case vol["hostPath"] != nil:
			hp, _ := vol["hostPath"].(map[string]interface{})
			hostPath, _ := hp["path"].(string)
			out.Mounts = append(out.Mounts, bindString(hostPath, mountPath, readOnly))

		default:
			warn("volume %q has no supported source, skipping", name)
		}
	}

	return out
}

func resolvePVC(out *Resolved, vol map[string]interface{}, mountPath string, readOnly bool, cfg *projectconfig.Config) {
	pvc, _ := vol["persistentVolumeClaim"].(map[string]interface{})
	claimName, _ := pvc["claimName"].(string)

	if override, ok := cfg.Volumes[claimName]; ok && override.HostPath != "" {
		resolved := resolveVolumeRoot(override.HostPath, cfg.VolumeRoot)
		out.Mounts = append(out.Mounts, bindString(resolved, mountPath, readOnly))
		out.HostPathPVCs = append(out.HostPathPVCs, resolved)

		return
	}

	driver := "local"
	if override, ok := cfg.Volumes[claimName]; ok && override.Driver != "" {
		driver = override.Driver
	}

	out.NamedVolumes[claimName] = &compose.Volume{Driver: driver}
	out.Mounts = append(out.Mounts, bindString(claimName, mountPath, readOnly))
}

func resolveConfigLike(out *Resolved, idx *k8s.Index, kind, rootDir string, src interface{}, mountPath, subPath string, readOnly bool, warn WarnFunc) {
	srcMap, _ := src.(map[string]interface{})
	name, _ := srcMap["name"].(string)

	m, ok := idx.Get(kind, name)
	if !ok {
		warn("missing %s %q referenced by volume", kind, name)
		return
	}

	data := m.NestedStringMap("data")

	items, hasItems := srcMap["items"].([]interface{})

	keyToAlias := map[string]string{}

	if hasItems {
		for _, raw := range items {
			item, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}

			key, _ := item["key"].(string)
			itemPath, _ := item["path"].(string)

			if itemPath == "" {
				itemPath = key
			}

			keyToAlias[key] = itemPath
		}
	} else {
		for key := range data {
			keyToAlias[key] = key
		}
	}

	if subPath != "" {
		content, ok := data[subPath]
		if !ok {
			warn("missing key %q in %s %q for subPath mount", subPath, kind, name)
			return
		}

		relPath := path.Join(rootDir, name, subPath)
		out.Files = append(out.Files, File{RelPath: relPath, Content: content})
		out.Mounts = append(out.Mounts, bindString("./"+relPath, mountPath, true))

		return
	}

	dataDir := path.Join(rootDir, name)

	for key, alias := range keyToAlias {
		content, ok := data[key]
		if !ok {
			continue
		}

		relPath := path.Join(dataDir, alias)
		out.Files = append(out.Files, File{RelPath: relPath, Content: content})
	}

	out.Mounts = append(out.Mounts, bindString("./"+dataDir, mountPath, true))
}

func bindString(source, target string, readOnly bool) string {
	s := source + ":" + target

	if readOnly {
		s += ":ro"
	}

	return s
}

// resolveVolumeRoot applies the volume declaration rule: an explicit path
// (starting with "./", "/", or "~") passes through unchanged; otherwise the
// name is treated as relative and resolved under volumeRoot.
func resolveVolumeRoot(name, volumeRoot string) string {
	if strings.HasPrefix(name, "./") || strings.HasPrefix(name, "/") || strings.HasPrefix(name, "~") {
		return name
	}

	return path.Join(volumeRoot, name)
}

func indexPodVolumes(podSpec map[string]interface{}) map[string]map[string]interface{} {
	out := map[string]map[string]interface{}{}

	raw, _ := podSpec["volumes"].([]interface{})

	for _, v := range raw {
		m, ok := v.(map[string]interface{})
		if !ok {
			continue
		}

		name, _ := m["name"].(string)
		if name != "" {
			out[name] = m
		}
	}

	return out
}
