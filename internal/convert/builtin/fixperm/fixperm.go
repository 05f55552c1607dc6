// Package fixperm is the one built-in extension the core ships by default:
// a transform that, for every host-path-backed PVC mount feeding a
// non-root container, injects a one-shot service chowning that path to the
// container's UID. The workload's own service gets no depends_on entry for
// it, so Compose does not order the chown before the main service starts.
// The Volume Resolver and
// Service Builder record candidate targets on the ConvertContext as they
// walk each workload (see pipectx.FixPermTarget); this transform is where
// those targets become services, and only when it is registered — the
// core itself stays silent about fix-permissions.
package fixperm

import (
	"fmt"
	"sort"

	"github.com/h2compose/h2compose/internal/compose"
	"github.com/h2compose/h2compose/internal/convert/pipectx"
)

const defaultImage = "alpine:3.20"

// Transform is the fixperm extension.
type Transform struct {
	Image string
}

// New constructs the default fixperm transform, matching the Extension
// Registry's func() interface{} loading convention.
func New() interface{} {
	return &Transform{Image: defaultImage}
}

// TransformName identifies this extension in warnings and diagnostics.
func (t *Transform) TransformName() string { return "fixperm" }

// Priority lets fixperm run after ordinary transforms reshape volumes but
// before post-process, by registering at a slightly elevated priority.
func (t *Transform) Priority() int { return 150 }

type groupKey struct {
	workload string
	uid      int
}

// Transform groups the targets recorded during service building by
// (workload, UID) and emits one "{workload}-fix-perms-{uid}" service per
// group, so multiple host-path mounts sharing a UID reuse a single chown
// service instead of one per mount.
func (t *Transform) Transform(services map[string]*compose.Service, _ []pipectx.IngressEntry, ctx *pipectx.ConvertContext) {
	image := t.Image
	if image == "" {
		image = defaultImage
	}

	grouped, keys := groupTargets(ctx.FixPermTargets)

	for _, key := range keys {
		name := fmt.Sprintf("%s-fix-perms-%d", key.workload, key.uid)
		if _, exists := services[name]; exists {
			continue
		}

		hostPaths := grouped[key]

		owner := fmt.Sprintf("%d:%d", key.uid, key.uid)
		command := []string{"chown", "-R", owner}

		var mounts []string

		for i, hostPath := range hostPaths {
			mountPath := fmt.Sprintf("/fixperm/%d", i)
			mounts = append(mounts, hostPath+":"+mountPath)
			command = append(command, mountPath)
		}

		services[name] = &compose.Service{
			Image:   image,
			Command: command,
			Volumes: mounts,
			Restart: "no",
		}

		ctx.Warnings.Add("ConfigMigrationNotice", "added %s to fix ownership of %d volume(s) for uid %d", name, len(hostPaths), key.uid)
	}
}

// groupTargets deduplicates host paths within each (workload, UID) group
// and returns the groups alongside their keys in deterministic order.
func groupTargets(targets []pipectx.FixPermTarget) (map[groupKey][]string, []groupKey) {
	grouped := map[groupKey][]string{}
	seen := map[groupKey]map[string]bool{}

	for _, target := range targets {
		key := groupKey{workload: target.Workload, uid: target.UID}

		if seen[key] == nil {
			seen[key] = map[string]bool{}
		}

		if seen[key][target.HostPath] {
			continue
		}

		seen[key][target.HostPath] = true
		grouped[key] = append(grouped[key], target.HostPath)
	}

	keys := make([]groupKey, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].workload != keys[j].workload {
			return keys[i].workload < keys[j].workload
		}

		return keys[i].uid < keys[j].uid
	})

	for _, key := range keys {
		sort.Strings(grouped[key])
	}

	return grouped, keys
}
