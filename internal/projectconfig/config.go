// Package projectconfig loads and persists the project configuration file:
// a human-editable YAML document, version-stamped, that survives re-runs.
// Loading walks a fixed migration table before decoding so that legacy key
// names disappear the next time the file is saved.
package projectconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is stamped into newly created project configs.
const CurrentVersion = 1

// CaddyExtension holds the built-in Caddy extension's settings, persisted
// under the "extensions.caddy" key.
type CaddyExtension struct {
	Email       string `yaml:"email,omitempty"`
	TLSInternal bool   `yaml:"tls_internal,omitempty"`
}

// Extensions is the top-level "extensions" map. Only "caddy" has a
// first-class built-in meaning; Save only ever touches the "caddy" subkey of
// the underlying document node, so any sibling key a third-party extension
// persists there round-trips untouched.
type Extensions struct {
	Caddy CaddyExtension `yaml:"caddy,omitempty"`
}

// VolumeOverride lets a user pin a named volume to a driver or host path
// instead of the pipeline's default `driver: local` under volume_root.
type VolumeOverride struct {
	Driver   string `yaml:"driver,omitempty"`
	HostPath string `yaml:"host_path,omitempty"`
}

// Replacement is one literal-match string substitution applied during
// post-processing.
type Replacement struct {
	Old string `yaml:"old"`
	New string `yaml:"new"`
}

// Config is the persisted project configuration.
type Config struct {
	Version   int    `yaml:"version"`
	Name      string `yaml:"name"`
	VolumeRoot string `yaml:"volume_root,omitempty"`

	Extensions Extensions `yaml:"extensions,omitempty"`

	Volumes map[string]VolumeOverride `yaml:"volumes,omitempty"`

	Exclude []string `yaml:"exclude,omitempty"`

	Replacements []Replacement `yaml:"replacements,omitempty"`

	// Overrides is deep-merged into compose services at phase 9; a null
	// leaf deletes the corresponding key.
	Overrides map[string]interface{} `yaml:"overrides,omitempty"`

	// Services is a mapping of custom service name to a raw compose
	// service fragment, added to the project at phase 9 after decoding into
	// a compose service.
	Services map[string]interface{} `yaml:"services,omitempty"`

	// IngressTypes maps an ingressClassName substring or exact match to the
	// canonical name of a registered ingress rewriter.
	IngressTypes map[string]string `yaml:"ingress_types,omitempty"`

	// DisableIngress is manual-only: the pipeline never sets it, only a
	// user editing the file does.
	DisableIngress bool `yaml:"disable_ingress,omitempty"`

	// Network names an external network to join instead of the implicit
	// default network.
	Network string `yaml:"network,omitempty"`

	// node is the document's mapping node as loaded (post-migration), kept
	// so Save can write back through it instead of a fresh struct marshal —
	// this is what lets unrecognized keys the user added by hand survive a
	// load/save cycle. nil for a Default() config with nothing to preserve.
	node *yaml.Node
}

// Default returns a new Config for a project named name with defaults
// applied.
func Default(name string) *Config {
	return &Config{
		Version:    CurrentVersion,
		Name:       name,
		VolumeRoot: "./data",
	}
}

// legacyKeyRenames is the migration table: old top-level or dotted key to
// new dotted key. Applied to the raw document tree before decoding so a
// config written in a previous schema is understood transparently. The old
// names disappear the next time the file is saved, since migration removes
// them from the retained document tree that Save writes back through.
var legacyKeyRenames = map[string]string{
	"disableCaddy":       "disable_ingress",
	"ingressTypes":       "ingress_types",
	"caddy_email":        "extensions.caddy.email",
	"caddy_tls_internal": "extensions.caddy.tls_internal",
}

// legacyKeysDropped are removed outright during migration with no new home.
var legacyKeysDropped = []string{"helmfile2ComposeVersion"}

// Load reads and migrates the project config at path. A missing file is not
// an error: Load returns a fresh Default(name) config in that case so the
// first run of a project can proceed. A malformed file is a fatal error
// (InputUnreadable-adjacent per the error-handling design: a corrupt
// project-config is one of the two fatal conditions).
func Load(path, defaultName string) (cfg *Config, migrated bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(defaultName), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading project config %q: %w", path, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, false, fmt.Errorf("parsing project config %q: %w", path, err)
	}

	if len(root.Content) == 0 {
		return Default(defaultName), false, nil
	}

	doc := root.Content[0]

	migrated = migrateNode(doc)

	for _, key := range legacyKeysDropped {
		migrated = deleteMappingKey(doc, key) || migrated
	}

	var decoded Config
	if err := doc.Decode(&decoded); err != nil {
		return nil, false, fmt.Errorf("decoding project config %q: %w", path, err)
	}

	decoded.node = doc

	if decoded.Version == 0 {
		decoded.Version = CurrentVersion
	}

	if decoded.Name == "" {
		decoded.Name = defaultName
	}

	if decoded.VolumeRoot == "" {
		decoded.VolumeRoot = "./data"
	}

	return &decoded, migrated, nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
//
// It writes back through cfg.node (the document tree Load retained) rather
// than marshaling the typed struct directly, touching only the key paths
// Config knows about. Any sibling content a human or a third-party
// extension added to the file — stray keys, comments — round-trips
// untouched, since this never replaces the document wholesale.
func Save(path string, cfg *Config) error {
	doc := cfg.node
	if doc == nil {
		doc = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}

	setNodeField(doc, "version", cfg.Version)
	setNodeField(doc, "name", cfg.Name)
	setOrDeleteNodeField(doc, "volume_root", cfg.VolumeRoot, cfg.VolumeRoot == "")
	setOrDeleteNodeField(doc, "volumes", cfg.Volumes, len(cfg.Volumes) == 0)
	setOrDeleteNodeField(doc, "exclude", cfg.Exclude, len(cfg.Exclude) == 0)
	setOrDeleteNodeField(doc, "replacements", cfg.Replacements, len(cfg.Replacements) == 0)
	setOrDeleteNodeField(doc, "overrides", cfg.Overrides, len(cfg.Overrides) == 0)
	setOrDeleteNodeField(doc, "services", cfg.Services, len(cfg.Services) == 0)
	setOrDeleteNodeField(doc, "ingress_types", cfg.IngressTypes, len(cfg.IngressTypes) == 0)
	setOrDeleteNodeField(doc, "disable_ingress", cfg.DisableIngress, !cfg.DisableIngress)
	setOrDeleteNodeField(doc, "network", cfg.Network, cfg.Network == "")
	setExtensionsField(doc, cfg.Extensions)

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling project config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing project config %q: %w", path, err)
	}

	cfg.node = doc

	return nil
}

// setNodeField sets key to value within a mapping node, overwriting an
// existing key/value pair in place or appending a new one.
func setNodeField(doc *yaml.Node, key string, value interface{}) {
	valNode := &yaml.Node{}
	if err := valNode.Encode(value); err != nil {
		return
	}

	if idx := findMappingKey(doc, key); idx >= 0 {
		doc.Content[idx+1] = valNode
		return
	}

	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: key}
	doc.Content = append(doc.Content, keyNode, valNode)
}

// setOrDeleteNodeField removes key from doc when isEmpty, mirroring the
// `omitempty` tags on Config's typed fields; otherwise it sets key to value.
func setOrDeleteNodeField(doc *yaml.Node, key string, value interface{}, isEmpty bool) {
	if isEmpty {
		deleteMappingKey(doc, key)
		return
	}

	setNodeField(doc, key, value)
}

// getOrCreateMappingChild returns the mapping node at key under doc,
// creating an empty one if absent.
func getOrCreateMappingChild(doc *yaml.Node, key string) *yaml.Node {
	if idx := findMappingKey(doc, key); idx >= 0 {
		return doc.Content[idx+1]
	}

	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: key}
	childNode := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	doc.Content = append(doc.Content, keyNode, childNode)

	return childNode
}

// setExtensionsField touches only the "caddy" subkey of the "extensions"
// mapping, so any other extension's sibling key under "extensions" survives
// untouched. It deletes "extensions" entirely once "caddy" is its last
// remaining content and ext is itself empty.
func setExtensionsField(doc *yaml.Node, ext Extensions) {
	empty := ext.Caddy.Email == "" && !ext.Caddy.TLSInternal

	if empty {
		if idx := findMappingKey(doc, "extensions"); idx >= 0 {
			extNode := doc.Content[idx+1]
			deleteMappingKey(extNode, "caddy")

			if len(extNode.Content) == 0 {
				deleteMappingKey(doc, "extensions")
			}
		}

		return
	}

	extNode := getOrCreateMappingChild(doc, "extensions")
	setNodeField(extNode, "caddy", ext.Caddy)
}

// migrateNode renames legacy keys in a mapping-shaped document node,
// relocating dotted destinations (e.g. "extensions.caddy.email") into
// nested mappings. Reports whether anything changed.
func migrateNode(doc *yaml.Node) bool {
	if doc.Kind != yaml.MappingNode {
		return false
	}

	changed := false

	for old, newPath := range legacyKeyRenames {
		idx := findMappingKey(doc, old)
		if idx < 0 {
			continue
		}

		valueNode := doc.Content[idx+1]

		// Remove the old key/value pair.
		doc.Content = append(doc.Content[:idx], doc.Content[idx+2:]...)

		setDottedPath(doc, splitDotted(newPath), valueNode)

		changed = true
	}

	return changed
}

func findMappingKey(mapping *yaml.Node, key string) int {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return i
		}
	}

	return -1
}

func deleteMappingKey(mapping *yaml.Node, key string) bool {
	if mapping.Kind != yaml.MappingNode {
		return false
	}

	idx := findMappingKey(mapping, key)
	if idx < 0 {
		return false
	}

	mapping.Content = append(mapping.Content[:idx], mapping.Content[idx+2:]...)

	return true
}

func splitDotted(path string) []string {
	var parts []string

	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}

	parts = append(parts, path[start:])

	return parts
}

// setDottedPath walks (creating as needed) nested mapping nodes under root
// following segments, and sets the final segment to value.
func setDottedPath(root *yaml.Node, segments []string, value *yaml.Node) {
	current := root

	for _, seg := range segments[:len(segments)-1] {
		idx := findMappingKey(current, seg)

		if idx < 0 {
			keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: seg}
			childNode := &yaml.Node{Kind: yaml.MappingNode}
			current.Content = append(current.Content, keyNode, childNode)
			current = childNode

			continue
		}

		current = current.Content[idx+1]
	}

	last := segments[len(segments)-1]
	if idx := findMappingKey(current, last); idx >= 0 {
		current.Content[idx+1] = value
		return
	}

	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: last}
	current.Content = append(current.Content, keyNode, value)
}
