// Package compose models the subset of the Compose v2 schema the pipeline
// emits: services, named volumes, and the default network's aliases. It is
// deliberately hand-rolled rather than built on compose-go/v2's types,
// because the pipeline needs Environment preserved as an ordered list of
// "KEY=VALUE" pairs (not a map compose-go would re-sort) to keep output
// byte-stable across re-runs.
package compose

import "sort"

// Service is one compose-level service entry.
type Service struct {
	Image       string               `yaml:"image,omitempty"`
	Entrypoint  []string             `yaml:"entrypoint,omitempty"`
	Command     []string             `yaml:"command,omitempty"`
	Environment []string             `yaml:"environment,omitempty"`
	Ports       []string             `yaml:"ports,omitempty"`
	Volumes     []string             `yaml:"volumes,omitempty"`
	Networks    map[string]*Network  `yaml:"networks,omitempty"`
	Restart     string               `yaml:"restart,omitempty"`
	Hostname    string               `yaml:"hostname,omitempty"`
	NetworkMode string               `yaml:"network_mode,omitempty"`
	DependsOn   []string             `yaml:"depends_on,omitempty"`
	Labels      map[string]string    `yaml:"labels,omitempty"`
}

// Network is the per-service attachment to a top-level network, carrying
// the aliases the service is reachable under.
type Network struct {
	Aliases []string `yaml:"aliases,omitempty"`
}

// Volume is a top-level named-volume declaration.
type Volume struct {
	Driver     string            `yaml:"driver,omitempty"`
	DriverOpts map[string]string `yaml:"driver_opts,omitempty"`
}

// TopNetwork is a top-level network declaration, used when the project
// config names an external network to join instead of the implicit default.
type TopNetwork struct {
	External bool   `yaml:"external,omitempty"`
	Name     string `yaml:"name,omitempty"`
}

// Project is the root of compose.yml.
type Project struct {
	Services map[string]*Service   `yaml:"services"`
	Volumes  map[string]*Volume    `yaml:"volumes,omitempty"`
	Networks map[string]*TopNetwork `yaml:"networks,omitempty"`
}

// NewProject returns an empty Project ready for services to be attached.
func NewProject() *Project {
	return &Project{
		Services: make(map[string]*Service),
		Volumes:  make(map[string]*Volume),
	}
}

// SetEnv appends a KEY=VALUE pair to Environment unless the key is already
// present, in which case the existing entry is replaced in place —
// preserving first-seen position, which the idempotence invariant depends
// on under repeated post-processing.
func (s *Service) SetEnv(key, value string) {
	prefix := key + "="

	for i, entry := range s.Environment {
		if entry == key || len(entry) > len(prefix) && entry[:len(prefix)] == prefix {
			s.Environment[i] = key + "=" + value
			return
		}
	}

	s.Environment = append(s.Environment, key+"="+value)
}

// SortedServiceNames returns the service names in the project in
// alphabetical order, the order output assembly iterates over services in
// to keep diagnostics and dry-run output deterministic.
func (p *Project) SortedServiceNames() []string {
	names := make([]string, 0, len(p.Services))
	for name := range p.Services {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// DeleteService removes a service by name. Used by exclusion handling and
// by override null-deletion semantics at the project level.
func (p *Project) DeleteService(name string) {
	delete(p.Services, name)
}
