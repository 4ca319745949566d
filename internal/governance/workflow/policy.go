package workflow

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Capability is a permission an actor's role may hold.
type Capability string

const (
	CapCreate            Capability = "record:create"
	CapManagerValidation Capability = "manager_validation"
	CapSafetyValidation  Capability = "safety_validation"
	CapExecute           Capability = "execute"
	CapClose             Capability = "close"
)

// AllCapabilities lists every capability.
var AllCapabilities = []Capability{CapCreate, CapManagerValidation, CapSafetyValidation, CapExecute, CapClose}

// Built-in roles.
const (
	RoleContractor     = "contractor"
	RoleProjectManager = "project_manager"
	RoleHSEOfficer     = "hse_officer"
	RoleSiteSupervisor = "site_supervisor"
	RoleAdmin          = "admin"
	// RoleSystem is reserved for the expiry scheduler and holds no capability.
	RoleSystem = "system"
)

// Policy maps roles to capabilities. It is read-only once built.
type Policy struct {
	roles map[string]map[Capability]bool
}

// DefaultRoles is the role table used when no configuration overrides it.
func DefaultRoles() map[string][]string {
	return map[string][]string{
		RoleContractor:     {string(CapCreate), string(CapExecute)},
		RoleProjectManager: {string(CapCreate), string(CapManagerValidation)},
		RoleHSEOfficer:     {string(CapSafetyValidation), string(CapExecute), string(CapClose)},
		RoleSiteSupervisor: {string(CapExecute), string(CapClose)},
		RoleAdmin:          capabilityNames(AllCapabilities),
	}
}

// DefaultPolicy returns the policy built from DefaultRoles.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultRoles())
	if err != nil {
		panic(err)
	}
	return p
}

// NewPolicy builds a policy and rejects unknown capabilities and the system role.
func NewPolicy(roles map[string][]string) (*Policy, error) {
	known := make(map[Capability]bool, len(AllCapabilities))
	for _, c := range AllCapabilities {
		known[c] = true
	}

	p := &Policy{roles: make(map[string]map[Capability]bool, len(roles))}
	for role, caps := range roles {
		if role == "" {
			return nil, fmt.Errorf("policy: empty role name")
		}
		if role == RoleSystem {
			return nil, fmt.Errorf("policy: role %q is reserved", RoleSystem)
		}
		set := make(map[Capability]bool, len(caps))
		for _, c := range caps {
			if !known[Capability(c)] {
				return nil, fmt.Errorf("policy: role %q: unknown capability %q", role, c)
			}
			set[Capability(c)] = true
		}
		p.roles[role] = set
	}
	return p, nil
}

type policyFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadPolicyFile reads a YAML role table:
//
//	roles:
//	  contractor: [record:create, execute]
func LoadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("policy file %s defines no roles", path)
	}
	return NewPolicy(f.Roles)
}

// Allows reports whether role holds capability c.
func (p *Policy) Allows(role string, c Capability) bool {
	return p.roles[role][c]
}

// HasRole reports whether role is defined.
func (p *Policy) HasRole(role string) bool {
	_, ok := p.roles[role]
	return ok
}

// Roles returns the sorted role names.
func (p *Policy) Roles() []string {
	out := make([]string, 0, len(p.roles))
	for r := range p.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Capabilities returns the sorted capabilities of role.
func (p *Policy) Capabilities(role string) []Capability {
	out := make([]Capability, 0, len(p.roles[role]))
	for c := range p.roles[role] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func capabilityNames(caps []Capability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}
