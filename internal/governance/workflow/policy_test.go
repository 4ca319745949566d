package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	require.Equal(t, []string{RoleAdmin, RoleContractor, RoleHSEOfficer, RoleProjectManager, RoleSiteSupervisor}, p.Roles())
	require.False(t, p.HasRole(RoleSystem))
	require.Empty(t, p.Capabilities("nobody"))

	tests := []struct {
		role string
		cap  Capability
		want bool
	}{
		{RoleContractor, CapCreate, true},
		{RoleContractor, CapManagerValidation, false},
		{RoleProjectManager, CapManagerValidation, true},
		{RoleProjectManager, CapSafetyValidation, false},
		{RoleHSEOfficer, CapSafetyValidation, true},
		{RoleHSEOfficer, CapClose, true},
		{RoleSiteSupervisor, CapExecute, true},
		{RoleSiteSupervisor, CapCreate, false},
		{RoleSystem, CapExecute, false},
	}
	for _, tt := range tests {
		t.Run(tt.role+"/"+string(tt.cap), func(t *testing.T) {
			require.Equal(t, tt.want, p.Allows(tt.role, tt.cap))
		})
	}

	for _, c := range AllCapabilities {
		require.True(t, p.Allows(RoleAdmin, c), c)
	}
}

func TestNewPolicy_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		roles map[string][]string
	}{
		{"empty role name", map[string][]string{"": {string(CapExecute)}}},
		{"reserved system role", map[string][]string{RoleSystem: {string(CapExecute)}}},
		{"unknown capability", map[string][]string{"auditor": {"record:delete"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicy(tt.roles)
			require.Error(t, err)
		})
	}
}

func TestLoadPolicyFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "roles.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`roles:
  chef_chantier: [execute, close]
  responsable_hse: [safety_validation]
`), 0o600))

	p, err := LoadPolicyFile(good)
	require.NoError(t, err)
	require.Equal(t, []string{"chef_chantier", "responsable_hse"}, p.Roles())
	require.Equal(t, []Capability{CapClose, CapExecute}, p.Capabilities("chef_chantier"))
	require.False(t, p.Allows("responsable_hse", CapClose))

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("roles: {}\n"), 0o600))
	_, err = LoadPolicyFile(empty)
	require.ErrorContains(t, err, "defines no roles")

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("roles: [\n"), 0o600))
	_, err = LoadPolicyFile(broken)
	require.ErrorContains(t, err, "parse policy file")

	_, err = LoadPolicyFile(filepath.Join(dir, "missing.yaml"))
	require.ErrorContains(t, err, "read policy file")
}
