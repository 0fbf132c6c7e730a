package rbac

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/coopportal/coopsearch/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParsePolicy_OverridesOneCategory(t *testing.T) {
	data := []byte(`
categories:
  trainer:
    hidden: [citizen]
  official_search:
    hidden: [COOPERATIVE_ADMIN, auditor]
    scopes:
      CITIZEN: own_user
      TRAINER: own_user
`)
	policy, err := ParsePolicy(data)
	require.NoError(t, err)

	assert.False(t, policy.Decide(CategoryTrainer, fullContext(auth.RoleCitizen)).Visible)
	assert.False(t, policy.Decide(CategoryOfficialSearch, fullContext(auth.RoleAuditor)).Visible)
	d := policy.Decide(CategoryOfficialSearch, fullContext(auth.RoleTrainer))
	assert.Equal(t, ScopeOwnUser, d.Scope)

	// untouched categories keep their defaults
	d = policy.Decide(CategoryComplaint, fullContext(auth.RoleCountyAdmin))
	assert.Equal(t, ScopeTenantCooperatives, d.Scope)
}

func TestParsePolicy_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"bad yaml", "categories: [", "invalid yaml"},
		{"unknown category", "categories:\n  invoice: {}\n", "unknown category"},
		{"unknown role", "categories:\n  user:\n    hidden: [janitor]\n", "invalid role"},
		{"unknown scope", "categories:\n  user:\n    scopes:\n      COUNTY_ADMIN: county\n", "unknown scope kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPolicy_MarshalYAMLRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(DefaultPolicy())
	require.NoError(t, err)
	assert.Contains(t, string(out), "official_search:")
	assert.Contains(t, string(out), "COOPERATIVE_ADMIN: cooperative")

	parsed, err := ParsePolicy(out)
	require.NoError(t, err)
	for _, role := range auth.AllRoles() {
		assert.Equal(t, DefaultPolicy().DecideAll(fullContext(role)), parsed.DecideAll(fullContext(role)), role)
	}
}

func TestLoadPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories:\n  auditor:\n    hidden: [CITIZEN]\n"), 0o644))

	policy, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.False(t, policy.Decide(CategoryAuditor, fullContext(auth.RoleCitizen)).Visible)

	_, err = LoadPolicy(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read policy file")
}
