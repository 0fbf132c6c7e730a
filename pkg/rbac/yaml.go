package rbac

import (
	"fmt"
	"os"

	"github.com/coopportal/coopsearch/pkg/auth"
	"gopkg.in/yaml.v3"
)

// policyFile is the on-disk policy format:
//
//	categories:
//	  complaint:
//	    hidden: [CITIZEN, AUDITOR, TRAINER]
//	    scopes:
//	      COUNTY_ADMIN: tenant_cooperatives
//	      COOPERATIVE_ADMIN: cooperative
type policyFile struct {
	Categories map[string]ruleFile `yaml:"categories"`
}

type ruleFile struct {
	Hidden []string          `yaml:"hidden,omitempty"`
	Scopes map[string]string `yaml:"scopes,omitempty"`
}

// LoadPolicy reads a policy file. Categories missing from the file keep their default rule.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	p, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	return p, nil
}

// ParsePolicy parses a YAML policy on top of the default rules
func ParsePolicy(data []byte) (*Policy, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}

	policy := DefaultPolicy()
	for name, rf := range file.Categories {
		category, err := ParseCategory(name)
		if err != nil {
			return nil, err
		}

		rule := Rule{}
		for _, h := range rf.Hidden {
			role, err := auth.ParseRole(h)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", name, err)
			}
			rule.Hidden = append(rule.Hidden, role)
		}
		if len(rf.Scopes) > 0 {
			rule.Scopes = make(map[auth.Role]ScopeKind, len(rf.Scopes))
		}
		for r, s := range rf.Scopes {
			role, err := auth.ParseRole(r)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", name, err)
			}
			kind, err := ParseScopeKind(s)
			if err != nil {
				return nil, fmt.Errorf("category %s, role %s: %w", name, role, err)
			}
			rule.Scopes[role] = kind
		}
		policy.rules[category] = rule
	}

	return policy, nil
}

// MarshalYAML renders the policy in the on-disk format
func (p *Policy) MarshalYAML() (interface{}, error) {
	file := policyFile{Categories: make(map[string]ruleFile, len(p.rules))}
	for c, r := range p.rules {
		rf := ruleFile{}
		for _, h := range r.Hidden {
			rf.Hidden = append(rf.Hidden, string(h))
		}
		if len(r.Scopes) > 0 {
			rf.Scopes = make(map[string]string, len(r.Scopes))
			for role, kind := range r.Scopes {
				rf.Scopes[string(role)] = string(kind)
			}
		}
		file.Categories[string(c)] = rf
	}
	return file, nil
}
