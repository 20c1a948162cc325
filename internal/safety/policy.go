package safety

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aegismesh/aegis-meta/internal/models"
)

// Policy is the configurable half of the safety rules. The unsafe text
// patterns and the always-dangerous action set are compiled in and not
// configurable.
type Policy struct {
	AllowedActions     []models.Action `yaml:"allowed_actions"`
	ProtectedResources []string        `yaml:"protected_resources"`
	MinReplicas        int             `yaml:"min_replicas"`
	MaxReplicas        int             `yaml:"max_replicas"`
	MaxTextLength      int             `yaml:"max_text_length"`
}

// DefaultPolicy returns the compiled-in policy used when no pack file is
// configured.
func DefaultPolicy() Policy {
	return Policy{
		AllowedActions:     models.RemediationActions(),
		ProtectedResources: []string{"database", "storage", "backup", "critical-service"},
		MinReplicas:        1,
		MaxReplicas:        20,
		MaxTextLength:      2000,
	}
}

// LoadPolicy reads a policy pack from path. An empty path or a missing file
// yields the default policy; a present but malformed file is an error so a
// bad pack never silently weakens enforcement.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultPolicy(), nil
		}
		return Policy{}, fmt.Errorf("read safety policy: %w", err)
	}
	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("parse safety policy: %w", err)
	}
	if err := policy.normalize(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// normalize fills unset fields from the defaults and rejects inconsistent
// bounds.
func (p *Policy) normalize() error {
	defaults := DefaultPolicy()
	if len(p.AllowedActions) == 0 {
		p.AllowedActions = defaults.AllowedActions
	}
	if len(p.ProtectedResources) == 0 {
		p.ProtectedResources = defaults.ProtectedResources
	}
	if p.MinReplicas <= 0 {
		p.MinReplicas = defaults.MinReplicas
	}
	if p.MaxReplicas <= 0 {
		p.MaxReplicas = defaults.MaxReplicas
	}
	if p.MaxTextLength <= 0 {
		p.MaxTextLength = defaults.MaxTextLength
	}
	if p.MaxReplicas < p.MinReplicas {
		return fmt.Errorf("safety policy: max_replicas %d below min_replicas %d", p.MaxReplicas, p.MinReplicas)
	}
	return nil
}
