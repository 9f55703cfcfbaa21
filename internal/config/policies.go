package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// PolicySeed is one entry of the SLA policy seed file.
type PolicySeed struct {
	Name                 string `yaml:"name"`
	Priority             string `yaml:"priority"`
	ClientTier           string `yaml:"client_tier,omitempty"`
	FirstResponseMinutes int    `yaml:"first_response_minutes"`
	ResolutionMinutes    int    `yaml:"resolution_minutes"`
}

type policyFile struct {
	Policies []PolicySeed `yaml:"policies"`
}

// DefaultPolicies mirrors the seed migration so a storage backend without
// migrations still resolves every priority.
func DefaultPolicies() []domain.SLAPolicy {
	return []domain.SLAPolicy{
		{Name: "Urgent", Priority: domain.TicketPriorityUrgent, FirstResponseMinutes: 60, ResolutionMinutes: 8 * 60, Active: true},
		{Name: "High", Priority: domain.TicketPriorityHigh, FirstResponseMinutes: 4 * 60, ResolutionMinutes: 24 * 60, Active: true},
		{Name: "Medium", Priority: domain.TicketPriorityMedium, FirstResponseMinutes: 8 * 60, ResolutionMinutes: 72 * 60, Active: true},
		{Name: "Low", Priority: domain.TicketPriorityLow, FirstResponseMinutes: 24 * 60, ResolutionMinutes: 120 * 60, Active: true},
	}
}

// LoadPolicyFile reads SLA policies from a YAML seed file.
func LoadPolicyFile(path string) ([]domain.SLAPolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicies(raw)
}

// ParsePolicies decodes and validates a YAML policy document.
func ParsePolicies(raw []byte) ([]domain.SLAPolicy, error) {
	var doc policyFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode policy file: %w", err)
	}
	seen := make(map[string]struct{}, len(doc.Policies))
	policies := make([]domain.SLAPolicy, 0, len(doc.Policies))
	for i, seed := range doc.Policies {
		priority := domain.TicketPriority(seed.Priority)
		if !priority.Valid() {
			return nil, fmt.Errorf("policy %d: unknown priority %q", i, seed.Priority)
		}
		if seed.FirstResponseMinutes <= 0 || seed.ResolutionMinutes <= 0 {
			return nil, fmt.Errorf("policy %d: windows must be positive", i)
		}
		if seed.FirstResponseMinutes > seed.ResolutionMinutes {
			return nil, fmt.Errorf("policy %d: first response window exceeds resolution window", i)
		}
		key := seed.Priority + "|" + seed.ClientTier
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("policy %d: duplicate policy for priority %q tier %q", i, seed.Priority, seed.ClientTier)
		}
		seen[key] = struct{}{}
		name := seed.Name
		if name == "" {
			name = seed.Priority
		}
		policies = append(policies, domain.SLAPolicy{
			Name:                 name,
			Priority:             priority,
			ClientTier:           seed.ClientTier,
			FirstResponseMinutes: seed.FirstResponseMinutes,
			ResolutionMinutes:    seed.ResolutionMinutes,
			Active:               true,
		})
	}
	return policies, nil
}

// EncodePolicies renders policies in the seed file format.
func EncodePolicies(policies []domain.SLAPolicy) ([]byte, error) {
	doc := policyFile{Policies: make([]PolicySeed, 0, len(policies))}
	for _, p := range policies {
		doc.Policies = append(doc.Policies, PolicySeed{
			Name:                 p.Name,
			Priority:             string(p.Priority),
			ClientTier:           p.ClientTier,
			FirstResponseMinutes: p.FirstResponseMinutes,
			ResolutionMinutes:    p.ResolutionMinutes,
		})
	}
	return yaml.Marshal(doc)
}
