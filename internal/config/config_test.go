package config

import (
	"strings"
	"testing"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func TestLoadAppliesSLADefaults(t *testing.T) {
	t.Setenv("SLA_SCAN_INTERVAL_SECONDS", "")
	t.Setenv("SLA_SCAN_COOLDOWN_SECONDS", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SLA.ScanInterval().Minutes() != 5 {
		t.Fatalf("expected 5 minute interval, got %v", cfg.SLA.ScanInterval())
	}
	if cfg.SLA.ScanCooldown().Minutes() != 10 {
		t.Fatalf("expected 10 minute cooldown, got %v", cfg.SLA.ScanCooldown())
	}
}

func TestLoadRejectsCooldownShorterThanInterval(t *testing.T) {
	t.Setenv("SLA_SCAN_INTERVAL_SECONDS", "300")
	t.Setenv("SLA_SCAN_COOLDOWN_SECONDS", "60")
	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestAttachmentTypesParsedAsList(t *testing.T) {
	t.Setenv("ATTACHMENT_ALLOWED_TYPES", " image/png , application/pdf,, ")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if strings.Join(cfg.Attachments.AllowedTypes, "|") != "image/png|application/pdf" {
		t.Fatalf("unexpected types %v", cfg.Attachments.AllowedTypes)
	}
}

func TestParsePolicies(t *testing.T) {
	raw := []byte(`
policies:
  - priority: high
    first_response_minutes: 240
    resolution_minutes: 1440
  - priority: high
    client_tier: gold
    first_response_minutes: 60
    resolution_minutes: 480
`)
	policies, err := ParsePolicies(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(policies))
	}
	if policies[0].Priority != domain.TicketPriorityHigh || policies[0].Name != "high" {
		t.Fatalf("unexpected first policy %+v", policies[0])
	}
	if policies[1].ClientTier != "gold" || !policies[1].Active {
		t.Fatalf("unexpected tier policy %+v", policies[1])
	}
}

func TestParsePoliciesRejectsDuplicatesAndBadWindows(t *testing.T) {
	cases := map[string]string{
		"duplicate": `
policies:
  - {priority: low, first_response_minutes: 10, resolution_minutes: 20}
  - {priority: low, first_response_minutes: 10, resolution_minutes: 20}
`,
		"unknown priority": `
policies:
  - {priority: critical, first_response_minutes: 10, resolution_minutes: 20}
`,
		"zero window": `
policies:
  - {priority: low, first_response_minutes: 0, resolution_minutes: 20}
`,
		"inverted windows": `
policies:
  - {priority: low, first_response_minutes: 30, resolution_minutes: 20}
`,
	}
	for name, raw := range cases {
		if _, err := ParsePolicies([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
