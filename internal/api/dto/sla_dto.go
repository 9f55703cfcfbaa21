package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// SLAPolicyResponse is one active policy.
type SLAPolicyResponse struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name"`
	Priority             domain.TicketPriority `json:"priority"`
	ClientTier           string                `json:"client_tier,omitempty"`
	FirstResponseMinutes int                   `json:"first_response_minutes"`
	ResolutionMinutes    int                   `json:"resolution_minutes"`
}

// ScanRequest payload for a manual scan.
type ScanRequest struct {
	DryRun bool `json:"dry_run"`
}

// ScanResponse reports a scan run.
type ScanResponse struct {
	FirstResponseBreaches int       `json:"first_response_breaches"`
	ResolutionBreaches    int       `json:"resolution_breaches"`
	DryRun                bool      `json:"dry_run"`
	ScannedAt             time.Time `json:"scanned_at"`
}

// NewSLAPolicyResponses maps policies.
func NewSLAPolicyResponses(policies []domain.SLAPolicy) []SLAPolicyResponse {
	resp := make([]SLAPolicyResponse, 0, len(policies))
	for _, p := range policies {
		resp = append(resp, SLAPolicyResponse{
			ID:                   p.ID,
			Name:                 p.Name,
			Priority:             p.Priority,
			ClientTier:           p.ClientTier,
			FirstResponseMinutes: p.FirstResponseMinutes,
			ResolutionMinutes:    p.ResolutionMinutes,
		})
	}
	return resp
}
