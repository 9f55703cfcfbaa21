package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/worker"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// ScanRunner triggers a breach scan under the overlap lock.
type ScanRunner interface {
	RunOnce(ctx context.Context, dryRun bool) (service.ScanResult, error)
}

// SLAHandler exposes SLA policies and manual scans.
type SLAHandler struct {
	policies     *service.SLAPolicyService
	scans        ScanRunner
	capabilities service.CapabilityChecker
}

// NewSLAHandler constructs handler.
func NewSLAHandler(policies *service.SLAPolicyService, scans ScanRunner, capabilities service.CapabilityChecker) *SLAHandler {
	return &SLAHandler{policies: policies, scans: scans, capabilities: capabilities}
}

// ListPolicies GET /sla/policies.
func (h *SLAHandler) ListPolicies(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	policies, err := h.policies.ListActive(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSLAPolicyResponses(policies)})
}

// RunScan POST /sla/scan.
func (h *SLAHandler) RunScan(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	if h.capabilities == nil || !h.capabilities.HasCapability(actor, domain.CapabilityRunScan) {
		return apperrors.NewForbidden("running a scan requires the " + string(domain.CapabilityRunScan) + " capability")
	}
	var req dto.ScanRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	if c.QueryBool("dry_run") {
		req.DryRun = true
	}
	result, err := h.scans.RunOnce(c.UserContext(), req.DryRun)
	if errors.Is(err, worker.ErrScanInProgress) {
		return apperrors.NewConflict("an sla scan is already running", nil)
	}
	if failed := domain.FailedDimensions(err); len(failed) > 0 {
		partial := apperrors.ToDomainError(err)
		return &apperrors.DomainError{
			Code:       partial.Code,
			Message:    partial.Message,
			HTTPStatus: partial.HTTPStatus,
			Err:        err,
			Details: map[string]any{
				"failed_dimensions":       failed,
				"first_response_breaches": result.FirstResponseBreaches,
				"resolution_breaches":     result.ResolutionBreaches,
				"dry_run":                 result.DryRun,
			},
		}
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ScanResponse{
		FirstResponseBreaches: result.FirstResponseBreaches,
		ResolutionBreaches:    result.ResolutionBreaches,
		DryRun:                result.DryRun,
		ScannedAt:             result.ScannedAt,
	}})
}
