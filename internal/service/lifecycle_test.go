package service

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func TestTransitionMatrix(t *testing.T) {
	const (
		N  = domain.TicketStatusNew
		O  = domain.TicketStatusOpen
		PC = domain.TicketStatusPendingCustomer
		PI = domain.TicketStatusPendingInternal
		H  = domain.TicketStatusOnHold
		R  = domain.TicketStatusResolved
		C  = domain.TicketStatusClosed
		X  = domain.TicketStatusCancelled
	)
	allowed := map[domain.TicketStatus][]domain.TicketStatus{
		N:  {O, H, R, X},
		O:  {PC, H, R, X},
		PC: {O, H, R, X},
		PI: {PC, H, R, X},
		H:  {R, X},
		R:  {C},
	}
	now := baseTime.Add(time.Hour)

	for _, from := range domain.AllTicketStatuses {
		for _, to := range domain.AllTicketStatuses {
			if from == to {
				continue
			}
			want := false
			for _, candidate := range allowed[from] {
				if candidate == to {
					want = true
				}
			}
			ticket := &domain.Ticket{Status: from, CreatedAt: baseTime}
			_, err := ApplyTransition(ticket, to, false, now)
			if want && err != nil {
				t.Fatalf("%s -> %s: expected allowed, got %v", from, to, err)
			}
			if !want {
				var invalid *domain.InvalidTransitionError
				if !errors.As(err, &invalid) {
					t.Fatalf("%s -> %s: expected InvalidTransitionError, got %v", from, to, err)
				}
				if ticket.Status != from {
					t.Fatalf("%s -> %s: rejected transition changed status to %s", from, to, ticket.Status)
				}
			}
		}
	}
}

func TestSameStateIsNoOpExceptActivity(t *testing.T) {
	now := baseTime.Add(time.Hour)
	for _, status := range domain.AllTicketStatuses {
		ticket := &domain.Ticket{Status: status, CreatedAt: baseTime, UpdatedAt: baseTime, LastActivityAt: baseTime}
		result, err := ApplyTransition(ticket, status, false, now)
		if err != nil {
			t.Fatalf("%s: same-state request failed: %v", status, err)
		}
		if result.Changed || ticket.Status != status {
			t.Fatalf("%s: expected no change, got %+v", status, result)
		}
		if !ticket.LastActivityAt.Equal(now) || !ticket.UpdatedAt.Equal(baseTime) {
			t.Fatalf("%s: expected only last_activity_at to move", status)
		}
	}
}

func TestForceCloseFromEveryActiveStatus(t *testing.T) {
	now := baseTime.Add(time.Hour)
	for _, status := range domain.ActiveTicketStatuses {
		ticket := &domain.Ticket{Status: status}
		if _, err := ApplyTransition(ticket, domain.TicketStatusClosed, false, now); err == nil {
			t.Fatalf("%s -> closed must need force", status)
		}
		result, err := ApplyTransition(ticket, domain.TicketStatusClosed, true, now)
		if err != nil {
			t.Fatalf("%s: forced close failed: %v", status, err)
		}
		if !result.Forced || ticket.ClosedAt == nil || !ticket.ClosedAt.Equal(now) {
			t.Fatalf("%s: expected forced close with closed_at, got %+v", status, result)
		}
	}
	for _, status := range []domain.TicketStatus{domain.TicketStatusClosed, domain.TicketStatusCancelled} {
		ticket := &domain.Ticket{Status: status}
		if _, err := ApplyTransition(ticket, domain.TicketStatusOpen, true, now); err == nil {
			t.Fatalf("%s: force must not reopen terminal tickets", status)
		}
	}
	resolved := &domain.Ticket{Status: domain.TicketStatusResolved}
	result, err := ApplyTransition(resolved, domain.TicketStatusClosed, true, now)
	if err != nil || result.Forced {
		t.Fatalf("resolved -> closed is a regular edge, got %+v %v", result, err)
	}
}

func TestTransitionSideEffects(t *testing.T) {
	now := baseTime.Add(30 * time.Minute)
	ticket := &domain.Ticket{Status: domain.TicketStatusNew, CreatedAt: baseTime}

	if _, err := ApplyTransition(ticket, domain.TicketStatusOpen, false, now); err != nil {
		t.Fatalf("open: %v", err)
	}
	if ticket.FirstResponseAt == nil || !ticket.FirstResponseAt.Equal(now) {
		t.Fatalf("new -> open must set first_response_at")
	}

	later := now.Add(time.Hour)
	if _, err := ApplyTransition(ticket, domain.TicketStatusResolved, false, later); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ticket.ResolvedAt == nil || !ticket.ResolvedAt.Equal(later) || ticket.ClosedAt != nil {
		t.Fatalf("resolve must set resolved_at only, got %+v", ticket)
	}

	closedAt := later.Add(time.Hour)
	if _, err := ApplyTransition(ticket, domain.TicketStatusClosed, false, closedAt); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !ticket.ClosedAt.Equal(closedAt) || !ticket.ResolvedAt.Equal(later) {
		t.Fatalf("close must set closed_at and keep resolved_at")
	}
	if !ticket.FirstResponseAt.Equal(now) {
		t.Fatalf("first_response_at must never be overwritten")
	}
}

func TestRejectedTransitionLeavesTicketUntouched(t *testing.T) {
	due := baseTime.Add(time.Hour)
	ticket := &domain.Ticket{
		ID:                 "t-1",
		Status:             domain.TicketStatusOnHold,
		FirstResponseDueAt: &due,
		CreatedAt:          baseTime,
		UpdatedAt:          baseTime,
		LastActivityAt:     baseTime,
	}
	before := ticket.Clone()
	if _, err := ApplyTransition(ticket, domain.TicketStatusOpen, false, baseTime.Add(time.Hour)); err == nil {
		t.Fatalf("expected on_hold -> open to be rejected")
	}
	if !reflect.DeepEqual(before, ticket) {
		t.Fatalf("ticket mutated by rejected transition:\nbefore %+v\nafter  %+v", before, ticket)
	}
}
