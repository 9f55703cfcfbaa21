package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

func TestCreateTicketResolvesDeadlinesFromPolicy(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.createTicket(t, domain.TicketPriorityHigh)

	if ticket.Status != domain.TicketStatusNew || ticket.ClientID != clientID {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if !ticket.FirstResponseDueAt.Equal(baseTime.Add(4*time.Hour)) || !ticket.ResolutionDueAt.Equal(baseTime.Add(24*time.Hour)) {
		t.Fatalf("unexpected deadlines %v / %v", ticket.FirstResponseDueAt, ticket.ResolutionDueAt)
	}
	stored := f.stored(t, ticket.ID)
	if !reflect.DeepEqual(stored, ticket) {
		t.Fatalf("stored ticket differs from returned ticket")
	}
	if got := len(f.dispatcher.ofType(events.EventTicketCreated)); got != 1 {
		t.Fatalf("expected one ticket_created event, got %d", got)
	}
}

func TestCreateTicketDefaultsToMediumPriority(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.createTicket(t, "")
	if ticket.Priority != domain.TicketPriorityMedium {
		t.Fatalf("expected medium default, got %s", ticket.Priority)
	}
}

func TestCreateTicketWithoutPolicyStoresNothing(t *testing.T) {
	f := newFixture(t, nil, testPolicies()[1])
	_, err := f.tickets.CreateTicket(context.Background(), clientActor(clientID), TicketCreateInput{
		Title:    "No policy for me",
		Priority: domain.TicketPriorityLow,
	})
	var notFound *domain.PolicyNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected PolicyNotFoundError, got %v", err)
	}
	if code := errorCode(err); code != "POLICY_NOT_FOUND" {
		t.Fatalf("expected POLICY_NOT_FOUND, got %s", code)
	}
	tickets, err := f.store.Repositories().Tickets.List(context.Background(), repository.TicketFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tickets) != 0 || len(f.dispatcher.events) != 0 {
		t.Fatalf("expected nothing stored or published, got %d tickets", len(tickets))
	}
}

func TestStaffCreateRequiresClientID(t *testing.T) {
	f := newFixture(t, nil)
	agent := staffActor(agentID, domain.StaffRoleAgent)
	if _, err := f.tickets.CreateTicket(context.Background(), agent, TicketCreateInput{Title: "x"}); errorCode(err) != "VALIDATION_FAILED" {
		t.Fatalf("expected validation error, got %v", err)
	}
	ticket, err := f.tickets.CreateTicket(context.Background(), agent, TicketCreateInput{Title: "phoned in", ClientID: clientID})
	if err != nil {
		t.Fatalf("create on behalf: %v", err)
	}
	if ticket.ClientID != clientID {
		t.Fatalf("expected ticket owned by client, got %s", ticket.ClientID)
	}
}

func TestInvalidTransitionLeavesStoredTicketUnchanged(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.createTicket(t, domain.TicketPriorityHigh)
	before := f.stored(t, ticket.ID)

	f.clock.Advance(time.Hour)
	_, err := f.tickets.ChangeStatus(context.Background(), staffActor(agentID, domain.StaffRoleAgent), ticket.ID,
		StatusChangeInput{Status: domain.TicketStatusPendingCustomer})
	var invalid *domain.InvalidTransitionError
	if !errors.As(err, &invalid) || invalid.From != domain.TicketStatusNew {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if code := errorCode(err); code != "INVALID_TRANSITION" {
		t.Fatalf("expected INVALID_TRANSITION, got %s", code)
	}
	if after := f.stored(t, ticket.ID); !reflect.DeepEqual(before, after) {
		t.Fatalf("stored ticket changed:\nbefore %+v\nafter  %+v", before, after)
	}
	if got := len(f.dispatcher.ofType(events.EventTicketStatusChanged)); got != 0 {
		t.Fatalf("expected no status event, got %d", got)
	}
}

func TestChangeStatusPublishesOnlyRealChanges(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.createTicket(t, domain.TicketPriorityHigh)
	agent := staffActor(agentID, domain.StaffRoleAgent)

	updated, err := f.tickets.ChangeStatus(context.Background(), agent, ticket.ID, StatusChangeInput{Status: domain.TicketStatusOpen})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if updated.FirstResponseAt == nil {
		t.Fatalf("expected first response recorded")
	}
	f.clock.Advance(time.Minute)
	if _, err := f.tickets.ChangeStatus(context.Background(), agent, ticket.ID, StatusChangeInput{Status: domain.TicketStatusOpen}); err != nil {
		t.Fatalf("same-state: %v", err)
	}
	if got := len(f.dispatcher.ofType(events.EventTicketStatusChanged)); got != 1 {
		t.Fatalf("expected one status event, got %d", got)
	}
	if stored := f.stored(t, ticket.ID); !stored.LastActivityAt.Equal(baseTime.Add(time.Minute)) {
		t.Fatalf("same-state request must touch last_activity_at")
	}
}

func TestClientStatusPermissions(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.createTicket(t, domain.TicketPriorityMedium)

	if _, err := f.tickets.ChangeStatus(context.Background(), clientActor(clientID), ticket.ID,
		StatusChangeInput{Status: domain.TicketStatusResolved}); errorCode(err) != "FORBIDDEN" {
		t.Fatalf("client must not resolve, got %v", err)
	}
	if _, err := f.tickets.ChangeStatus(context.Background(), clientActor(otherClientID), ticket.ID,
		StatusChangeInput{Status: domain.TicketStatusCancelled}); errorCode(err) != "FORBIDDEN" {
		t.Fatalf("foreign client must not cancel, got %v", err)
	}
	cancelled, err := f.tickets.ChangeStatus(context.Background(), clientActor(clientID), ticket.ID,
		StatusChangeInput{Status: domain.TicketStatusCancelled})
	if err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	if cancelled.Status != domain.TicketStatusCancelled || cancelled.ClosedAt == nil {
		t.Fatalf("unexpected ticket after cancel %+v", cancelled)
	}
}

func TestForceCloseRequiresCapability(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.createTicket(t, domain.TicketPriorityMedium)
	input := StatusChangeInput{Status: domain.TicketStatusClosed, Force: true, Reason: "duplicate"}

	if _, err := f.tickets.ChangeStatus(context.Background(), staffActor(agentID, domain.StaffRoleAgent), ticket.ID, input); errorCode(err) != "FORBIDDEN" {
		t.Fatalf("agent without capability must be refused, got %v", err)
	}

	leadCaps := staticCapabilities{domain.CapabilityForceClose: true}
	lead := NewTicketService(TicketDependencies{Store: f.store, Capabilities: leadCaps, Dispatcher: f.dispatcher, Now: f.clock.Now})
	closed, err := lead.ChangeStatus(context.Background(), staffActor(leadID, domain.StaffRoleTeamLead), ticket.ID, input)
	if err != nil {
		t.Fatalf("force close: %v", err)
	}
	if closed.Status != domain.TicketStatusClosed {
		t.Fatalf("expected closed, got %s", closed.Status)
	}
	published := f.dispatcher.ofType(events.EventTicketStatusChanged)
	payload, ok := published[len(published)-1].Payload.(events.TicketStatusChangedPayload)
	if !ok || !payload.Forced || payload.Reason != "duplicate" {
		t.Fatalf("unexpected status payload %+v", published[len(published)-1].Payload)
	}
}

func TestChangePriorityRecomputesFromCreation(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.createTicket(t, domain.TicketPriorityLow)
	agent := staffActor(agentID, domain.StaffRoleAgent)

	f.clock.Advance(2 * time.Hour)
	updated, err := f.tickets.ChangePriority(context.Background(), agent, ticket.ID, domain.TicketPriorityUrgent)
	if err != nil {
		t.Fatalf("change priority: %v", err)
	}
	if !updated.FirstResponseDueAt.Equal(baseTime.Add(time.Hour)) || !updated.ResolutionDueAt.Equal(baseTime.Add(8*time.Hour)) {
		t.Fatalf("deadlines must be measured from created_at, got %v / %v", updated.FirstResponseDueAt, updated.ResolutionDueAt)
	}
	if got := len(f.dispatcher.ofType(events.EventTicketPriorityChanged)); got != 1 {
		t.Fatalf("expected one priority event, got %d", got)
	}
}

func TestChangePriorityKeepsMetDimension(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.createTicket(t, domain.TicketPriorityLow)
	agent := staffActor(agentID, domain.StaffRoleAgent)
	if _, err := f.tickets.ChangeStatus(context.Background(), agent, ticket.ID, StatusChangeInput{Status: domain.TicketStatusOpen}); err != nil {
		t.Fatalf("open: %v", err)
	}
	updated, err := f.tickets.ChangePriority(context.Background(), agent, ticket.ID, domain.TicketPriorityHigh)
	if err != nil {
		t.Fatalf("change priority: %v", err)
	}
	if !updated.FirstResponseDueAt.Equal(baseTime.Add(24 * time.Hour)) {
		t.Fatalf("met first response must keep its deadline, got %v", updated.FirstResponseDueAt)
	}
	if !updated.ResolutionDueAt.Equal(baseTime.Add(24 * time.Hour)) {
		t.Fatalf("resolution must follow the new policy, got %v", updated.ResolutionDueAt)
	}
}

func TestChangePriorityRejectsTerminalAndUnauthorized(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.createTicket(t, domain.TicketPriorityLow)

	if _, err := f.tickets.ChangePriority(context.Background(), clientActor(clientID), ticket.ID, domain.TicketPriorityHigh); errorCode(err) != "FORBIDDEN" {
		t.Fatalf("client must not change priority, got %v", err)
	}
	f.setStatus(t, ticket.ID, domain.TicketStatusResolved)
	_, err := f.tickets.ChangePriority(context.Background(), staffActor(agentID, domain.StaffRoleAgent), ticket.ID, domain.TicketPriorityHigh)
	if !errors.Is(err, domain.ErrTicketTerminal) {
		t.Fatalf("expected ErrTicketTerminal, got %v", err)
	}
}

func TestListTicketsScopesClients(t *testing.T) {
	f := newFixture(t, nil)
	f.createTicket(t, domain.TicketPriorityLow)
	if _, err := f.tickets.CreateTicket(context.Background(), clientActor(otherClientID), TicketCreateInput{Title: "other"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	own, err := f.tickets.ListTickets(context.Background(), clientActor(clientID), TicketListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(own) != 1 || own[0].ClientID != clientID {
		t.Fatalf("client must see only own tickets, got %d", len(own))
	}
	all, err := f.tickets.ListTickets(context.Background(), staffActor(agentID, domain.StaffRoleAgent), TicketListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("staff must see all tickets, got %d", len(all))
	}
}

func TestGetTicketHidesInternalCommentsFromClients(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.createTicket(t, domain.TicketPriorityLow)
	activity := NewActivityService(ActivityDependencies{Store: f.store, Capabilities: agentCapabilities, Now: f.clock.Now})
	agent := staffActor(agentID, domain.StaffRoleAgent)
	if _, err := activity.AddComment(context.Background(), agent, ticket.ID, CommentInput{Visibility: domain.VisibilityInternal, Body: "customer is grumpy"}); err != nil {
		t.Fatalf("internal comment: %v", err)
	}
	if _, err := activity.AddComment(context.Background(), agent, ticket.ID, CommentInput{Body: "looking into it"}); err != nil {
		t.Fatalf("public comment: %v", err)
	}

	asClient, err := f.tickets.GetTicket(context.Background(), clientActor(clientID), ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(asClient.Comments) != 1 || asClient.Comments[0].Visibility != domain.VisibilityPublic {
		t.Fatalf("client must see public comments only, got %+v", asClient.Comments)
	}
	asStaff, err := f.tickets.GetTicket(context.Background(), agent, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(asStaff.Comments) != 2 {
		t.Fatalf("staff must see both comments, got %d", len(asStaff.Comments))
	}
	if _, err := f.tickets.GetTicket(context.Background(), clientActor(otherClientID), ticket.ID); errorCode(err) != "FORBIDDEN" {
		t.Fatalf("foreign client must be refused, got %v", err)
	}
}
