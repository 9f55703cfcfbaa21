package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const (
	clientID      = "6f1c2a10-0d3b-4b55-8f0e-1f2a3b4c5d60"
	otherClientID = "6f1c2a10-0d3b-4b55-8f0e-1f2a3b4c5d61"
	agentID       = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c60"
	leadID        = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c61"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: baseTime}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func testPolicies() []domain.SLAPolicy {
	return []domain.SLAPolicy{
		{Name: "Urgent", Priority: domain.TicketPriorityUrgent, FirstResponseMinutes: 60, ResolutionMinutes: 480, Active: true},
		{Name: "High", Priority: domain.TicketPriorityHigh, FirstResponseMinutes: 240, ResolutionMinutes: 1440, Active: true},
		{Name: "Medium", Priority: domain.TicketPriorityMedium, FirstResponseMinutes: 480, ResolutionMinutes: 4320, Active: true},
		{Name: "Low", Priority: domain.TicketPriorityLow, FirstResponseMinutes: 1440, ResolutionMinutes: 7200, Active: true},
	}
}

// staticCapabilities grants a fixed capability set to every staff actor.
type staticCapabilities map[domain.Capability]bool

func (s staticCapabilities) HasCapability(actor domain.Actor, action domain.Capability) bool {
	if actor.Type == domain.SubjectTypeSystem {
		return true
	}
	return actor.IsStaff() && s[action]
}

var agentCapabilities = staticCapabilities{
	domain.CapabilityChangePriority:  true,
	domain.CapabilityAssign:          true,
	domain.CapabilityInternalComment: true,
	domain.CapabilityViewPolicies:    true,
}

// recordingDispatcher keeps every published event.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) ofType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.Event
	for _, event := range d.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func clientActor(id string) domain.Actor {
	return domain.Actor{Type: domain.SubjectTypeClient, ID: id}
}

func staffActor(id string, role domain.StaffRole) domain.Actor {
	return domain.Actor{Type: domain.SubjectTypeStaff, ID: id, Role: &role}
}

type fixture struct {
	clock      *testClock
	store      *repository.MemoryStore
	dispatcher *recordingDispatcher
	tickets    *TicketService
}

func newFixture(t *testing.T, caps CapabilityChecker, policies ...domain.SLAPolicy) *fixture {
	t.Helper()
	if len(policies) == 0 {
		policies = testPolicies()
	}
	if caps == nil {
		caps = agentCapabilities
	}
	f := &fixture{
		clock:      newTestClock(),
		store:      repository.NewMemoryStore(policies...),
		dispatcher: &recordingDispatcher{},
	}
	f.tickets = NewTicketService(TicketDependencies{
		Store:        f.store,
		Capabilities: caps,
		Dispatcher:   f.dispatcher,
		Now:          f.clock.Now,
	})
	return f
}

func (f *fixture) createTicket(t *testing.T, priority domain.TicketPriority) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.CreateTicket(context.Background(), clientActor(clientID), TicketCreateInput{
		Title:       "Printer on fire",
		Description: "It is still printing",
		Priority:    priority,
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

func (f *fixture) stored(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := f.store.Repositories().Tickets.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load ticket %s: %v", id, err)
	}
	return ticket
}

func (f *fixture) setStatus(t *testing.T, id string, status domain.TicketStatus) {
	t.Helper()
	err := f.store.WithinTx(context.Background(), func(repos repository.Repositories) error {
		ticket, err := repos.Tickets.GetForUpdate(context.Background(), id)
		if err != nil {
			return err
		}
		ticket.Status = status
		return repos.Tickets.Update(context.Background(), ticket)
	})
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	return apperrors.ToDomainError(err).Code
}
