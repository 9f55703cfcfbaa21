package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

func newScanner(f *fixture, metrics *observability.Metrics) *BreachScanner {
	return NewBreachScanner(BreachScannerDependencies{
		Store:      f.store,
		Dispatcher: f.dispatcher,
		Metrics:    metrics,
		Now:        f.clock.Now,
	})
}

func TestHighPriorityScenario(t *testing.T) {
	f := newFixture(t, nil)
	scanner := newScanner(f, nil)
	ticket := f.createTicket(t, domain.TicketPriorityHigh)

	result, err := scanner.Scan(context.Background(), baseTime.Add(3*time.Hour), false)
	if err != nil {
		t.Fatalf("scan at 3h: %v", err)
	}
	if result.FirstResponseBreaches != 0 || result.ResolutionBreaches != 0 {
		t.Fatalf("nothing is due at 3h, got %+v", result)
	}

	at5h := baseTime.Add(5 * time.Hour)
	result, err = scanner.Scan(context.Background(), at5h, false)
	if err != nil {
		t.Fatalf("scan at 5h: %v", err)
	}
	if result.FirstResponseBreaches != 1 || result.ResolutionBreaches != 0 {
		t.Fatalf("expected one first response breach at 5h, got %+v", result)
	}
	stored := f.stored(t, ticket.ID)
	if stored.FirstResponseBreachedAt == nil || !stored.FirstResponseBreachedAt.Equal(at5h) {
		t.Fatalf("expected breach recorded at scan time, got %v", stored.FirstResponseBreachedAt)
	}

	result, err = scanner.Scan(context.Background(), baseTime.Add(25*time.Hour), false)
	if err != nil {
		t.Fatalf("scan at 25h: %v", err)
	}
	if result.FirstResponseBreaches != 0 || result.ResolutionBreaches != 1 {
		t.Fatalf("expected only the resolution breach at 25h, got %+v", result)
	}
	if got := len(f.dispatcher.ofType(events.EventTicketSLABreached)); got != 2 {
		t.Fatalf("expected two breach events, got %d", got)
	}
}

func TestScanIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	scanner := newScanner(f, nil)
	f.createTicket(t, domain.TicketPriorityUrgent)
	f.createTicket(t, domain.TicketPriorityUrgent)

	now := baseTime.Add(10 * time.Hour)
	first, err := scanner.Scan(context.Background(), now, false)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if first.FirstResponseBreaches != 2 || first.ResolutionBreaches != 2 {
		t.Fatalf("expected both tickets breached twice over, got %+v", first)
	}
	second, err := scanner.Scan(context.Background(), now.Add(time.Hour), false)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if second.FirstResponseBreaches != 0 || second.ResolutionBreaches != 0 {
		t.Fatalf("rescan must not mark again, got %+v", second)
	}
}

func TestCancelledAfterResponseScenario(t *testing.T) {
	f := newFixture(t, nil)
	scanner := newScanner(f, nil)
	ticket := f.createTicket(t, domain.TicketPriorityHigh)
	agent := staffActor(agentID, domain.StaffRoleAgent)

	f.clock.Advance(time.Hour)
	if _, err := f.tickets.ChangeStatus(context.Background(), agent, ticket.ID, StatusChangeInput{Status: domain.TicketStatusOpen}); err != nil {
		t.Fatalf("open: %v", err)
	}
	f.clock.Advance(time.Hour)
	if _, err := f.tickets.ChangeStatus(context.Background(), clientActor(clientID), ticket.ID, StatusChangeInput{Status: domain.TicketStatusCancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	result, err := scanner.Scan(context.Background(), baseTime.Add(48*time.Hour), false)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.FirstResponseBreaches != 0 || result.ResolutionBreaches != 0 {
		t.Fatalf("cancelled ticket must never breach, got %+v", result)
	}
	stored := f.stored(t, ticket.ID)
	if stored.BreachReported(domain.SLAFirstResponse) || stored.BreachReported(domain.SLAResolution) {
		t.Fatalf("cancelled ticket must not report a breach")
	}
}

func TestTerminalTicketsAreExcluded(t *testing.T) {
	f := newFixture(t, nil)
	scanner := newScanner(f, nil)
	for _, status := range []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusClosed, domain.TicketStatusCancelled} {
		ticket := f.createTicket(t, domain.TicketPriorityUrgent)
		f.setStatus(t, ticket.ID, status)
	}
	result, err := scanner.Scan(context.Background(), baseTime.Add(72*time.Hour), false)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.FirstResponseBreaches != 0 || result.ResolutionBreaches != 0 {
		t.Fatalf("terminal tickets must be skipped, got %+v", result)
	}
}

func TestOnHoldDoesNotPauseClocks(t *testing.T) {
	f := newFixture(t, nil)
	scanner := newScanner(f, nil)
	ticket := f.createTicket(t, domain.TicketPriorityUrgent)
	f.setStatus(t, ticket.ID, domain.TicketStatusOnHold)

	result, err := scanner.Scan(context.Background(), baseTime.Add(2*time.Hour), false)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.FirstResponseBreaches != 1 {
		t.Fatalf("on_hold ticket must still breach, got %+v", result)
	}
}

func TestDryRunCountsWithoutMarking(t *testing.T) {
	f := newFixture(t, nil)
	metrics := observability.NewMetrics()
	scanner := newScanner(f, metrics)
	ticket := f.createTicket(t, domain.TicketPriorityUrgent)

	result, err := scanner.Scan(context.Background(), baseTime.Add(2*time.Hour), true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !result.DryRun || result.FirstResponseBreaches != 1 {
		t.Fatalf("unexpected dry run result %+v", result)
	}
	if stored := f.stored(t, ticket.ID); stored.FirstResponseBreachedAt != nil {
		t.Fatalf("dry run must not mark")
	}
	if got := len(f.dispatcher.ofType(events.EventTicketSLABreached)); got != 0 {
		t.Fatalf("dry run must not publish, got %d", got)
	}
	stats := metrics.Snapshot().Scans
	if stats.DryRuns != 1 || stats.FirstResponseBreaches != 0 {
		t.Fatalf("dry run must not add to breach totals, got %+v", stats)
	}
}

func TestConcurrentScansMarkEachTicketOnce(t *testing.T) {
	f := newFixture(t, nil)
	scanner := newScanner(f, nil)
	const tickets = 20
	for i := 0; i < tickets; i++ {
		f.createTicket(t, domain.TicketPriorityUrgent)
	}

	now := baseTime.Add(2 * time.Hour)
	const workers = 4
	results := make([]ScanResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := scanner.Scan(context.Background(), now, false)
			if err != nil {
				t.Errorf("scan %d: %v", i, err)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	total := 0
	for _, res := range results {
		total += res.FirstResponseBreaches
	}
	if total != tickets {
		t.Fatalf("expected %d breaches across concurrent scans, got %d", tickets, total)
	}
	if got := len(f.dispatcher.ofType(events.EventTicketSLABreached)); got != tickets {
		t.Fatalf("expected %d breach events, got %d", tickets, got)
	}
	breached := domain.SLAFirstResponse
	list, err := f.store.Repositories().Tickets.List(context.Background(), repository.TicketFilter{Breached: &breached, Limit: 100})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != tickets {
		t.Fatalf("expected %d breached tickets, got %d", tickets, len(list))
	}
}

var errCandidateQuery = errors.New("candidate query failed")

// brokenDimensionStore fails candidate lookups for one SLA dimension.
type brokenDimensionStore struct {
	*repository.MemoryStore
	broken domain.SLADimension
}

type brokenCandidates struct {
	repository.TicketRepository
	broken domain.SLADimension
}

func (b brokenCandidates) FindBreachCandidates(ctx context.Context, dim domain.SLADimension, now time.Time) ([]domain.Ticket, error) {
	if dim == b.broken {
		return nil, errCandidateQuery
	}
	return b.TicketRepository.FindBreachCandidates(ctx, dim, now)
}

func (s brokenDimensionStore) Repositories() repository.Repositories {
	repos := s.MemoryStore.Repositories()
	repos.Tickets = brokenCandidates{TicketRepository: repos.Tickets, broken: s.broken}
	return repos
}

func TestStorageFailureInOneDimensionDoesNotStopTheOther(t *testing.T) {
	f := newFixture(t, nil)
	f.createTicket(t, domain.TicketPriorityUrgent)
	metrics := observability.NewMetrics()
	scanner := NewBreachScanner(BreachScannerDependencies{
		Store:   brokenDimensionStore{MemoryStore: f.store, broken: domain.SLAFirstResponse},
		Metrics: metrics,
		Now:     f.clock.Now,
	})

	result, err := scanner.Scan(context.Background(), baseTime.Add(10*time.Hour), false)
	var storageErr *domain.ScanStorageError
	if !errors.As(err, &storageErr) || storageErr.Dimension != domain.SLAFirstResponse {
		t.Fatalf("expected ScanStorageError for first_response, got %v", err)
	}
	if !errors.Is(err, errCandidateQuery) {
		t.Fatalf("expected the storage cause to be wrapped")
	}
	if result.ResolutionBreaches != 1 {
		t.Fatalf("resolution dimension must still be scanned, got %+v", result)
	}
	if metrics.Snapshot().Scans.FailedRuns != 1 {
		t.Fatalf("expected the run to count as failed")
	}
}

// interleavingStore runs afterSelect once, right after the candidate query
// for dim returns and before the scanner's guarded write.
type interleavingStore struct {
	*repository.MemoryStore
	dim         domain.SLADimension
	afterSelect func()
	once        *sync.Once
}

type interleavingCandidates struct {
	repository.TicketRepository
	store interleavingStore
}

func (r interleavingCandidates) FindBreachCandidates(ctx context.Context, dim domain.SLADimension, now time.Time) ([]domain.Ticket, error) {
	candidates, err := r.TicketRepository.FindBreachCandidates(ctx, dim, now)
	if err == nil && dim == r.store.dim {
		r.store.once.Do(r.store.afterSelect)
	}
	return candidates, err
}

func (s interleavingStore) Repositories() repository.Repositories {
	repos := s.MemoryStore.Repositories()
	repos.Tickets = interleavingCandidates{TicketRepository: repos.Tickets, store: s}
	return repos
}

func TestTicketClosedBetweenSelectAndWriteIsNotMarked(t *testing.T) {
	for _, target := range []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusCancelled} {
		t.Run(string(target), func(t *testing.T) {
			f := newFixture(t, nil)
			ticket := f.createTicket(t, domain.TicketPriorityUrgent)

			var changeErr error
			store := interleavingStore{
				MemoryStore: f.store,
				dim:         domain.SLAResolution,
				once:        &sync.Once{},
				afterSelect: func() {
					_, changeErr = f.tickets.ChangeStatus(context.Background(), staffActor(agentID, domain.StaffRoleAgent), ticket.ID,
						StatusChangeInput{Status: target})
				},
			}
			scanner := NewBreachScanner(BreachScannerDependencies{Store: store, Dispatcher: f.dispatcher, Now: f.clock.Now})

			result, err := scanner.Scan(context.Background(), baseTime.Add(10*time.Hour), false)
			if err != nil {
				t.Fatalf("scan: %v", err)
			}
			if changeErr != nil {
				t.Fatalf("status change during scan: %v", changeErr)
			}
			if result.ResolutionBreaches != 0 {
				t.Fatalf("expected no resolution breach counted, got %+v", result)
			}
			stored := f.stored(t, ticket.ID)
			if stored.Status != target {
				t.Fatalf("expected status %s, got %s", target, stored.Status)
			}
			if stored.ResolutionBreachedAt != nil {
				t.Fatalf("expected resolution_breached_at to stay nil, got %v", stored.ResolutionBreachedAt)
			}
			for _, event := range f.dispatcher.ofType(events.EventTicketSLABreached) {
				if payload, ok := event.Payload.(events.TicketSLABreachedPayload); ok && payload.Dimension == domain.SLAResolution {
					t.Fatalf("unexpected resolution breach event")
				}
			}
		})
	}
}
