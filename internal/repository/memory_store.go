package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// MemoryStore is an in-process Store used when no database is configured and
// in tests. Transactions are serialized and applied by swapping in a
// modified copy of the state on success.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

type memoryState struct {
	tickets     map[string]*domain.Ticket
	comments    []domain.Comment
	attachments map[string]domain.Attachment
	policies    []domain.SLAPolicy
	history     []domain.TicketHistory
}

// NewMemoryStore builds an empty store seeded with the given policies.
func NewMemoryStore(policies ...domain.SLAPolicy) *MemoryStore {
	state := &memoryState{
		tickets:     map[string]*domain.Ticket{},
		attachments: map[string]domain.Attachment{},
	}
	for _, policy := range policies {
		if policy.ID == "" {
			policy.ID = uuid.NewString()
		}
		state.policies = append(state.policies, policy)
	}
	return &MemoryStore{state: state}
}

func (s *MemoryStore) Repositories() Repositories {
	return s.bind(nil)
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(repos Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(s.bind(work)); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) bind(tx *memoryState) Repositories {
	conn := &memoryConn{store: s, tx: tx}
	return Repositories{
		Tickets:     &memoryTicketRepository{conn},
		Comments:    &memoryCommentRepository{conn},
		Attachments: &memoryAttachmentRepository{conn},
		Policies:    &memoryPolicyRepository{conn},
		History:     &memoryHistoryRepository{conn},
	}
}

func (st *memoryState) clone() *memoryState {
	out := &memoryState{
		tickets:     make(map[string]*domain.Ticket, len(st.tickets)),
		comments:    append([]domain.Comment(nil), st.comments...),
		attachments: make(map[string]domain.Attachment, len(st.attachments)),
		policies:    append([]domain.SLAPolicy(nil), st.policies...),
		history:     append([]domain.TicketHistory(nil), st.history...),
	}
	for id, ticket := range st.tickets {
		out.tickets[id] = ticket.Clone()
	}
	for id, attachment := range st.attachments {
		out.attachments[id] = attachment
	}
	return out
}

// memoryConn resolves the state a repository call operates on: the open
// transaction's working copy, or the committed state under the store lock.
type memoryConn struct {
	store *MemoryStore
	tx    *memoryState
}

func (c *memoryConn) view(ctx context.Context, fn func(st *memoryState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.tx != nil {
		return fn(c.tx)
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return fn(c.store.state)
}

type memoryTicketRepository struct{ conn *memoryConn }

func (r *memoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	return r.conn.view(ctx, func(st *memoryState) error {
		if ticket.ID == "" {
			ticket.ID = uuid.NewString()
		}
		st.tickets[ticket.ID] = ticket.Clone()
		return nil
	})
}

func (r *memoryTicketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	return r.conn.view(ctx, func(st *memoryState) error {
		current, ok := st.tickets[ticket.ID]
		if !ok {
			return ErrNotFound
		}
		next := ticket.Clone()
		if current.FirstResponseBreachedAt != nil {
			next.FirstResponseBreachedAt = current.FirstResponseBreachedAt
		}
		if current.ResolutionBreachedAt != nil {
			next.ResolutionBreachedAt = current.ResolutionBreachedAt
		}
		st.tickets[ticket.ID] = next
		return nil
	})
}

func (r *memoryTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.conn.view(ctx, func(st *memoryState) error {
		ticket, ok := st.tickets[id]
		if !ok {
			return ErrNotFound
		}
		out = ticket.Clone()
		return nil
	})
	return out, err
}

func (r *memoryTicketRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryTicketRepository) GetByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.conn.view(ctx, func(st *memoryState) error {
		for _, ticket := range st.tickets {
			if ticket.Code == code {
				out = ticket.Clone()
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (r *memoryTicketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.conn.view(ctx, func(st *memoryState) error {
		for _, ticket := range st.tickets {
			if matchesFilter(ticket, filter) {
				out = append(out, *ticket.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesFilter(ticket *domain.Ticket, filter TicketFilter) bool {
	if filter.ClientID != nil && ticket.ClientID != *filter.ClientID {
		return false
	}
	if filter.AssigneeID != nil && (ticket.AssigneeID == nil || *ticket.AssigneeID != *filter.AssigneeID) {
		return false
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
		return false
	}
	if len(filter.Priorities) > 0 {
		found := false
		for _, p := range filter.Priorities {
			if p == ticket.Priority {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Breached != nil && !ticket.BreachReported(*filter.Breached) {
		return false
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if !strings.Contains(strings.ToLower(ticket.Title), term) &&
			!strings.Contains(strings.ToLower(ticket.Description), term) {
			return false
		}
	}
	return true
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (r *memoryTicketRepository) FindBreachCandidates(ctx context.Context, dim domain.SLADimension, now time.Time) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.conn.view(ctx, func(st *memoryState) error {
		for _, ticket := range st.tickets {
			if ticket.IsBreachCandidate(dim, now) {
				out = append(out, *ticket.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].DueAt(dim).Before(*out[j].DueAt(dim))
	})
	return out, err
}

func (r *memoryTicketRepository) MarkBreached(ctx context.Context, dim domain.SLADimension, now time.Time, ids []string) ([]string, error) {
	var marked []string
	err := r.conn.view(ctx, func(st *memoryState) error {
		for _, id := range ids {
			ticket, ok := st.tickets[id]
			if !ok {
				continue
			}
			if ticket.MarkBreached(dim, now) {
				marked = append(marked, id)
			}
		}
		return nil
	})
	return marked, err
}

type memoryCommentRepository struct{ conn *memoryConn }

func (r *memoryCommentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	return r.conn.view(ctx, func(st *memoryState) error {
		if comment.ID == "" {
			comment.ID = uuid.NewString()
		}
		st.comments = append(st.comments, *comment)
		return nil
	})
}

func (r *memoryCommentRepository) ListByTicket(ctx context.Context, ticketID string, includeInternal bool) ([]domain.Comment, error) {
	var out []domain.Comment
	err := r.conn.view(ctx, func(st *memoryState) error {
		for _, comment := range st.comments {
			if comment.TicketID != ticketID {
				continue
			}
			if !includeInternal && comment.Visibility != domain.VisibilityPublic {
				continue
			}
			out = append(out, comment)
		}
		return nil
	})
	return out, err
}

type memoryAttachmentRepository struct{ conn *memoryConn }

func (r *memoryAttachmentRepository) Create(ctx context.Context, attachment *domain.Attachment) error {
	return r.conn.view(ctx, func(st *memoryState) error {
		if attachment.ID == "" {
			attachment.ID = uuid.NewString()
		}
		st.attachments[attachment.ID] = *attachment
		return nil
	})
}

func (r *memoryAttachmentRepository) GetByID(ctx context.Context, id string) (*domain.Attachment, error) {
	var out *domain.Attachment
	err := r.conn.view(ctx, func(st *memoryState) error {
		attachment, ok := st.attachments[id]
		if !ok {
			return ErrNotFound
		}
		out = &attachment
		return nil
	})
	return out, err
}

func (r *memoryAttachmentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Attachment, error) {
	var out []domain.Attachment
	err := r.conn.view(ctx, func(st *memoryState) error {
		for _, attachment := range st.attachments {
			if attachment.TicketID == ticketID {
				out = append(out, attachment)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r *memoryAttachmentRepository) Delete(ctx context.Context, id string) error {
	return r.conn.view(ctx, func(st *memoryState) error {
		if _, ok := st.attachments[id]; !ok {
			return ErrNotFound
		}
		delete(st.attachments, id)
		return nil
	})
}

type memoryPolicyRepository struct{ conn *memoryConn }

func (r *memoryPolicyRepository) List(ctx context.Context) ([]domain.SLAPolicy, error) {
	var out []domain.SLAPolicy
	err := r.conn.view(ctx, func(st *memoryState) error {
		out = append(out, st.policies...)
		return nil
	})
	return out, err
}

func (r *memoryPolicyRepository) ListActive(ctx context.Context) ([]domain.SLAPolicy, error) {
	var out []domain.SLAPolicy
	err := r.conn.view(ctx, func(st *memoryState) error {
		for _, policy := range st.policies {
			if policy.Active {
				out = append(out, policy)
			}
		}
		return nil
	})
	return out, err
}

func (r *memoryPolicyRepository) FindActive(ctx context.Context, priority domain.TicketPriority, clientTier string) ([]domain.SLAPolicy, error) {
	var out []domain.SLAPolicy
	err := r.conn.view(ctx, func(st *memoryState) error {
		for _, policy := range st.policies {
			if policy.Active && policy.Priority == priority && policy.ClientTier == clientTier {
				out = append(out, policy)
			}
		}
		return nil
	})
	return out, err
}

func (r *memoryPolicyRepository) Upsert(ctx context.Context, policy *domain.SLAPolicy) error {
	return r.conn.view(ctx, func(st *memoryState) error {
		now := time.Now().UTC()
		for i, existing := range st.policies {
			if existing.Priority == policy.Priority && existing.ClientTier == policy.ClientTier {
				policy.ID = existing.ID
				policy.CreatedAt = existing.CreatedAt
				policy.UpdatedAt = now
				st.policies[i] = *policy
				return nil
			}
		}
		if policy.ID == "" {
			policy.ID = uuid.NewString()
		}
		policy.CreatedAt, policy.UpdatedAt = now, now
		st.policies = append(st.policies, *policy)
		return nil
	})
}

type memoryHistoryRepository struct{ conn *memoryConn }

func (r *memoryHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	return r.conn.view(ctx, func(st *memoryState) error {
		if history.ID == "" {
			history.ID = uuid.NewString()
		}
		st.history = append(st.history, *history)
		return nil
	})
}

func (r *memoryHistoryRepository) ListByTicket(ctx context.Context, ticketID string, changeTypes ...domain.TicketChangeType) ([]domain.TicketHistory, error) {
	var out []domain.TicketHistory
	err := r.conn.view(ctx, func(st *memoryState) error {
		for _, entry := range st.history {
			if entry.TicketID == ticketID && matchesChangeType(entry.ChangeType, changeTypes) {
				out = append(out, entry)
			}
		}
		return nil
	})
	return out, err
}

func matchesChangeType(changeType domain.TicketChangeType, wanted []domain.TicketChangeType) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, candidate := range wanted {
		if candidate == changeType {
			return true
		}
	}
	return false
}
