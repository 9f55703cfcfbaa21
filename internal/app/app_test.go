package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

const (
	testClientID = "1d6c4c1e-6b6a-4c8e-9f1d-2a3b4c5d6e70"
	testAgentID  = "1d6c4c1e-6b6a-4c8e-9f1d-2a3b4c5d6e71"
	testAdminID  = "1d6c4c1e-6b6a-4c8e-9f1d-2a3b4c5d6e72"
)

type harness struct {
	t      *testing.T
	app    *App
	server *fiber.App
	mu     sync.Mutex
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	cfg := &config.Config{
		App:         config.AppConfig{Name: "helpdesk-test", Version: "test"},
		Auth:        config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 60},
		SLA:         config.SLAConfig{ScanIntervalSeconds: 60, ScanCooldownSeconds: 600, ScanLockKey: "test:sla"},
		Attachments: config.AttachmentConfig{MaxSizeBytes: 32, AllowedTypes: []string{"text/plain"}},
	}
	application, err := New(context.Background(), cfg, zap.NewNop(), Options{Now: h.clock})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(application.Close)
	h.app = application
	h.server = application.HTTP()
	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) token(subject domain.SubjectType, id string, role domain.StaffRole) string {
	h.t.Helper()
	var rolePtr *domain.StaffRole
	if subject == domain.SubjectTypeStaff {
		rolePtr = &role
	}
	token, _, err := h.app.Tokens.GenerateToken(id, subject, rolePtr)
	if err != nil {
		h.t.Fatalf("token: %v", err)
	}
	return token
}

func (h *harness) do(method, path, token string, body any) (int, map[string]any) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return h.send(req)
}

func (h *harness) send(req *http.Request) (int, map[string]any) {
	h.t.Helper()
	resp, err := h.server.Test(req, -1)
	if err != nil {
		h.t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

func errorCodeOf(body map[string]any) string {
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func (h *harness) createTicket(token string, priority domain.TicketPriority) string {
	h.t.Helper()
	status, body := h.do(http.MethodPost, "/api/v1/tickets", token, map[string]any{
		"title": "Cannot log in", "description": "since this morning", "priority": priority,
	})
	if status != http.StatusCreated {
		h.t.Fatalf("create ticket: status %d body %v", status, body)
	}
	data := body["data"].(map[string]any)
	return data["id"].(string)
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	client := h.token(domain.SubjectTypeClient, testClientID, "")
	agent := h.token(domain.SubjectTypeStaff, testAgentID, domain.StaffRoleAgent)

	if status, _ := h.do(http.MethodGet, "/api/v1/tickets", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	id := h.createTicket(client, domain.TicketPriorityHigh)

	status, body := h.do(http.MethodPost, "/api/v1/tickets/"+id+"/status", client, map[string]any{"status": "resolved"})
	if status != http.StatusForbidden {
		t.Fatalf("client resolve: expected 403, got %d %v", status, body)
	}

	status, body = h.do(http.MethodPost, "/api/v1/tickets/"+id+"/status", agent, map[string]any{"status": "pending_customer"})
	if status != http.StatusConflict || errorCodeOf(body) != "INVALID_TRANSITION" {
		t.Fatalf("expected INVALID_TRANSITION 409, got %d %v", status, body)
	}

	status, body = h.do(http.MethodPost, "/api/v1/tickets/"+id+"/comments", agent, map[string]any{"body": "Please send logs", "await_customer": true})
	if status != http.StatusCreated {
		t.Fatalf("comment: %d %v", status, body)
	}
	ticket := body["data"].(map[string]any)["ticket"].(map[string]any)
	if ticket["status"] != string(domain.TicketStatusPendingCustomer) {
		t.Fatalf("expected pending_customer after await comment, got %v", ticket["status"])
	}

	status, body = h.do(http.MethodPost, "/api/v1/tickets/"+id+"/comments", client, map[string]any{"body": "logs attached"})
	if status != http.StatusCreated {
		t.Fatalf("client comment: %d %v", status, body)
	}
	ticket = body["data"].(map[string]any)["ticket"].(map[string]any)
	if ticket["status"] != string(domain.TicketStatusOpen) {
		t.Fatalf("expected client reply to reopen, got %v", ticket["status"])
	}

	if status, _ := h.do(http.MethodGet, "/api/v1/tickets/not-a-uuid", client, nil); status != http.StatusNotFound {
		t.Fatalf("malformed id: expected 404, got %d", status)
	}
	if status, _ := h.do(http.MethodPost, "/api/v1/tickets/"+id+"/priority", client, map[string]any{"priority": "urgent"}); status != http.StatusForbidden {
		t.Fatalf("client priority change: expected 403, got %d", status)
	}

	status, body = h.do(http.MethodGet, "/api/v1/tickets/"+id+"/history", agent, nil)
	if status != http.StatusOK {
		t.Fatalf("history: %d %v", status, body)
	}
	if entries := body["data"].([]any); len(entries) != 2 {
		t.Fatalf("expected two status history entries, got %d", len(entries))
	}

	status, body = h.do(http.MethodGet, "/api/v1/tickets/"+id+"/history?change_type=sla_breach", agent, nil)
	if status != http.StatusOK || len(body["data"].([]any)) != 0 {
		t.Fatalf("breach-only history: %d %v", status, body)
	}
	if status, _ := h.do(http.MethodGet, "/api/v1/tickets/"+id+"/history?change_type=bogus", agent, nil); status != http.StatusBadRequest {
		t.Fatalf("unknown change_type: expected 400, got %d", status)
	}
}

func TestBreachScanOverHTTP(t *testing.T) {
	h := newHarness(t)
	client := h.token(domain.SubjectTypeClient, testClientID, "")
	agent := h.token(domain.SubjectTypeStaff, testAgentID, domain.StaffRoleAgent)
	admin := h.token(domain.SubjectTypeStaff, testAdminID, domain.StaffRoleAdmin)

	h.createTicket(client, domain.TicketPriorityHigh)
	h.advance(5 * time.Hour)

	if status, _ := h.do(http.MethodPost, "/api/v1/sla/scan", agent, nil); status != http.StatusForbidden {
		t.Fatalf("agent scan: expected 403, got %d", status)
	}

	status, body := h.do(http.MethodPost, "/api/v1/sla/scan?dry_run=true", admin, nil)
	if status != http.StatusOK {
		t.Fatalf("dry run: %d %v", status, body)
	}
	data := body["data"].(map[string]any)
	if data["first_response_breaches"].(float64) != 1 || data["dry_run"] != true {
		t.Fatalf("unexpected dry run %v", data)
	}

	status, body = h.do(http.MethodPost, "/api/v1/sla/scan", admin, nil)
	if status != http.StatusOK {
		t.Fatalf("scan: %d %v", status, body)
	}
	if body["data"].(map[string]any)["first_response_breaches"].(float64) != 1 {
		t.Fatalf("expected one breach marked, got %v", body["data"])
	}

	status, body = h.do(http.MethodGet, "/api/v1/tickets?breached=first_response", agent, nil)
	if status != http.StatusOK || len(body["data"].([]any)) != 1 {
		t.Fatalf("breached filter: %d %v", status, body)
	}

	status, body = h.do(http.MethodGet, "/internal/metrics", "", nil)
	if status != http.StatusOK {
		t.Fatalf("metrics: %d", status)
	}
	scans := body["data"].(map[string]any)["sla_scans"].(map[string]any)
	if scans["runs"].(float64) != 2 || scans["first_response_breaches"].(float64) != 1 {
		t.Fatalf("unexpected scan stats %v", scans)
	}
}

func TestOversizedUploadIsRejected(t *testing.T) {
	h := newHarness(t)
	client := h.token(domain.SubjectTypeClient, testClientID, "")
	id := h.createTicket(client, domain.TicketPriorityLow)

	upload := func(content string) (int, map[string]any) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		part, err := writer.CreatePart(map[string][]string{
			"Content-Disposition": {`form-data; name="file"; filename="notes.txt"`},
			"Content-Type":        {"text/plain"},
		})
		if err != nil {
			t.Fatalf("multipart: %v", err)
		}
		_, _ = part.Write([]byte(content))
		_ = writer.Close()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tickets/"+id+"/attachments", &buf)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+client)
		return h.send(req)
	}

	status, body := upload(string(bytes.Repeat([]byte("x"), 64)))
	if status != http.StatusRequestEntityTooLarge || errorCodeOf(body) != "ATTACHMENT_TOO_LARGE" {
		t.Fatalf("expected 413, got %d %v", status, body)
	}

	status, body = upload("small")
	if status != http.StatusCreated {
		t.Fatalf("upload: %d %v", status, body)
	}
	attachmentID := body["data"].(map[string]any)["id"].(string)

	status, body = h.do(http.MethodGet, "/api/v1/tickets/"+id, client, nil)
	if status != http.StatusOK {
		t.Fatalf("detail: %d %v", status, body)
	}
	if atts := body["data"].(map[string]any)["attachments"].([]any); len(atts) != 1 {
		t.Fatalf("expected only the accepted attachment, got %d", len(atts))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attachments/"+attachmentID, nil)
	req.Header.Set("Authorization", "Bearer "+client)
	resp, err := h.server.Test(req, -1)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(raw) != "small" {
		t.Fatalf("download: %d %q", resp.StatusCode, raw)
	}
}

func TestReadinessWithoutOptionalBackends(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(http.MethodGet, "/health/ready", "", nil)
	if status != http.StatusOK {
		t.Fatalf("ready: %d %v", status, body)
	}
	deps := body["dependencies"].(map[string]any)
	if deps["postgres"] != "disabled" || deps["redis"] != "disabled" {
		t.Fatalf("unexpected dependency report %v", deps)
	}
}

func TestErrorsCarryRequestID(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tickets", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-123")
	resp, err := h.server.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get(fiber.HeaderXRequestID); got != "req-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"].(map[string]any)["request_id"] != "req-123" {
		t.Fatalf("expected request id in error body, got %v", body)
	}
}
