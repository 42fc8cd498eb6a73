package call

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	callmodel "github.com/zhouzirui/helpline/backend/internal/model/call"
	"github.com/zhouzirui/helpline/backend/internal/service/ai"
	callservice "github.com/zhouzirui/helpline/backend/internal/service/call"
)

type stubTransport struct {
	mu     sync.Mutex
	sent   []any
	closed bool
}

func (t *stubTransport) SendJSON(v any) error {
	t.mu.Lock()
	t.sent = append(t.sent, v)
	t.mu.Unlock()
	return nil
}

func (t *stubTransport) SendText([]byte) error { return nil }

func (t *stubTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

type stubAISession struct{}

func (stubAISession) SendAudio([]byte, string) error { return nil }
func (stubAISession) SendText(string) error          { return nil }
func (stubAISession) Close() error                   { return nil }

type stubDialer struct{}

func (stubDialer) Dial(context.Context, ai.Callbacks) (ai.Session, error) {
	return stubAISession{}, nil
}

func setupRouter(dialer ai.Dialer) (*chi.Mux, *callservice.Service) {
	svc := callservice.NewService(callservice.NewRegistry(), dialer, callservice.DefaultOptions())
	handler := New(svc)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, svc
}

func TestListWaitingEmpty(t *testing.T) {
	r, _ := setupRouter(stubDialer{})

	req := httptest.NewRequest(http.MethodGet, "/callers/waiting", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		Callers []callmodel.WaitingCaller `json:"callers"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if len(body.Callers) != 0 {
		t.Fatalf("expected empty list, got %+v", body.Callers)
	}
}

func TestListWaitingIncludesCaller(t *testing.T) {
	r, svc := setupRouter(stubDialer{})
	sess := svc.Connect(&stubTransport{}, callmodel.Metadata{Name: "Ada"})

	req := httptest.NewRequest(http.MethodGet, "/callers/waiting", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var body struct {
		Callers []callmodel.WaitingCaller `json:"callers"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if len(body.Callers) != 1 || body.Callers[0].ID != sess.ID {
		t.Fatalf("expected caller %s in list, got %+v", sess.ID, body.Callers)
	}
}

func TestAcceptUnknownCallerReturns400(t *testing.T) {
	r, _ := setupRouter(stubDialer{})

	req := httptest.NewRequest(http.MethodPost, "/callers/nope/accept", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestAcceptWaitingCaller(t *testing.T) {
	r, svc := setupRouter(stubDialer{})
	sess := svc.Connect(&stubTransport{}, callmodel.Metadata{})

	req := httptest.NewRequest(http.MethodPost, "/callers/"+sess.ID+"/accept", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if sess.Status() != callmodel.StatusConnected {
		t.Fatalf("expected caller to be connected, got %s", sess.Status())
	}
}

func TestAcceptWithoutBackendReturns400(t *testing.T) {
	r, svc := setupRouter(nil)
	sess := svc.Connect(&stubTransport{}, callmodel.Metadata{})

	req := httptest.NewRequest(http.MethodPost, "/callers/"+sess.ID+"/accept", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if sess.Status() != callmodel.StatusWaiting {
		t.Fatalf("expected caller to keep waiting, got %s", sess.Status())
	}
}

func TestRejectWaitingCaller(t *testing.T) {
	r, svc := setupRouter(stubDialer{})
	sess := svc.Connect(&stubTransport{}, callmodel.Metadata{})

	req := httptest.NewRequest(http.MethodPost, "/callers/"+sess.ID+"/reject", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if len(svc.Waiting()) != 0 {
		t.Fatal("rejected caller must leave the waiting list")
	}
}

func TestRejectConnectedCallerReturns400(t *testing.T) {
	r, svc := setupRouter(stubDialer{})
	sess := svc.Connect(&stubTransport{}, callmodel.Metadata{})
	if err := svc.Accept(context.Background(), sess.ID); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/callers/"+sess.ID+"/reject", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
