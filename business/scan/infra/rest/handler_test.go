package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/teuchmannluca/storefront-scanner/business/scan/app"
	"github.com/teuchmannluca/storefront-scanner/business/scan/domain"
	"github.com/teuchmannluca/storefront-scanner/internal/apperror"
	"github.com/teuchmannluca/storefront-scanner/internal/logger"
)

type fakeService struct {
	scanID    string
	emitter   *app.Emitter
	startErr  error
	snapshot  *domain.SessionSnapshot
	opps      []*domain.Opportunity
	cancelled []string
	owner     string
	scope     app.Scope
}

func (f *fakeService) StartScan(ctx context.Context, owner string, scope app.Scope) (string, *app.Emitter, error) {
	if f.startErr != nil {
		return "", nil, f.startErr
	}
	f.owner = owner
	f.scope = scope
	return f.scanID, f.emitter, nil
}

func (f *fakeService) Stream(scanID string) (<-chan app.ProgressEvent, error) {
	if f.emitter == nil || scanID != f.scanID {
		return nil, apperror.NotFound(apperror.CodeScanNotFound, scanID)
	}
	return f.emitter.Attach(16), nil
}

func (f *fakeService) Cancel(scanID string) error {
	f.cancelled = append(f.cancelled, scanID)
	return nil
}

func (f *fakeService) Status(ctx context.Context, scanID string) (*domain.SessionSnapshot, error) {
	if f.snapshot == nil {
		return nil, apperror.NotFound(apperror.CodeScanNotFound, scanID)
	}
	return f.snapshot, nil
}

func (f *fakeService) Opportunities(ctx context.Context, scanID string) ([]*domain.Opportunity, error) {
	return f.opps, nil
}

type allowAll struct{}

func (allowAll) Verify(ctx context.Context, token string) (string, error) { return "user-1", nil }

type denyAll struct{}

func (denyAll) Verify(ctx context.Context, token string) (string, error) {
	return "", apperror.Unauthorized("bad token")
}

func newTestServer(t *testing.T, svc ScanService, identity app.IdentityVerifier) *httptest.Server {
	t.Helper()
	h := NewHandler(svc, identity, logger.Nop())
	r := chi.NewRouter()
	h.Routes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func authedRequest(t *testing.T, method, url, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandler_MissingTokenRejected(t *testing.T) {
	server := newTestServer(t, &fakeService{}, allowAll{})

	resp, err := http.Post(server.URL+"/api/v1/scans", "application/json",
		strings.NewReader(`{"storefront_ids":["sf-1"]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestHandler_RejectedTokenIs401(t *testing.T) {
	server := newTestServer(t, &fakeService{}, denyAll{})

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodPost,
		server.URL+"/api/v1/scans", `{"storefront_ids":["sf-1"]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestHandler_StartScanValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty scope", `{}`, http.StatusBadRequest},
		{"mixed selectors", `{"storefront_ids":["sf-1"],"all_storefronts":true}`, http.StatusBadRequest},
		{"storefront set", `{"storefront_ids":["sf-1","sf-2"]}`, http.StatusAccepted},
		{"all storefronts", `{"all_storefronts":true}`, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{scanID: "scan-1", emitter: app.NewEmitter("scan-1", 16, logger.Nop())}
			server := newTestServer(t, svc, allowAll{})

			resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodPost,
				server.URL+"/api/v1/scans?stream=false", tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestHandler_AllStorefrontsScopeReachesService(t *testing.T) {
	svc := &fakeService{scanID: "scan-1", emitter: app.NewEmitter("scan-1", 16, logger.Nop())}
	server := newTestServer(t, svc, allowAll{})

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodPost,
		server.URL+"/api/v1/scans?stream=false", `{"all_storefronts":true}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !svc.scope.All() {
		t.Errorf("scope = %+v, want all-storefronts", svc.scope)
	}
}

func TestHandler_SSEStreamEndsWithTerminalEvent(t *testing.T) {
	emitter := app.NewEmitter("scan-1", 16, logger.Nop())
	svc := &fakeService{scanID: "scan-1", emitter: emitter}
	server := newTestServer(t, svc, allowAll{})

	go func() {
		ctx := context.Background()
		emitter.Emit(ctx, app.ProgressEvent{Type: app.EventStarted})
		emitter.Emit(ctx, app.ProgressEvent{Type: app.EventProgress, Percent: 50})
		emitter.Emit(ctx, app.ProgressEvent{
			Type: app.EventFinished, Percent: 100, Status: domain.StatusCompleted,
		})
	}()

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodPost,
		server.URL+"/api/v1/scans", `{"storefront_ids":["sf-1"]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if got := resp.Header.Get("X-Scan-ID"); got != "scan-1" {
		t.Errorf("X-Scan-ID = %q", got)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	text := string(body)

	for _, want := range []string{"event: started", "event: progress", "event: finished"} {
		if !strings.Contains(text, want) {
			t.Errorf("stream missing %q:\n%s", want, text)
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(text), "}") {
		t.Errorf("stream does not end with a data payload:\n%s", text)
	}
	frames := strings.Split(strings.TrimSpace(text), "\n\n")
	if !strings.Contains(frames[len(frames)-1], "event: finished") {
		t.Errorf("last frame is not the terminal event: %q", frames[len(frames)-1])
	}
}

func TestHandler_StartScanWithoutStream(t *testing.T) {
	svc := &fakeService{scanID: "scan-9", emitter: app.NewEmitter("scan-9", 16, logger.Nop())}
	server := newTestServer(t, svc, allowAll{})

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodPost,
		server.URL+"/api/v1/scans?stream=false", `{"storefront_ids":["sf-1"]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["scan_id"] != "scan-9" {
		t.Errorf("scan_id = %q, want scan-9", out["scan_id"])
	}
	if svc.owner != "user-1" {
		t.Errorf("owner = %q, want verified user-1", svc.owner)
	}
	if len(svc.scope.StorefrontIDs) != 1 || svc.scope.StorefrontIDs[0] != "sf-1" {
		t.Errorf("scope = %+v, want storefront sf-1", svc.scope)
	}
}

func TestHandler_WebsocketAttachStreamsUntilTerminal(t *testing.T) {
	emitter := app.NewEmitter("scan-5", 16, logger.Nop())
	svc := &fakeService{scanID: "scan-5", emitter: emitter}
	server := newTestServer(t, svc, allowAll{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := strings.Replace(server.URL, "http://", "ws://", 1) +
		"/api/v1/scans/scan-5/stream?transport=ws"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer test-token"}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	go func() {
		emitter.Emit(ctx, app.ProgressEvent{Type: app.EventProgress, Percent: 50})
		emitter.Emit(ctx, app.ProgressEvent{
			Type: app.EventFinished, Percent: 100, Status: domain.StatusCompleted,
		})
	}()

	var got []app.ProgressEvent
	for {
		var ev app.ProgressEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			t.Fatalf("read: %v", err)
		}
		got = append(got, ev)
		if ev.IsTerminal() {
			break
		}
	}
	if len(got) != 2 || got[len(got)-1].Type != app.EventFinished {
		t.Errorf("events = %+v, want progress then finished", got)
	}
}

func TestHandler_AttachStreamUnknownScan(t *testing.T) {
	server := newTestServer(t, &fakeService{}, allowAll{})

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodGet,
		server.URL+"/api/v1/scans/missing/stream", ""))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandler_GetScanSnapshot(t *testing.T) {
	svc := &fakeService{
		snapshot: &domain.SessionSnapshot{
			ID:             "scan-7",
			Status:         domain.StatusRunning,
			TotalUnits:     40,
			ProcessedUnits: 12,
			StartedAt:      time.Now(),
		},
		opps: []*domain.Opportunity{{ScanID: "scan-7", ASIN: "B001"}},
	}
	server := newTestServer(t, svc, allowAll{})

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodGet,
		server.URL+"/api/v1/scans/scan-7", ""))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out scanStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Session.ID != "scan-7" || out.Session.ProcessedUnits != 12 {
		t.Errorf("session = %+v", out.Session)
	}
	if len(out.Opportunities) != 1 || out.Opportunities[0].ASIN != "B001" {
		t.Errorf("opportunities = %+v", out.Opportunities)
	}
}

func TestHandler_GetScanNotFound(t *testing.T) {
	server := newTestServer(t, &fakeService{}, allowAll{})

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodGet,
		server.URL+"/api/v1/scans/missing", ""))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandler_CancelScan(t *testing.T) {
	svc := &fakeService{}
	server := newTestServer(t, svc, allowAll{})

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodPost,
		server.URL+"/api/v1/scans/scan-3/cancel", ""))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
	if len(svc.cancelled) != 1 || svc.cancelled[0] != "scan-3" {
		t.Errorf("cancelled = %v, want [scan-3]", svc.cancelled)
	}
}
