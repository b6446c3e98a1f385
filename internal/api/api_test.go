package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/basket/internal/models"
	"github.com/starford/basket/internal/optimizer"
	"github.com/starford/basket/internal/session"
	"github.com/starford/basket/internal/storage"
	"github.com/starford/basket/internal/testutil"
)

// optimizerStub answers optimize calls according to mode.
type optimizerStub struct {
	mode atomic.Value // "ok", "reject", "down"
}

func (o *optimizerStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mode, _ := o.mode.Load().(string)
	switch mode {
	case "reject":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false,"message":"No store carries these items"}`))
		return
	case "down":
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	var req optimizer.Request
	_ = json.NewDecoder(r.Body).Decode(&req)
	items := make([]map[string]any, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, map[string]any{"canonical_id": it.CanonicalID, "quantity": it.Quantity, "price": 2.0})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":          true,
		"message":          "ok",
		"allocations":      []map[string]any{{"store_id": 1, "store_name": "Corner", "items": items}},
		"total_cost":       4.0,
		"savings":          1.0,
		"savings_percent":  20.0,
		"total_worst_cost": 5.0,
	})
}

// testEnv sets up a SQLite store, a stub optimizer, a session manager and the router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*optimizerStub, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*optimizerStub, http.Handler) {
	t.Helper()

	store := testutil.TestStore(t, storage.DriverSQLite)

	stub := &optimizerStub{}
	stub.mode.Store("ok")
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	logger := testutil.Logger()
	mgr := session.NewManager(session.Deps{
		Store:        store,
		Optimizer:    optimizer.NewHTTPClient(optimizer.HTTPConfig{URL: srv.URL, Timeout: 2 * time.Second}, nil, logger),
		Logger:       logger,
		PersistDelay: 10 * time.Millisecond,
	})
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })

	return stub, NewRouter(mgr, authEnabled, token, sseHandler)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createList(t *testing.T, router http.Handler, body any) models.ListDraft {
	t.Helper()
	w := do(t, router, http.MethodPost, "/lists", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var d models.ListDraft
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatal(err)
	}
	return d
}

func decodeDraft(t *testing.T, w *httptest.ResponseRecorder) models.ListDraft {
	t.Helper()
	var d models.ListDraft
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v (body %s)", err, w.Body.String())
	}
	return d
}

func TestCreateAndGetList(t *testing.T) {
	_, router := testEnv(t, "")

	created := createList(t, router, map[string]any{
		"name":       "Weekly",
		"max_stores": 3,
		"items":      []map[string]any{{"canonical_id": 1, "product_name": "Milk", "quantity": 2}},
	})
	if created.ID == "" || created.MaxStores != 3 || len(created.Items) != 1 {
		t.Fatalf("unexpected created list: %+v", created)
	}

	w := do(t, router, http.MethodGet, "/lists/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decodeDraft(t, w)
	if got.Name != "Weekly" || got.Items[0].ProductName != "Milk" {
		t.Errorf("unexpected list: %+v", got)
	}
}

func TestCreateValidation(t *testing.T) {
	_, router := testEnv(t, "")

	cases := []any{
		map[string]any{"name": ""},
		map[string]any{"name": "x", "max_stores": 9},
		map[string]any{"name": "x", "items": []map[string]any{{"canonical_id": 0, "quantity": 1}}},
		map[string]any{"name": "x", "items": []map[string]any{{"canonical_id": 1, "quantity": -2}}},
	}
	for i, body := range cases {
		if w := do(t, router, http.MethodPost, "/lists", body); w.Code != http.StatusBadRequest {
			t.Errorf("case %d: status = %d, want 400", i, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/lists", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", w.Code)
	}
}

func TestListLists(t *testing.T) {
	_, router := testEnv(t, "")
	createList(t, router, map[string]any{"name": "A"})
	createList(t, router, map[string]any{"name": "B"})

	w := do(t, router, http.MethodGet, "/lists", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var resp ListsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || len(resp.Lists) != 2 {
		t.Errorf("total = %d, lists = %d, want 2", resp.Total, len(resp.Lists))
	}
}

func TestItemLifecycle(t *testing.T) {
	_, router := testEnv(t, "")
	d := createList(t, router, map[string]any{"name": "Weekly"})
	base := "/lists/" + d.ID + "/items"

	if w := do(t, router, http.MethodPost, base, map[string]any{"canonical_id": 5, "product_name": "Eggs", "quantity": 6}); w.Code != http.StatusOK {
		t.Fatalf("add = %d, body = %s", w.Code, w.Body.String())
	}
	w := do(t, router, http.MethodPatch, base+"/5", map[string]any{"quantity": 12, "is_checked": true})
	if w.Code != http.StatusOK {
		t.Fatalf("patch = %d, body = %s", w.Code, w.Body.String())
	}
	got := decodeDraft(t, w)
	if got.Items[0].Quantity != 12 || !got.Items[0].IsChecked {
		t.Errorf("unexpected item after patch: %+v", got.Items[0])
	}
	if got.DisplayStatus != models.StatusCompleted {
		t.Errorf("display status = %s, want completed", got.DisplayStatus)
	}

	if w := do(t, router, http.MethodPatch, base+"/5", map[string]any{"quantity": 0}); w.Code != http.StatusBadRequest {
		t.Errorf("zero quantity = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPatch, base+"/abc", map[string]any{"quantity": 1}); w.Code != http.StatusBadRequest {
		t.Errorf("bad canonical id = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodDelete, base+"/77", nil); w.Code != http.StatusNotFound {
		t.Errorf("remove missing = %d, want 404", w.Code)
	}
	w = do(t, router, http.MethodDelete, base+"/5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove = %d", w.Code)
	}
	if got := decodeDraft(t, w); len(got.Items) != 0 {
		t.Errorf("items after remove = %d, want 0", len(got.Items))
	}
}

func TestUpdateList(t *testing.T) {
	_, router := testEnv(t, "")
	d := createList(t, router, map[string]any{"name": "Weekly"})

	w := do(t, router, http.MethodPatch, "/lists/"+d.ID, map[string]any{"name": "Party", "max_stores": 4, "status": "closed"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch = %d, body = %s", w.Code, w.Body.String())
	}
	got := decodeDraft(t, w)
	if got.Name != "Party" || got.MaxStores != 4 || got.Status != models.StatusClosed {
		t.Errorf("unexpected list: %+v", got)
	}

	if w := do(t, router, http.MethodPatch, "/lists/"+d.ID, map[string]any{"status": "completed"}); w.Code != http.StatusBadRequest {
		t.Errorf("derived status override = %d, want 400", w.Code)
	}
}

func TestOptimizeAndKPIs(t *testing.T) {
	_, router := testEnv(t, "")
	d := createList(t, router, map[string]any{
		"name":  "Weekly",
		"items": []map[string]any{{"canonical_id": 1, "quantity": 2}},
	})

	w := do(t, router, http.MethodPost, "/lists/"+d.ID+"/optimize", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("optimize = %d, body = %s", w.Code, w.Body.String())
	}
	got := decodeDraft(t, w)
	if got.Optimization == nil || got.Status != models.StatusOptimized {
		t.Fatalf("expected optimized list, got %+v", got)
	}

	w = do(t, router, http.MethodGet, "/lists/"+d.ID+"/kpis", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("kpis = %d", w.Code)
	}
	var k KPIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &k); err != nil {
		t.Fatal(err)
	}
	if k.OptimizedTotal != 4 || k.BaselineTotal != 5 || !k.HasWorstData {
		t.Errorf("unexpected kpis: %+v", k)
	}

	// A quantity change clears the cache.
	w = do(t, router, http.MethodPatch, "/lists/"+d.ID+"/items/1", map[string]any{"quantity": 3})
	if got := decodeDraft(t, w); got.Optimization != nil || got.Status != models.StatusDraft {
		t.Errorf("expected invalidated list, got status %s", got.Status)
	}
}

func TestOptimizeErrors(t *testing.T) {
	stub, router := testEnv(t, "")
	empty := createList(t, router, map[string]any{"name": "Empty"})
	if w := do(t, router, http.MethodPost, "/lists/"+empty.ID+"/optimize", nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty list = %d, want 422", w.Code)
	}

	d := createList(t, router, map[string]any{
		"name":  "Weekly",
		"items": []map[string]any{{"canonical_id": 1, "quantity": 2}},
	})

	stub.mode.Store("reject")
	w := do(t, router, http.MethodPost, "/lists/"+d.ID+"/optimize", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("rejected = %d, want 422", w.Code)
	}
	var e errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &e)
	if e.Error != "No store carries these items" || e.Code != codeRejected {
		t.Errorf("rejected body = %+v", e)
	}

	stub.mode.Store("down")
	if w := do(t, router, http.MethodPost, "/lists/"+d.ID+"/optimize", nil); w.Code != http.StatusBadGateway {
		t.Errorf("optimizer down = %d, want 502", w.Code)
	}

	if w := do(t, router, http.MethodPost, "/lists/missing/optimize", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing list = %d, want 404", w.Code)
	}
}

func TestDeleteList(t *testing.T) {
	_, router := testEnv(t, "")
	d := createList(t, router, map[string]any{"name": "Gone"})

	if w := do(t, router, http.MethodDelete, "/lists/"+d.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/lists/"+d.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/lists/"+d.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	body, _ := json.Marshal(map[string]string{"name": "auth"})
	req := httptest.NewRequest(http.MethodPost, "/lists", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_SchemeCaseInsensitive(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/lists", nil)
	req.Header.Set("Authorization", "bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("lowercase scheme = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/lists", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/lists", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/lists", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", blockingSSE)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
