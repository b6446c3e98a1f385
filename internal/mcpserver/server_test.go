package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/basket/internal/apperr"
	"github.com/starford/basket/internal/kpi"
	"github.com/starford/basket/internal/models"
	"github.com/starford/basket/internal/optimizer"
	"github.com/starford/basket/internal/session"
	"github.com/starford/basket/internal/storage"
	"github.com/starford/basket/internal/testutil"
)

type stubOptimizer struct {
	err    error
	during func()
}

func (o *stubOptimizer) Optimize(_ context.Context, req optimizer.Request) (*optimizer.Response, error) {
	if o.during != nil {
		o.during()
	}
	if o.err != nil {
		return nil, o.err
	}
	items := make([]optimizer.ResponseItem, 0, len(req.Items))
	for _, it := range req.Items {
		q, p := it.Quantity, 1.5
		items = append(items, optimizer.ResponseItem{CanonicalID: it.CanonicalID, Quantity: &q, Price: &p})
	}
	return &optimizer.Response{
		Success:     true,
		Allocations: []optimizer.ResponseAllocation{{StoreID: 3, StoreName: "Market", Items: items}},
	}, nil
}

func testServer(t *testing.T) (*Server, *session.Manager, *stubOptimizer) {
	t.Helper()

	store := testutil.TestStore(t, storage.DriverBadger)
	opt := &stubOptimizer{}
	mgr := session.NewManager(session.Deps{
		Store:        store,
		Optimizer:    opt,
		Logger:       testutil.Logger(),
		PersistDelay: 10 * time.Millisecond,
	})
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })

	return New(mgr, "test"), mgr, opt
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_drafts":
		result, err = srv.listDrafts(ctx, req)
	case "get_draft":
		result, err = srv.getDraft(ctx, req)
	case "create_list":
		result, err = srv.createList(ctx, req)
	case "add_item":
		result, err = srv.addItem(ctx, req)
	case "optimize_list":
		result, err = srv.optimizeList(ctx, req)
	case "get_kpis":
		result, err = srv.getKPIs(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func createList(t *testing.T, srv *Server) string {
	t.Helper()
	r := callTool(t, srv, "create_list", map[string]interface{}{"name": "Weekly", "max_stores": float64(3)})
	if r.IsError {
		t.Fatalf("create_list: %s", resultText(r))
	}
	var d models.ListDraft
	if err := json.Unmarshal([]byte(resultText(r)), &d); err != nil {
		t.Fatal(err)
	}
	if d.MaxStores != 3 {
		t.Fatalf("max_stores = %d, want 3", d.MaxStores)
	}
	return d.ID
}

func TestAddItemAndGetDraft(t *testing.T) {
	srv, _, _ := testServer(t)
	id := createList(t, srv)

	r := callTool(t, srv, "add_item", map[string]interface{}{
		"id": id, "canonical_id": float64(12), "quantity": float64(2), "product_name": "Butter",
	})
	if r.IsError {
		t.Fatalf("add_item: %s", resultText(r))
	}

	r = callTool(t, srv, "get_draft", map[string]interface{}{"id": id})
	var d models.ListDraft
	if err := json.Unmarshal([]byte(resultText(r)), &d); err != nil {
		t.Fatal(err)
	}
	if len(d.Items) != 1 || d.Items[0].ProductName != "Butter" || d.Items[0].Quantity != 2 {
		t.Errorf("unexpected items: %+v", d.Items)
	}
}

func TestAddItemRejectsBadInput(t *testing.T) {
	srv, _, _ := testServer(t)
	id := createList(t, srv)

	cases := []map[string]interface{}{
		{"id": id, "canonical_id": 1.5, "quantity": float64(1)},
		{"id": id, "canonical_id": float64(1), "quantity": float64(0)},
		{"id": id, "quantity": float64(1)},
	}
	for i, args := range cases {
		if r := callTool(t, srv, "add_item", args); !r.IsError {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestListDrafts(t *testing.T) {
	srv, _, _ := testServer(t)
	if got := resultText(callTool(t, srv, "list_drafts", map[string]interface{}{})); got != "no lists" {
		t.Errorf("empty list = %q", got)
	}
	createList(t, srv)
	if got := resultText(callTool(t, srv, "list_drafts", map[string]interface{}{})); !strings.Contains(got, "Weekly") {
		t.Errorf("list_drafts = %q, want Weekly", got)
	}
}

func TestGetDraftMissing(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "get_draft", map[string]interface{}{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing list")
	}
}

func TestOptimizeAndKPIs(t *testing.T) {
	srv, _, _ := testServer(t)
	id := createList(t, srv)

	if r := callTool(t, srv, "optimize_list", map[string]interface{}{"id": id}); !r.IsError {
		t.Error("expected error for empty list")
	}

	callTool(t, srv, "add_item", map[string]interface{}{"id": id, "canonical_id": float64(1), "quantity": float64(4)})
	r := callTool(t, srv, "optimize_list", map[string]interface{}{"id": id})
	if r.IsError {
		t.Fatalf("optimize_list: %s", resultText(r))
	}

	r = callTool(t, srv, "get_kpis", map[string]interface{}{"id": id})
	var k kpi.KPIs
	if err := json.Unmarshal([]byte(resultText(r)), &k); err != nil {
		t.Fatal(err)
	}
	if k.OptimizedTotal != 6 || k.StoreCount != 1 {
		t.Errorf("unexpected kpis: %+v", k)
	}
}

func TestOptimizeReportsEditDuringCall(t *testing.T) {
	srv, mgr, opt := testServer(t)
	id := createList(t, srv)
	callTool(t, srv, "add_item", map[string]interface{}{"id": id, "canonical_id": float64(1), "quantity": float64(1)})
	opt.during = func() {
		sess, err := mgr.Open(context.Background(), id)
		if err != nil {
			t.Errorf("Open: %v", err)
			return
		}
		if _, err := sess.SetQuantity(1, 3); err != nil {
			t.Errorf("SetQuantity: %v", err)
		}
	}

	r := callTool(t, srv, "optimize_list", map[string]interface{}{"id": id})
	if r.IsError {
		t.Fatalf("optimize_list: %s", resultText(r))
	}
	if got := resultText(r); !strings.Contains(got, "changed while optimizing") {
		t.Errorf("optimize_list = %q, want a retry hint", got)
	}
}

func TestOptimizeRejectedMessage(t *testing.T) {
	srv, _, opt := testServer(t)
	id := createList(t, srv)
	callTool(t, srv, "add_item", map[string]interface{}{"id": id, "canonical_id": float64(1), "quantity": float64(1)})
	opt.err = &apperr.RejectedError{Message: "Nothing in range"}

	r := callTool(t, srv, "optimize_list", map[string]interface{}{"id": id})
	if !r.IsError || resultText(r) != "Nothing in range" {
		t.Errorf("rejected result = %q", resultText(r))
	}
}

func TestKPIGuideResource(t *testing.T) {
	srv, _, _ := testServer(t)
	contents, err := srv.readKPIGuide(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != kpiGuideURI || !strings.Contains(tc.Text, "baseline_total") {
		t.Errorf("unexpected resource: %+v", contents[0])
	}
}
