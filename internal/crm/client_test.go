package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/sdrlabs/leadqual/internal/domain"
)

var testFields = FieldIDs{
	Name:        "nome_do_lead",
	Email:       "e_mail",
	Company:     "empresa",
	Need:        "necessidade_espec_fica",
	Interest:    "checklist_vertical",
	MeetingLink: "link_da_reuni_o",
	MeetingTime: "data_e_hora_da_reuni_o",
}

// gqlServer fakes the Pipefy endpoint. Every received query is checked to
// be syntactically valid GraphQL before handle decides the response.
type gqlServer struct {
	t       *testing.T
	handle  func(query string) any
	mu      sync.Mutex
	queries []string
}

func (s *gqlServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.t.Errorf("decode request: %v", err)
	}

	if _, err := parser.ParseQuery(&ast.Source{Input: req.Query}); err != nil {
		s.t.Errorf("generated query is not valid GraphQL: %v\n%s", err, req.Query)
	}

	s.mu.Lock()
	s.queries = append(s.queries, req.Query)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.handle(req.Query))
}

func newTestClient(t *testing.T, handle func(query string) any) (*Client, *gqlServer) {
	t.Helper()
	gql := &gqlServer{t: t, handle: handle}
	srv := httptest.NewServer(gql)
	t.Cleanup(srv.Close)

	c := NewClient("test-key", "301234", "E-mail", testFields, WithBaseURL(srv.URL))
	return c, gql
}

func mustLead(t *testing.T, name, email string) *domain.Lead {
	t.Helper()
	lead, err := domain.NewLead(name, email, "Acme", "Automatizar vendas", true)
	if err != nil {
		t.Fatal(err)
	}
	return lead
}

func cardsResponse(cards ...map[string]any) any {
	edges := make([]map[string]any, 0, len(cards))
	for _, c := range cards {
		edges = append(edges, map[string]any{"node": c})
	}
	return map[string]any{
		"data": map[string]any{"cards": map[string]any{"edges": edges}},
	}
}

func TestUpsert_CreatesWhenNotFound(t *testing.T) {
	c, gql := newTestClient(t, func(query string) any {
		if strings.Contains(query, "createCard") {
			return map[string]any{
				"data": map[string]any{"createCard": map[string]any{"card": map[string]any{"id": "901", "title": "t"}}},
			}
		}
		return cardsResponse()
	})

	result, err := c.Upsert(context.Background(), mustLead(t, "Maria Silva", "maria@acme.com"))
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !result.Success || result.CardID != "901" {
		t.Errorf("result = %+v", result)
	}

	// Search first, then exactly one create.
	if len(gql.queries) != 2 {
		t.Fatalf("got %d queries, want 2", len(gql.queries))
	}
	if !strings.Contains(gql.queries[1], `"maria@acme.com"`) {
		t.Errorf("create mutation does not carry the email: %s", gql.queries[1])
	}
}

func TestUpsert_UpdatesWhenFound(t *testing.T) {
	existing := map[string]any{
		"id":    "777",
		"title": "Maria Silva - maria@acme.com",
		"fields": []map[string]any{
			{"name": "E-mail", "value": "maria@acme.com"},
		},
	}

	c, gql := newTestClient(t, func(query string) any {
		if strings.Contains(query, "updateCardField") {
			return map[string]any{
				"data": map[string]any{"updateCardField": map[string]any{"success": true}},
			}
		}
		return cardsResponse(existing)
	})

	result, err := c.Upsert(context.Background(), mustLead(t, "Maria Silva", "maria@acme.com"))
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !result.Success || result.CardID != "777" {
		t.Errorf("result = %+v", result)
	}
	if len(result.FailedUpdates) != 0 {
		t.Errorf("failed updates = %v", result.FailedUpdates)
	}

	for _, q := range gql.queries {
		if strings.Contains(q, "createCard") {
			t.Error("second upsert for a known email must not create a duplicate card")
		}
	}
}

func TestUpsert_EmailMatchIsExact(t *testing.T) {
	// A case-variant of the email must not match.
	existing := map[string]any{
		"id":     "777",
		"title":  "t",
		"fields": []map[string]any{{"name": "E-mail", "value": "MARIA@acme.com"}},
	}

	created := false
	c, _ := newTestClient(t, func(query string) any {
		if strings.Contains(query, "createCard") {
			created = true
			return map[string]any{
				"data": map[string]any{"createCard": map[string]any{"card": map[string]any{"id": "902"}}},
			}
		}
		return cardsResponse(existing)
	})

	if _, err := c.Upsert(context.Background(), mustLead(t, "Maria", "maria@acme.com")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !created {
		t.Error("expected a create: case-variant email must not be treated as a match")
	}
}

func TestUpsert_PartialUpdateIsSuccess(t *testing.T) {
	existing := map[string]any{
		"id":     "777",
		"title":  "t",
		"fields": []map[string]any{{"name": "E-mail", "value": "maria@acme.com"}},
	}

	// Reject two of the five field updates.
	rejected := map[string]bool{testFields.Company: true, testFields.Need: true}

	c, _ := newTestClient(t, func(query string) any {
		if strings.Contains(query, "updateCardField") {
			ok := true
			for id := range rejected {
				if strings.Contains(query, id) {
					ok = false
				}
			}
			return map[string]any{
				"data": map[string]any{"updateCardField": map[string]any{"success": ok}},
			}
		}
		return cardsResponse(existing)
	})

	result, err := c.Upsert(context.Background(), mustLead(t, "Maria Silva", "maria@acme.com"))
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if !result.Success {
		t.Error("partial update must still be a success")
	}
	if len(result.SuccessfulUpdates) != 3 {
		t.Errorf("successful updates = %v, want 3", result.SuccessfulUpdates)
	}
	if len(result.FailedUpdates) != 2 {
		t.Errorf("failed updates = %v, want 2", result.FailedUpdates)
	}
}

func TestUpsert_AllUpdatesFailedIsError(t *testing.T) {
	existing := map[string]any{
		"id":     "777",
		"title":  "t",
		"fields": []map[string]any{{"name": "E-mail", "value": "maria@acme.com"}},
	}

	c, _ := newTestClient(t, func(query string) any {
		if strings.Contains(query, "updateCardField") {
			return map[string]any{
				"data": map[string]any{"updateCardField": map[string]any{"success": false}},
			}
		}
		return cardsResponse(existing)
	})

	if _, err := c.Upsert(context.Background(), mustLead(t, "Maria", "maria@acme.com")); err == nil {
		t.Fatal("Upsert() expected error when every field update fails")
	}
}

func TestUpsert_SearchFailureShortCircuits(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, func(query string) any {
		calls++
		return map[string]any{
			"errors": []map[string]any{{"message": "pipe not found"}},
		}
	})

	_, err := c.Upsert(context.Background(), mustLead(t, "Maria", "maria@acme.com"))
	if err == nil {
		t.Fatal("Upsert() expected error")
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1 (no create/update after failed search)", calls)
	}
}

func TestQuote_EscapesSpecialCharacters(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`plain`, `"plain"`},
		{`with "quotes"`, `"with \"quotes\""`},
		{"line\nbreak", `"line\nbreak"`},
	}
	for _, tt := range tests {
		if got := quote(tt.in); got != tt.want {
			t.Errorf("quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestCreateCard_MutationParsesWithInjectionAttempt(t *testing.T) {
	// Values containing GraphQL syntax must be neutralized by escaping.
	c, _ := newTestClient(t, func(query string) any {
		if strings.Contains(query, "createCard") {
			return map[string]any{
				"data": map[string]any{"createCard": map[string]any{"card": map[string]any{"id": "903"}}},
			}
		}
		return cardsResponse()
	})

	lead, err := domain.NewLead(`Mallory") { id } mutation {`, "mallory@evil.com", "", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Upsert(context.Background(), lead); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
}

func TestExecute_HTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("test-key", "301234", "E-mail", testFields, WithBaseURL(srv.URL))
	_, err := c.Upsert(context.Background(), mustLead(t, "Maria", "maria@acme.com"))
	if err == nil {
		t.Fatal("expected error on HTTP 502")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error does not surface the status: %v", err)
	}
}
