// Package crm integrates with the Pipefy GraphQL API. Leads are located by
// exact email match and either created in one call or updated field by
// field with a concurrent fan-out.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sdrlabs/leadqual/internal/domain"
)

// FieldIDs maps lead attributes to the deployment's Pipefy field ids.
type FieldIDs struct {
	Name        string
	Email       string
	Company     string
	Need        string
	Interest    string
	MeetingLink string
	MeetingTime string
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom GraphQL endpoint.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.client.SetBaseURL(baseURL)
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.client = resty.NewWithClient(httpClient).
			SetBaseURL(c.client.BaseURL).
			SetHeader("Content-Type", "application/json").
			SetHeader("Authorization", c.authHeader)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is a Pipefy GraphQL client.
type Client struct {
	client         *resty.Client
	authHeader     string
	pipeID         string
	emailFieldName string
	fields         FieldIDs
	logger         *slog.Logger
}

// NewClient creates a Pipefy client. emailFieldName is the display name of
// the searchable email field; fields carries the per-deployment field ids.
func NewClient(apiKey, pipeID, emailFieldName string, fields FieldIDs, opts ...ClientOption) *Client {
	auth := "Bearer " + apiKey
	c := &Client{
		client: resty.New().
			SetBaseURL("https://api.pipefy.com/graphql").
			SetHeader("Content-Type", "application/json").
			SetHeader("Authorization", auth).
			SetTimeout(30 * time.Second),
		authHeader:     auth,
		pipeID:         pipeID,
		emailFieldName: emailFieldName,
		fields:         fields,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UpsertResult reports the outcome of a find-or-create. Partial success is
// still success: CRM field schemas may legitimately reject individual
// values without invalidating the whole upsert.
type UpsertResult struct {
	Success           bool     `json:"success"`
	CardID            string   `json:"card_id,omitempty"`
	Message           string   `json:"message,omitempty"`
	SuccessfulUpdates []string `json:"successful_updates,omitempty"`
	FailedUpdates     []string `json:"failed_updates,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type cardNode struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Fields []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"fields"`
}

// Upsert locates a card by exact email equality and updates it, or creates
// a new card when none exists. A search failure short-circuits before any
// write is attempted.
func (c *Client) Upsert(ctx context.Context, lead *domain.Lead) (*UpsertResult, error) {
	if lead.Email == "" {
		return nil, fmt.Errorf("lead email is required for upsert")
	}

	card, err := c.findCardByEmail(ctx, lead.Email)
	if err != nil {
		return nil, fmt.Errorf("search by email: %w", err)
	}

	if card != nil {
		c.logger.Info("updating existing card",
			slog.String("card_id", card.ID),
			slog.String("email", lead.Email))
		return c.updateCardFields(ctx, card.ID, lead)
	}

	c.logger.Info("creating new card", slog.String("email", lead.Email))
	return c.createCard(ctx, lead)
}

func (c *Client) execute(ctx context.Context, query string) (*graphQLResponse, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"query": query}).
		Post("")
	if err != nil {
		return nil, &domain.UpstreamAPIError{Provider: "pipefy", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &domain.UpstreamAPIError{Provider: "pipefy", StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	var out graphQLResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &domain.UpstreamAPIError{Provider: "pipefy", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Errors) > 0 {
		return nil, &domain.UpstreamAPIError{Provider: "pipefy", Err: fmt.Errorf("graphql: %s", out.Errors[0].Message)}
	}
	return &out, nil
}

func (c *Client) findCardByEmail(ctx context.Context, email string) (*cardNode, error) {
	query := fmt.Sprintf(`{
  cards(pipe_id: %s, first: 50) {
    edges {
      node {
        id
        title
        fields {
          name
          value
        }
      }
    }
  }
}`, c.pipeID)

	resp, err := c.execute(ctx, query)
	if err != nil {
		return nil, err
	}

	var data struct {
		Cards struct {
			Edges []struct {
				Node cardNode `json:"node"`
			} `json:"edges"`
		} `json:"cards"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, &domain.UpstreamAPIError{Provider: "pipefy", Err: fmt.Errorf("decode cards: %w", err)}
	}

	// Exact, case-sensitive equality on the configured email field.
	for _, edge := range data.Cards.Edges {
		for _, f := range edge.Node.Fields {
			if f.Name == c.emailFieldName && f.Value == email {
				card := edge.Node
				return &card, nil
			}
		}
	}
	return nil, nil
}

// fieldValue is one (field id, rendered value) pair bound for the CRM.
type fieldValue struct {
	id    string
	value string
}

// leadFields renders the lead's non-empty attributes. withDefaults applies
// the create-time placeholders for name.
func (c *Client) leadFields(lead *domain.Lead, withDefaults bool) []fieldValue {
	name := lead.Name
	if name == "" && withDefaults {
		name = "Lead (Nome Pendente)"
	}

	interest := "Não confirmado"
	if lead.InterestConfirmed {
		interest = "Confirmado"
	}

	out := []fieldValue{}
	if name != "" {
		out = append(out, fieldValue{c.fields.Name, name})
	}
	out = append(out,
		fieldValue{c.fields.Email, lead.Email},
		fieldValue{c.fields.Interest, interest},
	)
	if lead.Company != "" {
		out = append(out, fieldValue{c.fields.Company, lead.Company})
	}
	if lead.Need != "" {
		out = append(out, fieldValue{c.fields.Need, lead.Need})
	}
	if lead.MeetingLink != "" {
		out = append(out, fieldValue{c.fields.MeetingLink, lead.MeetingLink})
	}
	if lead.MeetingDatetime != nil {
		out = append(out, fieldValue{c.fields.MeetingTime, lead.MeetingDatetime.UTC().Format(time.RFC3339)})
	}
	return out
}

// quote renders a string as a GraphQL string literal. json.Marshal handles
// quotes, newlines and unicode escapes.
func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (c *Client) createCard(ctx context.Context, lead *domain.Lead) (*UpsertResult, error) {
	fields := c.leadFields(lead, true)

	attrs := make([]string, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, fmt.Sprintf(`{field_id: %s, field_value: %s}`, quote(f.id), quote(f.value)))
	}

	title := lead.Name
	if title == "" {
		title = "Novo Lead"
	}
	title += " - " + lead.Email

	mutation := fmt.Sprintf(`mutation {
  createCard(input: {
    pipe_id: %s,
    title: %s,
    fields_attributes: [%s]
  }) {
    card {
      id
      title
    }
  }
}`, c.pipeID, quote(title), strings.Join(attrs, ", "))

	resp, err := c.execute(ctx, mutation)
	if err != nil {
		return nil, fmt.Errorf("create card: %w", err)
	}

	var data struct {
		CreateCard struct {
			Card struct {
				ID string `json:"id"`
			} `json:"card"`
		} `json:"createCard"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.CreateCard.Card.ID == "" {
		return nil, &domain.UpstreamAPIError{Provider: "pipefy", Err: fmt.Errorf("create card returned no id")}
	}

	return &UpsertResult{
		Success: true,
		CardID:  data.CreateCard.Card.ID,
		Message: "Card created successfully",
	}, nil
}

func (c *Client) updateCardField(ctx context.Context, cardID, fieldID, value string) error {
	mutation := fmt.Sprintf(`mutation {
  updateCardField(input: {
    card_id: %s,
    field_id: %s,
    new_value: %s
  }) {
    success
  }
}`, quote(cardID), quote(fieldID), quote(value))

	resp, err := c.execute(ctx, mutation)
	if err != nil {
		return err
	}

	var data struct {
		UpdateCardField struct {
			Success bool `json:"success"`
		} `json:"updateCardField"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return &domain.UpstreamAPIError{Provider: "pipefy", Err: fmt.Errorf("decode update: %w", err)}
	}
	if !data.UpdateCardField.Success {
		return fmt.Errorf("field %s update rejected", fieldID)
	}
	return nil
}

// updateCardFields fans out one update per non-empty field concurrently
// and joins the results. At least one successful field makes the upsert
// succeed; both lists are always reported.
func (c *Client) updateCardFields(ctx context.Context, cardID string, lead *domain.Lead) (*UpsertResult, error) {
	fields := c.leadFields(lead, false)

	type outcome struct {
		fieldID string
		err     error
	}
	outcomes := make([]outcome, len(fields))

	var wg sync.WaitGroup
	for i, f := range fields {
		wg.Add(1)
		go func(i int, f fieldValue) {
			defer wg.Done()
			outcomes[i] = outcome{fieldID: f.id, err: c.updateCardField(ctx, cardID, f.id, f.value)}
		}(i, f)
	}
	wg.Wait()

	result := &UpsertResult{CardID: cardID}
	for _, o := range outcomes {
		if o.err != nil {
			c.logger.Warn("field update failed",
				slog.String("card_id", cardID),
				slog.String("field_id", o.fieldID),
				slog.String("error", o.err.Error()))
			result.FailedUpdates = append(result.FailedUpdates, o.fieldID)
		} else {
			result.SuccessfulUpdates = append(result.SuccessfulUpdates, o.fieldID)
		}
	}

	if len(result.SuccessfulUpdates) == 0 {
		return nil, fmt.Errorf("all %d field updates failed for card %s", len(fields), cardID)
	}

	result.Success = true
	result.Message = fmt.Sprintf("Successfully updated %d fields", len(result.SuccessfulUpdates))
	return result, nil
}
