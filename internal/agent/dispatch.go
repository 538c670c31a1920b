package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sdrlabs/leadqual/internal/assistant"
	"github.com/sdrlabs/leadqual/internal/calendar"
	"github.com/sdrlabs/leadqual/internal/domain"
	"github.com/sdrlabs/leadqual/internal/slotmap"
)

// resolveAndSubmit executes every pending tool call of a blocked run and
// submits the outputs in one atomic batch, then polls the resumed run. If
// the submission itself fails the run is cancelled on a best-effort basis
// so it does not linger in requires_action until the provider expires it.
func (a *Agent) resolveAndSubmit(ctx context.Context, threadID string, run *assistant.Run) (*assistant.Run, error) {
	invocations := run.ToolInvocations()
	a.logger.Info("resolving tool calls",
		slog.String("thread_id", threadID),
		slog.String("run_id", run.ID),
		slog.Int("count", len(invocations)))

	outputs := make([]domain.ToolOutput, 0, len(invocations))
	for _, inv := range invocations {
		outputs = append(outputs, domain.ToolOutput{
			InvocationID: inv.ID,
			Output:       a.executeTool(ctx, threadID, inv),
		})
	}

	next, err := a.runtime.SubmitToolOutputs(ctx, threadID, run.ID, outputs)
	if err != nil {
		if _, cancelErr := a.runtime.CancelRun(ctx, threadID, run.ID); cancelErr != nil {
			a.logger.Error("failed to cancel run after submit failure",
				slog.String("run_id", run.ID),
				slog.String("error", cancelErr.Error()))
		}
		return nil, err
	}
	return a.awaitRunSettled(ctx, threadID, next.ID)
}

// executeTool runs a single invocation and serializes its result. Failures
// are scoped to the invocation: they come back as structured error payloads
// for the assistant to react to, never as a dispatch-loop error.
func (a *Agent) executeTool(ctx context.Context, threadID string, inv domain.ToolInvocation) string {
	var (
		payload any
		err     error
	)

	switch inv.Name {
	case domain.ToolRegisterLead:
		payload, err = a.registerLead(ctx, inv.Arguments)
	case domain.ToolOfferSlots:
		payload, err = a.offerSlots(ctx, threadID, inv.Arguments)
	case domain.ToolScheduleMeeting:
		payload, err = a.scheduleMeeting(ctx, threadID, inv.Arguments)
	default:
		payload = map[string]string{"error": fmt.Sprintf("Função %s não reconhecida", inv.Name)}
	}

	if err != nil {
		toolErr := &domain.ToolExecutionError{Tool: inv.Name, Err: err}
		a.logger.Error("tool execution failed",
			slog.String("thread_id", threadID),
			slog.String("error", toolErr.Error()))
		a.metrics.ToolResolved(inv.Name, "error")
		payload = map[string]string{"error": fmt.Sprintf("Erro interno ao executar %s: %v", inv.Name, err)}
	} else {
		a.metrics.ToolResolved(inv.Name, "success")
	}

	body, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return fmt.Sprintf(`{"error": "Erro interno ao executar %s"}`, inv.Name)
	}
	return string(body)
}

// registerLeadArgs mirrors the argument names declared on the tool. The
// assistant sends meeting_datetime already in UTC ISO form.
type registerLeadArgs struct {
	Nome                string `json:"nome"`
	Email               string `json:"email"`
	Empresa             string `json:"empresa"`
	Necessidade         string `json:"necessidade"`
	InteresseConfirmado bool   `json:"interesse_confirmado"`
	MeetingLink         string `json:"meeting_link"`
	MeetingDatetime     string `json:"meeting_datetime"`
}

func (a *Agent) registerLead(ctx context.Context, raw json.RawMessage) (any, error) {
	var args registerLeadArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("failed to decode arguments: %w", err)
	}

	lead, err := domain.NewLead(args.Nome, args.Email, args.Empresa, args.Necessidade, args.InteresseConfirmado)
	if err != nil {
		return nil, err
	}
	lead.MeetingLink = args.MeetingLink
	if args.MeetingDatetime != "" {
		when, err := time.Parse(time.RFC3339, args.MeetingDatetime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse meeting_datetime %q: %w", args.MeetingDatetime, err)
		}
		lead.MeetingDatetime = &when
	}

	result, err := a.leads.Upsert(ctx, lead)
	if err != nil {
		return nil, err
	}
	a.logger.Info("lead registered",
		slog.String("card_id", result.CardID),
		slog.Bool("success", result.Success))
	return result, nil
}

type offerSlotsArgs struct {
	Dias int `json:"dias"`
}

// offerSlots fetches availability, stores the display-to-UTC correlation
// for this conversation, and hands the assistant only the display strings.
// The UTC intervals never travel through the language model.
func (a *Agent) offerSlots(ctx context.Context, threadID string, raw json.RawMessage) (any, error) {
	var args offerSlotsArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("failed to decode arguments: %w", err)
	}
	days := args.Dias
	if days <= 0 {
		days = 7
	}

	slots, err := a.scheduler.GetAvailableSlots(ctx, days)
	if err != nil {
		// A failed fetch drops any prior mapping so the assistant cannot
		// book against slots that are no longer offered.
		if purgeErr := a.slots.Purge(ctx, threadID); purgeErr != nil {
			a.logger.Error("failed to purge slot mapping",
				slog.String("thread_id", threadID),
				slog.String("error", purgeErr.Error()))
		}
		return map[string]string{
			"status":  "error",
			"message": fmt.Sprintf("Erro ao buscar horários: %v", err),
		}, nil
	}

	entries := make([]slotmap.Entry, len(slots.UTC))
	for i, s := range slots.UTC {
		entries[i] = slotmap.Entry{DisplayKey: slots.Display[i], Start: s.Start, End: s.End}
	}
	if err := a.slots.Put(ctx, threadID, entries); err != nil {
		return nil, fmt.Errorf("failed to store slot mapping: %w", err)
	}

	a.logger.Info("offering slots",
		slog.String("thread_id", threadID),
		slog.Int("count", len(entries)))
	return map[string]any{
		"status":                  "success",
		"available_slots_display": slots.Display,
	}, nil
}

type scheduleMeetingArgs struct {
	DataInicioDisplay string `json:"data_inicio_display"`
	EmailLead         string `json:"email_lead"`
	NomeLead          string `json:"nome_lead"`
}

// scheduleMeeting maps the user's chosen display string back to its exact
// UTC interval and books it. The interval round-trips byte for byte: what
// the availability scan produced is what the booking request carries.
func (a *Agent) scheduleMeeting(ctx context.Context, threadID string, raw json.RawMessage) (any, error) {
	var args scheduleMeetingArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("failed to decode arguments: %w", err)
	}
	if args.DataInicioDisplay == "" {
		return map[string]any{
			"success": false,
			"error":   "Parâmetro 'data_inicio_display' não fornecido pelo assistente.",
		}, nil
	}
	name := args.NomeLead
	if name == "" {
		name = "Lead"
	}

	entry, err := a.slots.Take(ctx, threadID, args.DataInicioDisplay)
	if err != nil {
		var notFound *domain.SlotNotFoundError
		if errors.As(err, &notFound) {
			return map[string]any{
				"success": false,
				"error": fmt.Sprintf("Horário escolhido (%q) inválido ou não encontrado no mapeamento. "+
					"Peça para o usuário escolher novamente da lista.", args.DataInicioDisplay),
			}, nil
		}
		return nil, err
	}

	booking, err := a.scheduler.Book(ctx, entry.Start, entry.End, args.EmailLead, name)
	if err != nil {
		return map[string]any{
			"success": false,
			"error":   fmt.Sprintf("Erro ao agendar reunião: %v", err),
		}, nil
	}

	display := calendar.FormatLocalized(booking.Start, a.scheduler.Location())
	a.logger.Info("meeting booked",
		slog.String("thread_id", threadID),
		slog.String("start_display", display),
		slog.String("meeting_link", booking.MeetingLink))
	return map[string]any{
		"success":            true,
		"meeting_link":       booking.MeetingLink,
		"start_time_display": display,
		"start_time_utc":     booking.Start.UTC().Format(time.RFC3339),
	}, nil
}
