package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sdrlabs/leadqual/internal/domain"
)

// User-visible replies for the turn's failure modes. The chat surface only
// ever sees these strings or the assistant's own text.
const (
	replyMessageRejected = "Erro ao processar sua mensagem. Tente novamente."
	replyTimeout         = "O assistente demorou muito para responder. Tente novamente."
	replyEmptyResponse   = "Não recebi uma resposta do assistente."
	replyUnexpected      = "Ocorreu um erro inesperado. Tente novamente."
)

// ProcessTurn runs one user message through the assistant and returns the
// reply text. The return value is always chat-shaped: any internal failure
// is logged, counted, and collapsed to a Portuguese sentence. Whenever a
// turn ends without a completed run, the conversation's slot mapping is
// purged so a later booking cannot consume stale offers.
func (a *Agent) ProcessTurn(ctx context.Context, threadID, message string) string {
	log := a.logger.With(slog.String("thread_id", threadID))

	if err := a.runtime.AddUserMessage(ctx, threadID, message); err != nil {
		log.Error("failed to append user message", slog.String("error", err.Error()))
		a.metrics.TurnProcessed("message_rejected")
		return replyMessageRejected
	}

	run, err := a.runtime.CreateRun(ctx, threadID)
	if err != nil {
		log.Error("failed to create run", slog.String("error", err.Error()))
		a.purgeSlots(ctx, threadID)
		a.metrics.TurnProcessed("error")
		return replyUnexpected
	}
	log.Info("run created", slog.String("run_id", run.ID))

	run, err = a.awaitRunSettled(ctx, threadID, run.ID)
	for err == nil && run.Status == domain.RunStatusRequiresAction {
		run, err = a.resolveAndSubmit(ctx, threadID, run)
	}
	if err != nil {
		return a.failTurn(ctx, threadID, err)
	}

	if run.Status != domain.RunStatusCompleted {
		log.Warn("run ended without completion",
			slog.String("run_id", run.ID),
			slog.String("status", string(run.Status)))
		a.purgeSlots(ctx, threadID)
		a.metrics.TurnProcessed(string(run.Status))
		reply := fmt.Sprintf("O assistente falhou (status final: %s)", run.Status)
		if run.LastError != nil {
			reply += fmt.Sprintf(". Erro: %s", run.LastError.Message)
		}
		return reply
	}

	text, err := a.runtime.LatestAssistantMessage(ctx, threadID)
	if err != nil {
		return a.failTurn(ctx, threadID, err)
	}
	if text == "" {
		a.purgeSlots(ctx, threadID)
		a.metrics.TurnProcessed("empty")
		return replyEmptyResponse
	}

	a.metrics.TurnProcessed("completed")
	return text
}

// failTurn maps an orchestration error to its user-visible reply. The slot
// mapping is always purged: the turn is over and its offers are dead.
func (a *Agent) failTurn(ctx context.Context, threadID string, err error) string {
	a.purgeSlots(ctx, threadID)

	var timeout *domain.RunTimeoutError
	if errors.As(err, &timeout) {
		a.logger.Warn("turn timed out",
			slog.String("thread_id", threadID),
			slog.String("run_id", timeout.RunID))
		a.metrics.TurnProcessed("timeout")
		return replyTimeout
	}

	a.logger.Error("turn failed",
		slog.String("thread_id", threadID),
		slog.String("error", err.Error()))
	a.metrics.TurnProcessed("error")
	return replyUnexpected
}

func (a *Agent) purgeSlots(ctx context.Context, threadID string) {
	if err := a.slots.Purge(ctx, threadID); err != nil {
		a.logger.Error("failed to purge slot mapping",
			slog.String("thread_id", threadID),
			slog.String("error", err.Error()))
	}
}
