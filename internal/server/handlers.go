package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sdrlabs/leadqual/internal/storage"
	"github.com/sdrlabs/leadqual/internal/tokens"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	ThreadID  string `json:"thread_id"`
}

type historyMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Lead qualification backend is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	threadID, err := s.threads.CreateThread(ctx)
	if err != nil {
		s.logger.Error("failed to create thread", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to create session")
		return
	}

	sessionID := uuid.New().String()
	now := s.now()
	sess := &storage.Session{
		ID:           sessionID,
		ThreadID:     threadID,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		s.logger.Error("failed to persist session", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"thread_id":  threadID,
		"message":    "New session created successfully",
	})
}

// handleChat runs one turn. A session id the store does not know gets a
// fresh thread bound to it on the fly, mirroring a chat widget that mints
// its own client-side ids.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	if s.guard != nil {
		if err := s.guard.Check(req.Message); err != nil {
			var tooLong *tokens.MessageTooLongError
			if errors.As(err, &tooLong) {
				writeError(w, http.StatusRequestEntityTooLarge, "Sua mensagem é muito longa. Tente resumi-la.")
				return
			}
			s.logger.Error("failed to count tokens", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to process message")
			return
		}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	now := s.now()
	threadID := ""
	sess, err := s.sessions.GetSession(ctx, sessionID)
	switch {
	case err == nil:
		threadID = sess.ThreadID
		if touchErr := s.sessions.TouchSession(ctx, sessionID, now, now.Add(s.cfg.SessionTTL)); touchErr != nil {
			s.logger.Warn("failed to touch session", slog.String("error", touchErr.Error()))
		}
	case isSessionNotFound(err):
		threadID, err = s.threads.CreateThread(ctx)
		if err != nil {
			s.logger.Error("failed to create thread", slog.String("error", err.Error()))
			writeError(w, http.StatusBadGateway, "failed to start conversation")
			return
		}
		if err := s.sessions.CreateSession(ctx, &storage.Session{
			ID:           sessionID,
			ThreadID:     threadID,
			CreatedAt:    now,
			LastActiveAt: now,
			ExpiresAt:    now.Add(s.cfg.SessionTTL),
		}); err != nil {
			s.logger.Error("failed to persist session", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to start conversation")
			return
		}
		s.logger.Info("session created on first message", slog.String("session_id", sessionID))
	default:
		s.logger.Error("failed to load session", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	reply := s.driver.ProcessTurn(ctx, threadID, req.Message)

	writeJSON(w, http.StatusOK, chatResponse{
		Response:  reply,
		SessionID: sessionID,
		ThreadID:  threadID,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if isSessionNotFound(err) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("failed to load session", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	messages, err := s.threads.ListMessages(ctx, sess.ThreadID)
	if err != nil {
		s.logger.Error("failed to list messages", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to retrieve history")
		return
	}

	history := make([]historyMessage, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		text := msg.Text()
		if text == "" {
			continue
		}
		history = append(history, historyMessage{
			Role:      msg.Role,
			Content:   text,
			Timestamp: msg.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if isSessionNotFound(err) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("failed to load session", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		s.logger.Error("failed to delete session", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	s.cleanupThread(ctx, sess.ThreadID)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session deleted successfully"})
}

// handleResetSession rebinds a session to a fresh thread, discarding the
// old conversation state.
func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if isSessionNotFound(err) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("failed to load session", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	newThreadID, err := s.threads.CreateThread(ctx)
	if err != nil {
		s.logger.Error("failed to create thread", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to reset session")
		return
	}

	now := s.now()
	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		s.logger.Error("failed to delete session", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to reset session")
		return
	}
	if err := s.sessions.CreateSession(ctx, &storage.Session{
		ID:           sessionID,
		ThreadID:     newThreadID,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(s.cfg.SessionTTL),
	}); err != nil {
		s.logger.Error("failed to persist session", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to reset session")
		return
	}
	s.cleanupThread(ctx, sess.ThreadID)

	writeJSON(w, http.StatusOK, map[string]string{
		"message":       "Sessão resetada com sucesso",
		"old_thread_id": sess.ThreadID,
		"new_thread_id": newThreadID,
	})
}

// cleanupThread deletes the runtime thread and its slot mapping. Both are
// best effort; a failure leaves nothing the user can act on.
func (s *Server) cleanupThread(ctx context.Context, threadID string) {
	if err := s.threads.DeleteThread(ctx, threadID); err != nil {
		s.logger.Warn("failed to delete thread",
			slog.String("thread_id", threadID),
			slog.String("error", err.Error()))
	}
	if err := s.slots.Purge(ctx, threadID); err != nil {
		s.logger.Warn("failed to purge slot mapping",
			slog.String("thread_id", threadID),
			slog.String("error", err.Error()))
	}
}

func isSessionNotFound(err error) bool {
	var notFound *storage.ErrSessionNotFound
	return errors.As(err, &notFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
