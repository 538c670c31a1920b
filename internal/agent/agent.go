// Package agent drives one chat turn end to end: it appends the user
// message to the conversation thread, runs the assistant, resolves any
// tool calls the run blocks on, and returns the assistant's reply as
// user-facing text. Every failure path collapses to a Portuguese chat
// message; ProcessTurn never surfaces an error to its caller.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/sdrlabs/leadqual/internal/assistant"
	"github.com/sdrlabs/leadqual/internal/calendar"
	"github.com/sdrlabs/leadqual/internal/crm"
	"github.com/sdrlabs/leadqual/internal/domain"
	"github.com/sdrlabs/leadqual/internal/slotmap"
)

const (
	defaultPollInterval = 1 * time.Second
	defaultPollTimeout  = 180 * time.Second
)

// Runtime is the subset of the conversation-runtime client the agent needs.
// Satisfied by *assistant.Client.
type Runtime interface {
	AddUserMessage(ctx context.Context, threadID, text string) error
	CreateRun(ctx context.Context, threadID string) (*assistant.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*assistant.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (*assistant.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) (*assistant.Run, error)
	LatestAssistantMessage(ctx context.Context, threadID string) (string, error)
}

// Scheduler is the availability and booking capability. Satisfied by
// *calendar.Client.
type Scheduler interface {
	GetAvailableSlots(ctx context.Context, days int) (*calendar.Slots, error)
	Book(ctx context.Context, start, end time.Time, attendeeEmail, attendeeName string) (*calendar.Booking, error)
	Location() *time.Location
}

// LeadSink persists qualified leads. Satisfied by *crm.Client.
type LeadSink interface {
	Upsert(ctx context.Context, lead *domain.Lead) (*crm.UpsertResult, error)
}

// Metrics receives turn and tool outcome counts.
type Metrics interface {
	TurnProcessed(outcome string)
	ToolResolved(tool domain.ToolName, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) TurnProcessed(string)                 {}
func (nopMetrics) ToolResolved(domain.ToolName, string) {}

// Agent orchestrates runs against the conversation runtime and dispatches
// the three business tools.
type Agent struct {
	runtime   Runtime
	scheduler Scheduler
	leads     LeadSink
	slots     slotmap.Store

	logger       *slog.Logger
	metrics      Metrics
	pollInterval time.Duration
	pollTimeout  time.Duration
	now          func() time.Time
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithMetrics sets the outcome counter sink.
func WithMetrics(m Metrics) Option {
	return func(a *Agent) {
		a.metrics = m
	}
}

// WithPollInterval overrides the run polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(a *Agent) {
		a.pollInterval = d
	}
}

// WithPollTimeout overrides the wall-clock ceiling a run may take to settle.
func WithPollTimeout(d time.Duration) Option {
	return func(a *Agent) {
		a.pollTimeout = d
	}
}

// WithClock overrides the time source used for the polling deadline.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

// New builds an Agent over the given collaborators.
func New(runtime Runtime, scheduler Scheduler, leads LeadSink, slots slotmap.Store, opts ...Option) *Agent {
	a := &Agent{
		runtime:      runtime,
		scheduler:    scheduler,
		leads:        leads,
		slots:        slots,
		logger:       slog.Default(),
		metrics:      nopMetrics{},
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}
