// Package agent drives the conversational intake flow: identify the
// requested service from the first message, then collect and validate each
// required field in order until the request can be persisted.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/civicdesk/server/internal/agent/model"
	"github.com/civicdesk/server/internal/agent/session"
	"github.com/civicdesk/server/internal/agent/validation"
	"github.com/civicdesk/server/internal/requests"
	logx "github.com/civicdesk/server/pkg/logger"
	"github.com/cloudwego/eino/schema"
)

// ServiceIdentifier resolves a raw user message into a service descriptor.
type ServiceIdentifier interface {
	Identify(ctx context.Context, namespace, userMessage string) *model.ServiceDescriptor
}

// RequestCreator persists a completed service request.
type RequestCreator interface {
	Create(ctx context.Context, in requests.CreateInput) (*requests.Record, error)
}

// Agent owns the session map and processes one turn at a time per session.
type Agent struct {
	sessions   *session.Manager
	identifier ServiceIdentifier
	validator  *validation.Validator
	store      RequestCreator
	history    model.ConversationRepository // optional, best-effort
}

func New(identifier ServiceIdentifier, validator *validation.Validator, store RequestCreator, history model.ConversationRepository) *Agent {
	return &Agent{
		sessions:   session.NewManager(),
		identifier: identifier,
		validator:  validator,
		store:      store,
		history:    history,
	}
}

// Sessions exposes the session map for introspection endpoints.
func (a *Agent) Sessions() *session.Manager {
	return a.sessions
}

// HandleTurn processes one inbound message for a session. The session is
// locked for the whole turn, so concurrent turns for the same session id
// serialize. A panic anywhere in the turn is converted into a generic
// error response; state mutated before the panic is kept as-is.
func (a *Agent) HandleTurn(ctx context.Context, sessionID, namespace, message string) (resp *model.ChatResponse) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("session_id", sessionID).Msgf("panic during turn: %v", r)
			resp = &model.ChatResponse{
				Response: "Sorry, something went wrong while processing your request.",
				Status:   model.StatusError,
			}
		}
	}()

	s, created := a.sessions.GetOrCreate(sessionID, namespace)
	if created {
		logx.Debug().Str("session_id", sessionID).Str("namespace", namespace).Msg("session created")
	}

	s.Lock()
	defer s.Unlock()
	s.Touch()

	a.record(ctx, sessionID, schema.UserMessage(message))

	switch {
	case s.Abandoned():
		resp = a.abandonedReply(s)
	case s.State() == session.StateInitial:
		resp = a.handleInitial(ctx, s, message)
	case s.State() == session.StateCollecting:
		resp = a.handleCollecting(ctx, s, message)
	default:
		resp = &model.ChatResponse{
			Response:  "This request is already completed. Start a new session to submit another request.",
			Status:    model.StatusCompleted,
			Completed: true,
		}
	}

	a.record(ctx, sessionID, schema.AssistantMessage(resp.Response, nil))

	// completed sessions leave the in-memory map; the persisted request
	// row is the durable artifact
	if s.State() == session.StateCompleted {
		a.sessions.Remove(sessionID)
	}
	return resp
}

func (a *Agent) handleInitial(ctx context.Context, s *session.Session, message string) *model.ChatResponse {
	desc := a.identifier.Identify(ctx, s.Namespace, message)
	s.SetService(desc)

	if first := s.CurrentField(); first != "" {
		return &model.ChatResponse{
			Response: fmt.Sprintf(
				"Service identified: %s\n\n%s\n\nEstimated processing time: %s\n\nPlease provide the following information:\n%s",
				desc.ServiceName, desc.Description, etaOrDefault(desc), first,
			),
			Status:            model.StatusSuccess,
			ServiceIdentified: true,
			ServiceInfo:       desc,
			NextField:         first,
		}
	}

	// no required fields: persist immediately
	confirmation := a.createRequest(ctx, s)
	return &model.ChatResponse{
		Response:          fmt.Sprintf("Service identified: %s\n\n%s", desc.ServiceName, confirmation),
		Status:            model.StatusSuccess,
		ServiceIdentified: true,
		ServiceInfo:       desc,
		Completed:         true,
	}
}

func (a *Agent) handleCollecting(ctx context.Context, s *session.Session, message string) *model.ChatResponse {
	field := s.CurrentField()

	ok, validationMsg := a.validator.Validate(field, message)
	if !ok {
		attempts := s.FailAttempt()
		if s.Abandoned() {
			return a.abandonedReply(s)
		}
		return &model.ChatResponse{
			Response: fmt.Sprintf(
				"Invalid %s: %s\n\nPlease try again (%d/%d)",
				field, validationMsg, attempts, session.MaxAttempts,
			),
			Status:          model.StatusValidationError,
			ValidationError: validationMsg,
			NextField:       field,
		}
	}

	next, done := s.RecordValue(strings.TrimSpace(message))
	if !done {
		return &model.ChatResponse{
			Response: fmt.Sprintf(
				"Saved %s.\n\nPlease provide the following information:\n%s",
				field, next,
			),
			Status:            model.StatusSuccess,
			ServiceIdentified: true,
			ServiceInfo:       s.Service(),
			NextField:         next,
		}
	}

	confirmation := a.createRequest(ctx, s)
	return &model.ChatResponse{
		Response: fmt.Sprintf(
			"Saved %s.\n\nCollected information:\n%s\n\n%s",
			field, a.summarize(s), confirmation,
		),
		Status:            model.StatusSuccess,
		ServiceIdentified: true,
		ServiceInfo:       s.Service(),
		Completed:         true,
	}
}

func (a *Agent) abandonedReply(s *session.Session) *model.ChatResponse {
	return &model.ChatResponse{
		Response: fmt.Sprintf(
			"Too many attempts for %s.\n\nPlease start a new session or contact support.",
			s.CurrentField(),
		),
		Status:          model.StatusError,
		ValidationError: "maximum validation attempts exceeded",
	}
}

// createRequest persists the request row exactly once, at the transition
// into completed. Persistence failure degrades to an apology line rather
// than failing the turn.
func (a *Agent) createRequest(ctx context.Context, s *session.Session) string {
	rec, err := a.store.Create(ctx, requests.CreateInput{
		ServiceName: s.Service().ServiceName,
		UserData:    s.Collected(),
		SessionID:   s.ID,
		Namespace:   s.Namespace,
	})
	if err != nil {
		logx.Error().Err(err).Str("session_id", s.ID).Msg("failed to persist service request")
		return "Your request could not be saved right now. Please try again later."
	}
	logx.Info().
		Str("session_id", s.ID).
		Str("request_id", rec.RequestID).
		Str("service_name", rec.ServiceName).
		Msg("service request created")
	return fmt.Sprintf("Your request has been submitted. Request ID: %s", rec.RequestID)
}

func (a *Agent) summarize(s *session.Session) string {
	values := s.Collected()
	lines := make([]string, 0, len(values))
	for _, field := range s.CollectedOrder() {
		lines = append(lines, fmt.Sprintf("- %s: %s", field, values[field]))
	}
	return strings.Join(lines, "\n")
}

// record appends one message to the durable history; failures are logged
// and never fail the turn.
func (a *Agent) record(ctx context.Context, sessionID string, msg *schema.Message) {
	if a.history == nil {
		return
	}
	if err := a.history.AddMessage(ctx, sessionID, msg); err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("could not record message history")
	}
}

func etaOrDefault(desc *model.ServiceDescriptor) string {
	if desc.EstimatedProcessingTime == "" {
		return "3-5 business days"
	}
	return desc.EstimatedProcessingTime
}
