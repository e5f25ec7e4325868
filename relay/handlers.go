package relay

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/memory"
	"github.com/papercomputeco/relay/relay/session"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondRequest is the body of POST /v1/respond.
type RespondRequest struct {
	SessionID string `json:"session_id"`
	PersonaID string `json:"persona_id"`
	ClientID  string `json:"client_id"`
	Message   string `json:"message"`
	Mode      string `json:"mode,omitempty"`
	Backend   string `json:"backend,omitempty"`
}

// CancelResponse is the body returned by DELETE /v1/sessions/:id/pending.
type CancelResponse struct {
	SessionID string `json:"session_id"`
	Cancelled int    `json:"cancelled"`
}

// handleRespond queues the request on its session and waits for the result.
func (s *Server) handleRespond(c *fiber.Ctx) error {
	var body RespondRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	req, err := body.toSession()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.config.RequestTimeout)
	defer cancel()

	res, err := s.sessions.Do(ctx, req)
	if err != nil {
		status := StatusFor(err)
		s.logger.Warn("respond failed",
			zap.String("session_id", req.SessionID),
			zap.Int("status", status),
			zap.Error(err),
		)
		return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(res)
}

// handleCancelPending cancels the queued requests of a session.
func (s *Server) handleCancelPending(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "session id required"})
	}

	n := s.sessions.CancelPending(id)
	s.logger.Debug("cancelled pending requests",
		zap.String("session_id", id),
		zap.Int("cancelled", n),
	)

	return c.JSON(CancelResponse{SessionID: id, Cancelled: n})
}

func (r RespondRequest) toSession() (session.Request, error) {
	req := session.Request{
		SessionID: strings.TrimSpace(r.SessionID),
		PersonaID: strings.TrimSpace(r.PersonaID),
		ClientID:  strings.TrimSpace(r.ClientID),
		Message:   r.Message,
		Backend:   strings.TrimSpace(r.Backend),
	}

	switch {
	case req.SessionID == "":
		return req, errors.New("session_id is required")
	case req.PersonaID == "":
		return req, errors.New("persona_id is required")
	case req.ClientID == "":
		return req, errors.New("client_id is required")
	case strings.TrimSpace(req.Message) == "":
		return req, errors.New("message is required")
	}

	if r.Mode != "" {
		mode, err := memory.ParseMode(r.Mode)
		if err != nil {
			return req, err
		}
		req.Mode = mode
	}

	return req, nil
}

// StatusFor maps a request error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, memory.ErrPersonaNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, session.ErrSessionBinding), errors.Is(err, session.ErrCancelled):
		return fiber.StatusConflict
	case errors.Is(err, session.ErrQueueFull):
		return fiber.StatusTooManyRequests
	case errors.Is(err, memory.ErrStoreUnavailable),
		errors.Is(err, session.ErrManagerClosed),
		errors.Is(err, session.ErrSessionReclaimed):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}
