package httpserver

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
)

const (
	sessionName  = "mathreel-session"
	sessionKeyID = "id"

	flashErrors  = "errors"
	flashDetails = "transaction_details"
)

// browserSession returns the signed session cookie and the browser session id it carries.
// A missing or unreadable cookie starts a new browser session.
func (s *Server) browserSession(c echo.Context) (*sessions.Session, uuid.UUID, error) {
	sess, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		slog.DebugContext(c.Request().Context(), "Discarding unreadable session cookie", "error", err)
	}

	if raw, ok := sess.Values[sessionKeyID].(string); ok {
		if id, err := uuid.Parse(raw); err == nil {
			return sess, id, nil
		}
	}

	id := uuid.New()
	sess.Values[sessionKeyID] = id.String()
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return nil, uuid.Nil, fmt.Errorf("failed to save session cookie: %w", err)
	}
	slog.DebugContext(c.Request().Context(), "Browser session started", "session_id", id.String())
	return sess, id, nil
}

func (s *Server) addFlash(c echo.Context, sess *sessions.Session, key, message string) error {
	sess.AddFlash(message, key)
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return fmt.Errorf("failed to save session cookie: %w", err)
	}
	return nil
}

// takeFlashes removes and returns the flashes stored under key.
func takeFlashes(sess *sessions.Session, key string) []string {
	var messages []string
	for _, f := range sess.Flashes(key) {
		if msg, ok := f.(string); ok {
			messages = append(messages, msg)
		}
	}
	return messages
}
