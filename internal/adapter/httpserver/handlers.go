package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pscheid92/mathreel/internal/app"
	"github.com/pscheid92/mathreel/internal/domain"
	apperrors "github.com/pscheid92/mathreel/internal/platform/errors"
)

type pageData struct {
	CSRFToken          string
	State              *app.SessionState
	GenerationsLeft    int
	Errors             []string
	TransactionDetails []string
}

func (s *Server) handleIndex(c echo.Context) error {
	sess, id, err := s.browserSession(c)
	if err != nil {
		return err
	}

	state, err := s.app.State(c.Request().Context(), id)
	if err != nil {
		return toStructuredError(err)
	}

	data := pageData{
		CSRFToken:          csrfToken(c),
		State:              state,
		GenerationsLeft:    max(state.Generation.Quota, 0),
		Errors:             takeFlashes(sess, flashErrors),
		TransactionDetails: takeFlashes(sess, flashDetails),
	}
	if len(data.Errors) > 0 || len(data.TransactionDetails) > 0 {
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			return fmt.Errorf("failed to save session cookie: %w", err)
		}
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	if state.View == domain.ViewMint {
		return s.renderTemplate(c, "mint.html", data)
	}
	return s.renderTemplate(c, "generate.html", data)
}

func (s *Server) handleGenerate(c echo.Context) error {
	sess, id, err := s.browserSession(c)
	if err != nil {
		return err
	}

	payload, err := s.readSubmission(c)
	if err != nil {
		return s.settle(c, sess, nil, err)
	}

	state, err := s.app.SubmitGeneration(c.Request().Context(), id, payload)
	return s.settle(c, sess, state, err)
}

func (s *Server) handleMint(c echo.Context) error {
	sess, id, err := s.browserSession(c)
	if err != nil {
		return err
	}

	state, err := s.app.SubmitMint(c.Request().Context(), id, c.FormValue("wallet_address"))
	return s.settle(c, sess, state, err)
}

func (s *Server) handleTransactionDetails(c echo.Context) error {
	sess, id, err := s.browserSession(c)
	if err != nil {
		return err
	}

	message, err := s.app.CheckTransactionDetails(c.Request().Context(), id, c.FormValue("transaction_id"))
	if err != nil {
		return s.settle(c, sess, nil, err)
	}

	if wantsJSON(c) {
		if err := c.JSON(http.StatusOK, map[string]string{"message": message}); err != nil {
			return fmt.Errorf("failed to write transaction details response: %w", err)
		}
		return nil
	}
	if err := s.addFlash(c, sess, flashDetails, message); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) handleSessionState(c echo.Context) error {
	_, id, err := s.browserSession(c)
	if err != nil {
		return err
	}

	state, err := s.app.State(c.Request().Context(), id)
	if err != nil {
		return toStructuredError(err)
	}

	if err := c.JSON(http.StatusOK, state); err != nil {
		return fmt.Errorf("failed to write session response: %w", err)
	}
	return nil
}

// settle answers a submit. JSON clients get the state or a structured error. Form posts are
// redirected back to the page (post/redirect/get), with rejections carried as flashes;
// internal errors are never flashed.
func (s *Server) settle(c echo.Context, sess *sessions.Session, state *app.SessionState, err error) error {
	if err != nil {
		structuredErr := toStructuredError(err)
		if wantsJSON(c) || structuredErr.Type == apperrors.TypeInternal {
			return structuredErr
		}
		s.httpMetrics.RecordError(string(structuredErr.Type))
		logError(c, structuredErr)
		if err := s.addFlash(c, sess, flashErrors, structuredErr.Message); err != nil {
			return err
		}
		return c.Redirect(http.StatusSeeOther, "/")
	}

	if wantsJSON(c) {
		if err := c.JSON(http.StatusOK, state); err != nil {
			return fmt.Errorf("failed to write session response: %w", err)
		}
		return nil
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

func wantsJSON(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}

func csrfToken(c echo.Context) string {
	token, _ := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string)
	return token
}
