package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/mathreel/internal/adapter/metrics"
	"github.com/pscheid92/mathreel/internal/domain"
	"github.com/pscheid92/mathreel/internal/platform/correlation"
	apperrors "github.com/pscheid92/mathreel/internal/platform/errors"
	"github.com/pscheid92/mathreel/internal/session"
)

// correlationMiddleware tags the request context with the client's X-Request-ID, or a fresh
// id, and echoes it back.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(correlation.HeaderName))
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.HeaderName, id)
		return next(c)
	}
}

// ErrorHandlingMiddleware renders structured errors as JSON and counts them. Echo's own
// HTTPErrors (CSRF, body limit, routing) are counted and passed on. m may be nil.
func ErrorHandlingMiddleware(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				m.RecordError(string(WrapHTTPError(httpErr).Type))
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			m.RecordError(string(structuredErr.Type))
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case apperrors.TypeValidation, apperrors.TypeTooLarge, apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Rejected request", attrs...)
	case apperrors.TypeConflict, apperrors.TypeRateLimited:
		slog.WarnContext(ctx, "Conflicting request", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

// toStructuredError maps domain and session errors onto the structured taxonomy.
func toStructuredError(err error) *apperrors.Error {
	var structuredErr *apperrors.Error
	switch {
	case errors.As(err, &structuredErr):
		return structuredErr
	case errors.Is(err, domain.ErrEmptyPayload):
		return apperrors.ValidationError("Please upload an image or enter a prompt")
	case errors.Is(err, domain.ErrNotAnImage):
		return apperrors.ValidationError("Please select an image file")
	case errors.Is(err, domain.ErrEmptyWallet):
		return apperrors.ValidationError("Please enter a wallet address")
	case errors.Is(err, domain.ErrEmptyTransaction):
		return apperrors.ValidationError("No transaction to look up")
	case errors.Is(err, domain.ErrRequestInFlight):
		return apperrors.ConflictError("A request is already in progress")
	case errors.Is(err, session.ErrMintUnavailable):
		return apperrors.ConflictError("Minting is available once the generation limit is reached")
	default:
		return apperrors.InternalError("request failed", err)
	}
}

func WrapHTTPError(httpErr *echo.HTTPError) *apperrors.Error {
	message := "internal server error"
	if httpErr.Message != nil {
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		}
	}

	var errType apperrors.ErrorType
	switch httpErr.Code {
	case http.StatusBadRequest, http.StatusForbidden:
		errType = apperrors.TypeValidation
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		errType = apperrors.TypeNotFound
	case http.StatusConflict:
		errType = apperrors.TypeConflict
	case http.StatusRequestEntityTooLarge:
		errType = apperrors.TypeTooLarge
	case http.StatusTooManyRequests:
		errType = apperrors.TypeRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		errType = apperrors.TypeExternal
	default:
		errType = apperrors.TypeInternal
	}

	err := &apperrors.Error{
		Type:    errType,
		Message: message,
		Context: make(map[string]any),
	}

	if httpErr.Internal != nil {
		err.Cause = httpErr.Internal
	}

	return err
}
