package httpserver

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/mathreel/internal/domain"
	apperrors "github.com/pscheid92/mathreel/internal/platform/errors"
)

var errUploadTooLarge = errors.New("upload exceeds size limit")

// readSubmission reads the "image" file and "text" field of a generation form. An empty file
// input counts as no image.
func (s *Server) readSubmission(c echo.Context) (domain.SubmissionPayload, error) {
	payload := domain.SubmissionPayload{Text: c.FormValue("text")}

	fh, err := c.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return payload, nil
	case err != nil:
		var maxBytesErr *http.MaxBytesError
		var httpErr *echo.HTTPError
		if errors.As(err, &maxBytesErr) || (errors.As(err, &httpErr) && httpErr.Code == http.StatusRequestEntityTooLarge) {
			return payload, s.tooLarge()
		}
		return payload, apperrors.ValidationError("Could not read the uploaded form").WithField("cause", err.Error())
	}

	if fh.Size == 0 {
		return payload, nil
	}
	if fh.Size > s.config.MaxUploadBytes {
		return payload, s.tooLarge()
	}

	image, err := readImage(fh, s.config.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, errUploadTooLarge) {
			return payload, s.tooLarge()
		}
		return payload, apperrors.InternalError("failed to read upload", err)
	}
	payload.Image = image
	return payload, nil
}

func (s *Server) tooLarge() *apperrors.Error {
	return apperrors.TooLargeError(fmt.Sprintf("Image must be at most %d MB", s.config.MaxUploadBytes>>20))
}

// readImage loads the uploaded file. A missing or generic content type is replaced by the
// sniffed one.
func readImage(fh *multipart.FileHeader, limit int64) (*domain.ImageUpload, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errUploadTooLarge
	}

	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" || strings.HasPrefix(contentType, echo.MIMEOctetStream) {
		contentType = http.DetectContentType(data)
	}

	return &domain.ImageUpload{
		Filename:    fh.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}
