package domain

import (
	"context"
	"strings"
)

// Status is the short human-readable phase message shown to the user.
type Status string

const (
	StatusIdle            Status = ""
	StatusGenerating      Status = "Generating your video..."
	StatusLimitReached    Status = "Generation limit reached."
	StatusGenerationError Status = "Error generating video. Please try again."
)

// Phase is the lifecycle position of a session component.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
	PhaseExhausted  Phase = "exhausted"
)

// ImageUpload is an image attached to a generation request.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SubmissionPayload carries the user input for one generation attempt.
type SubmissionPayload struct {
	Image *ImageUpload
	Text  string
}

// Validate checks that at least one of image or text is present and that an attached
// file is an image.
func (p SubmissionPayload) Validate() error {
	hasImage := p.Image != nil && len(p.Image.Data) > 0
	if !hasImage && strings.TrimSpace(p.Text) == "" {
		return ErrEmptyPayload
	}
	if hasImage && p.Image.ContentType != "" && !strings.HasPrefix(p.Image.ContentType, "image/") {
		return ErrNotAnImage
	}
	return nil
}

// GenerationResult locates a generated video. An empty VideoURL means absent.
type GenerationResult struct {
	VideoURL string
}

// GenerationState is a point-in-time copy of a generation session.
type GenerationState struct {
	Quota    int    `json:"quota"`
	Phase    Phase  `json:"phase"`
	Status   Status `json:"status"`
	VideoURL string `json:"video_url,omitempty"`
	InFlight bool   `json:"in_flight"`
}

// VideoGenerator submits a payload to the generation backend.
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, payload SubmissionPayload) (*GenerationResult, error)
}
