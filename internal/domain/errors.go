package domain

import "errors"

var (
	ErrEmptyPayload     = errors.New("an image or a math expression is required")
	ErrNotAnImage       = errors.New("please select an image file")
	ErrEmptyWallet      = errors.New("wallet address is required")
	ErrEmptyTransaction = errors.New("transaction id is required")
	ErrRequestInFlight  = errors.New("a request is already in progress")
	ErrSessionNotFound  = errors.New("session not found")
)
