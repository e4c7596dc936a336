package app

import "errors"

// ErrEmptyRequest indicates a generation request with neither a prompt nor
// uploaded files.
var ErrEmptyRequest = errors.New("prompt or uploaded files required")

// ErrMissingAPIKey indicates the server was started without a provider
// credential, so generation is unavailable.
var ErrMissingAPIKey = errors.New("anthropic api key not configured")
