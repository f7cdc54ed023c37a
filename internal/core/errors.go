package core

import "errors"

var (
	// ErrInvalidRequest indicates missing or malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound indicates a referenced profile or encounter does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUpstreamStore wraps database and blob storage failures.
	ErrUpstreamStore = errors.New("upstream store error")
	// ErrUpstreamGateway wraps language model call failures.
	ErrUpstreamGateway = errors.New("upstream gateway error")
	// ErrMalformedModelOutput indicates tool arguments or JSON output that do
	// not match the expected schema.
	ErrMalformedModelOutput = errors.New("malformed model output")
	// ErrRender indicates the card document could not be produced.
	ErrRender = errors.New("card render error")
)
