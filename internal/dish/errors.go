package dish

import "errors"

var (
	// ErrTransport wraps every failure to complete a call: unreachable dish,
	// timeout, closed channel or an undecodable response.
	ErrTransport = errors.New("dish: transport failure")

	// ErrMalformed indicates bytes that are not a valid dish message.
	ErrMalformed = errors.New("dish: malformed message")

	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("dish: client closed")
)
