package protocol

import "errors"

var (
	ErrTruncatedFrame = errors.New("protocol: truncated frame")
	ErrMalformedBatch = errors.New("protocol: malformed batch")
	ErrFrameTooLarge  = errors.New("protocol: frame too large")
)
