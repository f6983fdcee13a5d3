// Package wire carries base-format frames over a message transport.
//
// It is the documented extension point of the base format: a version byte
// and a kind byte are prepended to an unmodified base-format body.
//
//	offset 0  : version (uint8)
//	offset 1  : kind    (uint8)
//	offset 2.. : body
package wire

import (
	"errors"
	"fmt"

	"github.com/danmuck/qlang/internal/protocol"
)

const (
	Version    uint8 = 1
	HeaderSize       = 2
)

// Kind identifies the base-format encoding of a message body.
type Kind uint8

const (
	KindInstruction   Kind = 0x01
	KindEnvelope      Kind = 0x02
	KindBatch         Kind = 0x03
	KindResponse      Kind = 0x81
	KindBatchResponse Kind = 0x83
)

func (k Kind) String() string {
	switch k {
	case KindInstruction:
		return "instruction"
	case KindEnvelope:
		return "envelope"
	case KindBatch:
		return "batch"
	case KindResponse:
		return "response"
	case KindBatchResponse:
		return "batch_response"
	default:
		return fmt.Sprintf("kind(0x%02x)", uint8(k))
	}
}

// IsReply reports whether k travels device -> controller.
func (k Kind) IsReply() bool {
	return k&0x80 != 0
}

func (k Kind) valid() bool {
	switch k {
	case KindInstruction, KindEnvelope, KindBatch, KindResponse, KindBatchResponse:
		return true
	}
	return false
}

var (
	ErrUnsupportedVersion = errors.New("wire: unsupported version")
	ErrUnknownKind        = errors.New("wire: unknown kind")
)

// Message is one decoded transport message. Body aliases the input buffer.
type Message struct {
	Version uint8
	Kind    Kind
	Body    []byte
}

// Encode prepends the wire header to body.
func Encode(kind Kind, body []byte) []byte {
	buf := make([]byte, 0, HeaderSize+len(body))
	buf = append(buf, Version, byte(kind))
	return append(buf, body...)
}

// Decode splits b into header and body without decoding the body.
func Decode(b []byte) (Message, error) {
	if len(b) < HeaderSize {
		return Message{}, protocol.ErrTruncatedFrame
	}
	if b[0] != Version {
		return Message{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b[0])
	}
	kind := Kind(b[1])
	if !kind.valid() {
		return Message{}, fmt.Errorf("%w: 0x%02x", ErrUnknownKind, b[1])
	}
	return Message{Version: b[0], Kind: kind, Body: b[HeaderSize:]}, nil
}

func EncodeInstruction(inst protocol.Instruction) []byte {
	return Encode(KindInstruction, protocol.EncodeInstruction(inst))
}

func EncodeEnvelope(env protocol.Envelope) []byte {
	return Encode(KindEnvelope, protocol.EncodeEnvelope(env))
}

func EncodeBatch(batch protocol.Batch) []byte {
	return Encode(KindBatch, protocol.EncodeBatch(batch))
}

func EncodeResponse(resp protocol.Response) []byte {
	return Encode(KindResponse, protocol.EncodeResponse(resp))
}

func EncodeBatchResponse(batch protocol.BatchResponse) []byte {
	return Encode(KindBatchResponse, protocol.EncodeBatchResponse(batch))
}
