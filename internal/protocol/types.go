package protocol

import (
	"bytes"
	"fmt"
)

// Fixed header sizes of the base wire format.
const (
	InstructionHeaderSize = 4 + 1
	ResponseHeaderSize    = 4 + 1 + 1
	MetadataSize          = 1 + 8 + 4
)

// ContextFlag declares the resource tier of the receiving device.
type ContextFlag uint8

const (
	ContextLowResource  ContextFlag = 0
	ContextHighResource ContextFlag = 1
)

func (c ContextFlag) String() string {
	switch c {
	case ContextLowResource:
		return "low"
	case ContextHighResource:
		return "high"
	default:
		return fmt.Sprintf("ctx(%d)", uint8(c))
	}
}

// Key is the composite dispatch key. A command id alone does not name an operation.
type Key struct {
	CommandID uint32
	Context   ContextFlag
}

func (k Key) String() string {
	return fmt.Sprintf("cmd=0x%02X ctx=%s", k.CommandID, k.Context)
}

// Instruction is a single command unit sent to a device.
type Instruction struct {
	CommandID uint32
	Context   ContextFlag
	Payload   []byte
}

func (i Instruction) Key() Key {
	return Key{CommandID: i.CommandID, Context: i.Context}
}

// FrameLen returns the encoded size of i.
func (i Instruction) FrameLen() int {
	return InstructionHeaderSize + len(i.Payload)
}

// Equal reports whether i and o encode to the same frame.
func (i Instruction) Equal(o Instruction) bool {
	return i.CommandID == o.CommandID && i.Context == o.Context && bytes.Equal(i.Payload, o.Payload)
}

func (i Instruction) String() string {
	return fmt.Sprintf("Instruction(cmd=0x%02X, ctx=%d, payload_len=%d)", i.CommandID, uint8(i.Context), len(i.Payload))
}

// Metadata is the auxiliary block that may precede an instruction frame.
//
// Layout (13 bytes, little-endian):
//
//	offset 0     : priority     (uint8)
//	offset 1..8  : timestamp_ms (uint64)
//	offset 9..12 : origin_id    (uint32)
type Metadata struct {
	Priority    uint8
	TimestampMS uint64
	OriginID    uint32
}

// Envelope pairs an instruction with its metadata block.
type Envelope struct {
	Metadata    Metadata
	Instruction Instruction
}

// Status is the fixed-width (one byte) result code of a response.
type Status uint8

const (
	StatusOK              Status = 0
	StatusUnknownCommand  Status = 1
	StatusTruncatedFrame  Status = 2
	StatusNoHandler       Status = 3
	StatusExecutionFailed Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnknownCommand:
		return "unknown_command"
	case StatusTruncatedFrame:
		return "truncated_frame"
	case StatusNoHandler:
		return "no_handler"
	case StatusExecutionFailed:
		return "execution_failed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Response is the result of executing a resolved operation.
type Response struct {
	CommandID uint32
	Context   ContextFlag
	Status    Status
	Result    []byte
}

func (r Response) Key() Key {
	return Key{CommandID: r.CommandID, Context: r.Context}
}

// FrameLen returns the encoded size of r.
func (r Response) FrameLen() int {
	return ResponseHeaderSize + len(r.Result)
}

func (r Response) Equal(o Response) bool {
	return r.CommandID == o.CommandID && r.Context == o.Context && r.Status == o.Status && bytes.Equal(r.Result, o.Result)
}

// Batch is an ordered sequence of instructions sharing one envelope.
type Batch []Instruction

// BatchResponse answers a Batch index for index.
type BatchResponse []Response
