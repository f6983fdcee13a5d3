package protocol

import "encoding/binary"

// DecodeInstruction parses one instruction frame. Every byte after the
// five-byte header is payload; no structure is inferred from it.
func DecodeInstruction(b []byte) (Instruction, error) {
	if len(b) < InstructionHeaderSize {
		return Instruction{}, ErrTruncatedFrame
	}
	return Instruction{
		CommandID: binary.LittleEndian.Uint32(b[0:4]),
		Context:   ContextFlag(b[4]),
		Payload:   clonePayload(b[InstructionHeaderSize:]),
	}, nil
}

// DecodeResponse parses one response frame.
func DecodeResponse(b []byte) (Response, error) {
	if len(b) < ResponseHeaderSize {
		return Response{}, ErrTruncatedFrame
	}
	return Response{
		CommandID: binary.LittleEndian.Uint32(b[0:4]),
		Context:   ContextFlag(b[4]),
		Status:    Status(b[5]),
		Result:    clonePayload(b[ResponseHeaderSize:]),
	}, nil
}

// DecodeMetadata parses a metadata block. Extra bytes are not allowed.
func DecodeMetadata(b []byte) (Metadata, error) {
	if len(b) < MetadataSize {
		return Metadata{}, ErrTruncatedFrame
	}
	if len(b) > MetadataSize {
		return Metadata{}, ErrFrameTooLarge
	}
	return Metadata{
		Priority:    b[0],
		TimestampMS: binary.LittleEndian.Uint64(b[1:9]),
		OriginID:    binary.LittleEndian.Uint32(b[9:13]),
	}, nil
}

// DecodeEnvelope parses a metadata block followed by an instruction frame.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) < MetadataSize+InstructionHeaderSize {
		return Envelope{}, ErrTruncatedFrame
	}
	meta, err := DecodeMetadata(b[:MetadataSize])
	if err != nil {
		return Envelope{}, err
	}
	inst, err := DecodeInstruction(b[MetadataSize:])
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Metadata: meta, Instruction: inst}, nil
}

// clonePayload keeps decoded values independent of the caller's buffer.
// An empty remainder decodes as a nil payload.
func clonePayload(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
