package protocol

import "encoding/binary"

// EncodeInstruction returns the frame for inst. The result is always
// 5 + len(inst.Payload) bytes and depends only on inst.
func EncodeInstruction(inst Instruction) []byte {
	return AppendInstruction(make([]byte, 0, inst.FrameLen()), inst)
}

// AppendInstruction appends the frame for inst to dst.
func AppendInstruction(dst []byte, inst Instruction) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, inst.CommandID)
	dst = append(dst, byte(inst.Context))
	return append(dst, inst.Payload...)
}

// EncodeResponse returns the frame for resp.
func EncodeResponse(resp Response) []byte {
	return AppendResponse(make([]byte, 0, resp.FrameLen()), resp)
}

// AppendResponse appends the frame for resp to dst.
func AppendResponse(dst []byte, resp Response) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, resp.CommandID)
	dst = append(dst, byte(resp.Context), byte(resp.Status))
	return append(dst, resp.Result...)
}

// EncodeMetadata returns the 13-byte metadata block.
func EncodeMetadata(meta Metadata) []byte {
	return AppendMetadata(make([]byte, 0, MetadataSize), meta)
}

func AppendMetadata(dst []byte, meta Metadata) []byte {
	dst = append(dst, meta.Priority)
	dst = binary.LittleEndian.AppendUint64(dst, meta.TimestampMS)
	return binary.LittleEndian.AppendUint32(dst, meta.OriginID)
}

// EncodeEnvelope writes the metadata block followed by the instruction frame.
func EncodeEnvelope(env Envelope) []byte {
	buf := make([]byte, 0, MetadataSize+env.Instruction.FrameLen())
	buf = AppendMetadata(buf, env.Metadata)
	return AppendInstruction(buf, env.Instruction)
}
