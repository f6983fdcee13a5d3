package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	batchCountSize  = 4
	batchLengthSize = 4
)

// BatchEntry is one decoded batch position. Err is set when the entry's
// frame was delimited correctly but could not be decoded.
type BatchEntry struct {
	Index       int
	Instruction Instruction
	Err         error
}

// ResponseEntry is the BatchResponse counterpart of BatchEntry.
type ResponseEntry struct {
	Index    int
	Response Response
	Err      error
}

// EncodeBatch frames every instruction in order behind a count prefix.
func EncodeBatch(batch Batch) []byte {
	size := batchCountSize
	for _, inst := range batch {
		size += batchLengthSize + inst.FrameLen()
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(batch)))
	for _, inst := range batch {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(inst.FrameLen()))
		buf = AppendInstruction(buf, inst)
	}
	return buf
}

// DecodeBatch splits b into entries and decodes each one independently.
// It fails with ErrMalformedBatch only when entry boundaries cannot be
// determined; in that case no entries are returned.
func DecodeBatch(b []byte) ([]BatchEntry, error) {
	frames, err := splitBatch(b)
	if err != nil {
		return nil, err
	}
	entries := make([]BatchEntry, len(frames))
	for i, frame := range frames {
		inst, err := DecodeInstruction(frame)
		if err != nil {
			err = fmt.Errorf("batch entry %d: %w", i, err)
		}
		entries[i] = BatchEntry{Index: i, Instruction: inst, Err: err}
	}
	return entries, nil
}

// Collect returns the instructions of entries in order, or the joined
// per-entry errors when any entry failed.
func Collect(entries []BatchEntry) (Batch, error) {
	out := make(Batch, 0, len(entries))
	var errs []error
	for _, entry := range entries {
		if entry.Err != nil {
			errs = append(errs, entry.Err)
			continue
		}
		out = append(out, entry.Instruction)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// EncodeBatchResponse frames every response in order behind a count prefix.
func EncodeBatchResponse(batch BatchResponse) []byte {
	size := batchCountSize
	for _, resp := range batch {
		size += batchLengthSize + resp.FrameLen()
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(batch)))
	for _, resp := range batch {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(resp.FrameLen()))
		buf = AppendResponse(buf, resp)
	}
	return buf
}

// DecodeBatchResponse is the response-side inverse of EncodeBatchResponse.
func DecodeBatchResponse(b []byte) ([]ResponseEntry, error) {
	frames, err := splitBatch(b)
	if err != nil {
		return nil, err
	}
	entries := make([]ResponseEntry, len(frames))
	for i, frame := range frames {
		resp, err := DecodeResponse(frame)
		if err != nil {
			err = fmt.Errorf("batch entry %d: %w", i, err)
		}
		entries[i] = ResponseEntry{Index: i, Response: resp, Err: err}
	}
	return entries, nil
}

// CollectResponses returns the responses of entries in order, or the
// joined per-entry errors.
func CollectResponses(entries []ResponseEntry) (BatchResponse, error) {
	out := make(BatchResponse, 0, len(entries))
	var errs []error
	for _, entry := range entries {
		if entry.Err != nil {
			errs = append(errs, entry.Err)
			continue
		}
		out = append(out, entry.Response)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// splitBatch returns sub-slices of b, one per entry. The count and length
// prefixes must consume b exactly.
func splitBatch(b []byte) ([][]byte, error) {
	if len(b) < batchCountSize {
		return nil, fmt.Errorf("%w: short count prefix", ErrMalformedBatch)
	}
	count := binary.LittleEndian.Uint32(b[0:4])
	rest := b[batchCountSize:]
	if uint64(count)*batchLengthSize > uint64(len(rest)) {
		return nil, fmt.Errorf("%w: count %d exceeds available bytes", ErrMalformedBatch, count)
	}
	frames := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(rest) < batchLengthSize {
			return nil, fmt.Errorf("%w: entry %d: short length prefix", ErrMalformedBatch, i)
		}
		n := binary.LittleEndian.Uint32(rest[0:4])
		rest = rest[batchLengthSize:]
		if uint64(n) > uint64(len(rest)) {
			return nil, fmt.Errorf("%w: entry %d: length %d past end", ErrMalformedBatch, i, n)
		}
		frames = append(frames, rest[:n])
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedBatch, len(rest))
	}
	return frames, nil
}
