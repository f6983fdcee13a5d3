package protocol

import (
	"bytes"
	"testing"
)

// FuzzDecodeInstruction checks encode(decode(b)) == b for every frame that decodes.
func FuzzDecodeInstruction(f *testing.F) {
	f.Add(EncodeInstruction(Instruction{CommandID: 1, Context: 1, Payload: []byte("weights_v2")}))
	f.Add([]byte{0x01, 0x00})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		inst, err := DecodeInstruction(data)
		if err != nil {
			if len(data) >= InstructionHeaderSize {
				t.Fatalf("unexpected error for %d bytes: %v", len(data), err)
			}
			return
		}
		if !bytes.Equal(EncodeInstruction(inst), data) {
			t.Fatalf("re-encode mismatch for %x", data)
		}
	})
}

// FuzzDecodeBatch tests that decoding arbitrary bytes doesn't panic.
func FuzzDecodeBatch(f *testing.F) {
	f.Add(EncodeBatch(sampleBatch(3)))
	f.Add([]byte{0, 0, 0, 0})
	f.Add([]byte{0xff, 0xff, 0xff, 0xff, 0x01})

	f.Fuzz(func(t *testing.T, data []byte) {
		entries, err := DecodeBatch(data)
		if err != nil {
			return
		}
		batch, err := Collect(entries)
		if err != nil {
			return
		}
		if !bytes.Equal(EncodeBatch(batch), data) {
			t.Fatalf("batch re-encode mismatch for %x", data)
		}
	})
}
