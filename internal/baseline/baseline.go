// Package baseline provides the instruction encodings Q-Lang is measured
// against. Every codec carries the same three fields: command id, context
// flag and payload.
package baseline

import (
	"encoding/json"
	"fmt"

	"github.com/danmuck/qlang/internal/protocol"
	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	NameQLang   = "Q-Lang"
	NameJSON    = "JSON"
	NameCBOR    = "CBOR"
	NameMsgPack = "MessagePack"
)

// Codec encodes and decodes one instruction in a given format.
type Codec struct {
	Name      string
	Marshal   func(protocol.Instruction) ([]byte, error)
	Unmarshal func([]byte) (protocol.Instruction, error)
}

// Record is the self-describing form shared by the map-based encodings.
type Record struct {
	CommandID   uint32 `json:"command_id" cbor:"command_id" msgpack:"command_id"`
	ContextFlag uint8  `json:"context_flag" cbor:"context_flag" msgpack:"context_flag"`
	Payload     []byte `json:"-" cbor:"payload" msgpack:"payload"`
}

// textRecord carries the payload as text, the way JSON clients send it.
type textRecord struct {
	CommandID   uint32 `json:"command_id"`
	ContextFlag uint8  `json:"context_flag"`
	Payload     string `json:"payload"`
}

func toRecord(inst protocol.Instruction) Record {
	return Record{CommandID: inst.CommandID, ContextFlag: uint8(inst.Context), Payload: inst.Payload}
}

func (r Record) instruction() protocol.Instruction {
	return protocol.Instruction{CommandID: r.CommandID, Context: protocol.ContextFlag(r.ContextFlag), Payload: r.Payload}
}

// All returns every codec with Q-Lang first.
func All() []Codec {
	return []Codec{QLang(), JSON(), CBOR(), MsgPack()}
}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	for _, c := range All() {
		if c.Name == name {
			return c, nil
		}
	}
	return Codec{}, fmt.Errorf("baseline: unknown codec %q", name)
}

func QLang() Codec {
	return Codec{
		Name: NameQLang,
		Marshal: func(inst protocol.Instruction) ([]byte, error) {
			return protocol.EncodeInstruction(inst), nil
		},
		Unmarshal: protocol.DecodeInstruction,
	}
}

// JSON encodes the payload as a string. Payload bytes that are not valid
// UTF-8 are replaced, so only text payloads round trip.
func JSON() Codec {
	return Codec{
		Name: NameJSON,
		Marshal: func(inst protocol.Instruction) ([]byte, error) {
			return json.Marshal(textRecord{
				CommandID:   inst.CommandID,
				ContextFlag: uint8(inst.Context),
				Payload:     string(inst.Payload),
			})
		},
		Unmarshal: func(b []byte) (protocol.Instruction, error) {
			var r textRecord
			if err := json.Unmarshal(b, &r); err != nil {
				return protocol.Instruction{}, fmt.Errorf("baseline: json: %w", err)
			}
			inst := protocol.Instruction{CommandID: r.CommandID, Context: protocol.ContextFlag(r.ContextFlag)}
			if r.Payload != "" {
				inst.Payload = []byte(r.Payload)
			}
			return inst, nil
		},
	}
}

func CBOR() Codec {
	return Codec{
		Name: NameCBOR,
		Marshal: func(inst protocol.Instruction) ([]byte, error) {
			return cbor.Marshal(toRecord(inst))
		},
		Unmarshal: func(b []byte) (protocol.Instruction, error) {
			var r Record
			if err := cbor.Unmarshal(b, &r); err != nil {
				return protocol.Instruction{}, fmt.Errorf("baseline: cbor: %w", err)
			}
			return r.instruction(), nil
		},
	}
}

func MsgPack() Codec {
	return Codec{
		Name: NameMsgPack,
		Marshal: func(inst protocol.Instruction) ([]byte, error) {
			data, err := msgpack.Marshal(toRecord(inst))
			if err != nil {
				return nil, fmt.Errorf("baseline: msgpack marshaling: %w", err)
			}
			return data, nil
		},
		Unmarshal: func(b []byte) (protocol.Instruction, error) {
			var r Record
			if err := msgpack.Unmarshal(b, &r); err != nil {
				return protocol.Instruction{}, fmt.Errorf("baseline: msgpack: %w", err)
			}
			return r.instruction(), nil
		},
	}
}
