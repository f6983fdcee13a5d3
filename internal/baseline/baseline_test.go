package baseline

import (
	"testing"

	"github.com/danmuck/qlang/internal/protocol"
	"github.com/danmuck/qlang/internal/testutil/testlog"
)

var benchInstruction = protocol.Instruction{
	CommandID: 0x01,
	Context:   protocol.ContextHighResource,
	Payload:   []byte("model_weights_v2_data_payload_test"),
}

func TestCodecsRoundTrip(t *testing.T) {
	testlog.Start(t)
	cases := []protocol.Instruction{
		benchInstruction,
		{CommandID: 0xFFFFFFFF, Context: 0},
		{CommandID: 0x04, Context: 1, Payload: []byte("delta")},
	}
	for _, codec := range All() {
		for _, inst := range cases {
			b, err := codec.Marshal(inst)
			if err != nil {
				t.Fatalf("%s marshal %s: %v", codec.Name, inst, err)
			}
			got, err := codec.Unmarshal(b)
			if err != nil {
				t.Fatalf("%s unmarshal %s: %v", codec.Name, inst, err)
			}
			if !got.Equal(inst) {
				t.Fatalf("%s round trip: got %s want %s", codec.Name, got, inst)
			}
		}
	}
}

func TestQLangIsSmallest(t *testing.T) {
	testlog.Start(t)
	sizes := make(map[string]int)
	for _, codec := range All() {
		b, err := codec.Marshal(benchInstruction)
		if err != nil {
			t.Fatalf("%s marshal: %v", codec.Name, err)
		}
		sizes[codec.Name] = len(b)
	}
	if sizes[NameQLang] != protocol.InstructionHeaderSize+len(benchInstruction.Payload) {
		t.Fatalf("unexpected Q-Lang size %d", sizes[NameQLang])
	}
	for name, size := range sizes {
		if name != NameQLang && size <= sizes[NameQLang] {
			t.Fatalf("%s (%d bytes) not larger than Q-Lang (%d bytes)", name, size, sizes[NameQLang])
		}
	}
}

func TestJSONCarriesPayloadAsText(t *testing.T) {
	testlog.Start(t)
	b, err := JSON().Marshal(protocol.Instruction{CommandID: 1, Context: 1, Payload: []byte("weights_v2")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"command_id":1,"context_flag":1,"payload":"weights_v2"}`
	if string(b) != want {
		t.Fatalf("got %s want %s", b, want)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	testlog.Start(t)
	for _, codec := range All() {
		if _, err := codec.Unmarshal([]byte{0xC1}); err == nil {
			t.Fatalf("%s accepted garbage", codec.Name)
		}
	}
}

func TestByName(t *testing.T) {
	testlog.Start(t)
	c, err := ByName(NameCBOR)
	if err != nil || c.Name != NameCBOR {
		t.Fatalf("ByName(CBOR) = %v, %v", c.Name, err)
	}
	if _, err := ByName("XML"); err == nil {
		t.Fatalf("expected unknown codec error")
	}
}
