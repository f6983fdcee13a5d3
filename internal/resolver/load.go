package resolver

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/qlang/internal/protocol"
)

type fileTable struct {
	Contexts []int         `toml:"contexts"`
	Commands []fileCommand `toml:"command"`
}

type fileCommand struct {
	ID  uint32      `toml:"id"`
	Ops []fileEntry `toml:"op"`
}

type fileEntry struct {
	Context uint8  `toml:"context"`
	Code    uint8  `toml:"code"`
	Name    string `toml:"name"`
}

// LoadTable reads a dispatch table from a TOML file. Unknown keys are
// rejected so a typo cannot silently drop a mapping.
func LoadTable(path string) (*Table, error) {
	var raw fileTable
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load resolver table: %w", err)
	}
	if err := rejectUndecoded(meta); err != nil {
		return nil, fmt.Errorf("load resolver table: %w", err)
	}
	return buildTable(raw, meta.IsDefined("contexts"))
}

// ParseTable decodes a dispatch table from TOML text.
func ParseTable(data string) (*Table, error) {
	var raw fileTable
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("parse resolver table: %w", err)
	}
	if err := rejectUndecoded(meta); err != nil {
		return nil, fmt.Errorf("parse resolver table: %w", err)
	}
	return buildTable(raw, meta.IsDefined("contexts"))
}

func rejectUndecoded(meta toml.MetaData) error {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		keys = append(keys, k.String())
	}
	return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
}

func buildTable(raw fileTable, contextsDefined bool) (*Table, error) {
	if contextsDefined && len(raw.Contexts) == 0 {
		return nil, ErrNoContextsDeclared
	}
	contexts := make([]protocol.ContextFlag, 0, len(raw.Contexts))
	for _, c := range raw.Contexts {
		if c < 0 || c > 255 {
			return nil, fmt.Errorf("%w: %d out of range", ErrUndeclaredContext, c)
		}
		contexts = append(contexts, protocol.ContextFlag(c))
	}
	t := NewTable(contexts...)
	for i, cmd := range raw.Commands {
		ops := make(map[protocol.ContextFlag]Operation, len(cmd.Ops))
		for _, e := range cmd.Ops {
			ctx := protocol.ContextFlag(e.Context)
			if _, dup := ops[ctx]; dup {
				return nil, fmt.Errorf("command[%d] id=0x%02X: duplicate context %d", i, cmd.ID, e.Context)
			}
			ops[ctx] = Operation{Code: e.Code, Name: strings.TrimSpace(e.Name)}
		}
		if err := t.Register(cmd.ID, ops); err != nil {
			return nil, fmt.Errorf("command[%d]: %w", i, err)
		}
	}
	return t, nil
}
