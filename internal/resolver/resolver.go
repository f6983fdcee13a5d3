// Package resolver maps (command_id, context_flag) pairs to device operations.
//
// One opcode serves several device capability tiers: the same command id
// resolves to a different operation under each declared context. Sender and
// receiver must agree on the table out of band.
package resolver

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/qlang/internal/protocol"
)

var (
	ErrUnknownCommand     = errors.New("resolver: unknown command")
	ErrCommandExists      = errors.New("resolver: command already registered")
	ErrIncompleteMapping  = errors.New("resolver: mapping does not cover every context")
	ErrUndeclaredContext  = errors.New("resolver: undeclared context")
	ErrInvalidOperation   = errors.New("resolver: invalid operation")
	ErrNoContextsDeclared = errors.New("resolver: no contexts declared")
)

// UnknownCommandError carries the pair that failed to resolve.
type UnknownCommandError struct {
	Key protocol.Key
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("resolver: unknown command %s", e.Key)
}

func (e *UnknownCommandError) Unwrap() error {
	return ErrUnknownCommand
}

// Operation is a concrete device-side operation.
type Operation struct {
	Code uint8  `json:"code"`
	Name string `json:"name"`
}

func (o Operation) String() string {
	return fmt.Sprintf("%s(0x%02X)", o.Name, o.Code)
}

// Entry is one row of the dispatch table.
type Entry struct {
	CommandID uint32               `json:"command_id"`
	Context   protocol.ContextFlag `json:"context"`
	Operation Operation            `json:"operation"`
}

// Table is the dispatch table. Lookups take a read lock; registration takes
// the write lock, so a table may be extended while it serves lookups.
type Table struct {
	mu       sync.RWMutex
	contexts []protocol.ContextFlag
	entries  map[protocol.Key]Operation
	commands map[uint32]struct{}
}

// NewTable creates an empty table over the given context enumeration.
// With no arguments the low/high resource pair is declared.
func NewTable(contexts ...protocol.ContextFlag) *Table {
	if len(contexts) == 0 {
		contexts = []protocol.ContextFlag{protocol.ContextLowResource, protocol.ContextHighResource}
	}
	declared := make([]protocol.ContextFlag, 0, len(contexts))
	seen := make(map[protocol.ContextFlag]struct{}, len(contexts))
	for _, c := range contexts {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		declared = append(declared, c)
	}
	sort.Slice(declared, func(i, j int) bool { return declared[i] < declared[j] })
	return &Table{
		contexts: declared,
		entries:  make(map[protocol.Key]Operation),
		commands: make(map[uint32]struct{}),
	}
}

// Contexts returns the declared context enumeration in ascending order.
func (t *Table) Contexts() []protocol.ContextFlag {
	out := make([]protocol.ContextFlag, len(t.contexts))
	copy(out, t.contexts)
	return out
}

// Declared reports whether ctx belongs to the table's enumeration.
func (t *Table) Declared(ctx protocol.ContextFlag) bool {
	for _, c := range t.contexts {
		if c == ctx {
			return true
		}
	}
	return false
}

// Register adds commandID with one operation per declared context.
func (t *Table) Register(commandID uint32, ops map[protocol.ContextFlag]Operation) error {
	for ctx, op := range ops {
		if !t.Declared(ctx) {
			return fmt.Errorf("%w: command 0x%02X context %d", ErrUndeclaredContext, commandID, ctx)
		}
		if strings.TrimSpace(op.Name) == "" {
			return fmt.Errorf("%w: command 0x%02X context %d has no name", ErrInvalidOperation, commandID, ctx)
		}
	}
	for _, ctx := range t.contexts {
		if _, ok := ops[ctx]; !ok {
			return fmt.Errorf("%w: command 0x%02X missing context %d", ErrIncompleteMapping, commandID, ctx)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.commands[commandID]; ok {
		return fmt.Errorf("%w: 0x%02X", ErrCommandExists, commandID)
	}
	t.commands[commandID] = struct{}{}
	for ctx, op := range ops {
		t.entries[protocol.Key{CommandID: commandID, Context: ctx}] = op
	}
	return nil
}

// Resolve looks up the operation for the pair. It never falls back to a
// default: an unregistered pair is an *UnknownCommandError.
func (t *Table) Resolve(commandID uint32, ctx protocol.ContextFlag) (Operation, error) {
	key := protocol.Key{CommandID: commandID, Context: ctx}
	t.mu.RLock()
	op, ok := t.entries[key]
	t.mu.RUnlock()
	if !ok {
		return Operation{}, &UnknownCommandError{Key: key}
	}
	return op, nil
}

// ResolveInstruction resolves the dispatch key of inst.
func (t *Table) ResolveInstruction(inst protocol.Instruction) (Operation, error) {
	return t.Resolve(inst.CommandID, inst.Context)
}

// Entries returns every row ordered by command id, then context.
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	out := make([]Entry, 0, len(t.entries))
	for key, op := range t.entries {
		out = append(out, Entry{CommandID: key.CommandID, Context: key.Context, Operation: op})
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CommandID != out[j].CommandID {
			return out[i].CommandID < out[j].CommandID
		}
		return out[i].Context < out[j].Context
	})
	return out
}

// Operations returns the distinct operations in the table ordered by code.
func (t *Table) Operations() []Operation {
	seen := make(map[Operation]struct{})
	out := make([]Operation, 0)
	for _, e := range t.Entries() {
		if _, ok := seen[e.Operation]; ok {
			continue
		}
		seen[e.Operation] = struct{}{}
		out = append(out, e.Operation)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Len returns the number of registered command ids.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.commands)
}
