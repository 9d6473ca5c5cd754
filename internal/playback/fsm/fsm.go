// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsm runs strict table-driven state machines. Events without an
// edge from the current state are errors, and terminal states accept none.
package fsm

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidTransition is returned when no edge exists for the current state and event.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrTerminal is returned by Fire once the machine reached a terminal state.
	ErrTerminal = errors.New("machine is in a terminal state")
)

// Transition is one edge of the table.
type Transition[S ~string, E ~string] struct {
	From  S
	Event E
	To    S
}

// Observer sees every applied transition. It runs with the machine locked
// and must not call back into it.
type Observer[S ~string, E ~string] func(from, to S, event E)

// Table is an immutable, validated transition table shared by machines.
type Table[S ~string, E ~string] struct {
	edges    map[edge[S, E]]S
	terminal map[S]bool
}

type edge[S ~string, E ~string] struct {
	from  S
	event E
}

// NewTable validates transitions. Duplicate edges and edges leaving a
// terminal state are rejected.
func NewTable[S ~string, E ~string](transitions []Transition[S, E], terminal ...S) (*Table[S, E], error) {
	t := &Table[S, E]{
		edges:    make(map[edge[S, E]]S, len(transitions)),
		terminal: make(map[S]bool, len(terminal)),
	}
	for _, s := range terminal {
		t.terminal[s] = true
	}
	for _, tr := range transitions {
		k := edge[S, E]{tr.From, tr.Event}
		if _, dup := t.edges[k]; dup {
			return nil, fmt.Errorf("duplicate transition: %s on %s", tr.From, tr.Event)
		}
		if t.terminal[tr.From] {
			return nil, fmt.Errorf("transition leaves terminal state %s on %s", tr.From, tr.Event)
		}
		t.edges[k] = tr.To
	}
	return t, nil
}

// MustTable is NewTable for package-level tables.
func MustTable[S ~string, E ~string](transitions []Transition[S, E], terminal ...S) *Table[S, E] {
	t, err := NewTable(transitions, terminal...)
	if err != nil {
		panic(err)
	}
	return t
}

// Terminal reports whether s accepts no further events.
func (t *Table[S, E]) Terminal(s S) bool { return t.terminal[s] }

// Machine is one run over a Table.
type Machine[S ~string, E ~string] struct {
	table    *Table[S, E]
	observer Observer[S, E]

	mu    sync.Mutex
	state S
}

// New starts a machine in initial. observer may be nil.
func (t *Table[S, E]) New(initial S, observer Observer[S, E]) *Machine[S, E] {
	return &Machine[S, E]{table: t, observer: observer, state: initial}
}

func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Done reports whether the machine reached a terminal state.
func (m *Machine[S, E]) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.terminal[m.state]
}

// Can reports whether event has an edge from the current state.
func (m *Machine[S, E]) Can(event E) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.table.edges[edge[S, E]{m.state, event}]
	return ok
}

// Fire applies event and returns the new state. On error the state is unchanged.
func (m *Machine[S, E]) Fire(event E) (S, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	if m.table.terminal[from] {
		return from, fmt.Errorf("%w: state=%s event=%s", ErrTerminal, from, event)
	}
	to, ok := m.table.edges[edge[S, E]{from, event}]
	if !ok {
		return from, fmt.Errorf("%w: state=%s event=%s", ErrInvalidTransition, from, event)
	}
	m.state = to
	if m.observer != nil {
		m.observer(from, to, event)
	}
	return to, nil
}
