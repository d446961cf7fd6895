package notebook

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// SimRuntime is an in-memory Runtime used by the CLI demo mode and by
// tests. Cells are held in notebook order; "executing" a cell records it
// in the history and fails iff its code contains a raise statement,
// which gives tests a deterministic failure hook.
type SimRuntime struct {
	mu        sync.Mutex
	order     []CellID
	codes     map[CellID]string
	outputs   map[CellID]string
	variables map[string]any
	history   []CellID
}

// NewSimRuntime creates an empty simulated notebook.
func NewSimRuntime() *SimRuntime {
	return &SimRuntime{
		codes:     make(map[CellID]string),
		outputs:   make(map[CellID]string),
		variables: make(map[string]any),
	}
}

// SetVariable seeds a variable into the simulated scope.
func (s *SimRuntime) SetVariable(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variables[name] = value
}

// CreateCell implements Runtime.
func (s *SimRuntime) CreateCell(_ context.Context, code string, refCell CellID, position Position) (CellID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := CellID(uuid.NewString())
	s.codes[id] = code

	idx := len(s.order)
	if refCell != "" {
		for i, existing := range s.order {
			if existing != refCell {
				continue
			}
			switch position {
			case PositionBefore:
				idx = i
			case PositionReplace:
				delete(s.codes, existing)
				delete(s.outputs, existing)
				s.order[i] = id
				return id, nil
			default:
				idx = i + 1
			}
			break
		}
	}

	s.order = append(s.order, "")
	copy(s.order[idx+1:], s.order[idx:])
	s.order[idx] = id
	return id, nil
}

// ModifyCell implements Runtime.
func (s *SimRuntime) ModifyCell(_ context.Context, id CellID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[id]; !ok {
		return fmt.Errorf("cell %s not found", id)
	}
	s.codes[id] = code
	delete(s.outputs, id)
	return nil
}

// DeleteCell implements Runtime.
func (s *SimRuntime) DeleteCell(_ context.Context, id CellID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[id]; !ok {
		return fmt.Errorf("cell %s not found", id)
	}
	delete(s.codes, id)
	delete(s.outputs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// ExecuteCells implements Runtime.
func (s *SimRuntime) ExecuteCells(_ context.Context, ids []CellID) (map[CellID]ExecOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make(map[CellID]ExecOutcome, len(ids))
	for _, id := range ids {
		code, ok := s.codes[id]
		if !ok {
			results[id] = ExecOutcome{Error: fmt.Sprintf("cell %s not found", id)}
			continue
		}

		s.history = append(s.history, id)
		if strings.Contains(code, "raise ") {
			results[id] = ExecOutcome{Error: "simulated exception"}
			continue
		}

		output := fmt.Sprintf("executed %d bytes", len(code))
		s.outputs[id] = output
		results[id] = ExecOutcome{Success: true, Output: output}
	}
	return results, nil
}

// GetCellOutput implements Runtime.
func (s *SimRuntime) GetCellOutput(_ context.Context, id CellID) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[id]; !ok {
		return "", false, fmt.Errorf("cell %s not found", id)
	}
	output, ok := s.outputs[id]
	return output, ok, nil
}

// GetVariables implements Runtime.
func (s *SimRuntime) GetVariables(_ context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vars := make(map[string]any, len(s.variables))
	for name, value := range s.variables {
		vars[name] = value
	}
	return vars, nil
}

// Snapshot builds a Context from the current simulated state.
func (s *SimRuntime) Snapshot() Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := make(map[CellID]string, len(s.codes))
	for id, code := range s.codes {
		codes[id] = code
	}
	vars := make(map[string]any, len(s.variables))
	for name, value := range s.variables {
		vars[name] = value
	}

	var active CellID
	if len(s.order) > 0 {
		active = s.order[len(s.order)-1]
	}

	return Context{
		ActiveCellID:     active,
		CellCodes:        codes,
		Variables:        vars,
		ExecutionHistory: append([]CellID(nil), s.history...),
	}
}

// Cells returns cell ids in notebook order.
func (s *SimRuntime) Cells() []CellID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CellID(nil), s.order...)
}

// CellCode returns the code of a cell, if present.
func (s *SimRuntime) CellCode(id CellID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[id]
	return code, ok
}
