// Package notebook defines the shared notebook-facing types (cells,
// suggestions, context snapshots) and the runtime collaborator interface.
package notebook

import "fmt"

// CellID identifies a single notebook cell.
type CellID string

// Position says where a new cell lands relative to its reference cell,
// or that it replaces it.
type Position string

const (
	PositionBefore  Position = "before"
	PositionAfter   Position = "after"
	PositionReplace Position = "replace"
)

// IsValid reports whether p is one of the defined positions.
func (p Position) IsValid() bool {
	switch p {
	case PositionBefore, PositionAfter, PositionReplace:
		return true
	}
	return false
}

// SuggestionKind is the closed set of edits a suggestion can propose.
type SuggestionKind string

const (
	SuggestionNewCell     SuggestionKind = "new_cell"
	SuggestionModifyCell  SuggestionKind = "modify_cell"
	SuggestionDeleteCell  SuggestionKind = "delete_cell"
	SuggestionExecuteCell SuggestionKind = "execute_cell"
)

// IsValid reports whether k is one of the defined kinds.
func (k SuggestionKind) IsValid() bool {
	switch k {
	case SuggestionNewCell, SuggestionModifyCell, SuggestionDeleteCell, SuggestionExecuteCell:
		return true
	}
	return false
}

// RequiresTarget reports whether suggestions of this kind must name the
// cell they operate on. Only new-cell suggestions may omit it.
func (k SuggestionKind) RequiresTarget() bool {
	return k != SuggestionNewCell
}

// Suggestion is a concrete proposed edit to the notebook. Immutable once
// built; construct, Validate, then hand off.
type Suggestion struct {
	Kind        SuggestionKind
	Code        string
	CellID      CellID   // target cell; required unless Kind is SuggestionNewCell
	Position    Position // placement for new cells, defaults to after
	Description string
	AutoExecute bool
}

// Validate rejects suggestions that are malformed by construction: an
// unknown kind, a missing target where the kind requires one, or an
// unknown position. A targetless modify/delete/execute is a contract
// violation, never a silent no-op.
func (s *Suggestion) Validate() error {
	if !s.Kind.IsValid() {
		return fmt.Errorf("unknown suggestion kind %q", s.Kind)
	}
	if s.Kind.RequiresTarget() && s.CellID == "" {
		return fmt.Errorf("%s suggestion requires a target cell", s.Kind)
	}
	if s.Position != "" && !s.Position.IsValid() {
		return fmt.Errorf("unknown position %q", s.Position)
	}
	return nil
}

// ErrorRecord is one recorded cell failure in a context snapshot.
type ErrorRecord struct {
	CellID  CellID
	Message string
}

// Context is a read-only snapshot of notebook state supplied by the
// caller per request. The engine never mutates it.
type Context struct {
	ActiveCellID     CellID
	CellCodes        map[CellID]string
	Variables        map[string]any
	RecentErrors     []ErrorRecord
	ExecutionHistory []CellID
}

// ExecOutcome is the per-cell result of an execution request.
type ExecOutcome struct {
	Success bool
	Output  string
	Error   string
}
