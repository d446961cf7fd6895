package notebook

import (
	"context"
	"fmt"
)

// Runtime is the notebook/cell collaborator. The engine only calls it
// through ApplySuggestion and never implements cell mechanics itself.
type Runtime interface {
	// CreateCell inserts a new cell. refCell may be empty, in which case
	// the cell is appended at the end of the notebook.
	CreateCell(ctx context.Context, code string, refCell CellID, position Position) (CellID, error)
	ModifyCell(ctx context.Context, id CellID, code string) error
	DeleteCell(ctx context.Context, id CellID) error
	ExecuteCells(ctx context.Context, ids []CellID) (map[CellID]ExecOutcome, error)
	GetCellOutput(ctx context.Context, id CellID) (string, bool, error)
	GetVariables(ctx context.Context) (map[string]any, error)
}

// ApplySuggestion dispatches a validated suggestion to the runtime and
// returns the id of the affected cell.
func ApplySuggestion(ctx context.Context, rt Runtime, s Suggestion) (CellID, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	switch s.Kind {
	case SuggestionNewCell:
		return rt.CreateCell(ctx, s.Code, s.CellID, s.Position)

	case SuggestionModifyCell:
		if err := rt.ModifyCell(ctx, s.CellID, s.Code); err != nil {
			return "", err
		}
		return s.CellID, nil

	case SuggestionDeleteCell:
		if err := rt.DeleteCell(ctx, s.CellID); err != nil {
			return "", err
		}
		return s.CellID, nil

	case SuggestionExecuteCell:
		outcomes, err := rt.ExecuteCells(ctx, []CellID{s.CellID})
		if err != nil {
			return "", err
		}
		if outcome, ok := outcomes[s.CellID]; ok && !outcome.Success {
			return "", fmt.Errorf("cell %s execution failed: %s", s.CellID, outcome.Error)
		}
		return s.CellID, nil
	}

	// Unreachable after Validate, kept for exhaustiveness.
	return "", fmt.Errorf("unknown suggestion kind %q", s.Kind)
}
