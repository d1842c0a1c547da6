package mod

import (
	"context"

	"levelup/internal/symbols"
)

// RemoveInline yields a RemoveFunctionQualifier(inline) step for every
// function symbol whose prototype contains "inline".
type RemoveInline struct{}

func (RemoveInline) ID() string   { return "remove_inline" }
func (RemoveInline) Name() string { return "Remove inline" }

func (RemoveInline) Generate(ctx context.Context, table *symbols.Table) ([]Step, error) {
	all, err := table.GetAllSymbols(ctx, true)
	if err != nil {
		return nil, err
	}

	var steps []Step
	for _, s := range all {
		if s.Kind != symbols.KindFunction {
			continue
		}
		if !s.HasQualifier("inline") {
			continue
		}
		steps = append(steps, Step{
			RefactoringID: "remove_function_qualifier",
			Args: map[string]string{
				"symbol":    s.QualifiedName,
				"qualifier": "inline",
			},
		})
	}
	return steps, nil
}
