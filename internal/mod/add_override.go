package mod

import (
	"context"

	"levelup/internal/symbols"
)

// AddOverride yields an AddFunctionQualifier(override) step for every
// member function symbol whose prototype contains "virtual" and lacks
// "override".
type AddOverride struct{}

func (AddOverride) ID() string   { return "add_override" }
func (AddOverride) Name() string { return "Add override" }

func (AddOverride) Generate(ctx context.Context, table *symbols.Table) ([]Step, error) {
	all, err := table.GetAllSymbols(ctx, true)
	if err != nil {
		return nil, err
	}

	var steps []Step
	for _, s := range all {
		if s.Kind != symbols.KindFunction || !s.IsMember {
			continue
		}
		if !s.HasQualifier("virtual") || s.HasQualifier("override") {
			continue
		}
		steps = append(steps, Step{
			RefactoringID: "add_function_qualifier",
			Args: map[string]string{
				"symbol":    s.QualifiedName,
				"qualifier": "override",
			},
		})
	}
	return steps, nil
}
