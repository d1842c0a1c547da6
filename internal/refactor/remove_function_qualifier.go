package refactor

import (
	"context"
	"os"
	"path/filepath"

	"levelup/internal/astedit"
	levelerrors "levelup/internal/errors"
	"levelup/internal/symbols"
	"levelup/internal/worktree"
)

// RemoveFunctionQualifier removes a qualifier token from a function's
// declaration, the mirror image of AddFunctionQualifier. Precondition: the
// qualifier is present on the declaration.
type RemoveFunctionQualifier struct {
	editor *astedit.Editor
}

// NewRemoveFunctionQualifier constructs the refactoring.
func NewRemoveFunctionQualifier() *RemoveFunctionQualifier {
	return &RemoveFunctionQualifier{editor: astedit.NewEditor()}
}

func (r *RemoveFunctionQualifier) ID() string { return "remove_function_qualifier" }

// Apply expects args["symbol"] (qualified name) and args["qualifier"].
func (r *RemoveFunctionQualifier) Apply(ctx context.Context, wt *worktree.Worktree, repoPath string, table *symbols.Table, args map[string]string) (*GitCommit, error) {
	qname := args["symbol"]
	qualifier := args["qualifier"]

	sym, err := table.GetSymbol(ctx, qname, true)
	if err != nil {
		return nil, nil
	}
	if !sym.HasQualifier(qualifier) {
		return nil, nil // precondition: qualifier must be present to remove
	}

	absPath := filepath.Join(repoPath, sym.FilePath)
	original, err := os.ReadFile(absPath)
	if err != nil {
		return nil, levelerrors.New(levelerrors.SubprocessFailure, "failed to read target file", err)
	}

	start, end, _, err := r.editor.FindDeclarationLine(ctx, original, sym.StartLine)
	if err != nil {
		if levelerrors.CodeOf(err) == levelerrors.PreconditionMismatch {
			return nil, nil
		}
		return nil, err
	}
	if !qualifierWordRe(qualifier).Match(original[start:end]) {
		return nil, nil // precondition: qualifier must actually be present on the declaration text
	}

	mutated, err := r.editor.RemoveQualifier(ctx, original, sym.StartLine, qualifier)
	if err != nil {
		if levelerrors.CodeOf(err) == levelerrors.PreconditionMismatch {
			return nil, nil
		}
		return nil, err
	}

	if err := os.WriteFile(absPath, mutated, 0o644); err != nil {
		return nil, levelerrors.New(levelerrors.SubprocessFailure, "failed to write mutated file", err)
	}
	table.InvalidateFile(sym.FilePath)

	message := commitMessage("Remove", qualifier, sym.QualifiedName, sym.FilePath, sym.StartLine)
	committed, err := wt.Commit(ctx, message)
	if err != nil {
		return nil, err
	}
	if !committed {
		return nil, nil
	}

	// Mirror of AddFunctionQualifier's probability, slightly higher per
	// the reference refactorings' declared confidence.
	return newGitCommit(ctx, wt, committed, message, validatorFor(qualifier), sym.FilePath, []string{sym.QualifiedName}, 0.9)
}
