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

// AddFunctionQualifier adds a qualifier token to a function's declaration,
// e.g. adding "override" to a derived-class method or "const" to an
// accessor. Precondition: the qualifier is not already present and the
// declaration line has a semicolon terminator.
type AddFunctionQualifier struct {
	editor *astedit.Editor
}

// NewAddFunctionQualifier constructs the refactoring.
func NewAddFunctionQualifier() *AddFunctionQualifier {
	return &AddFunctionQualifier{editor: astedit.NewEditor()}
}

func (r *AddFunctionQualifier) ID() string { return "add_function_qualifier" }

// Apply expects args["symbol"] (qualified name) and args["qualifier"].
func (r *AddFunctionQualifier) Apply(ctx context.Context, wt *worktree.Worktree, repoPath string, table *symbols.Table, args map[string]string) (*GitCommit, error) {
	qname := args["symbol"]
	qualifier := args["qualifier"]

	sym, err := table.GetSymbol(ctx, qname, true)
	if err != nil {
		return nil, nil // symbol gone: treat as inapplicable, not a fault
	}
	if sym.HasQualifier(qualifier) {
		return nil, nil // precondition: qualifier not already present
	}

	absPath := filepath.Join(repoPath, sym.FilePath)
	original, err := os.ReadFile(absPath)
	if err != nil {
		return nil, levelerrors.New(levelerrors.SubprocessFailure, "failed to read target file", err)
	}

	start, end, hasSemicolon, err := r.editor.FindDeclarationLine(ctx, original, sym.StartLine)
	if err != nil {
		if levelerrors.CodeOf(err) == levelerrors.PreconditionMismatch {
			return nil, nil
		}
		return nil, err
	}
	if !hasSemicolon {
		return nil, nil // precondition: declaration must have a semicolon terminator
	}
	if qualifierWordRe(qualifier).Match(original[start:end]) {
		return nil, nil // precondition: qualifier already present on the declaration text, regardless of stale symbol data
	}

	mutated, err := r.editor.InsertQualifierBeforeTerminator(ctx, original, sym.StartLine, qualifier)
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

	message := commitMessage("Add", qualifier, sym.QualifiedName, sym.FilePath, sym.StartLine)
	committed, err := wt.Commit(ctx, message)
	if err != nil {
		return nil, err
	}
	if !committed {
		return nil, nil
	}

	return newGitCommit(ctx, wt, committed, message, validatorFor(qualifier), sym.FilePath, []string{sym.QualifiedName}, 0.85)
}
