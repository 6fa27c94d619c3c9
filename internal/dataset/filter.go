package dataset

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// RowFilter is a compiled CEL expression evaluated against one raw row, bound
// to the variable `row` (a map of column name to cell text), e.g.
//
//	row.INVTYPE != "Witness" && row.INJURY != " "
type RowFilter struct {
	expr string
	prg  cel.Program
}

// CompileRowFilter compiles expr. The expression must evaluate to a bool.
func CompileRowFilter(expr string) (*RowFilter, error) {
	env, err := cel.NewEnv(
		cel.Variable("row", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q must return bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program filter %q: %w", expr, err)
	}
	return &RowFilter{expr: expr, prg: prg}, nil
}

// Match evaluates the filter for one row.
func (rf *RowFilter) Match(row map[string]string) (bool, error) {
	out, _, err := rf.prg.Eval(map[string]interface{}{"row": row})
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q: %w", rf.expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T", rf.expr, out.Value())
	}
	return b, nil
}

// Apply returns the rows of f the filter keeps.
func (rf *RowFilter) Apply(f *Frame) (*Frame, error) {
	return f.Filter(func(i int) (bool, error) {
		return rf.Match(f.Row(i))
	})
}
