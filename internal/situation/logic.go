// internal/situation/logic.go
package situation

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// logicGate is a compiled CEL expression over the pair flags v0..vN-1.
type logicGate struct {
	expr string
	vars []string
	prg  cel.Program
}

func compileLogic(expr string, n int) (*logicGate, error) {
	vars := make([]string, n)
	opts := make([]cel.EnvOption, n)
	for i := range vars {
		vars[i] = fmt.Sprintf("v%d", i)
		opts[i] = cel.Variable(vars[i], cel.BoolType)
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("logic %q: CEL compile error: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("logic %q: expression yields %s, not bool", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("logic %q: CEL program error: %w", expr, err)
	}
	return &logicGate{expr: expr, vars: vars, prg: prg}, nil
}

func (g *logicGate) eval(flags []bool) (bool, error) {
	activation := make(map[string]interface{}, len(flags))
	for i, f := range flags {
		activation[g.vars[i]] = f
	}
	out, _, err := g.prg.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("logic %q: CEL eval error: %w", g.expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("logic %q: result is %T, not bool", g.expr, out.Value())
	}
	return result, nil
}
