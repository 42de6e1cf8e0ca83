package rules

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// compile wraps expr.Compile with the environment shape evaluateScript
// supplies at run time, so compile-time type errors in a Script rule's
// expression surface from CompileScript instead of at first evaluation.
func compile(source string) (*vm.Program, error) {
	env := map[string]any{
		"result": "",
		"value":  int64(0),
	}
	return expr.Compile(source, expr.Env(env), expr.AsBool())
}
