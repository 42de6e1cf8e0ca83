// Package script lets a polled test's body be authored as a scripted
// function instead of a compiled Go closure: a JavaScript snippet
// evaluated in a goja.Runtime, returning the same Observation
// vocabulary every native TestFunc returns.
//
// Adapted from the teacher's utils/js/js_engine.go (GojaJsEngine):
// same one-VM-per-engine-instance, precompiled-function-call shape,
// repurposed to evaluate a diagnostics test instead of a rule-chain
// transform/filter.
package script

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"github.com/swdiag/core/types"
)

const testFuncName = "test"

// Engine wraps a goja.Runtime running one precompiled test function.
// A mutex serializes calls since a goja.Runtime is not goroutine-safe.
type Engine struct {
	mu sync.Mutex
	vm *goja.Runtime
}

// NewEngine compiles jsSource, which must define a top-level function
// named `test(instanceName, userCtx) -> {result, value}` returning an
// object with a `result` string (one of Pass/Fail/Value/Abort/
// InProgress/Ignore) and, for Value, a numeric `value`.
func NewEngine(jsSource string) (*Engine, error) {
	vm := goja.New()
	if _, err := vm.RunString(jsSource); err != nil {
		return nil, fmt.Errorf("script: compile: %w", err)
	}
	if _, ok := goja.AssertFunction(vm.Get(testFuncName)); !ok {
		return nil, fmt.Errorf("script: %s is not defined as a function", testFuncName)
	}
	return &Engine{vm: vm}, nil
}

// TestFunc adapts Engine into a graph.TestFunc-shaped closure (the
// caller wires it directly into graph.TestBody.Function).
func (e *Engine) TestFunc(ctx context.Context, instanceName string, userCtx any) types.Observation {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn, ok := goja.AssertFunction(e.vm.Get(testFuncName))
	if !ok {
		return types.Aborted()
	}
	res, err := fn(goja.Undefined(), e.vm.ToValue(instanceName), e.vm.ToValue(userCtx))
	if err != nil {
		return types.Aborted()
	}
	return toObservation(res.Export())
}

func toObservation(exported any) types.Observation {
	m, ok := exported.(map[string]any)
	if !ok {
		return types.Aborted()
	}
	resultName, _ := m["result"].(string)
	switch resultName {
	case "Pass":
		return types.Passed()
	case "Fail":
		return types.Failed()
	case "Abort":
		return types.Aborted()
	case "InProgress":
		return types.Progressing()
	case "Ignore":
		return types.Ignored()
	case "Value":
		v, _ := m["value"].(int64)
		if v == 0 {
			if f, ok := m["value"].(float64); ok {
				v = int64(f)
			}
		}
		return types.ValueOf(v)
	default:
		return types.Aborted()
	}
}
