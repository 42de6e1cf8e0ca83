// Package actions implements the engine's pre-registered built-in
// actions (§3.1 "Action"): reload, switchover, scheduled-reload,
// scheduled-switchover, reload-standby, and no-op. Each is flagged
// Builtin so RCI will not rerun its tied rule on a successful run
// (§3.1: "pre-registered and flagged so RCI will not rerun their tied
// rules on action success").
package actions

import (
	"context"
	"time"

	"github.com/swdiag/core/types"
)

// Func matches graph.ActionFunc's shape without importing graph, so
// this package stays a leaf the sequencer wires in rather than one
// graph depends on.
type Func func(ctx context.Context, instanceName string, userCtx any) types.Observation

// Collaborator is the narrow surface a front-end implements so these
// built-ins can actually act on a managed component (§1 "external
// collaborators": the reload/switchover targets are opaque to the
// core). A nil Collaborator makes every built-in a documented no-op,
// which is enough for unit tests and for embedders that only want the
// RCI/health machinery without real corrective actions.
type Collaborator interface {
	Reload(ctx context.Context, target string) error
	Switchover(ctx context.Context, target string) error
	ReloadStandby(ctx context.Context, target string) error
}

// CompletionFunc reports a scheduled action's real outcome once its
// delayed call lands, so the engine can feed it back through
// action_complete and let the rule's RootCause streak resolve on the
// true result instead of staying stuck on the InProgress placeholder
// (§5 "Cancellation and timeouts", §6 "action_complete").
type CompletionFunc func(actionName, instanceName string, obs types.Observation)

// Registry builds the six named built-ins bound to collaborator, using
// the builtin's own name ("scheduled-reload"/"scheduled-switchover") as
// the actionName reported to onComplete. A caller that rebinds one of
// the two scheduled variants under a different rule-facing name (as
// engine.RegisterBuiltinAction does) should build a fresh ScheduledFunc
// via Inner instead of reusing this map's entry, so completion reports
// against the name the rule actually references.
//
// "scheduled-switchover" and "switchover" resolve to the same
// underlying function (Open Question 1, preserved as specified): the
// original's scheduled variant is a thin wrapper that defers the exact
// same switchover call, not a distinct action, so aliasing the name
// here keeps faith with the original's one-function-two-names shape
// instead of inventing two divergent Go implementations.
func Registry(collaborator Collaborator, scheduleDelay time.Duration, onComplete CompletionFunc) map[string]Func {
	reload := reloadFunc(collaborator)
	switchover := switchoverFunc(collaborator)

	return map[string]Func{
		"reload":               reload,
		"scheduled-reload":     ScheduledFunc("scheduled-reload", reload, scheduleDelay, onComplete),
		"switchover":           switchover,
		"scheduled-switchover": ScheduledFunc("scheduled-switchover", switchover, scheduleDelay, onComplete),
		"reload-standby":       reloadStandbyFunc(collaborator),
		"no-op":                NoOp,
	}
}

// Inner returns the eager, synchronous body behind one of the
// scheduled built-ins ("reload" or "switchover"), for a caller that
// needs to build its own ScheduledFunc bound to a custom action name.
func Inner(collaborator Collaborator, builtin string) Func {
	switch builtin {
	case "reload":
		return reloadFunc(collaborator)
	case "switchover":
		return switchoverFunc(collaborator)
	default:
		return nil
	}
}

func reloadFunc(c Collaborator) Func {
	return func(ctx context.Context, instanceName string, userCtx any) types.Observation {
		if c == nil {
			return types.Passed()
		}
		if err := c.Reload(ctx, instanceName); err != nil {
			return types.Aborted()
		}
		return types.Passed()
	}
}

func switchoverFunc(c Collaborator) Func {
	return func(ctx context.Context, instanceName string, userCtx any) types.Observation {
		if c == nil {
			return types.Passed()
		}
		if err := c.Switchover(ctx, instanceName); err != nil {
			return types.Aborted()
		}
		return types.Passed()
	}
}

func reloadStandbyFunc(c Collaborator) Func {
	return func(ctx context.Context, instanceName string, userCtx any) types.Observation {
		if c == nil {
			return types.Passed()
		}
		if err := c.ReloadStandby(ctx, instanceName); err != nil {
			return types.Aborted()
		}
		return types.Passed()
	}
}

// ScheduledFunc wraps inner so it runs after delay rather than
// synchronously: it reports InProgress to the caller immediately, then
// calls onComplete with inner's real Observation once the delayed call
// lands, naming actionName as the action that completed.
func ScheduledFunc(actionName string, inner Func, delay time.Duration, onComplete CompletionFunc) Func {
	return func(ctx context.Context, instanceName string, userCtx any) types.Observation {
		go func() {
			select {
			case <-time.After(delay):
				obs := inner(ctx, instanceName, userCtx)
				if onComplete != nil {
					onComplete(actionName, instanceName, obs)
				}
			case <-ctx.Done():
			}
		}()
		return types.Progressing()
	}
}

// NoOp always passes; used for rules whose action is purely informative
// (e.g. a user-alert rule with no corrective behavior).
func NoOp(ctx context.Context, instanceName string, userCtx any) types.Observation {
	return types.Passed()
}
