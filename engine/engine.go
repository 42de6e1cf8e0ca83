// Package engine is the top-level facade (§6 "External interfaces"): it
// wires the graph store (C1/C2/C3), scheduler (C4), sequencer (C5),
// rule evaluator (C6), RCI engine (C7), health aggregator (C8), and
// notifier (C9) into the embeddable API an embedder actually calls.
package engine

import (
	"context"
	"time"

	"github.com/swdiag/core/builtin/actions"
	"github.com/swdiag/core/cli"
	"github.com/swdiag/core/graph"
	"github.com/swdiag/core/health"
	"github.com/swdiag/core/notify"
	"github.com/swdiag/core/rci"
	"github.com/swdiag/core/scheduler"
	"github.com/swdiag/core/sequencer"
	"github.com/swdiag/core/types"
)

// Engine is the embeddable diagnostics engine. Zero value is not
// usable; construct with New.
type Engine struct {
	store     *graph.Store
	health    *health.Aggregator
	rci       *rci.Engine
	notifier  *notify.Notifier
	scheduler *scheduler.Scheduler
	sequencer *sequencer.Sequencer
	cli       *cli.Service
	actions   map[string]actions.Func

	collaborator  actions.Collaborator
	scheduleDelay time.Duration

	cfg    types.Config
	cancel context.CancelFunc
}

// New builds an Engine from Config (constructed via types.NewConfig and
// its With* options), pre-registering the built-in actions (§3.1).
func New(cfg types.Config, collaborator actions.Collaborator) *Engine {
	store := graph.NewStore(cfg)
	h := health.NewAggregator(store, cfg)
	r := rci.NewEngine(store)
	n := notify.New(cfg.Logger)

	e := &Engine{store: store, health: h, rci: r, notifier: n, cfg: cfg, collaborator: collaborator}
	e.scheduler = scheduler.New(cfg, e.runTest)
	e.sequencer = sequencer.New(store, h, r, n, e.scheduler, cfg.Logger)
	e.cli = cli.NewService(store, cfg)
	e.actions = actions.Registry(collaborator, e.scheduleDelay, e.completeBuiltinAction)

	// sequencer.New already assigned r.RunActions; wrap it to also
	// bump the RootCause-transition counter (§4.7, engine/metrics.go).
	baseRunActions := r.RunActions
	r.RunActions = func(ruleID graph.NodeID, instanceName string) {
		if n, ok := store.Node(ruleID); ok {
			observeRootCause(n.Name)
		}
		baseRunActions(ruleID, instanceName)
	}

	store.SetHooks(graph.Hooks{BeforeDeleteRule: r.OnRuleDelete})
	return e
}

// RegisterSink attaches a notify.Sink to receive result-changed and
// health-changed events (§4.9, §6) — the notifier-side counterpart of
// the RCI/health callbacks sequencer.New wires internally.
func (e *Engine) RegisterSink(s notify.Sink) {
	e.notifier.Register(s)
}

func (e *Engine) runTest(ctx context.Context, job scheduler.Job) {
	e.sequencer.RunTest(ctx, job)
	result := "unknown"
	if inst, ok := e.store.InstanceByName(job.Test, job.InstanceName); ok {
		result = inst.LastResult.String()
	}
	observeTestRun(job.Tier.String(), result)
}

// Start launches the scheduler, reclaimer, CLI-handle GC, and
// confidence-convergence background loops (§5 "Threading model").
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.scheduler.Start(ctx)
	e.store.Reclaimer().Start(ctx)
	e.cli.RunGC(ctx.Done(), time.Hour)
	go e.runConvergence(ctx)
}

// runConvergence is the fast-tier tick health.Converge needs to recover
// confidence toward health (§4.8, §3.4 invariant 7: "confidence rises
// only by a bounded increment per tick") — without it confidence only
// ever decreases, since applyDelta is the only other place that touches
// it and it only ever clamps down.
func (e *Engine) runConvergence(ctx context.Context) {
	period := e.cfg.FastPeriod
	if period <= 0 {
		period = types.PeriodFast
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.health.ConvergeAll()
		}
	}
}

// Stop shuts every background thread down (§5 "Cancellation").
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.scheduler.Stop()
	e.store.Reclaimer().Stop()
}

// --- Test surface (§6) ---

func (e *Engine) TestCreatePolled(name string, fn graph.TestFunc, userCtx any, period time.Duration) error {
	n, err := e.store.GetOrCreate(name, types.KindTest)
	if err != nil {
		e.cfg.Logger.Errorf("engine: test_create_polled %q: %v", name, err)
		return err
	}
	n.Test.TestKind = types.TestPolled
	n.Test.Function = fn
	n.Test.UserCtx = userCtx
	n.Test.Period = period
	n.Test.DefaultPeriod = period
	n.State = types.Enabled
	e.scheduler.Add(n.ID, "", period, true)
	return nil
}

func (e *Engine) TestCreateNotification(name string) error {
	n, err := e.store.GetOrCreate(name, types.KindTest)
	if err != nil {
		e.cfg.Logger.Errorf("engine: test_create_notification %q: %v", name, err)
		return err
	}
	n.Test.TestKind = types.TestNotification
	n.State = types.Enabled
	return nil
}

// TestNotify implements test_notify: a notification test pushes its own
// result in, bypassing the scheduler entirely.
func (e *Engine) TestNotify(name, instanceName string, obs types.Observation) error {
	n, err := e.store.GetByName(name, types.KindTest)
	if err != nil {
		e.cfg.Logger.Errorf("engine: test_notify %q: %v", name, err)
		return err
	}
	e.sequencer.Publish(context.Background(), n.ID, instanceName, obs)
	return nil
}

func (e *Engine) TestSetAutopass(name string, ms time.Duration) error {
	n, err := e.store.GetByName(name, types.KindTest)
	if err != nil {
		return err
	}
	n.Test.AutopassMS = ms
	return nil
}

func (e *Engine) TestSetFlags(name string, notify bool) error {
	n, err := e.store.GetByName(name, types.KindTest)
	if err != nil {
		return err
	}
	n.Notify = notify
	return nil
}

// TestChainReady marks a test enabled and, for a polled test, re-adds
// it to the scheduler at its period. Only the test itself changes state;
// its output rules keep whatever state they already have.
func (e *Engine) TestChainReady(name string) error {
	n, err := e.store.GetByName(name, types.KindTest)
	if err != nil {
		return err
	}
	n.State = types.Enabled
	if n.Test.TestKind == types.TestPolled {
		e.scheduler.Add(n.ID, "", n.Test.Period, true)
	}
	return nil
}

func (e *Engine) TestDelete(name string) error {
	n, err := e.store.GetByName(name, types.KindTest)
	if err != nil {
		e.cfg.Logger.Warnf("engine: test_delete %q: %v", name, err)
		return nil // NotFound is tolerated (§7)
	}
	e.scheduler.Remove(n.ID, "")
	return e.store.Delete(n.ID)
}

// --- Action surface ---

func (e *Engine) ActionCreate(name string, fn graph.ActionFunc, userCtx any) error {
	n, err := e.store.GetOrCreate(name, types.KindAction)
	if err != nil {
		return err
	}
	n.Action.Function = fn
	n.Action.UserCtx = userCtx
	n.State = types.Enabled
	return nil
}

// ActionCreateUserAlert registers a pre-canned alert action that logs
// message at Warn level and passes, so an alert-only rule still participates in RCI's
// "action already ran" latch without the embedder writing a closure.
func (e *Engine) ActionCreateUserAlert(name, message string) error {
	n, err := e.store.GetOrCreate(name, types.KindAction)
	if err != nil {
		return err
	}
	n.Action.Function = func(ctx context.Context, instanceName string, userCtx any) types.Observation {
		e.cfg.Logger.Warnf("engine: alert %q (%s): %s", name, instanceName, message)
		return types.Passed()
	}
	n.Action.Builtin = true
	n.State = types.Enabled
	return nil
}

func (e *Engine) ActionComplete(name, instanceName string, obs types.Observation) error {
	n, err := e.store.GetByName(name, types.KindAction)
	if err != nil {
		return err
	}
	e.store.RecordObservation(n.ID, instanceName, obs)
	return nil
}

// completeBuiltinAction is the actions.CompletionFunc a scheduled
// built-in reports its real outcome through once its delayed call
// lands — it is what makes action_complete actually fire for
// scheduled-reload/scheduled-switchover instead of silently dropping
// the result behind the InProgress placeholder RunActions recorded.
func (e *Engine) completeBuiltinAction(actionName, instanceName string, obs types.Observation) {
	if err := e.ActionComplete(actionName, instanceName, obs); err != nil {
		e.cfg.Logger.Warnf("engine: scheduled action %q completion: %v", actionName, err)
	}
}

func (e *Engine) ActionDelete(name string) error {
	n, err := e.store.GetByName(name, types.KindAction)
	if err != nil {
		e.cfg.Logger.Warnf("engine: action_delete %q: %v", name, err)
		return nil
	}
	return e.store.Delete(n.ID)
}

// RegisterBuiltinAction wires one of the pre-registered built-ins
// (reload/switchover/scheduled-reload/scheduled-switchover/
// reload-standby/no-op, §3.1) under a caller-chosen rule-facing name.
//
// The two scheduled variants are rebuilt here rather than reused
// straight from the Registry map: their completion needs to report
// against `name` (the node the rule actually references), not the
// builtin key, so a caller registering "scheduled-reload" under e.g.
// "nightly-reload" still resolves action_complete on the right node.
func (e *Engine) RegisterBuiltinAction(name, builtin string) error {
	n, err := e.store.GetOrCreate(name, types.KindAction)
	if err != nil {
		return err
	}
	switch builtin {
	case "scheduled-reload":
		inner := actions.Inner(e.collaborator, "reload")
		n.Action.Function = graph.ActionFunc(actions.ScheduledFunc(name, inner, e.scheduleDelay, e.completeBuiltinAction))
	case "scheduled-switchover":
		inner := actions.Inner(e.collaborator, "switchover")
		n.Action.Function = graph.ActionFunc(actions.ScheduledFunc(name, inner, e.scheduleDelay, e.completeBuiltinAction))
	default:
		fn, ok := e.actions[builtin]
		if !ok {
			return types.NewEngineError(types.ErrInvalidArgument, builtin, nil)
		}
		n.Action.Function = graph.ActionFunc(fn)
	}
	n.Action.Builtin = true
	n.State = types.Enabled
	return nil
}

// --- Rule surface ---

func (e *Engine) RuleCreate(name, inputName, actionName string) error {
	rule, err := e.store.GetOrCreate(name, types.KindRule)
	if err != nil {
		return err
	}
	rule.State = types.Enabled
	if inputName != "" {
		if err := e.RuleAddInput(name, inputName); err != nil {
			return err
		}
	}
	if actionName != "" {
		if err := e.RuleAddAction(name, actionName); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) RuleAddInput(name, inputName string) error {
	rule, err := e.store.GetByName(name, types.KindRule)
	if err != nil {
		return err
	}
	input, err := e.store.GetOrCreate(inputName, types.KindNone)
	if err != nil {
		return err
	}
	rule.Rule.Inputs = append(rule.Rule.Inputs, input.ID)
	if input.Kind == types.KindTest && !input.Test.PrimaryOutput.Valid() {
		input.Test.PrimaryOutput = rule.ID
	} else if input.Kind == types.KindRule {
		input.Rule.Output = rule.ID
	}
	return e.store.Validate(rule.ID)
}

func (e *Engine) RuleAddAction(name, actionName string) error {
	rule, err := e.store.GetByName(name, types.KindRule)
	if err != nil {
		return err
	}
	action, err := e.store.GetOrCreate(actionName, types.KindAction)
	if err != nil {
		return err
	}
	rule.Rule.Actions = append(rule.Rule.Actions, action.ID)
	action.Action.Rules = append(action.Action.Rules, rule.ID)
	return e.store.Validate(rule.ID)
}

func (e *Engine) RuleSetType(name string, op types.Operator, n, m int64) error {
	rule, err := e.store.GetByName(name, types.KindRule)
	if err != nil {
		return err
	}
	if op == types.OpNInM && n > m {
		return types.NewEngineError(types.ErrInvalidArgument, name, nil)
	}
	rule.Rule.Operator = op
	rule.Rule.N, rule.Rule.DefaultN = n, n
	rule.Rule.M, rule.Rule.DefaultM = m, m
	return nil
}

func (e *Engine) RuleSetSeverity(name string, sev types.Severity) error {
	rule, err := e.store.GetByName(name, types.KindRule)
	if err != nil {
		return err
	}
	rule.Rule.Severity = sev
	return nil
}

func (e *Engine) RuleDelete(name string) error {
	n, err := e.store.GetByName(name, types.KindRule)
	if err != nil {
		e.cfg.Logger.Warnf("engine: rule_delete %q: %v", name, err)
		return nil
	}
	return e.store.Delete(n.ID)
}

// --- Component surface ---

func (e *Engine) CompCreate(name string) error {
	_, err := e.store.GetOrCreate(name, types.KindComponent)
	return err
}

func (e *Engine) CompContains(parent, child string) error {
	p, err := e.store.GetByName(parent, types.KindComponent)
	if err != nil {
		return err
	}
	c, err := e.store.GetOrCreate(child, types.KindNone)
	if err != nil {
		return err
	}
	return e.store.LinkIntoComponent(p.ID, c.ID)
}

func (e *Engine) CompContainsMany(parent string, children ...string) error {
	for _, child := range children {
		if err := e.CompContains(parent, child); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) CompDelete(name string) error {
	n, err := e.store.GetByName(name, types.KindComponent)
	if err != nil {
		e.cfg.Logger.Warnf("engine: comp_delete %q: %v", name, err)
		return nil
	}
	return e.store.Delete(n.ID)
}

func (e *Engine) CompHealth(name string) (int, error) {
	n, err := e.store.GetByName(name, types.KindComponent)
	if err != nil {
		return 0, err
	}
	health := e.health.Health(n.ID)
	observeHealth(n.Name, health)
	return health, nil
}

func (e *Engine) CompConfidence(name string) (int, error) {
	n, err := e.store.GetByName(name, types.KindComponent)
	if err != nil {
		return 0, err
	}
	return e.health.Confidence(n.ID), nil
}

// CompSetHealth sets a component's health directly, clamped to [0,1000]
// per invariant 6 (§3.4 "component.health ≤ 1000").
func (e *Engine) CompSetHealth(name string, value int) error {
	n, err := e.store.GetByName(name, types.KindComponent)
	if err != nil {
		return err
	}
	if value < 0 {
		value = 0
	} else if value > 1000 {
		value = 1000
	}
	n.Component.Health = value
	if n.Component.Confidence > value {
		n.Component.Confidence = value
	}
	return nil
}

// CompSetHealthThreshold overrides the health crossing point that
// triggers a component_health_changed notification (§4.9), defaulting
// to Config.HealthThreshold at creation time.
func (e *Engine) CompSetHealthThreshold(name string, threshold int) error {
	n, err := e.store.GetByName(name, types.KindComponent)
	if err != nil {
		return err
	}
	n.Component.Threshold = threshold
	return nil
}

// CompAddInterestedTest subscribes test to component's health (§3.1,
// §4.8): on every health change the test receives the new value as a
// synthetic Value observation, so a rule on that test can alarm on it.
func (e *Engine) CompAddInterestedTest(component, test string) error {
	c, err := e.store.GetByName(component, types.KindComponent)
	if err != nil {
		return err
	}
	t, err := e.store.GetByName(test, types.KindTest)
	if err != nil {
		return err
	}
	return e.store.AddInterestedTest(c.ID, t.ID)
}

// --- Dependencies ---

func (e *Engine) DependCreate(parent, child string) error {
	p, err := e.store.GetOrCreate(parent, types.KindNone)
	if err != nil {
		return err
	}
	c, err := e.store.GetOrCreate(child, types.KindNone)
	if err != nil {
		return err
	}
	_, err = e.store.CreateDepend(p.ID, c.ID)
	return err
}

// --- Enable/disable/default triplets (§6) ---

func (e *Engine) Enable(name string) error  { return e.setState(name, types.Enabled) }
func (e *Engine) Disable(name string) error { return e.setState(name, types.Disabled) }

// Default reverts to whichever of Enabled/Disabled the node's
// DefaultState carries (the triplet's third member, §6).
func (e *Engine) Default(name string) error {
	n, err := e.store.GetByName(name, types.KindNone)
	if err != nil {
		return err
	}
	return e.setState(name, n.DefaultState)
}

func (e *Engine) setState(name string, state types.State) error {
	n, err := e.store.GetByName(name, types.KindNone)
	if err != nil {
		e.cfg.Logger.Warnf("engine: set state on %q: %v", name, err)
		return nil
	}
	n.CLIState = state
	n.State = state
	return nil
}

// --- Distributed deployment hooks (opaque to the core, §6) ---

func (e *Engine) SetMaster(component string) error {
	n, err := e.store.GetByName(component, types.KindComponent)
	if err != nil {
		return err
	}
	e.cfg.Logger.Printf("engine: %q set as master", n.Name)
	return nil
}

func (e *Engine) SetSlave(component string) error {
	n, err := e.store.GetByName(component, types.KindComponent)
	if err != nil {
		return err
	}
	e.cfg.Logger.Printf("engine: %q set as slave", n.Name)
	return nil
}

// --- CLI snapshot passthrough (§6) ---

func (e *Engine) GetInfoHandle(name string, kindFilter types.Kind, instanceName string) (string, error) {
	return e.cli.GetInfoHandle(name, kindFilter, instanceName)
}

func (e *Engine) GetInfo(handle string, max int) ([]map[string]any, error) {
	elements, err := e.cli.GetInfo(handle, max)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(elements))
	for i, el := range elements {
		out[i] = el
	}
	return out, nil
}
