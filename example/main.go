// Command example wires up a tiny two-test diagnostics tree: a leaf
// CPU test feeding a rule, a leaf memory test feeding another, both
// rolled into a component whose health reacts to either failing.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/swdiag/core/engine"
	"github.com/swdiag/core/types"
)

func main() {
	cfg := types.NewConfig(types.WithFastPeriod(200 * time.Millisecond))
	e := engine.New(cfg, nil)

	must(e.CompCreate("host"))
	must(e.TestCreatePolled("cpu-check", cpuTest, nil, 200*time.Millisecond))
	must(e.TestCreatePolled("mem-check", memTest, nil, 200*time.Millisecond))
	must(e.RuleCreate("cpu-rule", "cpu-check", ""))
	must(e.RuleSetType("cpu-rule", types.OpOnFail, 0, 0))
	must(e.RuleSetSeverity("cpu-rule", types.SevHigh))
	must(e.RuleCreate("mem-rule", "mem-check", ""))
	must(e.RuleSetType("mem-rule", types.OpOnFail, 0, 0))
	must(e.RuleSetSeverity("mem-rule", types.SevMedium))
	must(e.CompContainsMany("host", "cpu-rule", "mem-rule"))
	must(e.ActionCreateUserAlert("page-oncall", "host is unhealthy"))
	must(e.RuleAddAction("cpu-rule", "page-oncall"))
	must(e.TestChainReady("cpu-check"))
	must(e.TestChainReady("mem-check"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	<-ctx.Done()
	health, _ := e.CompHealth("host")
	fmt.Printf("host health after run: %d\n", health)
}

func cpuTest(ctx context.Context, instanceName string, userCtx any) types.Observation {
	return types.Failed()
}

func memTest(ctx context.Context, instanceName string, userCtx any) types.Observation {
	return types.Passed()
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
