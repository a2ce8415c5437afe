// Package flowcore provides a lightweight, type-safe, in-process workflow
// engine for executing user-authored flowcharts.
//
// # Overview
//
// A flow is a directed graph whose nodes represent discrete units of work
// (activities), control-flow constructs (condition, switch, fork-join,
// block), and error-recovery hooks (fault and cancellation handlers).
// flowcore validates the graph ahead of execution, resolves dependencies
// between units through typed bindings, and runs the flow with defined
// concurrency, data-flow, and failure semantics.
//
// # Core Concepts
//
//   - Node: a vertex of the flow graph (Activity, Condition, Switch,
//     ForkJoin, Block, or FaultHandler).
//   - Binding: a declarative assignment from a constant, another
//     activity's result, or an expression, to an activity input property.
//   - ResultThunk: a write-once typed cell holding an activity's result
//     after it completes successfully.
//   - Variable: a scoped, mutable typed cell updated at well-defined
//     points during execution.
//   - Flow: the immutable, validated bundle produced by Builder.Build.
//
// # Quick Start
//
//	b := flowcore.NewBuilder("sum-two-inputs")
//	a := flowcore.AddActivity[int, ReadNumber](b, "read-a", "Read A", "Value")
//	c := flowcore.AddActivity[int, ReadNumber](b, "read-b", "Read B", "Value")
//	sum := flowcore.AddActivity[int, SumNumbers](b, "sum", "Sum", "FirstNumber", "SecondNumber")
//	b.Bind(a, "Value").ToConstant(2)
//	b.Bind(c, "Value").ToConstant(3)
//	b.Bind(sum, "FirstNumber").ToResultOf(a)
//	b.Bind(sum, "SecondNumber").ToResultOf(c)
//	a.ConnectTo(c)
//	c.ConnectTo(sum)
//	b.WithInitialNode(a)
//	b.WithDefaultFaultHandler(fallback)
//	b.WithDefaultCancellationHandler(fallback)
//
//	flow, result := b.Build()
//	if result.HasErrors() {
//	    log.Fatal(result.Errors)
//	}
//	outcome := flow.Run(context.Background(), container)
//
// # Observability
//
// The executor emits structured log signals (capitan), trace spans
// (tracez), metric counters (metricz), and event hooks (hookz) at defined
// points. All four are optional: a Run call given no observability
// options emits nothing.
package flowcore
