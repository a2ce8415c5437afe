// Command flowdemo runs the flowcore example scenarios from the command
// line, grounded on the teacher pack's cmd/main.go and cmd/demo.go
// (a cobra root command wrapping a small named-example registry).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowforge/flowcore"
	"github.com/flowforge/flowcore/examples"
	"github.com/flowforge/flowcore/export"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "flowdemo",
	Short:   "Run flowcore example flows",
	Version: version,
}

func main() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(listCmd, runCmd, graphCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// scenario bundles a named example's flow, container, and description so
// list/run/graph can share one registry.
type scenario struct {
	name        string
	description string
	build       func() (*flowcore.Flow, *flowcore.BasicContainer)
}

var scenarios = []scenario{
	{"sum", "Two activities read constants; a third sums their results", examples.SumTwoInputs},
	{"condition", "A condition routes between two output activities", examples.ConditionBranches},
	{"fault", "An activity faults and its default handler absorbs the error",
		func() (*flowcore.Flow, *flowcore.BasicContainer) {
			return examples.ActivityFault(fmt.Errorf("flowdemo: simulated failure"))
		}},
	{"forkjoin", "Three branches run concurrently and join into a consumer",
		func() (*flowcore.Flow, *flowcore.BasicContainer) {
			flow, c, _, _, _ := examples.ForkJoinConcurrency()
			return flow, c
		}},
	{"forkjoin-fault", "One forked branch faults unrecoverably and cancels its siblings",
		func() (*flowcore.Flow, *flowcore.BasicContainer) {
			return examples.ForkJoinChildFault(fmt.Errorf("flowdemo: branch failure"))
		}},
	{"forkjoin-default-recovery", "One forked branch faults with no own handler; the fork-join's default handler absorbs it once, and the consumer never runs",
		func() (*flowcore.Flow, *flowcore.BasicContainer) {
			return examples.ForkJoinDefaultRecovery(fmt.Errorf("flowdemo: unhandled branch failure"))
		}},
	{"retry", "An activity that fails twice succeeds under a resilience.Retry wrapper",
		examples.RetryableFlakyCall},
}

func findScenario(name string) (scenario, bool) {
	for _, s := range scenarios {
		if s.name == name {
			return s, true
		}
	}
	return scenario{}, false
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available scenarios",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("Available scenarios:")
		fmt.Println()
		for _, s := range scenarios {
			fmt.Printf("  %-16s %s\n", s.name, s.description)
		}
	},
}

var runCmd = &cobra.Command{
	Use:       "run [scenario]",
	Short:     "Run a scenario and print its outcome",
	Args:      cobra.ExactArgs(1),
	ValidArgs: scenarioNames(),
	RunE: func(_ *cobra.Command, args []string) error {
		s, ok := findScenario(args[0])
		if !ok {
			return fmt.Errorf("unknown scenario %q (see \"flowdemo list\")", args[0])
		}

		flow, container := s.build()
		result := flow.Run(context.Background(), container)

		fmt.Printf("scenario:  %s\n", s.name)
		fmt.Printf("outcome:   %s\n", result.Outcome)
		if result.Validation != nil {
			for _, e := range result.Validation.Errors {
				fmt.Printf("  error: %s\n", e.Error())
			}
		}
		if result.Err != nil {
			fmt.Printf("error:     %v\n", result.Err)
		}
		return nil
	},
}

var graphCmd = &cobra.Command{
	Use:       "graph [scenario]",
	Short:     "Render a scenario's flow graph as an ASCII tree",
	Args:      cobra.ExactArgs(1),
	ValidArgs: scenarioNames(),
	RunE: func(_ *cobra.Command, args []string) error {
		s, ok := findScenario(args[0])
		if !ok {
			return fmt.Errorf("unknown scenario %q (see \"flowdemo list\")", args[0])
		}

		flow, _ := s.build()
		fmt.Println(export.Render(flow.Describe()))
		return nil
	},
}

func scenarioNames() []string {
	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.name
	}
	return names
}
