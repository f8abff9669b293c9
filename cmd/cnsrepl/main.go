package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abaikov/cnstra-sub003/pkg/cns"
	"github.com/abaikov/cnstra-sub003/pkg/core"
	"github.com/abaikov/cnstra-sub003/pkg/demo"
)

// shell holds the state a REPL session shares across commands.
type shell struct {
	facade      *cns.Facade
	autoCleanup bool
	history     []core.ResponseRecord
}

func main() {
	var autoCleanup bool

	rootCmd := &cobra.Command{
		Use:   "cnsrepl",
		Short: "cnsrepl - interactive shell over the demo neuron topology",
		Long:  "Drops into an interactive shell that stimulates the demo topology, inspects strongly connected components, and replays stimulation history, similar in spirit to redis-cli.",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := cns.New(demo.Build(), cns.FacadeOptions{AutoCleanupContexts: autoCleanup})
			if err != nil {
				return fmt.Errorf("failed to build topology: %w", err)
			}
			s := &shell{facade: f, autoCleanup: autoCleanup}
			s.facade.AddResponseListener(func(r core.ResponseRecord) <-chan error {
				s.history = append(s.history, r)
				return nil
			})
			runREPL(s)
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.Flags().BoolVar(&autoCleanup, "auto-cleanup", true, "Enable SCC-based context auto-cleanup")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
