package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/abaikov/cnstra-sub003/pkg/cascade"
	"github.com/abaikov/cnstra-sub003/pkg/cns"
	"github.com/abaikov/cnstra-sub003/pkg/core"
	"github.com/abaikov/cnstra-sub003/pkg/demo"
	"github.com/abaikov/cnstra-sub003/pkg/ledger"
	"github.com/abaikov/cnstra-sub003/pkg/watchdog"
)

func main() {
	var cliOverrides core.CLIOverrides

	rootCmd := &cobra.Command{
		Use:   "cnsdemo",
		Short: "cnsdemo - runs one stimulation through the sample topology",
		Long: "Builds a small demo neuron topology (relay, fan-out, ping/pong cycle) and fires one signal through it, printing every response trace.\n" +
			"The ping/pong pair never settles on its own; pass --max-neuron-hops when stimulating \"ping\" or \"pong\" directly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Flags(), &cliOverrides, args)
		},
		Args:         cobra.MaximumNArgs(2),
		SilenceUsage: true,
	}

	f := rootCmd.Flags()
	cliOverrides.ConfigPath = f.StringP("config", "f", "", "Path to YAML config file (overrides CNS_CONFIG env)")
	cliOverrides.Concurrency = f.Int("concurrency", 0, "Global pump concurrency (0 = unbounded)")
	cliOverrides.MaxNeuronHops = f.Int("max-neuron-hops", 0, "Per-neuron hop cap (0 = unbounded)")
	cliOverrides.AutoCleanupContexts = f.Bool("auto-cleanup", false, "Delete a neuron's context once it can never run again this stimulation")
	cliOverrides.LedgerPath = f.String("ledger-path", "", "Path to the stimulation audit ledger (disabled if empty)")
	cliOverrides.WatchdogIdleTimeout = f.Duration("watchdog-idle", 0, "Abort the stimulation if idle this long (0 disables)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run builds the demo topology, resolves config the same way the
// library's facade is meant to be embedded, and fires one root signal:
// args[0] is the collateral to stimulate (default "ingest"), args[1]
// its string payload.
func run(flags *pflag.FlagSet, cliOverrides *core.CLIOverrides, args []string) error {
	core.PrintBanner()

	configPath := ""
	if cliOverrides.ConfigPath != nil && *cliOverrides.ConfigPath != "" {
		configPath = *cliOverrides.ConfigPath
	} else {
		configPath = os.Getenv("CNS_CONFIG")
	}

	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyExplicitFlags(flags, &cfg, cliOverrides)

	f, err := cns.New(demo.Build(), cns.FacadeOptions{AutoCleanupContexts: cfg.AutoCleanupContexts})
	if err != nil {
		return fmt.Errorf("failed to build topology: %w", err)
	}
	log.Println("topology built: 7 neurons")

	var led *ledger.Ledger
	if cfg.LedgerPath != "" {
		led, err = ledger.Open(cfg.LedgerPath)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		log.Printf("ledger open at %s (%d prior entries)", cfg.LedgerPath, len(led.List()))
	}

	collateral := demo.CollateralIngest
	var payload any = "  Hello CNS  "
	if len(args) >= 1 {
		collateral = core.CollateralName(args[0])
	}
	if len(args) >= 2 {
		payload = args[1]
	}

	var wd *watchdog.Watchdog
	opts := cascade.Options{
		Concurrency:   cfg.DefaultConcurrency,
		MaxNeuronHops: cfg.DefaultMaxNeuronHops,
		OnResponse: func(r core.ResponseRecord) <-chan error {
			line, _ := json.Marshal(r)
			fmt.Println(string(line))
			if wd != nil {
				wd.Kick()
			}
			return nil
		},
	}

	if cfg.WatchdogIdleTimeout > 0 {
		abortHandle := cascade.NewAbortHandle()
		opts.AbortSignal = abortHandle
		wd = watchdog.Start(cfg.WatchdogIdleTimeout, func() {
			log.Println("watchdog: idle timeout exceeded, aborting stimulation")
			abortHandle.Abort()
		})
		defer wd.Stop()
	}

	started := time.Now()
	sig := core.Signal{CollateralName: collateral, Payload: payload}
	h := f.StimulateOne(sig, opts)
	stimErr := h.WaitUntilComplete()
	if wd != nil {
		wd.Stop()
	}

	failed := h.GetFailedTasks()
	log.Printf("stimulation %s settled in %s: %d task(s), %d failed", h.StimulationID(), time.Since(started), len(h.GetAllActivationTasks()), len(failed))

	if led != nil {
		if err := ledger.RecordFromHandle(led, h.StimulationID(), started, len(h.GetAllActivationTasks()), len(failed), stimErr); err != nil {
			log.Printf("ledger record failed: %v", err)
		}
	}

	if stimErr != nil {
		return fmt.Errorf("stimulation did not complete cleanly: %w", stimErr)
	}
	return nil
}

// applyExplicitFlags applies only the CLI flags explicitly set by the
// user, so unset flags never clobber values resolved from YAML or env.
func applyExplicitFlags(flags *pflag.FlagSet, cfg *core.Config, o *core.CLIOverrides) {
	overrides := core.CLIOverrides{}
	if flags.Changed("concurrency") {
		overrides.Concurrency = o.Concurrency
	}
	if flags.Changed("max-neuron-hops") {
		overrides.MaxNeuronHops = o.MaxNeuronHops
	}
	if flags.Changed("auto-cleanup") {
		overrides.AutoCleanupContexts = o.AutoCleanupContexts
	}
	if flags.Changed("ledger-path") {
		overrides.LedgerPath = o.LedgerPath
	}
	if flags.Changed("watchdog-idle") {
		overrides.WatchdogIdleTimeout = o.WatchdogIdleTimeout
	}
	*cfg = cfg.WithOverrides(&overrides)
}
