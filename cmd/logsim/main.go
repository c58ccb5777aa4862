// Command logsim is a thin, non-authoritative CLI wrapper around the logsim
// library: it wires Names/Scanner/Parser/Devices/Network/Monitors together,
// runs the cycle loop, and prints (or jq-filters) the resulting traces.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/logsim/config"
	"github.com/sarchlab/logsim/devices"
	"github.com/sarchlab/logsim/internal/logging"
	"github.com/sarchlab/logsim/monitors"
	"github.com/sarchlab/logsim/names"
	"github.com/sarchlab/logsim/network"
	"github.com/sarchlab/logsim/parser"
	"github.com/sarchlab/logsim/scanner"
)

var (
	cyclesFlag    int
	configFlag    string
	switchFlags   []string
	filterFlag    string
	redisAddrFlag string
	verboseFlag   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

var rootCmd = &cobra.Command{
	Use:          "logsim",
	Short:        "Digital logic circuit simulator",
	SilenceUsage: true,
}

func init() {
	runCmd.Flags().IntVar(&cyclesFlag, "cycles", 10, "number of simulation cycles to run")
	runCmd.Flags().StringVar(&configFlag, "config", "", "path to a YAML run-configuration file")
	runCmd.Flags().StringArrayVar(&switchFlags, "switch", nil, "name=0|1 SWITCH override, applied before every cycle")
	runCmd.Flags().StringVar(&filterFlag, "filter", "", "jq expression applied to the JSON trace export before printing")
	runCmd.Flags().StringVar(&redisAddrFlag, "redis", "", "Redis address for optional trace broadcast")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug-level logging")

	rootCmd.AddCommand(runCmd, checkCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <path>",
	Short: "parse a circuit description and run it for a number of cycles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := config.Load(configFlag)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if opts.LogJSON {
			logging.SetJSONFormat()
		}
		logLevel := opts.LogLevel
		if verboseFlag {
			logLevel = "debug"
		}
		if err := logging.SetLogLevel(logLevel); err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}

		cycles := cyclesFlag
		if !cmd.Flags().Changed("cycles") {
			cycles = opts.DefaultCycles
		}

		env, err := buildEnvironment(args[0], opts)
		if err != nil {
			return err
		}
		if !env.ready {
			return fmt.Errorf("%d parse error(s), or network incomplete", env.errorCount)
		}

		overrides, err := parseSwitchOverrides(switchFlags)
		if err != nil {
			return err
		}

		log := logging.WithCircuit(args[0])
		for i := 0; i < cycles; i++ {
			applySwitchOverrides(env, overrides)

			if !env.net.ExecuteNetwork() {
				log.WithField("cycle", i).Warn("network did not settle within the oscillation bound")
				break
			}
			env.mon.RecordSignals()
			env.dev.AdvanceState()
		}

		return printTraces(cmd, env.mon)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <path>",
	Short: "parse a circuit description and report only the error count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := buildEnvironment(args[0], config.Default())
		if err != nil {
			return err
		}
		if !env.ready {
			return fmt.Errorf("%d parse error(s), or network incomplete", env.errorCount)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

// environment bundles the wired-up library state a single CLI invocation
// operates on.
type environment struct {
	names      *names.Names
	dev        *devices.Devices
	net        *network.Network
	mon        *monitors.Monitors
	errorCount int
	ready      bool // true iff parsing succeeded and every input is wired
}

func buildEnvironment(path string, opts config.Options) (*environment, error) {
	n := names.New()

	sc, err := scanner.Open(path, n)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	atexit.Register(func() { sc.Close() })

	d, err := devices.New(n)
	if err != nil {
		return nil, err
	}
	net, err := network.New(n, d)
	if err != nil {
		return nil, err
	}
	net.SetMaxIterations(opts.MaxIterations)

	mon, err := monitors.New(n, d, net)
	if err != nil {
		return nil, err
	}
	if opts.RedisAddr != "" {
		b := monitors.NewBroadcaster(opts.RedisAddr, opts.RedisChannel)
		atexit.Register(func() { b.Close() })
		mon.SetBroadcaster(b)
	} else if redisAddrFlag != "" {
		b := monitors.NewBroadcaster(redisAddrFlag, opts.RedisChannel)
		atexit.Register(func() { b.Close() })
		mon.SetBroadcaster(b)
	}

	p, err := parser.New(n, sc, d, net, mon, os.Stdout)
	if err != nil {
		return nil, err
	}
	ready := p.ParseNetwork()

	return &environment{names: n, dev: d, net: net, mon: mon, errorCount: p.ErrorCount(), ready: ready}, nil
}

// parseSwitchOverrides parses "name=0" / "name=1" flag values.
func parseSwitchOverrides(flags []string) (map[string]devices.SignalLevel, error) {
	overrides := make(map[string]devices.SignalLevel, len(flags))
	for _, f := range flags {
		name, value, found := strings.Cut(f, "=")
		if !found {
			return nil, fmt.Errorf("invalid --switch %q: expected name=0 or name=1", f)
		}
		n, err := strconv.Atoi(value)
		if err != nil || (n != 0 && n != 1) {
			return nil, fmt.Errorf("invalid --switch %q: value must be 0 or 1", f)
		}
		level := devices.LOW
		if n == 1 {
			level = devices.HIGH
		}
		overrides[name] = level
	}
	return overrides, nil
}

func applySwitchOverrides(env *environment, overrides map[string]devices.SignalLevel) {
	for name, level := range overrides {
		devID, _ := env.names.Query(name)
		env.dev.SetSwitch(devID, level)
	}
}

// printTraces renders the recorded traces: Monitors.DisplaySignals by
// default, or a jq-filtered JSON export when --filter is given.
func printTraces(cmd *cobra.Command, mon *monitors.Monitors) error {
	if filterFlag == "" {
		mon.DisplaySignals(cmd.OutOrStdout())
		return nil
	}

	type jsonTrace struct {
		Label   string   `json:"label"`
		Samples []string `json:"samples"`
	}
	traces := mon.GetSignalsForGUI()
	out := make([]jsonTrace, len(traces))
	for i, t := range traces {
		samples := make([]string, len(t.Samples))
		for j, s := range t.Samples {
			samples[j] = s.String()
		}
		out[i] = jsonTrace{Label: t.Label, Samples: samples}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}

	return runFilter(cmd, data)
}

func runFilter(cmd *cobra.Command, data []byte) error {
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return err
	}

	q, err := gojq.Parse(filterFlag)
	if err != nil {
		return fmt.Errorf("invalid --filter expression: %w", err)
	}

	iter := q.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return err
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	}
	return nil
}
