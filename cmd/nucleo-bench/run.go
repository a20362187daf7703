package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nucleo-dev/nucleo/pkg/nucleo"
)

type runConfig struct {
	Scenario   string
	Iterations int
	Depth      int
	Width      int
	JSONOutput bool
}

// result is the report for one benchmark run.
type result struct {
	Scenario      string  `json:"scenario"`
	Iterations    int     `json:"iterations"`
	Depth         int     `json:"depth,omitempty"`
	Width         int     `json:"width,omitempty"`
	Notifications int     `json:"notifications"`
	Elapsed       string  `json:"elapsed"`
	OpsPerSecond  float64 `json:"opsPerSecond"`
}

func runCmd() *cobra.Command {
	cfg := runConfig{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a synthetic store benchmark",
		Long: `Run a synthetic benchmark against an in-memory store.

Scenarios:
  chain   one primitive feeding a derived chain of --depth atoms,
          with a subscriber on the tail
  fanout  one primitive feeding --width subscribed derived atoms
  churn   repeated subscribe/unsubscribe cycles over a derived chain`,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runScenario(cfg)
			if err != nil {
				return err
			}
			if cfg.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(res)
			}
			fmt.Printf("scenario:      %s\n", res.Scenario)
			fmt.Printf("iterations:    %d\n", res.Iterations)
			fmt.Printf("notifications: %d\n", res.Notifications)
			fmt.Printf("elapsed:       %s\n", res.Elapsed)
			fmt.Printf("ops/sec:       %.0f\n", res.OpsPerSecond)
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.Scenario, "scenario", "chain", "Scenario to run (chain, fanout, churn)")
	cmd.Flags().IntVar(&cfg.Iterations, "iterations", 100000, "Number of iterations")
	cmd.Flags().IntVar(&cfg.Depth, "depth", 32, "Chain depth (chain, churn)")
	cmd.Flags().IntVar(&cfg.Width, "width", 32, "Fan-out width (fanout)")
	cmd.Flags().BoolVar(&cfg.JSONOutput, "json", false, "Emit the result as JSON")

	return cmd
}

func runScenario(cfg runConfig) (result, error) {
	switch cfg.Scenario {
	case "chain":
		return runChain(cfg)
	case "fanout":
		return runFanOut(cfg)
	case "churn":
		return runChurn(cfg)
	default:
		return result{}, fmt.Errorf("unknown scenario %q", cfg.Scenario)
	}
}

// buildChain returns the root primitive and the tail of a derived chain of
// the given depth, each atom adding one to its predecessor.
func buildChain(depth int) (*nucleo.WritableAtom[int, int], *nucleo.Atom[int]) {
	root := nucleo.NewPrimitive(0, nucleo.WithLabel("root"))
	tail := root.ReadOnly()
	for i := 0; i < depth; i++ {
		prev := tail
		tail = nucleo.NewDerived(func(g *nucleo.Getter) (int, error) {
			v, err := prev.Get(g)
			return v + 1, err
		})
	}
	return root, tail
}

func runChain(cfg runConfig) (result, error) {
	store := nucleo.NewStore()
	root, tail := buildChain(cfg.Depth)

	notifications := 0
	unsub := store.Subscribe(tail, func() { notifications++ })
	defer unsub()

	start := time.Now()
	for i := 0; i < cfg.Iterations; i++ {
		if err := root.Set(store, i+1); err != nil {
			return result{}, err
		}
	}
	elapsed := time.Since(start)

	v, err := tail.Get(store)
	if err != nil {
		return result{}, err
	}
	if v != cfg.Iterations+cfg.Depth {
		return result{}, fmt.Errorf("chain result mismatch: got %d, want %d", v, cfg.Iterations+cfg.Depth)
	}

	return report("chain", cfg, notifications, elapsed), nil
}

func runFanOut(cfg runConfig) (result, error) {
	store := nucleo.NewStore()
	root := nucleo.NewPrimitive(0, nucleo.WithLabel("root"))

	notifications := 0
	for i := 0; i < cfg.Width; i++ {
		offset := i
		d := nucleo.NewDerived(func(g *nucleo.Getter) (int, error) {
			v, err := root.Get(g)
			return v + offset, err
		})
		unsub := store.Subscribe(d, func() { notifications++ })
		defer unsub()
	}

	start := time.Now()
	for i := 0; i < cfg.Iterations; i++ {
		if err := root.Set(store, i+1); err != nil {
			return result{}, err
		}
	}
	elapsed := time.Since(start)

	return report("fanout", cfg, notifications, elapsed), nil
}

func runChurn(cfg runConfig) (result, error) {
	store := nucleo.NewStore()
	root, tail := buildChain(cfg.Depth)
	if err := root.Set(store, 1); err != nil {
		return result{}, err
	}

	notifications := 0
	start := time.Now()
	for i := 0; i < cfg.Iterations; i++ {
		unsub := store.Subscribe(tail, func() { notifications++ })
		unsub()
	}
	elapsed := time.Since(start)

	if mounted := store.MountedCount(); mounted != 0 {
		return result{}, fmt.Errorf("mount leak: %d atoms still mounted", mounted)
	}

	return report("churn", cfg, notifications, elapsed), nil
}

func report(scenario string, cfg runConfig, notifications int, elapsed time.Duration) result {
	res := result{
		Scenario:      scenario,
		Iterations:    cfg.Iterations,
		Notifications: notifications,
		Elapsed:       elapsed.String(),
	}
	switch scenario {
	case "chain", "churn":
		res.Depth = cfg.Depth
	case "fanout":
		res.Width = cfg.Width
	}
	if secs := elapsed.Seconds(); secs > 0 {
		res.OpsPerSecond = float64(cfg.Iterations) / secs
	}
	return res
}
