package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shopload/shopload/internal/config"
	"github.com/shopload/shopload/internal/loadtest/engine"
	"github.com/shopload/shopload/internal/loadtest/output"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a load test against the shop API",
	Long: `Execute a load test with configurable user counts, spawn rates and
duration. Load shape and thresholds come from a YAML config file,
command line flags, or both (flags override the file).

Config file mode:
  shopload run --config soak.yaml

Quick CLI mode:
  shopload run --host http://localhost:8080 \
    --profile standard --users 50 --spawn-rate 5 --duration 10m

Arrival rate mode:
  shopload run --host http://localhost:8080 \
    --profile high-load --rate 100 --max-vus 200 --duration 5m`,
	Run: func(cmd *cobra.Command, args []string) {
		runLoadTest(cmd, args)
	},
}

// runLoadTest loads the configuration, runs the engine and reports.
func runLoadTest(cmd *cobra.Command, args []string) {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	outputPath, _ := cmd.Flags().GetString("output")

	cfg, err := loadRunConfig(cmd, configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	totalDuration := cfg.Duration.GetDuration(1 * time.Minute)

	consoleOutput := output.NewConsoleOutput(output.ConsoleOutputConfig{
		RunName:        cfg.Name,
		Host:           cfg.Host,
		Profiles:       cfg.Profiles,
		TotalDuration:  totalDuration,
		UpdateInterval: time.Second,
		Quiet:          quiet,
	})

	if verbose && !quiet {
		fmt.Printf("Starting load test against %s\n", cfg.Host)
		for _, name := range cfg.Profiles {
			fmt.Printf("  Profile: %s\n", name)
		}
		fmt.Println()
	}

	consoleOutput.PrintHeader()

	// Ctrl-C stops the run gracefully; results are still reported
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	var result *engine.TestResult
	var runErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		result, runErr = eng.Run(ctx)
	}()

	updateTicker := time.NewTicker(time.Second)
	defer updateTicker.Stop()

	targetVUs := targetVUCount(cfg)

progressLoop:
	for {
		select {
		case <-updateTicker.C:
			if eng.IsRunning() {
				stats := output.StatsFromMetrics(eng.GetMetrics(), eng.GetProgress(), totalDuration, targetVUs)
				if consoleOutput.IsTTY() {
					consoleOutput.Update(stats)
				} else if !quiet {
					consoleOutput.PrintNonInteractiveUpdate(stats)
				}
			} else {
				break progressLoop
			}
		default:
			if !eng.IsRunning() && result != nil {
				break progressLoop
			}
			time.Sleep(100 * time.Millisecond)
		}
	}

	wg.Wait()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error running test: %v\n", runErr)
		// Continue to output results even on error
	}

	if result != nil {
		consoleOutput.PrintSummary(result)

		if jsonOutput || outputPath != "" {
			writeJSONResult(result, outputPath)
		}
	}

	if result != nil && !result.Passed {
		os.Exit(1)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

// loadRunConfig builds the run configuration from the config file and
// flags. Flags that were set override file values.
func loadRunConfig(cmd *cobra.Command, configFile string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	flags := cmd.Flags()

	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("profile") {
		cfg.Profiles, _ = flags.GetStringArray("profile")
	}
	if flags.Changed("users") {
		cfg.Users, _ = flags.GetInt("users")
	}
	if flags.Changed("spawn-rate") {
		cfg.SpawnRate, _ = flags.GetFloat64("spawn-rate")
	}
	if flags.Changed("rate") {
		cfg.Rate, _ = flags.GetFloat64("rate")
	}
	if flags.Changed("max-vus") {
		cfg.MaxVUs, _ = flags.GetInt("max-vus")
	}
	if flags.Changed("duration") {
		d, _ := flags.GetDuration("duration")
		cfg.Duration = config.Duration(d)
	}
	if flags.Changed("timeout") {
		t, _ := flags.GetDuration("timeout")
		cfg.Timeout = config.Duration(t)
	}

	return cfg, nil
}

// targetVUCount picks the VU count shown in the live display.
func targetVUCount(cfg *config.Config) int {
	if cfg.Rate > 0 && cfg.MaxVUs > cfg.Users {
		return cfg.MaxVUs
	}
	return cfg.Users
}

// writeJSONResult writes the run result as JSON to a file or stdout.
func writeJSONResult(result *engine.TestResult, outputPath string) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling result: %v\n", err)
		return
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing result to file: %v\n", err)
			return
		}
		fmt.Printf("Results written to: %s\n", outputPath)
	} else {
		fmt.Println(string(data))
	}
}

func init() {
	runCmd.Flags().StringP("config", "c", "", "YAML configuration file")
	runCmd.Flags().String("host", "", "Base URL of the target API")
	runCmd.Flags().StringArrayP("profile", "p", nil, "Scenario profile to run (repeatable)")
	runCmd.Flags().IntP("users", "u", 0, "Number of concurrent virtual users")
	runCmd.Flags().Float64("spawn-rate", 0, "Users spawned per second (0 = start all at once)")
	runCmd.Flags().Float64("rate", 0, "Iterations per second (switches to arrival-rate mode)")
	runCmd.Flags().Int("max-vus", 0, "Maximum VUs for arrival-rate mode")
	runCmd.Flags().DurationP("duration", "d", 0, "Run duration (e.g. 30s, 10m)")
	runCmd.Flags().Duration("timeout", 0, "HTTP request timeout")
	runCmd.Flags().Bool("json", false, "Output results as JSON")
	runCmd.Flags().StringP("output", "o", "", "Write JSON results to this file")
	runCmd.Flags().BoolP("quiet", "q", false, "Disable live progress output, show only pass/fail")
	runCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output")
}
