package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	ctl "github.com/statetune/statetune/ctl"
	"github.com/statetune/statetune/ctl/trace"
)

var (
	// CLI flags for the control loop
	seed           int64   // Seed for plant measurement noise
	iterations     int     // Number of control iterations to run
	logLevel       string  // Log verbosity level
	tablePath      string  // Path to the control-state table YAML
	constraintType string  // Constraint type (performance or power)
	goal           float64 // Constraint goal (> 0)
	period         uint32  // Iterations between decisions
	bufferDepth    uint32  // Observation window and trace flush depth
	idleThreshold  float64 // Idle fraction above which idle states are preferred
	smoothing      string  // Smoothing statistic (mean or ewma)
	ewmaAlpha      float64 // Newest-sample weight for ewma smoothing
	traceFile      string  // Path for the append-only iteration log (optional)

	// CLI flags for the synthetic plant
	basePerf  float64 // Plant performance at state 0
	basePower float64 // Plant power at state 0
	noise     float64 // Relative stddev of plant measurement noise
	idleNs    uint64  // Idle time the plant reports each iteration

	// CLI flags for telemetry
	mqttBroker string // MQTT broker URL (empty disables telemetry)
	mqttTopic  string // MQTT topic for iteration records
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "statetune",
	Short: "Closed-loop performance/power controller over discrete control states",
}

// runCmd drives the controller against a synthetic plant using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control loop against a synthetic plant",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		// Pick up STATETUNE_DISABLE_* toggles, optionally from a .env file
		if err := godotenv.Load(); err != nil {
			logrus.Debugf("no .env file loaded: %v", err)
		}

		if tablePath == "" {
			logrus.Fatalf("Control-state table not provided. Exiting.")
		}
		states, err := LoadTable(tablePath)
		if err != nil {
			logrus.Fatalf("unable to load control-state table: %v", err)
		}

		ctype, err := ctl.ParseConstraintType(constraintType)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		cfg := ctl.ConfigFromEnv()
		cfg.Period = period
		cfg.BufferDepth = bufferDepth
		cfg.IdleThreshold = &idleThreshold
		cfg.Smoothing = ctl.SmoothingKind(smoothing)
		cfg.EWMAAlpha = ewmaAlpha

		var opts []ctl.Option
		if traceFile != "" {
			sink, err := trace.OpenFileLog(traceFile, int(bufferDepth))
			if err != nil {
				logrus.Fatalf("unable to open trace log: %v", err)
			}
			if err := sink.WriteHeader(); err != nil {
				logrus.Fatalf("unable to write trace header: %v", err)
			}
			opts = append(opts, ctl.WithTraceLog(sink))
		}

		var publisher *telemetryPublisher
		if mqttBroker != "" {
			publisher, err = newTelemetryPublisher(mqttBroker, mqttTopic, "statetune")
			if err != nil {
				logrus.Fatalf("unable to set up telemetry: %v", err)
			}
			defer publisher.Close()
		}

		plant := newSimPlant(seed, basePerf, basePower, noise, idleNs)
		controller, err := ctl.New(cfg, ctl.Constraint{Type: ctype, Goal: goal}, states, plant, opts...)
		if err != nil {
			logrus.Fatalf("unable to construct controller: %v", err)
		}

		logrus.Infof("Starting control loop: %d states, constraint=%s goal=%g period=%d depth=%d",
			len(states), ctype, goal, period, bufferDepth)

		records := make([]trace.Record, 0, iterations)
		for i := 1; i <= iterations; i++ {
			perf, power, idle := plant.Measure(states)
			controller.Step(uint64(i), perf, power, idle)
			r := trace.Record{
				IterationID:   uint64(i),
				Performance:   perf,
				Power:         power,
				IdleNs:        idle,
				ChosenStateID: controller.CurrentStateID(),
			}
			records = append(records, r)
			if publisher != nil {
				publisher.Publish(r)
			}
		}

		if err := controller.Close(); err != nil {
			logrus.Warnf("controller close: %v", err)
		}

		summary := trace.Summarize(records)
		logrus.Infof("Ran %d iterations across %d states (mean perf=%.4g, mean power=%.4g)",
			summary.TotalIterations, summary.UniqueStates, summary.MeanPerformance, summary.MeanPower)
		for id, count := range summary.StateDistribution {
			logrus.Infof("  state %d: %d iterations", id, count)
		}

		logrus.Info("Control loop complete.")
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {

	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for plant measurement noise")
	runCmd.Flags().IntVar(&iterations, "iterations", 1000, "Number of control iterations to run")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

	// Controller configs
	runCmd.Flags().StringVar(&tablePath, "table", "", "Path to the control-state table YAML")
	runCmd.Flags().StringVar(&constraintType, "constraint", "performance", "Constraint type (performance or power)")
	runCmd.Flags().Float64Var(&goal, "goal", 1.0, "Constraint goal (performance floor or cost ceiling)")
	runCmd.Flags().Uint32Var(&period, "period", 20, "Iterations between decisions")
	runCmd.Flags().Uint32Var(&bufferDepth, "buffer-depth", 16, "Observation window and trace flush depth")
	runCmd.Flags().Float64Var(&idleThreshold, "idle-threshold", ctl.DefaultIdleThreshold, "Idle fraction above which idle states are preferred")
	runCmd.Flags().StringVar(&smoothing, "smoothing", "mean", "Smoothing statistic (mean or ewma)")
	runCmd.Flags().Float64Var(&ewmaAlpha, "ewma-alpha", ctl.DefaultEWMAAlpha, "Newest-sample weight for ewma smoothing")
	runCmd.Flags().StringVar(&traceFile, "trace-file", "", "Path for the append-only iteration log")

	// Synthetic plant configs
	runCmd.Flags().Float64Var(&basePerf, "base-perf", 1.0, "Plant performance at state 0")
	runCmd.Flags().Float64Var(&basePower, "base-power", 1.0, "Plant power at state 0")
	runCmd.Flags().Float64Var(&noise, "noise", 0.05, "Relative stddev of plant measurement noise")
	runCmd.Flags().Uint64Var(&idleNs, "idle-ns", 0, "Idle time the plant reports each iteration")

	// Telemetry configs
	runCmd.Flags().StringVar(&mqttBroker, "mqtt-broker", "", "MQTT broker URL (empty disables telemetry)")
	runCmd.Flags().StringVar(&mqttTopic, "mqtt-topic", "statetune/iterations", "MQTT topic for iteration records")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
