package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/cestsim/internal/automation"
	"github.com/san-kum/cestsim/internal/config"
	"github.com/san-kum/cestsim/internal/experiment"
	"github.com/san-kum/cestsim/internal/optim"
	"github.com/san-kum/cestsim/internal/storage"
)

var (
	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int
	targetPPM  float64
	gridSpecs  []string
	trials     int
	b0Spread   float64
	b1Spread   float64
	seed       int64
	saveRuns   bool
)

func batchCommands() []*cobra.Command {
	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a yaml scenario of presets and overrides",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	scenarioCmd.Flags().BoolVar(&saveRuns, "save", true, "store every step as a run")

	sweepCmd := &cobra.Command{
		Use:   "sweep [preset]",
		Short: "vary one parameter and report the asymmetry",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringVar(&sweepParam, "param", "b1", "parameter name ("+strings.Join(config.ScalarParams(), ", ")+", or <pool>_<field>)")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0.5, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 4, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 8, "number of values")
	sweepCmd.Flags().Float64Var(&targetPPM, "target", 3.5, "offset of interest in ppm")

	optimizeCmd := &cobra.Command{
		Use:   "optimize [preset]",
		Short: "grid-search protocol parameters for the largest asymmetry",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runOptimize,
	}
	optimizeCmd.Flags().StringArrayVar(&gridSpecs, "grid", []string{"b1=0.5:4:8"}, "name=min:max:n, repeatable")
	optimizeCmd.Flags().Float64Var(&targetPPM, "target", 3.5, "offset of interest in ppm")

	mcCmd := &cobra.Command{
		Use:   "montecarlo [preset]",
		Short: "asymmetry spread under random B0/B1 imperfections",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	mcCmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	mcCmd.Flags().Float64Var(&b0Spread, "b0-spread", 0.1, "maximum B0 offset in ppm")
	mcCmd.Flags().Float64Var(&b1Spread, "b1-spread", 0.1, "maximum relative B1 deviation")
	mcCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 for time based)")
	mcCmd.Flags().Float64Var(&targetPPM, "target", 3.5, "offset of interest in ppm")

	return []*cobra.Command{scenarioCmd, sweepCmd, optimizeCmd, mcCmd}
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	results, runErr := automation.RunScenario(ctx, sc, experiment.NewRegistry())
	st := storage.New(dataDir)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tMODE\tPROP\tMIN Z\tMAX ASYM\tRUN ID")
	for _, r := range results {
		runID := "-"
		if saveRuns {
			if runID, err = st.Save(r.Name, r.Config, r.Outcome.Result, r.Outcome.Spectrum); err != nil {
				return err
			}
		}
		sum := r.Outcome.Spectrum.Summary()
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%.4f @ %.2f\t%s\n",
			r.Name, r.Outcome.Result.Mode, r.Outcome.Result.Strategy, sum.MinZ, sum.MaxAsym, sum.MaxAsymOffset, runID)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return runErr
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadPreset(presetArg(args))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	results, err := automation.RunSweep(ctx, &automation.ParameterSweep{
		Base:      cfg,
		ParamName: sweepParam,
		ParamMin:  sweepMin,
		ParamMax:  sweepMax,
		NumSteps:  sweepSteps,
		TargetPPM: targetPPM,
	}, experiment.NewRegistry())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tMIN Z\tZ(%.2f)\tMTRASYM(%.2f)\n", strings.ToUpper(sweepParam), targetPPM, targetPPM)
	for _, r := range results {
		asym := "-"
		if r.HasAsym {
			asym = fmt.Sprintf("%.4f", r.Asym)
		}
		fmt.Fprintf(w, "%.4g\t%.4f\t%.4f\t%s\n", r.ParamValue, r.MinZ, r.ZTarget, asym)
	}
	return w.Flush()
}

// parseGrid reads "name=min:max:n" into a parameter name and its values.
func parseGrid(spec string) (string, []float64, error) {
	name, rng, ok := strings.Cut(spec, "=")
	parts := strings.Split(rng, ":")
	if !ok || name == "" || len(parts) != 3 {
		return "", nil, fmt.Errorf("grid %q: want name=min:max:n", spec)
	}
	lo, err1 := strconv.ParseFloat(parts[0], 64)
	hi, err2 := strconv.ParseFloat(parts[1], 64)
	n, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || n < 1 {
		return "", nil, fmt.Errorf("grid %q: want name=min:max:n", spec)
	}
	return name, optim.Linspace(lo, hi, n), nil
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := loadPreset(presetArg(args))
	if err != nil {
		return err
	}

	names := make([]string, 0, len(gridSpecs))
	ranges := make([][]float64, 0, len(gridSpecs))
	for _, spec := range gridSpecs {
		name, vals, err := parseGrid(spec)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, vals)
	}

	ctx, cancel := signalContext()
	defer cancel()

	g := optim.NewGridSearch(names, ranges, experiment.NewRegistry())
	best, val, evaluated, err := g.Search(ctx, cfg, optim.MaximizeAsym(targetPPM))
	if err != nil {
		return err
	}

	failed := 0
	for _, t := range evaluated {
		if t.Err != nil {
			failed++
		}
	}

	keys := make([]string, 0, len(best))
	for k := range best {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("evaluated %d grid points (%d failed)\n", len(evaluated), failed)
	fmt.Printf("best MTRasym(%.2f ppm): %.4f\n", targetPPM, -val)
	for _, k := range keys {
		fmt.Printf("  %s = %.4g\n", k, best[k])
	}
	return nil
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := loadPreset(presetArg(args))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	results, err := automation.RunMonteCarlo(ctx, &automation.MonteCarloConfig{
		Base:      cfg,
		B0Spread:  b0Spread,
		B1Spread:  b1Spread,
		NumTrials: trials,
		TargetPPM: targetPPM,
		Seed:      seed,
	}, experiment.NewRegistry())
	if err != nil {
		return err
	}

	stable, unstable, mean, std := automation.MonteCarloStats(results)
	fmt.Printf("trials: %d stable, %d failed\n", stable, unstable)
	fmt.Printf("MTRasym(%.2f ppm): %.4f ± %.4f\n", targetPPM, mean, std)
	return nil
}
