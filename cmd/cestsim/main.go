package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/cestsim/internal/analysis"
	"github.com/san-kum/cestsim/internal/config"
	"github.com/san-kum/cestsim/internal/experiment"
	"github.com/san-kum/cestsim/internal/export"
	"github.com/san-kum/cestsim/internal/sim"
	"github.com/san-kum/cestsim/internal/storage"
	"github.com/san-kum/cestsim/internal/store"
	"github.com/san-kum/cestsim/internal/viz"
)

var (
	dataDir  string
	logLevel string

	configFile string
	propagator string
	parallel   bool
	noReset    bool
	maxSamples int
	b1         float64
	numOffsets int
	fallback   bool
	live       bool
	plot       bool
	svgPath    string
	noSave     bool
	theme      string

	outPath string
	repeats int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cestsim",
		Short: "Bloch-McConnell CEST and MT simulator",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".cestsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "simulate a z-spectrum",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml), overrides the preset")
	runCmd.Flags().StringVar(&propagator, "propagator", config.DefaultPropagator, "propagation strategy (eigen, pade, rk45)")
	runCmd.Flags().BoolVar(&parallel, "parallel", false, "step all offsets as one batch")
	runCmd.Flags().BoolVar(&noReset, "no-reset", false, "keep the magnetization across readouts")
	runCmd.Flags().IntVar(&maxSamples, "max-samples", 0, "maximum propagation steps per pulse")
	runCmd.Flags().Float64Var(&b1, "b1", 0, "saturation amplitude in µT")
	runCmd.Flags().IntVar(&numOffsets, "offsets", 0, "number of offsets")
	runCmd.Flags().BoolVar(&fallback, "fallback", false, "retry with pade on numerical failure")
	runCmd.Flags().BoolVar(&live, "live", false, "show a live monitor")
	runCmd.Flags().BoolVar(&plot, "plot", true, "plot the z-spectrum when done")
	runCmd.Flags().StringVar(&svgPath, "svg", "", "write the z-spectrum as svg")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	runCmd.Flags().StringVar(&theme, "theme", viz.CurrentTheme.Name, "monitor theme ("+strings.Join(viz.ThemeNames(), ", ")+")")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}
	showCmd.Flags().StringVar(&svgPath, "svg", "", "also write the z-spectrum as svg")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tB0\tPOOLS\tMT\tPULSES")
			for _, name := range config.ListPresets() {
				cfg := config.GetPreset(name)
				mt := "-"
				if cfg.MT != nil {
					mt = cfg.MT.Lineshape
				}
				fmt.Fprintf(w, "%s\t%.1fT\t%d\t%s\t%d x %s\n",
					name, cfg.Scanner.B0, len(cfg.CEST)+1, mt, cfg.Protocol.NumPulses, cfg.Protocol.Shape)
			}
			return w.Flush()
		},
	}

	dumpCmd := &cobra.Command{
		Use:   "dump-config [preset]",
		Short: "write a preset as yaml for editing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPreset(args[0])
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = args[0] + ".yaml"
			}
			if err := config.Save(outPath, cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", outPath)
			return nil
		},
	}
	dumpCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default <preset>.yaml)")

	compareCmd := &cobra.Command{
		Use:   "compare [preset] [propagator1] [propagator2]",
		Short: "run a preset under two propagators and report the deviation",
		Args:  cobra.RangeArgs(1, 3),
		RunE:  comparePropagators,
	}

	benchCmd := &cobra.Command{
		Use:   "bench [preset]",
		Short: "time sequential and parallel runs",
		Args:  cobra.MaximumNArgs(1),
		RunE:  benchPreset,
	}
	benchCmd.Flags().IntVar(&repeats, "n", 3, "repetitions per configuration")

	rootCmd.AddCommand(runCmd, listCmd, showCmd, exportJSONCmd, presetsCmd, dumpCmd, compareCmd, benchCmd)
	rootCmd.AddCommand(batchCommands()...)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadPreset(name string) (*config.Config, error) {
	cfg := config.GetPreset(name)
	if cfg == nil {
		return nil, fmt.Errorf("unknown preset: %s (available: %v)", name, config.ListPresets())
	}
	return cfg, nil
}

func presetArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "amide_3t"
}

// resolveConfig layers preset, config file and explicitly set flags.
func resolveConfig(cmd *cobra.Command, name string) (*config.Config, error) {
	cfg, err := loadPreset(name)
	if err != nil {
		return nil, err
	}
	if configFile != "" {
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("propagator") {
		cfg.Options.Propagator = propagator
	}
	if flags.Changed("parallel") {
		cfg.Options.Parallel = parallel
	}
	if flags.Changed("no-reset") {
		cfg.Options.ResetInitMag = !noReset
	}
	if flags.Changed("max-samples") {
		cfg.Options.MaxPulseSamples = maxSamples
	}
	if flags.Changed("b1") {
		cfg.Protocol.B1 = b1
	}
	if flags.Changed("offsets") {
		cfg.Protocol.OffsetsPPM = nil
		cfg.Protocol.NumOffsets = numOffsets
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	name := presetArg(args)
	cfg, err := resolveConfig(cmd, name)
	if err != nil {
		return err
	}

	exp := experiment.New(cfg, experiment.NewRegistry())
	if err := exp.Setup(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var out *experiment.Outcome
	if live {
		out, err = runLive(ctx, cancel, name, exp)
	} else {
		logrus.Infof("running %s (%d offsets, %s)", name, len(cfg.Protocol.Offsets()), cfg.Options.Propagator)
		out, err = execute(ctx, exp)
	}
	if err != nil {
		return err
	}

	printOutcome(out)

	if svgPath != "" {
		if err := export.WriteSpectrumSVG(svgPath, out.Spectrum, export.DefaultSVGOptions()); err != nil {
			return err
		}
		fmt.Printf("svg: %s\n", svgPath)
	}

	if noSave {
		return nil
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(name, cfg, out.Result, out.Spectrum)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func execute(ctx context.Context, exp *experiment.Experiment) (*experiment.Outcome, error) {
	if fallback {
		return exp.RunWithFallback(ctx)
	}
	return exp.Run(ctx)
}

// runLive drives the bubbletea monitor while the run proceeds in the
// background. Log output is muted so it does not tear the screen.
func runLive(ctx context.Context, cancel context.CancelFunc, name string, exp *experiment.Experiment) (*experiment.Outcome, error) {
	viz.SetTheme(theme)

	cfg := exp.Config()
	mode := sim.Sequential
	if cfg.Options.Parallel {
		mode = sim.Parallel
	}
	model := viz.NewProgressModel(viz.ProgressConfig{
		Title:      name,
		Mode:       mode.String(),
		Propagator: cfg.Options.Propagator,
		OffsetsPPM: exp.Sequence().OffsetsPPM,
		RunM0Scan:  exp.Sequence().RunM0Scan,
		Readouts:   exp.Sequence().Readouts(),
		Model:      exp.Model(),
		Cancel:     cancel,
	})

	p := tea.NewProgram(model)
	prev := logrus.StandardLogger().Out
	logrus.SetOutput(io.Discard)
	defer logrus.SetOutput(prev)

	type done struct {
		out *experiment.Outcome
		err error
	}
	ch := make(chan done, 1)
	go func() {
		var (
			out *experiment.Outcome
			err error
		)
		if fallback {
			out, err = exp.RunWithFallback(ctx, viz.Forward(p))
		} else {
			exp.GetRunner().AddObserver(viz.Forward(p))
			out, err = exp.Run(ctx)
		}
		msg := viz.DoneMsg{Err: err}
		if out != nil {
			msg.Spectrum = out.Spectrum
		}
		p.Send(msg)
		ch <- done{out, err}
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-ch
		return nil, err
	}
	res := <-ch
	return res.out, res.err
}

func printOutcome(out *experiment.Outcome) {
	res := out.Result
	fmt.Printf("completed in %v (%s, %s)\n", res.Elapsed.Round(time.Millisecond), res.Mode, res.Strategy)
	fmt.Printf("readouts: %d, propagation steps: %d\n", res.Buffer.Len(), res.Steps)
	printSummary(out.Spectrum)
	if plot {
		fmt.Println()
		fmt.Println(viz.PlotSpectrum(out.Spectrum, 70, 12))
	}
}

func printSummary(spec *analysis.Spectrum) {
	sum := spec.Summary()
	fmt.Printf("M0: %.4f\n", sum.M0)
	fmt.Printf("min Z: %.4f at %+.2f ppm\n", sum.MinZ, sum.MinZOffset)
	if v, ok := spec.MTRAsym().Lookup(3.5); ok {
		fmt.Printf("MTRasym(3.5 ppm): %.4f\n", v)
	}
	fmt.Printf("max MTRasym: %.4f at %.2f ppm\n", sum.MaxAsym, sum.MaxAsymOffset)
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRESET\tTIME\tMODE\tPROP\tREADOUTS\tELAPSED\tMIN Z")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%.1fms\t%.4f\n",
			run.ID,
			run.Preset,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Mode,
			run.Propagator,
			run.Readouts,
			run.ElapsedMs,
			run.Summary.MinZ,
		)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	spec, err := st.LoadSpectrum(runID)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("preset: %s (%.1f T, %s, %s)\n", meta.Preset, meta.B0, meta.Mode, meta.Propagator)
	fmt.Printf("readouts: %d\n\n", meta.Readouts)
	printSummary(spec)

	fmt.Println()
	fmt.Println(viz.PlotSpectrum(spec, 70, 12))
	if asym := viz.PlotAsymmetry(spec, 70, 8); asym != "" {
		fmt.Println()
		fmt.Println(asym)
	}
	fmt.Println()
	fmt.Print(analysis.ScatterASCII(spec.SpectrumPoints(), 70, 16, true))

	if svgPath != "" {
		if err := export.WriteSpectrumSVG(svgPath, spec, export.DefaultSVGOptions()); err != nil {
			return err
		}
		fmt.Printf("\nsvg: %s\n", svgPath)
	}
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	spec, err := st.LoadSpectrum(runID)
	if err != nil {
		return err
	}
	buf, err := st.LoadMagnetization(runID)
	if err != nil {
		return err
	}

	res := &sim.Result{Buffer: buf, Strategy: meta.Propagator, Steps: meta.Steps}
	if meta.Mode == sim.Parallel.String() {
		res.Mode = sim.Parallel
	}
	data := store.NewExportData(meta.Preset, res, spec)

	if outPath == "" {
		return store.ExportJSONStdout(data)
	}
	return store.ExportJSON(outPath, data)
}

func comparePropagators(cmd *cobra.Command, args []string) error {
	cfg, err := loadPreset(args[0])
	if err != nil {
		return err
	}
	a, b := "eigen", "pade"
	if len(args) > 1 {
		a = args[1]
	}
	if len(args) > 2 {
		b = args[2]
	}

	ctx, cancel := signalContext()
	defer cancel()

	cmp, err := experiment.Compare(ctx, cfg, experiment.NewRegistry(), a, b)
	if err != nil {
		return err
	}

	fmt.Printf("comparing propagators for %s\n\n", args[0])
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROPAGATOR\tTIME")
	for i, name := range cmp.Strategies {
		fmt.Fprintf(w, "%s\t%v\n", name, cmp.Elapsed[i].Round(time.Microsecond))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nmax |ΔM|: %.3e\n", cmp.MaxDeviation)
	fmt.Printf("max |ΔZ|: %.3e\n", cmp.MaxZDeviation)
	return nil
}

func benchPreset(cmd *cobra.Command, args []string) error {
	name := presetArg(args)
	base, err := loadPreset(name)
	if err != nil {
		return err
	}
	registry := experiment.NewRegistry()

	fmt.Printf("benchmarking %s\n\n", name)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROP\tMODE\tSTEPS\tTIME\tSTEPS/SEC")

	for _, prop := range registry.ListPropagators() {
		for _, par := range []bool{false, true} {
			cfg := base.Clone()
			cfg.Options.Propagator = prop
			cfg.Options.Parallel = par
			cfg.Options.ResetInitMag = cfg.Options.ResetInitMag || par

			var best time.Duration
			steps := 0
			for i := 0; i < max(repeats, 1); i++ {
				exp := experiment.New(cfg, registry)
				if err := exp.Setup(); err != nil {
					return err
				}
				out, err := exp.Run(context.Background())
				if err != nil {
					return err
				}
				if best == 0 || out.Result.Elapsed < best {
					best = out.Result.Elapsed
				}
				steps = out.Result.Steps
			}

			mode := sim.Sequential
			if par {
				mode = sim.Parallel
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%.0f\n",
				prop, mode, steps, best.Round(time.Microsecond), float64(steps)/best.Seconds())
		}
	}
	return w.Flush()
}
