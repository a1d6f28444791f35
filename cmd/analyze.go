package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hotspot-cli/internal/engine"
	"github.com/sells-group/hotspot-cli/internal/geoio"
	"github.com/sells-group/hotspot-cli/internal/model"
	"github.com/sells-group/hotspot-cli/internal/monitoring"
	"github.com/sells-group/hotspot-cli/internal/report"
	"github.com/sells-group/hotspot-cli/internal/store"
)

var analyzeCmd = &cobra.Command{
	Use:       "analyze [all|lisa|clusters]",
	Short:     "Run the hotspot analysis",
	Long:      "Runs local Moran's I on areal units and/or density clustering on incidents, then replaces the stored output tables.",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(model.RunModeAll), string(model.RunModeLISA), string(model.RunModeClusters)},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mode, err := parseMode(args)
		if err != nil {
			return err
		}
		applyAnalyzeFlags(cmd)
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		var st store.Store
		if cfg.Store.Driver != "none" {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		snap, err := loadSnapshot(ctx, st)
		if err != nil {
			return err
		}

		var sink engine.Sink
		if dryRun, _ := cmd.Flags().GetBool("dry-run"); st != nil && !dryRun {
			sink = st
		}

		metrics := monitoring.NewMetrics()
		res, run, err := engine.New(cfg, metrics).Execute(ctx, sink, mode, snap)
		if werr := metrics.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			zap.L().Warn("analyze: failed to write metrics textfile", zap.Error(werr))
		}
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		if err := writeReports(res); err != nil {
			return err
		}
		formatSummary(os.Stdout, run, res.Summary)
		return nil
	},
}

func parseMode(args []string) (model.RunMode, error) {
	if len(args) == 0 {
		return model.RunModeAll, nil
	}
	mode := model.RunMode(args[0])
	if !mode.Valid() {
		return "", eris.Wrapf(model.ErrConfig, "unknown mode %q (want all, lisa or clusters)", args[0])
	}
	return mode, nil
}

// applyAnalyzeFlags overrides configuration with explicitly set flags.
func applyAnalyzeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("incidents") {
		cfg.Input.Incidents, _ = flags.GetString("incidents")
	}
	if flags.Changed("units") {
		cfg.Input.Units, _ = flags.GetString("units")
	}
	if flags.Changed("seed") {
		cfg.Cluster.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("workers") {
		cfg.Run.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("xlsx") {
		cfg.Report.XLSX, _ = flags.GetString("xlsx")
	}
	if flags.Changed("summary") {
		cfg.Report.Summary, _ = flags.GetString("summary")
	}
	if flags.Changed("geojson-dir") {
		cfg.Report.GeoJSON, _ = flags.GetString("geojson-dir")
	}
}

// loadSnapshot reads inputs from files when both are configured, otherwise
// from the store.
func loadSnapshot(ctx context.Context, st store.Store) (engine.Snapshot, error) {
	var snap engine.Snapshot
	if cfg.Input.FromFiles() {
		incidents, dropped, err := geoio.ReadIncidentsFile(cfg.Input.Incidents)
		if err != nil {
			return snap, eris.Wrap(err, "load incidents")
		}
		snap.Incidents = incidents
		snap.Dropped = append(snap.Dropped, dropped...)

		units, dropped, err := geoio.ReadUnitsFile(cfg.Input.Units)
		if err != nil {
			return snap, eris.Wrap(err, "load units")
		}
		snap.Units = units
		snap.Dropped = append(snap.Dropped, dropped...)
		return snap, nil
	}
	if st == nil {
		return snap, eris.Wrap(model.ErrConfig, "no input files and no store")
	}

	var err error
	if snap.Incidents, err = st.LoadIncidents(ctx); err != nil {
		return snap, eris.Wrap(err, "load incidents")
	}
	if snap.Units, err = st.LoadUnits(ctx); err != nil {
		return snap, eris.Wrap(err, "load units")
	}
	return snap, nil
}

func writeReports(res *model.Result) error {
	if path := cfg.Report.XLSX; path != "" {
		if err := report.WriteXLSX(path, res); err != nil {
			return err
		}
	}
	if path := cfg.Report.Summary; path != "" {
		err := geoio.WriteFile(path, func(w io.Writer) error {
			return report.WriteSummary(w, res.Summary)
		})
		if err != nil {
			return err
		}
	}
	if dir := cfg.Report.GeoJSON; dir != "" {
		if err := report.WriteGeoJSON(dir, res); err != nil {
			return err
		}
	}
	return nil
}

// formatSummary writes a short run report to out.
func formatSummary(out io.Writer, run *model.Run, s *model.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if run != nil {
		_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
		_, _ = fmt.Fprintf(w, "Seed:\t%d\n", run.Seed)
	}
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", s.Status)
	_, _ = fmt.Fprintf(w, "Incidents:\t%d\n", s.Incidents)
	_, _ = fmt.Fprintf(w, "Units:\t%d\n", s.Units)
	if s.Mode.Includes(model.RunModeClusters) {
		_, _ = fmt.Fprintf(w, "Clusters:\t%d\n", s.Clusters)
		_, _ = fmt.Fprintf(w, "Period footprints:\t%d\n", s.PeriodFootprints)
		_, _ = fmt.Fprintf(w, "Stability regions:\t%d\n", s.Regions)
	}
	if s.Mode.Includes(model.RunModeLISA) {
		_, _ = fmt.Fprintf(w, "Significant units:\t%d\n", s.Significant)
		_, _ = fmt.Fprintf(w, "Islands:\t%d\n", s.Islands)
	}
	if len(s.Dropped) > 0 {
		_, _ = fmt.Fprintf(w, "Dropped:\t%d\n", len(s.Dropped))
	}
	for _, warn := range s.Warnings {
		_, _ = fmt.Fprintf(w, "Warning:\t%s\n", warn)
	}
	_ = w.Flush()
}

func init() {
	f := analyzeCmd.Flags()
	f.String("incidents", "", "incident file (.geojson, .csv or .xlsx); overrides input.incidents")
	f.String("units", "", "areal unit file (.geojson or .shp); overrides input.units")
	f.Uint64("seed", 0, "clustering seed; 0 draws a time-based seed")
	f.Int("workers", 0, "worker pool size; 0 uses GOMAXPROCS")
	f.String("xlsx", "", "write an XLSX report to this path")
	f.String("summary", "", "write a YAML run summary to this path")
	f.String("geojson-dir", "", "write GeoJSON outputs into this directory")
	f.Bool("dry-run", false, "run without recording the run or replacing stored outputs")
	rootCmd.AddCommand(analyzeCmd)
}
