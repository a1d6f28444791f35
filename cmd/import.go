package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hotspot-cli/internal/engine"
	"github.com/sells-group/hotspot-cli/internal/geoio"
	"github.com/sells-group/hotspot-cli/internal/model"
	"github.com/sells-group/hotspot-cli/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load input data into the store",
	Long:  "Upserts areal units or incidents from files into the store so analyze can read them.",
}

var importUnitsCmd = &cobra.Command{
	Use:   "units <file>",
	Short: "Import areal units from GeoJSON or a shapefile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		var (
			units   []model.ArealUnit
			dropped []model.DroppedFeature
			err     error
		)
		if strings.EqualFold(filepath.Ext(path), ".shp") {
			units, dropped, err = geoio.ReadUnitsShapefile(path, shapefileFields(cmd))
		} else {
			units, dropped, err = geoio.ReadUnitsFile(path)
		}
		if err != nil {
			return eris.Wrap(err, "import units")
		}
		units, cleaned := engine.CleanUnits(units)
		dropped = append(dropped, cleaned...)

		return importInto(cmd.Context(), "units", len(dropped), func(ctx context.Context, st store.Store) (int64, error) {
			return st.SaveUnits(ctx, units)
		})
	},
}

var importIncidentsCmd = &cobra.Command{
	Use:   "incidents <file>",
	Short: "Import incidents from GeoJSON, CSV or XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		var (
			incidents []model.Incident
			dropped   []model.DroppedFeature
			err       error
		)
		if strings.EqualFold(filepath.Ext(path), ".xlsx") {
			sheet, _ := cmd.Flags().GetString("sheet")
			incidents, dropped, err = geoio.ReadIncidentsXLSX(path, sheet, tableColumns(cmd))
		} else if strings.EqualFold(filepath.Ext(path), ".csv") {
			f, oerr := os.Open(path)
			if oerr != nil {
				return eris.Wrapf(oerr, "import incidents: open %s", path)
			}
			defer f.Close() //nolint:errcheck
			incidents, dropped, err = geoio.ReadIncidentsCSV(f, tableColumns(cmd))
		} else {
			incidents, dropped, err = geoio.ReadIncidentsFile(path)
		}
		if err != nil {
			return eris.Wrap(err, "import incidents")
		}
		incidents, cleaned := engine.CleanIncidents(incidents)
		dropped = append(dropped, cleaned...)

		return importInto(cmd.Context(), "incidents", len(dropped), func(ctx context.Context, st store.Store) (int64, error) {
			return st.SaveIncidents(ctx, incidents)
		})
	},
}

// importInto opens the store and runs save, reporting the upserted count.
func importInto(ctx context.Context, kind string, dropped int, save func(context.Context, store.Store) (int64, error)) error {
	if err := cfg.Validate("import"); err != nil {
		return err
	}
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	n, err := save(ctx, st)
	if err != nil {
		return eris.Wrapf(err, "import %s", kind)
	}
	zap.L().Info("import complete", zap.String("kind", kind), zap.Int64("rows", n), zap.Int("dropped", dropped))
	fmt.Fprintf(os.Stdout, "Imported %d %s (%d dropped).\n", n, kind, dropped)
	return nil
}

func shapefileFields(cmd *cobra.Command) geoio.ShapefileFields {
	fields := geoio.DefaultShapefileFields
	if v, _ := cmd.Flags().GetString("id-field"); v != "" {
		fields.ID = v
	}
	if v, _ := cmd.Flags().GetString("name-field"); v != "" {
		fields.Name = v
	}
	if v, _ := cmd.Flags().GetString("count-field"); v != "" {
		fields.IncidentCount = v
	}
	if v, _ := cmd.Flags().GetString("road-field"); v != "" {
		fields.RoadLength = v
	}
	return fields
}

func tableColumns(cmd *cobra.Command) geoio.TableColumns {
	cols := geoio.DefaultTableColumns
	if v, _ := cmd.Flags().GetString("id-col"); v != "" {
		cols.ID = v
	}
	if v, _ := cmd.Flags().GetString("x-col"); v != "" {
		cols.X = v
	}
	if v, _ := cmd.Flags().GetString("y-col"); v != "" {
		cols.Y = v
	}
	if v, _ := cmd.Flags().GetString("time-col"); v != "" {
		cols.OccurredAt = v
	}
	return cols
}

func init() {
	uf := importUnitsCmd.Flags()
	uf.String("id-field", "", "shapefile attribute holding the unit id")
	uf.String("name-field", "", "shapefile attribute holding the unit name")
	uf.String("count-field", "", "shapefile attribute holding the incident count")
	uf.String("road-field", "", "shapefile attribute holding the road length")

	inf := importIncidentsCmd.Flags()
	inf.String("sheet", "", "XLSX sheet name (default: first sheet)")
	inf.String("id-col", "", "table column holding the incident id")
	inf.String("x-col", "", "table column holding the x coordinate")
	inf.String("y-col", "", "table column holding the y coordinate")
	inf.String("time-col", "", "table column holding the occurrence time")

	importCmd.AddCommand(importUnitsCmd)
	importCmd.AddCommand(importIncidentsCmd)
	rootCmd.AddCommand(importCmd)
}
