package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hotspot-cli/internal/geoio"
	"github.com/sells-group/hotspot-cli/internal/report"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the stored output tables to files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		geojsonDir, _ := cmd.Flags().GetString("geojson-dir")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")
		shpPath, _ := cmd.Flags().GetString("shapefile")
		if geojsonDir == "" && xlsxPath == "" && shpPath == "" {
			return eris.New("export: set at least one of --geojson-dir, --xlsx or --shapefile")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := st.LoadResult(ctx)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		if geojsonDir != "" {
			if err := report.WriteGeoJSON(geojsonDir, res); err != nil {
				return err
			}
		}
		if xlsxPath != "" {
			if err := report.WriteXLSX(xlsxPath, res); err != nil {
				return err
			}
		}
		if shpPath != "" {
			fps := append(append(res.AllTime[:0:0], res.AllTime...), res.Periods...)
			if err := geoio.WriteFootprintsShapefile(shpPath, fps); err != nil {
				return err
			}
		}

		zap.L().Info("export complete",
			zap.String("run_id", res.RunID),
			zap.Int("footprints", len(res.AllTime)+len(res.Periods)),
			zap.Int("regions", len(res.Regions)),
			zap.Int("units", len(res.Stats)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("geojson-dir", "", "write one GeoJSON file per output table into this directory")
	exportCmd.Flags().String("xlsx", "", "write an XLSX workbook to this path")
	exportCmd.Flags().String("shapefile", "", "write all footprints to this .shp path")
	rootCmd.AddCommand(exportCmd)
}
