package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/hotspot-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Cluster    ClusterConfig    `yaml:"cluster" mapstructure:"cluster"`
	Footprint  FootprintConfig  `yaml:"footprint" mapstructure:"footprint"`
	LISA       LISAConfig       `yaml:"lisa" mapstructure:"lisa"`
	Weights    WeightsConfig    `yaml:"weights" mapstructure:"weights"`
	Run        RunConfig        `yaml:"run" mapstructure:"run"`
	Input      InputConfig      `yaml:"input" mapstructure:"input"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Report     ReportConfig     `yaml:"report" mapstructure:"report"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ClusterConfig configures the approximate density clustering. The defaults
// are historical values that have not been calibrated against real data.
type ClusterConfig struct {
	Eps        float64 `yaml:"eps" mapstructure:"eps" validate:"gt=0"`
	MinPts     int     `yaml:"min_pts" mapstructure:"min_pts" validate:"gte=0"`
	MinPtsFrac float64 `yaml:"min_pts_frac" mapstructure:"min_pts_frac" validate:"gte=0,lte=1"`
	PctExact   float64 `yaml:"pct_exact" mapstructure:"pct_exact" validate:"gt=0,lte=1"`
	Reps       int     `yaml:"reps" mapstructure:"reps" validate:"gte=1"`
	// Seed 0 draws a time-based seed; the seed used is recorded per run.
	Seed uint64 `yaml:"seed" mapstructure:"seed"`
}

// FootprintConfig configures footprint extraction and smoothing.
type FootprintConfig struct {
	Method            string  `yaml:"method" mapstructure:"method" validate:"oneof=disks hull"`
	RadiusFactor      float64 `yaml:"radius_factor" mapstructure:"radius_factor" validate:"gt=0"`
	Buffer            float64 `yaml:"buffer" mapstructure:"buffer" validate:"gte=0"`
	QuadSegs          int     `yaml:"quad_segs" mapstructure:"quad_segs" validate:"gte=1,lte=64"`
	SimplifyTolerance float64 `yaml:"simplify_tolerance" mapstructure:"simplify_tolerance" validate:"gte=0"`
}

// LISAConfig configures local Moran's I.
type LISAConfig struct {
	Permutations int     `yaml:"permutations" mapstructure:"permutations" validate:"gte=1"`
	Alpha        float64 `yaml:"alpha" mapstructure:"alpha" validate:"gt=0,lt=1"`
	Seed         uint64  `yaml:"seed" mapstructure:"seed"`
}

// WeightsConfig configures contiguity detection.
type WeightsConfig struct {
	Tolerance float64 `yaml:"tolerance" mapstructure:"tolerance" validate:"gte=0"`
}

// RunConfig configures execution.
type RunConfig struct {
	// Workers bounds every worker pool; 0 means GOMAXPROCS.
	Workers int `yaml:"workers" mapstructure:"workers" validate:"gte=0"`
	// WeeklySeries enables the per-unit weekly count table.
	WeeklySeries bool `yaml:"weekly_series" mapstructure:"weekly_series"`
	// CountIncidents recomputes unit incident counts from incident locations.
	CountIncidents bool `yaml:"count_incidents" mapstructure:"count_incidents"`
}

// InputConfig points analyze at GeoJSON files instead of the store.
type InputConfig struct {
	Incidents string `yaml:"incidents" mapstructure:"incidents"`
	Units     string `yaml:"units" mapstructure:"units"`
}

// FromFiles reports whether both inputs come from files.
func (c InputConfig) FromFiles() bool { return c.Incidents != "" && c.Units != "" }

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=postgres sqlite none"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=1"`
}

// ReportConfig configures file reports written after a run.
type ReportConfig struct {
	XLSX    string `yaml:"xlsx" mapstructure:"xlsx"`
	Summary string `yaml:"summary" mapstructure:"summary"`
	GeoJSON string `yaml:"geojson_dir" mapstructure:"geojson_dir"`
}

// MetricsConfig configures Prometheus metrics output.
type MetricsConfig struct {
	// Textfile is a node exporter textfile collector path. Empty disables.
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// MonitoringConfig configures run health checks and webhook alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold" validate:"gte=0,lte=1"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours" validate:"gte=1"`
	// StaleAfterHours alerts when no run completed within the window. 0 disables.
	StaleAfterHours   int `yaml:"stale_after_hours" mapstructure:"stale_after_hours" validate:"gte=0"`
	CheckIntervalSecs int `yaml:"check_interval_secs" mapstructure:"check_interval_secs" validate:"gte=0"`
	// WebhookRPS caps webhook posts per second. 0 disables the limit.
	WebhookRPS float64 `yaml:"webhook_rps" mapstructure:"webhook_rps" validate:"gte=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HOTSPOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("cluster.eps", 0.15)
	v.SetDefault("cluster.min_pts", 0)
	v.SetDefault("cluster.min_pts_frac", 0.01)
	v.SetDefault("cluster.pct_exact", 0.5)
	v.SetDefault("cluster.reps", 50)
	v.SetDefault("cluster.seed", 0)
	v.SetDefault("footprint.method", "disks")
	v.SetDefault("footprint.radius_factor", 0.6)
	v.SetDefault("footprint.buffer", 10)
	v.SetDefault("footprint.quad_segs", 8)
	v.SetDefault("footprint.simplify_tolerance", 0)
	v.SetDefault("lisa.permutations", 999)
	v.SetDefault("lisa.alpha", 0.05)
	v.SetDefault("lisa.seed", 12345)
	v.SetDefault("weights.tolerance", 1e-9)
	v.SetDefault("run.workers", 0)
	v.SetDefault("run.weekly_series", false)
	v.SetDefault("run.count_incidents", false)
	v.SetDefault("input.incidents", "")
	v.SetDefault("input.units", "")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "hotspot.db")
	v.SetDefault("store.max_conns", 5)
	v.SetDefault("report.xlsx", "")
	v.SetDefault("report.summary", "")
	v.SetDefault("report.geojson_dir", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.stale_after_hours", 0)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.webhook_rps", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks ranges and the settings required by mode. Modes: analyze,
// migrate, runs, export, import, monitor.
func (c *Config) Validate(mode string) error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return eris.Wrap(err, "config: validate")
		}
		for _, fe := range verrs {
			errs = append(errs, fieldMessage(fe))
		}
	}

	if c.Cluster.MinPts == 0 && c.Cluster.MinPtsFrac == 0 {
		errs = append(errs, "cluster.min_pts must be >= 1 (or set cluster.min_pts_frac)")
	}

	needsStore := false
	switch mode {
	case "analyze":
		needsStore = !c.Input.FromFiles() || c.Store.Driver != "none"
		if (c.Input.Incidents == "") != (c.Input.Units == "") {
			errs = append(errs, "input.incidents and input.units must be set together")
		}
	case "migrate", "runs", "export", "import", "monitor":
		needsStore = true
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if needsStore {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required")
			}
		case "sqlite":
			if c.Store.SQLitePath == "" {
				errs = append(errs, "store.sqlite_path is required")
			}
		case "none":
			if mode != "analyze" {
				errs = append(errs, fmt.Sprintf("store.driver none cannot be used with %s", mode))
			} else if !c.Input.FromFiles() {
				errs = append(errs, "store.driver none requires input.incidents and input.units")
			}
		}
	}

	if len(errs) > 0 {
		return eris.Wrapf(model.ErrConfig, "config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Namespace()
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	switch fe.Tag() {
	case "gt":
		return fmt.Sprintf("%s must be > %s", name, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", name, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be < %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", name, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", name, fe.Tag())
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
