// Package config loads the ETL run configuration.
//
// Precedence, lowest to highest: built-in defaults derived from the project
// root, an optional YAML/JSON/TOML file, then ETL_* environment variables
// (nested keys joined with "_", e.g. ETL_OUTLIER_K, ETL_WAREHOUSE_DSN).
package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// ETLConfig is the resolved configuration of one run. It is passed by value.
type ETLConfig struct {
	Root string `mapstructure:"root"`

	Input     InputConfig     `mapstructure:"input"`
	Output    OutputConfig    `mapstructure:"output"`
	Clean     CleanConfig     `mapstructure:"clean"`
	Outlier   OutlierConfig   `mapstructure:"outlier"`
	Join      JoinConfig      `mapstructure:"join"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Warehouse WarehouseConfig `mapstructure:"warehouse"`
}

// InputConfig locates the raw TSV extracts.
type InputConfig struct {
	Orders string `mapstructure:"orders"`
	Users  string `mapstructure:"users"`
}

// OutputConfig locates the run outputs.
type OutputConfig struct {
	OrdersClean string `mapstructure:"orders_clean"`
	Users       string `mapstructure:"users"`
	Analytics   string `mapstructure:"analytics"`
	RunMeta     string `mapstructure:"run_meta"`
}

// CleanConfig holds optional cleaning steps. Both are off by default.
type CleanConfig struct {
	// DedupeOrders keeps the latest row per order_id by created_at.
	DedupeOrders bool `mapstructure:"dedupe_orders"`
	// StatusMap canonicalizes status_clean values after normalization
	// ("payed" -> "paid"). Keys are matched after normalization.
	StatusMap map[string]string `mapstructure:"status_map"`
}

// OutlierConfig parameterizes the amount outlier step.
type OutlierConfig struct {
	K        float64 `mapstructure:"k"`
	WinsorLo float64 `mapstructure:"winsor_lo"`
	WinsorHi float64 `mapstructure:"winsor_hi"`
}

type JoinConfig struct {
	Suffix string `mapstructure:"suffix"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// Env selects the encoder: "development" (console) or "production" (JSON).
	Env string `mapstructure:"env"`
}

type MetricsConfig struct {
	// Backend is "none", "pushgateway" or "datadog".
	Backend        string `mapstructure:"backend"`
	Job            string `mapstructure:"job"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Tags           string `mapstructure:"tags"`
}

// WarehouseConfig enables the optional database sink. An empty Kind disables it.
type WarehouseConfig struct {
	Kind        string `mapstructure:"kind"`
	DSN         string `mapstructure:"dsn"`
	TablePrefix string `mapstructure:"table_prefix"`
	BatchSize   int    `mapstructure:"batch_size"`
}

// Paths returns the data layout for c.Root.
func (c ETLConfig) Paths() Paths { return MakePaths(c.Root) }

// Default returns the default configuration for a project root.
func Default(root string) ETLConfig {
	p := MakePaths(root)
	return ETLConfig{
		Root: root,
		Input: InputConfig{
			Orders: filepath.Join(p.Raw, "orders.csv"),
			Users:  filepath.Join(p.Raw, "users.csv"),
		},
		Output: OutputConfig{
			OrdersClean: filepath.Join(p.Processed, "orders_clean.parquet"),
			Users:       filepath.Join(p.Processed, "users.parquet"),
			Analytics:   filepath.Join(p.Processed, "analytics_table.parquet"),
			RunMeta:     filepath.Join(p.Processed, "_run_meta.json"),
		},
		Outlier:   OutlierConfig{K: 1.5, WinsorLo: 0.01, WinsorHi: 0.99},
		Join:      JoinConfig{Suffix: "_user"},
		Log:       LogConfig{Level: "info", Env: "production"},
		Metrics:   MetricsConfig{Backend: "none", Job: "analytics_etl", PushgatewayURL: "http://localhost:9091"},
		Warehouse: WarehouseConfig{TablePrefix: "etl_", BatchSize: 1000},
	}
}

// Load resolves the configuration, reading path when non-empty.
//
// A non-empty root (the -root flag) wins over a root from the file or
// ETL_ROOT. Path defaults are derived from whichever root is chosen, so
// moving the root moves every path that was not set explicitly.
func Load(path, root string) (ETLConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("ETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return ETLConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	switch {
	case root != "":
		v.Set("root", root)
	case v.IsSet("root"):
		root = v.GetString("root")
	default:
		root = "."
	}
	for k, val := range flatten(Default(root)) {
		v.SetDefault(k, val)
	}

	var cfg ETLConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ETLConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// flatten returns c as dotted viper keys. It is also the stringified form
// recorded in run metadata.
func flatten(c ETLConfig) map[string]any {
	return map[string]any{
		"root":                    c.Root,
		"input.orders":            c.Input.Orders,
		"input.users":             c.Input.Users,
		"output.orders_clean":     c.Output.OrdersClean,
		"output.users":            c.Output.Users,
		"output.analytics":        c.Output.Analytics,
		"output.run_meta":         c.Output.RunMeta,
		"clean.dedupe_orders":     c.Clean.DedupeOrders,
		"outlier.k":               c.Outlier.K,
		"outlier.winsor_lo":       c.Outlier.WinsorLo,
		"outlier.winsor_hi":       c.Outlier.WinsorHi,
		"join.suffix":             c.Join.Suffix,
		"log.level":               c.Log.Level,
		"log.env":                 c.Log.Env,
		"metrics.backend":         c.Metrics.Backend,
		"metrics.job":             c.Metrics.Job,
		"metrics.pushgateway_url": c.Metrics.PushgatewayURL,
		"metrics.tags":            c.Metrics.Tags,
		"warehouse.kind":          c.Warehouse.Kind,
		"warehouse.dsn":           c.Warehouse.DSN,
		"warehouse.table_prefix":  c.Warehouse.TablePrefix,
		"warehouse.batch_size":    c.Warehouse.BatchSize,
	}
}

// Stringify renders c as flat string pairs for run metadata. The warehouse
// DSN is redacted since it may carry credentials.
func Stringify(c ETLConfig) map[string]string {
	out := make(map[string]string)
	for k, v := range flatten(c) {
		switch x := v.(type) {
		case float64:
			out[k] = strconv.FormatFloat(x, 'g', -1, 64)
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	out["clean.status_map"] = fmt.Sprint(c.Clean.StatusMap)
	if out["warehouse.dsn"] != "" {
		out["warehouse.dsn"] = "REDACTED"
	}
	return out
}
