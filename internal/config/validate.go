package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Severity classifies a validation Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one configuration problem. Path is the dotted config key.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

var tablePrefixRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks c and returns every issue found. Missing input files are
// warnings so a config can be validated before data arrives.
func Validate(c ETLConfig) []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	for path, v := range map[string]string{"input.orders": c.Input.Orders, "input.users": c.Input.Users} {
		if strings.TrimSpace(v) == "" {
			add(SeverityError, path, "is required")
			continue
		}
		if _, err := os.Stat(v); err != nil {
			add(SeverityWarning, path, "not readable: %v", err)
		}
	}

	outputs := []struct{ path, v string }{
		{"output.orders_clean", c.Output.OrdersClean},
		{"output.users", c.Output.Users},
		{"output.analytics", c.Output.Analytics},
		{"output.run_meta", c.Output.RunMeta},
	}
	seen := map[string]string{}
	for _, o := range outputs {
		if strings.TrimSpace(o.v) == "" {
			add(SeverityError, o.path, "is required")
			continue
		}
		if prev, dup := seen[o.v]; dup {
			add(SeverityError, o.path, "same file as %s", prev)
		}
		seen[o.v] = o.path
	}

	if c.Outlier.K <= 0 {
		add(SeverityError, "outlier.k", "must be > 0, got %v", c.Outlier.K)
	}
	if c.Outlier.WinsorLo < 0 || c.Outlier.WinsorHi > 1 || c.Outlier.WinsorLo >= c.Outlier.WinsorHi {
		add(SeverityError, "outlier.winsor_lo", "need 0 <= winsor_lo < winsor_hi <= 1, got %v and %v", c.Outlier.WinsorLo, c.Outlier.WinsorHi)
	}
	if c.Join.Suffix == "" {
		add(SeverityError, "join.suffix", "must not be empty")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		add(SeverityError, "log.level", "%v", err)
	}
	switch c.Log.Env {
	case "development", "production":
	default:
		add(SeverityWarning, "log.env", "unknown environment %q, using production", c.Log.Env)
	}

	switch c.Metrics.Backend {
	case "", "none", "datadog", "dd":
	case "pushgateway":
		if strings.TrimSpace(c.Metrics.PushgatewayURL) == "" {
			add(SeverityError, "metrics.pushgateway_url", "is required for the pushgateway backend")
		}
	default:
		add(SeverityError, "metrics.backend", "unknown backend %q (none|pushgateway|datadog)", c.Metrics.Backend)
	}

	if w := c.Warehouse; w.Kind != "" {
		switch w.Kind {
		case "sqlite", "postgres", "mssql":
		default:
			add(SeverityError, "warehouse.kind", "unknown backend %q (sqlite|postgres|mssql)", w.Kind)
		}
		if strings.TrimSpace(w.DSN) == "" {
			add(SeverityError, "warehouse.dsn", "is required when warehouse.kind is set")
		}
		if w.BatchSize <= 0 {
			add(SeverityError, "warehouse.batch_size", "must be > 0, got %d", w.BatchSize)
		}
		if w.TablePrefix != "" && !tablePrefixRe.MatchString(w.TablePrefix) {
			add(SeverityWarning, "warehouse.table_prefix", "%q is not a plain identifier and will be quoted", w.TablePrefix)
		}
	}
	return issues
}
