// Package report builds and writes the per-run metadata record.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"analyticsetl/internal/frame"
)

// StageRows is the row count observed after a named stage.
type StageRows struct {
	Stage string `json:"stage"`
	Rows  int    `json:"rows"`
}

// Coercion is the serialized form of one schema enforcement result.
type Coercion struct {
	Dataset string `json:"dataset"`
	Column  string `json:"column"`
	Target  string `json:"target"`
	Outcome string `json:"outcome"`
	Invalid int    `json:"invalid"`
	Error   string `json:"error,omitempty"`
}

// RunMeta is the fixed-shape summary of one run. Nullable fields are pointers
// and serialize as null when the source column is absent.
type RunMeta struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	RowsInOrdersRaw  int         `json:"rows_in_orders_raw"`
	RowsInUsers      int         `json:"rows_in_users"`
	RowsOutAnalytics int         `json:"rows_out_analytics"`
	StageRows        []StageRows `json:"stage_rows"`

	MissingCreatedAt *int     `json:"missing_created_at"`
	CountryMatchRate *float64 `json:"country_match_rate"`

	// MissingRates is the fraction of missing values per analytics column.
	MissingRates   map[string]float64 `json:"missing_rates"`
	AmountOutliers *int               `json:"amount_outliers"`
	AmountTotal    *string            `json:"amount_total"`

	Coercions []Coercion        `json:"coercions"`
	Config    map[string]string `json:"config"`
}

// Input carries what Build summarizes.
type Input struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	OrdersRaw *frame.Frame
	Users     *frame.Frame
	Analytics *frame.Frame

	Stages    []StageRows
	Coercions []Coercion
	Config    map[string]string
}

// NewRunID returns a random run identifier.
func NewRunID() string { return uuid.NewString() }

// Build computes the run metadata. It has no side effects.
//
// country_match_rate is 1 minus the missing fraction of the joined country
// column: a proxy for "the order found its user". It is null when the column
// is absent or the table is empty.
func Build(in Input) (RunMeta, error) {
	m := RunMeta{
		RunID:            in.RunID,
		StartedAt:        in.StartedAt.UTC(),
		FinishedAt:       in.FinishedAt.UTC(),
		RowsInOrdersRaw:  in.OrdersRaw.Len(),
		RowsInUsers:      in.Users.Len(),
		RowsOutAnalytics: in.Analytics.Len(),
		StageRows:        in.Stages,
		MissingRates:     map[string]float64{},
		Coercions:        in.Coercions,
		Config:           in.Config,
	}
	if m.RunID == "" {
		m.RunID = NewRunID()
	}
	if m.StageRows == nil {
		m.StageRows = []StageRows{}
	}
	if m.Coercions == nil {
		m.Coercions = []Coercion{}
	}
	if m.Config == nil {
		m.Config = map[string]string{}
	}

	a := in.Analytics
	if a == nil {
		return m, nil
	}
	n := a.Len()

	for _, c := range a.Columns() {
		if n == 0 {
			m.MissingRates[c.Name] = 0
			continue
		}
		m.MissingRates[c.Name] = float64(frame.MissingCount(c)) / float64(n)
	}

	if c, ok := a.Column("created_at"); ok {
		missing := frame.MissingCount(c)
		m.MissingCreatedAt = &missing
	}
	if c, ok := a.Column("country"); ok && n > 0 {
		rate := 1 - float64(frame.MissingCount(c))/float64(n)
		m.CountryMatchRate = &rate
	}
	if c, ok := a.Column("amount_is_outlier"); ok {
		count := 0
		for _, v := range c.V {
			if b, _ := v.(bool); b {
				count++
			}
		}
		m.AmountOutliers = &count
	}
	if c, ok := a.Column("amount"); ok {
		var total Decimal
		for _, v := range c.V {
			f, ok := frame.Float(v)
			if !ok {
				continue
			}
			d, err := DecimalFromFloat(f)
			if err != nil {
				return RunMeta{}, fmt.Errorf("amount total: %w", err)
			}
			total = total.Add(d)
		}
		s := total.String()
		m.AmountTotal = &s
	}
	return m, nil
}

// Encode writes m as indented JSON.
func Encode(w io.Writer, m RunMeta) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// Write serializes m to path, creating parent directories and replacing any
// previous file.
func Write(path string, m RunMeta) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("run meta: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("run meta: create %s: %w", path, err)
	}
	if err := Encode(f, m); err != nil {
		f.Close()
		return fmt.Errorf("run meta: encode: %w", err)
	}
	return f.Close()
}
