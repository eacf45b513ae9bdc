package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dragos-durlut/TemporalTables/internal/config"
	"github.com/dragos-durlut/TemporalTables/internal/demo"
	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/queryir"
	"github.com/dragos-durlut/TemporalTables/internal/temporal"
)

// Error code constants, shared by all commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeConfig      = "E002" // Config file unreadable or invalid
	ErrCodeModel       = "E003" // CUE model failed to load
	ErrCodeUsage       = "E004" // Bad flags or arguments
	ErrCodeDatabase    = "E005" // Store could not be opened
	ErrCodeQueryFailed = "E006" // Query failed while running

	// Temporal errors, one per temporal.ErrorCode.
	ErrCodeUnsupportedType       = "E201"
	ErrCodeUnsupportedNavigation = "E202"
	ErrCodeNavigationMode        = "E203"
	ErrCodeMismatchedSources     = "E204"
	ErrCodeMissingPeriod         = "E205"
)

// env is what every command needs before it runs.
type env struct {
	cfg    *config.Config
	model  *model.Model
	logger *slog.Logger
}

// loadEnv reads the configuration and the model. Failures are written to
// formatter and returned as command errors.
func loadEnv(opts *RootOptions, formatter *OutputFormatter) (*env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	if opts.Verbose && cfg.Log.Level != "debug" {
		cfg.Log.Level = "debug"
	}
	logger := cfg.Logger(formatter.GetErrWriter())

	m, err := loadModel(cfg.Model)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeModel, err)
	}
	formatter.VerboseLog("Loaded %d entity types", len(m.EntityTypes()))
	return &env{cfg: cfg, model: m, logger: logger}, nil
}

// loadModel loads the CUE model at path, or the embedded demo model when
// path is empty. Go types always come from the demo registry.
func loadModel(path string) (*model.Model, error) {
	if path == "" {
		return demo.Model()
	}
	return model.LoadCUEFile(path, demo.Registry())
}

func (e *env) entityType(name string) (*model.EntityType, error) {
	et, ok := e.model.EntityType(name)
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", name)
	}
	return et, nil
}

// errorCode maps an error to its CLI code.
func errorCode(err error) string {
	var te *temporal.Error
	if !errors.As(err, &te) {
		return ErrCodeQueryFailed
	}
	switch te.Code {
	case temporal.ErrCodeUnsupportedType:
		return ErrCodeUnsupportedType
	case temporal.ErrCodeUnsupportedTemporalNavigation:
		return ErrCodeUnsupportedNavigation
	case temporal.ErrCodeTemporalNavigationMode:
		return ErrCodeNavigationMode
	case temporal.ErrCodeMismatchedTemporalSources:
		return ErrCodeMismatchedSources
	case temporal.ErrCodeMissingPeriodProperty:
		return ErrCodeMissingPeriod
	}
	return ErrCodeGeneric
}

// rootFlags selects the temporal root of a query from command flags.
type rootFlags struct {
	asOf     string
	all      bool
	from, to string
	includes []string
	where    []string
}

func (f *rootFlags) root(et *model.EntityType) (queryir.Root, error) {
	set := 0
	for _, on := range []bool{f.asOf != "", f.all, f.from != "" || f.to != ""} {
		if on {
			set++
		}
	}
	if set > 1 {
		return nil, fmt.Errorf("--as-of, --all and --from/--to are mutually exclusive")
	}

	switch {
	case f.asOf != "":
		t, err := parseInstant(f.asOf)
		if err != nil {
			return nil, fmt.Errorf("--as-of: %w", err)
		}
		return queryir.AsOf{Entity: et, PointInTime: t}, nil
	case f.all:
		return queryir.All{Entity: et}, nil
	case f.from != "" || f.to != "":
		if f.from == "" || f.to == "" {
			return nil, fmt.Errorf("--from and --to must be given together")
		}
		from, err := parseInstant(f.from)
		if err != nil {
			return nil, fmt.Errorf("--from: %w", err)
		}
		to, err := parseInstant(f.to)
		if err != nil {
			return nil, fmt.Errorf("--to: %w", err)
		}
		return queryir.Range{Entity: et, From: from, To: to}, nil
	}
	return queryir.Plain{Entity: et}, nil
}

// filters parses --where NAME=VALUE pairs, converting each value to the
// property's type.
func (f *rootFlags) filters(et *model.EntityType) ([]queryir.Predicate, error) {
	var out []queryir.Predicate
	for _, w := range f.where {
		name, raw, ok := strings.Cut(w, "=")
		if !ok {
			return nil, fmt.Errorf("--where %q: want NAME=VALUE", w)
		}
		p, ok := et.FindProperty(name)
		if !ok {
			return nil, fmt.Errorf("--where %q: %s has no property %q", w, et.Name, name)
		}
		v, err := parseValue(p, raw)
		if err != nil {
			return nil, fmt.Errorf("--where %q: %w", w, err)
		}
		out = append(out, queryir.Equals{Property: p.Path(), Value: v})
	}
	return out, nil
}

func parseValue(p *model.Property, raw string) (any, error) {
	if p.Type == nil {
		return raw, nil
	}
	if p.Type == timeType {
		return parseInstant(raw)
	}
	switch p.Type.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.ParseInt(raw, 10, 64)
	case reflect.Float32, reflect.Float64:
		return strconv.ParseFloat(raw, 64)
	case reflect.Bool:
		return strconv.ParseBool(raw)
	}
	return raw, nil
}

var timeType = reflect.TypeOf(time.Time{})

func parseInstant(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateTime, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as an instant (RFC 3339 or %q)", s, time.DateTime)
}
