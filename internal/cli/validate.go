package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dragos-durlut/TemporalTables/internal/demo"
	"github.com/dragos-durlut/TemporalTables/internal/model"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	Model       string            `json:"model"`
	EntityTypes []string          `json:"entity_types,omitempty"`
	Errors      []ValidationError `json:"errors,omitempty"`
}

// ValidationError locates one problem in a model file.
type ValidationError struct {
	Entity  string `json:"entity,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [model.cue]",
		Short: "Validate a CUE mapping model",
		Long: `Load a CUE mapping model and check it the way a session would:
every entity type must be registered, keys and navigations must resolve,
and temporal tables must carry their period properties.

Without an argument the built-in demo model is validated.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	name := path
	if name == "" {
		name = "(built-in)"
	}
	formatter.VerboseLog("Validating model %s", name)

	var (
		m   *model.Model
		err error
	)
	if path == "" {
		m, err = demo.Model()
	} else {
		m, err = model.LoadCUEFile(path, demo.Registry())
	}

	result := ValidationResult{Valid: err == nil, Model: name}
	if err != nil {
		result.Errors = []ValidationError{validationError(err)}
	} else {
		for _, et := range m.EntityTypes() {
			result.EntityTypes = append(result.EntityTypes, et.Name)
		}
	}

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		printValidation(formatter, result)
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "model validation failed")
	}
	return nil
}

func validationError(err error) ValidationError {
	var le *model.LoadError
	if !errors.As(err, &le) {
		return ValidationError{Message: err.Error()}
	}
	ve := ValidationError{Entity: le.Entity, Field: le.Field, Message: le.Message}
	if le.Pos.IsValid() {
		ve.Line = le.Pos.Line()
		ve.Column = le.Pos.Column()
	}
	return ve
}

func printValidation(f *OutputFormatter, r ValidationResult) {
	if r.Valid {
		fmt.Fprintf(f.Writer, "✓ Model valid (%d entity types)\n", len(r.EntityTypes))
		for _, name := range r.EntityTypes {
			fmt.Fprintf(f.Writer, "  %s\n", name)
		}
		return
	}
	fmt.Fprintf(f.Writer, "✗ Model invalid: %s\n", r.Model)
	for _, e := range r.Errors {
		loc := ""
		if e.Line > 0 {
			loc = fmt.Sprintf("%d:%d: ", e.Line, e.Column)
		}
		subject := ""
		if e.Entity != "" {
			subject = e.Entity + ": "
		}
		fmt.Fprintf(f.Writer, "  %s%s%s\n", loc, subject, e.Message)
	}
}
