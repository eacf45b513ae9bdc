package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/dragos-durlut/TemporalTables/internal/materialize"
)

// PlanResult is the JSON payload of the plan command.
type PlanResult struct {
	EntityType string   `json:"entity_type"`
	Empty      bool     `json:"empty"`
	Steps      []string `json:"steps"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	var empty bool

	cmd := &cobra.Command{
		Use:   "plan <entity-type>",
		Short: "Print the construction plan of an entity type",
		Long: `Print the steps the materializer runs to build an instance of an
entity type from a row: construction, property assignment, service
injection, validity-period stamping and interception.

With --empty, print the plan for an instance built without row values.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(rootOpts, cmd, args[0], empty)
		},
	}

	cmd.Flags().BoolVar(&empty, "empty", false, "plan for an instance without row values")

	return cmd
}

func runPlan(opts *RootOptions, cmd *cobra.Command, name string, empty bool) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	e, err := loadEnv(opts, formatter)
	if err != nil {
		return err
	}
	et, err := e.entityType(name)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, err)
	}

	builder := materialize.NewBuilder(e.cfg.BuilderOptions(e.logger)...)
	var plan *materialize.Plan
	if empty {
		plan, err = builder.EmptyPlan(et)
	} else {
		plan, err = builder.Plan(et)
	}
	if err != nil {
		return formatter.Fail(ExitFailure, errorCode(err), err)
	}

	if formatter.Format == "json" {
		lines := strings.Split(strings.TrimRight(plan.String(), "\n"), "\n")
		result := PlanResult{EntityType: et.Name, Empty: empty}
		for _, l := range lines[1:] {
			result.Steps = append(result.Steps, strings.TrimSpace(l))
		}
		return formatter.Success(result)
	}
	_, err = formatter.Writer.Write([]byte(plan.String()))
	return err
}
