package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dragos-durlut/TemporalTables/internal/demo"
	"github.com/dragos-durlut/TemporalTables/internal/materialize"
	"github.com/dragos-durlut/TemporalTables/internal/query"
	"github.com/dragos-durlut/TemporalTables/internal/store"
	"github.com/dragos-durlut/TemporalTables/internal/testutil"
)

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	var step time.Duration
	var start string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Seed the orders demo and run its temporal queries",
		Long: `Seed the orders demo database and run the walkthrough: current and
historical prices, an order as it was when placed, deleting and restoring
a customer from history, and the navigations an all-versions query rejects.

Writes are stamped by a stepping clock instead of the wall clock, so each
change gets its own instant without waiting.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(rootOpts, cmd, start, step)
		},
	}

	cmd.Flags().DurationVar(&step, "step", time.Second, "time between consecutive writes")
	cmd.Flags().StringVar(&start, "start", "", "instant of the first write (default now)")

	return cmd
}

func runDemo(opts *RootOptions, cmd *cobra.Command, start string, step time.Duration) error {
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

	first := time.Now().UTC().Truncate(time.Second)
	if start != "" {
		if first, err = parseInstant(start); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeUsage, err)
		}
	}
	clock := testutil.NewClock(first, step)

	st, err := store.Open(e.cfg.Database.Driver, e.cfg.Database.DSN, e.model,
		store.WithClock(clock.Now), store.WithLogger(e.logger))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	defer st.Close()

	builder := materialize.NewBuilder(e.cfg.BuilderOptions(e.logger)...)
	d, err := demo.New(st, formatter.Writer,
		demo.WithLogger(e.logger),
		demo.WithSessionOptions(query.WithBuilder(builder)))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}

	if err := d.Run(cmd.Context()); err != nil {
		return formatter.Fail(ExitFailure, errorCode(err), err)
	}
	return nil
}
