package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dragos-durlut/TemporalTables/internal/demo"
	"github.com/dragos-durlut/TemporalTables/internal/materialize"
	"github.com/dragos-durlut/TemporalTables/internal/query"
	"github.com/dragos-durlut/TemporalTables/internal/queryir"
	"github.com/dragos-durlut/TemporalTables/internal/snapshot"
	"github.com/dragos-durlut/TemporalTables/internal/store"
	"github.com/dragos-durlut/TemporalTables/internal/testutil"
)

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &rootFlags{}
	var orderBy []string
	var seed bool

	cmd := &cobra.Command{
		Use:   "query <entity-type>",
		Short: "Run a temporal query and print the materialized entities",
		Long: `Run a query against the configured database and print each
materialized entity, with its validity period and included navigations,
as canonical JSON.

With --seed, the demo data is written first, which makes the default
in-memory database queryable.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, cmd, args[0], flags, orderBy, seed)
		},
	}

	addRootFlags(cmd, flags)
	cmd.Flags().StringArrayVar(&orderBy, "order-by", nil, "property to sort by; prefix with - for descending")
	cmd.Flags().BoolVar(&seed, "seed", false, "seed the demo data before querying")

	return cmd
}

func runQuery(opts *RootOptions, cmd *cobra.Command, name string, flags *rootFlags, orderBy []string, seed bool) error {
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
	root, err := flags.root(et)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, err)
	}
	filters, err := flags.filters(et)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, err)
	}

	storeOpts := []store.Option{store.WithLogger(e.logger)}
	if seed {
		// Seed writes follow each other too fast for the wall clock to
		// order them; space them a second apart ending before now.
		clock := testutil.NewClock(time.Now().UTC().Truncate(time.Second).Add(-time.Minute), time.Second)
		storeOpts = append(storeOpts, store.WithClock(clock.Now))
	}
	st, err := store.Open(e.cfg.Database.Driver, e.cfg.Database.DSN, e.model, storeOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	defer st.Close()

	builder := materialize.NewBuilder(e.cfg.BuilderOptions(e.logger)...)
	sessionOpts := []query.Option{query.WithBuilder(builder), query.WithLogger(e.logger)}
	if seed {
		d, err := demo.New(st, formatter.GetErrWriter(), demo.WithLogger(e.logger), demo.WithSessionOptions(sessionOpts...))
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
		}
		if _, err := d.Seed(cmd.Context()); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, err)
		}
	}

	session, err := query.NewSession(st, sessionOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	q, err := session.Set(et.Name)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, err)
	}
	q = withRoot(q, root)
	for _, f := range filters {
		q = q.Where(f)
	}
	for _, o := range orderBy {
		if len(o) > 1 && o[0] == '-' {
			q = q.OrderByDescending(o[1:])
		} else {
			q = q.OrderBy(o)
		}
	}
	for _, inc := range flags.includes {
		q = q.Include(inc)
	}
	formatter.VerboseLog("Running %s", q)

	instances, err := q.Load(cmd.Context())
	if err != nil {
		return formatter.Fail(ExitFailure, errorCode(err), err)
	}

	views := make([]any, len(instances))
	for i, inst := range instances {
		if views[i], err = snapshot.Of(e.model, inst); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeGeneric, err)
		}
	}
	if formatter.Format == "json" {
		return formatter.Success(views)
	}
	for _, v := range views {
		line, err := snapshot.Marshal(v)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeGeneric, err)
		}
		fmt.Fprintln(formatter.Writer, string(line))
	}
	return nil
}

func withRoot(q *query.Query, root queryir.Root) *query.Query {
	switch r := root.(type) {
	case queryir.AsOf:
		return q.AsOf(r.PointInTime)
	case queryir.All:
		return q.All()
	case queryir.Range:
		return q.FromTo(r.From, r.To)
	}
	return q
}
