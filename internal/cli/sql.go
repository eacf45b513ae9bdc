package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dragos-durlut/TemporalTables/internal/queryir"
	"github.com/dragos-durlut/TemporalTables/internal/querysql"
)

// SQLResult is the JSON payload of the sql command.
type SQLResult struct {
	Dialect  string         `json:"dialect"`
	Root     string         `json:"root"`
	SQL      string         `json:"sql"`
	Params   []any          `json:"params"`
	Includes []IncludedRead `json:"includes,omitempty"`
}

// IncludedRead is the read issued for one navigation of an include path.
type IncludedRead struct {
	Path   string `json:"path"`
	Root   string `json:"root"`
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

// NewSQLCommand creates the sql command.
func NewSQLCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &rootFlags{}
	var dialect string

	cmd := &cobra.Command{
		Use:   "sql <entity-type>",
		Short: "Print the SQL a temporal query compiles to",
		Long: `Compile a query without running it and print the SQL for the
configured dialect. Included navigations are listed with the root each one
is read under; the related rows are then filtered by the parents' keys.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSQL(rootOpts, cmd, args[0], dialect, flags)
		},
	}

	cmd.Flags().StringVar(&dialect, "dialect", "", "SQL dialect (sqlite3|postgres|sqlserver), overrides the config")
	addRootFlags(cmd, flags)

	return cmd
}

func addRootFlags(cmd *cobra.Command, f *rootFlags) {
	cmd.Flags().StringVar(&f.asOf, "as-of", "", "read the versions valid at this instant")
	cmd.Flags().BoolVar(&f.all, "all", false, "read every version")
	cmd.Flags().StringVar(&f.from, "from", "", "read versions valid during [from, to)")
	cmd.Flags().StringVar(&f.to, "to", "", "end of the --from range, exclusive")
	cmd.Flags().StringArrayVarP(&f.includes, "include", "i", nil, "navigation path to load, e.g. Orders.Customer")
	cmd.Flags().StringArrayVarP(&f.where, "where", "w", nil, "equality filter NAME=VALUE")
}

func runSQL(opts *RootOptions, cmd *cobra.Command, name, dialect string, flags *rootFlags) error {
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
	if dialect == "" {
		dialect = e.cfg.SQLDialect()
	}
	compiler, err := querysql.NewCompiler(dialect, querysql.WithLogger(e.logger))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, err)
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

	sel := queryir.Select{Root: root}
	if len(filters) == 1 {
		sel.Filter = filters[0]
	} else if len(filters) > 1 {
		sel.Filter = queryir.And{Predicates: filters}
	}
	sql, params, err := compiler.Compile(sel)
	if err != nil {
		return formatter.Fail(ExitFailure, errorCode(err), err)
	}
	result := SQLResult{Dialect: dialect, Root: fmt.Sprint(root), SQL: sql, Params: params}

	for _, path := range flags.includes {
		reads, err := includedReads(compiler, root, path)
		if err != nil {
			return formatter.Fail(ExitFailure, errorCode(err), err)
		}
		result.Includes = append(result.Includes, reads...)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	w := formatter.Writer
	fmt.Fprintf(w, "-- %s (%s)\n%s;\n", result.Root, dialect, result.SQL)
	printParams(formatter, result.Params)
	for _, r := range result.Includes {
		fmt.Fprintf(w, "\n-- include %s: %s\n%s;\n", r.Path, r.Root, r.SQL)
		printParams(formatter, r.Params)
	}
	return nil
}

// includedReads derives the root of every navigation along path and
// compiles the unfiltered read of each.
func includedReads(compiler *querysql.Compiler, root queryir.Root, path string) ([]IncludedRead, error) {
	expander := queryir.NewExpander()
	var reads []IncludedRead
	from := root.EntityType()
	var walked []string
	for _, name := range strings.Split(path, ".") {
		nav, ok := from.FindNavigation(name)
		if !ok {
			return nil, fmt.Errorf("include %q: %s has no navigation %q", path, from.Name, name)
		}
		walked = append(walked, name)

		next, err := expander.CreateQueryRoot(nav.TargetType(), root)
		if err != nil {
			return nil, fmt.Errorf("include %s: %w", strings.Join(walked, "."), err)
		}
		sql, params, err := compiler.Compile(queryir.Select{Root: next})
		if err != nil {
			return nil, err
		}
		reads = append(reads, IncludedRead{
			Path:   strings.Join(walked, "."),
			Root:   fmt.Sprint(next),
			SQL:    sql,
			Params: params,
		})
		root, from = next, nav.TargetType()
	}
	return reads, nil
}

func printParams(f *OutputFormatter, params []any) {
	if len(params) == 0 {
		return
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = fmt.Sprintf("%v", p)
	}
	fmt.Fprintf(f.Writer, "-- params: %s\n", strings.Join(parts, ", "))
}
