package query

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dragos-durlut/TemporalTables/internal/materialize"
	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/queryir"
	"github.com/dragos-durlut/TemporalTables/internal/querysql"
	"github.com/dragos-durlut/TemporalTables/internal/store"
)

// Session reads entities from a store. It is safe for concurrent use.
type Session struct {
	store    *store.Store
	model    *model.Model
	compiler *querysql.Compiler
	builder  *materialize.Builder
	expander *queryir.Expander
	services materialize.Services
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Session.
type Option func(*Session)

// WithBuilder sets the materializer builder. Defaults to a builder with a
// private plan cache.
func WithBuilder(b *materialize.Builder) Option {
	return func(s *Session) {
		if b != nil {
			s.builder = b
		}
	}
}

// WithServices sets the services available to constructors and service
// properties.
func WithServices(services materialize.Services) Option {
	return func(s *Session) { s.services = services }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer sets the tracer spans are recorded with.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewSession returns a session reading from st.
func NewSession(st *store.Store, opts ...Option) (*Session, error) {
	s := &Session{
		store:    st,
		model:    st.Model(),
		expander: queryir.NewExpander(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("temporaltables.query"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.builder == nil {
		s.builder = materialize.NewBuilder(materialize.WithLogger(s.logger))
	}

	c, err := querysql.NewCompiler(st.Dialect(), querysql.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	s.compiler = c
	return s, nil
}

// Model returns the session's model.
func (s *Session) Model() *model.Model { return s.model }

// Compiler returns the session's SQL compiler.
func (s *Session) Compiler() *querysql.Compiler { return s.compiler }

// Set starts a query over the current rows of the named entity type.
func (s *Session) Set(name string) (*Query, error) {
	et, ok := s.model.EntityType(name)
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", name)
	}
	return &Query{session: s, root: queryir.Plain{Entity: et}}, nil
}

// MustSet is like Set but panics on an unknown name.
func (s *Session) MustSet(name string) *Query {
	q, err := s.Set(name)
	if err != nil {
		panic(err)
	}
	return q
}
