package materialize

import (
	"log/slog"
	"reflect"

	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/temporal"
)

var temporalEntityType = reflect.TypeOf((*temporal.Entity)(nil)).Elem()

// Builder produces materializers for entity types.
type Builder struct {
	cache         *Cache
	interceptors  []Interceptor
	alwaysRebuild bool
	strict        bool
	stampPeriod   bool
	logger        *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithCache shares c between builders. By default each builder owns a
// private cache.
func WithCache(c *Cache) Option {
	return func(b *Builder) { b.cache = c }
}

// WithInterceptors registers interceptors. Any registered interceptor
// switches plans to the intercepted shape.
func WithInterceptors(interceptors ...Interceptor) Option {
	return func(b *Builder) { b.interceptors = append(b.interceptors, interceptors...) }
}

// WithAlwaysRebuild selects the legacy behavior of compiling a fresh
// materializer on every request. Caching is the default.
func WithAlwaysRebuild(on bool) Option {
	return func(b *Builder) { b.alwaysRebuild = on }
}

// WithStrictPeriodProperties makes a temporal entity type without both
// period shadow properties fail with a MISSING_PERIOD_PROPERTY error instead
// of skipping period assignment.
func WithStrictPeriodProperties(on bool) Option {
	return func(b *Builder) { b.strict = on }
}

// WithoutPeriodSteps leaves period stamping to an interceptor such as
// PeriodInterceptor.
func WithoutPeriodSteps() Option {
	return func(b *Builder) { b.stampPeriod = false }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder returns a builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{stampPeriod: true}
	for _, opt := range opts {
		opt(b)
	}
	if b.cache == nil {
		b.cache = NewCache()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// BuildMaterializer returns the materializer for et. Plans are validated
// before anything is cached; failures are *temporal.Error values.
func (b *Builder) BuildMaterializer(et *model.EntityType) (Func, error) {
	return b.materializer(et, variantFull)
}

// BuildEmptyMaterializer returns a materializer producing tracking stubs:
// instances with only service properties populated.
func (b *Builder) BuildEmptyMaterializer(et *model.EntityType) (Func, error) {
	return b.materializer(et, variantEmpty)
}

func (b *Builder) materializer(et *model.EntityType, v variant) (Func, error) {
	build := func() (Func, error) {
		var (
			plan *Plan
			err  error
		)
		if v == variantEmpty {
			plan, err = b.EmptyPlan(et)
		} else {
			plan, err = b.Plan(et)
		}
		if err != nil {
			return nil, err
		}
		fn := b.compile(plan)
		plansBuilt.WithLabelValues(v.String()).Inc()
		b.logger.Debug("materializer compiled",
			"entity", et.Name,
			"variant", v.String(),
			"steps", len(plan.Steps),
			"intercepted", plan.Intercepted)
		return fn, nil
	}

	if b.alwaysRebuild {
		return build()
	}

	fn, hit, err := b.cache.getOrBuild(cacheKey{entityType: et, variant: v}, build)
	if err != nil {
		return nil, err
	}
	if hit {
		planCacheHits.Inc()
	} else {
		planCacheMisses.Inc()
	}
	return fn, nil
}

// Plan returns the full construction plan for et without compiling it.
func (b *Builder) Plan(et *model.EntityType) (*Plan, error) {
	if err := checkMaterializable(et); err != nil {
		return nil, err
	}

	plan := &Plan{EntityType: et, Intercepted: len(b.interceptors) > 0}
	add := func(s Step) { plan.Steps = append(plan.Steps, s) }

	if plan.Intercepted {
		add(Step{Kind: StepCreating})
	}

	bound := make(map[*model.Property]bool)
	if et.Constructor != nil {
		for i := range et.Constructor.Params {
			param := &et.Constructor.Params[i]
			if p := param.BoundProperty(); p != nil {
				bound[p] = true
				add(Step{Kind: StepReadParam, Param: i, Property: p})
			} else {
				add(Step{Kind: StepResolveService, Param: i})
			}
		}
	}
	add(Step{Kind: StepConstruct})

	if plan.Intercepted {
		add(Step{Kind: StepCreated})
		add(Step{Kind: StepInitializing})
	}

	for _, p := range et.Properties {
		if p.Shadow || bound[p] {
			continue
		}
		add(Step{Kind: StepAssign, Property: p})
	}
	for _, c := range et.ComplexProperties {
		for _, p := range c.Properties {
			if bound[p] {
				continue
			}
			add(Step{Kind: StepAssign, Property: p, Complex: c})
		}
	}
	for _, s := range et.ServiceProperties {
		add(Step{Kind: StepAttachService, Service: s})
	}

	period, err := b.periodSteps(et)
	if err != nil {
		return nil, err
	}
	plan.Steps = append(plan.Steps, period...)

	if plan.Intercepted {
		add(Step{Kind: StepInitialized})
	}
	add(Step{Kind: StepReturn})
	return plan, nil
}

// EmptyPlan returns the tracking-stub plan for et. The entity type must be
// constructible without row values.
func (b *Builder) EmptyPlan(et *model.EntityType) (*Plan, error) {
	if err := checkMaterializable(et); err != nil {
		return nil, err
	}
	if et.Constructor != nil && !et.Constructor.ServiceOnly() {
		return nil, temporal.NewUnsupportedTypeError(et.DisplayName(),
			"no parameterless or service-only constructor for an empty instance")
	}

	plan := &Plan{EntityType: et, Empty: true}
	if et.Constructor != nil {
		for i := range et.Constructor.Params {
			plan.Steps = append(plan.Steps, Step{Kind: StepResolveService, Param: i})
		}
	}
	plan.Steps = append(plan.Steps, Step{Kind: StepConstruct})
	for _, s := range et.ServiceProperties {
		plan.Steps = append(plan.Steps, Step{Kind: StepAttachService, Service: s})
	}
	plan.Steps = append(plan.Steps, Step{Kind: StepReturn})
	return plan, nil
}

func checkMaterializable(et *model.EntityType) error {
	if et.Abstract {
		return temporal.NewUnsupportedTypeError(et.DisplayName(), "type is abstract")
	}
	if et.GoType == nil {
		return temporal.NewUnsupportedTypeError(et.DisplayName(), "no Go type bound")
	}
	return nil
}

// periodSteps returns the period assignments for et, or none when et is not
// a temporal entity.
func (b *Builder) periodSteps(et *model.EntityType) ([]Step, error) {
	if !b.stampPeriod || !et.IsTemporal() {
		return nil, nil
	}
	if !reflect.PointerTo(et.GoType).Implements(temporalEntityType) {
		b.logger.Debug("temporal table without period fields on type", "entity", et.Name)
		return nil, nil
	}

	start, end := et.PeriodProperties()
	if start == nil || end == nil {
		tt := et.Root().Table.Temporal
		missing := tt.PeriodStartProperty
		if start != nil {
			missing = tt.PeriodEndProperty
		}
		if b.strict {
			return nil, temporal.NewMissingPeriodPropertyError(et.DisplayName(), missing)
		}
		b.logger.Debug("period property not found, skipping period assignment",
			"entity", et.Name, "property", missing)
		return nil, nil
	}
	return []Step{
		{Kind: StepPeriodStart, Property: start},
		{Kind: StepPeriodEnd, Property: end},
	}, nil
}
