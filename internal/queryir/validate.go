package queryir

import (
	"fmt"
	"strings"
)

// ValidationError lists structural problems found in a query.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + strings.Join(e.Problems, "; ")
}

// Validate checks a query before compilation: every Select has a root,
// referenced properties exist on the root's entity type, range bounds are
// ordered, and set operations combine compatible roots.
//
// Incompatible set operation roots are reported as the *temporal.Error
// returned by Expander.AreRootsCompatible. Other problems are collected
// into a *ValidationError.
//
// Validate is a pure function with no side effects.
func Validate(q Query) error {
	v := &validator{expander: NewExpander()}
	v.validateQuery(q)
	if v.err != nil {
		return v.err
	}
	if len(v.problems) > 0 {
		return &ValidationError{Problems: v.problems}
	}
	return nil
}

// validator accumulates problems during traversal.
type validator struct {
	expander *Expander
	problems []string
	err      error
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	case SetOperation:
		v.validateSetOperation(query)
	case *SetOperation:
		v.validateSetOperation(*query)
	default:
		v.addProblem("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(s Select) {
	if s.Root == nil || s.Root.EntityType() == nil {
		v.addProblem("select without root")
		return
	}
	et := s.Root.EntityType()
	if et.Abstract {
		v.addProblem("select over abstract entity type %s", et.Name)
	}
	if r, ok := s.Root.(Range); ok && r.To.Before(r.From) {
		v.addProblem("range on %s ends before it starts", et.Name)
	}
	if IsTemporal(s.Root) && !et.IsTemporal() {
		v.addProblem("%s root on non-temporal entity type %s", s.Root.Mode(), et.Name)
	}
	for _, o := range s.OrderBy {
		if _, ok := et.FindProperty(o.Property); !ok {
			v.addProblem("order by unknown property %s.%s", et.Name, o.Property)
		}
	}
	if s.Filter != nil {
		v.validatePredicate(s, s.Filter)
	}
}

func (v *validator) validatePredicate(s Select, p Predicate) {
	et := s.Root.EntityType()
	check := func(name string) {
		if _, ok := et.FindProperty(name); !ok {
			v.addProblem("filter on unknown property %s.%s", et.Name, name)
		}
	}

	switch pred := p.(type) {
	case Equals:
		check(pred.Property)
	case *Equals:
		check(pred.Property)
	case Compare:
		check(pred.Property)
		v.validateOp(pred.Op)
	case *Compare:
		check(pred.Property)
		v.validateOp(pred.Op)
	case In:
		check(pred.Property)
	case *In:
		check(pred.Property)
	case And:
		v.validateAnd(s, pred)
	case *And:
		v.validateAnd(s, *pred)
	default:
		v.addProblem("unknown predicate type %T", p)
	}
}

func (v *validator) validateAnd(s Select, a And) {
	if len(a.Predicates) == 0 {
		v.addProblem("empty And predicate")
	}
	for _, p := range a.Predicates {
		v.validatePredicate(s, p)
	}
}

func (v *validator) validateOp(op CompareOp) {
	switch op {
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpNotEqual:
	default:
		v.addProblem("unknown comparison operator %q", op)
	}
}

func (v *validator) validateSetOperation(s SetOperation) {
	v.validateQuery(s.Left)
	v.validateQuery(s.Right)

	left, right := RootOf(s.Left), RootOf(s.Right)
	if left == nil || right == nil {
		return
	}
	ok, err := v.expander.AreRootsCompatible(left, right)
	if err != nil {
		if v.err == nil {
			v.err = err
		}
		return
	}
	if !ok {
		v.addProblem("%s combines %s and %s", s.Kind, left.EntityType().Name, right.EntityType().Name)
	}
}
