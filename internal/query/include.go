package query

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/queryir"
)

// includeNode is one navigation of an include tree. Paths sharing a prefix
// share nodes, so every navigation is loaded once.
type includeNode struct {
	nav      *model.Navigation
	children []*includeNode
}

func parseIncludes(et *model.EntityType, paths []string) ([]*includeNode, error) {
	var roots []*includeNode
	for _, path := range paths {
		level, from := &roots, et
		for _, name := range strings.Split(path, ".") {
			var node *includeNode
			for _, n := range *level {
				if n.nav.Name == name {
					node = n
					break
				}
			}
			if node == nil {
				nav, ok := from.FindNavigation(name)
				if !ok {
					return nil, fmt.Errorf("include %q: %s has no navigation %q", path, from.Name, name)
				}
				node = &includeNode{nav: nav}
				*level = append(*level, node)
			}
			level, from = &node.children, node.nav.TargetType()
		}
	}
	return roots, nil
}

func (s *Session) validateIncludes(nodes []*includeNode, root queryir.Root) error {
	for _, n := range nodes {
		r, err := s.expander.CreateQueryRoot(n.nav.TargetType(), root)
		if err != nil {
			return fmt.Errorf("include %s: %w", n.nav.Name, err)
		}
		if err := s.validateIncludes(n.children, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) expand(ctx context.Context, nodes []*includeNode, root queryir.Root, parents []any) error {
	for _, n := range nodes {
		if err := s.expandNode(ctx, n, root, parents); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) expandNode(ctx context.Context, n *includeNode, parentRoot queryir.Root, parents []any) error {
	nav := n.nav
	target := nav.TargetType()

	root, err := s.expander.CreateQueryRoot(target, parentRoot)
	if err != nil {
		return fmt.Errorf("include %s: %w", nav.Name, err)
	}

	ctx, span := s.tracer.Start(ctx, "query.Include",
		trace.WithAttributes(
			attribute.String("navigation", nav.Name),
			attribute.String("entity.type", target.Name),
			attribute.String("temporal.mode", root.Mode().String()),
		),
	)
	defer span.End()

	children, err := s.loadRelated(ctx, nav, parentRoot.EntityType(), root, parents)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.Int("query.rows", len(children)))

	return s.expand(ctx, n.children, root, children)
}

// loadRelated reads the targets of nav for parents under root and wires
// them into the parents' navigation fields and, where the target declares
// one, the inverse reference.
func (s *Session) loadRelated(ctx context.Context, nav *model.Navigation, source *model.EntityType, root queryir.Root, parents []any) ([]any, error) {
	target := nav.TargetType()

	var parentProp, childProp *model.Property
	if nav.ForeignKeyOnTarget() {
		key, err := singleKey(source)
		if err != nil {
			return nil, err
		}
		parentProp, childProp = key, nav.ForeignKeyProperty()
	} else {
		key, err := singleKey(target)
		if err != nil {
			return nil, err
		}
		parentProp, childProp = nav.ForeignKeyProperty(), key
	}

	var values []any
	seen := map[any]bool{}
	for _, p := range parents {
		v, err := fieldValue(p, parentProp)
		if err != nil {
			return nil, err
		}
		if v != nil && !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil, nil
	}

	children, err := s.read(ctx, queryir.Select{
		Root:   root,
		Filter: queryir.In{Property: childProp.Path(), Values: values},
	}, target)
	if err != nil {
		return nil, fmt.Errorf("include %s: %w", nav.Name, err)
	}

	byKey := map[any][]any{}
	for _, c := range children {
		v, err := fieldValue(c, childProp)
		if err != nil {
			return nil, err
		}
		byKey[v] = append(byKey[v], c)
	}

	inverse := inverseOf(nav, source)
	for _, p := range parents {
		v, err := fieldValue(p, parentProp)
		if err != nil {
			return nil, err
		}
		matches := byKey[v]
		if err := setNavigation(p, nav, matches); err != nil {
			return nil, err
		}
		if inverse == nil {
			continue
		}
		for _, m := range matches {
			if err := setNavigation(m, inverse, []any{p}); err != nil {
				return nil, err
			}
		}
	}
	return children, nil
}

func singleKey(et *model.EntityType) (*model.Property, error) {
	keys := et.KeyProperties()
	if len(keys) != 1 {
		return nil, fmt.Errorf("include through %s needs a single-property key, found %d", et.Name, len(keys))
	}
	return keys[0], nil
}

// inverseOf returns the reference navigation on nav's target that points
// back to source through the same foreign key.
func inverseOf(nav *model.Navigation, source *model.EntityType) *model.Navigation {
	for _, inv := range nav.TargetType().Navigations {
		if inv.Collection || inv.TargetType() == nil {
			continue
		}
		if inv.TargetType().Root() == source.Root() &&
			inv.ForeignKey == nav.ForeignKey &&
			inv.ForeignKeyOnTarget() != nav.ForeignKeyOnTarget() {
			return inv
		}
	}
	return nil
}

// fieldValue reads a mapped property from an instance. Pointer values are
// dereferenced; a nil pointer yields nil.
func fieldValue(inst any, p *model.Property) (any, error) {
	if p.Shadow {
		return nil, fmt.Errorf("property %s is a shadow property and cannot be read from an instance", p.Path())
	}
	f, err := reflect.ValueOf(inst).Elem().FieldByIndexErr(p.FieldIndex())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.Path(), err)
	}
	if f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return nil, nil
		}
		f = f.Elem()
	}
	return f.Interface(), nil
}

func setNavigation(inst any, nav *model.Navigation, related []any) error {
	f, err := reflect.ValueOf(inst).Elem().FieldByIndexErr(nav.FieldIndex())
	if err != nil {
		return fmt.Errorf("navigation %s: %w", nav.Name, err)
	}
	if !f.CanSet() {
		return fmt.Errorf("navigation %s is not settable", nav.Name)
	}

	if nav.Collection {
		slice := reflect.MakeSlice(f.Type(), 0, len(related))
		for _, r := range related {
			slice = reflect.Append(slice, reflect.ValueOf(r))
		}
		f.Set(slice)
		return nil
	}
	if len(related) > 0 {
		f.Set(reflect.ValueOf(related[0]))
	}
	return nil
}
