package materialize

import (
	"fmt"
	"strings"

	"github.com/dragos-durlut/TemporalTables/internal/model"
)

// StepKind identifies one instruction of a construction plan.
type StepKind int

const (
	StepCreating StepKind = iota
	StepResolveService
	StepReadParam
	StepConstruct
	StepCreated
	StepInitializing
	StepAssign
	StepAttachService
	StepPeriodStart
	StepPeriodEnd
	StepInitialized
	StepReturn
)

var stepNames = [...]string{
	StepCreating:       "creating",
	StepResolveService: "resolve-service",
	StepReadParam:      "read-param",
	StepConstruct:      "construct",
	StepCreated:        "created",
	StepInitializing:   "initializing",
	StepAssign:         "assign",
	StepAttachService:  "attach-service",
	StepPeriodStart:    "period-start",
	StepPeriodEnd:      "period-end",
	StepInitialized:    "initialized",
	StepReturn:         "return",
}

func (k StepKind) String() string {
	if int(k) < len(stepNames) {
		return stepNames[k]
	}
	return fmt.Sprintf("StepKind(%d)", int(k))
}

// Step is one instruction. Only the fields relevant to Kind are set.
type Step struct {
	Kind StepKind

	// Property is read by StepReadParam, StepAssign and the period steps.
	Property *model.Property

	// Complex is set when an assigned property belongs to a complex property.
	Complex *model.ComplexProperty

	// Service is set by StepAttachService.
	Service *model.ServiceProperty

	// Param is the constructor argument slot for StepResolveService and
	// StepReadParam.
	Param int
}

// Plan is the immutable construction plan of one entity type.
type Plan struct {
	EntityType  *model.EntityType
	Empty       bool
	Intercepted bool
	Steps       []Step
}

// HasPeriodAssignments reports whether the plan stamps the validity period.
func (p *Plan) HasPeriodAssignments() bool {
	for _, s := range p.Steps {
		if s.Kind == StepPeriodStart || s.Kind == StepPeriodEnd {
			return true
		}
	}
	return false
}

// String renders the plan as a numbered listing.
func (p *Plan) String() string {
	var b strings.Builder
	b.WriteString(p.EntityType.Name)
	switch {
	case p.Empty:
		b.WriteString(" (empty)")
	case p.Intercepted:
		b.WriteString(" (intercepted)")
	}
	b.WriteByte('\n')
	for i, s := range p.Steps {
		fmt.Fprintf(&b, "%3d %s", i, s.Kind)
		switch s.Kind {
		case StepResolveService:
			fmt.Fprintf(&b, " arg%d %s", s.Param, p.EntityType.Constructor.Params[s.Param].Service)
		case StepReadParam:
			fmt.Fprintf(&b, " arg%d <- [%d] %s", s.Param, s.Property.Index(), s.Property.Path())
		case StepConstruct:
			if p.EntityType.Constructor != nil {
				fmt.Fprintf(&b, " constructor(%d)", len(p.EntityType.Constructor.Params))
			} else {
				fmt.Fprintf(&b, " *%s", p.EntityType.GoType)
			}
		case StepAssign:
			fmt.Fprintf(&b, " %s <- [%d] %s", s.Property.Path(), s.Property.Index(), s.Property.Type)
			if s.Property.Converter != nil {
				fmt.Fprintf(&b, " via %s", s.Property.Converter.Name)
			}
		case StepAttachService:
			fmt.Fprintf(&b, " %s %s", s.Service.Name, s.Service.Type())
		case StepPeriodStart:
			fmt.Fprintf(&b, " ValidFrom <- [%d] %s", s.Property.Index(), s.Property.Name)
		case StepPeriodEnd:
			fmt.Fprintf(&b, " ValidTo <- [%d] %s", s.Property.Index(), s.Property.Name)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
