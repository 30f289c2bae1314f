package policy

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/tecp-protocol/tecp/pkg/errcodes"
)

// CELEngine compiles and evaluates declarative policy expressions for
// the region_* and no_training policy classes: rather than hand-coding
// every region or training-exclusion rule as Go, an issuer loads a CEL
// expression per policy id that inspects ectx.Attrs and returns a bool.
type CELEngine struct {
	env    *cel.Env
	source map[string]cel.Program
}

// NewCELEngine builds the shared CEL environment used by every
// declarative enforcer instance. The environment exposes a single
// "attrs" map variable; expressions index into it, e.g.
// `attrs["region"] == "eu"`.
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("attrs", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, errcodes.Wrap(errcodes.EPolicyDenied, "failed to build CEL environment", err)
	}
	return &CELEngine{env: env, source: make(map[string]cel.Program)}, nil
}

// Load compiles expr and registers it under policyID.
func (c *CELEngine) Load(policyID, expr string) error {
	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return errcodes.Wrap(errcodes.EPolicyUnknown, "CEL compilation failed for "+policyID, issues.Err())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return errcodes.Wrap(errcodes.EPolicyUnknown, "CEL program construction failed for "+policyID, err)
	}
	c.source[policyID] = prg
	return nil
}

// Enforcer returns an Enforcer bound to policyID that evaluates the
// loaded CEL expression against ectx.Attrs.
func (c *CELEngine) Enforcer(policyID string) Enforcer {
	return celEnforcer{id: policyID, engine: c}
}

type celEnforcer struct {
	id     string
	engine *CELEngine
}

func (e celEnforcer) ID() string { return e.id }

func (e celEnforcer) Enforce(_ context.Context, input []byte, ectx Context) (Result, error) {
	prg, ok := e.engine.source[e.id]
	if !ok {
		return Result{}, errcodes.New(errcodes.EPolicyUnknown, "no CEL program loaded for "+e.id)
	}
	attrs := ectx.Attrs
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	out, _, err := prg.Eval(map[string]interface{}{"attrs": attrs})
	if err != nil {
		return Result{}, errcodes.Wrap(errcodes.EPolicyDenied, "CEL evaluation failed for "+e.id, err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return Result{}, errcodes.New(errcodes.EPolicyDenied, fmt.Sprintf("CEL expression for %s did not return a bool (got %v)", e.id, out.ConvertToType(types.BoolType)))
	}
	return Result{
		Allowed:          allowed,
		TransformedInput: input,
		Evidence:         map[string]interface{}{"cel_result": allowed},
	}, nil
}
