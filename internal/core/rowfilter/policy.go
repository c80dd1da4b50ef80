package rowfilter

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
)

// Op is the kind of row access being checked.
type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// Row predicates. These mirror the store-side policies installed by
// postgres.PolicyDDL; keep both in sync.
const (
	ReadRule  = `row_tenant != "" && (row_tenant == tenant || is_admin)`
	WriteRule = `!is_admin && tenant != "" && row_tenant == tenant`
)

var (
	ErrReadDenied  = errors.New("rowfilter: read denied by tenant policy")
	ErrWriteDenied = errors.New("rowfilter: write denied by tenant policy")
)

// Policy evaluates the row predicates in-process. Repositories use it as an
// application-level filter independent of the store's own enforcement.
type Policy struct {
	read  cel.Program
	write cel.Program
}

// NewPolicy compiles the read and write predicates.
func NewPolicy() (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("tenant", cel.StringType),
		cel.Variable("is_admin", cel.BoolType),
		cel.Variable("row_tenant", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	read, err := compile(env, ReadRule)
	if err != nil {
		return nil, fmt.Errorf("read rule: %w", err)
	}
	write, err := compile(env, WriteRule)
	if err != nil {
		return nil, fmt.Errorf("write rule: %w", err)
	}

	return &Policy{read: read, write: write}, nil
}

// MustPolicy is NewPolicy for package initialization; the rules are constants.
func MustPolicy() *Policy {
	p, err := NewPolicy()
	if err != nil {
		panic(err)
	}
	return p
}

func compile(env *cel.Env, expr string) (cel.Program, error) {
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %q must evaluate to bool", expr)
	}
	return env.Program(ast)
}

// Allows reports whether op on a row owned by rowTenant is permitted under s.
// Evaluation errors deny.
func (p *Policy) Allows(s Settings, op Op, rowTenant string) bool {
	prg := p.read
	if op == OpWrite {
		prg = p.write
	}

	out, _, err := prg.Eval(map[string]any{
		"tenant":     s.TenantID,
		"is_admin":   s.IsAdmin,
		"row_tenant": rowTenant,
	})
	if err != nil {
		return false
	}
	allowed, ok := out.Value().(bool)
	return ok && allowed
}

// Check is Allows with an error result.
func (p *Policy) Check(s Settings, op Op, rowTenant string) error {
	if p.Allows(s, op, rowTenant) {
		return nil
	}
	if op == OpWrite {
		return ErrWriteDenied
	}
	return ErrReadDenied
}

// FilterReadable keeps the rows whose owner passes the read rule.
func FilterReadable[T any](p *Policy, s Settings, rows []T, owner func(T) string) []T {
	out := rows[:0:0]
	for _, r := range rows {
		if p.Allows(s, OpRead, owner(r)) {
			out = append(out, r)
		}
	}
	return out
}
