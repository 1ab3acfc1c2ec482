// Package predicate compiles CEL expressions into readiness checks for
// queued items.
//
// Expressions see these variables:
//
//	member  string  the queued member
//	score   double  its score
//	now_ms  int     wall clock in Unix milliseconds
//	now_s   double  wall clock in Unix seconds
//
// A delayed-job queue that scores items by their due time uses
// `score <= now_s`. An empty expression accepts every item.
package predicate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"
)

// Predicate is a compiled expression. It is safe for concurrent use.
type Predicate struct {
	expr string
	prog cel.Program
	now  func() time.Time
}

// Option configures a Predicate.
type Option func(*Predicate)

// WithClock overrides the time source for now_ms and now_s.
func WithClock(now func() time.Time) Option {
	return func(p *Predicate) { p.now = now }
}

// Compile parses and type-checks expr. The expression must yield a bool.
func Compile(expr string, opts ...Option) (*Predicate, error) {
	p := &Predicate{expr: strings.TrimSpace(expr), now: time.Now}
	for _, o := range opts {
		o(p)
	}
	if p.expr == "" {
		return p, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("member", cel.StringType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("now_ms", cel.IntType),
		cel.Variable("now_s", cel.DoubleType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Parse(p.expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("predicate: parse %q: %w", p.expr, iss.Err())
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("predicate: check %q: %w", p.expr, iss.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("predicate: %q yields %s, want bool", p.expr, checked.OutputType())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, err
	}
	p.prog = prog
	return p, nil
}

// Expr returns the source expression.
func (p *Predicate) Expr() string { return p.expr }

// Ready evaluates the expression for item.
func (p *Predicate) Ready(ctx context.Context, item store.Item) (bool, error) {
	if p.prog == nil {
		return true, nil
	}
	now := p.now()
	out, _, err := p.prog.ContextEval(ctx, map[string]any{
		"member": item.Member,
		"score":  item.Score,
		"now_ms": now.UnixMilli(),
		"now_s":  float64(now.UnixNano()) / float64(time.Second),
	})
	if err != nil {
		return false, fmt.Errorf("predicate: eval %q: %w", p.expr, err)
	}
	b, ok := out.Value().(bool)
	return ok && b, nil
}
