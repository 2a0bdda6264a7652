// Package policyopa evaluates the document access policy with OPA. The
// default module grants access to the document owner and to admin callers;
// deployments can replace it with a bundle on disk.
package policyopa

import (
	"context"
	"encoding/json"
	"errors"

	"esignd/internal/domain"

	"github.com/open-policy-agent/opa/rego"
)

const defaultQuery = "data.esignd.access.result"

const defaultModule = `package esignd.access

default result = {"allow": false, "reasons": ["caller does not own the document"]}

result = {"allow": true} {
	input.subject == input.owner
}

result = {"allow": true} {
	input.roles[_] == "admin"
}
`

type Engine struct {
	query rego.PreparedEvalQuery
}

func NewEngine(ctx context.Context) (*Engine, error) {
	r := rego.New(
		rego.Query(defaultQuery),
		rego.Module("access.rego", defaultModule),
		rego.StrictBuiltinErrors(true),
	)
	return prepare(ctx, r)
}

func NewEngineFromBundlePath(ctx context.Context, bundlePath string) (*Engine, error) {
	r := rego.New(
		rego.Query(defaultQuery),
		rego.StrictBuiltinErrors(true),
		rego.Load([]string{bundlePath}, nil),
	)
	return prepare(ctx, r)
}

func prepare(ctx context.Context, r *rego.Rego) (*Engine, error) {
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	return &Engine{query: prepared}, nil
}

func (e *Engine) Evaluate(ctx context.Context, input domain.AccessInput) (domain.AccessDecision, error) {
	if e == nil {
		return domain.AccessDecision{}, errors.New("policy engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.AccessDecision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.AccessDecision{}, errors.New("empty policy result")
	}
	raw := results[0].Expressions[0].Value
	payload, err := json.Marshal(raw)
	if err != nil {
		return domain.AccessDecision{}, err
	}
	var decision domain.AccessDecision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return domain.AccessDecision{}, err
	}
	return decision, nil
}
