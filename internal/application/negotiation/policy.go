package negotiation

import (
	"errors"
	"slices"
	"strings"

	"github.com/Knetic/govaluate"
)

// DefaultPriceRule accepts any non-negative proposal.
const DefaultPriceRule = "price >= 0"

// PricePolicy is a boolean expression over the proposal price. Supported parameters are
// price and list_price (the product's catalog price).
type PricePolicy struct {
	rule           string
	expr           *govaluate.EvaluableExpression
	needsListPrice bool
}

// NewPricePolicy compiles rule. An empty rule or "true" allows every price.
func NewPricePolicy(rule string) (*PricePolicy, error) {
	rule = strings.TrimSpace(rule)
	p := &PricePolicy{rule: rule}
	if rule == "" || strings.EqualFold(rule, "true") {
		return p, nil
	}
	expr, err := govaluate.NewEvaluableExpression(rule)
	if err != nil {
		return nil, err
	}
	for _, v := range expr.Vars() {
		if v != "price" && v != "list_price" {
			return nil, errors.New("unknown parameter in price rule: " + v)
		}
	}
	p.expr = expr
	p.needsListPrice = slices.Contains(expr.Vars(), "list_price")
	return p, nil
}

func (p *PricePolicy) String() string {
	return p.rule
}

// NeedsListPrice reports whether evaluating the rule requires a catalog lookup.
func (p *PricePolicy) NeedsListPrice() bool {
	return p != nil && p.needsListPrice
}

// Allows evaluates the rule for a proposal.
func (p *PricePolicy) Allows(price, listPrice float64) (bool, error) {
	if p == nil || p.expr == nil {
		return true, nil
	}
	result, err := p.expr.Evaluate(map[string]interface{}{
		"price":      price,
		"list_price": listPrice,
	})
	if err != nil {
		return false, err
	}
	allowed, ok := result.(bool)
	if !ok {
		return false, errors.New("price rule did not evaluate to boolean")
	}
	return allowed, nil
}
