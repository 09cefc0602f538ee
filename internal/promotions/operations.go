// Package promotions evaluates promotion conditions and actions against an order and records the
// resulting adjustments.
package promotions

import (
	"time"

	"github.com/hanko-field/orderengine/internal/configurable"
	"github.com/hanko-field/orderengine/internal/domain"
)

// Context is the per-calculation information conditions may need beyond the order itself.
type Context struct {
	Now              time.Time
	CustomerGroupIDs []string
	// Usage counts how many times the order's customer already used each promotion, by promotion ID.
	Usage map[string]int
}

// Condition is a promotion predicate registered under a stable code.
type Condition interface {
	Definition() configurable.Definition
	Check(pctx Context, order *domain.Order, args configurable.Args) (bool, error)
}

// Action is implemented by OrderAction and ItemAction.
type Action interface {
	Definition() configurable.Definition
}

// OrderAction returns one signed amount for the whole order.
type OrderAction interface {
	Action
	Execute(pctx Context, order *domain.Order, args configurable.Args) (int64, error)
}

// ItemAction returns a signed amount for a single unit.
type ItemAction interface {
	Action
	ExecuteItem(pctx Context, item *domain.OrderItem, line *domain.OrderLine, args configurable.Args) (int64, error)
}

// ConditionFunc adapts a function to Condition.
type ConditionFunc struct {
	Def   configurable.Definition
	Check func(pctx Context, order *domain.Order, args configurable.Args) (bool, error)
}

// OrderActionFunc adapts a function to OrderAction.
type OrderActionFunc struct {
	Def     configurable.Definition
	Execute func(pctx Context, order *domain.Order, args configurable.Args) (int64, error)
}

// ItemActionFunc adapts a function to ItemAction.
type ItemActionFunc struct {
	Def     configurable.Definition
	Execute func(pctx Context, item *domain.OrderItem, line *domain.OrderLine, args configurable.Args) (int64, error)
}

type conditionAdapter struct{ fn ConditionFunc }

func (c conditionAdapter) Definition() configurable.Definition { return c.fn.Def }

func (c conditionAdapter) Check(pctx Context, order *domain.Order, args configurable.Args) (bool, error) {
	return c.fn.Check(pctx, order, args)
}

type orderActionAdapter struct{ fn OrderActionFunc }

func (a orderActionAdapter) Definition() configurable.Definition { return a.fn.Def }

func (a orderActionAdapter) Execute(pctx Context, order *domain.Order, args configurable.Args) (int64, error) {
	return a.fn.Execute(pctx, order, args)
}

type itemActionAdapter struct{ fn ItemActionFunc }

func (a itemActionAdapter) Definition() configurable.Definition { return a.fn.Def }

func (a itemActionAdapter) ExecuteItem(pctx Context, item *domain.OrderItem, line *domain.OrderLine, args configurable.Args) (int64, error) {
	return a.fn.Execute(pctx, item, line, args)
}

// NewCondition wraps fn as a Condition.
func NewCondition(fn ConditionFunc) Condition { return conditionAdapter{fn: fn} }

// NewOrderAction wraps fn as an OrderAction.
func NewOrderAction(fn OrderActionFunc) OrderAction { return orderActionAdapter{fn: fn} }

// NewItemAction wraps fn as an ItemAction.
func NewItemAction(fn ItemActionFunc) ItemAction { return itemActionAdapter{fn: fn} }
