package promotions

import (
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/hanko-field/orderengine/internal/configurable"
	"github.com/hanko-field/orderengine/internal/domain"
)

var (
	// ErrUnsupportedAction is returned when a registered action is neither an order nor an item action.
	ErrUnsupportedAction = errors.New("promotions: unsupported action")
	// ErrRegistryMissing indicates the evaluator was built without registries.
	ErrRegistryMissing = errors.New("promotions: registry is not configured")
	// ErrOrderMissing is returned by Evaluate when no order is given.
	ErrOrderMissing = errors.New("promotions: order is required")
)

// Evaluator applies promotions to an order using registered conditions and actions.
type Evaluator struct {
	conditions *configurable.Registry[Condition]
	actions    *configurable.Registry[Action]
}

// NewEvaluator builds an evaluator over the given registries.
func NewEvaluator(conditions *configurable.Registry[Condition], actions *configurable.Registry[Action]) (*Evaluator, error) {
	if conditions == nil || actions == nil {
		return nil, ErrRegistryMissing
	}
	return &Evaluator{conditions: conditions, actions: actions}, nil
}

// DefaultEvaluator uses the built-in operations.
func DefaultEvaluator() *Evaluator {
	return &Evaluator{
		conditions: configurable.MustRegistry(BuiltinConditions()...),
		actions:    configurable.MustRegistry(BuiltinActions()...),
	}
}

// Conditions exposes the condition registry so callers can register custom operations.
func (e *Evaluator) Conditions() *configurable.Registry[Condition] { return e.conditions }

// Actions exposes the action registry.
func (e *Evaluator) Actions() *configurable.Registry[Action] { return e.actions }

// Applied describes a promotion that produced at least one adjustment.
type Applied struct {
	PromotionID string
	Amount      int64
}

// Evaluate clears existing promotion adjustments and applies every qualifying promotion in
// priority order, recomputing totals after each one. The order must already carry tax.
func (e *Evaluator) Evaluate(pctx Context, order *domain.Order, promotions []domain.Promotion) ([]Applied, error) {
	if order == nil {
		return nil, ErrOrderMissing
	}
	order.ClearAdjustments(domain.AdjustmentTypePromotion)
	order.RecalculateTotals()

	candidates := lo.Filter(promotions, func(p domain.Promotion, _ int) bool {
		return p.Enabled
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PriorityValue < candidates[j].PriorityValue
	})

	var applied []Applied
	for _, promotion := range candidates {
		if !Eligible(pctx, order, promotion) {
			continue
		}
		ok, err := e.checkConditions(pctx, order, promotion)
		if err != nil {
			return nil, fmt.Errorf("promotion %s: %w", promotion.ID, err)
		}
		if !ok {
			continue
		}
		amount, err := e.applyActions(pctx, order, promotion)
		if err != nil {
			return nil, fmt.Errorf("promotion %s: %w", promotion.ID, err)
		}
		order.RecalculateTotals()
		if amount != 0 {
			applied = append(applied, Applied{PromotionID: promotion.ID, Amount: amount})
		}
	}
	return applied, nil
}

// Eligible applies the checks every promotion carries besides its conditions: the validity
// window, the coupon code and the per-customer usage limit.
func Eligible(pctx Context, order *domain.Order, promotion domain.Promotion) bool {
	if promotion.StartsAt != nil && pctx.Now.Before(*promotion.StartsAt) {
		return false
	}
	if promotion.EndsAt != nil && pctx.Now.After(*promotion.EndsAt) {
		return false
	}
	if promotion.CouponCode != "" && !order.HasCoupon(promotion.CouponCode) {
		return false
	}
	if promotion.PerCustomerUsageLimit > 0 && pctx.Usage[promotion.ID] >= promotion.PerCustomerUsageLimit {
		return false
	}
	return true
}

func (e *Evaluator) checkConditions(pctx Context, order *domain.Order, promotion domain.Promotion) (bool, error) {
	for _, stored := range promotion.Conditions {
		condition, args, err := e.conditions.Resolve(stored)
		if err != nil {
			return false, err
		}
		ok, err := condition.Check(pctx, order, args)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *Evaluator) applyActions(pctx Context, order *domain.Order, promotion domain.Promotion) (int64, error) {
	var total int64
	for _, stored := range promotion.Actions {
		action, args, err := e.actions.Resolve(stored)
		if err != nil {
			return 0, err
		}
		switch act := action.(type) {
		case OrderAction:
			amount, err := act.Execute(pctx, order, args)
			if err != nil {
				return 0, err
			}
			total += applyOrderAmount(order, promotion, amount)
		case ItemAction:
			amount, err := applyItemAction(pctx, order, promotion, act, args)
			if err != nil {
				return 0, err
			}
			total += amount
		default:
			return 0, fmt.Errorf("%w: %q", ErrUnsupportedAction, stored.Code)
		}
		order.RecalculateTotals()
	}
	return total, nil
}

// applyOrderAmount prorates an order level amount over the active items, weighted by their
// discounted tax inclusive price, and records the order adjustment as the sum actually applied.
// No item is discounted below zero.
func applyOrderAmount(order *domain.Order, promotion domain.Promotion, amount int64) int64 {
	if amount == 0 {
		return 0
	}
	var items []*domain.OrderItem
	var weights []int64
	var available int64
	for li := range order.Lines {
		for _, item := range order.Lines[li].ActiveItems() {
			gross := discountedGross(item)
			items = append(items, item)
			weights = append(weights, gross)
			available += gross
		}
	}
	if len(items) == 0 || available <= 0 {
		return 0
	}
	if amount < -available {
		amount = -available
	}

	var applied int64
	for idx, share := range allocateByWeight(amount, weights) {
		item := items[idx]
		itemAmount := share
		if !item.UnitPriceIncludesTax {
			itemAmount = domain.NetOf(share, item.TaxRate)
		}
		if floor := -item.UnitPriceWithPromotions(); itemAmount <= floor {
			itemAmount = floor
			share = -weights[idx]
		}
		if itemAmount == 0 {
			continue
		}
		item.AddAdjustment(domain.Adjustment{
			SourceID:    promotion.ID,
			Type:        domain.AdjustmentTypePromotion,
			Description: promotion.Name,
			Amount:      itemAmount,
		})
		applied += share
	}
	if applied == 0 {
		return 0
	}
	order.AddAdjustment(domain.Adjustment{
		SourceID:    promotion.ID,
		Type:        domain.AdjustmentTypePromotion,
		Description: promotion.Name,
		Amount:      applied,
	})
	return applied
}

// discountedGross is the item's price after promotions with tax at its current rate. Tax
// adjustments are not used because they still reflect the price before this pass.
func discountedGross(item *domain.OrderItem) int64 {
	price := item.UnitPriceWithPromotions()
	if price <= 0 {
		return 0
	}
	if item.UnitPriceIncludesTax {
		return price
	}
	return price + domain.PercentOf(price, item.TaxRate)
}

func applyItemAction(pctx Context, order *domain.Order, promotion domain.Promotion, action ItemAction, args configurable.Args) (int64, error) {
	var total int64
	for li := range order.Lines {
		line := &order.Lines[li]
		for _, item := range line.ActiveItems() {
			amount, err := action.ExecuteItem(pctx, item, line, args)
			if err != nil {
				return 0, err
			}
			if floor := -item.UnitPriceWithPromotions(); amount < floor {
				amount = floor
			}
			if amount == 0 {
				continue
			}
			item.AddAdjustment(domain.Adjustment{
				SourceID:    promotion.ID,
				Type:        domain.AdjustmentTypePromotion,
				Description: promotion.Name,
				Amount:      amount,
			})
			total += amount
		}
	}
	return total, nil
}
