package promotions

import (
	"github.com/samber/lo"

	"github.com/hanko-field/orderengine/internal/configurable"
	"github.com/hanko-field/orderengine/internal/domain"
)

// Built-in operation codes.
const (
	CodeMinimumOrderAmount         = "minimum_order_amount"
	CodeDateRange                  = "date_range"
	CodeAtLeastNOfProduct          = "at_least_n_of_product"
	CodeCustomerGroup              = "customer_group"
	CodeOrderPercentageDiscount    = "order_percentage_discount"
	CodeOrderFixedDiscount         = "order_fixed_discount"
	CodeItemPercentageDiscount     = "item_percentage_discount"
	CodeProductsPercentageDiscount = "products_percentage_discount"
)

var minimumOrderAmount = NewCondition(ConditionFunc{
	Def: configurable.Definition{
		Code:        CodeMinimumOrderAmount,
		Description: "Order subtotal is at least the given amount",
		Args: []configurable.ArgDefinition{
			{Name: "amount", Type: configurable.ArgTypeMoney},
			{Name: "taxInclusive", Type: configurable.ArgTypeBoolean},
		},
	},
	Check: func(_ Context, order *domain.Order, args configurable.Args) (bool, error) {
		amount, err := args.Int("amount")
		if err != nil {
			return false, err
		}
		inclusive, err := args.BoolOr("taxInclusive", true)
		if err != nil {
			return false, err
		}
		if inclusive {
			return order.SubTotal >= amount, nil
		}
		return order.SubTotalBeforeTax >= amount, nil
	},
})

var dateRange = NewCondition(ConditionFunc{
	Def: configurable.Definition{
		Code:        CodeDateRange,
		Description: "Order is placed within the given dates",
		Args: []configurable.ArgDefinition{
			{Name: "start", Type: configurable.ArgTypeDateTime},
			{Name: "end", Type: configurable.ArgTypeDateTime},
		},
	},
	Check: func(pctx Context, _ *domain.Order, args configurable.Args) (bool, error) {
		if args.Has("start") {
			start, err := args.Time("start")
			if err != nil {
				return false, err
			}
			if pctx.Now.Before(start) {
				return false, nil
			}
		}
		if args.Has("end") {
			end, err := args.Time("end")
			if err != nil {
				return false, err
			}
			if pctx.Now.After(end) {
				return false, nil
			}
		}
		return true, nil
	},
})

var atLeastNOfProduct = NewCondition(ConditionFunc{
	Def: configurable.Definition{
		Code:        CodeAtLeastNOfProduct,
		Description: "Order contains at least N units of the listed variants",
		Args: []configurable.ArgDefinition{
			{Name: "minimum", Type: configurable.ArgTypeInt},
			{Name: "productVariantIds", Type: configurable.ArgTypeString},
		},
	},
	Check: func(_ Context, order *domain.Order, args configurable.Args) (bool, error) {
		minimum, err := args.Int("minimum")
		if err != nil {
			return false, err
		}
		ids, err := args.StringList("productVariantIds")
		if err != nil {
			return false, err
		}
		matched := lo.SumBy(order.Lines, func(line domain.OrderLine) int {
			if lo.Contains(ids, line.ProductVariant.ID) {
				return line.Quantity()
			}
			return 0
		})
		return int64(matched) >= minimum, nil
	},
})

var customerGroup = NewCondition(ConditionFunc{
	Def: configurable.Definition{
		Code:        CodeCustomerGroup,
		Description: "Customer belongs to the group",
		Args: []configurable.ArgDefinition{
			{Name: "customerGroupId", Type: configurable.ArgTypeID},
		},
	},
	Check: func(pctx Context, _ *domain.Order, args configurable.Args) (bool, error) {
		groupID, err := args.String("customerGroupId")
		if err != nil {
			return false, err
		}
		return lo.Contains(pctx.CustomerGroupIDs, groupID), nil
	},
})

var orderPercentageDiscount = NewOrderAction(OrderActionFunc{
	Def: configurable.Definition{
		Code:        CodeOrderPercentageDiscount,
		Description: "Discount the order subtotal by a percentage",
		Args: []configurable.ArgDefinition{
			{Name: "discount", Type: configurable.ArgTypePercentage},
		},
	},
	Execute: func(_ Context, order *domain.Order, args configurable.Args) (int64, error) {
		pct, err := args.Float("discount")
		if err != nil {
			return 0, err
		}
		return -domain.PercentOf(order.SubTotal, pct), nil
	},
})

var orderFixedDiscount = NewOrderAction(OrderActionFunc{
	Def: configurable.Definition{
		Code:        CodeOrderFixedDiscount,
		Description: "Discount the order by a fixed amount",
		Args: []configurable.ArgDefinition{
			{Name: "discount", Type: configurable.ArgTypeMoney},
		},
	},
	Execute: func(_ Context, _ *domain.Order, args configurable.Args) (int64, error) {
		amount, err := args.Int("discount")
		if err != nil {
			return 0, err
		}
		if amount < 0 {
			amount = -amount
		}
		return -amount, nil
	},
})

var itemPercentageDiscount = NewItemAction(ItemActionFunc{
	Def: configurable.Definition{
		Code:        CodeItemPercentageDiscount,
		Description: "Discount every unit by a percentage",
		Args: []configurable.ArgDefinition{
			{Name: "discount", Type: configurable.ArgTypePercentage},
		},
	},
	Execute: func(_ Context, item *domain.OrderItem, _ *domain.OrderLine, args configurable.Args) (int64, error) {
		pct, err := args.Float("discount")
		if err != nil {
			return 0, err
		}
		return -domain.PercentOf(item.UnitPrice, pct), nil
	},
})

var productsPercentageDiscount = NewItemAction(ItemActionFunc{
	Def: configurable.Definition{
		Code:        CodeProductsPercentageDiscount,
		Description: "Discount units of the listed variants by a percentage",
		Args: []configurable.ArgDefinition{
			{Name: "discount", Type: configurable.ArgTypePercentage},
			{Name: "productVariantIds", Type: configurable.ArgTypeString},
		},
	},
	Execute: func(_ Context, item *domain.OrderItem, line *domain.OrderLine, args configurable.Args) (int64, error) {
		ids, err := args.StringList("productVariantIds")
		if err != nil {
			return 0, err
		}
		if !lo.Contains(ids, line.ProductVariant.ID) {
			return 0, nil
		}
		pct, err := args.Float("discount")
		if err != nil {
			return 0, err
		}
		return -domain.PercentOf(item.UnitPrice, pct), nil
	},
})

// BuiltinConditions returns the conditions shipped with the engine.
func BuiltinConditions() []Condition {
	return []Condition{minimumOrderAmount, dateRange, atLeastNOfProduct, customerGroup}
}

// BuiltinActions returns the actions shipped with the engine.
func BuiltinActions() []Action {
	return []Action{orderPercentageDiscount, orderFixedDiscount, itemPercentageDiscount, productsPercentageDiscount}
}
