package promotions

import "sort"

// allocateByWeight splits amount across weights with the largest remainder method so the parts
// always sum to amount. Negative amounts are split by magnitude and negated.
func allocateByWeight(amount int64, weights []int64) []int64 {
	if len(weights) == 0 {
		return nil
	}
	allocations := make([]int64, len(weights))
	if amount == 0 {
		return allocations
	}
	sign := int64(1)
	if amount < 0 {
		sign = -1
		amount = -amount
	}

	totalWeight := int64(0)
	for _, w := range weights {
		if w > 0 {
			totalWeight += w
		}
	}
	if totalWeight == 0 {
		// distribute evenly if all zero
		base := amount / int64(len(weights))
		remainder := amount % int64(len(weights))
		for i := range weights {
			allocations[i] = base
			if remainder > 0 {
				allocations[i]++
				remainder--
			}
			allocations[i] *= sign
		}
		return allocations
	}

	type remainderPair struct {
		idx       int
		remainder int64
	}
	pairs := make([]remainderPair, len(weights))
	distributed := int64(0)
	for i, w := range weights {
		if w < 0 {
			w = 0
		}
		share := (amount * w) / totalWeight
		allocations[i] = share
		distributed += share
		pairs[i] = remainderPair{idx: i, remainder: (amount * w) % totalWeight}
	}

	remainder := amount - distributed
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].remainder == pairs[j].remainder {
			return pairs[i].idx < pairs[j].idx
		}
		return pairs[i].remainder > pairs[j].remainder
	})
	for _, entry := range pairs {
		if remainder == 0 {
			break
		}
		allocations[entry.idx]++
		remainder--
	}

	for i := range allocations {
		allocations[i] *= sign
	}
	return allocations
}
