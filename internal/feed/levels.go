package feed

import (
	"strconv"

	"github.com/mselser95/polymarket-arb/pkg/types"
)

// bestBid returns the highest-priced level (the bid best-of-book).
func bestBid(levels []types.PriceLevel) (price, size float64, ok bool) {
	for _, l := range levels {
		p, errP := strconv.ParseFloat(l.Price, 64)
		s, errS := strconv.ParseFloat(l.Size, 64)
		if errP != nil || errS != nil {
			continue
		}
		if !ok || p > price {
			price, size, ok = p, s, true
		}
	}
	return
}

// bestAsk returns the lowest-priced level (the ask best-of-book).
func bestAsk(levels []types.PriceLevel) (price, size float64, ok bool) {
	for _, l := range levels {
		p, errP := strconv.ParseFloat(l.Price, 64)
		s, errS := strconv.ParseFloat(l.Size, 64)
		if errP != nil || errS != nil {
			continue
		}
		if !ok || p < price {
			price, size, ok = p, s, true
		}
	}
	return
}
