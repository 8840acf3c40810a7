package core

// RoundDownTick rounds price down to a multiple of tick. Safe for negative
// prices, which spread markets quote routinely.
func RoundDownTick(price, tick int64) int64 {
	mod := price % tick
	if mod >= 0 {
		return price - mod
	}
	return price - mod - tick
}

// RoundUpTick rounds price up to a multiple of tick.
func RoundUpTick(price, tick int64) int64 {
	mod := price % tick
	if mod == 0 {
		return price
	}
	if mod > 0 {
		return price + tick - mod
	}
	return price - mod
}

// FeePips returns the fee charged on price at the given pips (1 pip =
// 1/10000). The fee is always non-negative.
func FeePips(price, pips int64) int64 {
	fee := price
	if fee < 0 {
		fee = -fee
	}
	fee *= pips
	fee /= 10000
	return fee
}
