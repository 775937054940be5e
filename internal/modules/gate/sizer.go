package gate

// Headroom returns how many USDC may be spent on an asset before its
// weight reaches the top of its band. Never negative.
func Headroom(maxWeight, totalValueUsdc, holdingValueUsdc float64) float64 {
	headroom := maxWeight*totalValueUsdc - holdingValueUsdc
	if headroom < 0 {
		return 0
	}
	return headroom
}

// SizeOrder computes the approved order size: the requested leg capped by
// band headroom and by spendable cash. The result never exceeds any of
// its three inputs - this monotonicity is the anti-overspend and
// anti-overdrift guarantee.
func SizeOrder(requestedUsdc, headroomUsdc, availableCashUsdc float64) float64 {
	approved := requestedUsdc
	if headroomUsdc < approved {
		approved = headroomUsdc
	}
	if availableCashUsdc < approved {
		approved = availableCashUsdc
	}
	if approved < 0 {
		return 0
	}
	return approved
}
