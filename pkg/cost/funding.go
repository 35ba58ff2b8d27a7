package cost

// EstimateFundingBps estimates hold-period funding cost in basis points from
// the venue's current per-8h funding rate (a fraction, e.g. 0.0001 = 1bp)
// and the expected hold duration in hours. Longs pay positive funding and
// receive negative funding; shorts are the mirror image, so the sign simply
// flips with direction.
func EstimateFundingBps(currentFundingRate float64, holdHours float64, isBuy bool) float64 {
	if holdHours <= 0 {
		holdHours = 0
	}
	periods := holdHours / 8.0
	bps := currentFundingRate * 10000 * periods
	if !isBuy {
		bps = -bps
	}
	return bps
}
