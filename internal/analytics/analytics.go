// internal/analytics/analytics.go
package analytics

import "github.com/unclebandit/msgblast-backend/internal/model"

// Compute derives the engagement rates from a progress snapshot. Rates are
// always recomputed from counts, never incrementally adjusted, and safe
// division keeps every rate in [0,100] including the all-zero case.
func Compute(p model.Progress) model.Analytics {
	return model.Analytics{
		DeliveryRate:    rate(p.Delivered, p.Total),
		OpenRate:        rate(p.Opened, p.Delivered),
		ClickRate:       rate(p.Clicked, p.Opened),
		BounceRate:      rate(p.Bounced, p.Total),
		UnsubscribeRate: rate(p.Unsubscribed, p.Total),
	}
}

func rate(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator) * 100
}
