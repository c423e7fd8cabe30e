package analytics

import "math"

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// ConversionRate is conversions per page view in percent, 2 decimals. Zero
// page views yield 0.
func ConversionRate(conversions, pageViews int64) float64 {
	if pageViews == 0 {
		return 0
	}
	return Round(float64(conversions)/float64(pageViews)*100, 2)
}

// GrowthPercent compares current with prior in percent, 2 decimals. With no
// prior activity growth is 100 when anything happened now and 0 otherwise.
func GrowthPercent(current, prior int64) float64 {
	if prior == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return Round(float64(current-prior)/float64(prior)*100, 2)
}

// MonthlyGrowth is GrowthPercent of month-to-date leads against the whole
// previous month.
func MonthlyGrowth(monthToDate, priorMonth int64) float64 {
	return GrowthPercent(monthToDate, priorMonth)
}

// ConversionPointLeads weights each conversion as two lead points.
func ConversionPointLeads(conversions int64) int64 {
	return conversions * 2
}
