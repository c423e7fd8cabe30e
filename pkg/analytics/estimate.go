package analytics

import (
	"math"
	"math/rand/v2"
	"time"
)

type pageViewRange struct {
	min, max int
}

var tierPageViews = map[Tier]pageViewRange{
	TierPremium:  {80, 200},
	TierApproved: {30, 120},
	TierOther:    {5, 40},
}

// response time buckets in hours, 0.5h steps
var tierResponseHours = map[Tier][2]float64{
	TierPremium:  {1, 2},
	TierApproved: {2, 6},
	TierOther:    {6, 24},
}

var tierIntentionBonus = map[Tier]int{
	TierPremium:  15,
	TierApproved: 5,
	TierOther:    0,
}

// Estimate holds the simulated values for one provider-day.
type Estimate struct {
	PageViews      int64
	ResponseTime   float64
	ProfileViews   int64
	IntentionScore int
}

// Estimator produces plausible values for metrics with no observed source.
// Output depends only on the seed, the provider and the day, so recomputing
// a record yields the same numbers.
type Estimator struct {
	seed uint64
}

// NewEstimator creates an estimator with an explicit seed.
func NewEstimator(seed uint64) *Estimator {
	return &Estimator{seed: seed}
}

func (e *Estimator) stream(providerID int64, day time.Time) *rand.Rand {
	// splitmix64 finalizer over the provider and day
	x := uint64(providerID)*0x9E3779B97F4A7C15 ^ uint64(DayStart(day).Unix())
	x ^= x >> 30
	x *= 0xBF58476D1CE4E5B9
	x ^= x >> 27
	x *= 0x94D049BB133111EB
	x ^= x >> 31
	return rand.New(rand.NewPCG(e.seed, x))
}

// AgeFactor scales estimated traffic with listing age: 1.0 for a new listing
// growing linearly to 2.0 at two years.
func AgeFactor(createdAt, day time.Time) float64 {
	if createdAt.IsZero() {
		return 1
	}
	years := day.Sub(createdAt).Hours() / (24 * 365)
	if years < 0 {
		years = 0
	}
	return 1 + 0.5*math.Min(years, 2)
}

// Estimate draws the simulated values for p on day. observedPageViews is
// used for profile views when known (>= 0); pass -1 to use the estimate.
func (e *Estimator) Estimate(p Provider, day time.Time, observedPageViews int64) Estimate {
	r := e.stream(p.ID, day)
	tier := p.Tier()

	// Draw order is fixed so every field is stable on its own.
	pv := tierPageViews[tier]
	basePV := pv.min + r.IntN(pv.max-pv.min+1)

	rt := tierResponseHours[tier]
	steps := int((rt[1]-rt[0])/0.5) + 1
	responseTime := rt[0] + 0.5*float64(r.IntN(steps))

	profileFraction := 0.60 + 0.20*r.Float64()

	intention := 40 + r.IntN(41) + tierIntentionBonus[tier]
	if intention > 100 {
		intention = 100
	}
	if intention < 0 {
		intention = 0
	}

	est := Estimate{
		PageViews:      int64(math.Round(float64(basePV) * AgeFactor(p.CreatedAt, day))),
		ResponseTime:   responseTime,
		IntentionScore: intention,
	}

	base := est.PageViews
	if observedPageViews >= 0 {
		base = observedPageViews
	}
	est.ProfileViews = int64(math.Round(float64(base) * profileFraction))

	return est
}
