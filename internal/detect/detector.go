// Package detect implements the opportunity-detection engine: the probability
// models that turn an aggregated reference price plus one venue contract into
// a quantified, sized, time-boxed opportunity, and the book that holds active
// opportunities.
package detect

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"polyarb/internal/domain"
)

// Params holds the detection and sizing knobs. All values come from
// configuration; nothing is re-derived internally.
type Params struct {
	MinEdgePercent float64
	BaseSize       float64
	MaxSize        float64
	Multipliers    map[domain.ContractClass]float64
}

// minPositionSize is the absolute floor for a recommended size.
const minPositionSize = 10.0

// opportunityTTL caps how long a price-target opportunity stays actionable.
const opportunityTTL = 30 * time.Second

// openingRecord is the remembered window baseline for one directional
// contract.
type openingRecord struct {
	price       float64
	windowStart time.Time
	windowEnd   time.Time
}

// Detector evaluates contracts against reference prices. It owns the
// per-contract opening-price state used by the directional model. Safe for
// concurrent use.
type Detector struct {
	params Params
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	opening map[string]openingRecord
}

// NewDetector creates a detector with the given parameters.
func NewDetector(params Params, logger *slog.Logger) *Detector {
	return &Detector{
		params:  params,
		logger:  logger.With(slog.String("component", "detector")),
		now:     time.Now,
		opening: make(map[string]openingRecord),
	}
}

// Detect evaluates one contract against one reference price sample. It
// returns (nil, nil) when the contract is simply not mispriced enough, and
// (nil, *domain.DetectionError) when evaluation failed; a detection error
// must be logged by the caller and otherwise treated as "no opportunity".
func (d *Detector) Detect(contract domain.Contract, sample domain.PriceSample) (opp *domain.Opportunity, err error) {
	defer func() {
		if r := recover(); r != nil {
			opp = nil
			err = &domain.DetectionError{
				Stage:      "model",
				ContractID: contract.ID,
				Err:        fmt.Errorf("panic: %v", r),
			}
		}
	}()

	if sample.Price <= 0 {
		return nil, &domain.DetectionError{
			Stage:      "reference_price",
			ContractID: contract.ID,
			Err:        fmt.Errorf("non-positive reference price %g", sample.Price),
		}
	}

	if isDirectional(contract.Question) {
		return d.detectDirectional(contract, sample)
	}
	return d.detectPriceTarget(contract, sample)
}

// isDirectional reports whether a question describes an up/down window
// contract rather than a price target.
func isDirectional(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range []string{"up or down", "up/down", "higher or lower"} {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// detectPriceTarget prices contracts of the form "Will BTC hit $103k by 8PM?"
// against the live reference price.
func (d *Detector) detectPriceTarget(contract domain.Contract, sample domain.PriceSample) (*domain.Opportunity, error) {
	ref := sample.Price
	target, ok := extractTargetPrice(strings.ToLower(contract.Question))
	if !ok {
		return nil, nil
	}

	var (
		trueProb   float64
		side       domain.Side
		confidence float64
	)
	switch {
	case ref > target:
		// Already above target; YES should be near certain.
		trueProb = 0.99
		side = domain.SideYes
		confidence = 0.9

	case ref < target:
		distancePct := (target - ref) / ref * 100
		var probYes float64
		switch {
		case distancePct > 5:
			probYes = 0.10
		case distancePct > 2:
			probYes = 0.30
		default:
			probYes = 0.60
		}
		// Only take the NO side when it is clearly underpriced. An
		// overpriced YES is never shorted.
		if contract.NoPrice >= 1-probYes-0.1 {
			return nil, nil
		}
		trueProb = 1 - probYes
		side = domain.SideNo
		confidence = 0.7

	default:
		// Exactly at target; no clear edge either way.
		return nil, nil
	}

	venuePrice := contract.PriceFor(side)
	if venuePrice <= 0 {
		return nil, &domain.DetectionError{
			Stage:      "venue_price",
			ContractID: contract.ID,
			Err:        fmt.Errorf("non-positive %s price %g", side, venuePrice),
		}
	}

	edge := domain.EdgePercent(trueProb, venuePrice)
	if edge < d.params.MinEdgePercent {
		return nil, nil
	}

	size := d.positionSize(edge, contract.Class, contract.Liquidity)
	now := d.now()
	expiry := now.Add(opportunityTTL)
	if remaining := contract.EndTime.Sub(now); remaining < opportunityTTL {
		expiry = now.Add(remaining)
	}

	return &domain.Opportunity{
		Contract:        contract,
		Sample:          sample,
		Side:            side,
		VenuePrice:      venuePrice,
		TrueProbability: trueProb,
		EdgePercent:     edge,
		ExpectedProfit:  size * (trueProb - venuePrice),
		RecommendedSize: size,
		ExpiresAt:       expiry,
		Confidence:      confidence,
	}, nil
}

// detectDirectional prices up/down window contracts from momentum off the
// recorded opening price. It only trades the last five minutes of a window,
// when the move is most likely to hold.
func (d *Detector) detectDirectional(contract domain.Contract, sample domain.PriceSample) (*domain.Opportunity, error) {
	ref := sample.Price
	start, end, ok := extractWindow(contract.Question, d.now())
	if !ok {
		return nil, nil
	}

	now := d.now()

	d.mu.Lock()
	rec, have := d.opening[contract.ID]
	if !have {
		// Record the baseline during the first minute of the window and
		// never trade the open itself.
		if !now.Before(start) && now.Before(start.Add(time.Minute)) {
			d.opening[contract.ID] = openingRecord{price: ref, windowStart: start, windowEnd: end}
			d.logger.Info("stored opening price",
				slog.String("contract_id", contract.ID),
				slog.Float64("price", ref))
		}
		d.mu.Unlock()
		return nil, nil
	}
	d.mu.Unlock()

	if rec.price <= 0 {
		return nil, &domain.DetectionError{
			Stage:      "opening_price",
			ContractID: contract.ID,
			Err:        fmt.Errorf("non-positive opening price %g", rec.price),
		}
	}

	remaining := end.Sub(now).Minutes()
	total := end.Sub(start).Minutes()
	elapsed := total - remaining
	if remaining > 5 {
		return nil, nil
	}

	changePct := (ref - rec.price) / rec.price * 100
	momentum := math.Abs(changePct)

	// Zero change carries no real direction and falls to the up branch.
	side := domain.SideYes
	if changePct < 0 {
		side = domain.SideNo
	}

	var base float64
	switch {
	case momentum >= 1.5:
		base = 0.92
	case momentum >= 1.0:
		base = 0.88
	case momentum >= 0.5:
		base = 0.78
	case momentum >= 0.3:
		base = 0.68
	default:
		base = 0.58
	}

	timeBoost := (1 - remaining/5) * 0.12
	persistenceBoost := math.Min(elapsed/total*0.05, 0.05)
	trueProb := math.Min(base+timeBoost+persistenceBoost, 0.96)

	venuePrice := contract.PriceFor(side)
	if venuePrice <= 0 {
		return nil, &domain.DetectionError{
			Stage:      "venue_price",
			ContractID: contract.ID,
			Err:        fmt.Errorf("non-positive %s price %g", side, venuePrice),
		}
	}

	edge := domain.EdgePercent(trueProb, venuePrice)
	if edge < d.params.MinEdgePercent {
		return nil, nil
	}

	size := d.positionSize(edge, contract.Class, contract.Liquidity)
	if momentum >= 1.0 && remaining <= 3 {
		size = math.Min(size*1.2, d.params.MaxSize)
	}

	confidence := 0.6
	if momentum >= 0.5 {
		confidence += 0.1
	}
	if momentum >= 1.0 {
		confidence += 0.1
	}
	if remaining <= 3 {
		confidence += 0.1
	}
	confidence = math.Min(confidence, 0.95)

	sample.Metadata = map[string]string{
		"opening_price":      strconv.FormatFloat(rec.price, 'f', -1, 64),
		"price_change_pct":   strconv.FormatFloat(changePct, 'f', 4, 64),
		"time_remaining_min": strconv.FormatFloat(remaining, 'f', 2, 64),
	}

	return &domain.Opportunity{
		Contract:        contract,
		Sample:          sample,
		Side:            side,
		VenuePrice:      venuePrice,
		TrueProbability: trueProb,
		EdgePercent:     edge,
		ExpectedProfit:  size * (trueProb - venuePrice),
		RecommendedSize: size,
		ExpiresAt:       end,
		Confidence:      confidence,
	}, nil
}

// positionSize computes a recommended size from the edge, the contract class
// multiplier table, and liquidity. The >10% and >20% edge bumps stack, so a
// 25% edge scales by 3x before clamping.
func (d *Detector) positionSize(edgePercent float64, class domain.ContractClass, liquidity float64) float64 {
	mult, ok := d.params.Multipliers[class]
	if !ok {
		mult = 1.0
	}
	if edgePercent > 10 {
		mult *= 1.5
	}
	if edgePercent > 20 {
		mult *= 2.0
	}
	if liquidity < 1000 {
		mult *= 0.5
	}

	size := d.params.BaseSize * mult
	size = math.Min(size, d.params.MaxSize)
	return math.Max(size, minPositionSize)
}

// Forget drops the opening-price record for a contract, called when the
// contract closes or disappears from scans.
func (d *Detector) Forget(contractID string) {
	d.mu.Lock()
	delete(d.opening, contractID)
	d.mu.Unlock()
}

// SweepExpired evicts opening-price records whose windows have ended,
// preventing the map from leaking entries for contracts that were never
// explicitly closed.
func (d *Detector) SweepExpired(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for id, rec := range d.opening {
		if rec.windowEnd.Before(now) {
			delete(d.opening, id)
			n++
		}
	}
	return n
}
