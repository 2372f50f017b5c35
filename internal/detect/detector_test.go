package detect

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyarb/internal/domain"
)

func testDetector() *Detector {
	return NewDetector(Params{
		MinEdgePercent: 3.0,
		BaseSize:       50,
		MaxSize:        200,
		Multipliers: map[domain.ContractClass]float64{
			domain.ClassCrypto5m:     1.0,
			domain.ClassCrypto15m:    1.2,
			domain.ClassCryptoUpDown: 1.0,
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func btcSample(price float64) domain.PriceSample {
	return domain.PriceSample{Source: "binance", Symbol: "BTC", Price: price, Timestamp: time.Now()}
}

func targetContract(question string, yes, no float64) domain.Contract {
	return domain.Contract{
		ID:        "cond-target",
		Question:  question,
		Class:     domain.ClassCrypto5m,
		YesPrice:  yes,
		NoPrice:   no,
		EndTime:   time.Now().Add(time.Hour),
		Liquidity: 5000,
	}
}

func TestPriceTargetAboveTarget(t *testing.T) {
	d := testDetector()
	c := targetContract("Will BTC hit $103,000 by 8PM?", 0.40, 0.60)

	opp, err := d.Detect(c, btcSample(103500))
	require.NoError(t, err)
	require.NotNil(t, opp)

	assert.Equal(t, domain.SideYes, opp.Side)
	assert.Equal(t, 0.99, opp.TrueProbability)
	assert.Equal(t, 0.9, opp.Confidence)
	assert.InDelta(t, 147.5, opp.EdgePercent, 0.01)
	// Edges are not capped, however absurd.
	assert.Greater(t, opp.EdgePercent, 100.0)
	// The 30s TTL applies because the contract ends much later.
	assert.WithinDuration(t, time.Now().Add(30*time.Second), opp.ExpiresAt, time.Second)
}

func TestPriceTargetEdgeRoundTrip(t *testing.T) {
	d := testDetector()
	c := targetContract("Will BTC hit $103,000 by 8PM?", 0.40, 0.60)

	opp, err := d.Detect(c, btcSample(103500))
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.InDelta(t, opp.EdgePercent, domain.EdgePercent(opp.TrueProbability, opp.VenuePrice), 1e-9)
}

func TestPriceTargetExactlyAtTarget(t *testing.T) {
	d := testDetector()
	c := targetContract("Will BTC hit $100,000 today?", 0.40, 0.60)

	opp, err := d.Detect(c, btcSample(100000.00))
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestPriceTargetBelowTargetTakesUnderpricedNo(t *testing.T) {
	d := testDetector()
	// 11% below target puts the YES estimate at 0.10; NO gate is < 0.80.
	c := targetContract("Will BTC hit $100,000 today?", 0.25, 0.70)

	opp, err := d.Detect(c, btcSample(90000))
	require.NoError(t, err)
	require.NotNil(t, opp)

	assert.Equal(t, domain.SideNo, opp.Side)
	assert.InDelta(t, 0.90, opp.TrueProbability, 1e-9)
	assert.Equal(t, 0.7, opp.Confidence)
	assert.InDelta(t, (0.90-0.70)/0.70*100, opp.EdgePercent, 1e-9)
}

func TestPriceTargetBelowTargetFairNoIsSkipped(t *testing.T) {
	d := testDetector()
	// NO at 0.85 is not below the 0.80 gate; the overpriced YES is never
	// shorted either.
	c := targetContract("Will BTC hit $100,000 today?", 0.15, 0.85)

	opp, err := d.Detect(c, btcSample(90000))
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestPriceTargetNoNumberInQuestion(t *testing.T) {
	d := testDetector()
	c := targetContract("Will bitcoin rally today?", 0.40, 0.60)

	opp, err := d.Detect(c, btcSample(100000))
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestPriceTargetBelowMinimumEdge(t *testing.T) {
	d := testDetector()
	c := targetContract("Will BTC hit $90,000 today?", 0.98, 0.02)

	// Above target, trueProb 0.99 vs YES 0.98 is just over 1% edge.
	opp, err := d.Detect(c, btcSample(95000))
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestDetectRejectsNonPositiveReference(t *testing.T) {
	d := testDetector()
	c := targetContract("Will BTC hit $90,000 today?", 0.40, 0.60)

	opp, err := d.Detect(c, btcSample(0))
	assert.Nil(t, opp)
	var derr *domain.DetectionError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "reference_price", derr.Stage)
}

// directionalFixture drives the up/down model through a 15-minute window on
// March 1 2026 (2:00PM-2:15PM ET, i.e. 19:00-19:15 UTC).
type directionalFixture struct {
	d        *Detector
	contract domain.Contract
	start    time.Time
}

func newDirectionalFixture(yes, no float64) *directionalFixture {
	f := &directionalFixture{
		d: testDetector(),
		contract: domain.Contract{
			ID:        "cond-updown",
			Question:  "Bitcoin Up or Down - March 1, 2:00PM-2:15PM ET",
			Class:     domain.ClassCryptoUpDown,
			YesPrice:  yes,
			NoPrice:   no,
			Liquidity: 5000,
		},
		start: time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC),
	}
	f.contract.EndTime = f.start.Add(15 * time.Minute)
	return f
}

// seed records the opening price 30 seconds into the window.
func (f *directionalFixture) seed(t *testing.T, openingPrice float64) {
	t.Helper()
	f.d.now = func() time.Time { return f.start.Add(30 * time.Second) }
	opp, err := f.d.Detect(f.contract, btcSample(openingPrice))
	require.NoError(t, err)
	require.Nil(t, opp, "the open itself is never traded")
}

func (f *directionalFixture) at(minutes float64) {
	f.d.now = func() time.Time {
		return f.start.Add(time.Duration(minutes * float64(time.Minute)))
	}
}

func TestDirectionalStrongUpMove(t *testing.T) {
	f := newDirectionalFixture(0.40, 0.60)
	f.seed(t, 100)

	// 13 minutes in, 2 remaining, price up 1.6%.
	f.at(13)
	opp, err := f.d.Detect(f.contract, btcSample(101.6))
	require.NoError(t, err)
	require.NotNil(t, opp)

	assert.Equal(t, domain.SideYes, opp.Side)
	// base 0.92 + timeBoost 0.072 + persistence 0.0433 caps at 0.96.
	assert.InDelta(t, 0.96, opp.TrueProbability, 1e-9)
	assert.InDelta(t, 140.0, opp.EdgePercent, 1e-6)
	assert.InDelta(t, 0.9, opp.Confidence, 1e-9)
	// base 50 x1.0 class, x1.5 (>10%), x2.0 (>20%), then x1.2 momentum bump,
	// clamped to the max.
	assert.Equal(t, 200.0, opp.RecommendedSize)
	assert.Equal(t, f.contract.EndTime, opp.ExpiresAt)
}

func TestDirectionalDownMove(t *testing.T) {
	f := newDirectionalFixture(0.60, 0.40)
	f.seed(t, 100)

	f.at(11)
	opp, err := f.d.Detect(f.contract, btcSample(99.2)) // down 0.8%
	require.NoError(t, err)
	require.NotNil(t, opp)

	assert.Equal(t, domain.SideNo, opp.Side)
	// base 0.78 + timeBoost (1-4/5)*0.12 + persistence (11/15)*0.05.
	assert.InDelta(t, 0.78+0.024+0.036666666, opp.TrueProbability, 1e-6)
	assert.InDelta(t, 0.7, opp.Confidence, 1e-9)
}

func TestDirectionalTooEarlyInWindow(t *testing.T) {
	f := newDirectionalFixture(0.40, 0.60)
	f.seed(t, 100)

	// 9 minutes remaining: never trades, regardless of a huge move.
	f.at(6)
	opp, err := f.d.Detect(f.contract, btcSample(110))
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestDirectionalNoOpeningRecorded(t *testing.T) {
	f := newDirectionalFixture(0.40, 0.60)

	// First sighting past the first minute: no baseline, no trade, ever.
	f.at(13)
	opp, err := f.d.Detect(f.contract, btcSample(101.6))
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestDirectionalZeroChangeTakesUpBranch(t *testing.T) {
	f := newDirectionalFixture(0.40, 0.60)
	f.seed(t, 100)

	f.at(13)
	opp, err := f.d.Detect(f.contract, btcSample(100))
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.Equal(t, domain.SideYes, opp.Side)
	// base 0.58 + 0.072 + 0.0433.
	assert.InDelta(t, 0.6953, opp.TrueProbability, 1e-4)
}

func TestDirectionalSweepAndForget(t *testing.T) {
	f := newDirectionalFixture(0.40, 0.60)
	f.seed(t, 100)

	// A sweep before the window ends keeps the record.
	assert.Zero(t, f.d.SweepExpired(f.contract.EndTime.Add(-time.Minute)))
	// After the window ends the record is evicted.
	assert.Equal(t, 1, f.d.SweepExpired(f.contract.EndTime.Add(time.Second)))

	// Without a baseline the late-window check yields nothing.
	f.at(13)
	opp, err := f.d.Detect(f.contract, btcSample(101.6))
	require.NoError(t, err)
	assert.Nil(t, opp)

	f.seed(t, 100)
	f.d.Forget(f.contract.ID)
	f.at(13)
	opp, err = f.d.Detect(f.contract, btcSample(101.6))
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestPositionSizeStacksEdgeBumps(t *testing.T) {
	d := testDetector()

	assert.Equal(t, 50.0, d.positionSize(5, domain.ClassCrypto5m, 5000))
	assert.Equal(t, 75.0, d.positionSize(15, domain.ClassCrypto5m, 5000))
	// Both bumps stack above 20%: 50 x 1.5 x 2.0 = 150.
	assert.Equal(t, 150.0, d.positionSize(25, domain.ClassCrypto5m, 5000))
	// Low liquidity halves it.
	assert.Equal(t, 75.0, d.positionSize(25, domain.ClassCrypto5m, 500))
	// Unknown class multiplier defaults to 1.0.
	assert.Equal(t, 50.0, d.positionSize(5, domain.ClassNews, 5000))
}

func TestPositionSizeFloor(t *testing.T) {
	d := NewDetector(Params{
		MinEdgePercent: 3,
		BaseSize:       10,
		MaxSize:        200,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// 10 x 0.5 liquidity haircut = 5, floored at 10.
	assert.Equal(t, 10.0, d.positionSize(0, domain.ClassCrypto5m, 500))
}
