package metrics

import (
	"errors"
	"testing"

	"tradedesk/internal/domain"
)

func leg(oi float64) *domain.OptionLeg { return &domain.OptionLeg{OpenInterest: oi} }

func TestMaxPainThreeStrikes(t *testing.T) {
	// Pain at 100: puts 80*20 = 1600. At 110: calls 50*10 + puts 80*10 =
	// 1300. At 120: calls 50*20 = 1000.
	rows := []domain.OptionChainRow{
		{StrikePrice: 100, CE: leg(50), PE: leg(0)},
		{StrikePrice: 110, CE: leg(0), PE: leg(0)},
		{StrikePrice: 120, CE: leg(0), PE: leg(80)},
	}
	mp, err := CalculateMaxPain(rows)
	if err != nil {
		t.Fatal(err)
	}
	if mp.Strike != 120 || mp.Pain != 1000 {
		t.Errorf("max pain = %+v, want strike 120 pain 1000", mp)
	}
}

func TestMaxPainEdgeCases(t *testing.T) {
	if _, err := CalculateMaxPain(nil); !errors.Is(err, ErrEmptyChain) {
		t.Errorf("empty chain err = %v, want ErrEmptyChain", err)
	}

	mp, err := CalculateMaxPain([]domain.OptionChainRow{{StrikePrice: 22000}})
	if err != nil || mp.Strike != 22000 || mp.Pain != 0 {
		t.Errorf("single strike = %+v, %v", mp, err)
	}

	// No OI anywhere: every strike ties at 0, first row wins.
	mp, _ = CalculateMaxPain([]domain.OptionChainRow{{StrikePrice: 200, CE: leg(0)}, {StrikePrice: 100, PE: leg(0)}})
	if mp.Strike != 200 {
		t.Errorf("tie = %+v, want first row", mp)
	}
}

func TestProcessOptionChain(t *testing.T) {
	rows := []domain.OptionChainRow{
		{StrikePrice: 100, CE: leg(0), PE: leg(50)},
		{StrikePrice: 110, CE: leg(200), PE: leg(100)},
		{StrikePrice: 120, CE: leg(300)},
	}
	out := ProcessOptionChain(rows, 108)
	if len(out) != 3 {
		t.Fatalf("len = %d", len(out))
	}
	if out[0].PCR != 50 || out[0].TotalOI != 50 || out[0].OIDiff != -50 {
		t.Errorf("row 100 = %+v", out[0])
	}
	if out[1].PCR != 0.5 || out[1].TotalOI != 300 || out[1].OIDiff != 100 {
		t.Errorf("row 110 = %+v", out[1])
	}
	if out[2].PCR != 0 || out[2].PE != nil {
		t.Errorf("row 120 = %+v", out[2])
	}
	if !out[1].IsATM || out[0].IsATM || out[2].IsATM {
		t.Errorf("ATM flags = %v %v %v, want 110 only", out[0].IsATM, out[1].IsATM, out[2].IsATM)
	}

	for _, r := range ProcessOptionChain(rows, 0) {
		if r.IsATM {
			t.Error("no ATM row without a spot price")
		}
	}
}

func TestComputeGammaExposure(t *testing.T) {
	rows := []domain.OptionChainRow{
		{
			StrikePrice: 100,
			CE:          &domain.OptionLeg{OpenInterest: 1000, Gamma: 0.01},
			PE:          &domain.OptionLeg{OpenInterest: 200, Gamma: 0.02},
		},
		{
			StrikePrice: 105.5,
			PE:          &domain.OptionLeg{OpenInterest: 100, Gamma: 0.01},
		},
	}
	// spot^2 * 0.01 = 100. Strike 100: (10 - 4) * 100. Strike 105.5: -1 * 100.
	g := ComputeGammaExposure(rows, 100)
	if !approx(g.ByStrike["100"], 600) {
		t.Errorf("byStrike[100] = %v, want 600", g.ByStrike["100"])
	}
	if !approx(g.ByStrike["105.5"], -100) {
		t.Errorf("byStrike[105.5] = %v, want -100", g.ByStrike["105.5"])
	}
	if !approx(g.Total, 500) {
		t.Errorf("total = %v, want 500", g.Total)
	}

	// Missing greeks contribute nothing.
	g = ComputeGammaExposure([]domain.OptionChainRow{{StrikePrice: 1, CE: leg(10), PE: leg(10)}}, 100)
	if g.Total != 0 {
		t.Errorf("total without greeks = %v", g.Total)
	}
}

func TestAggregateOIData(t *testing.T) {
	rows := []domain.OptionChainRow{
		{StrikePrice: 100,
			CE: &domain.OptionLeg{OpenInterest: 100, ChangeInOpenInterest: 10, Volume: 5},
			PE: &domain.OptionLeg{OpenInterest: 150, ChangeInOpenInterest: -20, Volume: 7}},
		{StrikePrice: 110,
			CE: &domain.OptionLeg{OpenInterest: 100, ChangeInOpenInterest: 5, Volume: 1}},
	}
	s := AggregateOIData(rows)
	want := OISummary{
		TotalCallOI: 200, TotalPutOI: 150,
		TotalCallOIChange: 15, TotalPutOIChange: -20,
		TotalCallVolume: 6, TotalPutVolume: 7,
		PCR: 0.75, NetOIChange: 35,
	}
	if s != want {
		t.Errorf("summary = %+v\nwant      %+v", s, want)
	}

	if z := AggregateOIData([]domain.OptionChainRow{{StrikePrice: 1, PE: leg(10)}}); z.PCR != 0 {
		t.Errorf("PCR without call OI = %v, want 0", z.PCR)
	}
}
