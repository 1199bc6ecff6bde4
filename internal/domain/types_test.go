package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStockVariants(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Stock
	}{
		{
			name: "canonical",
			json: `{"symbol":"TCS","lastPrice":3500.5,"changePercent":1.2,"volume":1000,"isFNO":true}`,
			want: Stock{Symbol: "TCS", LastPrice: 3500.5, ChangePercent: 1.2, Volume: 1000, IsFNO: true},
		},
		{
			name: "nse style",
			json: `{"symbol":"INFY","ltp":"1,520.40","pChange":"-0.85","totalTradedVolume":"25,000","index":"NIFTY 50"}`,
			want: Stock{Symbol: "INFY", LastPrice: 1520.40, ChangePercent: -0.85, Volume: 25000, Indices: []string{"NIFTY 50"}},
		},
		{
			name: "broker style",
			json: `{"tradingSymbol":"HDFCBANK","last":1650,"percentChange":"2.5%","dayHigh":1660,"dayLow":1600,"fno":"Yes"}`,
			want: Stock{Symbol: "HDFCBANK", LastPrice: 1650, ChangePercent: 2.5, High: 1660, Low: 1600, IsFNO: true},
		},
		{
			name: "garbage numbers",
			json: `{"symbol":"X","lastPrice":"n/a","volume":null}`,
			want: Stock{Symbol: "X"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Stock
			if err := json.Unmarshal([]byte(tt.json), &got); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got.Symbol != tt.want.Symbol {
				t.Errorf("Symbol = %q, want %q", got.Symbol, tt.want.Symbol)
			}
			if got.LastPrice != tt.want.LastPrice {
				t.Errorf("LastPrice = %v, want %v", got.LastPrice, tt.want.LastPrice)
			}
			if got.ChangePercent != tt.want.ChangePercent {
				t.Errorf("ChangePercent = %v, want %v", got.ChangePercent, tt.want.ChangePercent)
			}
			if got.Volume != tt.want.Volume {
				t.Errorf("Volume = %v, want %v", got.Volume, tt.want.Volume)
			}
			if got.High != tt.want.High || got.Low != tt.want.Low {
				t.Errorf("High/Low = %v/%v, want %v/%v", got.High, got.Low, tt.want.High, tt.want.Low)
			}
			if got.IsFNO != tt.want.IsFNO {
				t.Errorf("IsFNO = %v, want %v", got.IsFNO, tt.want.IsFNO)
			}
			if len(got.Indices) != len(tt.want.Indices) {
				t.Errorf("Indices = %v, want %v", got.Indices, tt.want.Indices)
			}
		})
	}
}

func TestStockRoundTripKeepsCanonicalShape(t *testing.T) {
	in := Stock{Symbol: "SBIN", Sector: "Banking", Indices: []string{"NIFTY BANK"}, LastPrice: 800, AvgVolume: 12}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out Stock
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Symbol != in.Symbol || out.Sector != in.Sector || out.LastPrice != in.LastPrice || out.AvgVolume != in.AvgVolume {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
	if !out.InIndex("nifty bank") {
		t.Error("InIndex should match case-insensitively")
	}
}

func TestOptionChainRowVariants(t *testing.T) {
	nse := `{"strikePrice":22000,"CE":{"openInterest":1500,"changeinOpenInterest":200,"totalTradedVolume":900,"impliedVolatility":14.2,"lastPrice":120.5},"PE":{"openInterest":"2,500"}}`
	var row OptionChainRow
	if err := json.Unmarshal([]byte(nse), &row); err != nil {
		t.Fatalf("Unmarshal NSE row: %v", err)
	}
	if row.StrikePrice != 22000 {
		t.Errorf("StrikePrice = %v, want 22000", row.StrikePrice)
	}
	if row.CE == nil || row.CE.ChangeInOpenInterest != 200 || row.CE.Volume != 900 {
		t.Errorf("CE leg = %+v", row.CE)
	}
	if row.PutOI() != 2500 {
		t.Errorf("PutOI = %v, want 2500", row.PutOI())
	}

	nested := `{"strike_price":100,"call_options":{"market_data":{"ltp":5,"oi":40,"prev_oi":30},"option_greeks":{"gamma":0.02,"iv":18}},"put_options":null}`
	var row2 OptionChainRow
	if err := json.Unmarshal([]byte(nested), &row2); err != nil {
		t.Fatalf("Unmarshal nested row: %v", err)
	}
	if row2.CE == nil {
		t.Fatal("expected call leg")
	}
	if row2.CE.OpenInterest != 40 || row2.CE.ChangeInOpenInterest != 10 {
		t.Errorf("OI/ChangeInOI = %v/%v, want 40/10", row2.CE.OpenInterest, row2.CE.ChangeInOpenInterest)
	}
	if row2.CE.Gamma != 0.02 || row2.CE.ImpliedVolatility != 18 {
		t.Errorf("greeks not read: %+v", row2.CE)
	}
	if row2.PE != nil {
		t.Error("null put leg should stay nil")
	}
	if row2.PutOI() != 0 {
		t.Errorf("PutOI without leg = %v, want 0", row2.PutOI())
	}
}

func TestCandleTimeFormats(t *testing.T) {
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	inputs := []string{
		`{"time":"2024-03-01T00:00:00Z","close":1}`,
		`{"date":"2024-03-01","c":1}`,
		`{"timestamp":1709251200,"close":1}`,
		`{"t":1709251200000,"close":1}`,
	}
	for _, in := range inputs {
		var c Candle
		if err := json.Unmarshal([]byte(in), &c); err != nil {
			t.Fatalf("Unmarshal %s: %v", in, err)
		}
		if !c.Time.Equal(want) {
			t.Errorf("%s: Time = %v, want %v", in, c.Time, want)
		}
		if c.Close != 1 {
			t.Errorf("%s: Close = %v, want 1", in, c.Close)
		}
	}
}

func TestSeriesFromCandles(t *testing.T) {
	candles := []Candle{
		{Open: 1, High: 3, Low: 0.5, Close: 2, Volume: 10},
		{Open: 2, High: 4, Low: 1.5, Close: 3, Volume: 20},
	}
	s := SeriesFromCandles(candles)
	if len(s.Closes) != 2 || s.Closes[1] != 3 || s.Highs[0] != 3 || s.Lows[1] != 1.5 || s.Volumes[1] != 20 {
		t.Errorf("unexpected series: %+v", s)
	}
}
