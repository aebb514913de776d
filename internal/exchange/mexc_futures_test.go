package exchange

import "testing"

func TestTransposeColumnarKlines(t *testing.T) {
	cols := ColumnarKlines{
		Time:  []int64{1700000000, 1700003600},
		Open:  []float64{100, 102},
		High:  []float64{103, 105},
		Low:   []float64{99, 101},
		Close: []float64{102, 104},
		Vol:   []float64{1500, 1800},
	}

	klines := TransposeColumnarKlines(cols)
	if len(klines) != 2 {
		t.Fatalf("got %d klines, want 2", len(klines))
	}

	first := klines[0]
	if first.OpenTime != 1700000000000 {
		t.Errorf("OpenTime = %d, want seconds converted to milliseconds", first.OpenTime)
	}
	if first.Open != 100 || first.High != 103 || first.Low != 99 || first.Close != 102 || first.Volume != 1500 {
		t.Errorf("first candle = %+v", first)
	}
	if klines[1].Close != 104 {
		t.Errorf("second close = %v, want 104", klines[1].Close)
	}
}

// A ragged payload truncates to the shortest column instead of producing a
// candle with zeroed fields
func TestTransposeColumnarKlinesRaggedColumns(t *testing.T) {
	cols := ColumnarKlines{
		Time:  []int64{1700000000, 1700003600, 1700007200},
		Open:  []float64{100, 102, 103},
		High:  []float64{103, 105, 106},
		Low:   []float64{99, 101},
		Close: []float64{102, 104, 105},
		Vol:   []float64{1500, 1800, 2000},
	}

	klines := TransposeColumnarKlines(cols)
	if len(klines) != 2 {
		t.Fatalf("got %d klines, want truncation to 2", len(klines))
	}
}

func TestTransposeColumnarKlinesEmpty(t *testing.T) {
	if klines := TransposeColumnarKlines(ColumnarKlines{}); len(klines) != 0 {
		t.Errorf("empty payload produced %d klines", len(klines))
	}
}

func TestFuturesSymbol(t *testing.T) {
	cases := []struct{ in, want string }{
		{"BTCUSDT", "BTC_USDT"},
		{"BTC_USDT", "BTC_USDT"},
		{"ETHUSDT", "ETH_USDT"},
		{"BTCUSD", "BTCUSD"},
	}
	for _, tc := range cases {
		if got := futuresSymbol(tc.in); got != tc.want {
			t.Errorf("futuresSymbol(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	if got := spotSymbol("BTC_USDT"); got != "BTCUSDT" {
		t.Errorf("spotSymbol = %q, want BTCUSDT", got)
	}
}

func TestMexcFuturesInterval(t *testing.T) {
	cases := []struct{ in, want string }{
		{"1m", "Min1"},
		{"1h", "Min60"},
		{"4h", "Hour4"},
		{"1d", "Day1"},
		{"weird", "weird"},
	}
	for _, tc := range cases {
		if got := mexcFuturesInterval(tc.in); got != tc.want {
			t.Errorf("mexcFuturesInterval(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
