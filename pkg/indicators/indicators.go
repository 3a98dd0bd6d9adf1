// Package indicators wraps github.com/markcheno/go-talib with the
// decimal<->float64 boundary conversion every strategy kind and the
// Simulation Engine need. talib itself only operates on float64 series;
// indicators is the one place that boundary crossing happens, so no
// strategy kind touches float64 math directly.
package indicators

import (
	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
)

// Closes converts a decimal close-price series to the float64 slice talib
// expects.
func Closes(series []decimal.Decimal) []float64 {
	out := make([]float64, len(series))
	for i, d := range series {
		out[i], _ = d.Float64()
	}
	return out
}

func isNaN(f float64) bool { return f != f }

func last(series []float64) (decimal.Decimal, bool) {
	if len(series) == 0 || isNaN(series[len(series)-1]) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(series[len(series)-1]), true
}

// RSI returns the latest Relative Strength Index over length periods.
func RSI(closes []decimal.Decimal, length int) (decimal.Decimal, bool) {
	if len(closes) < length+1 {
		return decimal.Zero, false
	}
	return last(talib.Rsi(Closes(closes), length))
}

// EMA returns the latest Exponential Moving Average over length periods,
// falling back to a simple mean when the series is shorter than length.
func EMA(closes []decimal.Decimal, length int) (decimal.Decimal, bool) {
	if len(closes) == 0 {
		return decimal.Zero, false
	}
	if len(closes) < length {
		return mean(closes), true
	}
	return last(talib.Ema(Closes(closes), length))
}

// SMA returns the latest Simple Moving Average over length periods.
func SMA(closes []decimal.Decimal, length int) (decimal.Decimal, bool) {
	if len(closes) < length {
		return decimal.Zero, false
	}
	return last(talib.Sma(Closes(closes), length))
}

// BollingerBands is the (upper, middle, lower) band triple at the latest
// close.
type BollingerBands struct {
	Upper  decimal.Decimal
	Middle decimal.Decimal
	Lower  decimal.Decimal
}

// Bollinger returns the latest Bollinger Bands over length periods with
// stdDev standard deviations.
func Bollinger(closes []decimal.Decimal, length int, stdDev decimal.Decimal) (BollingerBands, bool) {
	if len(closes) < length {
		return BollingerBands{}, false
	}
	mult, _ := stdDev.Float64()
	upper, middle, lower := talib.BBands(Closes(closes), length, mult, mult, 0)
	u, ok := last(upper)
	if !ok {
		return BollingerBands{}, false
	}
	m, _ := last(middle)
	l, _ := last(lower)
	return BollingerBands{Upper: u, Middle: m, Lower: l}, true
}

// MACD returns the latest (macd, signal, histogram) triple.
func MACD(closes []decimal.Decimal, fast, slow, signal int) (macd, sig, hist decimal.Decimal, ok bool) {
	if len(closes) < slow+signal {
		return decimal.Zero, decimal.Zero, decimal.Zero, false
	}
	m, s, h := talib.Macd(Closes(closes), fast, slow, signal)
	macd, ok = last(m)
	if !ok {
		return decimal.Zero, decimal.Zero, decimal.Zero, false
	}
	sig, _ = last(s)
	hist, _ = last(h)
	return macd, sig, hist, true
}

// Highest returns the maximum close over the trailing length window.
func Highest(closes []decimal.Decimal, length int) (decimal.Decimal, bool) {
	if len(closes) < length {
		return decimal.Zero, false
	}
	window := closes[len(closes)-length:]
	max := window[0]
	for _, d := range window[1:] {
		if d.GreaterThan(max) {
			max = d
		}
	}
	return max, true
}

// Lowest returns the minimum close over the trailing length window.
func Lowest(closes []decimal.Decimal, length int) (decimal.Decimal, bool) {
	if len(closes) < length {
		return decimal.Zero, false
	}
	window := closes[len(closes)-length:]
	min := window[0]
	for _, d := range window[1:] {
		if d.LessThan(min) {
			min = d
		}
	}
	return min, true
}

// StdDev returns the population standard deviation of closes.
func StdDev(closes []decimal.Decimal) decimal.Decimal {
	if len(closes) == 0 {
		return decimal.Zero
	}
	m := mean(closes)
	sumSq := decimal.Zero
	for _, d := range closes {
		diff := d.Sub(m)
		sumSq = sumSq.Add(diff.Mul(diff))
	}
	variance := sumSq.Div(decimal.NewFromInt(int64(len(closes))))
	f, _ := variance.Float64()
	if f <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(sqrt(f))
}

func sqrt(f float64) float64 {
	if f == 0 {
		return 0
	}
	x := f
	for i := 0; i < 40; i++ {
		x = 0.5 * (x + f/x)
	}
	return x
}

func mean(series []decimal.Decimal) decimal.Decimal {
	if len(series) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, d := range series {
		sum = sum.Add(d)
	}
	return sum.Div(decimal.NewFromInt(int64(len(series))))
}
