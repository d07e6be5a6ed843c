package features

import (
	"math"

	"StockPipe/internal/domain/models"

	"github.com/montanaflynn/stats"
)

// Window lengths of the fixed indicator set.
const (
	SMAShort    = 20
	SMAMedium   = 50
	SMALong     = 200
	EMAFast     = 12
	EMASlow     = 26
	MACDSignalN = 9
	RSIPeriod   = 14
	ATRPeriod   = 14
	StochPeriod = 14
	StochSmooth = 3
	BollingerN  = 20
	BollingerK  = 2.0
)

// LongestLookback is the number of bars before every indicator is defined.
const LongestLookback = SMALong

func closes(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func defined(xs []float64) []models.Value {
	out := make([]models.Value, len(xs))
	for i, x := range xs {
		out[i] = models.NewValue(x)
	}
	return out
}

// SMA is the trailing mean over n values, defined once n consecutive inputs
// are defined.
func SMA(xs []models.Value, n int) []models.Value {
	out := make([]models.Value, len(xs))
	sum, run := 0.0, 0
	for i, x := range xs {
		if !x.Defined {
			sum, run = 0, 0
			continue
		}
		sum += x.V
		run++
		if run > n {
			sum -= xs[i-n].V
			run = n
		}
		if run == n {
			out[i] = models.NewValue(sum / float64(n))
		}
	}
	return out
}

// EMA uses multiplier 2/(n+1) and is seeded with the mean of the first n
// defined values, so it is first defined n-1 values after the input is.
func EMA(xs []models.Value, n int) []models.Value {
	out := make([]models.Value, len(xs))
	first := -1
	for i, x := range xs {
		if x.Defined {
			first = i
			break
		}
	}
	if first < 0 || first+n > len(xs) {
		return out
	}
	sum := 0.0
	for i := first; i < first+n; i++ {
		if !xs[i].Defined {
			return out
		}
		sum += xs[i].V
	}
	k := 2.0 / float64(n+1)
	prev := sum / float64(n)
	out[first+n-1] = models.NewValue(prev)
	for i := first + n; i < len(xs); i++ {
		if !xs[i].Defined {
			break
		}
		prev = (xs[i].V-prev)*k + prev
		out[i] = models.NewValue(prev)
	}
	return out
}

// RSI is Wilder's relative strength index. Averages are seeded over the first
// n changes, so the first value is at index n.
func RSI(cs []float64, n int) []models.Value {
	out := make([]models.Value, len(cs))
	if len(cs) <= n {
		return out
	}
	var gain, loss float64
	for i := 1; i <= n; i++ {
		g, l := change(cs[i] - cs[i-1])
		gain += g
		loss += l
	}
	gain /= float64(n)
	loss /= float64(n)
	out[n] = rsiValue(gain, loss)
	for i := n + 1; i < len(cs); i++ {
		g, l := change(cs[i] - cs[i-1])
		gain = (gain*float64(n-1) + g) / float64(n)
		loss = (loss*float64(n-1) + l) / float64(n)
		out[i] = rsiValue(gain, loss)
	}
	return out
}

func change(d float64) (gain, loss float64) {
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

// rsiValue is 100 with no losses and 50 on a flat window.
func rsiValue(gain, loss float64) models.Value {
	switch {
	case loss == 0 && gain == 0:
		return models.NewValue(50)
	case loss == 0:
		return models.NewValue(100)
	}
	return models.NewValue(100 - 100/(1+gain/loss))
}

// MACD returns the line EMA(fast)-EMA(slow), its EMA(signal) and the histogram.
func MACD(cs []float64, fast, slow, signal int) (line, sig, hist []models.Value) {
	in := defined(cs)
	ef, es := EMA(in, fast), EMA(in, slow)
	line = make([]models.Value, len(cs))
	for i := range cs {
		if ef[i].Defined && es[i].Defined {
			line[i] = models.NewValue(ef[i].V - es[i].V)
		}
	}
	sig = EMA(line, signal)
	hist = make([]models.Value, len(cs))
	for i := range cs {
		if line[i].Defined && sig[i].Defined {
			hist[i] = models.NewValue(line[i].V - sig[i].V)
		}
	}
	return line, sig, hist
}

// Bands holds Bollinger band series.
type Bands struct {
	Middle, Upper, Lower, Width, PercentB []models.Value
}

// Bollinger uses the population standard deviation of the trailing n closes.
func Bollinger(cs []float64, n int, k float64) Bands {
	b := Bands{
		Middle:   make([]models.Value, len(cs)),
		Upper:    make([]models.Value, len(cs)),
		Lower:    make([]models.Value, len(cs)),
		Width:    make([]models.Value, len(cs)),
		PercentB: make([]models.Value, len(cs)),
	}
	for i := n - 1; i < len(cs); i++ {
		window := stats.Float64Data(cs[i-n+1 : i+1])
		mid, err := stats.Mean(window)
		if err != nil {
			continue
		}
		sd, err := stats.StandardDeviationPopulation(window)
		if err != nil {
			continue
		}
		upper, lower := mid+k*sd, mid-k*sd
		b.Middle[i] = models.NewValue(mid)
		b.Upper[i] = models.NewValue(upper)
		b.Lower[i] = models.NewValue(lower)
		if mid != 0 {
			b.Width[i] = models.NewValue((upper - lower) / mid)
		}
		if upper != lower {
			b.PercentB[i] = models.NewValue((cs[i] - lower) / (upper - lower))
		}
	}
	return b
}

// TrueRange is high-low for the first bar and the usual three-way maximum after.
func TrueRange(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			pc := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-pc), math.Abs(b.Low-pc)))
		}
		out[i] = tr
	}
	return out
}

// ATR is Wilder's average true range, seeded with the mean of TR[1..n] at
// index n.
func ATR(bars []models.PriceBar, n int) []models.Value {
	out := make([]models.Value, len(bars))
	if len(bars) <= n {
		return out
	}
	tr := TrueRange(bars)
	atr := 0.0
	for i := 1; i <= n; i++ {
		atr += tr[i]
	}
	atr /= float64(n)
	out[n] = models.NewValue(atr)
	for i := n + 1; i < len(bars); i++ {
		atr = (atr*float64(n-1) + tr[i]) / float64(n)
		out[i] = models.NewValue(atr)
	}
	return out
}

// Stochastic returns %K over n bars and %D as the SMA of %K over smooth.
// %K is undefined when the window's high equals its low.
func Stochastic(bars []models.PriceBar, n, smooth int) (k, d []models.Value) {
	k = make([]models.Value, len(bars))
	for i := n - 1; i < len(bars); i++ {
		lo, hi := bars[i].Low, bars[i].High
		for j := i - n + 1; j < i; j++ {
			lo = math.Min(lo, bars[j].Low)
			hi = math.Max(hi, bars[j].High)
		}
		if hi == lo {
			continue
		}
		k[i] = models.NewValue(100 * (bars[i].Close - lo) / (hi - lo))
	}
	return k, SMA(k, smooth)
}

// Momentum is close[t] - close[t-k].
func Momentum(cs []float64, k int) []models.Value {
	out := make([]models.Value, len(cs))
	for i := k; i < len(cs); i++ {
		out[i] = models.NewValue(cs[i] - cs[i-k])
	}
	return out
}
