package models

import (
	"math"
	"strconv"
)

// Value is an indicator reading that may be undefined for lack of lookback.
type Value struct {
	V       float64
	Defined bool
}

// Undefined is the explicit sentinel for indicator rows without enough history.
var Undefined = Value{}

// NewValue wraps a defined reading. NaN and Inf are treated as undefined.
func NewValue(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Undefined
	}
	return Value{V: v, Defined: true}
}

// Ptr returns nil for undefined values, for nullable encodings.
func (v Value) Ptr() *float64 {
	if !v.Defined {
		return nil
	}
	f := v.V
	return &f
}

// ValueFromPtr is the inverse of Ptr.
func ValueFromPtr(p *float64) Value {
	if p == nil {
		return Undefined
	}
	return NewValue(*p)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Defined {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v.V, 'g', -1, 64), nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = Undefined
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*v = NewValue(f)
	return nil
}

// FeatureRow is a bar extended with indicator readings.
type FeatureRow struct {
	Ticker TickerSymbol `json:"ticker"`
	PriceBar

	SMA20      Value `json:"sma_20"`
	SMA50      Value `json:"sma_50"`
	SMA200     Value `json:"sma_200"`
	EMA12      Value `json:"ema_12"`
	EMA26      Value `json:"ema_26"`
	RSI14      Value `json:"rsi_14"`
	MACD       Value `json:"macd"`
	MACDSignal Value `json:"macd_signal"`
	MACDHist   Value `json:"macd_histogram"`
	BBMiddle   Value `json:"bb_middle"`
	BBUpper    Value `json:"bb_upper"`
	BBLower    Value `json:"bb_lower"`
	BBWidth    Value `json:"bb_width"`
	BBPercentB Value `json:"bb_percent_b"`
	ATR14      Value `json:"atr_14"`
	StochK     Value `json:"stoch_k"`
	StochD     Value `json:"stoch_d"`
	Mom1       Value `json:"momentum_1"`
	Mom5       Value `json:"momentum_5"`
	Mom10      Value `json:"momentum_10"`
}

// Indicators lists the indicator fields in a stable order.
func (r *FeatureRow) Indicators() []*Value {
	return []*Value{
		&r.SMA20, &r.SMA50, &r.SMA200, &r.EMA12, &r.EMA26, &r.RSI14,
		&r.MACD, &r.MACDSignal, &r.MACDHist,
		&r.BBMiddle, &r.BBUpper, &r.BBLower, &r.BBWidth, &r.BBPercentB,
		&r.ATR14, &r.StochK, &r.StochD, &r.Mom1, &r.Mom5, &r.Mom10,
	}
}

// Complete reports whether every indicator is defined.
func (r *FeatureRow) Complete() bool {
	for _, v := range r.Indicators() {
		if !v.Defined {
			return false
		}
	}
	return true
}
