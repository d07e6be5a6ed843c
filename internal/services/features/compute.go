package features

import (
	"time"

	"StockPipe/internal/domain/models"
)

// Compute derives every indicator for a full, sorted series. Row i uses only
// bars[0..i].
func Compute(ticker models.TickerSymbol, bars []models.PriceBar) []models.FeatureRow {
	cs := closes(bars)
	in := defined(cs)

	sma20, sma50, sma200 := SMA(in, SMAShort), SMA(in, SMAMedium), SMA(in, SMALong)
	ema12, ema26 := EMA(in, EMAFast), EMA(in, EMASlow)
	rsi := RSI(cs, RSIPeriod)
	macd, signal, hist := MACD(cs, EMAFast, EMASlow, MACDSignalN)
	bb := Bollinger(cs, BollingerN, BollingerK)
	atr := ATR(bars, ATRPeriod)
	stochK, stochD := Stochastic(bars, StochPeriod, StochSmooth)
	mom1, mom5, mom10 := Momentum(cs, 1), Momentum(cs, 5), Momentum(cs, 10)

	rows := make([]models.FeatureRow, len(bars))
	for i, b := range bars {
		rows[i] = models.FeatureRow{
			Ticker:     ticker,
			PriceBar:   b,
			SMA20:      sma20[i],
			SMA50:      sma50[i],
			SMA200:     sma200[i],
			EMA12:      ema12[i],
			EMA26:      ema26[i],
			RSI14:      rsi[i],
			MACD:       macd[i],
			MACDSignal: signal[i],
			MACDHist:   hist[i],
			BBMiddle:   bb.Middle[i],
			BBUpper:    bb.Upper[i],
			BBLower:    bb.Lower[i],
			BBWidth:    bb.Width[i],
			BBPercentB: bb.PercentB[i],
			ATR14:      atr[i],
			StochK:     stochK[i],
			StochD:     stochD[i],
			Mom1:       mom1[i],
			Mom5:       mom5[i],
			Mom10:      mom10[i],
		}
	}
	return rows
}

// TrailingWindow keeps rows dated within the last days calendar days ending at
// the final row.
func TrailingWindow(rows []models.FeatureRow, days int) []models.FeatureRow {
	if len(rows) == 0 || days <= 0 {
		return nil
	}
	cutoff := rows[len(rows)-1].Date.AddDate(0, 0, -days)
	i := len(rows)
	for i > 0 && rows[i-1].Date.After(cutoff) {
		i--
	}
	return rows[i:]
}

// DropLeadingIncomplete removes the warm-up rows at the front of a full
// computed series, up to the first row whose indicators are all defined. Only
// rows before LongestLookback can be leading; undefined values later in the
// series are interior and kept. It returns the kept rows and how many were
// dropped.
func DropLeadingIncomplete(rows []models.FeatureRow) ([]models.FeatureRow, int) {
	i := 0
	for i < len(rows) && i < LongestLookback && !rows[i].Complete() {
		i++
	}
	return rows[i:], i
}

// Since returns the rows dated on or after t.
func Since(rows []models.FeatureRow, t time.Time) []models.FeatureRow {
	for i := range rows {
		if !rows[i].Date.Before(t) {
			return rows[i:]
		}
	}
	return nil
}
