package repository

import (
	"bytes"
	"fmt"
	"time"

	"StockPipe/internal/domain/models"
	"StockPipe/pkg/util"

	"github.com/parquet-go/parquet-go"
)

// barRow is the on-disk layout of one history partition row.
type barRow struct {
	Date   string  `parquet:"date"`
	Open   float64 `parquet:"open"`
	High   float64 `parquet:"high"`
	Low    float64 `parquet:"low"`
	Close  float64 `parquet:"close"`
	Volume float64 `parquet:"volume"`
}

// featureRecord is one row of the daily feature dataset. Undefined indicator
// values are stored as nulls.
type featureRecord struct {
	Ticker     string   `parquet:"ticker"`
	Date       string   `parquet:"date"`
	Open       float64  `parquet:"open"`
	High       float64  `parquet:"high"`
	Low        float64  `parquet:"low"`
	Close      float64  `parquet:"close"`
	Volume     float64  `parquet:"volume"`
	SMA20      *float64 `parquet:"sma_20,optional"`
	SMA50      *float64 `parquet:"sma_50,optional"`
	SMA200     *float64 `parquet:"sma_200,optional"`
	EMA12      *float64 `parquet:"ema_12,optional"`
	EMA26      *float64 `parquet:"ema_26,optional"`
	RSI14      *float64 `parquet:"rsi_14,optional"`
	MACD       *float64 `parquet:"macd,optional"`
	MACDSignal *float64 `parquet:"macd_signal,optional"`
	MACDHist   *float64 `parquet:"macd_histogram,optional"`
	BBMiddle   *float64 `parquet:"bb_middle,optional"`
	BBUpper    *float64 `parquet:"bb_upper,optional"`
	BBLower    *float64 `parquet:"bb_lower,optional"`
	BBWidth    *float64 `parquet:"bb_width,optional"`
	BBPercentB *float64 `parquet:"bb_percent_b,optional"`
	ATR14      *float64 `parquet:"atr_14,optional"`
	StochK     *float64 `parquet:"stoch_k,optional"`
	StochD     *float64 `parquet:"stoch_d,optional"`
	Mom1       *float64 `parquet:"momentum_1,optional"`
	Mom5       *float64 `parquet:"momentum_5,optional"`
	Mom10      *float64 `parquet:"momentum_10,optional"`
}

// EncodeBars serialises a sorted partition.
func EncodeBars(bars []models.PriceBar) ([]byte, error) {
	rows := make([]barRow, len(bars))
	for i, b := range bars {
		rows[i] = barRow{
			Date:   util.FormatDate(b.Date),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows); err != nil {
		return nil, fmt.Errorf("encode partition: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeBars reads a partition written by EncodeBars.
func DecodeBars(b []byte) ([]models.PriceBar, error) {
	rows, err := parquet.Read[barRow](bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("decode partition: %w", err)
	}
	bars := make([]models.PriceBar, 0, len(rows))
	for _, r := range rows {
		d, err := time.Parse(util.DateLayout, r.Date)
		if err != nil {
			return nil, fmt.Errorf("decode partition date %q: %w", r.Date, err)
		}
		bars = append(bars, models.PriceBar{
			Date:   d,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return bars, nil
}

// EncodeFeatures serialises the daily feature dataset.
func EncodeFeatures(rows []models.FeatureRow) ([]byte, error) {
	recs := make([]featureRecord, len(rows))
	for i := range rows {
		r := &rows[i]
		recs[i] = featureRecord{
			Ticker:     r.Ticker.String(),
			Date:       util.FormatDate(r.Date),
			Open:       r.Open,
			High:       r.High,
			Low:        r.Low,
			Close:      r.Close,
			Volume:     r.Volume,
			SMA20:      r.SMA20.Ptr(),
			SMA50:      r.SMA50.Ptr(),
			SMA200:     r.SMA200.Ptr(),
			EMA12:      r.EMA12.Ptr(),
			EMA26:      r.EMA26.Ptr(),
			RSI14:      r.RSI14.Ptr(),
			MACD:       r.MACD.Ptr(),
			MACDSignal: r.MACDSignal.Ptr(),
			MACDHist:   r.MACDHist.Ptr(),
			BBMiddle:   r.BBMiddle.Ptr(),
			BBUpper:    r.BBUpper.Ptr(),
			BBLower:    r.BBLower.Ptr(),
			BBWidth:    r.BBWidth.Ptr(),
			BBPercentB: r.BBPercentB.Ptr(),
			ATR14:      r.ATR14.Ptr(),
			StochK:     r.StochK.Ptr(),
			StochD:     r.StochD.Ptr(),
			Mom1:       r.Mom1.Ptr(),
			Mom5:       r.Mom5.Ptr(),
			Mom10:      r.Mom10.Ptr(),
		}
	}
	var buf bytes.Buffer
	if err := parquet.Write(&buf, recs); err != nil {
		return nil, fmt.Errorf("encode features: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeFeatures reads a dataset written by EncodeFeatures.
func DecodeFeatures(b []byte) ([]models.FeatureRow, error) {
	recs, err := parquet.Read[featureRecord](bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	out := make([]models.FeatureRow, 0, len(recs))
	for _, r := range recs {
		d, err := time.Parse(util.DateLayout, r.Date)
		if err != nil {
			return nil, fmt.Errorf("decode features date %q: %w", r.Date, err)
		}
		out = append(out, models.FeatureRow{
			Ticker: models.TickerSymbol(r.Ticker),
			PriceBar: models.PriceBar{
				Date: d, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume,
			},
			SMA20:      models.ValueFromPtr(r.SMA20),
			SMA50:      models.ValueFromPtr(r.SMA50),
			SMA200:     models.ValueFromPtr(r.SMA200),
			EMA12:      models.ValueFromPtr(r.EMA12),
			EMA26:      models.ValueFromPtr(r.EMA26),
			RSI14:      models.ValueFromPtr(r.RSI14),
			MACD:       models.ValueFromPtr(r.MACD),
			MACDSignal: models.ValueFromPtr(r.MACDSignal),
			MACDHist:   models.ValueFromPtr(r.MACDHist),
			BBMiddle:   models.ValueFromPtr(r.BBMiddle),
			BBUpper:    models.ValueFromPtr(r.BBUpper),
			BBLower:    models.ValueFromPtr(r.BBLower),
			BBWidth:    models.ValueFromPtr(r.BBWidth),
			BBPercentB: models.ValueFromPtr(r.BBPercentB),
			ATR14:      models.ValueFromPtr(r.ATR14),
			StochK:     models.ValueFromPtr(r.StochK),
			StochD:     models.ValueFromPtr(r.StochD),
			Mom1:       models.ValueFromPtr(r.Mom1),
			Mom5:       models.ValueFromPtr(r.Mom5),
			Mom10:      models.ValueFromPtr(r.Mom10),
		})
	}
	return out, nil
}
