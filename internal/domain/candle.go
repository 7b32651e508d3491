package domain

import "time"

// CandleTag is the lifecycle stage a candle observation was emitted in.
type CandleTag string

const (
	CandleOpen   CandleTag = "open"
	CandleUpdate CandleTag = "update"
	CandleClose  CandleTag = "close"
)

// Candle is one OHLC bar. Times are unix milliseconds on the wire.
type Candle struct {
	Pool      string        `json:"pool"`
	OpenTime  time.Time     `json:"-"`
	CloseTime time.Time     `json:"-"`
	Open      float64       `json:"open"`
	High      float64       `json:"high"`
	Low       float64       `json:"low"`
	Close     float64       `json:"close"`
	Interval  time.Duration `json:"-"`
	Tag       CandleTag     `json:"tag"`
	Ticks     int           `json:"ticks"`
}

// Valid reports whether the OHLC ordering holds.
func (c Candle) Valid() bool {
	return c.Low <= c.Open && c.Low <= c.Close && c.Open <= c.High && c.Close <= c.High
}
