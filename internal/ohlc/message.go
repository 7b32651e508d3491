package ohlc

import (
	"time"

	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
	"github.com/rovshanmuradov/pumpwatch/internal/domain"
)

// Message types sent to broadcast listeners.
const (
	TypeHello  = "hello"
	TypeCandle = "candle"
	TypeTick   = "tick"
)

// Message is the broadcast wire format.
type Message struct {
	Type       string         `json:"type"`
	Pool       string         `json:"pool,omitempty"`
	IntervalMs int64          `json:"intervalMs,omitempty"`
	Candle     *CandleMessage `json:"candle,omitempty"`
	Price      float64        `json:"price,omitempty"`
	Reserves   *Reserves      `json:"reserves,omitempty"`
	Timestamp  int64          `json:"ts"`
}

// Reserves is the decoded curve state behind a tick, in base units.
type Reserves struct {
	VirtualTokenReserves uint64 `json:"virtualTokenReserves"`
	VirtualSolReserves   uint64 `json:"virtualSolReserves"`
	RealTokenReserves    uint64 `json:"realTokenReserves"`
	RealSolReserves      uint64 `json:"realSolReserves"`
	TokenTotalSupply     uint64 `json:"tokenTotalSupply"`
	Complete             bool   `json:"complete"`
}

func reservesMessage(bc *pumpfun.BondingCurve) *Reserves {
	if bc == nil {
		return nil
	}
	return &Reserves{
		VirtualTokenReserves: bc.VirtualTokenReserves,
		VirtualSolReserves:   bc.VirtualSolReserves,
		RealTokenReserves:    bc.RealTokenReserves,
		RealSolReserves:      bc.RealSolReserves,
		TokenTotalSupply:     bc.TokenTotalSupply,
		Complete:             bc.Complete,
	}
}

// CandleMessage is a candle with unix millisecond times.
type CandleMessage struct {
	OpenTime  int64   `json:"openTime"`
	CloseTime int64   `json:"closeTime"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Tag       string  `json:"tag"`
	Ticks     int     `json:"ticks"`
}

func candleMessage(c domain.Candle) *CandleMessage {
	return &CandleMessage{
		OpenTime:  c.OpenTime.UnixMilli(),
		CloseTime: c.CloseTime.UnixMilli(),
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Tag:       string(c.Tag),
		Ticks:     c.Ticks,
	}
}

// NewHello is the first message on every connection.
func NewHello(pool string, interval time.Duration, now time.Time) Message {
	return Message{Type: TypeHello, Pool: pool, IntervalMs: interval.Milliseconds(), Timestamp: now.UnixMilli()}
}

// NewCandleMessage wraps a candle lifecycle event.
func NewCandleMessage(c domain.Candle, at time.Time) Message {
	return Message{Type: TypeCandle, Pool: c.Pool, Candle: candleMessage(c), Timestamp: at.UnixMilli()}
}

// FromEvent converts an aggregator event to its wire message.
func FromEvent(e Event) Message {
	if e.Kind == KindTick {
		return Message{Type: TypeTick, Pool: e.Candle.Pool, Candle: candleMessage(e.Candle), Price: e.Price,
			Reserves: reservesMessage(e.Snapshot), Timestamp: e.At.UnixMilli()}
	}
	return NewCandleMessage(e.Candle, e.At)
}
