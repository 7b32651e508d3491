// internal/sniping/events.go
package sniping

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Event is delivered on the sniper's event channel. The set is closed:
// Started, SnipeSuccess, SnipeFailed and PositionUpdate.
type Event interface {
	Time() time.Time
	sealed()
}

// Started is sent once when Run begins.
type Started struct {
	At     time.Time
	Mode   Mode
	Wallet string
}

// SnipeSuccess reports a filled buy.
type SnipeSuccess struct {
	At          time.Time
	Mint        solana.PublicKey
	Signature   string
	Price       float64
	TokenAmount decimal.Decimal
	SpentSOL    decimal.Decimal
}

// SnipeFailed reports a buy that did not go through.
type SnipeFailed struct {
	At   time.Time
	Mint solana.PublicKey
	Err  error
}

// PositionUpdate carries a copy of a position after it was repriced or sold.
type PositionUpdate struct {
	At       time.Time
	Position Position
}

func (e Started) Time() time.Time        { return e.At }
func (e SnipeSuccess) Time() time.Time   { return e.At }
func (e SnipeFailed) Time() time.Time    { return e.At }
func (e PositionUpdate) Time() time.Time { return e.At }

func (Started) sealed()        {}
func (SnipeSuccess) sealed()   {}
func (SnipeFailed) sealed()    {}
func (PositionUpdate) sealed() {}
