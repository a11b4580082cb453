package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one market price observation. LastDigit and IsOdd are derived once
// here and never recomputed; a Tick is immutable after construction.
type Tick struct {
	Symbol     string
	Quote      decimal.Decimal
	Epoch      int64
	LastDigit  int
	IsOdd      bool
	ReceivedAt time.Time
}

// NewTick derives the digit parity from the quote rendered at the precision
// the broker sent. The parse preserves the exponent ("100.10" keeps two
// fractional places), so the last rendered digit matches what the contract
// settles against.
func NewTick(symbol string, quote decimal.Decimal, epoch int64, receivedAt time.Time) Tick {
	digit := lastDigit(quote)
	return Tick{
		Symbol:     symbol,
		Quote:      quote,
		Epoch:      epoch,
		LastDigit:  digit,
		IsOdd:      digit%2 == 1,
		ReceivedAt: receivedAt,
	}
}

// QuoteText renders the quote exactly as the broker sent it, trailing
// fractional zeros included.
func (t Tick) QuoteText() string {
	return quoteText(t.Quote)
}

// quoteText renders at the parsed precision. Decimal's String trims trailing
// fractional zeros ("100.10" -> "100.1"), which would shift the last digit;
// StringFixed at the preserved exponent keeps the broker's rendering.
func quoteText(quote decimal.Decimal) string {
	if exp := quote.Exponent(); exp < 0 {
		return quote.StringFixed(-exp)
	}
	return quote.String()
}

func lastDigit(quote decimal.Decimal) int {
	s := quoteText(quote.Abs())
	c := s[len(s)-1]
	if c < '0' || c > '9' {
		return 0
	}
	return int(c - '0')
}
