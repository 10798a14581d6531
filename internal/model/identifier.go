package model

import (
	"strings"
	"unique"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

// Ustr is an interned string. Equality and hashing compare a single pointer.
//
// The zero value is the empty string.
type Ustr struct {
	h unique.Handle[string]
}

// Intern returns the canonical handle for s. Safe for concurrent use.
func Intern(s string) Ustr {
	if s == "" {
		return Ustr{}
	}
	return Ustr{h: unique.Make(s)}
}

func (u Ustr) String() string {
	if u.IsEmpty() {
		return ""
	}
	return u.h.Value()
}

func (u Ustr) IsEmpty() bool {
	return u == Ustr{}
}

func (u Ustr) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *Ustr) UnmarshalText(b []byte) error {
	*u = Intern(string(b))
	return nil
}

func (u Ustr) MarshalBinary() ([]byte, error) {
	return u.MarshalText()
}

func (u *Ustr) UnmarshalBinary(b []byte) error {
	return u.UnmarshalText(b)
}

type (
	Symbol          struct{ Ustr }
	Venue           struct{ Ustr }
	ClientOrderID   struct{ Ustr }
	VenueOrderID    struct{ Ustr }
	TradeID         struct{ Ustr }
	PositionID      struct{ Ustr }
	AccountID       struct{ Ustr }
	StrategyID      struct{ Ustr }
	TraderID        struct{ Ustr }
	ClientID        struct{ Ustr }
	ExecAlgorithmID struct{ Ustr }
	OrderListID     struct{ Ustr }
	ComponentID     struct{ Ustr }
)

func NewSymbol(s string) Symbol { return Symbol{Intern(s)} }
func NewVenue(s string) Venue { return Venue{Intern(s)} }
func NewClientOrderID(s string) ClientOrderID { return ClientOrderID{Intern(s)} }
func NewVenueOrderID(s string) VenueOrderID { return VenueOrderID{Intern(s)} }
func NewTradeID(s string) TradeID { return TradeID{Intern(s)} }
func NewPositionID(s string) PositionID { return PositionID{Intern(s)} }
func NewAccountID(s string) AccountID { return AccountID{Intern(s)} }
func NewStrategyID(s string) StrategyID { return StrategyID{Intern(s)} }
func NewTraderID(s string) TraderID { return TraderID{Intern(s)} }
func NewClientID(s string) ClientID { return ClientID{Intern(s)} }
func NewExecAlgorithmID(s string) ExecAlgorithmID { return ExecAlgorithmID{Intern(s)} }
func NewOrderListID(s string) OrderListID { return OrderListID{Intern(s)} }
func NewComponentID(s string) ComponentID { return ComponentID{Intern(s)} }

// Issuer returns the part of an account id before the first '-'.
func (a AccountID) Issuer() string {
	s := a.String()
	if i := strings.IndexByte(s, '-'); i >= 0 {
		return s[:i]
	}
	return s
}

// InstrumentID is SYMBOL.VENUE.
type InstrumentID struct {
	Symbol Symbol
	Venue  Venue
}

func NewInstrumentID(symbol Symbol, venue Venue) InstrumentID {
	return InstrumentID{Symbol: symbol, Venue: venue}
}

// ParseInstrumentID splits s on the last '.'.
func ParseInstrumentID(s string) (InstrumentID, error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return InstrumentID{}, errors.Wrap(exception.ErrInvalidArgument, "parse instrument id").With("value", s)
	}
	return InstrumentID{Symbol: NewSymbol(s[:i]), Venue: NewVenue(s[i+1:])}, nil
}

// MustParseInstrumentID panics if s is not a valid instrument id.
func MustParseInstrumentID(s string) InstrumentID {
	id, err := ParseInstrumentID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id InstrumentID) IsEmpty() bool {
	return id.Symbol.IsEmpty() && id.Venue.IsEmpty()
}

func (id InstrumentID) String() string {
	if id.IsEmpty() {
		return ""
	}
	return id.Symbol.String() + "." + id.Venue.String()
}

func (id InstrumentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *InstrumentID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*id = InstrumentID{}
		return nil
	}
	parsed, err := ParseInstrumentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id InstrumentID) MarshalBinary() ([]byte, error) {
	return id.MarshalText()
}

func (id *InstrumentID) UnmarshalBinary(b []byte) error {
	return id.UnmarshalText(b)
}

// UUID4 identifies events and node instances.
type UUID4 = uuid.UUID

func NewUUID4() UUID4 {
	return uuid.New()
}
