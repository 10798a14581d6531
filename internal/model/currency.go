package model

import (
	"strings"
	"sync"

	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

// CurrencyType fiat, crypto, commodity
type CurrencyType uint8

const (
	CurrencyTypeCrypto CurrencyType = iota + 1
	CurrencyTypeFiat
	CurrencyTypeCommodityBacked
)

// Currency describes a unit of account.
type Currency struct {
	Code         string       `json:"code" codec:"code"`
	Precision    uint8        `json:"precision" codec:"precision"`
	ISO4217      uint16       `json:"iso4217" codec:"iso4217"`
	Name         string       `json:"name" codec:"name"`
	CurrencyType CurrencyType `json:"currencyType" codec:"currencyType"`
}

func (c Currency) IsFiat() bool {
	return c.CurrencyType == CurrencyTypeFiat
}

func (c Currency) String() string {
	return c.Code
}

var (
	USD  = Currency{Code: "USD", Precision: 2, ISO4217: 840, Name: "United States dollar", CurrencyType: CurrencyTypeFiat}
	EUR  = Currency{Code: "EUR", Precision: 2, ISO4217: 978, Name: "Euro", CurrencyType: CurrencyTypeFiat}
	GBP  = Currency{Code: "GBP", Precision: 2, ISO4217: 826, Name: "British pound", CurrencyType: CurrencyTypeFiat}
	JPY  = Currency{Code: "JPY", Precision: 0, ISO4217: 392, Name: "Japanese yen", CurrencyType: CurrencyTypeFiat}
	AUD  = Currency{Code: "AUD", Precision: 2, ISO4217: 36, Name: "Australian dollar", CurrencyType: CurrencyTypeFiat}
	BTC  = Currency{Code: "BTC", Precision: 8, Name: "Bitcoin", CurrencyType: CurrencyTypeCrypto}
	ETH  = Currency{Code: "ETH", Precision: 8, Name: "Ether", CurrencyType: CurrencyTypeCrypto}
	USDT = Currency{Code: "USDT", Precision: 8, Name: "Tether", CurrencyType: CurrencyTypeCrypto}
	USDC = Currency{Code: "USDC", Precision: 8, Name: "USD Coin", CurrencyType: CurrencyTypeCrypto}
)

var currencies = struct {
	sync.RWMutex
	m map[string]Currency
}{m: map[string]Currency{}}

func init() {
	for _, c := range []Currency{USD, EUR, GBP, JPY, AUD, BTC, ETH, USDT, USDC} {
		currencies.m[c.Code] = c
	}
}

// RegisterCurrency adds or replaces a currency in the process-wide table.
func RegisterCurrency(c Currency) error {
	if c.Code == "" {
		return errors.Wrap(exception.ErrInvalidArgument, "empty currency code")
	}
	if err := checkPrecision(c.Precision); err != nil {
		return err
	}
	currencies.Lock()
	currencies.m[strings.ToUpper(c.Code)] = c
	currencies.Unlock()
	return nil
}

// CurrencyFromCode looks up a registered currency.
func CurrencyFromCode(code string) (Currency, error) {
	currencies.RLock()
	c, ok := currencies.m[strings.ToUpper(code)]
	currencies.RUnlock()
	if !ok {
		return Currency{}, errors.Wrap(exception.ErrNotFound, "currency").With("code", code)
	}
	return c, nil
}
