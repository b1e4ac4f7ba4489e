// Package testfixture builds a fully wired in-memory engine for tests.
package testfixture

import (
	"context"
	"sync"
	"testing"
	"time"

	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/bridge"
	"lv-tradecore/internal/groups"
	"lv-tradecore/internal/ledger"
	"lv-tradecore/internal/margin"
	"lv-tradecore/internal/marketdata"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/orders"
	"lv-tradecore/internal/portfolio"
	"lv-tradecore/internal/store"
	"lv-tradecore/internal/telemetry"
	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	Group     = "standard"
	AccountID = "acc-1"
	Symbol    = "EURUSD"
)

func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func P(s string) *decimal.Decimal {
	d := D(s)
	return &d
}

// RecordingBridge keeps every intent it is asked to send.
type RecordingBridge struct {
	mu     sync.Mutex
	intent []bridge.Intent
	Fail   bool
}

func (b *RecordingBridge) Send(ctx context.Context, in bridge.Intent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.intent = append(b.intent, in)
	if b.Fail {
		return apperr.ExternalBridge(context.DeadlineExceeded, "send %s", in.Type)
	}
	return nil
}

func (b *RecordingBridge) Sent() []bridge.Intent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bridge.Intent(nil), b.intent...)
}

func (b *RecordingBridge) Last() bridge.Intent {
	sent := b.Sent()
	if len(sent) == 0 {
		return bridge.Intent{}
	}
	return sent[len(sent)-1]
}

type Fixture struct {
	Store  *store.Memory
	Source *groups.StaticSource
	Config *groups.Cache
	Quotes *marketdata.Cache
	Calc   *margin.Calculator
	Bridge *RecordingBridge
	Orders *orders.Service
	Engine *portfolio.Engine
}

// EURUSD is a standard forex instrument: 100000 contract, no spread,
// 3.5 per lot commission on entry and on exit, lots 0.01 to 100.
func EURUSD() model.InstrumentConfig {
	return model.InstrumentConfig{
		Symbol:       Symbol,
		Class:        types.InstrumentForex,
		ContractSize: D("100000"),
		SpreadUnit:   D("0.00001"),
		Commission: model.CommissionSchedule{
			Mode:   types.CommissionPerLot,
			Charge: types.ChargeBoth,
			Rate:   D("3.5"),
		},
		MinLot:   D("0.01"),
		MaxLot:   D("100"),
		SwapBuy:  D("7.3"),
		SwapSell: D("-3.65"),
	}
}

// New wires a fixture with one active USD account of leverage 100 holding
// 10000, and EURUSD quoted at 1.0998 / 1.1000.
func New(t testing.TB, routing types.RoutingMode) *Fixture {
	t.Helper()
	f := &Fixture{
		Store:  store.NewMemory(),
		Source: groups.NewStaticSource(),
		Quotes: marketdata.NewCache(time.Hour, nil),
		Bridge: &RecordingBridge{},
	}
	f.Source.PutGroup(model.Group{
		Name:        Group,
		Routing:     routing,
		Instruments: map[string]model.InstrumentConfig{Symbol: EURUSD()},
	})
	f.Source.PutExternal(model.ExternalInstrumentInfo{Symbol: Symbol, ContractSize: D("100000"), ProfitCurrency: "USD", Digits: 5})
	f.Store.PutAccount(model.Account{
		ID:            AccountID,
		Class:         types.AccountClassLive,
		Group:         Group,
		Leverage:      100,
		Currency:      "USD",
		WalletBalance: D("10000"),
		Status:        types.AccountStatusActive,
	})
	f.Config = groups.NewCache(f.Source, time.Minute)
	f.Calc = margin.NewCalculator("USD", f.Quotes)
	f.Orders = orders.NewService(orders.Deps{
		Store:   f.Store,
		Config:  f.Config,
		Prices:  f.Quotes,
		Calc:    f.Calc,
		Ledger:  ledger.NewService(),
		Bridge:  f.Bridge,
		Metrics: telemetry.Nop(),
	})
	f.Engine = portfolio.NewEngine(f.Store, portfolio.NewPricer(f.Config, f.Quotes, f.Calc), f.Config, nil, time.Second, time.Minute, D("100"))
	f.Orders.SetInvalidator(f.Engine)
	f.Tick(Symbol, "1.0998", "1.1000")
	return f
}

func (f *Fixture) Tick(symbol, bid, ask string) {
	f.Quotes.Ingest(map[string]marketdata.RawTick{symbol: {Bid: D(bid), Ask: D(ask)}})
}

func (f *Fixture) Account(t testing.TB, id string) model.Account {
	t.Helper()
	a, err := f.Store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a
}

func (f *Fixture) Order(t testing.TB, id string) model.Order {
	t.Helper()
	o, err := f.Store.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o
}

// Market places a market order on the default account.
func (f *Fixture) Market(t testing.TB, side types.OrderSide, qty string) model.Order {
	t.Helper()
	o, err := f.Orders.Place(context.Background(), orders.PlaceRequest{
		AccountID: AccountID,
		Symbol:    Symbol,
		Side:      side,
		Kind:      types.OrderKindMarket,
		Quantity:  D(qty),
	})
	require.NoError(t, err)
	return o
}

// Pending places a limit or stop order on the default account.
func (f *Fixture) Pending(t testing.TB, side types.OrderSide, kind types.OrderKind, qty, price string) model.Order {
	t.Helper()
	o, err := f.Orders.Place(context.Background(), orders.PlaceRequest{
		AccountID: AccountID,
		Symbol:    Symbol,
		Side:      side,
		Kind:      kind,
		Quantity:  D(qty),
		Price:     P(price),
	})
	require.NoError(t, err)
	return o
}
