package groups

import (
	"context"
	"errors"

	"lv-tradecore/internal/model"
	"lv-tradecore/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PGSource struct {
	pool *pgxpool.Pool
}

func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

func (s *PGSource) LoadGroup(ctx context.Context, name string) (model.Group, error) {
	g := model.Group{Name: name, Instruments: map[string]model.InstrumentConfig{}}
	var routing string
	err := s.pool.QueryRow(ctx, "select routing, margin_call_level, cutoff_level from trading_groups where name = $1", name).Scan(&routing, &g.MarginCallLevel, &g.CutoffLevel)
	if errors.Is(err, pgx.ErrNoRows) {
		return g, ErrUnknown
	}
	if err != nil {
		return g, err
	}
	g.Routing = types.RoutingMode(routing)
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, class, contract_size, spread, spread_unit, margin_rate,
		       commission_mode, commission_charge, commission_rate,
		       min_lot, max_lot, swap_buy, swap_sell
		FROM group_instruments
		WHERE group_name = $1
	`, name)
	if err != nil {
		return g, err
	}
	defer rows.Close()
	for rows.Next() {
		var inst model.InstrumentConfig
		var class, mode, charge string
		var minLot, maxLot *decimal.Decimal
		if err := rows.Scan(&inst.Symbol, &class, &inst.ContractSize, &inst.Spread, &inst.SpreadUnit, &inst.MarginRate,
			&mode, &charge, &inst.Commission.Rate, &minLot, &maxLot, &inst.SwapBuy, &inst.SwapSell); err != nil {
			return g, err
		}
		inst.Class = types.InstrumentClass(class)
		inst.Commission.Mode = types.CommissionMode(mode)
		inst.Commission.Charge = types.CommissionCharge(charge)
		if minLot != nil {
			inst.MinLot = *minLot
		}
		if maxLot != nil {
			inst.MaxLot = *maxLot
		}
		g.Instruments[inst.Symbol] = inst
	}
	return g, rows.Err()
}

func (s *PGSource) LoadExternal(ctx context.Context, symbol string) (model.ExternalInstrumentInfo, error) {
	info := model.ExternalInstrumentInfo{Symbol: symbol}
	err := s.pool.QueryRow(ctx, "select contract_size, profit_currency, digits from external_instruments where symbol = $1", symbol).Scan(&info.ContractSize, &info.ProfitCurrency, &info.Digits)
	if errors.Is(err, pgx.ErrNoRows) {
		return info, ErrUnknown
	}
	return info, err
}
