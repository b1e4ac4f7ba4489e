package types

type OrderSide string

type OrderKind string

type OrderStatus string

type AccountClass string

type AccountStatus string

type RoutingMode string

type InstrumentClass string

type CommissionMode string

type CommissionCharge string

type TransactionType string

type ActionTag string

type Actor string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Sign is +1 for buys and -1 for sells.
func (s OrderSide) Sign() int64 {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

const (
	OrderKindMarket OrderKind = "MARKET"
	OrderKindLimit  OrderKind = "LIMIT"
	OrderKindStop   OrderKind = "STOP"
)

func (k OrderKind) Valid() bool {
	return k == OrderKindMarket || k == OrderKindLimit || k == OrderKindStop
}

func (k OrderKind) Pending() bool {
	return k == OrderKindLimit || k == OrderKindStop
}

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusOpen       OrderStatus = "OPEN"
	OrderStatusClosed     OrderStatus = "CLOSED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRejected   OrderStatus = "REJECTED"
)

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusClosed || s == OrderStatusCancelled || s == OrderStatusRejected
}

const (
	AccountClassLive AccountClass = "live"
	AccountClassDemo AccountClass = "demo"
)

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
)

const (
	RoutingLocal  RoutingMode = "local"
	RoutingBridge RoutingMode = "bridge"
)

const (
	InstrumentForex  InstrumentClass = "forex"
	InstrumentMetal  InstrumentClass = "metal"
	InstrumentIndex  InstrumentClass = "index"
	InstrumentEnergy InstrumentClass = "energy"
	InstrumentCrypto InstrumentClass = "crypto"
	InstrumentStock  InstrumentClass = "stock"
)

// UsesMarginRate reports whether the group margin rate scales the leverage margin.
func (c InstrumentClass) UsesMarginRate() bool {
	return c == InstrumentCrypto
}

const (
	CommissionPerLot  CommissionMode = "per_lot"
	CommissionPercent CommissionMode = "percent"
)

const (
	ChargeEntry CommissionCharge = "entry"
	ChargeExit  CommissionCharge = "exit"
	ChargeBoth  CommissionCharge = "both"
)

func (c CommissionCharge) OnEntry() bool {
	return c == ChargeEntry || c == ChargeBoth
}

func (c CommissionCharge) OnExit() bool {
	return c == ChargeExit || c == ChargeBoth
}

const (
	TransactionProfitLoss TransactionType = "profit_loss"
	TransactionCommission TransactionType = "commission"
	TransactionSwap       TransactionType = "swap"
)

const (
	ActionPlace             ActionTag = "place"
	ActionOpen              ActionTag = "open"
	ActionModify            ActionTag = "modify"
	ActionCancel            ActionTag = "cancel"
	ActionClose             ActionTag = "close"
	ActionCloseRequest      ActionTag = "close_request"
	ActionStopLossAdd       ActionTag = "stoploss_add"
	ActionStopLossCancel    ActionTag = "stoploss_cancel"
	ActionTakeProfitAdd     ActionTag = "takeprofit_add"
	ActionTakeProfitCancel  ActionTag = "takeprofit_cancel"
	ActionTrigger           ActionTag = "trigger"
	ActionStopLoss          ActionTag = "stop_loss"
	ActionTakeProfit        ActionTag = "take_profit"
	ActionAutoCutoff        ActionTag = "auto_cutoff"
	ActionBridgeConfirm     ActionTag = "bridge_confirm"
	ActionBridgeReject      ActionTag = "bridge_reject"
	ActionSwap              ActionTag = "swap"
	ActionInsufficientFunds ActionTag = "insufficient_margin"
)

const (
	ActorUser   Actor = "user"
	ActorAdmin  Actor = "admin"
	ActorSystem Actor = "system"
	ActorBridge Actor = "bridge"
)
