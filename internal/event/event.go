package event

import (
	"github.com/shopspring/decimal"
)

// Type names a command kind in logs and state dumps.
type Type string

const (
	TypeDeposit         Type = "DEPOSIT"
	TypeWithdraw        Type = "WITHDRAW"
	TypePlaceOrder      Type = "PLACE_ORDER"
	TypeAddLiquidity    Type = "ADD_LIQUIDITY"
	TypeRemoveLiquidity Type = "REMOVE_LIQUIDITY"
	TypeFundReserve     Type = "FUND_RESERVE"
)

// Event is a mutation request consumed by the sequencer.
type Event interface {
	GetType() Type
	ReplyTo() chan<- Result
}

// Result is what the sequencer sends back for every event it accepts.
type Result struct {
	Value any
	Err   error
}

// BaseEvent carries the reply channel shared by all events.
type BaseEvent struct {
	Reply chan<- Result
}

// ReplyTo returns the channel the result is delivered on. May be nil.
func (e *BaseEvent) ReplyTo() chan<- Result {
	return e.Reply
}

// DepositEvent credits a user's balance.
type DepositEvent struct {
	BaseEvent
	User   string
	Token  string
	Amount decimal.Decimal
}

func (e *DepositEvent) GetType() Type { return TypeDeposit }

// WithdrawEvent debits a user's balance.
type WithdrawEvent struct {
	BaseEvent
	User   string
	Token  string
	Amount decimal.Decimal
}

func (e *WithdrawEvent) GetType() Type { return TypeWithdraw }

// PlaceOrderEvent escrows an order's cost and queues it.
type PlaceOrderEvent struct {
	BaseEvent
	User    string
	Side    string // "buy" or "sell", validated by the sequencer
	Product string // "A-B"
	Amount  decimal.Decimal
	Price   decimal.Decimal
}

func (e *PlaceOrderEvent) GetType() Type { return TypePlaceOrder }

// AddLiquidityEvent stores a user's liquidity position.
type AddLiquidityEvent struct {
	BaseEvent
	User    string
	TokenA  string
	TokenB  string
	AmountA decimal.Decimal
	AmountB decimal.Decimal
}

func (e *AddLiquidityEvent) GetType() Type { return TypeAddLiquidity }

// RemoveLiquidityEvent returns a user's liquidity position.
type RemoveLiquidityEvent struct {
	BaseEvent
	User   string
	TokenA string
	TokenB string
}

func (e *RemoveLiquidityEvent) GetType() Type { return TypeRemoveLiquidity }

// FundReserveEvent seeds a pool reserve.
type FundReserveEvent struct {
	BaseEvent
	Token  string
	Amount decimal.Decimal
}

func (e *FundReserveEvent) GetType() Type { return TypeFundReserve }
