package event

import (
	"errors"
	"testing"
)

func TestReplyPool(t *testing.T) {
	Warmup(8)

	reply := AcquireReply()
	if cap(reply) != 1 || len(reply) != 0 {
		t.Fatalf("Expected empty single-slot channel, got len=%d cap=%d", len(reply), cap(reply))
	}

	ev := &DepositEvent{BaseEvent: BaseEvent{Reply: reply}, User: "alice", Token: "GBP"}
	ev.ReplyTo() <- Result{Err: errors.New("boom")}

	// A channel still holding a result is not pooled.
	ReleaseReply(reply)
	res := <-reply
	if res.Err == nil {
		t.Fatal("Expected the result to survive a premature release")
	}
	ReleaseReply(reply)
	ReleaseReply(nil)
}

func TestEventTypes(t *testing.T) {
	tests := []struct {
		ev   Event
		want Type
	}{
		{&DepositEvent{}, TypeDeposit},
		{&WithdrawEvent{}, TypeWithdraw},
		{&PlaceOrderEvent{}, TypePlaceOrder},
		{&AddLiquidityEvent{}, TypeAddLiquidity},
		{&RemoveLiquidityEvent{}, TypeRemoveLiquidity},
		{&FundReserveEvent{}, TypeFundReserve},
	}
	for _, tt := range tests {
		if got := tt.ev.GetType(); got != tt.want {
			t.Errorf("GetType() = %s, want %s", got, tt.want)
		}
		if tt.ev.ReplyTo() != nil {
			t.Errorf("%s: zero event should have no reply channel", tt.want)
		}
	}
}
