package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderUnmarshalDefaults(t *testing.T) {
	var o Order
	err := json.Unmarshal([]byte(`{"id":7,"aid":1,"mid":2,"q":100,"s":"BUY","ty":"MARKET","tc":"IOC","ac":"NEW"}`), &o)
	require.NoError(t, err)

	assert.Equal(t, MaxPrice, o.Price)
	assert.Equal(t, MaxPrice, o.UpperBound)
	assert.Equal(t, MinPrice, o.LowerBound)
	assert.Equal(t, MaxPrice, o.TriggerPrice)
	assert.Equal(t, uint64(100), o.DisplayQuantity)
	assert.Equal(t, uint64(100), o.RemainQuantity)
	assert.Equal(t, StopNone, o.StopCondition)
	assert.Equal(t, Maker, o.MatchedType)
	assert.Equal(t, STPNone, o.STP)
}

func TestOrderUnmarshalRemainKeys(t *testing.T) {
	var o Order
	err := json.Unmarshal([]byte(`{"id":8,"q":100,"rq":40,"a":500,"ra":200,"s":"SELL","ty":"LIMIT","p":99}`), &o)
	require.NoError(t, err)

	assert.Equal(t, uint64(40), o.RemainQuantity)
	assert.Equal(t, uint64(200), o.RemainAmount)
	assert.Equal(t, int64(99), o.Price)
}

func TestOrderUnmarshalStopConditionDefaults(t *testing.T) {
	tests := []struct {
		name string
		data string
		want StopCondition
	}{
		{"stop buy", `{"id":1,"ty":"STOP_LIMIT","s":"BUY"}`, StopGreaterEqual},
		{"stop sell", `{"id":2,"ty":"STOP_MARKET","s":"SELL"}`, StopLessEqual},
		{"take profit buy", `{"id":3,"ty":"TAKE_PROFIT_LIMIT","s":"BUY"}`, StopLessEqual},
		{"take profit sell", `{"id":4,"ty":"TAKE_PROFIT_MARKET","s":"SELL"}`, StopGreaterEqual},
		{"explicit wins", `{"id":5,"ty":"STOP_LIMIT","s":"BUY","stc":"LESS_EQUAL"}`, StopLessEqual},
		{"plain limit", `{"id":6,"ty":"LIMIT","s":"BUY"}`, StopNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var o Order
			require.NoError(t, json.Unmarshal([]byte(tt.data), &o))
			assert.Equal(t, tt.want, o.StopCondition)
		})
	}
}

func TestOrderValidate(t *testing.T) {
	tests := []struct {
		name  string
		order Order
		want  Status
	}{
		{"plain limit", Order{Action: ActionNew, Type: TypeLimit, Price: 100, Quantity: 10, DisplayQuantity: 10}, ""},
		{"amount market", Order{Action: ActionNew, Type: TypeMarket, Price: MaxPrice, Amount: 500}, ""},
		{"market at max price", Order{Action: ActionNew, Type: TypeMarket, Price: MaxPrice, Quantity: 10, DisplayQuantity: 10}, ""},
		{"zero quantity and amount", Order{Action: ActionNew, Type: TypeLimit, Price: 100}, StatusRejectQuantityAndAmountZero},
		{"both quantity and amount", Order{Action: ActionNew, Type: TypeLimit, Price: 100, Quantity: 10, DisplayQuantity: 10, Amount: 500}, StatusRejectQuantityAndAmountLargerZero},
		{"stop without condition", Order{Action: ActionNew, Type: TypeStopLimit, Price: 100, TriggerPrice: 95, Quantity: 10, DisplayQuantity: 10, StopCondition: StopNone}, StatusRejectStopConditionIsNone},
		{"stop without trigger price", Order{Action: ActionNew, Type: TypeStopMarket, Price: MaxPrice, TriggerPrice: MaxPrice, Quantity: 10, DisplayQuantity: 10, StopCondition: StopLessEqual}, StatusRejectStopTriggerPriceIsNone},
		{"display above quantity", Order{Action: ActionNew, Type: TypeLimit, Price: 100, Quantity: 10, DisplayQuantity: 12}, StatusRejectDisplayQuantityTooLarge},
		{"zero display", Order{Action: ActionNew, Type: TypeLimit, Price: 100, Quantity: 10}, StatusRejectDisplayQuantityZero},
		{"limit at market price", Order{Action: ActionNew, Type: TypeLimit, Price: MaxPrice, Quantity: 10, DisplayQuantity: 10}, StatusRejectLimitOrderWithMarketPrice},
		{"auction exempt", Order{Action: ActionNew, Type: TypeLimit, TimeCondition: Auction, Price: MaxPrice}, ""},
		{"cancel exempt", Order{Action: ActionCancel, Type: TypeLimit}, ""},
		{"amend checked", Order{Action: ActionAmend, Type: TypeLimit, Price: 100}, StatusRejectQuantityAndAmountZero},
		{"recovery checked", Order{Action: ActionRecovery, Type: TypeLimit, Price: 100}, StatusRejectQuantityAndAmountZero},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.order.Validate())
		})
	}
}

func TestMatchableQuantity(t *testing.T) {
	tests := []struct {
		name  string
		order Order
		want  uint64
	}{
		{"plain", Order{Quantity: 10, DisplayQuantity: 10, RemainQuantity: 10}, 10},
		{"plain partial", Order{Quantity: 10, DisplayQuantity: 10, RemainQuantity: 4}, 4},
		{"iceberg fresh", Order{Quantity: 10, DisplayQuantity: 3, RemainQuantity: 10}, 3},
		{"iceberg mid slice", Order{Quantity: 10, DisplayQuantity: 3, RemainQuantity: 8}, 1},
		{"iceberg last slice", Order{Quantity: 10, DisplayQuantity: 3, RemainQuantity: 2}, 2},
		{"zero display", Order{Quantity: 10, DisplayQuantity: 0, RemainQuantity: 10}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.order.MatchableQuantity())
		})
	}
}

func TestToLimit(t *testing.T) {
	stop := Order{Type: TypeStopLimit, Price: 100, TriggerPrice: 95}
	live := stop.ToLimit()
	assert.Equal(t, TypeLimit, live.Type)
	assert.True(t, live.IsTriggered)
	assert.Equal(t, ActionNew, live.Action)

	stopMarket := Order{Type: TypeStopMarket}
	assert.Equal(t, TypeMarket, stopMarket.ToLimit().Type)

	tp := Order{Type: TypeTakeProfitLimit}
	assert.Equal(t, TypeLimit, tp.ToLimit().Type)
}

func TestCanAmend(t *testing.T) {
	limit := Order{Side: Buy, Type: TypeLimit, Price: 100, Quantity: 10}

	t.Run("same price smaller quantity", func(t *testing.T) {
		assert.True(t, limit.CanAmend(&Order{Side: Buy, Type: TypeLimit, Price: 100, Quantity: 6}))
	})
	t.Run("price move", func(t *testing.T) {
		assert.False(t, limit.CanAmend(&Order{Side: Buy, Type: TypeLimit, Price: 101, Quantity: 6}))
	})
	t.Run("quantity growth", func(t *testing.T) {
		assert.False(t, limit.CanAmend(&Order{Side: Buy, Type: TypeLimit, Price: 100, Quantity: 12}))
	})
	t.Run("side flip", func(t *testing.T) {
		assert.False(t, limit.CanAmend(&Order{Side: Sell, Type: TypeLimit, Price: 100, Quantity: 6}))
	})

	t.Run("untriggered stop keeps trigger price", func(t *testing.T) {
		stop := Order{Side: Buy, Type: TypeStopLimit, Price: 100, TriggerPrice: 95, Quantity: 10}
		// Quantity may grow while the stop only rests in the trigger index.
		assert.True(t, stop.CanAmend(&Order{Side: Buy, Type: TypeStopLimit, Price: 90, TriggerPrice: 95, Quantity: 20}))
		assert.False(t, stop.CanAmend(&Order{Side: Buy, Type: TypeStopLimit, Price: 100, TriggerPrice: 96, Quantity: 10}))
	})
	t.Run("triggered stop behaves like limit", func(t *testing.T) {
		stop := Order{Side: Buy, Type: TypeStopLimit, Price: 100, TriggerPrice: 95, Quantity: 10, IsTriggered: true}
		assert.True(t, stop.CanAmend(&Order{Side: Buy, Type: TypeStopLimit, Price: 100, TriggerPrice: 90, Quantity: 6}))
		assert.False(t, stop.CanAmend(&Order{Side: Buy, Type: TypeStopLimit, Price: 99, TriggerPrice: 95, Quantity: 6}))
	})
}

func TestRoundTicks(t *testing.T) {
	assert.Equal(t, int64(100), RoundDownTick(104, 5))
	assert.Equal(t, int64(105), RoundUpTick(104, 5))
	assert.Equal(t, int64(105), RoundUpTick(105, 5))
	assert.Equal(t, int64(-105), RoundDownTick(-104, 5))
	assert.Equal(t, int64(-100), RoundUpTick(-104, 5))
	assert.Equal(t, int64(5), FeePips(10000, 5))
	assert.Equal(t, int64(5), FeePips(-10000, 5))
}

func TestStatusIsReject(t *testing.T) {
	assert.True(t, StatusRejectCancelOrderIDNotFound.IsReject())
	assert.False(t, StatusCanceledByUser.IsReject())
	assert.False(t, StatusOpen.IsReject())
}
