package core

import "math"

// Price and trigger price sentinels. An order arrives with MaxPrice when the
// client did not set a price (market orders, untriggered stops).
const (
	MaxPrice int64 = math.MaxInt64
	MinPrice int64 = math.MinInt64
)

// DefaultOrderGroupCount is how many fill events are batched into one
// outbound message before flushing.
const DefaultOrderGroupCount = 10

// DefaultFactor is the fixed-point scale for prices and quantities.
const DefaultFactor uint64 = 100000000

// Side of the order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType represents the type of the order.
type OrderType string

const (
	TypeLimit            OrderType = "LIMIT"
	TypeMarket           OrderType = "MARKET"
	TypeStopLimit        OrderType = "STOP_LIMIT"
	TypeStopMarket       OrderType = "STOP_MARKET"
	TypeTakeProfitLimit  OrderType = "TAKE_PROFIT_LIMIT"
	TypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// IsTrigger reports whether the type rests in the trigger index until its
// trigger condition matures.
func (t OrderType) IsTrigger() bool {
	switch t {
	case TypeStopLimit, TypeStopMarket, TypeTakeProfitLimit, TypeTakeProfitMarket:
		return true
	}
	return false
}

// IsMarket reports whether the order executes at market once live.
func (t OrderType) IsMarket() bool {
	switch t {
	case TypeMarket, TypeStopMarket, TypeTakeProfitMarket:
		return true
	}
	return false
}

// TimeCondition is the time in force of the order.
type TimeCondition string

const (
	GTC              TimeCondition = "GTC"
	IOC              TimeCondition = "IOC"
	FOK              TimeCondition = "FOK"
	MakerOnly        TimeCondition = "MAKER_ONLY"
	MakerOnlyReprice TimeCondition = "MAKER_ONLY_REPRICE"
	Auction          TimeCondition = "AUCTION"
)

// Action is the requested operation carried by an inbound order message.
type Action string

const (
	ActionNew            Action = "NEW"
	ActionAmend          Action = "AMEND"
	ActionCancel         Action = "CANCEL"
	ActionRecovery       Action = "RECOVERY"
	ActionRecoveryEnd    Action = "RECOVERY_END"
	ActionTriggerBracket Action = "TRIGGER_BRACKET"
)

// StopCondition tells on which side of the trigger price the order matures.
type StopCondition string

const (
	StopNone         StopCondition = "NONE"
	StopGreaterEqual StopCondition = "GREATER_EQUAL"
	StopLessEqual    StopCondition = "LESS_EQUAL"
)

// TriggerType selects which price feed matures a trigger order.
type TriggerType string

const (
	TriggerNone      TriggerType = "NONE"
	TriggerMarkPrice TriggerType = "MARK_PRICE"
	TriggerLastPrice TriggerType = "LAST_PRICE"
)

// MatchedType marks which role an order played in a fill.
type MatchedType string

const (
	Taker MatchedType = "TAKER"
	Maker MatchedType = "MAKER"
)

// STPMode is the self trade protection behavior requested by the taker.
type STPMode string

const (
	STPNone        STPMode = "NONE"
	STPExpireTaker STPMode = "EXPIRE_TAKER"
	STPExpireMaker STPMode = "EXPIRE_MAKER"
	STPExpireBoth  STPMode = "EXPIRE_BOTH"
)

// Status is the lifecycle state reported on outbound order events.
type Status string

const (
	StatusOpen        Status = "OPEN"
	StatusPartialFill Status = "PARTIAL_FILL"
	StatusFilled      Status = "FILLED"

	StatusCanceledByUser                    Status = "CANCELED_BY_USER"
	StatusCanceledByMarketNotFullMatched    Status = "CANCELED_BY_MARKET_ORDER_NOT_FULL_MATCHED"
	StatusCanceledByMarketNothingMatch      Status = "CANCELED_BY_MARKET_ORDER_NOTHING_MATCH"
	StatusCanceledAllByIOC                  Status = "CANCELED_ALL_BY_IOC"
	StatusCanceledPartialByIOC              Status = "CANCELED_PARTIAL_BY_IOC"
	StatusCanceledByFOK                     Status = "CANCELED_BY_FOK"
	StatusCanceledByMakerOnly               Status = "CANCELED_BY_MAKER_ONLY"
	StatusCanceledAllByAuction              Status = "CANCELED_ALL_BY_AUCTION"
	StatusCanceledPartialByAuction          Status = "CANCELED_PARTIAL_BY_AUCTION"
	StatusCanceledByAmend                   Status = "CANCELED_BY_AMEND"
	StatusCanceledByNoAuction               Status = "CANCELED_BY_NO_AUCTION"
	StatusCanceledByPreAuction              Status = "CANCELED_BY_PRE_AUCTION"
	StatusCanceledByBracketOrder            Status = "CANCELED_BY_BRACKET_ORDER"
	StatusCanceledBySelfTradeProtection     Status = "CANCELED_BY_SELF_TRADE_PROTECTION"
	StatusRejectCancelOrderIDNotFound       Status = "REJECT_CANCEL_ORDER_ID_NOT_FOUND"
	StatusRejectAmendOrderIDNotFound        Status = "REJECT_AMEND_ORDER_ID_NOT_FOUND"
	StatusRejectDisplayQuantityZero         Status = "REJECT_DISPLAY_QUANTITY_ZERO"
	StatusRejectDisplayQuantityTooLarge     Status = "REJECT_DISPLAY_QUANTITY_LARGER_THAN_QUANTITY"
	StatusRejectBuyStopTriggerTooLarge      Status = "REJECT_BUY_STOP_TRIGGER_LARGE_THAN_STOP_LIMIT"
	StatusRejectSellStopTriggerTooSmall     Status = "REJECT_SELL_STOP_TRIGGER_LESS_THAN_STOP_LIMIT"
	StatusRejectUnknownOrderAction          Status = "REJECT_UNKNOWN_ORDER_ACTION"
	StatusRejectQuantityAndAmountZero       Status = "REJECT_QUANTITY_AND_AMOUNT_ZERO"
	StatusRejectLimitOrderWithMarketPrice   Status = "REJECT_LIMIT_ORDER_WITH_MARKET_PRICE"
	StatusRejectAuctionSupportBuySellOnly   Status = "REJECT_AUCTION_SUPPORT_BUY_SELL_ONLY"
	StatusRejectOrderAmendingOrCanceling    Status = "REJECT_ORDER_AMENDING_OR_CANCELING"
	StatusRejectMatchingEngineRecovering    Status = "REJECT_MATCHING_ENGINE_RECOVERING"
	StatusRejectStopConditionIsNone         Status = "REJECT_STOP_CONDITION_IS_NONE"
	StatusRejectStopTriggerPriceIsNone      Status = "REJECT_STOP_TRIGGER_PRICE_IS_NONE"
	StatusRejectQuantityAndAmountLargerZero Status = "REJECT_QUANTITY_AND_AMOUNT_LARGER_ZERO"
)

// IsReject reports whether the status is a validation reject.
func (s Status) IsReject() bool {
	return len(s) > 7 && s[:7] == "REJECT_"
}
