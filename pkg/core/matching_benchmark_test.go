package core

import (
	"testing"
)

func BenchmarkEngineMatch(b *testing.B) {
	e := newTestEngine(&recorder{})
	ids := uint64(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		maker := newOrder(ids, 100, Sell, 100, 10)
		ids++
		e.HandleOrder(maker)
		taker := newOrder(ids, 200, Buy, 100, 10)
		ids++
		e.HandleOrder(taker)
	}
}

func BenchmarkEngineRestCancel(b *testing.B) {
	e := newTestEngine(&recorder{})
	ids := uint64(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		o := newOrder(ids, 100, Buy, int64(90+i%20), 10)
		e.HandleOrder(o)
		e.HandleOrder(&Order{OrderID: ids, Action: ActionCancel})
		ids++
	}
}

func BenchmarkTriggerFire(b *testing.B) {
	m := NewTriggerManager("BTC-USDT-SWAP", &recorder{}, NewSeqIDGen(0, 0))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		o := newStopOrder(uint64(i+1), Buy, int64(100+i%50), StopGreaterEqual, TriggerMarkPrice)
		m.HandleOrder(o)
		m.MarkPriceTrigger(int64(100 + i%50))
	}
}
