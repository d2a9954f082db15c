package exchange

import "testing"

func TestCoinbaseWSAdapter_DecodeMatch(t *testing.T) {
	raw := []byte(`{"type":"match","product_id":"BTC-USD","trade_id":555,"price":"50000.25","size":"0.1","side":"buy","time":"2026-01-01T00:00:00Z"}`)

	adapter := coinbaseWSAdapter{}
	msg, err := adapter.decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg == nil || msg.trade == nil {
		t.Fatal("expected a trade message")
	}
	if msg.trade.Symbol != "BTC-USD" || msg.trade.Side != "buy" {
		t.Errorf("unexpected trade: %+v", msg.trade)
	}
}

func TestCoinbaseWSAdapter_DecodeSnapshot(t *testing.T) {
	raw := []byte(`{"type":"snapshot","product_id":"BTC-USD","bids":[["49900","1.0"]],"asks":[["50100","2.0"]]}`)

	adapter := coinbaseWSAdapter{}
	msg, err := adapter.decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg == nil || msg.orderBook == nil {
		t.Fatal("expected an order book message")
	}
	if len(msg.orderBook.Bids) != 1 || len(msg.orderBook.Asks) != 1 {
		t.Fatalf("unexpected book sizes: %+v", msg.orderBook)
	}
}

func TestCoinbaseWSAdapter_DecodeHeartbeat_Ignored(t *testing.T) {
	adapter := coinbaseWSAdapter{}
	msg, err := adapter.decode([]byte(`{"type":"heartbeat"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != nil {
		t.Errorf("expected nil message for heartbeat, got %+v", msg)
	}
}
