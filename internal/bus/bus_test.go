package bus

import "testing"

func TestBus_DeliversOnlyOnFlush(t *testing.T) {
	b := New()
	var got []Event
	b.Subscribe("t", func(e Event) { got = append(got, e) })

	b.Publish(1, KindTradeExecuted, TradePayload{Market: "core/alpha"})
	b.Publish(1, KindItemCrafted, ItemCraftedPayload{RecipeID: "smelt_alloy"})
	if len(got) != 0 {
		t.Fatalf("delivered %d events before flush", len(got))
	}

	flushed := b.Flush()
	if len(flushed) != 2 || len(got) != 2 {
		t.Fatalf("flush delivered %d/%d events, want 2/2", len(flushed), len(got))
	}
	if got[0].Kind != KindTradeExecuted || got[1].Kind != KindItemCrafted {
		t.Fatalf("event order not preserved: %s, %s", got[0].Kind, got[1].Kind)
	}
	if b.Pending() != 0 {
		t.Fatalf("pending = %d after flush", b.Pending())
	}
}

func TestBus_SubscriberOrderIsStable(t *testing.T) {
	b := New()
	var order []string
	b.Subscribe("zeta", func(Event) { order = append(order, "zeta") })
	b.Subscribe("alpha", func(Event) { order = append(order, "alpha") })
	b.Subscribe("mid", func(Event) { order = append(order, "mid") })

	b.Publish(0, KindWarning, WarningPayload{})
	b.Flush()

	want := []string{"alpha", "mid", "zeta"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("delivery order %v, want %v", order, want)
		}
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	n := 0
	b.Subscribe("t", func(Event) { n++ })
	b.Publish(0, KindWarning, WarningPayload{})
	b.Flush()
	b.Unsubscribe("t")
	b.Publish(1, KindWarning, WarningPayload{})
	b.Flush()
	if n != 1 {
		t.Fatalf("subscriber called %d times, want 1", n)
	}
}

func TestBus_FlushEmptyReturnsNil(t *testing.T) {
	b := New()
	if got := b.Flush(); got != nil {
		t.Fatalf("flush of empty bus returned %v", got)
	}
}
