package bus

import (
	"context"
	"testing"
	"time"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New[model.Tick](10)
	out1 := fo.Subscribe("session")
	out2 := fo.Subscribe("sqlite")

	input := make(chan model.Tick, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- model.Tick{Symbol: "XRPUSDT", Price: 0.5123}

	for name, out := range map[string]<-chan model.Tick{"out1": out1, "out2": out2} {
		select {
		case tk := <-out:
			if tk.Price != 0.5123 {
				t.Errorf("%s: expected price 0.5123, got %v", name, tk.Price)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: timed out waiting for tick", name)
		}
	}
}

func TestFanOut_DropsForSlowSubscriber(t *testing.T) {
	fo := New[int](1)
	fast := fo.Subscribe("fast")
	slow := fo.Subscribe("slow")

	dropped := make(chan string, 4)
	fo.OnDrop = func(name string) { dropped <- name }

	input := make(chan int)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()

	input <- 1
	<-fast
	input <- 2 // slow still holds 1

	select {
	case name := <-dropped:
		if name != "slow" {
			t.Errorf("dropped for %q, want slow", name)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a drop for the slow subscriber")
	}

	close(input)
	<-done
	if v, ok := <-slow; !ok || v != 1 {
		t.Errorf("slow should still hold 1, got %v %v", v, ok)
	}
	if _, ok := <-slow; ok {
		t.Error("expected slow to be closed after Run returns")
	}
	<-fast
	if _, ok := <-fast; ok {
		t.Error("expected fast to be closed after Run returns")
	}
}

func TestFanOut_ChannelStats(t *testing.T) {
	fo := New[int](4)
	fo.Subscribe("a")
	stats := fo.ChannelStats()
	if len(stats) != 1 || stats[0].Name != "a" || stats[0].Cap != 4 || stats[0].Len != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
