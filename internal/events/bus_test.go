package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusSubscribeReceivesEmittedEvent(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe(4)
	defer unsubscribe()

	bus.Emit(Event{Type: OpportunityFound, Module: "od", Data: &OpportunityFoundData{Class: "triangular", NetPct: "0.004"}})

	select {
	case e := <-ch:
		assert.Equal(t, OpportunityFound, e.Type)
		assert.Equal(t, "od", e.Module)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusEmitDoesNotBlockOnFullSubscriberBuffer(t *testing.T) {
	bus := NewBus()
	_, unsubscribe := bus.Subscribe(1)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Emit(Event{Type: ErrorOccurred, Module: "test"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full subscriber channel")
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe(1)
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestBusMultipleSubscribersAllReceive(t *testing.T) {
	bus := NewBus()
	ch1, unsub1 := bus.Subscribe(4)
	ch2, unsub2 := bus.Subscribe(4)
	defer unsub1()
	defer unsub2()

	bus.Emit(Event{Type: SystemStatusChanged, Module: "status"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			require.Equal(t, SystemStatusChanged, e.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}
