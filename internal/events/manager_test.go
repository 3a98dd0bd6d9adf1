package events

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestManagerEmitPublishesToBus(t *testing.T) {
	bus := NewBus()
	m := NewManager(bus, zerolog.Nop())

	ch, unsubscribe := m.Subscribe(4)
	defer unsubscribe()

	m.Emit(&TaskStateChangedData{TaskID: "t1", OldState: "pending", NewState: "executing"}, "arbitrage")

	select {
	case e := <-ch:
		assert.Equal(t, TaskStateChanged, e.Type)
		assert.Equal(t, "arbitrage", e.Module)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestManagerEmitErrorProducesErrorEvent(t *testing.T) {
	bus := NewBus()
	m := NewManager(bus, zerolog.Nop())

	ch, unsubscribe := m.Subscribe(4)
	defer unsubscribe()

	m.EmitError("exchange", "auth_failed", errors.New("bad signature"), map[string]interface{}{"exchange": "binance"})

	select {
	case e := <-ch:
		assert.Equal(t, ErrorOccurred, e.Type)
		data, ok := e.Data.(*ErrorEventData)
		assert.True(t, ok)
		assert.Equal(t, "auth_failed", data.ErrKind)
		assert.Equal(t, "bad signature", data.Error)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}
