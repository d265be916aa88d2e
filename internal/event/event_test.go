package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvushealth/engine/internal/channel"
	"github.com/corvushealth/engine/internal/connector"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(2, 8)
	defer bus.Close()

	var mu sync.Mutex
	var got []Event
	done := make(chan struct{})
	bus.Subscribe("topic.a", func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
		close(done)
	})

	require.NoError(t, bus.Publish(Event{Topic: "topic.a", ChannelID: "chan-1"}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "chan-1", got[0].ChannelID)
}

func TestBusSamePartitionPreservesOrder(t *testing.T) {
	bus := NewBus(1, 16)
	defer bus.Close()

	var mu sync.Mutex
	var order []int
	allDone := make(chan struct{})
	count := 0
	bus.Subscribe("topic.seq", func(ev Event) {
		mu.Lock()
		order = append(order, ev.Payload.(int))
		count++
		if count == 5 {
			close(allDone)
		}
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(Event{Topic: "topic.seq", ChannelID: "chan-1", Payload: i}))
	}

	select {
	case <-allDone:
	case <-time.After(time.Second):
		t.Fatal("handlers never completed")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestBusPublishAfterCloseErrors(t *testing.T) {
	bus := NewBus(1, 1)
	bus.Close()
	err := bus.Publish(Event{Topic: "topic.a", ChannelID: "chan-1"})
	assert.Error(t, err)
}

func TestChannelAdapterImplementsPublisher(t *testing.T) {
	bus := NewBus(1, 8)
	defer bus.Close()
	adapter := NewChannelAdapter(bus)

	received := make(chan Event, 1)
	bus.Subscribe(TopicStateChange, func(ev Event) { received <- ev })

	adapter.PublishStateChange(channel.StateChangeEvent{ChannelID: "chan-1", Current: channel.StateStarted})

	select {
	case ev := <-received:
		assert.Equal(t, TopicStateChange, ev.Topic)
	case <-time.After(time.Second):
		t.Fatal("state change event never delivered")
	}
}

func TestConnectorAdapterImplementsEventSink(t *testing.T) {
	bus := NewBus(1, 8)
	defer bus.Close()
	adapter := NewConnectorAdapter(bus, "chan-1")

	received := make(chan Event, 1)
	bus.Subscribe(TopicConnectionStatus, func(ev Event) { received <- ev })

	adapter.ConnectionStatus("mllp-out", connector.StatusConnected)

	select {
	case ev := <-received:
		payload := ev.Payload.(ConnectionStatusEvent)
		assert.Equal(t, "mllp-out", payload.ConnectorName)
		assert.Equal(t, connector.StatusConnected, payload.Status)
	case <-time.After(time.Second):
		t.Fatal("connection status event never delivered")
	}
}

func TestEventToStructEncodesConnectionStatus(t *testing.T) {
	ev := Event{
		Topic:     TopicConnectionStatus,
		ChannelID: "chan-1",
		Payload:   ConnectionStatusEvent{ChannelID: "chan-1", ConnectorName: "mllp-out", Status: connector.StatusConnected},
	}
	s, err := eventToStruct(ev)
	require.NoError(t, err)
	assert.Equal(t, "CONNECTED", s.Fields["status"].GetStringValue())
	assert.Equal(t, "mllp-out", s.Fields["connectorName"].GetStringValue())
}
