package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/pylon/internal/model"
)

func TestDecode_MessageCreate(t *testing.T) {
	raw := json.RawMessage(`{"id":"42","channel_id":"7","content":"hi"}`)

	ev, err := Decode("MESSAGE_CREATE", 0, 12, raw)
	require.NoError(t, err)
	assert.Equal(t, KindMessageCreate, ev.Kind)
	assert.Equal(t, int64(12), ev.Sequence)

	msg, ok := ev.Data.(*model.Message)
	require.True(t, ok)
	assert.Equal(t, model.Snowflake(42), msg.ID)
	assert.Equal(t, "hi", msg.Content)
}

func TestDecode_UnknownKind(t *testing.T) {
	raw := json.RawMessage(`{"whatever":true}`)

	ev, err := Decode("SOME_FUTURE_EVENT", 1, 3, raw)
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, ev.Kind)
	assert.Nil(t, ev.Data)
	assert.JSONEq(t, `{"whatever":true}`, string(ev.Raw))
}

func TestDecode_MalformedPayload(t *testing.T) {
	_, err := Decode("GUILD_CREATE", 0, 1, json.RawMessage(`{"id":[]}`))
	require.Error(t, err)
}

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry(nil)

	var got []Kind
	r.On(KindMessageCreate, func(ev Event) {
		got = append(got, ev.Kind)
	})

	var all int
	r.OnAll(func(Event) { all++ })

	r.Dispatch(Event{Kind: KindMessageCreate})
	r.Dispatch(Event{Kind: KindGuildCreate})

	assert.Equal(t, []Kind{KindMessageCreate}, got)
	assert.Equal(t, 2, all)
	assert.Equal(t, int64(2), r.Stats().Dispatched)
}

func TestRegistry_HandlerPanicIsolated(t *testing.T) {
	r := NewRegistry(nil)

	r.On(KindMessageCreate, func(Event) {
		panic("handler bug")
	})

	var after bool
	r.On(KindMessageCreate, func(Event) { after = true })

	// Must not propagate the panic.
	r.Dispatch(Event{Kind: KindMessageCreate})

	assert.True(t, after, "later handlers still run")
	assert.Equal(t, int64(1), r.Stats().HandlerPanics)

	select {
	case err := <-r.Errors():
		assert.Contains(t, err.Error(), "handler panic")
	default:
		t.Fatal("expected a reported error")
	}
}
