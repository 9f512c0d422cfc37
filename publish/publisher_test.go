package publish

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/GSB-WEB/adcsim"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const channel = "adcsim:samples"

func TestNewSample(t *testing.T) {
	ch, err := adcsim.NewChannel(adcsim.ChannelConfig{
		Name: "PT-201", UnitID: 3, Min: 0, Max: 100, Unit: "bar", Signal: "4-20mA", Bits: 8, Vref: 5, Value: new(float64),
	})
	require.NoError(t, err)
	st, r, err := ch.Sample()
	require.NoError(t, err)

	ts := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	s := NewSample(ch, st, r, ts)
	assert.Equal(t, uint64(51), s.DigitalCode)
	assert.Equal(t, "00110011", s.Binary)
	assert.Equal(t, "0x33", s.Hex)
	assert.Equal(t, "0o63", s.Octal)
	assert.Equal(t, 4.0, s.LoopCurrent)

	bb, err := json.Marshal(s)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(bb, &doc))
	assert.Equal(t, "PT-201", doc["channel"])
	assert.Equal(t, "4-20mA", doc["signal"])
	assert.Equal(t, "bar", doc["engineering_unit"])
	assert.Equal(t, 255.0, doc["max_digital_code"])
	assert.Equal(t, "2026-10-19T08:00:00Z", doc["timestamp"])
}

func TestNewPublisherFailsWithoutRedis(t *testing.T) {
	_, err := NewPublisher(adcsim.RedisConfig{Addr: "127.0.0.1:1", Channel: channel})
	assert.ErrorContains(t, err, "connect to redis")
}

// subscribe starts an in-process redis, a publisher and a subscriber on channel.
func subscribe(t *testing.T) (*Publisher, <-chan *redis.Message) {
	t.Helper()
	mr := miniredis.RunT(t)

	pub, err := NewPublisher(adcsim.RedisConfig{Addr: mr.Addr(), Channel: channel})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	sub := rdb.Subscribe(context.Background(), channel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err = sub.Receive(context.Background())
	require.NoError(t, err)

	return pub, sub.Channel()
}

func receive(t *testing.T, messages <-chan *redis.Message) Sample {
	t.Helper()
	select {
	case msg := <-messages:
		var s Sample
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &s))
		return s
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no sample published")
		return Sample{}
	}
}

func assertSilent(t *testing.T, messages <-chan *redis.Message) {
	t.Helper()
	select {
	case msg := <-messages:
		assert.Fail(t, "unexpected sample", msg.Payload)
	case <-time.After(200 * time.Millisecond):
	}
}

func testBank(t *testing.T) *adcsim.Bank {
	t.Helper()
	bank, err := adcsim.NewBank([]adcsim.ChannelConfig{
		{Name: "TT-101", UnitID: 1, Address: 0, Min: -20, Max: 100, Unit: "°C", Signal: "1-5V", Bits: 10, Vref: 5},
		{Name: "PT-201", UnitID: 1, Address: 8, Min: 0, Max: 100, Unit: "bar", Signal: "4-20mA", Bits: 8, Vref: 5, Value: new(float64)},
	})
	require.NoError(t, err)
	return bank
}

func TestPublish(t *testing.T) {
	pub, messages := subscribe(t)
	ch, _ := testBank(t).Channel("TT-101")
	st, r, err := ch.Sample()
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), NewSample(ch, st, r, time.Now())))

	s := receive(t, messages)
	assert.Equal(t, "TT-101", s.Channel)
	assert.Equal(t, uint64(613), s.DigitalCode)
	assert.Equal(t, "1001100101", s.Binary)
	assert.Equal(t, "°C", s.EngineeringUnit)
}

func TestPublishBankSendsOneSamplePerChannel(t *testing.T) {
	pub, messages := subscribe(t)

	require.NoError(t, pub.PublishBank(context.Background(), testBank(t)))

	first, second := receive(t, messages), receive(t, messages)
	assert.Equal(t, "TT-101", first.Channel)
	assert.Equal(t, uint64(613), first.DigitalCode)
	assert.Equal(t, "PT-201", second.Channel)
	assert.Equal(t, uint64(51), second.DigitalCode)
	assert.Equal(t, first.Timestamp, second.Timestamp)
	assertSilent(t, messages)
}

func TestPublishBankSkipsFailingChannels(t *testing.T) {
	pub, messages := subscribe(t)
	bank := testBank(t)
	tt, _ := bank.Channel("TT-101")
	tt.Range = adcsim.EngineeringRange{Min: 100, Max: -20, Unit: "°C"}

	require.NoError(t, pub.PublishBank(context.Background(), bank))

	s := receive(t, messages)
	assert.Equal(t, "PT-201", s.Channel)
	assertSilent(t, messages)
}

func TestRunPublishesUntilCancelled(t *testing.T) {
	pub, messages := subscribe(t)
	bank := testBank(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		pub.Run(ctx, bank, 20*time.Millisecond)
		close(done)
	}()

	assert.Equal(t, "TT-101", receive(t, messages).Channel)
	assert.Equal(t, "PT-201", receive(t, messages).Channel)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "Run did not stop after cancel")
	}
}
