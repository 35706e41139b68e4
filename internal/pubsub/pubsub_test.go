package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanout(t *testing.T) {
	topic := NewTopic[int]()
	s1 := topic.Subscribe(4)
	s2 := topic.Subscribe(4)
	s3 := topic.Subscribe(4)

	topic.Publish(1)
	topic.Publish(2)

	for _, s := range []*Sub[int]{s1, s2, s3} {
		assert.Equal(t, 1, <-s.C())
		assert.Equal(t, 2, <-s.C())
	}
}

func TestReplayLateSubscriber(t *testing.T) {
	topic := NewTopic[string]()
	topic.Publish("first")
	topic.Publish("second")

	late := topic.SubscribeReplay(4)
	require.Equal(t, "second", <-late.C())

	plain := topic.Subscribe(4)
	assert.Empty(t, plain.C())
}

func TestReplayNothingBeforeFirstPublish(t *testing.T) {
	topic := NewTopic[string]()
	sub := topic.SubscribeReplay(4)
	assert.Empty(t, sub.C())
	_, ok := topic.Last()
	assert.False(t, ok)
}

func TestPublishNeverBlocks(t *testing.T) {
	topic := NewTopic[int]()
	slow := topic.Subscribe(1)

	topic.Publish(1)
	topic.Publish(2)
	topic.Publish(3)

	assert.Equal(t, 1, <-slow.C())
	assert.Equal(t, uint64(2), slow.Dropped())

	last, ok := topic.Last()
	require.True(t, ok)
	assert.Equal(t, 3, last)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	topic := NewTopic[int]()
	sub := topic.Subscribe(1)
	topic.Unsubscribe(sub)
	_, open := <-sub.C()
	assert.False(t, open)
	// publishing after unsubscribe must not panic
	topic.Publish(1)
}

func TestClose(t *testing.T) {
	topic := NewTopic[int]()
	sub := topic.Subscribe(1)
	topic.Close()
	_, open := <-sub.C()
	assert.False(t, open)

	topic.Publish(1)
	late := topic.Subscribe(1)
	_, open = <-late.C()
	assert.False(t, open)
}
