package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryKV struct {
	mu     sync.Mutex
	values map[string][]byte
	rev    uint64
	err    error
}

func (kv *memoryKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.err != nil {
		return 0, kv.err
	}
	if kv.values == nil {
		kv.values = map[string][]byte{}
	}
	kv.rev++
	kv.values[key] = value
	return kv.rev, nil
}

func (kv *memoryKV) get(key string) ([]byte, bool) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.values[key]
	return v, ok
}

func TestStateKey(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want string
	}{
		{
			name: "assigned display",
			snap: Snapshot{SessionID: "abc-123", Rig: "main-hall", Role: "timer"},
			want: "main-hall.timer.abc-123",
		},
		{
			name: "waiting display",
			snap: Snapshot{SessionID: "abc-123"},
			want: "unassigned.none.abc-123",
		},
		{
			name: "unsafe characters",
			snap: Snapshot{SessionID: "abc", Rig: "hall a.b*", Role: "stage>1"},
			want: "hall_a_b_.stage_1.abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateKey(tt.snap))
		})
	}
}

func TestStatePublisherKeepsLatest(t *testing.T) {
	kv := &memoryKV{}
	p := newStatePublisher(nil, kv, DefaultPublisherConfig())

	p.Notify(Snapshot{SessionID: "s1", ViewName: "first"})
	p.Notify(Snapshot{SessionID: "s1", ViewName: "second"})
	p.Notify(Snapshot{SessionID: "s1", ViewName: "third"})

	require.Len(t, p.queue, 1)
	snap := <-p.queue
	assert.Equal(t, "third", snap.ViewName)
}

func TestStatePublisherRun(t *testing.T) {
	kv := &memoryKV{}
	p := newStatePublisher(nil, kv, DefaultPublisherConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.Notify(Snapshot{SessionID: "s1", Rig: "main-hall", Role: "timer", Connection: "open"})

	key := "main-hall.timer.s1"
	require.Eventually(t, func() bool {
		_, ok := kv.get(key)
		return ok
	}, time.Second, 10*time.Millisecond)

	data, _ := kv.get(key)
	var got Snapshot
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "open", got.Connection)

	cancel()
	<-done
}

func TestStatePublisherSurvivesPutErrors(t *testing.T) {
	kv := &memoryKV{err: errors.New("no responders")}
	p := newStatePublisher(nil, kv, DefaultPublisherConfig())

	err := p.publish(context.Background(), Snapshot{SessionID: "s1"})
	assert.ErrorContains(t, err, "no responders")
}
