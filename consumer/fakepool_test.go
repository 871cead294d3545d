package consumer

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/warrenmq/warren/pool"
)

// fakeHandle is a pool.Handle fake backed by a single fakeChannel.
type fakeHandle struct {
	ch        *fakeChannel
	onRelease func()
}

func (h *fakeHandle) CreateChannel() (pool.Channel, error) { return h.ch, nil }

func (h *fakeHandle) Release() {
	if h.onRelease != nil {
		h.onRelease()
	}
}

// fakePool is a connProvider fake: every GetConnection call hands out a
// fresh fakeChannel (mirroring *pool.Pool's real CreateChannel, which
// opens a new AMQP channel per call), optionally pre-seeded with the
// queue-inspect result currentDepth returns, so a test can vary observed
// depth across successive reconcile ticks.
type fakePool struct {
	mu sync.Mutex

	currentDepth func() (amqp.Queue, error)
	getConnErr   error

	channels []*fakeChannel
	releases int
}

func (p *fakePool) GetConnection(ctx context.Context) (pool.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.getConnErr != nil {
		return nil, p.getConnErr
	}

	ch := newFakeChannel()
	if p.currentDepth != nil {
		q, err := p.currentDepth()
		if err != nil {
			ch.queueInspectErr = err
		} else {
			ch.queueInspect = q
		}
	}
	p.channels = append(p.channels, ch)

	return &fakeHandle{ch: ch, onRelease: func() {
		p.mu.Lock()
		p.releases++
		p.mu.Unlock()
	}}, nil
}

// subscriptionChannels returns the fakeChannels among those handed out so
// far that a subscription actually called Consume on (as opposed to the
// one-off channels queueDepth opens and closes for each passive declare).
func (p *fakePool) subscriptionChannels() []*fakeChannel {
	p.mu.Lock()
	defer p.mu.Unlock()

	var subs []*fakeChannel
	for _, ch := range p.channels {
		ch.mu.Lock()
		consuming := ch.consumeQueue != ""
		ch.mu.Unlock()
		if consuming {
			subs = append(subs, ch)
		}
	}
	return subs
}

var _ connProvider = (*fakePool)(nil)
