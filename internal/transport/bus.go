package transport

import (
	"context"
	"sync"

	"pdsno.io/controller/internal/envelope"
	apperrors "pdsno.io/controller/internal/pkg/errors"
	"pdsno.io/controller/internal/pkg/worker"
)

// Handler processes a delivered envelope and produces an optional reply.
type Handler func(ctx context.Context, e *envelope.Envelope) (*envelope.Envelope, error)

// pairQueue serializes delivery for one (sender, recipient) pair so FIFO
// ordering holds even when the bus dispatches concurrently across pairs.
type pairQueue struct {
	mu sync.Mutex
}

// Bus is the in-process transport carrier: controllers registered in the
// same process exchange envelopes directly, without a network hop. Each
// (sender, recipient) pair gets its own serialization lock so messages
// between any two parties stay in order, while unrelated pairs still run
// concurrently through the worker pool.
type Bus struct {
	pool     *worker.Pool
	mu       sync.RWMutex
	handlers map[string]Handler
	pairs    map[string]*pairQueue
}

// NewBus creates an in-process bus backed by pool for concurrent,
// per-pair-ordered dispatch.
func NewBus(pool *worker.Pool) *Bus {
	return &Bus{
		pool:     pool,
		handlers: make(map[string]Handler),
		pairs:    make(map[string]*pairQueue),
	}
}

// Register attaches the handler that will receive envelopes addressed to
// controllerID.
func (b *Bus) Register(controllerID string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[controllerID] = h
}

func (b *Bus) pairQueueFor(sender, recipient string) *pairQueue {
	key := sender + "->" + recipient
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.pairs[key]
	if !ok {
		q = &pairQueue{}
		b.pairs[key] = q
	}
	return q
}

// Send delivers e to its recipient's registered handler, serialized against
// any other in-flight message on the same (sender, recipient) pair.
func (b *Bus) Send(ctx context.Context, e *envelope.Envelope) (*envelope.Envelope, error) {
	b.mu.RLock()
	h, ok := b.handlers[e.RecipientID]
	b.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.CodeTransportUnavailable, "no local handler registered for recipient: "+e.RecipientID, 503)
	}

	q := b.pairQueueFor(e.SenderID, e.RecipientID)

	type result struct {
		reply *envelope.Envelope
		err   error
	}
	done := make(chan result, 1)

	submitErr := b.pool.Submit(ctx, func(ctx context.Context) {
		q.mu.Lock()
		defer q.mu.Unlock()
		reply, err := h(ctx, e)
		done <- result{reply: reply, err: err}
	})
	if submitErr != nil {
		return nil, submitErr
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.reply, r.err
	}
}
