package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds every handoff wait unless overridden in [New].
const DefaultTimeout = 10 * time.Second

var (
	// ErrTimeout is wrapped by every [TimeoutError].
	ErrTimeout = errors.New("handoff timed out")
	// ErrTerminal is returned by [Channel.Publish] for a terminal message;
	// those go through [Channel.Finish].
	ErrTerminal = errors.New("terminal message must be sent with Finish")
)

// Side names the party that gave up waiting.
type Side string

const (
	Producer Side = "producer"
	Consumer Side = "consumer"
)

// TimeoutError reports a wait on the channel that exceeded its bound.
type TimeoutError struct {
	Side  Side
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s: %v after %s", e.Side, e.Op, ErrTimeout, e.After)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// Channel is the DataReady/ConsumerReady mailbox pair for one
// producer/consumer couple. Producer methods ([Channel.Acquire],
// [Channel.Publish], [Channel.Finish], [Channel.Reset]) must be called from a
// single goroutine, consumer methods ([Channel.Receive], [Channel.Ready])
// from another.
type Channel struct {
	dataReady     chan ChunkMessage
	consumerReady chan struct{}
	timeout       time.Duration

	// producer bookkeeping
	outstanding bool
	stalled     bool
}

// New returns a Channel whose waits give up after timeout. A non-positive
// timeout selects [DefaultTimeout].
func New(timeout time.Duration) *Channel {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Channel{
		dataReady:     make(chan ChunkMessage, 1),
		consumerReady: make(chan struct{}, 1),
		timeout:       timeout,
	}
}

// Timeout returns the bound applied to each wait.
func (c *Channel) Timeout() time.Duration { return c.timeout }

// Reset drains both mailboxes and forgets any chunk in flight. It must be
// called before a new fetch reuses the channel.
func (c *Channel) Reset() {
	for {
		select {
		case <-c.dataReady:
			continue
		case <-c.consumerReady:
			continue
		default:
		}
		break
	}

	c.outstanding = false
	c.stalled = false
}

// Acquire grants the producer write access to the destination. The first
// chunk of a fetch passes straight through; afterwards Acquire waits for the
// consumer to acknowledge the previous chunk. Once Acquire fails the chunk
// in flight is abandoned and [Channel.Finish] will not wait for it again.
func (c *Channel) Acquire(ctx context.Context) error {
	if !c.outstanding {
		return nil
	}

	if err := c.awaitReady(ctx); err != nil {
		c.stalled = true
		return err
	}

	c.outstanding = false

	return nil
}

// Publish announces a data chunk already copied into the destination.
func (c *Channel) Publish(ctx context.Context, msg ChunkMessage) error {
	if msg.Terminal() {
		return ErrTerminal
	}

	if err := c.send(ctx, msg); err != nil {
		return err
	}

	c.outstanding = true

	return nil
}

// Finish sends the terminal message. It never blocks longer than the channel
// timeout, returns as soon as ctx is done and always leaves exactly one
// terminal message for the consumer.
//
// A data message passed in is treated as [EndWithError]. If the consumer
// fails to acknowledge an outstanding chunk, the terminal is downgraded to
// [EndWithError] and the unconsumed chunk, if still queued, is dropped. The
// returned message is the one actually sent; err describes a downgrade.
func (c *Channel) Finish(ctx context.Context, msg ChunkMessage) (ChunkMessage, error) {
	if !msg.Terminal() {
		msg = EndWithError
	}

	var err error
	if c.outstanding && !c.stalled {
		err = c.awaitReady(ctx)
		if err != nil {
			c.stalled = true
		}
	}

	if c.stalled {
		msg = EndWithError
		select {
		case <-c.dataReady:
		default:
		}
	}

	c.outstanding = false
	c.stalled = false

	// Only the producer sends on dataReady and the slot was emptied above, so
	// this cannot block.
	select {
	case c.dataReady <- msg:
	default:
		<-c.dataReady
		c.dataReady <- msg
	}

	return msg, err
}

// Receive waits for the next message from the producer.
func (c *Channel) Receive(ctx context.Context) (ChunkMessage, error) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case msg := <-c.dataReady:
		return msg, nil
	case <-timer.C:
		return ChunkMessage{}, &TimeoutError{Side: Consumer, Op: "receive", After: c.timeout}
	case <-ctx.Done():
		return ChunkMessage{}, fmt.Errorf("consumer receive: %w", ctx.Err())
	}
}

// Ready tells the producer the destination has been drained.
func (c *Channel) Ready(ctx context.Context) error {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case c.consumerReady <- struct{}{}:
		return nil
	case <-timer.C:
		return &TimeoutError{Side: Consumer, Op: "ready", After: c.timeout}
	case <-ctx.Done():
		return fmt.Errorf("consumer ready: %w", ctx.Err())
	}
}

func (c *Channel) awaitReady(ctx context.Context) error {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-c.consumerReady:
		return nil
	case <-timer.C:
		return &TimeoutError{Side: Producer, Op: "await ready", After: c.timeout}
	case <-ctx.Done():
		return fmt.Errorf("producer await ready: %w", ctx.Err())
	}
}

func (c *Channel) send(ctx context.Context, msg ChunkMessage) error {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case c.dataReady <- msg:
		return nil
	case <-timer.C:
		return &TimeoutError{Side: Producer, Op: "publish", After: c.timeout}
	case <-ctx.Done():
		return fmt.Errorf("producer publish: %w", ctx.Err())
	}
}
