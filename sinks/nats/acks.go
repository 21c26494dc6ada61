package natsx

import (
	nats "github.com/nats-io/nats.go"
)

// Acker is the part of *nats.Msg a sink settles once its write is durable.
type Acker interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
}

// PendingAcks holds consumed messages whose effects are buffered but not yet
// flushed. Sinks ack them only after a successful flush.
type PendingAcks struct {
	msgs []Acker
}

// Add defers the ack of msg until the next AckAll.
func (p *PendingAcks) Add(msg Acker) {
	p.msgs = append(p.msgs, msg)
}

// Len reports the number of unsettled messages.
func (p *PendingAcks) Len() int {
	return len(p.msgs)
}

// AckAll acks every pending message and returns the first ack error.
func (p *PendingAcks) AckAll() error {
	var first error
	for _, msg := range p.msgs {
		if err := msg.Ack(); err != nil && first == nil {
			first = err
		}
	}
	p.msgs = p.msgs[:0]
	return first
}

// NakAll requests redelivery of every pending message.
func (p *PendingAcks) NakAll() {
	for _, msg := range p.msgs {
		_ = msg.Nak()
	}
	p.msgs = p.msgs[:0]
}
