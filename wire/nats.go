package wire

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/weft/pkg/slogx"
	"github.com/casualjim/weft/provider"
	"github.com/nats-io/nats.go"
)

// HeaderStreamEnd marks the message that closes a published stream.
const HeaderStreamEnd = "Weft-Stream-End"

// NATSPublisher relays result streams over NATS subjects. Each event is
// published as its JSON encoding, followed by an empty message carrying the
// HeaderStreamEnd header.
type NATSPublisher struct {
	client *nats.Conn
	logger *slog.Logger
}

func NATS(client *nats.Conn, options ...Option) (*NATSPublisher, error) {
	o, err := newOptions(options)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{client: client, logger: o.Logger}, nil
}

// Publish sends every event of src to subject, then the end marker.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, src Source) error {
	for ev := range src.FullStreamContext(ctx) {
		data, err := provider.EventToJSON(ev)
		if err != nil {
			return fmt.Errorf("failed to encode %T: %w", ev, err)
		}
		if err := p.client.Publish(subject, data); err != nil {
			return err
		}
	}
	end := nats.NewMsg(subject)
	end.Header.Set(HeaderStreamEnd, "true")
	if err := p.client.PublishMsg(end); err != nil {
		return err
	}
	return p.client.FlushWithContext(ctx)
}

// Subscribe returns the events published to subject. The channel is closed
// after the end marker arrives or ctx is cancelled.
func (p *NATSPublisher) Subscribe(ctx context.Context, subject string) (<-chan provider.StreamEvent, error) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan provider.StreamEvent, 50)

	var (
		mu     sync.Mutex
		closed bool
	)
	finish := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(out)
		}
	}

	sub, err := p.client.Subscribe(subject, func(msg *nats.Msg) {
		if msg.Header.Get(HeaderStreamEnd) != "" {
			cancel()
			return
		}
		event, err := provider.EventFromJSON(msg.Data)
		if err != nil {
			p.logger.Error("failed to decode event", slogx.Error(err), slog.String("subject", subject))
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- event:
		case <-ctx.Done():
		}
	})
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil {
			p.logger.Error("failed to unsubscribe", slogx.Error(err), slog.String("subject", subject))
		}
		finish()
	}()
	return out, nil
}
