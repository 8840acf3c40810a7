package messaging

import "context"

// MultiBookSender fans every book publication out to several sinks, e.g.
// the websocket feed and a Kafka topic. The first error wins but every sink
// still gets the message.
type MultiBookSender struct {
	senders []BookSender
}

// MultiBook combines several book senders into one.
func MultiBook(senders ...BookSender) *MultiBookSender {
	return &MultiBookSender{senders: senders}
}

func (m *MultiBookSender) SendBookSnapshot(ctx context.Context, snap *BookSnapshot) error {
	var first error
	for _, s := range m.senders {
		if err := s.SendBookSnapshot(ctx, snap); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiBookSender) SendBestQuote(ctx context.Context, quote *BestQuote) error {
	var first error
	for _, s := range m.senders {
		if err := s.SendBestQuote(ctx, quote); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiBookSender) Close() error {
	var first error
	for _, s := range m.senders {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
