package feed

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/erain9/crossmatch/pkg/messaging"
)

const heartbeatInterval = 15 * time.Second

type outboundMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Server streams book snapshots and best quotes to websocket subscribers.
// It implements messaging.BookSender so the exchange layer can treat it
// like any other market data sink.
type Server struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	books      *hub[*messaging.BookSnapshot]
	quotes     *hub[*messaging.BestQuote]
	logger     zerolog.Logger
}

// NewServer creates the feed server listening on addr.
func NewServer(addr string, logger zerolog.Logger) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		books:    newHub[*messaging.BookSnapshot](),
		quotes:   newHub[*messaging.BestQuote](),
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/books", s.handleBookStream)
	mux.HandleFunc("/ws/quotes", s.handleQuoteStream)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Starting market data feed")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Feed server stopped")
		}
	}()
}

// Shutdown stops accepting connections and drains the open ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// SendBookSnapshot broadcasts a display book to the book subscribers.
func (s *Server) SendBookSnapshot(_ context.Context, snap *messaging.BookSnapshot) error {
	s.books.Broadcast(snap)
	return nil
}

// SendBestQuote broadcasts a top of book update to the quote subscribers.
func (s *Server) SendBestQuote(_ context.Context, quote *messaging.BestQuote) error {
	s.quotes.Broadcast(quote)
	return nil
}

// Close implements messaging.BookSender.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

func (s *Server) handleBookStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	marketCode := r.URL.Query().Get("market")

	sub := s.books.Subscribe(32)
	defer s.books.Unsubscribe(sub)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-sub.ch:
			if !ok {
				return
			}
			if marketCode != "" && snap.MarketCode != marketCode {
				continue
			}
			if err := conn.WriteJSON(outboundMessage{Type: "book", Data: snap}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleQuoteStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	marketCode := r.URL.Query().Get("market")

	sub := s.quotes.Subscribe(32)
	defer s.quotes.Unsubscribe(sub)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case quote, ok := <-sub.ch:
			if !ok {
				return
			}
			if marketCode != "" && quote.MarketCode != marketCode {
				continue
			}
			if err := conn.WriteJSON(outboundMessage{Type: "quote", Data: quote}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
