package marketdata

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cryptosignals/engine/internal/logging"
)

const (
	dealStreamReconnectDelay = 3 * time.Second
	dealStreamKeepalive      = 20 * time.Second
)

// DealHandler receives normalised deals off the stream. Called from the
// stream's own read goroutine; handlers that touch shared state must
// synchronise themselves. Deals for symbols not passed to Subscribe are
// dropped before the handler is called.
type DealHandler func(Deal)

// DealStream is the inbound WebSocket worker for the exchange deal feed
// Reconnect-with-backoff, keepalive ping, and type-sniff
// dispatch follow the same connect/readLoop shape as the mark-price stream.
type DealStream struct {
	mu        sync.RWMutex
	url       string
	dialer    *websocket.Dialer
	conn      *websocket.Conn
	running   bool
	stopCh    chan struct{}
	symbols   map[string]bool
	onDeal    DealHandler
	log       *logging.Logger
}

// NewDealStream creates a deal-stream worker against wsURL (the exchange's
// public market WebSocket endpoint).
func NewDealStream(wsURL string, log *logging.Logger) *DealStream {
	return &DealStream{
		url:     wsURL,
		dialer:  websocket.DefaultDialer,
		stopCh:  make(chan struct{}),
		symbols: make(map[string]bool),
		log:     log,
	}
}

// OnDeal sets the handler invoked for every incoming deal.
func (s *DealStream) OnDeal(h DealHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDeal = h
}

// Subscribe marks symbols of interest. Incoming messages are filtered
// client-side against them, and on each connect the stream sends one
// sub.deal frame per marked symbol; a symbol marked while connected gets
// its frame on the next reconnect.
func (s *DealStream) Subscribe(symbols ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range symbols {
		s.symbols[sym] = true
	}
}

// Start begins the reconnect loop and keepalive loop in background
// goroutines. Returns immediately.
func (s *DealStream) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	go s.connectLoop()
	go s.keepaliveLoop()
}

// Stop tears down the connection and signals both loops to exit.
func (s *DealStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *DealStream) isRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *DealStream) connectLoop() {
	for s.isRunning() {
		conn, _, err := s.dialer.Dial(s.url, nil)
		if err != nil {
			s.log.Warn("deal stream connect failed, retrying", "error", err, "delay", dealStreamReconnectDelay)
			select {
			case <-time.After(dealStreamReconnectDelay):
			case <-s.stopCh:
				return
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		s.sendSubscribe(conn)
		s.readLoop(conn)

		if !s.isRunning() {
			return
		}
		s.log.Warn("deal stream connection lost, reconnecting", "delay", dealStreamReconnectDelay)
		select {
		case <-time.After(dealStreamReconnectDelay):
		case <-s.stopCh:
			return
		}
	}
}

func (s *DealStream) sendSubscribe(conn *websocket.Conn) {
	s.mu.RLock()
	symbols := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		symbols = append(symbols, sym)
	}
	s.mu.RUnlock()

	for _, sym := range symbols {
		msg := map[string]any{
			"method": "sub.deal",
			"param":  map[string]string{"symbol": sym},
		}
		if err := conn.WriteJSON(msg); err != nil {
			s.log.Warn("deal stream subscribe failed", "symbol", sym, "error", err)
		}
	}
}

func (s *DealStream) keepaliveLoop() {
	ticker := time.NewTicker(dealStreamKeepalive)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				_ = conn.WriteJSON(map[string]string{"method": "ping"})
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *DealStream) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("deal stream read error", "error", err)
			}
			return
		}
		s.handleMessage(message)
	}
}

func (s *DealStream) handleMessage(message []byte) {
	var raw rawDealMessage
	if err := json.Unmarshal(message, &raw); err != nil {
		return
	}
	if raw.Channel != "push.deal" {
		return
	}

	s.mu.RLock()
	wanted := s.symbols[raw.Symbol]
	handler := s.onDeal
	s.mu.RUnlock()

	if !wanted || handler == nil {
		return
	}

	for _, entry := range raw.Data {
		handler(Deal{
			Symbol:    raw.Symbol,
			Price:     entry.Price,
			Volume:    entry.Volume,
			TakerBuy:  entry.TakerSide == 1,
			Timestamp: time.UnixMilli(entry.Millis),
		})
	}
}
