package position

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cryptosignals/engine/internal/logging"
)

// MarkPriceStream is the concrete PriceStream backing the Position
// Monitor's tick source: one WebSocket worker per subscribed symbol
// against Binance's futures mark-price stream, with a reconnect/
// keepalive/self-terminate lifecycle.
//
// The connect/readLoop/reconnect-backoff/keepalive shape is generalized from
// one account-wide user-data socket to one socket per symbol.
type MarkPriceStream struct {
	baseURL string
	log     *logging.Logger

	mu      sync.Mutex
	workers map[string]*tickWorker
}

func NewMarkPriceStream(testnet bool, log *logging.Logger) *MarkPriceStream {
	baseURL := "wss://fstream.binance.com"
	if testnet {
		baseURL = "wss://stream.binancefuture.com"
	}
	return &MarkPriceStream{
		baseURL: baseURL,
		log:     log,
		workers: make(map[string]*tickWorker),
	}
}

// Subscribe lazily spawns a worker for symbol on first subscriber and
// returns an unsubscribe func that tears the worker down once its last
// subscriber leaves.
func (s *MarkPriceStream) Subscribe(symbol string, onTick func(price float64)) (func(), error) {
	s.mu.Lock()
	w, ok := s.workers[symbol]
	if !ok {
		w = newTickWorker(s.baseURL, symbol, s.log)
		s.workers[symbol] = w
		go w.run()
	}
	s.mu.Unlock()

	id := w.addListener(onTick)
	return func() {
		remaining := w.removeListener(id)
		if remaining == 0 {
			s.mu.Lock()
			delete(s.workers, symbol)
			s.mu.Unlock()
			w.stop()
		}
	}, nil
}

type tickWorker struct {
	baseURL string
	symbol  string
	log     *logging.Logger

	stopChan chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	listeners map[int]func(price float64)
	nextID    int
}

func newTickWorker(baseURL, symbol string, log *logging.Logger) *tickWorker {
	return &tickWorker{
		baseURL:   baseURL,
		symbol:    symbol,
		log:       log,
		stopChan:  make(chan struct{}),
		listeners: make(map[int]func(price float64)),
	}
}

func (w *tickWorker) addListener(fn func(price float64)) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = fn
	return id
}

// removeListener returns the remaining listener count.
func (w *tickWorker) removeListener(id int) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.listeners, id)
	return len(w.listeners)
}

func (w *tickWorker) stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

func (w *tickWorker) dispatch(price float64) {
	w.mu.Lock()
	fns := make([]func(float64), 0, len(w.listeners))
	for _, fn := range w.listeners {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(price)
	}
}

// run connects and reconnects with a 3s backoff until stopped.
func (w *tickWorker) run() {
	streamURL := fmt.Sprintf("%s/ws/%s@markPrice@1s", w.baseURL, toLowerSymbol(w.symbol))

	for {
		select {
		case <-w.stopChan:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(streamURL, nil)
		if err != nil {
			if w.log != nil {
				w.log.Warn("position: mark price stream dial failed", "symbol", w.symbol, "error", err)
			}
			if !w.sleepOrStop(3 * time.Second) {
				return
			}
			continue
		}

		done := make(chan struct{})
		go w.keepalive(conn, done)
		w.readLoop(conn)
		close(done)
		conn.Close()

		select {
		case <-w.stopChan:
			return
		default:
		}
		if !w.sleepOrStop(3 * time.Second) {
			return
		}
	}
}

func (w *tickWorker) sleepOrStop(d time.Duration) bool {
	select {
	case <-w.stopChan:
		return false
	case <-time.After(d):
		return true
	}
}

// keepalive pings every 20s.
func (w *tickWorker) keepalive(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (w *tickWorker) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		price, ok := parseMarkPrice(message)
		if !ok {
			continue
		}
		w.dispatch(price)
	}
}

type markPriceEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
}

func parseMarkPrice(message []byte) (float64, bool) {
	var evt markPriceEvent
	if err := json.Unmarshal(message, &evt); err != nil {
		return 0, false
	}
	if evt.Price == "" {
		return 0, false
	}
	price, err := strconv.ParseFloat(evt.Price, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

func toLowerSymbol(symbol string) string {
	out := make([]byte, len(symbol))
	for i := 0; i < len(symbol); i++ {
		c := symbol[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
