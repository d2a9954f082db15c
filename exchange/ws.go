package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"jax-feed/domain/marketdata"
	"jax-feed/libs/observability"
	"jax-feed/libs/workerqueue"
)

// connState is the WS client's reconnect state machine. It only ever moves
// forward: Disconnected -> Connecting -> Connected -> (error) -> Connecting
// ... -> Stopped. There is no backoff escalation; every reconnect attempt
// waits the same fixed delay.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateStopped
)

const reconnectDelay = 5 * time.Second

// wsMessage is whatever the reader loop decoded off the wire, tagged by
// kind so the consumer worker can dispatch it without re-touching the
// connection.
type wsMessage struct {
	trade     *marketdata.Trade
	orderBook *marketdata.OrderBook
}

// wsAdapter is the exchange-specific half of a WSClient: URL/subscription
// construction and wire decoding. Reconnection, the reader/consumer split,
// and orderbook sampling are shared transport concerns in wsClient.
type wsAdapter interface {
	name() string
	dialURL(symbols []string) string
	subscribe(conn *websocket.Conn, symbols []string) error
	decode(raw []byte) (*wsMessage, error)
}

// WSConfig parameterizes a wsClient.
type WSConfig struct {
	QueueSize               int
	ConsumerWorkers         int
	OrderBookSampleInterval time.Duration
}

// DefaultWSConfig matches spec's queue_max_size / consumer_workers /
// orderbook_sample_interval_ms defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		QueueSize:               10000,
		ConsumerWorkers:         3,
		OrderBookSampleInterval: time.Second,
	}
}

// wsClient is the generic WebSocket transport shared by every concrete
// exchange adapter. The reader goroutine only reads and decodes; it never
// invokes a callback directly, so a slow subscriber callback cannot stall
// the socket read loop.
type wsClient struct {
	adapter wsAdapter
	cfg     WSConfig

	mu      sync.RWMutex
	conn    *websocket.Conn
	state   connState
	symbols []string

	queue *workerqueue.Queue[wsMessage]

	cbMu         sync.RWMutex
	onTrade      TradeCallback
	onOrderBook  OrderBookCallback

	sampleMu   sync.Mutex
	lastSample map[string]time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewWSClient builds a WSClient for the named exchange.
func NewWSClient(name string, cfg WSConfig) (WSClient, error) {
	adapter, err := wsAdapterFor(name)
	if err != nil {
		return nil, err
	}
	if cfg.QueueSize <= 0 || cfg.ConsumerWorkers <= 0 {
		cfg = DefaultWSConfig()
	}

	c := &wsClient{
		adapter:    adapter,
		cfg:        cfg,
		lastSample: make(map[string]time.Time),
		stopCh:     make(chan struct{}),
	}
	c.queue = workerqueue.New(workerqueue.Config{
		Name:    "streamingest." + adapter.name(),
		Size:    cfg.QueueSize,
		Workers: cfg.ConsumerWorkers,
		Thresholds: workerqueue.DropThresholds{
			WarnPerSec:  0,
			PanicPerSec: 10,
		},
	}, c.consume)
	return c, nil
}

func (c *wsClient) OnTrade(cb TradeCallback) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onTrade = cb
}

func (c *wsClient) OnOrderBook(cb OrderBookCallback) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onOrderBook = cb
}

// Connect dials the socket once and issues the subscription plan. Start must
// be called afterward to begin reading.
func (c *wsClient) Connect(ctx context.Context, symbols []string) error {
	c.mu.Lock()
	c.symbols = symbols
	c.mu.Unlock()
	return c.dial(ctx)
}

func (c *wsClient) dial(ctx context.Context) error {
	c.setState(stateConnecting)

	url := c.adapter.dialURL(c.symbolsSnapshot())
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		c.setState(stateDisconnected)
		return err
	}
	if err := c.adapter.subscribe(conn, c.symbolsSnapshot()); err != nil {
		conn.Close()
		c.setState(stateDisconnected)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(stateConnected)
	return nil
}

func (c *wsClient) symbolsSnapshot() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.symbols
}

func (c *wsClient) setState(s connState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *wsClient) currentState() connState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Start runs the reader loop until Stop is called, reconnecting with a fixed
// delay on every disconnect.
func (c *wsClient) Start(ctx context.Context) {
	for {
		select {
		case <-c.stopCh:
			c.setState(stateStopped)
			return
		case <-ctx.Done():
			c.setState(stateStopped)
			return
		default:
		}

		if c.currentState() != stateConnected {
			if err := c.dial(ctx); err != nil {
				observability.LogEvent(ctx, "warn", "ws_reconnect_failed", map[string]any{
					"exchange": c.adapter.name(),
					"error":    err.Error(),
				})
				select {
				case <-time.After(reconnectDelay):
				case <-c.stopCh:
					c.setState(stateStopped)
					return
				case <-ctx.Done():
					c.setState(stateStopped)
					return
				}
				continue
			}
		}

		c.readLoop(ctx)

		select {
		case <-c.stopCh:
			c.setState(stateStopped)
			return
		case <-ctx.Done():
			c.setState(stateStopped)
			return
		default:
			c.setState(stateDisconnected)
		}
	}
}

// readLoop only reads frames and decodes them; dispatch to callbacks happens
// on the queue's consumer workers so a slow callback never stalls the read.
func (c *wsClient) readLoop(ctx context.Context) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			observability.LogEvent(ctx, "warn", "ws_read_error", map[string]any{
				"exchange": c.adapter.name(),
				"error":    err.Error(),
			})
			return
		}

		msg, err := c.adapter.decode(raw)
		if err != nil {
			observability.LogEvent(ctx, "debug", "ws_decode_error", map[string]any{
				"exchange": c.adapter.name(),
				"error":    err.Error(),
			})
			continue
		}
		if msg == nil {
			continue
		}
		if msg.orderBook != nil && !c.shouldSample(msg.orderBook.Symbol) {
			continue
		}
		c.queue.Enqueue(ctx, *msg)
	}
}

// shouldSample enforces at most one order book update per symbol per
// OrderBookSampleInterval; trades are never sampled.
func (c *wsClient) shouldSample(symbol string) bool {
	c.sampleMu.Lock()
	defer c.sampleMu.Unlock()
	now := time.Now()
	last, ok := c.lastSample[symbol]
	if ok && now.Sub(last) < c.cfg.OrderBookSampleInterval {
		return false
	}
	c.lastSample[symbol] = now
	return true
}

func (c *wsClient) consume(ctx context.Context, msg wsMessage) error {
	c.cbMu.RLock()
	onTrade := c.onTrade
	onOrderBook := c.onOrderBook
	c.cbMu.RUnlock()

	if msg.trade != nil && onTrade != nil {
		onTrade(*msg.trade)
	}
	if msg.orderBook != nil && onOrderBook != nil {
		onOrderBook(*msg.orderBook)
	}
	return nil
}

func (c *wsClient) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
		c.queue.Close()
	})
}
