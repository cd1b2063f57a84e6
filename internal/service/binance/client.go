package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"LOBFuse/internal/domain/models"
	drepo "LOBFuse/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Client implements a MarketStream backed by the Binance combined stream
// endpoint, multiplexing the depth diff and trade streams of one symbol.
type Client struct {
	websocketURL   string
	symbol         string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool
}

// New creates a new Binance MarketStream for one symbol.
func New(websocketURL, symbol string, reconnectDelay, pingInterval time.Duration) drepo.MarketStream {
	return &Client{
		websocketURL:   websocketURL,
		symbol:         strings.ToLower(symbol),
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

func (c *Client) streams() []string {
	return []string{c.symbol + "@depth@100ms", c.symbol + "@trade"}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?streams=%s", c.websocketURL, strings.Join(c.streams(), "/"))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	log.Printf("binance: connected %s", c.symbol)
	return nil
}

// Subscribe sends an explicit SUBSCRIBE frame for the configured streams.
// The combined endpoint already carries them via the URL, so this doubles
// as a liveness check on the socket.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("binance not connected")
	}
	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": c.streams(),
		"id":     1,
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.symbol, err)
	}
	log.Printf("binance: subscribed %v", c.streams())
	return nil
}

type wsEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type wsDepthUpdate struct {
	EventTime int64      `json:"E"` // ms
	Bids      [][]string `json:"b"`
	Asks      [][]string `json:"a"`
}

type wsTrade struct {
	Price      string `json:"p"`
	Qty        string `json:"q"`
	TradeTime  int64  `json:"T"` // ms
	BuyerMaker bool   `json:"m"`
}

// Read streams parsed book updates, trade prints and errors.
func (c *Client) Read(ctx context.Context) (<-chan *models.BookUpdate, <-chan *models.TradePrint, <-chan error) {
	books := make(chan *models.BookUpdate, 1024)
	trades := make(chan *models.TradePrint, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(books)
		defer close(trades)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("binance conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("binance read: %w", err)
					return
				}
				var env wsEnvelope
				if err := json.Unmarshal(b, &env); err != nil || env.Stream == "" {
					// subscribe acks and other control frames
					continue
				}
				switch {
				case strings.Contains(env.Stream, "@depth"):
					upd, err := parseDepth(env.Data)
					if err != nil {
						continue
					}
					select {
					case books <- upd:
					default:
						// drop on backpressure
					}
				case strings.Contains(env.Stream, "@trade"):
					tr, err := parseTrade(env.Data)
					if err != nil {
						continue
					}
					select {
					case trades <- tr:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return books, trades, errs
}

func parseDepth(raw json.RawMessage) (*models.BookUpdate, error) {
	var d wsDepthUpdate
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	bids, err := parseLevels(d.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := parseLevels(d.Asks)
	if err != nil {
		return nil, err
	}
	return &models.BookUpdate{
		Timestamp: time.UnixMilli(d.EventTime),
		Bids:      bids,
		Asks:      asks,
	}, nil
}

func parseLevels(rows [][]string) ([]models.PriceLevel, error) {
	levels := make([]models.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("malformed level %v", row)
		}
		price, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, err
		}
		qty, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, err
		}
		levels = append(levels, models.PriceLevel{Price: price, Qty: qty})
	}
	return levels, nil
}

func parseTrade(raw json.RawMessage) (*models.TradePrint, error) {
	var t wsTrade
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return nil, err
	}
	qty, err := strconv.ParseFloat(t.Qty, 64)
	if err != nil {
		return nil, err
	}
	side := models.SideBuy
	if t.BuyerMaker {
		// buyer was the resting order, so the aggressor sold
		side = models.SideSell
	}
	return &models.TradePrint{
		Timestamp: time.UnixMilli(t.TradeTime),
		Price:     price,
		Qty:       qty,
		Side:      side,
	}, nil
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected }
