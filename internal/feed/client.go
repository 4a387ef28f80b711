// Package feed consumes the SX.bet realtime channels over WebSocket: one
// order-book channel per market plus one channel carrying the maker's own
// order updates.
//
// Channel payloads are arrays of fixed-position fields. The field order is a
// protocol contract; records are decoded positionally against the index
// constants below and malformed records are logged and dropped.
package feed

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Positional field indices within one order record.
const (
	fieldOrderHash = iota
	fieldStatus
	fieldFillAmount
	fieldMaker
	fieldTotalBetSize
	fieldPercentageOdds
	fieldAPIExpiry
	fieldExpiry
	fieldExecutor
	fieldOutcomeOne
	fieldBaseToken
	fieldMarketHash
	recordFieldCount
)

const reconnectDelay = 5 * time.Second

// OrderRecord is one decoded order update.
type OrderRecord struct {
	OrderHash                string
	MarketHash               string
	Maker                    string
	BaseToken                string
	Executor                 string
	Active                   bool
	FillAmount               *big.Int
	TotalBetSize             *big.Int
	PercentageOdds           *big.Int
	APIExpiry                int64
	Expiry                   int64
	IsMakerBettingOutcomeOne bool
}

// Update is one decoded channel message.
type Update struct {
	Channel string
	Orders  []OrderRecord
}

// Client manages the WebSocket connection and subscriptions.
type Client struct {
	url         string
	conn        *websocket.Conn
	mu          sync.Mutex
	isConnected bool
	subscribed  map[string]bool

	onUpdate func(Update)

	stopCh chan struct{}
}

// NewClient creates a feed client for the given WebSocket URL.
func NewClient(url string) *Client {
	return &Client{
		url:        url,
		subscribed: make(map[string]bool),
		stopCh:     make(chan struct{}),
	}
}

// OnUpdate sets the callback invoked for every decoded channel message. The
// callback runs on the read goroutine and must hand off quickly.
func (c *Client) OnUpdate(callback func(Update)) {
	c.onUpdate = callback
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isConnected {
		return nil
	}

	log.Info().Str("url", c.url).Msg("Connecting to SX.bet WebSocket...")

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	c.conn = conn
	c.isConnected = true

	go c.readMessages()

	log.Info().Msg("Connected to SX.bet WebSocket")
	return nil
}

// SubscribeMarket subscribes to a market's order-book channel.
func (c *Client) SubscribeMarket(marketHash string) error {
	return c.subscribe("order_book:" + marketHash)
}

// SubscribeOwnOrders subscribes to the maker's own-order channel for a base
// token.
func (c *Client) SubscribeOwnOrders(baseToken, maker string) error {
	return c.subscribe(fmt.Sprintf("active_orders:%s:%s", baseToken, maker))
}

// UnsubscribeMarket drops a market's order-book channel.
func (c *Client) UnsubscribeMarket(marketHash string) error {
	channel := "order_book:" + marketHash

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected || !c.subscribed[channel] {
		delete(c.subscribed, channel)
		return nil
	}

	msg := map[string]string{"type": "unsubscribe", "channel": channel}
	msgBytes, _ := json.Marshal(msg)
	if err := c.conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
		return fmt.Errorf("unsubscribe failed: %w", err)
	}

	delete(c.subscribed, channel)
	return nil
}

func (c *Client) subscribe(channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected {
		return fmt.Errorf("not connected")
	}
	if c.subscribed[channel] {
		return nil
	}

	msg := map[string]string{"type": "subscribe", "channel": channel}
	msgBytes, _ := json.Marshal(msg)
	if err := c.conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	c.subscribed[channel] = true
	log.Info().Str("channel", channel).Msg("Subscribed to feed channel")
	return nil
}

func (c *Client) readMessages() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
			}
			log.Error().Err(err).Msg("WebSocket read error")
			c.handleDisconnect()
			return
		}

		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg struct {
		Channel string            `json:"channel"`
		Data    []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Channel == "" {
		return
	}

	update := Update{Channel: msg.Channel}
	for _, raw := range msg.Data {
		record, err := decodeRecord(raw)
		if err != nil {
			log.Warn().Err(err).Str("channel", msg.Channel).Msg("malformed feed record, dropped")
			continue
		}
		update.Orders = append(update.Orders, record)
	}

	if len(update.Orders) > 0 && c.onUpdate != nil {
		c.onUpdate(update)
	}
}

// decodeRecord decodes one positional order array.
func decodeRecord(raw json.RawMessage) (OrderRecord, error) {
	var fields []interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return OrderRecord{}, fmt.Errorf("record is not an array: %w", err)
	}
	if len(fields) < recordFieldCount {
		return OrderRecord{}, fmt.Errorf("record has %d fields, want %d", len(fields), recordFieldCount)
	}

	rec := OrderRecord{}
	var err error

	if rec.OrderHash, err = stringField(fields, fieldOrderHash); err != nil {
		return OrderRecord{}, err
	}
	status, err := stringField(fields, fieldStatus)
	if err != nil {
		return OrderRecord{}, err
	}
	rec.Active = status == "ACTIVE"

	if rec.FillAmount, err = bigField(fields, fieldFillAmount); err != nil {
		return OrderRecord{}, err
	}
	if rec.Maker, err = stringField(fields, fieldMaker); err != nil {
		return OrderRecord{}, err
	}
	if rec.TotalBetSize, err = bigField(fields, fieldTotalBetSize); err != nil {
		return OrderRecord{}, err
	}
	if rec.PercentageOdds, err = bigField(fields, fieldPercentageOdds); err != nil {
		return OrderRecord{}, err
	}
	if rec.APIExpiry, err = intField(fields, fieldAPIExpiry); err != nil {
		return OrderRecord{}, err
	}
	if rec.Expiry, err = intField(fields, fieldExpiry); err != nil {
		return OrderRecord{}, err
	}
	if rec.Executor, err = stringField(fields, fieldExecutor); err != nil {
		return OrderRecord{}, err
	}
	outcomeOne, ok := fields[fieldOutcomeOne].(bool)
	if !ok {
		return OrderRecord{}, fmt.Errorf("field %d: not a bool", fieldOutcomeOne)
	}
	rec.IsMakerBettingOutcomeOne = outcomeOne

	if rec.BaseToken, err = stringField(fields, fieldBaseToken); err != nil {
		return OrderRecord{}, err
	}
	if rec.MarketHash, err = stringField(fields, fieldMarketHash); err != nil {
		return OrderRecord{}, err
	}
	return rec, nil
}

func stringField(fields []interface{}, idx int) (string, error) {
	s, ok := fields[idx].(string)
	if !ok {
		return "", fmt.Errorf("field %d: not a string", idx)
	}
	return s, nil
}

func bigField(fields []interface{}, idx int) (*big.Int, error) {
	s, err := stringField(fields, idx)
	if err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("field %d: not a decimal integer: %q", idx, s)
	}
	return v, nil
}

func intField(fields []interface{}, idx int) (int64, error) {
	f, ok := fields[idx].(float64)
	if !ok {
		return 0, fmt.Errorf("field %d: not a number", idx)
	}
	return int64(f), nil
}

func (c *Client) handleDisconnect() {
	c.mu.Lock()
	c.isConnected = false
	channels := make([]string, 0, len(c.subscribed))
	for ch := range c.subscribed {
		channels = append(channels, ch)
	}
	c.subscribed = make(map[string]bool)
	c.mu.Unlock()

	log.Warn().Msg("WebSocket disconnected, reconnecting in 5s...")

	select {
	case <-time.After(reconnectDelay):
	case <-c.stopCh:
		return
	}

	if err := c.Connect(); err != nil {
		log.Error().Err(err).Msg("Reconnect failed")
		c.handleDisconnect()
		return
	}

	// Re-subscribe everything that was live before the drop.
	for _, ch := range channels {
		if err := c.subscribe(ch); err != nil {
			log.Error().Err(err).Str("channel", ch).Msg("Resubscribe failed")
		}
	}
}

// Close tears down the connection.
func (c *Client) Close() {
	close(c.stopCh)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
	}
	c.isConnected = false
}

// IsConnected returns connection status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}
