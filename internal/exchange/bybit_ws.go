package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// PositionEvent is a single position row pushed over the private stream
type PositionEvent struct {
	Symbol        string
	Side          Side
	Size          float64
	EntryPrice    float64
	Leverage      int
	UnrealizedPnL float64
	StopLoss      float64
	Closed        bool
}

// BybitPrivateWS maintains the authenticated WebSocket connection to Bybit's
// private stream and forwards position updates to a callback. The connection
// self-heals: on any read error it reconnects with backoff, re-authenticates
// and re-subscribes.
type BybitPrivateWS struct {
	mu sync.RWMutex

	apiKey    string
	secretKey string
	wsURL     string

	conn      *websocket.Conn
	writeMu   sync.Mutex // gorilla allows one concurrent writer
	isRunning bool
	stopChan  chan struct{}

	onPositionUpdate func([]PositionEvent)
	onConnected      func()

	pingInterval time.Duration
	staleAfter   time.Duration
	baseBackoff  time.Duration

	reconnects    int
	lastMsgTime   time.Time
	authenticated bool
}

// NewBybitPrivateWS creates a private stream client
func NewBybitPrivateWS(apiKey, secretKey, wsURL string) *BybitPrivateWS {
	if wsURL == "" {
		wsURL = "wss://stream.bybit.com/v5/private"
	}
	return &BybitPrivateWS{
		apiKey:       apiKey,
		secretKey:    secretKey,
		wsURL:        wsURL,
		stopChan:     make(chan struct{}),
		pingInterval: 20 * time.Second,
		staleAfter:   75 * time.Second,
		baseBackoff:  10 * time.Second,
	}
}

// SetPositionUpdateCallback sets the callback for position pushes
func (s *BybitPrivateWS) SetPositionUpdateCallback(cb func([]PositionEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPositionUpdate = cb
}

// SetConnectedCallback sets the callback fired after each successful
// auth+subscribe, including reconnects. Used to trigger REST reconciliation.
func (s *BybitPrivateWS) SetConnectedCallback(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnected = cb
}

// Start begins the connection loop
func (s *BybitPrivateWS) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go s.connectLoop()

	log.Printf("[BYBIT-WS] Private stream started")
	return nil
}

// Stop closes the connection and halts reconnection
func (s *BybitPrivateWS) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	s.isRunning = false
	close(s.stopChan)

	if s.conn != nil {
		s.conn.Close()
	}

	log.Printf("[BYBIT-WS] Private stream stopped")
}

// IsRunning reports whether the stream loop is active
func (s *BybitPrivateWS) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// IsAuthenticated reports whether the current connection passed auth
func (s *BybitPrivateWS) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// connectLoop dials, authenticates and subscribes; on failure it backs off
// starting at baseBackoff and retries forever until Stop
func (s *BybitPrivateWS) connectLoop() {
	backoff := s.baseBackoff
	const maxBackoff = 5 * time.Minute

	for {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		conn, _, err := websocket.DefaultDialer.Dial(s.wsURL, nil)
		if err != nil {
			log.Printf("[BYBIT-WS] Connection failed: %v, retrying in %s", err, backoff)
			if !s.sleepOrStop(backoff) {
				return
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}

		if err := s.authenticate(conn); err != nil {
			log.Printf("[BYBIT-WS] Auth failed: %v, retrying in %s", err, backoff)
			conn.Close()
			if !s.sleepOrStop(backoff) {
				return
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}

		if err := s.subscribe(conn); err != nil {
			log.Printf("[BYBIT-WS] Subscribe failed: %v, retrying in %s", err, backoff)
			conn.Close()
			if !s.sleepOrStop(backoff) {
				return
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.authenticated = true
		s.reconnects++
		s.lastMsgTime = time.Now()
		onConnected := s.onConnected
		s.mu.Unlock()

		log.Printf("[BYBIT-WS] Connected and subscribed to position topic")
		backoff = s.baseBackoff

		if onConnected != nil {
			go onConnected()
		}

		// One ping task per connection; it exits with the read loop so a
		// reconnect never stacks a second sender.
		pingDone := make(chan struct{})
		go s.pingLoop(conn, pingDone)

		s.readLoop(conn)
		close(pingDone)

		s.mu.Lock()
		s.authenticated = false
		running = s.isRunning
		s.mu.Unlock()
		if !running {
			return
		}

		log.Printf("[BYBIT-WS] Connection lost, reconnecting in %s", backoff)
		if !s.sleepOrStop(backoff) {
			return
		}
	}
}

func (s *BybitPrivateWS) writeJSON(conn *websocket.Conn, v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (s *BybitPrivateWS) sleepOrStop(d time.Duration) bool {
	select {
	case <-s.stopChan:
		return false
	case <-time.After(d):
		return true
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// authenticate sends the auth frame and waits for the success response.
// The signature is HMAC-SHA256 over "GET/realtime" + expires, where expires
// is a millisecond timestamp in the near future.
func (s *BybitPrivateWS) authenticate(conn *websocket.Conn) error {
	expires := time.Now().Add(10 * time.Second).UnixMilli()

	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte("GET/realtime" + strconv.FormatInt(expires, 10)))
	signature := hex.EncodeToString(mac.Sum(nil))

	authMsg := map[string]interface{}{
		"op":   "auth",
		"args": []interface{}{s.apiKey, expires, signature},
	}
	if err := conn.WriteJSON(authMsg); err != nil {
		return fmt.Errorf("error sending auth frame: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	_, message, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("error reading auth response: %w", err)
	}

	var resp struct {
		Op      string `json:"op"`
		Success bool   `json:"success"`
		RetMsg  string `json:"ret_msg"`
	}
	if err := json.Unmarshal(message, &resp); err != nil {
		return fmt.Errorf("error parsing auth response: %w", err)
	}
	if resp.Op != "auth" || !resp.Success {
		return fmt.Errorf("auth rejected: %s", resp.RetMsg)
	}
	return nil
}

// subscribe requests the position topic
func (s *BybitPrivateWS) subscribe(conn *websocket.Conn) error {
	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": []string{"position"},
	}
	if err := conn.WriteJSON(subMsg); err != nil {
		return fmt.Errorf("error sending subscribe frame: %w", err)
	}
	return nil
}

// pingLoop sends an application-level ping on every interval. Bybit drops
// connections idle past 30 seconds. Each tick also checks the stream for
// staleness: a half-open connection keeps accepting pings without delivering
// frames, so when nothing arrived for staleAfter the connection is forced
// closed and the connect loop takes over.
func (s *BybitPrivateWS) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.mu.RLock()
			last := s.lastMsgTime
			s.mu.RUnlock()
			if silent := time.Since(last); silent > s.staleAfter {
				log.Printf("[BYBIT-WS] No frames for %s, forcing reconnect", silent.Round(time.Second))
				conn.Close()
				return
			}

			ping := map[string]interface{}{
				"op":     "ping",
				"req_id": "pid_" + strconv.FormatInt(time.Now().UnixMilli(), 10),
			}
			if err := s.writeJSON(conn, ping); err != nil {
				log.Printf("[BYBIT-WS] Ping failed: %v", err)
				conn.Close()
				return
			}
		}
	}
}

// readLoop reads frames until the connection dies
func (s *BybitPrivateWS) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[BYBIT-WS] Connection closed normally")
			} else {
				log.Printf("[BYBIT-WS] Read error: %v", err)
			}
			return
		}

		s.mu.Lock()
		s.lastMsgTime = time.Now()
		s.mu.Unlock()

		s.handleMessage(conn, message)
	}
}

// handleMessage dispatches pongs, server pings, ack frames and topic pushes
func (s *BybitPrivateWS) handleMessage(conn *websocket.Conn, message []byte) {
	var frame struct {
		Op      string          `json:"op"`
		Topic   string          `json:"topic"`
		Success bool            `json:"success"`
		RetMsg  string          `json:"ret_msg"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(message, &frame); err != nil {
		log.Printf("[BYBIT-WS] Failed to parse frame: %v", err)
		return
	}

	switch {
	case frame.Op == "pong" || frame.RetMsg == "pong":
		return
	case frame.Op == "ping":
		pong := map[string]interface{}{
			"op":           "pong",
			"timestamp_e6": time.Now().UnixMicro(),
		}
		if err := s.writeJSON(conn, pong); err != nil {
			log.Printf("[BYBIT-WS] Pong failed: %v", err)
		}
	case frame.Op == "subscribe":
		if !frame.Success {
			log.Printf("[BYBIT-WS] Subscription rejected: %s", frame.RetMsg)
		}
	case frame.Topic == "position":
		s.handlePositionPush(frame.Data)
	}
}

// handlePositionPush converts the raw topic data into PositionEvents.
// A row with size "0" marks the position as closed on the venue side.
func (s *BybitPrivateWS) handlePositionPush(data json.RawMessage) {
	var rows []struct {
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Size          string `json:"size"`
		EntryPrice    string `json:"entryPrice"`
		Leverage      string `json:"leverage"`
		UnrealisedPnl string `json:"unrealisedPnl"`
		StopLoss      string `json:"stopLoss"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		log.Printf("[BYBIT-WS] Failed to parse position data: %v", err)
		return
	}

	events := make([]PositionEvent, 0, len(rows))
	for _, r := range rows {
		size := parseFloat(r.Size)
		side := SideBuy
		if r.Side == "Sell" {
			side = SideSell
		}
		lev, _ := strconv.Atoi(r.Leverage)
		events = append(events, PositionEvent{
			Symbol:        r.Symbol,
			Side:          side,
			Size:          size,
			EntryPrice:    parseFloat(r.EntryPrice),
			Leverage:      lev,
			UnrealizedPnL: parseFloat(r.UnrealisedPnl),
			StopLoss:      parseFloat(r.StopLoss),
			Closed:        size == 0,
		})
	}
	if len(events) == 0 {
		return
	}

	s.mu.RLock()
	cb := s.onPositionUpdate
	s.mu.RUnlock()
	if cb != nil {
		cb(events)
	}
}

// GetStats returns stream statistics for the status endpoint
func (s *BybitPrivateWS) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"running":       s.isRunning,
		"authenticated": s.authenticated,
		"reconnects":    s.reconnects,
		"last_message":  s.lastMsgTime.Format(time.RFC3339),
	}
}
