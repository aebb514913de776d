package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const bybitRecvWindow = "5000"

// BybitClient is the Bybit V5 REST adapter
type BybitClient struct {
	apiKey     string
	secretKey  string
	baseURL    string
	category   string // "linear" or "spot"
	httpClient *http.Client
}

// NewBybitClient creates a Bybit V5 client for the linear (USDT perpetual) category
func NewBybitClient(apiKey, secretKey, baseURL string) *BybitClient {
	if baseURL == "" {
		baseURL = "https://api.bybit.com"
	}
	return &BybitClient{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		category:   "linear",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *BybitClient) Name() string { return "BYBIT" }

// bybitEnvelope is the common V5 response shape
type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

// GetKlines fetches candlesticks. Bybit returns klines newest-first as arrays
// of strings [start, open, high, low, close, volume, turnover]; they are
// reversed into chronological order here.
func (c *BybitClient) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("category", c.category)
	params.Set("symbol", symbol)
	params.Set("interval", bybitInterval(interval))
	params.Set("limit", strconv.Itoa(limit))

	result, err := c.get("/v5/market/kline", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		List [][]string `json:"list"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	klines := make([]Kline, 0, len(payload.List))
	for i := len(payload.List) - 1; i >= 0; i-- {
		row := payload.List[i]
		if len(row) < 6 {
			continue
		}
		openTime, _ := strconv.ParseInt(row[0], 10, 64)
		klines = append(klines, Kline{
			OpenTime: openTime,
			Open:     parseFloat(row[1]),
			High:     parseFloat(row[2]),
			Low:      parseFloat(row[3]),
			Close:    parseFloat(row[4]),
			Volume:   parseFloat(row[5]),
		})
	}
	return klines, nil
}

// GetCurrentPrice fetches result.list[0].lastPrice from the tickers endpoint
func (c *BybitClient) GetCurrentPrice(symbol string) (float64, error) {
	ticker, err := c.GetTicker(symbol)
	if err != nil {
		return 0, err
	}
	return ticker.LastPrice, nil
}

// GetTicker fetches the latest ticker for a symbol
func (c *BybitClient) GetTicker(symbol string) (*Ticker, error) {
	params := url.Values{}
	params.Set("category", c.category)
	params.Set("symbol", symbol)

	result, err := c.get("/v5/market/tickers", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
			Volume24h string `json:"volume24h"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("error parsing ticker: %w", err)
	}
	if len(payload.List) == 0 {
		return nil, fmt.Errorf("no ticker data for %s", symbol)
	}

	return &Ticker{
		Symbol:    payload.List[0].Symbol,
		LastPrice: parseFloat(payload.List[0].LastPrice),
		Volume24h: parseFloat(payload.List[0].Volume24h),
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// GetEquity returns the total USDT equity of the unified account
func (c *BybitClient) GetEquity() (float64, error) {
	params := url.Values{}
	params.Set("accountType", "UNIFIED")

	result, err := c.getSigned("/v5/account/wallet-balance", params)
	if err != nil {
		return 0, err
	}

	var payload struct {
		List []struct {
			TotalEquity string `json:"totalEquity"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return 0, fmt.Errorf("error parsing wallet balance: %w", err)
	}
	if len(payload.List) == 0 {
		return 0, fmt.Errorf("empty wallet balance response")
	}
	return parseFloat(payload.List[0].TotalEquity), nil
}

// GetPositions lists open positions in the linear category
func (c *BybitClient) GetPositions() ([]Position, error) {
	params := url.Values{}
	params.Set("category", c.category)
	params.Set("settleCoin", "USDT")

	result, err := c.getSigned("/v5/position/list", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Side          string `json:"side"` // "Buy" / "Sell"
			Size          string `json:"size"`
			AvgPrice      string `json:"avgPrice"`
			Leverage      string `json:"leverage"`
			UnrealisedPnl string `json:"unrealisedPnl"`
			StopLoss      string `json:"stopLoss"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("error parsing positions: %w", err)
	}

	positions := make([]Position, 0, len(payload.List))
	for _, p := range payload.List {
		size := parseFloat(p.Size)
		if size == 0 {
			continue
		}
		side := SideBuy
		if strings.EqualFold(p.Side, "Sell") {
			side = SideSell
		}
		leverage, _ := strconv.Atoi(strings.SplitN(p.Leverage, ".", 2)[0])
		positions = append(positions, Position{
			Symbol:        p.Symbol,
			Side:          side,
			Size:          size,
			EntryPrice:    parseFloat(p.AvgPrice),
			Leverage:      leverage,
			UnrealizedPnL: parseFloat(p.UnrealisedPnl),
			StopLoss:      parseFloat(p.StopLoss),
			Exchange:      c.Name(),
		})
	}
	return positions, nil
}

// PlaceOrder submits an order. A stop loss is attached on the entry order when
// present; Bybit supports this natively via the stopLoss field.
func (c *BybitClient) PlaceOrder(req OrderRequest) (*Order, error) {
	body := map[string]interface{}{
		"category":  c.category,
		"symbol":    req.Symbol,
		"side":      bybitSide(req.Side),
		"orderType": bybitOrderType(req.Type),
		"qty":       formatFloat(req.Quantity),
	}
	if req.Type == OrderTypeLimit && req.Price > 0 {
		body["price"] = formatFloat(req.Price)
	}
	if req.StopLoss > 0 {
		body["stopLoss"] = formatFloat(req.StopLoss)
	}
	if req.ClientOrderID != "" {
		body["orderLinkId"] = req.ClientOrderID
	}
	if req.ReduceOnly {
		body["reduceOnly"] = true
	}

	result, err := c.postSigned("/v5/order/create", body)
	if err != nil {
		return nil, err
	}

	var payload struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}

	now := time.Now()
	return &Order{
		OrderID:       payload.OrderID,
		ClientOrderID: payload.OrderLinkID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Status:        OrderStatusNew,
		Price:         req.Price,
		Quantity:      req.Quantity,
		Exchange:      c.Name(),
		StrategyName:  req.StrategyName,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// CancelOrder cancels an order by venue id
func (c *BybitClient) CancelOrder(symbol, orderID string) (*Order, error) {
	body := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"orderId":  orderID,
	}

	if _, err := c.postSigned("/v5/order/cancel", body); err != nil {
		return nil, err
	}

	order, err := c.GetOrder(symbol, orderID)
	if err != nil {
		now := time.Now()
		return &Order{
			OrderID:   orderID,
			Symbol:    symbol,
			Status:    OrderStatusCanceled,
			Exchange:  c.Name(),
			UpdatedAt: now,
		}, nil
	}
	return order, nil
}

// GetOrder fetches a single order from the realtime endpoint
func (c *BybitClient) GetOrder(symbol, orderID string) (*Order, error) {
	params := url.Values{}
	params.Set("category", c.category)
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	result, err := c.getSigned("/v5/order/realtime", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		List []bybitOrder `json:"list"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("error parsing order: %w", err)
	}
	if len(payload.List) == 0 {
		return nil, ErrOrderNotFound
	}
	return payload.List[0].toOrder(c.Name()), nil
}

// GetOpenOrders lists open orders, optionally filtered by symbol
func (c *BybitClient) GetOpenOrders(symbol string) ([]Order, error) {
	params := url.Values{}
	params.Set("category", c.category)
	if symbol != "" {
		params.Set("symbol", symbol)
	} else {
		params.Set("settleCoin", "USDT")
	}
	params.Set("openOnly", "0")

	result, err := c.getSigned("/v5/order/realtime", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		List []bybitOrder `json:"list"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("error parsing open orders: %w", err)
	}

	orders := make([]Order, 0, len(payload.List))
	for _, o := range payload.List {
		orders = append(orders, *o.toOrder(c.Name()))
	}
	return orders, nil
}

// SetLeverage sets both buy and sell leverage for a symbol
func (c *BybitClient) SetLeverage(symbol string, leverage int) error {
	body := map[string]interface{}{
		"category":     c.category,
		"symbol":       symbol,
		"buyLeverage":  strconv.Itoa(leverage),
		"sellLeverage": strconv.Itoa(leverage),
	}
	_, err := c.postSigned("/v5/position/set-leverage", body)
	return err
}

// SetIsolatedMargin switches the margin mode for a symbol
func (c *BybitClient) SetIsolatedMargin(symbol string, isolated bool) error {
	tradeMode := 0
	if isolated {
		tradeMode = 1
	}
	body := map[string]interface{}{
		"category":  c.category,
		"symbol":    symbol,
		"tradeMode": tradeMode,
	}
	_, err := c.postSigned("/v5/position/switch-isolated", body)
	return err
}

// GetSymbolFilters fetches lot-size and tick-size metadata
func (c *BybitClient) GetSymbolFilters(symbol string) (*SymbolFilters, error) {
	params := url.Values{}
	params.Set("category", c.category)
	params.Set("symbol", symbol)

	result, err := c.get("/v5/market/instruments-info", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		List []struct {
			Symbol        string `json:"symbol"`
			LotSizeFilter struct {
				QtyStep     string `json:"qtyStep"`
				MinOrderQty string `json:"minOrderQty"`
			} `json:"lotSizeFilter"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("error parsing instruments info: %w", err)
	}
	if len(payload.List) == 0 {
		return nil, fmt.Errorf("no instrument info for %s", symbol)
	}

	info := payload.List[0]
	return &SymbolFilters{
		Symbol:   info.Symbol,
		QtyStep:  parseFloat(info.LotSizeFilter.QtyStep),
		TickSize: parseFloat(info.PriceFilter.TickSize),
		MinQty:   parseFloat(info.LotSizeFilter.MinOrderQty),
	}, nil
}

// ==================== HTTP plumbing ====================

func (c *BybitClient) get(path string, params url.Values) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	resp, err := c.httpClient.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("error calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	return c.decodeEnvelope(resp)
}

func (c *BybitClient) getSigned(path string, params url.Values) (json.RawMessage, error) {
	query := params.Encode()
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	req, err := http.NewRequest(http.MethodGet, c.baseURL+path+"?"+query, nil)
	if err != nil {
		return nil, err
	}
	c.signRequest(req, timestamp, query)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	return c.decodeEnvelope(resp)
}

func (c *BybitClient) postSigned(path string, body map[string]interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.signRequest(req, timestamp, string(payload))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	return c.decodeEnvelope(resp)
}

// signRequest signs with HMAC-SHA256 over timestamp + apiKey + recvWindow + payload
func (c *BybitClient) signRequest(req *http.Request, timestamp, payload string) {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(timestamp + c.apiKey + bybitRecvWindow + payload))
	signature := hex.EncodeToString(mac.Sum(nil))

	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", bybitRecvWindow)
	req.Header.Set("X-BAPI-SIGN", signature)
}

func (c *BybitClient) decodeEnvelope(resp *http.Response) (json.RawMessage, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	var envelope bybitEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}
	if envelope.RetCode != 0 {
		if envelope.RetCode == -1121 {
			return nil, ErrInvalidInterval
		}
		return nil, fmt.Errorf("bybit API error %d: %s", envelope.RetCode, envelope.RetMsg)
	}
	return envelope.Result, nil
}

// ==================== helpers ====================

type bybitOrder struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	OrderStatus string `json:"orderStatus"`
	Price       string `json:"price"`
	Qty         string `json:"qty"`
	CumExecQty  string `json:"cumExecQty"`
	AvgPrice    string `json:"avgPrice"`
	CreatedTime string `json:"createdTime"`
	UpdatedTime string `json:"updatedTime"`
}

func (o bybitOrder) toOrder(venue string) *Order {
	side := SideBuy
	if strings.EqualFold(o.Side, "Sell") {
		side = SideSell
	}
	orderType := OrderTypeMarket
	if strings.EqualFold(o.OrderType, "Limit") {
		orderType = OrderTypeLimit
	}
	createdMs, _ := strconv.ParseInt(o.CreatedTime, 10, 64)
	updatedMs, _ := strconv.ParseInt(o.UpdatedTime, 10, 64)

	return &Order{
		OrderID:       o.OrderID,
		ClientOrderID: o.OrderLinkID,
		Symbol:        o.Symbol,
		Side:          side,
		Type:          orderType,
		Status:        normalizeBybitStatus(o.OrderStatus),
		Price:         parseFloat(o.Price),
		Quantity:      parseFloat(o.Qty),
		ExecutedQty:   parseFloat(o.CumExecQty),
		AvgPrice:      parseFloat(o.AvgPrice),
		Exchange:      venue,
		CreatedAt:     time.UnixMilli(createdMs),
		UpdatedAt:     time.UnixMilli(updatedMs),
	}
}

func normalizeBybitStatus(status string) string {
	switch status {
	case "New", "Created", "Untriggered":
		return OrderStatusNew
	case "PartiallyFilled":
		return OrderStatusPartiallyFilled
	case "Filled":
		return OrderStatusFilled
	case "Cancelled", "PartiallyFilledCanceled", "Deactivated":
		return OrderStatusCanceled
	case "Rejected":
		return OrderStatusRejected
	}
	return status
}

func bybitSide(side Side) string {
	if side == SideSell {
		return "Sell"
	}
	return "Buy"
}

func bybitOrderType(t OrderType) string {
	if t == OrderTypeLimit {
		return "Limit"
	}
	return "Market"
}

// bybitInterval maps common interval strings to Bybit V5 interval codes
func bybitInterval(interval string) string {
	switch interval {
	case "1m":
		return "1"
	case "5m":
		return "5"
	case "15m":
		return "15"
	case "30m":
		return "30"
	case "1h":
		return "60"
	case "4h":
		return "240"
	case "1d":
		return "D"
	case "1w":
		return "W"
	}
	return interval
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
