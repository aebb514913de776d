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
	"sort"
	"strconv"
	"strings"
	"time"
)

// MexcFuturesClient is the MEXC USDT-margined futures adapter.
// The futures kline endpoint returns columnar arrays under
// data.{time,open,high,low,close,vol}; TransposeColumnarKlines turns them
// into row-wise candlesticks.
type MexcFuturesClient struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// NewMexcFuturesClient creates a MEXC futures client
func NewMexcFuturesClient(apiKey, secretKey, baseURL string) *MexcFuturesClient {
	if baseURL == "" {
		baseURL = "https://contract.mexc.com"
	}
	return &MexcFuturesClient{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *MexcFuturesClient) Name() string { return "MEXC_FUTURES" }

// ColumnarKlines is the raw columnar kline payload
type ColumnarKlines struct {
	Time  []int64   `json:"time"`
	Open  []float64 `json:"open"`
	High  []float64 `json:"high"`
	Low   []float64 `json:"low"`
	Close []float64 `json:"close"`
	Vol   []float64 `json:"vol"`
}

// TransposeColumnarKlines converts columnar arrays into row-wise candlesticks.
// The result is truncated to the shortest column so a ragged payload cannot
// produce a partially populated candle.
func TransposeColumnarKlines(cols ColumnarKlines) []Kline {
	n := len(cols.Time)
	for _, l := range []int{len(cols.Open), len(cols.High), len(cols.Low), len(cols.Close), len(cols.Vol)} {
		if l < n {
			n = l
		}
	}

	klines := make([]Kline, n)
	for i := 0; i < n; i++ {
		klines[i] = Kline{
			OpenTime: cols.Time[i] * 1000,
			Open:     cols.Open[i],
			High:     cols.High[i],
			Low:      cols.Low[i],
			Close:    cols.Close[i],
			Volume:   cols.Vol[i],
		}
	}
	return klines
}

// GetKlines fetches and transposes futures candlesticks
func (c *MexcFuturesClient) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("interval", mexcFuturesInterval(interval))
	end := time.Now().Unix()
	params.Set("end", strconv.FormatInt(end, 10))
	params.Set("start", strconv.FormatInt(end-int64(limit)*intervalSeconds(interval), 10))

	body, err := c.get("/api/v1/contract/kline/"+futuresSymbol(symbol), params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success bool           `json:"success"`
		Code    int            `json:"code"`
		Data    ColumnarKlines `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}
	if !resp.Success {
		if resp.Code == -1121 {
			return nil, ErrInvalidInterval
		}
		return nil, fmt.Errorf("mexc futures API error code %d", resp.Code)
	}
	return TransposeColumnarKlines(resp.Data), nil
}

// GetCurrentPrice fetches the last price from the contract ticker
func (c *MexcFuturesClient) GetCurrentPrice(symbol string) (float64, error) {
	ticker, err := c.GetTicker(symbol)
	if err != nil {
		return 0, err
	}
	return ticker.LastPrice, nil
}

// GetTicker fetches the contract ticker
func (c *MexcFuturesClient) GetTicker(symbol string) (*Ticker, error) {
	body, err := c.get("/api/v1/contract/ticker", url.Values{"symbol": {futuresSymbol(symbol)}})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Symbol    string  `json:"symbol"`
			LastPrice float64 `json:"lastPrice"`
			Volume24  float64 `json:"volume24"`
			Timestamp int64   `json:"timestamp"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error parsing ticker: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("mexc futures ticker unavailable for %s", symbol)
	}

	return &Ticker{
		Symbol:    symbol,
		LastPrice: resp.Data.LastPrice,
		Volume24h: resp.Data.Volume24,
		Timestamp: resp.Data.Timestamp,
	}, nil
}

// GetEquity returns the USDT futures account equity
func (c *MexcFuturesClient) GetEquity() (float64, error) {
	body, err := c.getSigned("/api/v1/private/account/asset/USDT", url.Values{})
	if err != nil {
		return 0, err
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Equity float64 `json:"equity"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("error parsing asset: %w", err)
	}
	return resp.Data.Equity, nil
}

// GetPositions lists open futures positions
func (c *MexcFuturesClient) GetPositions() ([]Position, error) {
	body, err := c.getSigned("/api/v1/private/position/open_positions", url.Values{})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success bool `json:"success"`
		Data    []struct {
			Symbol       string  `json:"symbol"`
			PositionType int     `json:"positionType"` // 1 long, 2 short
			HoldVol      float64 `json:"holdVol"`
			HoldAvgPrice float64 `json:"holdAvgPrice"`
			Leverage     int     `json:"leverage"`
			Realised     float64 `json:"realised"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error parsing positions: %w", err)
	}

	positions := make([]Position, 0, len(resp.Data))
	for _, p := range resp.Data {
		if p.HoldVol == 0 {
			continue
		}
		side := SideBuy
		if p.PositionType == 2 {
			side = SideSell
		}
		positions = append(positions, Position{
			Symbol:     spotSymbol(p.Symbol),
			Side:       side,
			Size:       p.HoldVol,
			EntryPrice: p.HoldAvgPrice,
			Leverage:   p.Leverage,
			Exchange:   c.Name(),
		})
	}
	return positions, nil
}

// PlaceOrder submits a futures order
func (c *MexcFuturesClient) PlaceOrder(req OrderRequest) (*Order, error) {
	orderType := 5 // market
	if req.Type == OrderTypeLimit {
		orderType = 1
	}
	side := 1 // open long
	if req.Side == SideSell {
		side = 3 // open short
	}
	if req.ReduceOnly {
		if req.Side == SideSell {
			side = 4 // close long
		} else {
			side = 2 // close short
		}
	}

	payload := map[string]interface{}{
		"symbol":   futuresSymbol(req.Symbol),
		"vol":      req.Quantity,
		"side":     side,
		"type":     orderType,
		"openType": 1, // isolated
	}
	if req.Type == OrderTypeLimit && req.Price > 0 {
		payload["price"] = req.Price
	}
	if req.Leverage > 0 {
		payload["leverage"] = req.Leverage
	}
	if req.StopLoss > 0 {
		payload["stopLossPrice"] = req.StopLoss
	}
	if req.ClientOrderID != "" {
		payload["externalOid"] = req.ClientOrderID
	}

	body, err := c.postSigned("/api/v1/private/order/submit", payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success bool            `json:"success"`
		Code    int             `json:"code"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("mexc futures order rejected, code %d", resp.Code)
	}

	var orderID string
	if err := json.Unmarshal(resp.Data, &orderID); err != nil {
		var numeric int64
		if json.Unmarshal(resp.Data, &numeric) == nil {
			orderID = strconv.FormatInt(numeric, 10)
		}
	}

	now := time.Now()
	return &Order{
		OrderID:       orderID,
		ClientOrderID: req.ClientOrderID,
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

// CancelOrder cancels a futures order
func (c *MexcFuturesClient) CancelOrder(symbol, orderID string) (*Order, error) {
	body, err := c.postSigned("/api/v1/private/order/cancel", []string{orderID})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error parsing cancel response: %w", err)
	}

	return &Order{
		OrderID:   orderID,
		Symbol:    symbol,
		Status:    OrderStatusCanceled,
		Exchange:  c.Name(),
		UpdatedAt: time.Now(),
	}, nil
}

// GetOrder infers order state from the open-orders list: an order absent from
// open orders is reported FILLED. This can mask CANCELED; callers must not
// rely on it for audit.
func (c *MexcFuturesClient) GetOrder(symbol, orderID string) (*Order, error) {
	open, err := c.GetOpenOrders(symbol)
	if err != nil {
		return nil, err
	}
	for i := range open {
		if open[i].OrderID == orderID {
			return &open[i], nil
		}
	}
	return &Order{
		OrderID:   orderID,
		Symbol:    symbol,
		Status:    OrderStatusFilled,
		Exchange:  c.Name(),
		UpdatedAt: time.Now(),
	}, nil
}

// GetOpenOrders lists open futures orders
func (c *MexcFuturesClient) GetOpenOrders(symbol string) ([]Order, error) {
	params := url.Values{}
	path := "/api/v1/private/order/list/open_orders"
	if symbol != "" {
		path += "/" + futuresSymbol(symbol)
	}

	body, err := c.getSigned(path, params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success bool `json:"success"`
		Data    []struct {
			OrderID     string  `json:"orderId"`
			ExternalOid string  `json:"externalOid"`
			Symbol      string  `json:"symbol"`
			Side        int     `json:"side"`
			Price       float64 `json:"price"`
			Vol         float64 `json:"vol"`
			DealVol     float64 `json:"dealVol"`
			State       int     `json:"state"`
			CreateTime  int64   `json:"createTime"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error parsing open orders: %w", err)
	}

	orders := make([]Order, 0, len(resp.Data))
	for _, o := range resp.Data {
		side := SideBuy
		if o.Side == 3 || o.Side == 4 {
			side = SideSell
		}
		status := OrderStatusNew
		if o.DealVol > 0 && o.DealVol < o.Vol {
			status = OrderStatusPartiallyFilled
		}
		orders = append(orders, Order{
			OrderID:       o.OrderID,
			ClientOrderID: o.ExternalOid,
			Symbol:        spotSymbol(o.Symbol),
			Side:          side,
			Status:        status,
			Price:         o.Price,
			Quantity:      o.Vol,
			ExecutedQty:   o.DealVol,
			Exchange:      c.Name(),
			CreatedAt:     time.UnixMilli(o.CreateTime),
		})
	}
	return orders, nil
}

// SetLeverage changes position leverage
func (c *MexcFuturesClient) SetLeverage(symbol string, leverage int) error {
	payload := map[string]interface{}{
		"symbol":   futuresSymbol(symbol),
		"leverage": leverage,
		"openType": 1,
	}
	_, err := c.postSigned("/api/v1/private/position/change_leverage", payload)
	return err
}

// SetIsolatedMargin is implied by openType=1 on order submission
func (c *MexcFuturesClient) SetIsolatedMargin(symbol string, isolated bool) error { return nil }

// GetSymbolFilters fetches contract metadata
func (c *MexcFuturesClient) GetSymbolFilters(symbol string) (*SymbolFilters, error) {
	body, err := c.get("/api/v1/contract/detail", url.Values{"symbol": {futuresSymbol(symbol)}})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Symbol       string  `json:"symbol"`
			ContractSize float64 `json:"contractSize"`
			PriceUnit    float64 `json:"priceUnit"`
			VolUnit      float64 `json:"volUnit"`
			MinVol       float64 `json:"minVol"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error parsing contract detail: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("no contract detail for %s", symbol)
	}

	return &SymbolFilters{
		Symbol:   symbol,
		QtyStep:  resp.Data.VolUnit,
		TickSize: resp.Data.PriceUnit,
		MinQty:   resp.Data.MinVol,
	}, nil
}

// ==================== HTTP plumbing ====================

func (c *MexcFuturesClient) get(path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	resp, err := c.httpClient.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("error calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// getSigned signs GET requests: HMAC-SHA256 over apiKey + timestamp + sorted query
func (c *MexcFuturesClient) getSigned(path string, params url.Values) ([]byte, error) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	query := sortedQuery(params)

	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if query != "" {
		req.URL.RawQuery = query
	}
	c.signHeaders(req, timestamp, query)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// postSigned signs POST requests over the JSON body
func (c *MexcFuturesClient) postSigned(path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.signHeaders(req, timestamp, string(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func (c *MexcFuturesClient) signHeaders(req *http.Request, timestamp, payload string) {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(c.apiKey + timestamp + payload))

	req.Header.Set("ApiKey", c.apiKey)
	req.Header.Set("Request-Time", timestamp)
	req.Header.Set("Signature", hex.EncodeToString(mac.Sum(nil)))
}

func sortedQuery(params url.Values) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params.Get(k))
	}
	return strings.Join(parts, "&")
}

// futuresSymbol converts "BTCUSDT" to the contract form "BTC_USDT"
func futuresSymbol(symbol string) string {
	if strings.Contains(symbol, "_") {
		return symbol
	}
	if strings.HasSuffix(symbol, "USDT") {
		return strings.TrimSuffix(symbol, "USDT") + "_USDT"
	}
	return symbol
}

func spotSymbol(contract string) string {
	return strings.ReplaceAll(contract, "_", "")
}

func mexcFuturesInterval(interval string) string {
	switch interval {
	case "1m":
		return "Min1"
	case "5m":
		return "Min5"
	case "15m":
		return "Min15"
	case "30m":
		return "Min30"
	case "1h":
		return "Min60"
	case "4h":
		return "Hour4"
	case "1d":
		return "Day1"
	}
	return interval
}

func intervalSeconds(interval string) int64 {
	switch interval {
	case "1m":
		return 60
	case "5m":
		return 300
	case "15m":
		return 900
	case "30m":
		return 1800
	case "1h":
		return 3600
	case "4h":
		return 14400
	case "1d":
		return 86400
	}
	return 3600
}
