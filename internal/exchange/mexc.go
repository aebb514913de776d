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

// MexcClient is the MEXC spot REST adapter. The API is Binance-shaped:
// signed requests carry an HMAC-SHA256 signature over the query string.
type MexcClient struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// NewMexcClient creates a MEXC spot client
func NewMexcClient(apiKey, secretKey, baseURL string) *MexcClient {
	if baseURL == "" {
		baseURL = "https://api.mexc.com"
	}
	return &MexcClient{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *MexcClient) Name() string { return "MEXC" }

// GetKlines fetches candlesticks returned as arrays of
// [openTime, open, high, low, close, volume, closeTime, quoteVolume]
func (c *MexcClient) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get("/api/v3/klines", params)
	if err != nil {
		return nil, err
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	klines := make([]Kline, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		klines = append(klines, Kline{
			OpenTime: int64(asFloat(row[0])),
			Open:     asFloat(row[1]),
			High:     asFloat(row[2]),
			Low:      asFloat(row[3]),
			Close:    asFloat(row[4]),
			Volume:   asFloat(row[5]),
		})
	}
	return klines, nil
}

// GetCurrentPrice fetches the last traded price
func (c *MexcClient) GetCurrentPrice(symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get("/api/v3/ticker/price", params)
	if err != nil {
		return 0, err
	}

	var priceResp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &priceResp); err != nil {
		return 0, fmt.Errorf("error parsing price: %w", err)
	}
	return parseFloat(priceResp.Price), nil
}

// GetTicker fetches 24h ticker statistics
func (c *MexcClient) GetTicker(symbol string) (*Ticker, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get("/api/v3/ticker/24hr", params)
	if err != nil {
		return nil, err
	}

	var t struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
		Volume    string `json:"volume"`
		CloseTime int64  `json:"closeTime"`
	}
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("error parsing ticker: %w", err)
	}

	return &Ticker{
		Symbol:    t.Symbol,
		LastPrice: parseFloat(t.LastPrice),
		Volume24h: parseFloat(t.Volume),
		Timestamp: t.CloseTime,
	}, nil
}

// GetEquity returns total USDT balance (free + locked)
func (c *MexcClient) GetEquity() (float64, error) {
	body, err := c.getSigned("/api/v3/account", url.Values{})
	if err != nil {
		return 0, err
	}

	var account struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &account); err != nil {
		return 0, fmt.Errorf("error parsing account: %w", err)
	}

	for _, b := range account.Balances {
		if b.Asset == "USDT" {
			return parseFloat(b.Free) + parseFloat(b.Locked), nil
		}
	}
	return 0, nil
}

// GetPositions returns nothing for spot; the spot adapter tracks no margin positions
func (c *MexcClient) GetPositions() ([]Position, error) {
	return []Position{}, nil
}

// PlaceOrder submits a spot order. Stop losses are not attached on spot entries;
// the order manager places a follow-up conditional order instead.
func (c *MexcClient) PlaceOrder(req OrderRequest) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", formatFloat(req.Quantity))
	if req.Type == OrderTypeLimit && req.Price > 0 {
		params.Set("price", formatFloat(req.Price))
	}
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}

	body, err := c.postSigned("/api/v3/order", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Symbol        string `json:"symbol"`
		OrderID       string `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Price         string `json:"price"`
		OrigQty       string `json:"origQty"`
		ExecutedQty   string `json:"executedQty"`
		Status        string `json:"status"`
		TransactTime  int64  `json:"transactTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}

	status := resp.Status
	if status == "" {
		status = OrderStatusNew
	}
	created := time.UnixMilli(resp.TransactTime)
	return &Order{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Status:        status,
		Price:         parseFloat(resp.Price),
		Quantity:      parseFloat(resp.OrigQty),
		ExecutedQty:   parseFloat(resp.ExecutedQty),
		Exchange:      c.Name(),
		StrategyName:  req.StrategyName,
		CreatedAt:     created,
		UpdatedAt:     created,
	}, nil
}

// CancelOrder cancels an order by venue id
func (c *MexcClient) CancelOrder(symbol, orderID string) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	body, err := c.deleteSigned("/api/v3/order", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Symbol      string `json:"symbol"`
		OrderID     string `json:"orderId"`
		Status      string `json:"status"`
		OrigQty     string `json:"origQty"`
		ExecutedQty string `json:"executedQty"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error parsing cancel response: %w", err)
	}

	return &Order{
		OrderID:     resp.OrderID,
		Symbol:      resp.Symbol,
		Status:      resp.Status,
		Quantity:    parseFloat(resp.OrigQty),
		ExecutedQty: parseFloat(resp.ExecutedQty),
		Exchange:    c.Name(),
		UpdatedAt:   time.Now(),
	}, nil
}

// GetOrder fetches a single order by id
func (c *MexcClient) GetOrder(symbol, orderID string) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	body, err := c.getSigned("/api/v3/order", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Symbol        string `json:"symbol"`
		OrderID       string `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Price         string `json:"price"`
		OrigQty       string `json:"origQty"`
		ExecutedQty   string `json:"executedQty"`
		Status        string `json:"status"`
		Side          string `json:"side"`
		Type          string `json:"type"`
		Time          int64  `json:"time"`
		UpdateTime    int64  `json:"updateTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error parsing order: %w", err)
	}
	if resp.OrderID == "" {
		return nil, ErrOrderNotFound
	}

	return &Order{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Side:          Side(resp.Side),
		Type:          OrderType(resp.Type),
		Status:        resp.Status,
		Price:         parseFloat(resp.Price),
		Quantity:      parseFloat(resp.OrigQty),
		ExecutedQty:   parseFloat(resp.ExecutedQty),
		Exchange:      c.Name(),
		CreatedAt:     time.UnixMilli(resp.Time),
		UpdatedAt:     time.UnixMilli(resp.UpdateTime),
	}, nil
}

// GetOpenOrders lists open orders for a symbol
func (c *MexcClient) GetOpenOrders(symbol string) ([]Order, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	body, err := c.getSigned("/api/v3/openOrders", params)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Symbol        string `json:"symbol"`
		OrderID       string `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Price         string `json:"price"`
		OrigQty       string `json:"origQty"`
		ExecutedQty   string `json:"executedQty"`
		Status        string `json:"status"`
		Side          string `json:"side"`
		Type          string `json:"type"`
		Time          int64  `json:"time"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing open orders: %w", err)
	}

	orders := make([]Order, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, Order{
			OrderID:       o.OrderID,
			ClientOrderID: o.ClientOrderID,
			Symbol:        o.Symbol,
			Side:          Side(o.Side),
			Type:          OrderType(o.Type),
			Status:        o.Status,
			Price:         parseFloat(o.Price),
			Quantity:      parseFloat(o.OrigQty),
			ExecutedQty:   parseFloat(o.ExecutedQty),
			Exchange:      c.Name(),
			CreatedAt:     time.UnixMilli(o.Time),
		})
	}
	return orders, nil
}

// SetLeverage is a no-op on spot
func (c *MexcClient) SetLeverage(symbol string, leverage int) error { return nil }

// SetIsolatedMargin is a no-op on spot
func (c *MexcClient) SetIsolatedMargin(symbol string, isolated bool) error { return nil }

// GetSymbolFilters derives step sizes from exchangeInfo precision fields
func (c *MexcClient) GetSymbolFilters(symbol string) (*SymbolFilters, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get("/api/v3/exchangeInfo", params)
	if err != nil {
		return nil, err
	}

	var info struct {
		Symbols []struct {
			Symbol            string `json:"symbol"`
			BaseAssetPrecision int   `json:"baseAssetPrecision"`
			QuotePrecision     int   `json:"quotePrecision"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("error parsing exchange info: %w", err)
	}
	if len(info.Symbols) == 0 {
		return nil, fmt.Errorf("no exchange info for %s", symbol)
	}

	s := info.Symbols[0]
	return &SymbolFilters{
		Symbol:   s.Symbol,
		QtyStep:  precisionToStep(s.BaseAssetPrecision),
		TickSize: precisionToStep(s.QuotePrecision),
	}, nil
}

// ==================== HTTP plumbing ====================

func (c *MexcClient) get(path string, params url.Values) ([]byte, error) {
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	resp, err := c.httpClient.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("error calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	return c.readBody(resp)
}

func (c *MexcClient) getSigned(path string, params url.Values) ([]byte, error) {
	return c.signedRequest(http.MethodGet, path, params)
}

func (c *MexcClient) postSigned(path string, params url.Values) ([]byte, error) {
	return c.signedRequest(http.MethodPost, path, params)
}

func (c *MexcClient) deleteSigned(path string, params url.Values) ([]byte, error) {
	return c.signedRequest(http.MethodDelete, path, params)
}

func (c *MexcClient) signedRequest(method, path string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	query := params.Encode()

	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query))
	query += "&signature=" + hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequest(method, c.baseURL+path+"?"+query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MEXC-APIKEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	return c.readBody(resp)
}

func (c *MexcClient) readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code == -1121 {
			return nil, ErrInvalidInterval
		}
		return nil, fmt.Errorf("mexc API error: %s", strings.TrimSpace(string(body)))
	}
	return body, nil
}

func asFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	}
	return 0
}

func precisionToStep(precision int) float64 {
	step := 1.0
	for i := 0; i < precision; i++ {
		step /= 10
	}
	return step
}
