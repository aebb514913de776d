package marketdata

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/logging"
)

// CachedKlines holds candles with their fetch timestamp
type CachedKlines struct {
	Data      []exchange.Kline
	UpdatedAt time.Time
}

// CachedPrice holds a price snapshot with its fetch timestamp
type CachedPrice struct {
	Price     float64
	UpdatedAt time.Time
}

// Service is the shared read path for market data. Every strategy, the risk
// manager and the hedging service fetch candles through here so a burst of
// evaluations on the same symbol costs one REST call, not ten.
type Service struct {
	exchanges map[string]exchange.Exchange

	klines sync.Map // "exchange:symbol:interval" -> *CachedKlines
	prices sync.Map // "exchange:symbol" -> *CachedPrice

	klineTTL time.Duration
	priceTTL time.Duration

	statsMu   sync.RWMutex
	hitCount  int64
	missCount int64

	logger *logging.Logger
}

// NewService creates a market data service over the given venues
func NewService(exchanges []exchange.Exchange, klineTTL, priceTTL time.Duration) *Service {
	if klineTTL <= 0 {
		klineTTL = 60 * time.Second
	}
	if priceTTL <= 0 {
		priceTTL = 5 * time.Second
	}

	byName := make(map[string]exchange.Exchange, len(exchanges))
	for _, ex := range exchanges {
		byName[ex.Name()] = ex
	}

	return &Service{
		exchanges: byName,
		klineTTL:  klineTTL,
		priceTTL:  priceTTL,
		logger:    logging.Default().WithComponent("marketdata"),
	}
}

// Exchange returns the venue client by name
func (s *Service) Exchange(name string) (exchange.Exchange, error) {
	ex, ok := s.exchanges[name]
	if !ok {
		return nil, fmt.Errorf("unknown exchange %q", name)
	}
	return ex, nil
}

// GetKlines returns candles for the symbol, serving from cache when fresh.
// When the venue rejects the interval it retries once with the daily
// interval; the fallback result is cached under the original key so the
// caller's next request also hits cache.
func (s *Service) GetKlines(exchangeName, symbol, interval string, limit int) ([]exchange.Kline, error) {
	key := exchangeName + ":" + symbol + ":" + interval

	if val, ok := s.klines.Load(key); ok {
		cached := val.(*CachedKlines)
		if time.Since(cached.UpdatedAt) < s.klineTTL && len(cached.Data) >= limit {
			s.recordHit()
			data := cached.Data
			if len(data) > limit {
				return data[len(data)-limit:], nil
			}
			return data, nil
		}
	}
	s.recordMiss()

	ex, err := s.Exchange(exchangeName)
	if err != nil {
		return nil, err
	}

	klines, err := ex.GetKlines(symbol, interval, limit)
	if errors.Is(err, exchange.ErrInvalidInterval) && interval != "1d" {
		s.logger.Warn("Interval rejected, falling back to daily",
			"symbol", symbol, "interval", interval)
		klines, err = ex.GetKlines(symbol, "1d", limit)
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching klines for %s: %w", symbol, err)
	}

	s.klines.Store(key, &CachedKlines{Data: klines, UpdatedAt: time.Now()})
	return klines, nil
}

// GetCurrentPrice returns the latest price, served from a short-TTL cache
func (s *Service) GetCurrentPrice(exchangeName, symbol string) (float64, error) {
	key := exchangeName + ":" + symbol

	if val, ok := s.prices.Load(key); ok {
		cached := val.(*CachedPrice)
		if time.Since(cached.UpdatedAt) < s.priceTTL {
			s.recordHit()
			return cached.Price, nil
		}
	}
	s.recordMiss()

	ex, err := s.Exchange(exchangeName)
	if err != nil {
		return 0, err
	}

	price, err := ex.GetCurrentPrice(symbol)
	if err != nil {
		return 0, fmt.Errorf("error fetching price for %s: %w", symbol, err)
	}

	s.prices.Store(key, &CachedPrice{Price: price, UpdatedAt: time.Now()})
	return price, nil
}

// GetTicker fetches the ticker directly, bypassing the cache
func (s *Service) GetTicker(exchangeName, symbol string) (*exchange.Ticker, error) {
	ex, err := s.Exchange(exchangeName)
	if err != nil {
		return nil, err
	}
	return ex.GetTicker(symbol)
}

// Invalidate drops cached candles and price for a symbol, forcing the next
// read to hit the venue. Called after fills so exits see fresh data.
func (s *Service) Invalidate(exchangeName, symbol string) {
	s.prices.Delete(exchangeName + ":" + symbol)
	prefix := exchangeName + ":" + symbol + ":"
	s.klines.Range(func(k, _ interface{}) bool {
		if key, ok := k.(string); ok && len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			s.klines.Delete(k)
		}
		return true
	})
}

func (s *Service) recordHit() {
	s.statsMu.Lock()
	s.hitCount++
	s.statsMu.Unlock()
}

func (s *Service) recordMiss() {
	s.statsMu.Lock()
	s.missCount++
	s.statsMu.Unlock()
}

// GetStats returns cache hit/miss statistics
func (s *Service) GetStats() map[string]interface{} {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()

	total := s.hitCount + s.missCount
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(s.hitCount) / float64(total) * 100
	}
	return map[string]interface{}{
		"hits":     s.hitCount,
		"misses":   s.missCount,
		"hit_rate": hitRate,
	}
}
