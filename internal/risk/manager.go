package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/logging"
	"sniper-trading-bot/internal/marketdata"
	"sniper-trading-bot/internal/ta"
)

// Config holds risk management limits
type Config struct {
	MaxRiskPerTrade     float64 // percent of equity risked per trade
	MaxDailyDrawdown    float64 // percent of equity lost before trading halts
	MaxOpenPositions    int
	MaxPositionNotional float64            // cap on qty * price, 0 disables
	SymbolMaxNotional   map[string]float64 // per-symbol overrides
	StopLossPercentMax  float64            // fallback SL distance when ATR unavailable
	ATRMultiplier       float64            // SL distance in ATR units
}

// Manager validates candidate trades and computes stop levels. Symbol
// performance stats feed Kelly sizing on the enhanced path.
type Manager struct {
	config     *Config
	marketData *marketdata.Service

	mu            sync.RWMutex
	dailyPnL      float64
	dailyPnLReset time.Time
	openPositions int
	symbolStats   map[string]*SymbolStats

	logger *logging.Logger
}

// SymbolStats accumulates per-symbol trade outcomes
type SymbolStats struct {
	Wins      int
	Losses    int
	GrossWin  float64
	GrossLoss float64
}

// WinRate returns the historical win probability, 0.5 with no history
func (s *SymbolStats) WinRate() float64 {
	total := s.Wins + s.Losses
	if total == 0 {
		return 0.5
	}
	return float64(s.Wins) / float64(total)
}

// WinLossRatio returns average win over average loss, 1.0 with no history
func (s *SymbolStats) WinLossRatio() float64 {
	if s.Wins == 0 || s.Losses == 0 || s.GrossLoss == 0 {
		return 1.0
	}
	avgWin := s.GrossWin / float64(s.Wins)
	avgLoss := s.GrossLoss / float64(s.Losses)
	if avgLoss == 0 {
		return 1.0
	}
	return avgWin / avgLoss
}

// NewManager creates a risk manager
func NewManager(config *Config, marketData *marketdata.Service) *Manager {
	if config.ATRMultiplier <= 0 {
		config.ATRMultiplier = 1.5
	}
	if config.StopLossPercentMax <= 0 {
		config.StopLossPercentMax = 0.02
	}
	return &Manager{
		config:        config,
		marketData:    marketData,
		dailyPnLReset: time.Now().Truncate(24 * time.Hour),
		symbolStats:   make(map[string]*SymbolStats),
		logger:        logging.Default().WithComponent("risk"),
	}
}

// ValidateTrade checks a candidate trade against position count, notional
// caps and the daily drawdown limit. Returns a reason when rejected.
func (m *Manager) ValidateTrade(symbol string, qty float64, exchangeName string, side exchange.Side, equity float64) (bool, string) {
	if qty <= 0 {
		return false, "quantity must be positive"
	}

	m.mu.Lock()
	m.checkDailyReset()
	openPositions := m.openPositions
	dailyPnL := m.dailyPnL
	m.mu.Unlock()

	if openPositions >= m.config.MaxOpenPositions {
		return false, fmt.Sprintf("max positions reached (%d/%d)", openPositions, m.config.MaxOpenPositions)
	}

	if equity > 0 && m.config.MaxDailyDrawdown > 0 {
		drawdownPercent := (dailyPnL / equity) * 100
		if drawdownPercent <= -m.config.MaxDailyDrawdown {
			return false, fmt.Sprintf("daily drawdown limit reached (%.2f%%)", drawdownPercent)
		}
	}

	price, err := m.marketData.GetCurrentPrice(exchangeName, symbol)
	if err != nil {
		return false, fmt.Sprintf("cannot price trade: %v", err)
	}

	notional := qty * price
	cap := m.config.MaxPositionNotional
	if override, ok := m.config.SymbolMaxNotional[symbol]; ok {
		cap = override
	}
	if cap > 0 && notional > cap {
		return false, fmt.Sprintf("notional %.2f exceeds cap %.2f for %s", notional, cap, symbol)
	}

	return true, ""
}

// CalculateATR fetches period+1 candles and returns the Wilder-smoothed ATR.
// Errors when the venue returns fewer candles than the window needs.
func (m *Manager) CalculateATR(symbol, exchangeName, interval string, period int) (float64, error) {
	klines, err := m.marketData.GetKlines(exchangeName, symbol, interval, period+1)
	if err != nil {
		return 0, fmt.Errorf("error fetching candles for ATR: %w", err)
	}
	if len(klines) < period+1 {
		return 0, fmt.Errorf("insufficient candles for ATR: got %d, need %d", len(klines), period+1)
	}
	return ta.ATR(klines, period), nil
}

// CalculateStopLoss returns the initial stop from entry using ATR when
// available, falling back to the configured percent distance
func (m *Manager) CalculateStopLoss(entry float64, side exchange.Side, atr float64) float64 {
	distance := atr * m.config.ATRMultiplier
	if atr <= 0 {
		distance = entry * m.config.StopLossPercentMax
	}
	if side == exchange.SideBuy {
		return entry - distance
	}
	return entry + distance
}

// CalculateTakeProfit projects the target from the risk distance and the
// requested reward-to-risk ratio
func (m *Manager) CalculateTakeProfit(entry, stopLoss float64, side exchange.Side, rr float64) float64 {
	risk := math.Abs(entry - stopLoss)
	if side == exchange.SideBuy {
		return entry + risk*rr
	}
	return entry - risk*rr
}

// KellyFraction computes the half-Kelly sizing fraction for a symbol from
// its recorded win rate and win/loss ratio, capped at 25%
func (m *Manager) KellyFraction(symbol string) float64 {
	m.mu.RLock()
	stats, ok := m.symbolStats[symbol]
	m.mu.RUnlock()

	winRate := 0.5
	ratio := 1.0
	if ok {
		winRate = stats.WinRate()
		ratio = stats.WinLossRatio()
	}

	if ratio <= 0 {
		return 0
	}
	kelly := (ratio*winRate - (1 - winRate)) / ratio
	if kelly < 0 {
		return 0
	}

	halfKelly := kelly / 2
	if halfKelly > 0.25 {
		halfKelly = 0.25
	}
	return halfKelly
}

// RegisterPositionOpen counts a newly opened position
func (m *Manager) RegisterPositionOpen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openPositions++
}

// RegisterPositionClose records the trade outcome into daily P/L and the
// symbol's stats
func (m *Manager) RegisterPositionClose(symbol string, pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.openPositions--
	if m.openPositions < 0 {
		m.openPositions = 0
	}

	m.checkDailyReset()
	m.dailyPnL += pnl

	stats, ok := m.symbolStats[symbol]
	if !ok {
		stats = &SymbolStats{}
		m.symbolStats[symbol] = stats
	}
	if pnl >= 0 {
		stats.Wins++
		stats.GrossWin += pnl
	} else {
		stats.Losses++
		stats.GrossLoss += -pnl
	}
}

// SetOpenPositions overrides the open-position count from a reconcile
func (m *Manager) SetOpenPositions(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openPositions = count
}

// GetSymbolStats returns a copy of the recorded stats for a symbol
func (m *Manager) GetSymbolStats(symbol string) (SymbolStats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats, ok := m.symbolStats[symbol]
	if !ok {
		return SymbolStats{}, false
	}
	return *stats, true
}

func (m *Manager) checkDailyReset() {
	today := time.Now().Truncate(24 * time.Hour)
	if today.After(m.dailyPnLReset) {
		m.dailyPnL = 0
		m.dailyPnLReset = today
	}
}

// GetMetrics returns current risk metrics for the status endpoint
func (m *Manager) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"daily_pnl":          m.dailyPnL,
		"open_positions":     m.openPositions,
		"max_positions":      m.config.MaxOpenPositions,
		"max_risk_per_trade": m.config.MaxRiskPerTrade,
		"max_daily_drawdown": m.config.MaxDailyDrawdown,
		"tracked_symbols":    len(m.symbolStats),
	}
}
