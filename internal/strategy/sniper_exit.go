package strategy

import (
	"fmt"
	"math"
	"time"

	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/positions"
)

const (
	pt1PollAttempts = 5
	pt1PollInterval = time.Second
)

// EvaluateExit runs one tick of the position state machine:
//
//	OPEN_INITIAL -> OPEN_PT1_TAKEN -> CLOSED
//
// At most one stop-loss mutation happens per tick and stops only ratchet in
// the position's favor. PT1 fires once per position lifetime. All steps run
// inside the caller's single evaluation task, so PT1 and full exit cannot
// race.
func (s *SniperStrategy) EvaluateExit(symbol, interval string) (ExitSignal, error) {
	pos, ok := s.cache.Get(symbol)
	if !ok {
		return ExitSignal{}, nil
	}

	currentPrice, err := s.marketData.GetCurrentPrice(s.exchangeName, symbol)
	if err != nil {
		return ExitSignal{}, fmt.Errorf("error fetching price for exit check: %w", err)
	}

	stopLoss := pos.StrategyStopLoss

	// Step 1: first partial profit target
	if !pos.PT1Taken && stopLoss > 0 {
		if s.pt1Reached(pos.Side, pos.EntryPrice, stopLoss, currentPrice) {
			newSL, taken := s.takePT1(&pos, currentPrice, interval)
			if taken {
				stopLoss = newSL
				// Remaining half stays open; no exit this tick
				return ExitSignal{}, nil
			}
		}
	}

	// Step 2: trailing stop after PT1
	if pos.PT1Taken {
		if updated, newSL := s.trailStop(&pos, currentPrice, interval, stopLoss); updated {
			stopLoss = newSL
		}
	}

	// Step 3: stop-loss hit ends the position
	if stopLoss > 0 && stopHit(pos.Side, currentPrice, stopLoss) {
		s.logger.Info("Stop loss hit, signaling full exit",
			"symbol", symbol, "price", currentPrice, "stop", stopLoss)
		s.recordOutcome(symbol, tradeWon(pos.Side, pos.EntryPrice, currentPrice))
		return ExitSignal{ShouldExit: true, Reason: "STOP_LOSS_HIT"}, nil
	}

	return ExitSignal{}, nil
}

// pt1Reached checks whether price covered firstProfitTargetRR times the
// initial risk distance
func (s *SniperStrategy) pt1Reached(side exchange.Side, entry, stopLoss, current float64) bool {
	r := math.Abs(entry - stopLoss)
	if r == 0 {
		return false
	}
	target := entry + r*s.config.FirstProfitTargetRR
	if side == exchange.SideSell {
		target = entry - r*s.config.FirstProfitTargetRR
	}
	if side == exchange.SideBuy {
		return current >= target
	}
	return current <= target
}

// takePT1 closes half the position at market, polls the order to a terminal
// state, and on fill moves the stop to an ATR distance from current price,
// clamped to never give back the entry. Returns the new stop and whether
// PT1 completed.
func (s *SniperStrategy) takePT1(pos *positions.PositionUpdateData, currentPrice float64, interval string) (float64, bool) {
	halfSize := pos.Size / 2

	order, err := s.orderMgr.PlacePartialClose(pos.Symbol, pos.Side.Opposite(), halfSize, s.Name(), s.exchangeName)
	if err != nil {
		s.logger.Error("PT1 order failed", "symbol", pos.Symbol, "error", err.Error())
		return 0, false
	}

	filled := order.Status == exchange.OrderStatusFilled
	for attempt := 0; attempt < pt1PollAttempts && !filled; attempt++ {
		time.Sleep(pt1PollInterval)
		polled, err := s.orderMgr.GetOrder(pos.Symbol, order.OrderID, s.exchangeName)
		if err != nil {
			s.logger.Warn("PT1 poll failed", "symbol", pos.Symbol, "attempt", attempt+1)
			continue
		}
		switch polled.Status {
		case exchange.OrderStatusFilled:
			filled = true
		case exchange.OrderStatusCanceled, exchange.OrderStatusRejected:
			s.logger.Warn("PT1 order terminal without fill",
				"symbol", pos.Symbol, "status", polled.Status)
			return 0, false
		}
	}
	if !filled {
		s.logger.Warn("PT1 order not filled within poll window", "symbol", pos.Symbol)
		return 0, false
	}

	// New stop from current price, never worse than entry
	atr, err := s.riskMgr.CalculateATR(pos.Symbol, s.exchangeName, interval, 14)
	if err != nil || atr <= 0 {
		atr = currentPrice * s.config.StopLossPercentMax / s.config.ATRMultiplier
	}

	var newSL float64
	if pos.Side == exchange.SideBuy {
		newSL = math.Max(pos.EntryPrice, currentPrice-atr*s.config.ATRMultiplier)
	} else {
		newSL = math.Min(pos.EntryPrice, currentPrice+atr*s.config.ATRMultiplier)
	}

	s.cache.UpdateStrategyPositionInfo(pos.Symbol, newSL, true, false)
	s.logger.Info("PT1 taken",
		"symbol", pos.Symbol, "closed", halfSize, "new_stop", newSL)
	return newSL, true
}

// trailStop ratchets the stop toward price by an ATR distance; it never
// moves against the position
func (s *SniperStrategy) trailStop(pos *positions.PositionUpdateData, currentPrice float64, interval string, currentSL float64) (bool, float64) {
	atr, err := s.riskMgr.CalculateATR(pos.Symbol, s.exchangeName, interval, 14)
	if err != nil || atr <= 0 {
		return false, currentSL
	}

	var candidate float64
	improved := false
	if pos.Side == exchange.SideBuy {
		candidate = currentPrice - atr*s.config.ATRMultiplier
		improved = candidate > currentSL
	} else {
		candidate = currentPrice + atr*s.config.ATRMultiplier
		improved = candidate < currentSL
	}
	if !improved {
		return false, currentSL
	}

	s.cache.UpdateStrategyPositionInfo(pos.Symbol, candidate, false, false)
	s.logger.Info("Trailing stop ratcheted",
		"symbol", pos.Symbol, "old_stop", currentSL, "new_stop", candidate)
	return true, candidate
}

// stopHit reports whether price crossed the stop in the adverse direction
func stopHit(side exchange.Side, current, stopLoss float64) bool {
	if side == exchange.SideBuy {
		return current <= stopLoss
	}
	return current >= stopLoss
}

// tradeWon reports whether the exit price is on the profitable side of entry
func tradeWon(side exchange.Side, entry, exit float64) bool {
	if side == exchange.SideBuy {
		return exit > entry
	}
	return exit < entry
}
