package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"sniper-trading-bot/internal/hedging"
	"sniper-trading-bot/internal/logging"
)

// Config holds the scheduler cadences and symbol lists
type Config struct {
	SniperFixedRate  time.Duration     // default 60s
	DefaultFixedRate time.Duration     // default 300s
	HedgingFixedRate time.Duration     // default 60s
	SniperSymbols    []string
	SniperInterval   string
	SniperStrategyID string
	SniperExchange   string
	DefaultSymbols   []string
	DefaultInterval  string
	DefaultStrategyID string
	DefaultExchangeMap map[string]string // symbol -> exchange name
	Workers          int
	DrainWait        time.Duration
}

// DefaultConfig returns the production cadences
func DefaultConfig() *Config {
	return &Config{
		SniperFixedRate:  60 * time.Second,
		DefaultFixedRate: 300 * time.Second,
		HedgingFixedRate: 60 * time.Second,
		SniperInterval:   "1h",
		SniperStrategyID: "sniper",
		SniperExchange:   "BYBIT",
		DefaultInterval:  "1h",
		DefaultStrategyID: "default",
		Workers:          4,
		DrainWait:        5 * time.Second,
	}
}

// Scheduler drives the three periodic loops: the session-aware sniper tick,
// the slower default tick, and the hedging tick which runs regardless of
// the sniper flag.
type Scheduler struct {
	config   *Config
	executor *Executor
	hedging  *hedging.Service
	pool     *WorkerPool

	sniperActive atomic.Bool
	scanCounter  atomic.Uint64

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger *logging.Logger
}

// NewScheduler creates the scheduler. The sniper flag defaults to off and
// is toggled only through StartSniper/StopSniper.
func NewScheduler(config *Config, executor *Executor, hedgingSvc *hedging.Service) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		config:   config,
		executor: executor,
		hedging:  hedgingSvc,
		pool:     NewWorkerPool(config.Workers),
		stopChan: make(chan struct{}),
		logger:   logging.Default().WithComponent("scheduler"),
	}
}

// StartSniper enables the aggressive path; idempotent
func (s *Scheduler) StartSniper() {
	if s.sniperActive.CompareAndSwap(false, true) {
		s.logger.Info("Sniper activated")
	}
}

// StopSniper disables the aggressive path; idempotent
func (s *Scheduler) StopSniper() {
	if s.sniperActive.CompareAndSwap(true, false) {
		s.logger.Info("Sniper deactivated")
	}
}

// IsSniperActive reads the flag
func (s *Scheduler) IsSniperActive() bool {
	return s.sniperActive.Load()
}

// Run starts the three periodic loops; it returns immediately
func (s *Scheduler) Run() {
	s.wg.Add(3)
	go s.loop(s.config.SniperFixedRate, s.sniperTick)
	go s.loop(s.config.DefaultFixedRate, s.defaultTick)
	go s.loop(s.config.HedgingFixedRate, s.hedgingTick)

	s.logger.Info("Scheduler started",
		"sniper_rate", s.config.SniperFixedRate.String(),
		"default_rate", s.config.DefaultFixedRate.String(),
		"workers", s.config.Workers)
}

func (s *Scheduler) loop(rate time.Duration, tick func()) {
	defer s.wg.Done()
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			tick()
		}
	}
}

// sniperTick increments the scan counter and dispatches per-symbol tasks
// when the session's cadence qualifies this cycle
func (s *Scheduler) sniperTick() {
	counter := s.scanCounter.Add(1)

	if !s.sniperActive.Load() {
		return
	}

	session := ClassifySession(time.Now())
	if !ShouldScan(counter, session) {
		logging.SessionLogger(string(session)).Debug("Session cadence skips this tick",
			"counter", counter)
		return
	}

	for _, symbol := range s.config.SniperSymbols {
		sym := symbol
		s.pool.Submit(sym, func() {
			if err := s.executor.EvaluateAndExecute(sym, s.config.SniperInterval, s.config.SniperExchange, s.config.SniperStrategyID); err != nil {
				s.logger.Error("Sniper evaluation failed", "symbol", sym, "error", err.Error())
			}
		})
	}
}

// defaultTick iterates the default symbols serially
func (s *Scheduler) defaultTick() {
	for _, symbol := range s.config.DefaultSymbols {
		exchangeName := s.config.SniperExchange
		if mapped, ok := s.config.DefaultExchangeMap[symbol]; ok {
			exchangeName = mapped
		}
		if err := s.executor.EvaluateAndExecute(symbol, s.config.DefaultInterval, exchangeName, s.config.DefaultStrategyID); err != nil {
			s.logger.Error("Default evaluation failed", "symbol", symbol, "error", err.Error())
		}
	}
}

// hedgingTick runs regardless of the sniper flag
func (s *Scheduler) hedgingTick() {
	if s.hedging != nil {
		s.hedging.Tick()
	}
}

// Shutdown stops accepting ticks, drains the pool with a bounded wait and
// returns
func (s *Scheduler) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	s.pool.Shutdown(s.config.DrainWait)
	s.logger.Info("Scheduler stopped")
}

// GetStatus returns scheduler state for the status endpoint
func (s *Scheduler) GetStatus() map[string]interface{} {
	return map[string]interface{}{
		"sniper_active": s.sniperActive.Load(),
		"scan_counter":  s.scanCounter.Load(),
		"session":       string(ClassifySession(time.Now())),
		"in_flight":     s.pool.InFlight(),
	}
}
