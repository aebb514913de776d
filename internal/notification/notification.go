package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sniper-trading-bot/internal/events"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifySignal     NotificationType = "signal"
	NotifyTradeOpen  NotificationType = "trade_open"
	NotifyTradeClose NotificationType = "trade_close"
	NotifyHedge      NotificationType = "hedge"
	NotifyError      NotificationType = "error"
)

// Notification represents a notification message
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Symbol    string
	Price     float64
	PnL       float64
	Timestamp time.Time
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans notifications out to the configured providers
type Manager struct {
	notifiers []Notifier
	enabled   bool
}

// NewManager creates a new notification manager
func NewManager() *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		enabled:   true,
	}
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send sends a notification to all enabled providers
func (m *Manager) Send(notification *Notification) error {
	if !m.enabled {
		return nil
	}

	var lastErr error
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			if err := n.Send(notification); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

// SendSignal sends a graded-signal notification
func (m *Manager) SendSignal(symbol, tier string, price float64) error {
	return m.Send(&Notification{
		Type:      NotifySignal,
		Title:     fmt.Sprintf("Signal: %s", symbol),
		Message:   fmt.Sprintf("%s graded %s @ %.4f", symbol, tier, price),
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now(),
	})
}

// SendTradeOpen sends a trade opened notification
func (m *Manager) SendTradeOpen(symbol, side, tier string, price, quantity float64) error {
	return m.Send(&Notification{
		Type:      NotifyTradeOpen,
		Title:     fmt.Sprintf("Trade Opened: %s", symbol),
		Message:   fmt.Sprintf("%s %s (%s)\nPrice: %.4f\nQuantity: %.8f", side, symbol, tier, price, quantity),
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now(),
	})
}

// SendTradeClose sends a trade closed notification
func (m *Manager) SendTradeClose(symbol, reason string, pnl float64) error {
	return m.Send(&Notification{
		Type:      NotifyTradeClose,
		Title:     fmt.Sprintf("Trade Closed: %s", symbol),
		Message:   fmt.Sprintf("P&L: %.4f\nReason: %s", pnl, reason),
		Symbol:    symbol,
		PnL:       pnl,
		Timestamp: time.Now(),
	})
}

// SendHedgeOpened sends a hedge opened notification
func (m *Manager) SendHedgeOpened(primarySymbol, hedgeSymbol, reason string, size float64) error {
	return m.Send(&Notification{
		Type:      NotifyHedge,
		Title:     fmt.Sprintf("Hedge Opened: %s", primarySymbol),
		Message:   fmt.Sprintf("Hedging %s via %s, size %.8f\nTrigger: %s", primarySymbol, hedgeSymbol, size, reason),
		Symbol:    primarySymbol,
		Timestamp: time.Now(),
	})
}

// SendError sends an error notification
func (m *Manager) SendError(title, message string) error {
	return m.Send(&Notification{
		Type:      NotifyError,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// SubscribeBus mirrors bus events into notifications
func (m *Manager) SubscribeBus(bus *events.EventBus) {
	bus.Subscribe(events.EventSignalGenerated, func(ev events.Event) {
		m.SendSignal(str(ev.Data["symbol"]), str(ev.Data["tier"]), f64(ev.Data["price"]))
	})
	bus.Subscribe(events.EventTradeOpened, func(ev events.Event) {
		m.SendTradeOpen(str(ev.Data["symbol"]), str(ev.Data["side"]), str(ev.Data["tier"]),
			f64(ev.Data["entry_price"]), f64(ev.Data["quantity"]))
	})
	bus.Subscribe(events.EventTradeClosed, func(ev events.Event) {
		m.SendTradeClose(str(ev.Data["symbol"]), str(ev.Data["reason"]), f64(ev.Data["pnl"]))
	})
	bus.Subscribe(events.EventHedgeOpened, func(ev events.Event) {
		m.SendHedgeOpened(str(ev.Data["primary_symbol"]), str(ev.Data["hedge_symbol"]),
			str(ev.Data["reason"]), f64(ev.Data["size"]))
	})
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func f64(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

// TelegramNotifier sends notifications via Telegram
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(notification *Notification) error {
	if !t.enabled {
		return nil
	}

	message := fmt.Sprintf("*%s*\n\n%s", notification.Title, notification.Message)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// DiscordNotifier sends notifications via Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordConfig holds Discord configuration
type DiscordConfig struct {
	WebhookURL string
	Enabled    bool
}

// NewDiscordNotifier creates a new Discord notifier
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func (d *DiscordNotifier) Send(notification *Notification) error {
	if !d.enabled {
		return nil
	}

	color := 0x00FF00
	if notification.Type == NotifyError || (notification.Type == NotifyTradeClose && notification.PnL < 0) {
		color = 0xFF0000
	}

	embed := map[string]interface{}{
		"title":       notification.Title,
		"description": notification.Message,
		"color":       color,
		"timestamp":   notification.Timestamp.Format(time.RFC3339),
	}

	if notification.Symbol != "" {
		fields := []map[string]interface{}{
			{"name": "Symbol", "value": notification.Symbol, "inline": true},
		}
		if notification.Price > 0 {
			fields = append(fields, map[string]interface{}{
				"name": "Price", "value": fmt.Sprintf("%.4f", notification.Price), "inline": true,
			})
		}
		if notification.PnL != 0 {
			fields = append(fields, map[string]interface{}{
				"name": "P&L", "value": fmt.Sprintf("%.4f", notification.PnL), "inline": true,
			})
		}
		embed["fields"] = fields
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}

	return nil
}
