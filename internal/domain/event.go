package domain

import "time"

// Event types published by the notification sink.
const (
	EventDifference = "difference"
	EventSwapLogged = "swapLogged"
	EventLog        = "log"
)

// DifferenceEvent reports how far a bot's current quote is from its target.
// PercentDifference is a display value only.
type DifferenceEvent struct {
	BotID             BotID     `json:"bot_id"`
	InputMint         string    `json:"input_mint"`
	OutputMint        string    `json:"output_mint"`
	CurrentAmount     string    `json:"current_amount"`
	TargetAmount      string    `json:"target_amount"`
	PercentDifference float64   `json:"percent_difference"`
	TradeCount        int       `json:"trade_count"`
	Timestamp         time.Time `json:"timestamp"`
}

// LogLevel classifies log events surfaced to operators.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogEvent is an operator-visible message tied to a bot. Stopped marks the
// message announcing that the bot halted itself.
type LogEvent struct {
	BotID     BotID     `json:"bot_id"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Stopped   bool      `json:"stopped,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Envelope is the JSON frame published on the signal bus.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
