package domain

import "time"

// SwapResult describes a confirmed swap. OutAmount is the amount actually
// received as verified on the ledger; QuotedOutAmount is the estimate.
type SwapResult struct {
	Signature       string
	InputMint       string
	OutputMint      string
	InAmount        int64
	OutAmount       int64
	QuotedOutAmount int64
	ExecutedAt      time.Time
}

// SwapRecord is one row of swap history.
type SwapRecord struct {
	ID         string    `json:"id"`
	BotID      BotID     `json:"bot_id"`
	InputMint  string    `json:"input_mint"`
	OutputMint string    `json:"output_mint"`
	InAmount   int64     `json:"in_amount"`
	OutAmount  int64     `json:"out_amount"`
	Signature  string    `json:"signature"`
	ExecutedAt time.Time `json:"executed_at"`
}
