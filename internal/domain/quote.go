package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QuoteRequest asks the provider to price amount of InputMint into OutputMint.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      int64
	Mode        SwapMode
	SlippageBps int
}

// Validate rejects empty mints and non-positive amounts.
func (r QuoteRequest) Validate() error {
	if strings.TrimSpace(r.InputMint) == "" || strings.TrimSpace(r.OutputMint) == "" {
		return fmt.Errorf("%w: input and output mint are required", ErrInvalidQuoteRequest)
	}
	if r.InputMint == r.OutputMint {
		return fmt.Errorf("%w: input and output mint must differ", ErrInvalidQuoteRequest)
	}
	if r.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidQuoteRequest, r.Amount)
	}
	return nil
}

// Quote is a priced route returned by the provider. It is immutable once
// returned; Raw carries the provider payload needed to build the swap.
type Quote struct {
	InputMint      string
	OutputMint     string
	InAmount       int64
	OutAmount      int64
	MinOutAmount   int64
	Mode           SwapMode
	SlippageBps    int
	PriceImpactPct float64
	RouteLabels    []string
	Raw            json.RawMessage
}

// SwapTransaction is a provider-built, unsigned transaction ready to be signed
// and submitted by the ledger.
type SwapTransaction struct {
	Payload              []byte
	LastValidBlockHeight uint64
}

// Blockhash is a recent ledger blockhash with its validity horizon.
type Blockhash struct {
	Hash             string
	ValidUntilHeight uint64
}

// Wallet is the signing identity a bot trades with.
type Wallet interface {
	PublicKey() string
	Sign(message []byte) ([]byte, error)
}
