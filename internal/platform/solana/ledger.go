// Package solana is the ledger adapter: account lookups, transaction
// signing and submission, confirmation and post-trade balance verification
// over the Solana JSON-RPC API.
package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

const nativeDecimals = 9

// Config configures a Ledger.
type Config struct {
	RPCURL        string
	Commitment    string
	SkipPreflight bool
	MaxRetries    uint
	ConfirmPoll   time.Duration
}

// Ledger implements the engine's ledger port on a Solana RPC node.
type Ledger struct {
	rpc           *rpc.Client
	commitment    rpc.CommitmentType
	skipPreflight bool
	maxRetries    uint
	poll          time.Duration
	logger        *slog.Logger

	decimals sync.Map // mint -> uint8
}

// NewLedger creates a Ledger for cfg.RPCURL.
func NewLedger(cfg Config, logger *slog.Logger) *Ledger {
	return newLedger(rpc.New(cfg.RPCURL), cfg, logger)
}

func newLedger(client *rpc.Client, cfg Config, logger *slog.Logger) *Ledger {
	poll := cfg.ConfirmPoll
	if poll <= 0 {
		poll = 2 * time.Second
	}
	commitment := rpc.CommitmentType(cfg.Commitment)
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		rpc:           client,
		commitment:    commitment,
		skipPreflight: cfg.SkipPreflight,
		maxRetries:    cfg.MaxRetries,
		poll:          poll,
		logger:        logger.With(slog.String("component", "solana")),
	}
}

// ResolveWalletAddress checks that the wallet's address parses and that the
// node can see it.
func (l *Ledger) ResolveWalletAddress(ctx context.Context, wallet domain.Wallet) (string, error) {
	owner, err := solanago.PublicKeyFromBase58(wallet.PublicKey())
	if err != nil {
		return "", fmt.Errorf("solana: wallet address: %w", err)
	}
	bal, err := l.rpc.GetBalance(ctx, owner, l.commitment)
	if err != nil {
		return "", fmt.Errorf("solana: get balance %s: %w", owner, err)
	}
	l.logger.DebugContext(ctx, "wallet resolved", slog.String("owner", owner.String()), slog.Uint64("lamports", bal.Value))
	return owner.String(), nil
}

// TokenAccount returns the owner's account holding mint. Native SOL is held
// by the owner account itself. When the owner has no account yet the
// associated token address is returned; the swap creates it.
func (l *Ledger) TokenAccount(ctx context.Context, owner, mint string) (string, error) {
	ownerKey, mintKey, err := parsePair(owner, mint)
	if err != nil {
		return "", err
	}
	if mintKey.Equals(solanago.SolMint) {
		return ownerKey.String(), nil
	}

	res, err := l.rpc.GetTokenAccountsByOwner(ctx, ownerKey,
		&rpc.GetTokenAccountsConfig{Mint: &mintKey},
		&rpc.GetTokenAccountsOpts{Commitment: l.commitment, Encoding: solanago.EncodingBase64},
	)
	if err != nil {
		return "", fmt.Errorf("solana: token accounts for %s/%s: %w", owner, mint, err)
	}
	if res != nil && len(res.Value) > 0 {
		return res.Value[0].Pubkey.String(), nil
	}

	ata, _, err := solanago.FindAssociatedTokenAddress(ownerKey, mintKey)
	if err != nil {
		return "", fmt.Errorf("solana: associated token address for %s/%s: %w", owner, mint, err)
	}
	return ata.String(), nil
}

// TokenDecimals returns the mint's decimals. Results are cached for the life
// of the Ledger.
func (l *Ledger) TokenDecimals(ctx context.Context, mint string) (uint8, error) {
	if v, ok := l.decimals.Load(mint); ok {
		return v.(uint8), nil
	}
	mintKey, err := solanago.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("solana: mint %q: %w", mint, err)
	}
	if mintKey.Equals(solanago.SolMint) {
		l.decimals.Store(mint, uint8(nativeDecimals))
		return nativeDecimals, nil
	}
	res, err := l.rpc.GetTokenSupply(ctx, mintKey, l.commitment)
	if err != nil {
		return 0, fmt.Errorf("solana: token supply %s: %w", mint, err)
	}
	if res == nil || res.Value == nil {
		return 0, fmt.Errorf("solana: token supply %s: %w", mint, domain.ErrNotFound)
	}
	l.decimals.Store(mint, res.Value.Decimals)
	return res.Value.Decimals, nil
}

// LatestBlockhash returns a recent blockhash and its expiry height.
func (l *Ledger) LatestBlockhash(ctx context.Context) (domain.Blockhash, error) {
	res, err := l.rpc.GetLatestBlockhash(ctx, l.commitment)
	if err != nil {
		return domain.Blockhash{}, fmt.Errorf("solana: latest blockhash: %w", err)
	}
	return domain.Blockhash{
		Hash:             res.Value.Blockhash.String(),
		ValidUntilHeight: res.Value.LastValidBlockHeight,
	}, nil
}

// Submit signs tx with wallet and sends it. A transaction whose blockhash has
// already expired is rejected before sending.
func (l *Ledger) Submit(ctx context.Context, wallet domain.Wallet, swap domain.SwapTransaction) (string, error) {
	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(swap.Payload))
	if err != nil {
		return "", fmt.Errorf("solana: decode transaction: %w", err)
	}

	if swap.LastValidBlockHeight > 0 {
		height, err := l.rpc.GetBlockHeight(ctx, l.commitment)
		if err != nil {
			return "", fmt.Errorf("solana: block height: %w", err)
		}
		if height > swap.LastValidBlockHeight {
			return "", fmt.Errorf("solana: %w: blockhash expired at height %d, now %d", domain.ErrSwapFailed, swap.LastValidBlockHeight, height)
		}
	}

	if err := signTransaction(tx, wallet); err != nil {
		return "", err
	}

	maxRetries := l.maxRetries
	sig, err := l.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       l.skipPreflight,
		PreflightCommitment: l.commitment,
		MaxRetries:          &maxRetries,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("solana: send transaction: %w: %w", domain.ErrTimeout, err)
		}
		return "", fmt.Errorf("solana: send transaction: %w: %v", domain.ErrSwapFailed, err)
	}
	l.logger.InfoContext(ctx, "transaction sent", slog.String("signature", sig.String()))
	return sig.String(), nil
}

// signTransaction places wallet's signature in the slot reserved for it.
func signTransaction(tx *solanago.Transaction, wallet domain.Wallet) error {
	owner, err := solanago.PublicKeyFromBase58(wallet.PublicKey())
	if err != nil {
		return fmt.Errorf("solana: wallet address: %w", err)
	}
	required := int(tx.Message.Header.NumRequiredSignatures)
	idx := -1
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(owner) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("solana: %w: %s is not a signer of the transaction", domain.ErrSigningFailed, owner)
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("solana: encode message: %w", err)
	}
	raw, err := wallet.Sign(msg)
	if err != nil {
		return err
	}
	if len(raw) != len(solanago.Signature{}) {
		return fmt.Errorf("solana: %w: signature length %d", domain.ErrSigningFailed, len(raw))
	}

	if len(tx.Signatures) < required {
		sigs := make([]solanago.Signature, required)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}
	tx.Signatures[idx] = solanago.SignatureFromBytes(raw)
	return nil
}

// Confirm polls the signature status until it reaches the configured
// commitment, fails on chain, or ctx expires.
func (l *Ledger) Confirm(ctx context.Context, signature string) error {
	sig, err := solanago.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("solana: signature %q: %w", signature, err)
	}

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		done, err := l.checkStatus(ctx, sig)
		if err != nil || done {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("solana: confirm %s: %w: %w", signature, domain.ErrTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Ledger) checkStatus(ctx context.Context, sig solanago.Signature) (bool, error) {
	res, err := l.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		l.logger.WarnContext(ctx, "signature status unavailable", slog.String("signature", sig.String()), slog.String("error", err.Error()))
		return false, nil
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return false, nil
	}
	st := res.Value[0]
	if st.Err != nil {
		return false, fmt.Errorf("solana: %w: transaction %s failed: %v", domain.ErrSwapFailed, sig, st.Err)
	}
	return reached(st.ConfirmationStatus, l.commitment), nil
}

func reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	rank := map[string]int{"processed": 1, "confirmed": 2, "finalized": 3}
	return rank[string(status)] >= rank[string(want)] && rank[string(status)] > 0
}

// ReceivedAmount returns how much of mint the owner gained in the
// transaction, in base units. Transaction metadata can lag confirmation, so
// the lookup is retried until ctx expires.
func (l *Ledger) ReceivedAmount(ctx context.Context, signature, owner, mint string) (int64, error) {
	sig, err := solanago.SignatureFromBase58(signature)
	if err != nil {
		return 0, fmt.Errorf("solana: signature %q: %w", signature, err)
	}
	ownerKey, mintKey, err := parsePair(owner, mint)
	if err != nil {
		return 0, err
	}

	version := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solanago.EncodingBase64,
		Commitment:                     l.commitment,
		MaxSupportedTransactionVersion: &version,
	}
	for {
		res, err := l.rpc.GetTransaction(ctx, sig, opts)
		if err == nil && res != nil && res.Meta != nil {
			return receivedFromMeta(res, ownerKey, mintKey)
		}
		if err != nil && !errors.Is(err, rpc.ErrNotFound) {
			l.logger.WarnContext(ctx, "transaction lookup failed", slog.String("signature", signature), slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("solana: transaction %s: %w: %w", signature, domain.ErrTimeout, ctx.Err())
		case <-time.After(l.poll):
		}
	}
}

func receivedFromMeta(res *rpc.GetTransactionResult, owner, mint solanago.PublicKey) (int64, error) {
	meta := res.Meta
	if meta.Err != nil {
		return 0, fmt.Errorf("solana: %w: transaction failed: %v", domain.ErrSwapFailed, meta.Err)
	}

	delta, err := tokenDelta(meta.PreTokenBalances, meta.PostTokenBalances, owner, mint)
	if err != nil {
		return 0, err
	}
	if !mint.Equals(solanago.SolMint) {
		return delta, nil
	}

	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return 0, fmt.Errorf("solana: decode transaction: %w", err)
	}
	for i, key := range tx.Message.AccountKeys {
		if !key.Equals(owner) || i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
			continue
		}
		native := int64(meta.PostBalances[i]) - int64(meta.PreBalances[i])
		if i == 0 {
			native += int64(meta.Fee)
		}
		delta += native
		break
	}
	return delta, nil
}

func tokenDelta(pre, post []rpc.TokenBalance, owner, mint solanago.PublicKey) (int64, error) {
	sum := func(balances []rpc.TokenBalance) (int64, error) {
		var total int64
		for _, b := range balances {
			if b.Owner == nil || !b.Owner.Equals(owner) || !b.Mint.Equals(mint) || b.UiTokenAmount == nil {
				continue
			}
			n, err := strconv.ParseInt(b.UiTokenAmount.Amount, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("solana: token amount %q: %w", b.UiTokenAmount.Amount, domain.ErrAmountOverflow)
			}
			total += n
		}
		return total, nil
	}
	before, err := sum(pre)
	if err != nil {
		return 0, err
	}
	after, err := sum(post)
	if err != nil {
		return 0, err
	}
	return after - before, nil
}

func parsePair(owner, mint string) (solanago.PublicKey, solanago.PublicKey, error) {
	ownerKey, err := solanago.PublicKeyFromBase58(owner)
	if err != nil {
		return solanago.PublicKey{}, solanago.PublicKey{}, fmt.Errorf("solana: owner %q: %w", owner, err)
	}
	mintKey, err := solanago.PublicKeyFromBase58(mint)
	if err != nil {
		return solanago.PublicKey{}, solanago.PublicKey{}, fmt.Errorf("solana: mint %q: %w", mint, err)
	}
	return ownerKey, mintKey, nil
}
