package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// BotConfigStore implements domain.BotConfigStore. The variant payload is
// stored as JSONB next to the queryable id, kind and active columns.
type BotConfigStore struct {
	pool *pgxpool.Pool
}

// NewBotConfigStore creates a BotConfigStore backed by pool.
func NewBotConfigStore(pool *pgxpool.Pool) *BotConfigStore {
	return &BotConfigStore{pool: pool}
}

const botConfigCols = `id, kind, active, config_json, updated_at`

// Get retrieves a configuration by bot id.
func (s *BotConfigStore) Get(ctx context.Context, id domain.BotID) (domain.BotConfig, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+botConfigCols+` FROM bot_configs WHERE id = $1`, id)
	cfg, err := scanBotConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BotConfig{}, domain.ErrNotFound
		}
		return domain.BotConfig{}, fmt.Errorf("postgres: get bot config %s: %w", id, err)
	}
	return cfg, nil
}

// Save upserts cfg.
func (s *BotConfigStore) Save(ctx context.Context, cfg domain.BotConfig) error {
	if err := cfg.ValidateShape(); err != nil {
		return err
	}
	payload, err := marshalVariant(cfg)
	if err != nil {
		return fmt.Errorf("postgres: marshal bot config %s: %w", cfg.ID, err)
	}
	updated := cfg.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	const query = `
		INSERT INTO bot_configs (id, kind, active, config_json, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			kind        = EXCLUDED.kind,
			active      = EXCLUDED.active,
			config_json = EXCLUDED.config_json,
			updated_at  = EXCLUDED.updated_at`

	if _, err := s.pool.Exec(ctx, query, cfg.ID, string(cfg.Kind), cfg.Active, payload, updated); err != nil {
		return fmt.Errorf("postgres: save bot config %s: %w", cfg.ID, err)
	}
	return nil
}

// SetActive flips the active flag without touching the payload.
func (s *BotConfigStore) SetActive(ctx context.Context, id domain.BotID, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bot_configs SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("postgres: set bot %s active=%t: %w", id, active, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns every configuration ordered by id.
func (s *BotConfigStore) List(ctx context.Context) ([]domain.BotConfig, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+botConfigCols+` FROM bot_configs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bot configs: %w", err)
	}
	defer rows.Close()

	var configs []domain.BotConfig
	for rows.Next() {
		cfg, err := scanBotConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bot config: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bot configs rows: %w", err)
	}
	return configs, nil
}

func marshalVariant(cfg domain.BotConfig) ([]byte, error) {
	if cfg.Kind == domain.BotKindSinglePair {
		return json.Marshal(cfg.SinglePair)
	}
	return json.Marshal(cfg.MultiTarget)
}

func scanBotConfig(row pgx.Row) (domain.BotConfig, error) {
	var (
		cfg     domain.BotConfig
		kind    string
		payload []byte
	)
	if err := row.Scan(&cfg.ID, &kind, &cfg.Active, &payload, &cfg.UpdatedAt); err != nil {
		return domain.BotConfig{}, err
	}
	cfg.Kind = domain.BotKind(kind)

	switch cfg.Kind {
	case domain.BotKindSinglePair:
		cfg.SinglePair = new(domain.SinglePairConfig)
		if err := json.Unmarshal(payload, cfg.SinglePair); err != nil {
			return domain.BotConfig{}, fmt.Errorf("unmarshal %s payload: %w", cfg.ID, err)
		}
	case domain.BotKindMultiTarget:
		cfg.MultiTarget = new(domain.MultiTargetConfig)
		if err := json.Unmarshal(payload, cfg.MultiTarget); err != nil {
			return domain.BotConfig{}, fmt.Errorf("unmarshal %s payload: %w", cfg.ID, err)
		}
	default:
		return domain.BotConfig{}, fmt.Errorf("%w: unknown kind %q for %s", domain.ErrInvalidConfig, kind, cfg.ID)
	}
	return cfg, nil
}

var _ domain.BotConfigStore = (*BotConfigStore)(nil)
