package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/octopresence/internal/core"
	"github.com/dkeye/octopresence/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// Querier is the subset of *pgxpool.Pool the repository uses.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const printerStateSQL = `
SELECT p.id::text,
       p.watching_enabled,
       p.current_print_id IS NOT NULL,
       COALESCE(pr.alert_muted_at IS NOT NULL, false),
       u.is_pro,
       u.dh_balance::float8
FROM app_printer p
JOIN app_user u ON u.id = p.user_id
LEFT JOIN app_print pr ON pr.id = p.current_print_id
WHERE p.id::text = $1 AND p.deleted IS NULL`

type PrinterRepository struct {
	db Querier
}

var _ core.PrinterRepository = (*PrinterRepository)(nil)

func NewPrinterRepository(db Querier) *PrinterRepository {
	return &PrinterRepository{db: db}
}

// State loads the fields the watch decision depends on.
func (r *PrinterRepository) State(ctx context.Context, id domain.PrinterID) (domain.PrinterState, error) {
	var s domain.PrinterState
	var rawID string
	err := r.db.QueryRow(ctx, printerStateSQL, string(id)).Scan(
		&rawID,
		&s.WatchingEnabled,
		&s.Printing,
		&s.AlertMuted,
		&s.OwnerIsPro,
		&s.OwnerDHBalance,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PrinterState{}, fmt.Errorf("%w: %s", domain.ErrPrinterNotFound, id)
	}
	if err != nil {
		return domain.PrinterState{}, fmt.Errorf("load printer %s: %w", id, err)
	}
	s.ID = domain.PrinterID(rawID)
	return s, nil
}

// Printer checks that id exists and returns a handle that re-reads the
// record on every ShouldWatch call.
func (r *PrinterRepository) Printer(ctx context.Context, id domain.PrinterID) (core.Printer, error) {
	if _, err := r.State(ctx, id); err != nil {
		return nil, err
	}
	return &printer{id: id, repo: r}, nil
}

func (r *PrinterRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

type printer struct {
	id   domain.PrinterID
	repo *PrinterRepository
}

func (p *printer) ID() domain.PrinterID { return p.id }

func (p *printer) ShouldWatch(ctx context.Context) (bool, error) {
	s, err := p.repo.State(ctx, p.id)
	if err != nil {
		return false, err
	}
	watch := s.ShouldWatch()
	log.Debug().Str("module", "adapters.postgres").Str("printer", string(p.id)).Bool("should_watch", watch).Msg("evaluated")
	return watch, nil
}
