package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/garyjia/approval-workflow/internal/application/port"
	"github.com/garyjia/approval-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/approval-workflow/internal/domain/workflow"
	"github.com/garyjia/approval-workflow/internal/infrastructure/persistence/sqlite"
)

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sqlite.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

type requestRow struct {
	ID             string        `db:"id"`
	Type           string        `db:"request_type"`
	RequesterID    string        `db:"requester_id"`
	Description    string        `db:"description"`
	Amount         int64         `db:"amount"`
	ApprovedAmount sql.NullInt64 `db:"approved_amount"`
	Status         string        `db:"status"`
	StageIndex     int           `db:"stage_index"`
	Version        int64         `db:"version"`
	RejectedFrom   string        `db:"rejected_from"`
	CreatedAt      time.Time     `db:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at"`
}

func (r requestRow) toEntity() *entity.Request {
	req := &entity.Request{
		ID:           r.ID,
		Type:         r.Type,
		RequesterID:  r.RequesterID,
		Description:  r.Description,
		Amount:       r.Amount,
		Status:       domainwf.State(r.Status),
		StageIndex:   r.StageIndex,
		Version:      r.Version,
		RejectedFrom: domainwf.State(r.RejectedFrom),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.ApprovedAmount.Valid {
		v := r.ApprovedAmount.Int64
		req.ApprovedAmount = &v
	}
	return req
}

const requestColumns = `id, request_type, requester_id, description, amount, approved_amount,
	status, stage_index, version, rejected_from, created_at, updated_at`

// Create inserts a new request
func (r *RequestRepository) Create(ctx context.Context, req *entity.Request) error {
	query := `INSERT INTO approval_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		req.ID,
		req.Type,
		req.RequesterID,
		req.Description,
		req.Amount,
		nullInt64(req.ApprovedAmount),
		req.Status.String(),
		req.StageIndex,
		req.Version,
		req.RejectedFrom.String(),
		req.CreatedAt.UTC(),
		req.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.String("id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// GetByID returns nil, nil when no request matches
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM approval_requests WHERE id = ?`

	var row requestRow
	err := r.db.Executor(ctx).GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return row.toEntity(), nil
}

// CompareAndSwap writes next only while the stored version equals expectedVersion
func (r *RequestRepository) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, next *entity.Request) (bool, error) {
	if next.Version != expectedVersion+1 {
		return false, fmt.Errorf("next version %d does not follow %d", next.Version, expectedVersion)
	}

	query := `
		UPDATE approval_requests
		SET amount = ?, approved_amount = ?, status = ?, stage_index = ?,
			version = ?, rejected_from = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		next.Amount,
		nullInt64(next.ApprovedAmount),
		next.Status.String(),
		next.StageIndex,
		next.Version,
		next.RejectedFrom.String(),
		next.UpdatedAt.UTC(),
		id,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update request", zap.String("id", id), zap.Int64("expected_version", expectedVersion), zap.Error(err))
		return false, fmt.Errorf("failed to update request: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// Query returns matching requests ascending by creation time
func (r *RequestRepository) Query(ctx context.Context, filter entity.RequestFilter) ([]*entity.Request, error) {
	if filter.Statuses != nil && len(filter.Statuses) == 0 {
		return []*entity.Request{}, nil
	}

	query, args, err := buildRequestQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build request query: %w", err)
	}

	var rows []requestRow
	if err := r.db.Executor(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.Error("Failed to query requests", zap.Error(err))
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}

	requests := make([]*entity.Request, len(rows))
	for i, row := range rows {
		requests[i] = row.toEntity()
	}
	return requests, nil
}

func buildRequestQuery(f entity.RequestFilter) (string, []interface{}, error) {
	var (
		where []string
		args  []interface{}
	)

	if f.Type != "" {
		where = append(where, "request_type = ?")
		args = append(args, f.Type)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = s.String()
		}
		clause, inArgs, err := sqlx.In("status IN (?)", statuses)
		if err != nil {
			return "", nil, err
		}
		where = append(where, clause)
		args = append(args, inArgs...)
	}
	if text := strings.TrimSpace(f.Text); text != "" {
		pattern := "%" + escapeLike(strings.ToLower(text)) + "%"
		where = append(where, `(LOWER(requester_id) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if f.CreatedFrom != nil {
		where = append(where, "created_at >= ?")
		args = append(args, f.CreatedFrom.UTC())
	}
	if f.CreatedTo != nil {
		where = append(where, "created_at <= ?")
		args = append(args, f.CreatedTo.UTC())
	}
	if f.MinAmount != nil {
		where = append(where, "amount >= ?")
		args = append(args, *f.MinAmount)
	}
	if f.MaxAmount != nil {
		where = append(where, "amount <= ?")
		args = append(args, *f.MaxAmount)
	}
	if f.UpdatedBefore != nil {
		where = append(where, "updated_at < ?")
		args = append(args, f.UpdatedBefore.UTC())
	}

	var b strings.Builder
	b.WriteString("SELECT " + requestColumns + " FROM approval_requests")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at ASC, id ASC")

	if f.Limit > 0 || f.Offset > 0 {
		limit := -1
		if f.Limit > 0 {
			limit = f.Limit
		}
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, f.Offset)
	}

	return b.String(), args, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
