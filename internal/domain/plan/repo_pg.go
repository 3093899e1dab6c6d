package plan

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medclaims/medclaims/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type planRepoPG struct{ pool *pgxpool.Pool }

func NewPlanRepoPG(pool *pgxpool.Pool) PlanRepository {
	return &planRepoPG{pool: pool}
}

func (r *planRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const planCols = `id, user_id, member_id, group_number, payer_name, payer_id,
	is_active, is_primary, effective_from, effective_to, created_at, updated_at`

func (r *planRepoPG) scanRow(row pgx.Row) (*InsurancePlan, error) {
	var p InsurancePlan
	err := row.Scan(&p.ID, &p.UserID, &p.MemberID, &p.GroupNumber, &p.PayerName, &p.PayerID,
		&p.IsActive, &p.IsPrimary, &p.EffectiveFrom, &p.EffectiveTo, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *planRepoPG) Create(ctx context.Context, p *InsurancePlan) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO insurance_plans (id, user_id, member_id, group_number, payer_name, payer_id,
			is_active, is_primary, effective_from, effective_to)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.UserID, p.MemberID, p.GroupNumber, p.PayerName, p.PayerID,
		p.IsActive, p.IsPrimary, p.EffectiveFrom, p.EffectiveTo)
	return err
}

func (r *planRepoPG) GetForUser(ctx context.Context, userID, planID uuid.UUID) (*InsurancePlan, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+planCols+` FROM insurance_plans WHERE id = $1 AND user_id = $2`, planID, userID))
}

func (r *planRepoPG) ListByUser(ctx context.Context, userID uuid.UUID) ([]*InsurancePlan, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+planCols+` FROM insurance_plans WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*InsurancePlan
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *planRepoPG) Update(ctx context.Context, p *InsurancePlan) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE insurance_plans SET member_id=$3, group_number=$4, payer_name=$5, payer_id=$6,
			is_active=$7, is_primary=$8, effective_from=$9, effective_to=$10, updated_at=NOW()
		WHERE id = $1 AND user_id = $2`,
		p.ID, p.UserID, p.MemberID, p.GroupNumber, p.PayerName, p.PayerID,
		p.IsActive, p.IsPrimary, p.EffectiveFrom, p.EffectiveTo)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *planRepoPG) Deactivate(ctx context.Context, userID, planID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE insurance_plans SET is_active = FALSE, is_primary = FALSE, updated_at = NOW()
		WHERE id = $1 AND user_id = $2`, planID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
