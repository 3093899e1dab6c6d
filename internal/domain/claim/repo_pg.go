package claim

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/medclaims/medclaims/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type claimRepoPG struct{ pool *pgxpool.Pool }

func NewClaimRepoPG(pool *pgxpool.Pool) ClaimRepository {
	return &claimRepoPG{pool: pool}
}

func (r *claimRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const claimCols = `id, user_id, insurance_plan_id, claim_number, total_charge,
	status, place_of_service, created_at, updated_at`

const lineCols = `id, claim_id, procedure_code, charge, units, service_date,
	diagnosis_codes, created_at, updated_at`

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	err := row.Scan(&c.ID, &c.UserID, &c.PlanID, &c.ClaimNumber, &c.TotalCharge,
		&c.Status, &c.PlaceOfService, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *claimRepoPG) loadLines(ctx context.Context, c *Claim) error {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+lineCols+` FROM claim_lines WHERE claim_id = $1 ORDER BY created_at, id`, c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var l ClaimLine
		if err := rows.Scan(&l.ID, &l.ClaimID, &l.ProcedureCode, &l.Charge, &l.Units,
			&l.ServiceDate, &l.DiagnosisCodes, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return err
		}
		c.Lines = append(c.Lines, &l)
	}
	return rows.Err()
}

func (r *claimRepoPG) Create(ctx context.Context, c *Claim) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claims (id, user_id, insurance_plan_id, claim_number, total_charge, status, place_of_service)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.UserID, c.PlanID, c.ClaimNumber, c.TotalCharge, c.Status, c.PlaceOfService)
	if err != nil {
		return err
	}
	for _, l := range c.Lines {
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO claim_lines (id, claim_id, procedure_code, charge, units, service_date, diagnosis_codes)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			l.ID, l.ClaimID, l.ProcedureCode, l.Charge, l.Units, l.ServiceDate, l.DiagnosisCodes); err != nil {
			return err
		}
	}
	return nil
}

func (r *claimRepoPG) GetForUser(ctx context.Context, userID, claimID uuid.UUID) (*Claim, error) {
	c, err := scanClaim(r.conn(ctx).QueryRow(ctx,
		`SELECT `+claimCols+` FROM claims WHERE id = $1 AND user_id = $2`, claimID, userID))
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *claimRepoPG) LockForUpdate(ctx context.Context, claimID uuid.UUID) (*Claim, error) {
	c, err := scanClaim(r.conn(ctx).QueryRow(ctx,
		`SELECT `+claimCols+` FROM claims WHERE id = $1 FOR UPDATE`, claimID))
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *claimRepoPG) UpdateStatus(ctx context.Context, claimID uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE claims SET status = $2, updated_at = NOW() WHERE id = $1`, claimID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *claimRepoPG) UpdateTotal(ctx context.Context, claimID uuid.UUID, total decimal.Decimal) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE claims SET total_charge = $2, updated_at = NOW() WHERE id = $1`, claimID, total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *claimRepoPG) UpdateLine(ctx context.Context, line *ClaimLine) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE claim_lines SET procedure_code=$2, charge=$3, units=$4, service_date=$5,
			diagnosis_codes=$6, updated_at=NOW()
		WHERE id = $1`,
		line.ID, line.ProcedureCode, line.Charge, line.Units, line.ServiceDate, line.DiagnosisCodes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *claimRepoPG) DeleteLine(ctx context.Context, lineID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM claim_lines WHERE id = $1`, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *claimRepoPG) AppendEvent(ctx context.Context, e *ClaimEvent) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO claim_events (id, claim_id, event_type, event_data)
		VALUES ($1,$2,$3,$4)
		RETURNING seq, created_at`,
		e.ID, e.ClaimID, e.EventType, e.EventData).Scan(&e.Seq, &e.CreatedAt)
}

func (r *claimRepoPG) ListEvents(ctx context.Context, claimID uuid.UUID) ([]*ClaimEvent, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, seq, claim_id, event_type, event_data, created_at
		FROM claim_events WHERE claim_id = $1
		ORDER BY created_at, seq`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []*ClaimEvent
	for rows.Next() {
		var e ClaimEvent
		if err := rows.Scan(&e.ID, &e.Seq, &e.ClaimID, &e.EventType, &e.EventData, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
