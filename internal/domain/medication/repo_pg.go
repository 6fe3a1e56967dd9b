package medication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medagenda/medagenda/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// =========== Order Repository ===========

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository {
	return &orderRepoPG{pool: pool}
}

func (r *orderRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const orderCols = `id, student_id, name, dosage, frequency_description, daily_times,
	start_date, end_date, notes, active,
	attachment_url, attachment_filename, attachment_uploaded_at,
	status, requested_by_id, requested_by_role, requested_at,
	decided_by_id, decided_at, next_dose_at, last_dose_at,
	version, created_at, updated_at`

func scanOrder(row pgx.Row) (*MedicationOrder, error) {
	var o MedicationOrder
	var times []string
	var attURL, attFileName *string
	var attUploadedAt *time.Time
	err := row.Scan(&o.ID, &o.StudentID, &o.Name, &o.Dosage, &o.FrequencyDescription, &times,
		&o.StartDate, &o.EndDate, &o.Notes, &o.Active,
		&attURL, &attFileName, &attUploadedAt,
		&o.Status, &o.RequestedByID, &o.RequestedByRole, &o.RequestedAt,
		&o.DecidedByID, &o.DecidedAt, &o.NextDoseAt, &o.LastDoseAt,
		&o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	o.DailyTimes = make([]TimeOfDay, len(times))
	for i, t := range times {
		o.DailyTimes[i] = TimeOfDay(t)
	}
	if attURL != nil {
		o.Attachment = &Attachment{URL: *attURL, FileName: *attFileName}
		if attUploadedAt != nil {
			o.Attachment.UploadedAt = *attUploadedAt
		}
	}
	return &o, nil
}

func timesToStrings(times []TimeOfDay) []string {
	out := make([]string, len(times))
	for i, t := range times {
		out[i] = string(t)
	}
	return out
}

func (r *orderRepoPG) Create(ctx context.Context, o *MedicationOrder) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	var attURL, attFileName *string
	var attUploadedAt *time.Time
	if o.Attachment != nil {
		attURL = &o.Attachment.URL
		attFileName = &o.Attachment.FileName
		attUploadedAt = &o.Attachment.UploadedAt
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medication_orders (id, student_id, name, dosage, frequency_description, daily_times,
			start_date, end_date, notes, active,
			attachment_url, attachment_filename, attachment_uploaded_at,
			status, requested_by_id, requested_by_role, requested_at,
			decided_by_id, decided_at, next_dose_at, last_dose_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,1)
		RETURNING version, created_at, updated_at`,
		o.ID, o.StudentID, o.Name, o.Dosage, o.FrequencyDescription, timesToStrings(o.DailyTimes),
		o.StartDate, o.EndDate, o.Notes, o.Active,
		attURL, attFileName, attUploadedAt,
		o.Status, o.RequestedByID, o.RequestedByRole, o.RequestedAt,
		o.DecidedByID, o.DecidedAt, o.NextDoseAt, o.LastDoseAt).
		Scan(&o.Version, &o.CreatedAt, &o.UpdatedAt)
	return err
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicationOrder, error) {
	return scanOrder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM medication_orders WHERE id = $1`, id))
}

func (r *orderRepoPG) List(ctx context.Context, f OrderFilter, limit, offset int) ([]*MedicationOrder, int, error) {
	where := "TRUE"
	args := []interface{}{}
	n := 0
	if f.StudentIDs != nil {
		n++
		where += fmt.Sprintf(" AND student_id = ANY($%d)", n)
		args = append(args, f.StudentIDs)
	}
	if f.Status != nil {
		n++
		where += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, *f.Status)
	}
	if f.ActiveOnly {
		where += " AND active"
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM medication_orders WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM medication_orders WHERE %s
		ORDER BY requested_at DESC LIMIT $%d OFFSET $%d`, orderCols, where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*MedicationOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}

func (r *orderRepoPG) UpdateDecision(ctx context.Context, o *MedicationOrder) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medication_orders
		SET status=$3, active=$4, decided_by_id=$5, decided_at=$6, next_dose_at=$7,
			version=version+1, updated_at=NOW()
		WHERE id = $1 AND version = $2 AND status = 'pending'`,
		o.ID, o.Version, o.Status, o.Active, o.DecidedByID, o.DecidedAt, o.NextDoseAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	o.Version++
	return nil
}

func (r *orderRepoPG) UpdateAfterAdministration(ctx context.Context, orderID uuid.UUID, version int64, nextDoseAt *time.Time, lastDoseAt time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medication_orders
		SET next_dose_at=$3, last_dose_at=$4, version=version+1, updated_at=NOW()
		WHERE id = $1 AND version = $2`,
		orderID, version, nextDoseAt, lastDoseAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *orderRepoPG) Deactivate(ctx context.Context, orderID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medication_orders
		SET active=FALSE, next_dose_at=NULL, version=version+1, updated_at=NOW()
		WHERE id = $1`, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// =========== Administration Repository ===========

type administrationRepoPG struct{ pool *pgxpool.Pool }

func NewAdministrationRepoPG(pool *pgxpool.Pool) AdministrationRepository {
	return &administrationRepoPG{pool: pool}
}

func (r *administrationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const recordCols = `id, order_id, student_id, administered_by_id, administered_by_role,
	administered_at, dosage_snapshot, medication_name_snapshot, idempotency_key, created_at`

func scanRecord(row pgx.Row) (*AdministrationRecord, error) {
	var rec AdministrationRecord
	err := row.Scan(&rec.ID, &rec.OrderID, &rec.StudentID, &rec.AdministeredByID, &rec.AdministeredByRole,
		&rec.AdministeredAt, &rec.DosageSnapshot, &rec.MedicationNameSnapshot, &rec.IdempotencyKey, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *administrationRepoPG) Append(ctx context.Context, rec *AdministrationRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO administration_records (id, order_id, student_id, administered_by_id,
			administered_by_role, administered_at, dosage_snapshot, medication_name_snapshot,
			idempotency_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		rec.ID, rec.OrderID, rec.StudentID, rec.AdministeredByID,
		rec.AdministeredByRole, rec.AdministeredAt, rec.DosageSnapshot, rec.MedicationNameSnapshot,
		rec.IdempotencyKey).
		Scan(&rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *administrationRepoPG) GetByIdempotencyKey(ctx context.Context, orderID uuid.UUID, key string) (*AdministrationRecord, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM administration_records
		 WHERE order_id = $1 AND idempotency_key = $2`, orderID, key))
}

func (r *administrationRepoPG) ListByOrder(ctx context.Context, orderID uuid.UUID, limit, offset int) ([]*AdministrationRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM administration_records WHERE order_id = $1`, orderID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+recordCols+` FROM administration_records
		WHERE order_id = $1
		ORDER BY administered_at DESC
		LIMIT $2 OFFSET $3`, orderID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*AdministrationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
