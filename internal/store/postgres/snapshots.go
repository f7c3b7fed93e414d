package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ar-ledger/internal/common/dates"
	"ar-ledger/internal/models"
	"ar-ledger/internal/store"
)

const arColumns = `id, billable_entity_id, customer_name, zone, amount, currency, status,
	invoice_date, due_date, paid_date, assigned_sales_id, customer_address, manager_address,
	created_at, last_event_id, last_event_at, event_count, version, billing_day`

const arSetClause = `billable_entity_id = $2, customer_name = $3, zone = $4, amount = $5,
	currency = $6, status = $7, invoice_date = $8, due_date = $9, paid_date = $10,
	assigned_sales_id = $11, customer_address = $12, manager_address = $13, created_at = $14,
	last_event_id = $15, last_event_at = $16, event_count = $17, version = $18, billing_day = $19`

const arPlaceholders = `$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19`

// SnapshotStore is the materialized AR view table. Conditional writes compare
// the version column.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) Insert(ctx context.Context, ar *models.AR) error {
	args, err := arArgs(ar)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ar_snapshots (`+arColumns+`)
		VALUES (`+arPlaceholders+`)
		ON CONFLICT (id) DO NOTHING`, args...)
	if err != nil {
		return unavailable("insert snapshot", err)
	}
	return expectOneRow(res, "insert snapshot")
}

func (s *SnapshotStore) Update(ctx context.Context, ar *models.AR, expectedVersion int64) error {
	args, err := arArgs(ar)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE ar_snapshots SET `+arSetClause+`
		WHERE id = $1 AND version = $20`, append(args, expectedVersion)...)
	if err != nil {
		return unavailable("update snapshot", err)
	}
	return expectOneRow(res, "update snapshot")
}

func (s *SnapshotStore) Put(ctx context.Context, ar *models.AR) error {
	args, err := arArgs(ar)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ar_snapshots (`+arColumns+`)
		VALUES (`+arPlaceholders+`)
		ON CONFLICT (id) DO UPDATE SET `+arSetClause, args...)
	if err != nil {
		return unavailable("put snapshot", err)
	}
	return nil
}

func (s *SnapshotStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ar_snapshots WHERE id = $1`, id); err != nil {
		return unavailable("delete snapshot", err)
	}
	return nil
}

func (s *SnapshotStore) Get(ctx context.Context, id string) (*models.AR, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+arColumns+` FROM ar_snapshots WHERE id = $1`, id)
	ar, err := scanAR(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get snapshot", err)
	}
	return ar, nil
}

func (s *SnapshotStore) ListByBillableEntity(ctx context.Context, billableEntityID string) ([]*models.AR, error) {
	return s.list(ctx, "list by billable entity", `WHERE billable_entity_id = $1`, billableEntityID)
}

func (s *SnapshotStore) ListByZone(ctx context.Context, zone string) ([]*models.AR, error) {
	return s.list(ctx, "list by zone", `WHERE zone = $1`, zone)
}

func (s *SnapshotStore) ListByStatus(ctx context.Context, status models.ARStatus) ([]*models.AR, error) {
	return s.list(ctx, "list by status", `WHERE status = $1`, string(status))
}

func (s *SnapshotStore) ListByDueDateAndStatus(ctx context.Context, dueDate time.Time, status models.ARStatus) ([]*models.AR, error) {
	return s.list(ctx, "list by due date and status", `WHERE due_date = $1 AND status = $2`,
		dates.Civil(dueDate), string(status))
}

func (s *SnapshotStore) ListOverdue(ctx context.Context, asOf time.Time) ([]*models.AR, error) {
	return s.list(ctx, "list overdue", `WHERE status IN ('PENDING', 'OVERDUE') AND due_date < $1`,
		dates.Civil(asOf))
}

func (s *SnapshotStore) ListByAssignedSales(ctx context.Context, salesID string) ([]*models.AR, error) {
	return s.list(ctx, "list by assigned sales", `WHERE assigned_sales_id = $1`, salesID)
}

func (s *SnapshotStore) ListAll(ctx context.Context, page store.Page) ([]*models.AR, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = 100
	}
	return s.queryARs(ctx, "list all", `SELECT `+arColumns+` FROM ar_snapshots
		ORDER BY due_date, id
		LIMIT $1 OFFSET $2`, limit, page.Offset)
}

func (s *SnapshotStore) FindByBillableAndDueDate(ctx context.Context, billableEntityID string, dueDate time.Time) (*models.AR, error) {
	found, err := s.list(ctx, "find by billable and due date",
		`WHERE billable_entity_id = $1 AND due_date = $2`, billableEntityID, dates.Civil(dueDate))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, store.ErrNotFound
	}
	return found[0], nil
}

func (s *SnapshotStore) ListActiveBillableEntities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT billable_entity_id FROM ar_snapshots
		WHERE status <> 'WRITTEN_OFF'
		ORDER BY billable_entity_id`)
	if err != nil {
		return nil, unavailable("list active billable entities", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("scan billable entity", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list active billable entities", err)
	}
	return out, nil
}

func (s *SnapshotStore) list(ctx context.Context, op, where string, args ...interface{}) ([]*models.AR, error) {
	return s.queryARs(ctx, op, `SELECT `+arColumns+` FROM ar_snapshots `+where+` ORDER BY due_date, id`, args...)
}

func (s *SnapshotStore) queryARs(ctx context.Context, op, q string, args ...interface{}) ([]*models.AR, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	out := make([]*models.AR, 0)
	for rows.Next() {
		ar, err := scanAR(rows)
		if err != nil {
			return nil, unavailable(op, err)
		}
		out = append(out, ar)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

func arArgs(ar *models.AR) ([]interface{}, error) {
	customer, err := encodeAddress(ar.CustomerAddress)
	if err != nil {
		return nil, err
	}
	manager, err := encodeAddress(ar.ManagerAddress)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		ar.ID, ar.BillableEntityID, ar.CustomerName, ar.Zone,
		ar.Amount.Amount, ar.Amount.Currency, string(ar.Status),
		ar.InvoiceDate, ar.DueDate, nullTime(ar.PaidDate), nullString(ar.AssignedSalesID),
		customer, manager,
		ar.CreatedAt.UTC(), ar.LastEventID, ar.LastEventAt.UTC(), ar.EventCount, ar.Version,
		ar.BillingDay,
	}, nil
}

func scanAR(row rowScanner) (*models.AR, error) {
	var (
		ar       models.AR
		status   string
		paid     sql.NullTime
		sales    sql.NullString
		customer []byte
		manager  []byte
	)
	err := row.Scan(&ar.ID, &ar.BillableEntityID, &ar.CustomerName, &ar.Zone,
		&ar.Amount.Amount, &ar.Amount.Currency, &status,
		&ar.InvoiceDate, &ar.DueDate, &paid, &sales, &customer, &manager,
		&ar.CreatedAt, &ar.LastEventID, &ar.LastEventAt, &ar.EventCount, &ar.Version, &ar.BillingDay)
	if err != nil {
		return nil, err
	}
	ar.Status = models.ARStatus(status)
	ar.InvoiceDate = dates.Civil(ar.InvoiceDate)
	ar.DueDate = dates.Civil(ar.DueDate)
	ar.PaidDate = timePtr(paid)
	ar.AssignedSalesID = stringPtr(sales)
	ar.CreatedAt = ar.CreatedAt.UTC()
	ar.LastEventAt = ar.LastEventAt.UTC()
	if ar.BillingDay == 0 {
		ar.BillingDay = ar.DueDate.Day()
	}

	if ar.CustomerAddress, err = decodeAddress(customer); err != nil {
		return nil, err
	}
	if ar.ManagerAddress, err = decodeAddress(manager); err != nil {
		return nil, err
	}
	return &ar, nil
}

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, store.ErrVersionConflict)
	}
	return nil
}
