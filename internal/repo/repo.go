package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"contractdesk/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const contractColumns = `id,contract_number,framework_contract_number,is_framework_contract,is_construction_investment,
title,contract_value,signed_date,effective_date,guarantee_expiry_date,delivery_due_date,amendment_notes,
delivered_value,accepted_value,payment_approval_date,warranty_expiry_date,
settlement_value,settlement_date,cumulative_payment_value,is_settled,settlement_completed_at,
issued_by_id,executor_id,settlement_handler_id,created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanContract(row scanner) (domain.Contract, error) {
	var c domain.Contract
	var frameworkNumber, title, signed, effective, guarantee, deliveryDue, amendments sql.NullString
	var paymentApproval, warranty, settlementDate, settlementDone, executorID, handlerID sql.NullString
	var value, delivered, accepted, settlementValue, cumulative sql.NullFloat64
	err := row.Scan(
		&c.ID, &c.ContractNumber, &frameworkNumber, &c.IsFrameworkContract, &c.IsConstructionInvest,
		&title, &value, &signed, &effective, &guarantee, &deliveryDue, &amendments,
		&delivered, &accepted, &paymentApproval, &warranty,
		&settlementValue, &settlementDate, &cumulative, &c.IsSettled, &settlementDone,
		&c.IssuedByID, &executorID, &handlerID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.FrameworkContractNumber = fromNullString(frameworkNumber)
	c.Title = fromNullString(title)
	c.ContractValue = fromNullFloat(value)
	c.SignedDate = fromNullString(signed)
	c.EffectiveDate = fromNullString(effective)
	c.GuaranteeExpiryDate = fromNullString(guarantee)
	c.DeliveryDueDate = fromNullString(deliveryDue)
	c.AmendmentNotes = fromNullString(amendments)
	c.DeliveredValue = fromNullFloat(delivered)
	c.AcceptedValue = fromNullFloat(accepted)
	c.PaymentApprovalDate = fromNullString(paymentApproval)
	c.WarrantyExpiryDate = fromNullString(warranty)
	c.SettlementValue = fromNullFloat(settlementValue)
	c.SettlementDate = fromNullString(settlementDate)
	c.CumulativePaymentValue = fromNullFloat(cumulative)
	c.SettlementCompletedAt = fromNullString(settlementDone)
	c.ExecutorID = fromNullString(executorID)
	c.SettlementHandlerID = fromNullString(handlerID)
	return c, nil
}

func (r Repo) InsertContract(ctx context.Context, tx *sql.Tx, c domain.Contract) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO contracts(`+strings.ReplaceAll(contractColumns, "\n", "")+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ContractNumber, nullableStringPtr(c.FrameworkContractNumber), c.IsFrameworkContract, c.IsConstructionInvest,
		nullableStringPtr(c.Title), nullableFloatPtr(c.ContractValue), nullableStringPtr(c.SignedDate),
		nullableStringPtr(c.EffectiveDate), nullableStringPtr(c.GuaranteeExpiryDate), nullableStringPtr(c.DeliveryDueDate),
		nullableStringPtr(c.AmendmentNotes), nullableFloatPtr(c.DeliveredValue), nullableFloatPtr(c.AcceptedValue),
		nullableStringPtr(c.PaymentApprovalDate), nullableStringPtr(c.WarrantyExpiryDate),
		nullableFloatPtr(c.SettlementValue), nullableStringPtr(c.SettlementDate), nullableFloatPtr(c.CumulativePaymentValue),
		c.IsSettled, nullableStringPtr(c.SettlementCompletedAt),
		c.IssuedByID, nullableStringPtr(c.ExecutorID), nullableStringPtr(c.SettlementHandlerID), c.CreatedAt, c.UpdatedAt)
	return err
}

// UpdateContract rewrites every mutable column. Callers hold the authoritative
// row read inside the same transaction.
func (r Repo) UpdateContract(ctx context.Context, tx *sql.Tx, c domain.Contract) error {
	_, err := tx.ExecContext(ctx, `UPDATE contracts SET
title=?, contract_value=?, signed_date=?, effective_date=?, guarantee_expiry_date=?, delivery_due_date=?, amendment_notes=?,
delivered_value=?, accepted_value=?, payment_approval_date=?, warranty_expiry_date=?,
settlement_value=?, settlement_date=?, cumulative_payment_value=?, is_settled=?, settlement_completed_at=?,
executor_id=?, settlement_handler_id=?, updated_at=?
WHERE id=?`,
		nullableStringPtr(c.Title), nullableFloatPtr(c.ContractValue), nullableStringPtr(c.SignedDate),
		nullableStringPtr(c.EffectiveDate), nullableStringPtr(c.GuaranteeExpiryDate), nullableStringPtr(c.DeliveryDueDate),
		nullableStringPtr(c.AmendmentNotes), nullableFloatPtr(c.DeliveredValue), nullableFloatPtr(c.AcceptedValue),
		nullableStringPtr(c.PaymentApprovalDate), nullableStringPtr(c.WarrantyExpiryDate),
		nullableFloatPtr(c.SettlementValue), nullableStringPtr(c.SettlementDate), nullableFloatPtr(c.CumulativePaymentValue),
		c.IsSettled, nullableStringPtr(c.SettlementCompletedAt),
		nullableStringPtr(c.ExecutorID), nullableStringPtr(c.SettlementHandlerID), c.UpdatedAt, c.ID)
	return err
}

func (r Repo) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	return scanContract(r.DB.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id=?`, id))
}

func (r Repo) GetContractTx(ctx context.Context, tx *sql.Tx, id string) (domain.Contract, error) {
	return scanContract(tx.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id=?`, id))
}

// ContractNumberExists checks both number columns so a framework number can
// never collide with a regular one.
func (r Repo) ContractNumberExists(ctx context.Context, tx *sql.Tx, number string) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM contracts WHERE contract_number=? OR framework_contract_number=? LIMIT 1`, number, number)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

type ContractFilters struct {
	ExecutorID          string
	SettlementHandlerID string
	IssuedByID          string
	ConstructionOnly    bool
	Limit               int
	CursorCreatedAt     string
	CursorID            string
}

func (r Repo) ListContracts(ctx context.Context, f ContractFilters) ([]domain.Contract, error) {
	var clauses []string
	var args []any
	if f.ExecutorID != "" {
		clauses = append(clauses, "executor_id=?")
		args = append(args, f.ExecutorID)
	}
	if f.SettlementHandlerID != "" {
		clauses = append(clauses, "settlement_handler_id=?")
		args = append(args, f.SettlementHandlerID)
	}
	if f.IssuedByID != "" {
		clauses = append(clauses, "issued_by_id=?")
		args = append(args, f.IssuedByID)
	}
	if f.ConstructionOnly {
		clauses = append(clauses, "is_construction_investment=1")
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + contractColumns + ` FROM contracts ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) DeleteContract(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM contracts WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountAssignments counts contracts that reference the actor as issuer,
// executor or settlement handler. Used to block actor deletion: contract
// history must stay attributable, so any reference blocks.
func (r Repo) CountAssignments(ctx context.Context, actorID string) (int, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM contracts WHERE issued_by_id=? OR executor_id=? OR settlement_handler_id=?`,
		actorID, actorID, actorID)
	var n int
	err := row.Scan(&n)
	return n, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func fromNullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
