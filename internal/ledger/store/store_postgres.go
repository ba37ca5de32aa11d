package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"regcore/internal/ledger"
	"regcore/pkg/platform/sentinel"
	"regcore/pkg/platform/tx"
)

const transactionColumns = `
	id, registrar_id, clTRID, clTRIDframe, cldate, clmicrosecond,
	cmd, obj_type, obj_id, code, msg, svTRID, svTRIDframe, svdate, svmicrosecond
`

// PostgresStore writes the transaction_identifier table. Its statements
// also run against the SQLite schema.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, t *ledger.Transaction) (int64, error) {
	query := `
		INSERT INTO transaction_identifier (registrar_id, clTRID, clTRIDframe, cldate, clmicrosecond)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var id int64
	err := tx.Pick(ctx, s.db).QueryRowContext(ctx, query,
		t.RegistrarID,
		t.ClientTRID,
		string(t.ClientFrame),
		t.ClientDate,
		t.ClientMicrosecond,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	return id, nil
}

// Complete sets the server columns of row id and returns the whole row.
// The row is read back with a plain SELECT so the statement runs unchanged
// on SQLite.
func (s *PostgresStore) Complete(ctx context.Context, id int64, o ledger.Outcome, date time.Time, microsecond string) (*ledger.Transaction, error) {
	query := `
		UPDATE transaction_identifier
		SET cmd = $1, obj_type = $2, obj_id = $3, code = $4, msg = $5,
		    svTRID = $6, svTRIDframe = $7, svdate = $8, svmicrosecond = $9
		WHERE id = $10
	`
	res, err := tx.Pick(ctx, s.db).ExecContext(ctx, query,
		nullString(o.Command),
		nullString(o.ObjectType),
		nullString(o.ObjectID),
		o.Code,
		o.Message,
		o.ServerTRID,
		string(o.ServerFrame),
		date,
		microsecond,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("transaction %d: %w", id, sentinel.ErrNotFound)
	}
	return s.Find(ctx, id)
}

func (s *PostgresStore) Find(ctx context.Context, id int64) (*ledger.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transaction_identifier WHERE id = $1`
	t, err := scanTransaction(tx.Pick(ctx, s.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %d: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListByRegistrar(ctx context.Context, registrarID int64, limit int) ([]*ledger.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transaction_identifier
		WHERE registrar_id = $1
		ORDER BY id DESC
		LIMIT $2`
	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx, query, registrarID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*ledger.Transaction, error) {
	var (
		t                                ledger.Transaction
		clFrame, svFrame, svMicro        sql.NullString
		cmd, objType, objID, msg, svTRID sql.NullString
		code                             sql.NullInt64
		svDate                           sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.RegistrarID, &t.ClientTRID, &clFrame, &t.ClientDate, &t.ClientMicrosecond,
		&cmd, &objType, &objID, &code, &msg, &svTRID, &svFrame, &svDate, &svMicro,
	)
	if err != nil {
		return nil, err
	}
	t.ClientDate = t.ClientDate.UTC()
	t.ClientFrame = []byte(clFrame.String)
	t.Command = cmd.String
	t.ObjectType = objType.String
	t.ObjectID = objID.String
	t.Code = int(code.Int64)
	t.Message = msg.String
	t.ServerTRID = svTRID.String
	if svFrame.Valid {
		t.ServerFrame = []byte(svFrame.String)
	}
	if svDate.Valid {
		t.ServerDate = svDate.Time.UTC()
	}
	t.ServerMicrosecond = svMicro.String
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
