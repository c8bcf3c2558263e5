package tenant

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Session-setting names read by the row-level-security policies. The
// policies treat an unset account id as "no rows": absence of context
// fails closed.
const (
	SettingAccountID = "quicklaunch.account_id"
	SettingIsAdmin   = "quicklaunch.is_admin"
)

// Bind writes the tenant scope into transaction-local session settings.
// set_config with is_local=true scopes the values to the surrounding
// transaction, so binding is atomic with the request transaction and a
// pooled connection returns to the pool with both settings cleared.
func Bind(ctx context.Context, tx *sql.Tx, tc Context) error {
	if !tc.Valid() {
		return ErrMissingAccount
	}
	accountID := ""
	if tc.AccountID != uuid.Nil {
		accountID = tc.AccountID.String()
	}
	_, err := tx.ExecContext(ctx,
		`select set_config($1, $2, true), set_config($3, $4, true)`,
		SettingAccountID, accountID,
		SettingIsAdmin, fmt.Sprintf("%t", tc.IsAdmin),
	)
	if err != nil {
		return fmt.Errorf("tenant: bind session: %w", err)
	}
	return nil
}

// RunTx executes fn inside a transaction bound to the tenant scope.
// Every query fn issues sees only rows the RLS policies expose for tc.
func RunTx(ctx context.Context, db *sql.DB, tc Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := Bind(ctx, tx, tc); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
