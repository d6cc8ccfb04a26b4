package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	billing "prepaid-billing/internal/billing/domain"
)

const uniqueViolation = "23505"

// Classify maps driver errors onto the billing error taxonomy.
// Connection loss, serialization failures and deadlocks become transient; unique violations become duplicates.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *billing.Error
	if errors.As(err, &be) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == uniqueViolation:
			return &billing.Error{Kind: billing.KindDuplicate, Message: op + ": " + pgErr.ConstraintName, Err: err}
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "40001",
			pgErr.Code == "40P01",
			pgErr.Code == "57P01",
			pgErr.Code == "53300":
			return billing.Transient(op, err)
		}
		return fmt.Errorf("billing postgres: %s: %w", op, err)
	}
	if errors.Is(err, driver.ErrBadConn) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return billing.Transient(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return billing.Transient(op, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("billing postgres: %s: %w", op, err)
}
