package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
)

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation constraint. When constraintName is provided, the helper looks
// for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if pkgerrors.SQLState(err) == "23505" && constraintName == "" {
		return true
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value")
}

// Classify maps a raw database failure into the platform error taxonomy.
// Already-typed errors pass through untouched.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, message)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, message)
	}

	state := pkgerrors.SQLState(err)
	switch {
	case state == "40001", state == "40P01", state == "55P03":
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, message)
	case strings.HasPrefix(state, "08"), state == "57P01", state == "57P03", strings.HasPrefix(state, "53"):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
	case state != "":
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
	}

	if isConnectivityError(err) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}

func isConnectivityError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
