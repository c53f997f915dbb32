package registry

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/nexsock/nexsockd/internal/protocol"
)

// ErrNotFound is returned by lookups and mutations that operate on a
// row identified by id/ref when no such row exists.
var ErrNotFound = protocol.NewError(protocol.CodeNotFound, "not found")

// classifyWriteError turns a raw *sql.DB error from an insert/update
// into a protocol.ProtocolError. SQLite's driver surfaces constraint
// violations as plain error strings rather than a typed error, so
// classification is done by substring match on the SQLite message.
func classifyWriteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return protocol.WrapError(protocol.CodeAlreadyExists, "duplicate value violates a unique constraint", err)
	case strings.Contains(msg, "CHECK constraint failed"):
		return protocol.WrapError(protocol.CodeInvalidArgument, "value violates a check constraint", err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return protocol.WrapError(protocol.CodeInvalidArgument, "referenced row does not exist", err)
	default:
		return protocol.WrapError(protocol.CodeIO, "database operation failed", err)
	}
}
