package uowgorm

import (
	"context"
	"errors"
	"strings"

	"github.com/lemmego/uow"
	"gorm.io/gorm"
)

// convertGormError maps GORM and driver errors onto uow error kinds.
func convertGormError(err error) error {
	if err == nil {
		return nil
	}

	var uowErr uow.Error
	if errors.As(err, &uowErr) {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return uow.NewErrorWithCause(uow.ErrorKindNotFound, "record not found", err)
	case errors.Is(err, gorm.ErrInvalidTransaction):
		return uow.NewErrorWithCause(uow.ErrorKindResource, "invalid transaction", err)
	case errors.Is(err, gorm.ErrNotImplemented):
		return uow.NewErrorWithCause(uow.ErrorKindUnsupported, "operation not implemented", err)
	case errors.Is(err, gorm.ErrUnsupportedRelation):
		return uow.NewErrorWithCause(uow.ErrorKindUnsupported, "unsupported relation", err)
	case errors.Is(err, gorm.ErrMissingWhereClause):
		return uow.NewErrorWithCause(uow.ErrorKindInvalidArgument, "missing where clause", err)
	case errors.Is(err, gorm.ErrPrimaryKeyRequired):
		return uow.NewErrorWithCause(uow.ErrorKindInvalidArgument, "primary key required", err)
	case errors.Is(err, gorm.ErrModelValueRequired):
		return uow.NewErrorWithCause(uow.ErrorKindInvalidArgument, "model value required", err)
	case errors.Is(err, gorm.ErrInvalidData):
		return uow.NewErrorWithCause(uow.ErrorKindInvalidArgument, "invalid data", err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return uow.NewErrorWithCause(uow.ErrorKindDuplicate, "duplicate key violation", err)
	case errors.Is(err, gorm.ErrForeignKeyViolated), errors.Is(err, gorm.ErrCheckConstraintViolated):
		return uow.NewErrorWithCause(uow.ErrorKindConstraint, "constraint violation", err)
	case errors.Is(err, context.DeadlineExceeded):
		return uow.NewErrorWithCause(uow.ErrorKindTimeout, "operation timeout", err)
	}

	// Check for common database constraint errors
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "duplicate") || strings.Contains(errStr, "unique"):
		return uow.NewErrorWithCause(uow.ErrorKindDuplicate, "duplicate key violation", err)
	case strings.Contains(errStr, "foreign key") || strings.Contains(errStr, "constraint"):
		return uow.NewErrorWithCause(uow.ErrorKindConstraint, "constraint violation", err)
	case strings.Contains(errStr, "timeout"):
		return uow.NewErrorWithCause(uow.ErrorKindTimeout, "operation timeout", err)
	}

	return uow.NewErrorWithCause(uow.ErrorKindResource, "database operation failed", err)
}
