package uowmongo

import (
	"errors"
	"strings"

	"github.com/lemmego/uow"
	"go.mongodb.org/mongo-driver/mongo"
)

// =====================================
// Error Conversion
// =====================================

// convertMongoError converts MongoDB errors to uow errors
func convertMongoError(err error) error {
	if err == nil {
		return nil
	}

	var uowErr uow.Error
	if errors.As(err, &uowErr) {
		return err
	}

	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return uow.NewErrorWithCause(uow.ErrorKindNotFound, "document not found", err)
	case errors.Is(err, mongo.ErrNilDocument), errors.Is(err, mongo.ErrNilValue):
		return uow.NewErrorWithCause(uow.ErrorKindInvalidArgument, "nil document provided", err)
	case errors.Is(err, mongo.ErrClientDisconnected):
		return uow.NewErrorWithCause(uow.ErrorKindResource, "client disconnected", err)
	case mongo.IsDuplicateKeyError(err):
		return uow.NewErrorWithCause(uow.ErrorKindDuplicate, "duplicate key violation", err)
	case mongo.IsTimeout(err):
		return uow.NewErrorWithCause(uow.ErrorKindTimeout, "operation timeout", err)
	case mongo.IsNetworkError(err):
		return uow.NewErrorWithCause(uow.ErrorKindResource, "connection error", err)
	}

	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, we := range writeErr.WriteErrors {
			if we.Code == 121 { // DocumentValidationFailure
				return uow.NewErrorWithCause(uow.ErrorKindConstraint, "document validation failed", err)
			}
		}
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case 26: // NamespaceNotFound
			return uow.NewErrorWithCause(uow.ErrorKindNotFound, "collection not found", err)
		case 13, 18: // Unauthorized, AuthenticationFailed
			return uow.NewErrorWithCause(uow.ErrorKindResource, "unauthorized access", err)
		case 20: // IllegalOperation, e.g. transactions on a standalone server
			return uow.NewErrorWithCause(uow.ErrorKindUnsupported, cmdErr.Message, err)
		case 244, 251: // TransactionTooOld, NoSuchTransaction
			return uow.NewErrorWithCause(uow.ErrorKindResource, "transaction aborted", err)
		}
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "deadline exceeded") {
		return uow.NewErrorWithCause(uow.ErrorKindTimeout, "operation timeout", err)
	}

	return uow.NewErrorWithCause(uow.ErrorKindResource, "MongoDB operation failed", err)
}
