package database

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	apperrors "github.com/kbukum/speechgate/errors"
)

// IsRetryableError reports whether a database error is worth retrying:
// lost connections and sqlite lock contention.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	patterns := []string{
		"database is locked",
		"database table is locked",
		"sqlite_busy",
		"connection refused",
		"connection reset",
		"broken pipe",
		"driver: bad connection",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}

// IsNotFoundError checks if the error is a GORM record-not-found error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// FromDatabase converts a database error to an AppError.
// Not-found becomes NOT_FOUND for resource; everything else is a
// STORE_FAILURE whose retryable flag follows IsRetryableError.
func FromDatabase(err error, resource, operation string) *apperrors.AppError {
	if err == nil {
		return nil
	}
	if IsNotFoundError(err) {
		return apperrors.NotFound(resource, "").WithCause(err)
	}
	appErr := apperrors.StoreFailure(operation, err)
	appErr.Retryable = IsRetryableError(err)
	return appErr
}
