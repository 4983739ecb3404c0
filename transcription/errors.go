package transcription

import (
	"errors"

	apperrors "github.com/kbukum/speechgate/errors"
)

// Sentinel errors adapters wrap with %w.
var (
	ErrConfigInvalid      = errors.New("transcription: invalid model configuration")
	ErrBackendUnavailable = errors.New("transcription: backend unavailable")
	ErrTransientInference = errors.New("transcription: inference failed")
	ErrSessionTerminated  = errors.New("transcription: recognition session terminated")
)

// IsFatal reports whether err must end the client session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSessionTerminated) || errors.Is(err, ErrBackendUnavailable)
}

// ToAppError maps an adapter error onto the application error taxonomy.
// AppErrors pass through unchanged.
func ToAppError(framework Framework, err error) *apperrors.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, ErrConfigInvalid):
		return apperrors.ConfigInvalid("", err.Error()).WithCause(err)
	case errors.Is(err, ErrBackendUnavailable):
		return apperrors.BackendUnavailable(string(framework), err)
	case errors.Is(err, ErrSessionTerminated):
		return apperrors.SessionTerminated(err)
	case errors.Is(err, ErrTransientInference):
		return apperrors.TransientInference(err)
	default:
		return apperrors.Internal(err)
	}
}
