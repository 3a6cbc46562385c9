// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Account errors
	CodeDuplicateEmail     Code = "DUPLICATE_EMAIL"
	CodeInvalidEmail       Code = "INVALID_EMAIL"
	CodeWeakPassword       Code = "WEAK_PASSWORD"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeAccountLocked      Code = "ACCOUNT_LOCKED"
	CodeRateLimited        Code = "RATE_LIMITED"

	// OTP errors
	CodeOtpExpired         Code = "OTP_EXPIRED"
	CodeOtpLocked          Code = "OTP_LOCKED"
	CodeOtpAlreadyConsumed Code = "OTP_ALREADY_CONSUMED"
	CodeOtpMismatch        Code = "OTP_MISMATCH"

	// Passkey errors
	CodeChallengeNotFound     Code = "CHALLENGE_NOT_FOUND"
	CodeChallengeExpired      Code = "CHALLENGE_EXPIRED"
	CodeDuplicateCredential   Code = "DUPLICATE_CREDENTIAL"
	CodeCredentialNotFound    Code = "CREDENTIAL_NOT_FOUND"
	CodePossibleCloneDetected Code = "POSSIBLE_CLONE_DETECTED"

	// Session errors
	CodeSessionExpired Code = "SESSION_EXPIRED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeInvalidEmail,
		CodeWeakPassword:
		return codes.InvalidArgument

	// Unauthenticated - credential or session verification failed
	case CodeInvalidCredentials,
		CodeOtpMismatch,
		CodeSessionExpired:
		return codes.Unauthenticated

	// FailedPrecondition - record state disallows the operation
	case CodeOtpExpired,
		CodeOtpAlreadyConsumed,
		CodeChallengeExpired:
		return codes.FailedPrecondition

	// ResourceExhausted - attempt budgets spent
	case CodeOtpLocked,
		CodeAccountLocked,
		CodeRateLimited:
		return codes.ResourceExhausted

	// PermissionDenied - credential flagged, caller must re-enroll
	case CodePossibleCloneDetected:
		return codes.PermissionDenied

	// AlreadyExists - uniqueness violations
	case CodeDuplicateEmail,
		CodeDuplicateCredential:
		return codes.AlreadyExists

	// NotFound - missing records
	case CodeNotFound,
		CodeChallengeNotFound,
		CodeCredentialNotFound:
		return codes.NotFound

	default:
		return codes.Internal
	}
}
