package i18n

// Error codes must match the codes defined in internal/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeDuplicateEmail     = "DUPLICATE_EMAIL"
	CodeInvalidEmail       = "INVALID_EMAIL"
	CodeWeakPassword       = "WEAK_PASSWORD"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeRateLimited        = "RATE_LIMITED"

	CodeOtpExpired         = "OTP_EXPIRED"
	CodeOtpLocked          = "OTP_LOCKED"
	CodeOtpAlreadyConsumed = "OTP_ALREADY_CONSUMED"
	CodeOtpMismatch        = "OTP_MISMATCH"

	CodeChallengeNotFound     = "CHALLENGE_NOT_FOUND"
	CodeChallengeExpired      = "CHALLENGE_EXPIRED"
	CodeDuplicateCredential   = "DUPLICATE_CREDENTIAL"
	CodeCredentialNotFound    = "CREDENTIAL_NOT_FOUND"
	CodePossibleCloneDetected = "POSSIBLE_CLONE_DETECTED"

	CodeSessionExpired = "SESSION_EXPIRED"
	CodeNotFound       = "NOT_FOUND"
)

// Wrong password, unknown email, and wrong OTP code all render the same
// message so responses cannot be used to enumerate accounts. Lockouts and
// expirations are not enumeration risks and get specific text.
var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		// Account errors
		CodeDuplicateEmail:     "An account with this email already exists",
		CodeInvalidEmail:       "Enter a valid email address",
		CodeWeakPassword:       "Password must be at least 8 characters and include a letter and a digit",
		CodeInvalidCredentials: "Invalid credentials",
		CodeAccountLocked:      "Account temporarily locked. Try again in {{.Wait}} seconds",
		CodeRateLimited:        "Too many attempts. Try again in {{.Wait}} seconds",

		// OTP errors
		CodeOtpExpired:         "The code has expired. Request a new one",
		CodeOtpLocked:          "Too many incorrect codes. Request a new one",
		CodeOtpAlreadyConsumed: "This code has already been used. Request a new one",
		CodeOtpMismatch:        "Invalid credentials",

		// Passkey errors
		CodeChallengeNotFound:     "This sign-in request is no longer valid. Start over",
		CodeChallengeExpired:      "This sign-in request has expired. Start over",
		CodeDuplicateCredential:   "This passkey is already registered",
		CodeCredentialNotFound:    "Passkey not recognized",
		CodePossibleCloneDetected: "This passkey appears to be duplicated and has been blocked. Re-enroll it from a trusted device",

		// Session errors
		CodeSessionExpired: "Your session has expired. Sign in again",

		// Storage errors
		CodeNotFound: "The requested resource was not found",
	},
}
