package handler

const (
	errInternalServer  = "Internal server error"
	errInvalidBody     = "Request body must be valid JSON"
	errCodeNotFound    = "No verification code found for this phone number. Please request a new code"
	errCodeExpired     = "Verification code has expired. Please request a new code"
	errCodeMismatch    = "Invalid verification code"
	errTooManyAttempts = "Too many incorrect attempts. Please request a new code"
	errDeliveryFailed  = "Failed to send verification code"
	errEmailTaken      = "Email is already in use"
	errUsernameTaken   = "Username is already taken"
	errUserNotFound    = "User not found"
	errTokenInvalid    = "Token is invalid or expired"
	errUnauthorized    = "Unauthorized"

	msgCodeSent         = "Verification code sent successfully"
	msgProfileCompleted = "Profile completed successfully"
)
