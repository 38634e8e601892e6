package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Scanner-specific error codes
const (
	// Upstream marketplace-data API errors
	CodeThrottled             Code = "THROTTLED"
	CodeProviderError         Code = "PROVIDER_ERROR"
	CodePricingFetchFailed    Code = "PRICING_FETCH_FAILED"
	CodeFeeEstimateFailed     Code = "FEE_ESTIMATE_FAILED"
	CodeMalformedProviderData Code = "MALFORMED_PROVIDER_DATA"

	// Scan lifecycle errors
	CodeNoViableInput   Code = "NO_VIABLE_INPUT"
	CodeScanCancelled   Code = "SCAN_CANCELLED"
	CodeScanNotFound    Code = "SCAN_NOT_FOUND"
	CodeSessionTerminal Code = "SESSION_TERMINAL"

	// Persistence errors
	CodePersistenceError  Code = "PERSISTENCE_ERROR"
	CodeCatalogLoadFailed Code = "CATALOG_LOAD_FAILED"

	// Identity errors
	CodeUnauthorized Code = "UNAUTHORIZED"

	// Marketplace errors
	CodeUnknownMarketplace  Code = "UNKNOWN_MARKETPLACE"
	CodeMissingExchangeRate Code = "MISSING_EXCHANGE_RATE"

	// Circuit breaker errors
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
