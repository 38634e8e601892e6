package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Upstream marketplace-data API errors
	CodeThrottled:             "Upstream request was throttled",
	CodeProviderError:         "Marketplace data provider call failed",
	CodePricingFetchFailed:    "Failed to fetch competitive pricing",
	CodeFeeEstimateFailed:     "Failed to fetch fee estimate",
	CodeMalformedProviderData: "Provider returned malformed data",

	// Scan lifecycle errors
	CodeNoViableInput:   "Scan scope resolved to zero products",
	CodeScanCancelled:   "Scan was cancelled by the caller",
	CodeScanNotFound:    "Scan not found",
	CodeSessionTerminal: "Scan session already reached a terminal state",

	// Persistence errors
	CodePersistenceError:  "Result store rejected the write",
	CodeCatalogLoadFailed: "Failed to load catalog entries",

	// Identity errors
	CodeUnauthorized: "Missing or invalid identity",

	// Marketplace errors
	CodeUnknownMarketplace:  "Marketplace code is not registered",
	CodeMissingExchangeRate: "No exchange rate configured for currency",

	// Circuit breaker errors
	CodeCircuitOpen: "Circuit breaker is open",
}
