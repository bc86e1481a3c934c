package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Venue error codes
const (
	CodeVenueConnectionFailed Code = "VENUE_CONNECTION_FAILED"
	CodeVenueAPIError         Code = "VENUE_API_ERROR"
	CodeVenueUnknown          Code = "VENUE_NOT_FOUND"
	CodeOrderbookFetchFailed  Code = "ORDERBOOK_FETCH_FAILED"
	CodeInvalidOrderbook      Code = "INVALID_ORDERBOOK"
	CodeMarketNotFound        Code = "MARKET_NOT_FOUND"
	CodeWalletRefreshFailed   Code = "WALLET_REFRESH_FAILED"
	CodeOrderPlacementFailed  Code = "ORDER_PLACEMENT_FAILED"
	CodeOrderCancelFailed     Code = "ORDER_CANCEL_FAILED"
	CodeOrderNotFound         Code = "ORDER_NOT_FOUND"
	CodeInsufficientBalance   Code = "INSUFFICIENT_BALANCE"
	CodeWithdrawUnsupported   Code = "WITHDRAW_UNSUPPORTED"
	CodeWithdrawFailed        Code = "WITHDRAW_FAILED"
	CodeInvalidDepositAddress Code = "INVALID_DEPOSIT_ADDRESS"
)

// WebSocket error codes
const (
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"
)

// Arbitrage error codes
const (
	CodeOrderbookTimeout      Code = "ORDERBOOK_TIMEOUT"
	CodeExecutionInconsistent Code = "EXECUTION_INCONSISTENT"
	CodeTickFailed            Code = "TICK_FAILED"
	CodeTickPanic             Code = "TICK_PANIC"
	CodeInvalidVenuePair      Code = "INVALID_VENUE_PAIR"
	CodeReconciliationFailed  Code = "RECONCILIATION_FAILED"
	CodeStatsUnavailable      Code = "STATS_UNAVAILABLE"
	CodeLedgerWriteFailed     Code = "LEDGER_WRITE_FAILED"
	CodeFundManagementFailed  Code = "FUND_MANAGEMENT_FAILED"
	CodeWithdrawLocked        Code = "WITHDRAW_LOCKED"
)

// Circuit breaker error codes
const (
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)
