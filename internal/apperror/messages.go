package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	CodeConfigurationError: "Configuration error",

	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	CodeVenueConnectionFailed: "Failed to reach venue API",
	CodeVenueAPIError:         "Venue API returned an error",
	CodeVenueUnknown:          "Venue is not registered",
	CodeOrderbookFetchFailed:  "Failed to fetch orderbook",
	CodeInvalidOrderbook:      "Invalid orderbook data",
	CodeMarketNotFound:        "Market not listed on venue",
	CodeWalletRefreshFailed:   "Failed to refresh wallets",
	CodeOrderPlacementFailed:  "Failed to place order",
	CodeOrderCancelFailed:     "Failed to cancel order",
	CodeOrderNotFound:         "Order not found",
	CodeInsufficientBalance:   "Insufficient balance",
	CodeWithdrawUnsupported:   "Venue does not support withdrawals",
	CodeWithdrawFailed:        "Withdrawal failed",
	CodeInvalidDepositAddress: "Invalid deposit address",

	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	CodeOrderbookTimeout:      "Orderbook fetch exceeded deadline",
	CodeExecutionInconsistent: "Sell placed but buy never placed",
	CodeTickFailed:            "Control loop tick failed",
	CodeTickPanic:             "Control loop tick panicked",
	CodeInvalidVenuePair:      "Invalid venue pair",
	CodeReconciliationFailed:  "Trade reconciliation failed",
	CodeStatsUnavailable:      "Statistics store unavailable",
	CodeLedgerWriteFailed:     "Failed to write ledger record",
	CodeFundManagementFailed:  "Fund management failed",
	CodeWithdrawLocked:        "Withdrawal lock held by another process",

	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
