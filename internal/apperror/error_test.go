package apperror

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew_UsesMessageTable(t *testing.T) {
	err := New(CodeOrderbookTimeout, WithContext("binance BTC_USDT"))

	if err.Message != messages[CodeOrderbookTimeout] {
		t.Errorf("Message = %q, want table message", err.Message)
	}
	if !strings.Contains(err.Error(), "binance BTC_USDT") {
		t.Errorf("Error() = %q, want context included", err.Error())
	}
}

func TestNew_UnknownCodeFallsBackToCode(t *testing.T) {
	err := New(Code("SOMETHING_NEW"))
	if err.Message != "SOMETHING_NEW" {
		t.Errorf("Message = %q, want code", err.Message)
	}
}

func TestHasCode_ThroughWrapping(t *testing.T) {
	base := New(CodeOrderPlacementFailed, WithCause(errors.New("insufficient funds")))
	wrapped := fmt.Errorf("sell: %w", base)

	if !HasCode(wrapped, CodeOrderPlacementFailed) {
		t.Error("expected HasCode to find code through fmt wrapping")
	}
	if HasCode(wrapped, CodeOrderCancelFailed) {
		t.Error("unexpected match for a different code")
	}
	if GetCode(wrapped) != CodeOrderPlacementFailed {
		t.Errorf("GetCode = %s", GetCode(wrapped))
	}
}

func TestWrap_PreservesExisting(t *testing.T) {
	orig := New(CodeVenueAPIError)
	got := Wrap(orig, CodeInternalError, "refresh wallets")

	if got != orig {
		t.Error("expected Wrap to return the existing AppError")
	}
	if got.Context != "refresh wallets" {
		t.Errorf("Context = %q, want refresh wallets", got.Context)
	}
	if Wrap(nil, CodeInternalError, "x") != nil {
		t.Error("Wrap(nil) must be nil")
	}
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(errors.New("plain"))
	if len(attrs) != 2 || attrs[1] != "plain" {
		t.Errorf("LogAttrs(plain) = %v", attrs)
	}

	attrs = LogAttrs(New(CodeTickFailed, WithContext("tick 3")))
	if attrs[1] != string(CodeTickFailed) {
		t.Errorf("error_code = %v, want %s", attrs[1], CodeTickFailed)
	}
}
