package circuitbreaker

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/crossarb/internal/apperror"
)

var errRemote = errors.New("remote down")

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.ConsecutiveFailures = 3
	cb := New[int](cfg)

	for i := 0; i < 3; i++ {
		if _, err := cb.Execute(func() (int, error) { return 0, errRemote }); !errors.Is(err, errRemote) {
			t.Fatalf("call %d: err = %v, want remote error", i, err)
		}
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	calls := 0
	_, err := cb.Execute(func() (int, error) {
		calls++
		return 1, nil
	})
	if apperror.GetCode(err) != apperror.CodeCircuitOpen {
		t.Errorf("code = %s, want %s", apperror.GetCode(err), apperror.CodeCircuitOpen)
	}
	if calls != 0 {
		t.Error("function must not run while the breaker is open")
	}
}

func TestCircuitBreaker_IsSuccessfulKeepsClosed(t *testing.T) {
	rejected := errors.New("order rejected")

	cfg := DefaultConfig("test")
	cfg.ConsecutiveFailures = 1
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, rejected)
	}
	cb := New[string](cfg)

	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(func() (string, error) { return "", rejected })
	}

	if cb.State() != gobreaker.StateClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
}
