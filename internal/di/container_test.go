package di

import "testing"

type counter struct{ n int }

func TestContainer_FactoryBuiltOnce(t *testing.T) {
	c := NewContainer()
	token := NewToken[*counter]("test.counter")

	builds := 0
	RegisterToken(c, token, func(sr ServiceRegistry) *counter {
		builds++
		return &counter{n: builds}
	})

	first := GetToken(c, token)
	second := GetToken(c, token)

	if first != second {
		t.Error("expected the same instance on repeated resolution")
	}
	if builds != 1 {
		t.Errorf("factory called %d times, want 1", builds)
	}
}

func TestContainer_FactoryResolvesDependencies(t *testing.T) {
	c := NewContainer()
	c.Register("base", 40)

	token := NewToken[int]("test.sum")
	RegisterToken(c, token, func(sr ServiceRegistry) int {
		return sr.Get("base").(int) + 2
	})

	if got := GetToken(c, token); got != 42 {
		t.Errorf("GetToken = %d, want 42", got)
	}
	if !c.Has("test.sum") {
		t.Error("expected Has to report the token")
	}
}

func TestContainer_UnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown service")
		}
	}()
	NewContainer().Get("missing")
}
