package observ

import "testing"

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		l, err := NewLogger(env, "debug")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", env, err)
		}
		if !l.Core().Enabled(-1) {
			t.Errorf("%s: debug level should be enabled", env)
		}
	}

	if _, err := NewLogger("production", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
