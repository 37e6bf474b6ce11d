package logger

import "testing"

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"development", "production"} {
		log, err := NewLogger(env)
		if err != nil {
			t.Fatalf("%s: new logger: %v", env, err)
		}
		if log == nil {
			t.Fatalf("%s: expected logger", env)
		}
		if env == "development" && !log.Core().Enabled(-1) {
			t.Fatal("expected debug level enabled in development")
		}
	}
}
