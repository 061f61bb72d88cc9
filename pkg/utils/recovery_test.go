package utils

import (
	"errors"
	"testing"
	"time"
)

func TestRecoverWithCallback(t *testing.T) {
	t.Run("calls callback on panic", func(t *testing.T) {
		var capturedErr error
		fn := func() {
			defer RecoverWithCallback(func(err error) {
				capturedErr = err
			})
			panic("callback test")
		}

		fn()

		if capturedErr == nil {
			t.Fatal("expected callback to be called with error")
		}

		var panicErr *PanicError
		if !errors.As(capturedErr, &panicErr) {
			t.Fatalf("expected PanicError, got %T", capturedErr)
		}
	})

	t.Run("handles nil callback", func(t *testing.T) {
		fn := func() {
			defer RecoverWithCallback(nil)
			panic("nil callback test")
		}

		// Should not panic
		fn()
	})
}

func TestSafeGo(t *testing.T) {
	t.Run("executes function without panic", func(t *testing.T) {
		done := make(chan struct{})
		SafeGo(func() {
			close(done)
		}, nil)

		select {
		case <-done:
			// Success
		case <-time.After(time.Second):
			t.Fatal("function did not complete")
		}
	})

	t.Run("recovers from panic and calls error handler", func(t *testing.T) {
		errCh := make(chan error, 1)
		SafeGo(func() {
			panic("safe go panic")
		}, func(err error) {
			errCh <- err
		})

		select {
		case err := <-errCh:
			if err == nil {
				t.Fatal("expected error from panic")
			}
			var panicErr *PanicError
			if !errors.As(err, &panicErr) {
				t.Fatalf("expected PanicError, got %T", err)
			}
		case <-time.After(time.Second):
			t.Fatal("error handler was not called")
		}
	})
}

func TestPanicErrorString(t *testing.T) {
	err := &PanicError{Value: "test value"}
	expected := "panic: test value"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}
