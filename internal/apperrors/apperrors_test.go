package apperrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(CodeDeviceUnavailable, "no input device")
	if got := err.Error(); got != "[DEVICE_UNAVAILABLE] no input device" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := Wrap(errors.New("portaudio: device lost"), CodeTransientIO, "read failed")
	if !strings.Contains(wrapped.Error(), "caused by: portaudio: device lost") {
		t.Errorf("Error() = %q, want cause included", wrapped.Error())
	}

	withMeta := New(CodeStoreFailed, "put failed").WithMetadata("user_id", "alice")
	if !strings.Contains(withMeta.Error(), "alice") {
		t.Errorf("Error() = %q, want metadata included", withMeta.Error())
	}
}

func TestGetCodeWalksChain(t *testing.T) {
	inner := New(CodeModelUnavailable, "vad down")
	outer := fmt.Errorf("dispatch: %w", inner)

	if got := GetCode(outer); got != CodeModelUnavailable {
		t.Errorf("GetCode = %v, want MODEL_UNAVAILABLE", got)
	}
	if got := GetCode(errors.New("plain")); got != CodeUnknown {
		t.Errorf("GetCode(plain) = %v, want UNKNOWN", got)
	}
	if got := GetCode(nil); got != CodeUnknown {
		t.Errorf("GetCode(nil) = %v, want UNKNOWN", got)
	}
}

func TestIsCode(t *testing.T) {
	err := Wrap(New(CodeTimeout, "deadline"), CodeTransientIO, "retrying")
	// The outermost code wins.
	if !IsCode(err, CodeTransientIO) {
		t.Error("want TRANSIENT_IO")
	}
	if IsCode(nil, CodeTimeout) {
		t.Error("nil must never match")
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []Code{CodeTransientIO, CodeTimeout, CodeModelUnavailable, CodeStoreFailed}
	for _, c := range retryable {
		if !IsRetryable(New(c, "x")) {
			t.Errorf("%v should be retryable", c)
		}
	}
	terminal := []Code{CodeInvalidArgument, CodeDeviceUnavailable, CodeDataIntegrity, CodeInternal, CodeNotFound}
	for _, c := range terminal {
		if IsRetryable(New(c, "x")) {
			t.Errorf("%v should not be retryable", c)
		}
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("unknown errors should not be retryable")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := Wrap(cause, CodeInternal, "wrapped")
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
}

func TestCodeString(t *testing.T) {
	if got := CodeDataIntegrity.String(); got != "DATA_INTEGRITY" {
		t.Errorf("String = %q", got)
	}
	if got := Code(999).String(); got != "UNKNOWN" {
		t.Errorf("out-of-range String = %q", got)
	}
}
