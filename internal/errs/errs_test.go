package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"pgregory.net/rapid"
)

var clientCodes = []Code{
	InvalidInput,
	NotFound,
	RateLimited,
}

func testCodeOf_RoundtripForTypedErrors(t *rapid.T) {
	code := rapid.SampledFrom(clientCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")

	err := New(code, message)
	if got := CodeOf(err); got != code {
		t.Fatalf("CodeOf(New) mismatch: got=%q want=%q", got, code)
	}
	if got := MessageOf(err); got != message {
		t.Fatalf("MessageOf(New) mismatch: got=%q want=%q", got, message)
	}
}

func TestCodeOf_RoundtripForTypedErrors(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOf_RoundtripForTypedErrors)
}

func testCodeOfAndMessageOf_WrappedTypedError(t *rapid.T) {
	code := rapid.SampledFrom(clientCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")
	cause := errors.New(rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "cause"))

	err := Wrap(code, message, cause)
	wrapped := fmt.Errorf("outer: %w", err)

	if got := CodeOf(wrapped); got != code {
		t.Fatalf("CodeOf(wrapped) mismatch: got=%q want=%q", got, code)
	}
	if got := MessageOf(wrapped); got != message {
		t.Fatalf("MessageOf(wrapped) mismatch: got=%q want=%q", got, message)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("cause lost through wrapping")
	}
}

func TestCodeOfAndMessageOf_WrappedTypedError(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOfAndMessageOf_WrappedTypedError)
}

func testUntypedAndNilFallbacks(t *rapid.T) {
	raw := rapid.StringMatching(`[a-zA-Z0-9 _:\-./]{1,80}`).Draw(t, "raw")
	untyped := errors.New(raw)

	if got := CodeOf(untyped); got != Internal {
		t.Fatalf("CodeOf(untyped) mismatch: got=%q want=%q", got, Internal)
	}
	if got := MessageOf(untyped); got != "internal error" {
		t.Fatalf("MessageOf(untyped) mismatch: got=%q want=%q", got, "internal error")
	}
	if got := CodeOf(nil); got != Internal {
		t.Fatalf("CodeOf(nil) mismatch: got=%q want=%q", got, Internal)
	}
	if got := MessageOf(nil); got != string(Internal) {
		t.Fatalf("MessageOf(nil) mismatch: got=%q want=%q", got, Internal)
	}
}

func TestUntypedAndNilFallbacks(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testUntypedAndNilFallbacks)
}

func testStorage_HidesDriverText(t *rapid.T) {
	op := rapid.SampledFrom([]string{"list notes", "create note", "delete note"}).Draw(t, "op")
	secret := rapid.StringMatching(`dsn=[a-z]{4,20}:[a-z0-9]{4,20}@tcp`).Draw(t, "secret")

	err := Storage(op, errors.New(secret))
	if got := CodeOf(err); got != StorageFailure {
		t.Fatalf("CodeOf(Storage) mismatch: got=%q", got)
	}
	if got := MessageOf(err); got != "storage failure" {
		t.Fatalf("MessageOf(Storage) leaked detail: %q", got)
	}
	// Error() keeps the cause for logs.
	if got := err.Error(); got != "failed to "+op+": "+secret {
		t.Fatalf("Error() mismatch: %q", got)
	}
}

func TestStorage_HidesDriverText(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testStorage_HidesDriverText)
}

func TestInvalid_CarriesFieldAndRule(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("create: %w", Invalid("title", "max_length", "title must be at most 100 characters"))

	if !Is(err, InvalidInput) {
		t.Fatalf("expected InvalidInput, got %q", CodeOf(err))
	}
	if got := FieldOf(err); got != "title" {
		t.Fatalf("FieldOf mismatch: %q", got)
	}
	var coded *Error
	if !errors.As(err, &coded) || coded.Rule != "max_length" {
		t.Fatalf("rule not preserved: %+v", coded)
	}
	if FieldOf(errors.New("plain")) != "" {
		t.Fatalf("FieldOf(untyped) should be empty")
	}
}

func testHTTPStatus_Mapping(t *rapid.T) {
	cases := map[Code]int{
		InvalidInput:   http.StatusBadRequest,
		NotFound:       http.StatusNotFound,
		RateLimited:    http.StatusTooManyRequests,
		StorageFailure: http.StatusInternalServerError,
		Internal:       http.StatusInternalServerError,
	}

	code := rapid.SampledFrom([]Code{
		InvalidInput,
		NotFound,
		RateLimited,
		StorageFailure,
		Internal,
		Code("unknown_code"),
	}).Draw(t, "code")

	want := http.StatusInternalServerError
	if mapped, ok := cases[code]; ok {
		want = mapped
	}
	if got := HTTPStatus(code); got != want {
		t.Fatalf("HTTPStatus mismatch: code=%q got=%d want=%d", code, got, want)
	}
}

func TestHTTPStatus_Mapping(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testHTTPStatus_Mapping)
}
