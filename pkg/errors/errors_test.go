package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForDomainCodes(t *testing.T) {
	cases := []struct {
		code      Code
		status    int
		retryable bool
	}{
		{CodeValidation, http.StatusBadRequest, false},
		{CodeNotFound, http.StatusNotFound, false},
		{CodeStock, http.StatusConflict, false},
		{CodeMinimumOrder, http.StatusUnprocessableEntity, false},
		{CodePaymentVerification, http.StatusPaymentRequired, true},
		{CodePaymentIncomplete, http.StatusPaymentRequired, true},
		{CodeStateConflict, http.StatusUnprocessableEntity, false},
		{CodeAlreadyDelivered, http.StatusConflict, false},
		{CodeForbidden, http.StatusForbidden, false},
		{CodeDependency, http.StatusServiceUnavailable, true},
	}

	for _, tc := range cases {
		meta := MetadataFor(tc.code)
		if meta.HTTPStatus != tc.status {
			t.Errorf("%s: expected status %d, got %d", tc.code, tc.status, meta.HTTPStatus)
		}
		if meta.Retryable != tc.retryable {
			t.Errorf("%s: expected retryable=%v", tc.code, tc.retryable)
		}
		if meta.PublicMessage == "" {
			t.Errorf("%s: public message missing", tc.code)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor(Code("NO_SUCH_CODE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal metadata, got %+v", meta)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(CodePaymentVerification, cause, "verify transaction")

	if err.Code() != CodePaymentVerification {
		t.Fatalf("unexpected code %s", err.Code())
	}
	if err.Unwrap() != cause {
		t.Fatal("cause not preserved")
	}
	if err.Error() != "PAYMENT_VERIFICATION_FAILED: verify transaction" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	inner := New(CodeStock, "product sold out").WithDetails(map[string]any{"product_id": "p1"})
	wrapped := fmt.Errorf("settle: %w", inner)

	typed := As(wrapped)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeStock {
		t.Fatalf("unexpected code %s", typed.Code())
	}
	if typed.Details() == nil {
		t.Fatal("expected details to survive wrapping")
	}

	if As(fmt.Errorf("plain")) != nil {
		t.Fatal("plain error should not convert")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeDependency, fmt.Errorf("dial tcp: timeout"), "gateway unreachable")
	dump := Dump(err)
	if dump.Code != CodeDependency {
		t.Fatalf("unexpected dump code %s", dump.Code)
	}
	if len(dump.Chain) < 2 {
		t.Fatalf("expected chain of at least 2, got %d", len(dump.Chain))
	}
}
