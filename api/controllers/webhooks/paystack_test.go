package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tundeoa/sokohub-backend/internal/settlement"
)

type stubSettlement struct {
	result     *settlement.Result
	err        error
	references []string
}

func (s *stubSettlement) Settle(_ context.Context, reference string) (*settlement.Result, error) {
	s.references = append(s.references, reference)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type hmacVerifier struct {
	secret string
}

func (v hmacVerifier) VerifyWebhookSignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(v.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)) == signature
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, handler http.HandlerFunc, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(paystackSignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestPaystackWebhookChargeSuccess(t *testing.T) {
	svc := &stubSettlement{result: &settlement.Result{}}
	handler := Paystack(svc, hmacVerifier{secret: "sk_test_abc"}, nil)

	body := []byte(`{"event":"charge.success","data":{"reference":"PAY-1-abc-dead"}}`)
	rec := postWebhook(t, handler, body, sign("sk_test_abc", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(svc.references) != 1 || svc.references[0] != "PAY-1-abc-dead" {
		t.Fatalf("settled references = %v", svc.references)
	}
}

func TestPaystackWebhookRejectsBadSignature(t *testing.T) {
	svc := &stubSettlement{}
	handler := Paystack(svc, hmacVerifier{secret: "sk_test_abc"}, nil)

	body := []byte(`{"event":"charge.success","data":{"reference":"PAY-1-abc-dead"}}`)

	rec := postWebhook(t, handler, body, sign("wrong_secret", body))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged signature: status = %d", rec.Code)
	}

	rec = postWebhook(t, handler, body, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing signature: status = %d", rec.Code)
	}

	if len(svc.references) != 0 {
		t.Fatalf("settlement reached with bad signature: %v", svc.references)
	}
}

func TestPaystackWebhookIgnoresOtherEvents(t *testing.T) {
	svc := &stubSettlement{}
	handler := Paystack(svc, hmacVerifier{secret: "sk_test_abc"}, nil)

	body := []byte(`{"event":"transfer.success","data":{"reference":"PAY-1-abc-dead"}}`)
	rec := postWebhook(t, handler, body, sign("sk_test_abc", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(svc.references) != 0 {
		t.Fatalf("non-charge event reached settlement: %v", svc.references)
	}
}

func TestPaystackWebhookMissingReference(t *testing.T) {
	svc := &stubSettlement{}
	handler := Paystack(svc, hmacVerifier{secret: "sk_test_abc"}, nil)

	body := []byte(`{"event":"charge.success","data":{}}`)
	rec := postWebhook(t, handler, body, sign("sk_test_abc", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
