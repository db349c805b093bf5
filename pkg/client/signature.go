package client

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrBadSignature is returned by VerifyRequest when the signature header does
// not match the body.
var ErrBadSignature = errors.New("webhook signature mismatch")

// Sign returns the hex HMAC-SHA256 of body keyed by secret, as sent in
// HeaderSignature.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyRequest reads a received delivery and checks its signature against
// secret. It returns the raw body, which is the exact signed event.
//
//	body, err := client.VerifyRequest(r, secret)
//	if errors.Is(err, client.ErrBadSignature) {
//	    http.Error(w, "bad signature", http.StatusUnauthorized)
//	    return
//	}
func VerifyRequest(r *http.Request, secret string) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	got, err := hex.DecodeString(r.Header.Get(HeaderSignature))
	if err != nil {
		return nil, ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), got) {
		return nil, ErrBadSignature
	}
	return body, nil
}

// ParseEvent verifies r and decodes the delivered event.
func ParseEvent(r *http.Request, secret string) (*Event, error) {
	body, err := VerifyRequest(r, secret)
	if err != nil {
		return nil, err
	}
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &ev, nil
}
