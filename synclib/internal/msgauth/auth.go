// Package msgauth implements the lightweight message-authentication
// protocol layered on top of the identity provider's bearer tokens.
//
// After the handshake both sides hold a session secret derived from
// (token, userID, 5-minute wall-clock bucket). The derivation is a pure
// function, so neither side stores anything and the secret rotates by
// itself every bucket. Messages may then be wrapped into an envelope
// {payload, signature, timestamp, nonce} whose HMAC proves integrity
// and whose (nonce, timestamp) pair is accepted at most once.
package msgauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// SecretWindow is the wall-clock bucket width of the session secret.
// Client and server compute floor(now/window) independently, so no
// round trip is needed for rotation.
const SecretWindow = 5 * time.Minute

var (
	ErrStaleTimestamp = errors.New("envelope timestamp is out of bounds")
	ErrReplayedNonce  = errors.New("envelope nonce was already consumed")
	ErrBadSignature   = errors.New("envelope signature mismatch")
)

// Envelope is a signed wrapper around an arbitrary message payload.
type Envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
	Timestamp int64           `json:"timestamp"`
	Nonce     string          `json:"nonce"`
}

// signedBody is what actually gets signed. Field order matters: both
// sides hash the JSON object {"payload":...,"timestamp":...,"nonce":...}
// byte for byte, and the payload is kept raw so re-marshaling cannot
// reorder or reformat it.
type signedBody struct {
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	Nonce     string          `json:"nonce"`
}

// SessionSecret derives the hex-encoded secret for the bucket
// containing at.
func SessionSecret(token, userID string, at time.Time) string {
	window := SecretWindow.Milliseconds()
	bucket := at.UnixMilli() / window * window
	sum := sha256.Sum256([]byte(token + ":" + userID + ":" + strconv.FormatInt(bucket, 10)))

	return hex.EncodeToString(sum[:])
}

// Sign computes the base64 HMAC-SHA256 signature for a payload.
func Sign(secret string, payload json.RawMessage, timestamp int64, nonce string) string {
	body, err := json.Marshal(signedBody{
		Payload:   payload,
		Timestamp: timestamp,
		Nonce:     nonce,
	})
	if err != nil {
		// json.RawMessage + scalars cannot fail to marshal unless the
		// payload itself is invalid JSON; treat that as unsignable.
		return ""
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verifier checks authenticated envelopes: timestamp bounds, the HMAC
// signature, then nonce freshness. Any failure is reported to the
// caller precisely (for logs and metrics) but must be surfaced to the
// client as one generic authentication error.
type Verifier struct {
	ledger  *NonceLedger
	maxAge  time.Duration
	maxSkew time.Duration
}

// NewVerifier builds a verifier accepting envelope timestamps within
// [now-maxAge, now+maxSkew].
func NewVerifier(ledger *NonceLedger, maxAge, maxSkew time.Duration) *Verifier {
	return &Verifier{
		ledger:  ledger,
		maxAge:  maxAge,
		maxSkew: maxSkew,
	}
}

// Verify validates env for a connection which authenticated with the
// given token and userID and stored storedSecret at handshake time.
// The secret is always recomputed from the connection's own retained
// identity, never from anything the client supplied in the message.
//
// On success the nonce is consumed and the payload is returned for
// dispatch.
func (v *Verifier) Verify(env Envelope, token, userID, storedSecret string, now time.Time) (json.RawMessage, error) {
	age := now.UnixMilli() - env.Timestamp
	if age > v.maxAge.Milliseconds() || age < -v.maxSkew.Milliseconds() {
		return nil, ErrStaleTimestamp
	}

	// Recompute for the message's own time window: an envelope signed
	// just before rotation is still valid within the timestamp bounds.
	fresh := SessionSecret(token, userID, time.UnixMilli(env.Timestamp))

	if !signatureMatches(fresh, env) && !signatureMatches(storedSecret, env) {
		return nil, ErrBadSignature
	}

	// Single check-and-insert: the same envelope delivered on two
	// sockets concurrently must not be accepted twice.
	if !v.ledger.ConsumeIfFresh(env.Nonce, env.Timestamp) {
		return nil, ErrReplayedNonce
	}

	return env.Payload, nil
}

func signatureMatches(secret string, env Envelope) bool {
	expected := Sign(secret, env.Payload, env.Timestamp, env.Nonce)
	if expected == "" {
		return false
	}

	return hmac.Equal([]byte(expected), []byte(env.Signature))
}
