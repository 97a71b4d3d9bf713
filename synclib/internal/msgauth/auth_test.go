package msgauth_test

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/quillvault/syncwire/synclib/internal/msgauth"
)

func TestSessionSecret(t *testing.T) {
	at := time.UnixMilli(1700000000000)

	t.Run("Deterministic", func(t *testing.T) {
		first := msgauth.SessionSecret("token", "user-1", at)
		second := msgauth.SessionSecret("token", "user-1", at)

		assert.Equal(t, first, second)
		assert.Len(t, first, 64)
	})

	t.Run("SameBucket", func(t *testing.T) {
		first := msgauth.SessionSecret("token", "user-1", at)
		second := msgauth.SessionSecret("token", "user-1", at.Add(time.Second))

		assert.Equal(t, first, second)
	})

	t.Run("RotatesAcrossBuckets", func(t *testing.T) {
		first := msgauth.SessionSecret("token", "user-1", at)
		second := msgauth.SessionSecret("token", "user-1", at.Add(msgauth.SecretWindow))

		assert.NotEqual(t, first, second)
	})

	t.Run("BoundToIdentity", func(t *testing.T) {
		base := msgauth.SessionSecret("token", "user-1", at)

		assert.NotEqual(t, base, msgauth.SessionSecret("other", "user-1", at))
		assert.NotEqual(t, base, msgauth.SessionSecret("token", "user-2", at))
	})
}

type VerifierTestSuite struct {
	suite.Suite

	ledger   *msgauth.NonceLedger
	verifier *msgauth.Verifier

	token  string
	userID string
	now    time.Time
}

func (suite *VerifierTestSuite) SetupTest() {
	suite.ledger = msgauth.NewNonceLedger(6*time.Minute, 1000, time.Minute)
	suite.verifier = msgauth.NewVerifier(suite.ledger, 5*time.Minute, time.Minute)
	suite.token = "bearer-token"
	suite.userID = "user-1"
	suite.now = time.Now()
}

func (suite *VerifierTestSuite) TearDownTest() {
	suite.ledger.Stop()
}

func (suite *VerifierTestSuite) makeEnvelope(at time.Time, nonce string) msgauth.Envelope {
	payload := json.RawMessage(`{"type":"ping"}`)
	timestamp := at.UnixMilli()
	secret := msgauth.SessionSecret(suite.token, suite.userID, at)

	return msgauth.Envelope{
		Payload:   payload,
		Signature: msgauth.Sign(secret, payload, timestamp, nonce),
		Timestamp: timestamp,
		Nonce:     nonce,
	}
}

func (suite *VerifierTestSuite) verify(env msgauth.Envelope) (json.RawMessage, error) {
	stored := msgauth.SessionSecret(suite.token, suite.userID, suite.now)

	return suite.verifier.Verify(env, suite.token, suite.userID, stored, suite.now)
}

func (suite *VerifierTestSuite) TestAcceptsFreshEnvelope() {
	env := suite.makeEnvelope(suite.now, "nonce-1")

	payload, err := suite.verify(env)

	suite.NoError(err)
	suite.JSONEq(`{"type":"ping"}`, string(payload))
}

func (suite *VerifierTestSuite) TestTimestampBounds() {
	testData := map[string]struct {
		offset time.Duration
		ok     bool
	}{
		"too old":        {-301 * time.Second, false},
		"old but valid":  {-59 * time.Second, true},
		"slightly ahead": {59 * time.Second, true},
		"too far ahead":  {61 * time.Second, false},
	}

	for name, param := range testData {
		suite.T().Run(name, func(t *testing.T) {
			env := suite.makeEnvelope(suite.now.Add(param.offset), "nonce-"+name)

			_, err := suite.verify(env)

			if param.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, msgauth.ErrStaleTimestamp)
			}
		})
	}
}

func (suite *VerifierTestSuite) TestRejectsReplay() {
	env := suite.makeEnvelope(suite.now, "nonce-replay")

	_, err := suite.verify(env)
	suite.Require().NoError(err)

	_, err = suite.verify(env)
	suite.ErrorIs(err, msgauth.ErrReplayedNonce)
}

func (suite *VerifierTestSuite) TestSameNonceDifferentTimestamp() {
	first := suite.makeEnvelope(suite.now, "nonce-shared")
	second := suite.makeEnvelope(suite.now.Add(time.Second), "nonce-shared")

	_, err := suite.verify(first)
	suite.Require().NoError(err)

	// The ledger keys on the (nonce, timestamp) pair, not the nonce
	// alone.
	_, err = suite.verify(second)
	suite.NoError(err)
}

func (suite *VerifierTestSuite) TestRejectsBadSignature() {
	env := suite.makeEnvelope(suite.now, "nonce-bad")
	env.Signature = "ZGVmaW5pdGVseSBub3QgYSBtYWM="

	_, err := suite.verify(env)

	suite.ErrorIs(err, msgauth.ErrBadSignature)
}

func (suite *VerifierTestSuite) TestRejectsTamperedPayload() {
	env := suite.makeEnvelope(suite.now, "nonce-tampered")
	env.Payload = json.RawMessage(`{"type":"note_deleted","noteId":"x"}`)

	_, err := suite.verify(env)

	suite.ErrorIs(err, msgauth.ErrBadSignature)
}

func (suite *VerifierTestSuite) TestFallsBackToStoredSecret() {
	// Signed with the handshake-time secret but timestamped in the next
	// bucket: the fresh derivation fails, the stored secret matches.
	handshakeAt := suite.now
	messageAt := handshakeAt.Add(time.Second)

	stored := msgauth.SessionSecret(suite.token, suite.userID, handshakeAt)
	payload := json.RawMessage(`{"type":"ping"}`)
	timestamp := messageAt.UnixMilli()

	env := msgauth.Envelope{
		Payload:   payload,
		Signature: msgauth.Sign(stored, payload, timestamp, "nonce-fallback"),
		Timestamp: timestamp,
		Nonce:     "nonce-fallback",
	}

	// A different "fresh" identity would not match, only the stored
	// secret saves this envelope.
	_, err := suite.verifier.Verify(env, "rotated-away", suite.userID, stored, messageAt)

	suite.NoError(err)
}

func (suite *VerifierTestSuite) TestNonceNotConsumedOnFailure() {
	env := suite.makeEnvelope(suite.now, "nonce-failed")
	env.Signature = "broken"

	_, err := suite.verify(env)
	suite.Require().ErrorIs(err, msgauth.ErrBadSignature)

	// A correctly signed retry with the same nonce must still pass.
	retry := suite.makeEnvelope(suite.now, "nonce-failed")

	_, err = suite.verify(retry)
	suite.NoError(err)
}

func (suite *VerifierTestSuite) TestConcurrentDuplicateAcceptedOnce() {
	// The same envelope injected on several devices of one user runs on
	// distinct goroutines; exactly one delivery may succeed.
	env := suite.makeEnvelope(suite.now, "nonce-concurrent")

	const workers = 16

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
		replayed atomic.Int64
		unexpect atomic.Int64
	)

	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()

			switch _, err := suite.verify(env); {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, msgauth.ErrReplayedNonce):
				replayed.Add(1)
			default:
				unexpect.Add(1)
			}
		}()
	}

	wg.Wait()

	suite.EqualValues(1, accepted.Load())
	suite.EqualValues(workers-1, replayed.Load())
	suite.EqualValues(0, unexpect.Load())
}

func TestVerifier(t *testing.T) {
	t.Parallel()
	suite.Run(t, &VerifierTestSuite{})
}

func TestSign(t *testing.T) {
	payload := json.RawMessage(`{"b":1,"a":2}`)

	t.Run("StableForRawPayload", func(t *testing.T) {
		first := msgauth.Sign("secret", payload, 42, "n")
		second := msgauth.Sign("secret", payload, 42, "n")

		require.Equal(t, first, second)
		require.NotEmpty(t, first)
	})

	t.Run("KeyDependent", func(t *testing.T) {
		assert.NotEqual(t,
			msgauth.Sign("secret", payload, 42, "n"),
			msgauth.Sign("other", payload, 42, "n"))
	})
}
