package identity_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/suite"

	"github.com/quillvault/syncwire/internal/identity"
)

const testEndpoint = "https://id.example.com/api/auth/verify"

type VerifierTestSuite struct {
	suite.Suite

	verifier *identity.Verifier
}

func (suite *VerifierTestSuite) SetupSuite() {
	httpmock.Activate()
}

func (suite *VerifierTestSuite) TearDownSuite() {
	httpmock.DeactivateAndReset()
}

func (suite *VerifierTestSuite) SetupTest() {
	httpmock.Reset()

	suite.verifier = identity.NewVerifier(testEndpoint, 5*time.Second)
}

func (suite *VerifierTestSuite) TestAcceptsToken() {
	httpmock.RegisterResponder(http.MethodPost, testEndpoint,
		func(req *http.Request) (*http.Response, error) {
			suite.Equal("Bearer good-token", req.Header.Get("Authorization"))

			return httpmock.NewJsonResponse(http.StatusOK, map[string]string{
				"userId": "user-1",
			})
		})

	userID, err := suite.verifier.Verify(context.Background(), "good-token")

	suite.NoError(err)
	suite.Equal("user-1", userID)
}

func (suite *VerifierTestSuite) TestRejectedToken() {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		httpmock.RegisterResponder(http.MethodPost, testEndpoint,
			httpmock.NewStringResponder(status, ""))

		_, err := suite.verifier.Verify(context.Background(), "bad-token")

		suite.ErrorIs(err, identity.ErrTokenRejected)
	}
}

func (suite *VerifierTestSuite) TestProviderFailure() {
	httpmock.RegisterResponder(http.MethodPost, testEndpoint,
		httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	_, err := suite.verifier.Verify(context.Background(), "token")

	suite.Error(err)
	suite.NotErrorIs(err, identity.ErrTokenRejected)
}

func (suite *VerifierTestSuite) TestMissingUserID() {
	httpmock.RegisterResponder(http.MethodPost, testEndpoint,
		httpmock.NewStringResponder(http.StatusOK, `{}`))

	_, err := suite.verifier.Verify(context.Background(), "token")

	suite.Error(err)
}

func (suite *VerifierTestSuite) TestContextCancelled() {
	httpmock.RegisterResponder(http.MethodPost, testEndpoint,
		httpmock.NewStringResponder(http.StatusOK, `{"userId":"user-1"}`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := suite.verifier.Verify(ctx, "token")

	suite.Error(err)
}

func TestVerifier(t *testing.T) {
	suite.Run(t, &VerifierTestSuite{})
}
