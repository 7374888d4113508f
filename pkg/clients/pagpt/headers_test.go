package pagpt

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagptclient/pkg/auth"
	"pagptclient/pkg/auth/authtest"
)

func newTestBuilder(t *testing.T, now func() time.Time) (*HeaderBuilder, *auth.Signer) {
	t.Helper()
	signer, err := auth.NewSigner(authtest.KeyHex(t))
	require.NoError(t, err)
	return NewHeaderBuilder(testCredential, signer, now), signer
}

func TestHeaderBuilder_BaseHeaders(t *testing.T) {
	fixed := time.UnixMilli(1700000000123)
	b, signer := newTestBuilder(t, func() time.Time { return fixed })

	h, err := b.BaseHeaders()
	require.NoError(t, err)

	assert.Equal(t, AuthTypeAppToken, h.AuthType)
	assert.Equal(t, testCredential, h.Credential)
	assert.Equal(t, "1700000000123", h.RequestTime)
	assert.Len(t, h.Signature, 512)
	assert.NoError(t, signer.Verify(h.RequestTime, h.Signature))
}

func TestHeaderBuilder_FreshTimestampPerCall(t *testing.T) {
	var tick int64 = 1700000000000
	b, signer := newTestBuilder(t, func() time.Time {
		tick++
		return time.UnixMilli(tick)
	})

	first, err := b.TokenHeaders()
	require.NoError(t, err)
	second, err := b.DialogHeaders(testToken)
	require.NoError(t, err)

	assert.NotEqual(t, first.RequestTime, second.RequestTime)
	assert.NotEqual(t, first.Signature, second.Signature)
	for _, h := range []SignedHeaders{first, second} {
		_, err := strconv.ParseInt(h.RequestTime, 10, 64)
		assert.NoError(t, err)
		assert.NoError(t, signer.Verify(h.RequestTime, h.Signature))
	}
}

func TestHeaderBuilder_EndpointHeaders(t *testing.T) {
	b, _ := newTestBuilder(t, nil)

	token, err := b.TokenHeaders()
	require.NoError(t, err)
	assert.Equal(t, ContentTypeForm, token.ContentType)
	assert.Equal(t, CodeToken, token.EndpointCode)
	assert.Empty(t, token.AccessToken)

	dialog, err := b.DialogHeaders(testToken)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeJSON, dialog.ContentType)
	assert.Equal(t, CodeDialog, dialog.EndpointCode)
	assert.Equal(t, testToken, dialog.AccessToken)
}

func TestSignedHeaders_ApplyKeepsCase(t *testing.T) {
	b, _ := newTestBuilder(t, nil)
	h, err := b.DialogHeaders(testToken)
	require.NoError(t, err)

	header := http.Header{}
	h.Apply(header)

	for _, name := range []string{
		"X-Auth-Type", "openApiCredential", "openApiRequestTime",
		"openApiSignature", "openApiCode", "Content-Type", "access_token",
	} {
		assert.Contains(t, header, name)
	}
	assert.NotContains(t, header, "Openapicredential")
	assert.NotContains(t, header, "Access_token")
	assert.Equal(t, []string{testToken}, header["access_token"])
}
