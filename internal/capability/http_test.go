package capability

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHTTPClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL + "/", APIKey: "secret", MaxRetries: 3}, nil)
	require.NoError(t, err)
	return c
}

func testPolicy(t *testing.T) Policy {
	t.Helper()
	p, err := ActionPolicy("", []string{"QmEval", "QmDigest", "QmHint"})
	require.NoError(t, err)
	return p
}

func TestNewHTTPClient_RequiresURL(t *testing.T) {
	_, err := NewHTTPClient(HTTPConfig{}, nil)
	assert.Error(t, err)
}

func TestHTTPClient_Encrypt(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/encrypt", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var conditions []map[string]any
		require.NoError(t, json.Unmarshal(req["accessControlConditions"], &conditions))
		assert.Len(t, conditions, 5)

		var data string
		require.NoError(t, json.Unmarshal(req["dataToEncrypt"], &data))
		decoded, err := base64.StdEncoding.DecodeString(data)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(decoded))

		_ = json.NewEncoder(w).Encode(map[string]string{"ciphertext": "CT", "dataToEncryptHash": "HASH"})
	})

	ct, err := c.Encrypt(context.Background(), testPolicy(t), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, Ciphertext{Data: "CT", Hash: "HASH"}, ct)
}

func TestHTTPClient_EncryptIncompleteResponse(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"ciphertext": "CT"})
	})

	_, err := c.Encrypt(context.Background(), testPolicy(t), []byte("hello"))
	assert.Error(t, err)
}

func TestHTTPClient_Decrypt(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/decrypt", r.URL.Path)

		var req decryptRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "CT", req.Ciphertext)
		assert.Equal(t, "HASH", req.DataToEncryptHash)
		assert.Equal(t, []string{"QmEval", "QmDigest", "QmHint"}, req.AccessControlConditions.ActionIDs())

		_ = json.NewEncoder(w).Encode(map[string]string{"data": base64.StdEncoding.EncodeToString([]byte("plain"))})
	})

	got, err := c.Decrypt(context.Background(), testPolicy(t), Ciphertext{Data: "CT", Hash: "HASH"})
	require.NoError(t, err)
	assert.Equal(t, []byte("plain"), got)
}

func TestHTTPClient_SignKeepsShortComponents(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sign", r.URL.Path)

		var req signRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.ToSign, 66)
		assert.Equal(t, "key-1", req.KeyID)

		_, _ = w.Write([]byte(`{"r":"0x0abc","s":"fff","recid":1}`))
	})

	sig, err := c.Sign(context.Background(), make([]byte, 32), "key-1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0xbc}, sig.R)
	assert.Equal(t, []byte{0x0f, 0xff}, sig.S)
	assert.Equal(t, byte(1), sig.V)
}

func TestHTTPClient_SignValidation(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"r":"01","s":"02"}`))
	})

	_, err := c.Sign(context.Background(), make([]byte, 31), "key-1")
	assert.Error(t, err)

	_, err = c.Sign(context.Background(), make([]byte, 32), "")
	assert.Error(t, err)

	_, err = c.Sign(context.Background(), make([]byte, 32), "key-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recid")
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"r":"01","s":"02","recid":0}`))
	})

	_, err := c.Sign(context.Background(), make([]byte, 32), "key-1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"policy not satisfied"}`))
	})

	_, err := c.Decrypt(context.Background(), testPolicy(t), Ciphertext{Data: "CT", Hash: "H"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy not satisfied")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPClient_DeadlineExceeded(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Sign(ctx, make([]byte, 32), "key-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
