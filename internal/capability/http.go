package capability

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// HTTPConfig configures the client for the remote threshold network gateway.
type HTTPConfig struct {
	BaseURL    string
	APIKey     string
	MaxRetries uint64
	Timeout    time.Duration
}

// HTTPClient talks to the threshold network gateway over its JSON API.
// It implements Bundle.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	maxRetries uint64
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Bundle = (*HTTPClient)(nil)

// NewHTTPClient creates a gateway client. A nil logger disables logging.
func NewHTTPClient(cfg HTTPConfig, logger *zap.Logger) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("capability base URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("capability"),
	}, nil
}

type encryptRequest struct {
	AccessControlConditions Policy `json:"accessControlConditions"`
	DataToEncrypt           string `json:"dataToEncrypt"`
}

type decryptRequest struct {
	AccessControlConditions Policy `json:"accessControlConditions"`
	Ciphertext              string `json:"ciphertext"`
	DataToEncryptHash       string `json:"dataToEncryptHash"`
}

type decryptResponse struct {
	Data string `json:"data"`
}

type signRequest struct {
	ToSign string `json:"toSign"`
	KeyID  string `json:"keyId"`
}

type signResponse struct {
	R     string `json:"r"`
	S     string `json:"s"`
	RecID *int   `json:"recid"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Encrypt asks the gateway to encrypt plaintext under policy.
func (c *HTTPClient) Encrypt(ctx context.Context, policy Policy, plaintext []byte) (Ciphertext, error) {
	req := encryptRequest{
		AccessControlConditions: policy,
		DataToEncrypt:           base64.StdEncoding.EncodeToString(plaintext),
	}

	var resp Ciphertext
	if err := c.post(ctx, "/v1/encrypt", req, &resp); err != nil {
		return Ciphertext{}, err
	}
	if resp.Data == "" || resp.Hash == "" {
		return Ciphertext{}, fmt.Errorf("gateway returned an incomplete ciphertext")
	}

	c.logger.Debug("encrypted payload",
		zap.Int("plaintext_len", len(plaintext)),
		zap.String("hash", resp.Hash))
	return resp, nil
}

// Decrypt asks the gateway to decrypt ct under policy.
func (c *HTTPClient) Decrypt(ctx context.Context, policy Policy, ct Ciphertext) ([]byte, error) {
	req := decryptRequest{
		AccessControlConditions: policy,
		Ciphertext:              ct.Data,
		DataToEncryptHash:       ct.Hash,
	}

	var resp decryptResponse
	if err := c.post(ctx, "/v1/decrypt", req, &resp); err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode decrypted data: %w", err)
	}
	return data, nil
}

// Sign asks the gateway for a threshold signature over digest.
func (c *HTTPClient) Sign(ctx context.Context, digest []byte, keyID string) (Signature, error) {
	if len(digest) != 32 {
		return Signature{}, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	if keyID == "" {
		return Signature{}, fmt.Errorf("signer key ID is required")
	}

	req := signRequest{
		ToSign: "0x" + hex.EncodeToString(digest),
		KeyID:  keyID,
	}

	var resp signResponse
	if err := c.post(ctx, "/v1/sign", req, &resp); err != nil {
		return Signature{}, err
	}

	return resp.signature()
}

func (r signResponse) signature() (Signature, error) {
	if r.RecID == nil {
		return Signature{}, fmt.Errorf("gateway signature is missing recid")
	}
	if *r.RecID < 0 || *r.RecID > 255 {
		return Signature{}, fmt.Errorf("gateway signature recid %d out of range", *r.RecID)
	}

	rb, err := decodeHex(r.R)
	if err != nil {
		return Signature{}, fmt.Errorf("invalid signature r: %w", err)
	}
	sb, err := decodeHex(r.S)
	if err != nil {
		return Signature{}, fmt.Errorf("invalid signature s: %w", err)
	}

	return Signature{R: rb, S: sb, V: byte(*r.RecID)}, nil
}

// post sends a JSON request and decodes the JSON response into out.
// Transport failures and 429/5xx responses are retried with exponential backoff
// until ctx expires or the retry budget runs out.
func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("request to %s failed: %w", path, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, gatewayMessage(respBody))
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, gatewayMessage(respBody)))
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to parse response from %s: %w", path, err))
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("capability call failed, retrying",
			zap.String("path", path),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("capability call %s: %w", path, ctxErr)
		}
		return err
	}
	return nil
}

func gatewayMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("empty value")
	}
	return b, nil
}
