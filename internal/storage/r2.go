package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nekostream/internal/config"
	"nekostream/pkg/apperr"
)

// R2Client uploads to an S3-compatible bucket (Cloudflare R2) by
// hand-signing AWS Signature Version 4 PUTs over net/http. R2's region
// is always "auto".
type R2Client struct {
	endpoint     string // https://{account_id}.r2.cloudflarestorage.com
	accessKey    string
	secretKey    string
	bucket       string
	publicDomain string // served from here when set, else from the endpoint
	httpClient   *http.Client
}

// NewR2 builds a client from config. Returns an error when credentials
// are incomplete so callers can degrade (disable uploads) instead of
// failing requests later.
func NewR2(cfg config.StorageConfig) (*R2Client, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("r2: endpoint, access key and secret key are all required")
	}
	return &R2Client{
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
		accessKey:    cfg.AccessKey,
		secretKey:    cfg.SecretKey,
		bucket:       cfg.Bucket,
		publicDomain: strings.TrimRight(cfg.PublicDomain, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Store uploads data under key and returns the public URL. Failures are
// Upstream errors carrying the underlying cause for admin visibility.
func (c *R2Client) Store(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", apperr.E(apperr.Upstream, "object key must not be empty", nil)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req, err := c.newSignedRequest(ctx, http.MethodPut, key, contentType, data)
	if err != nil {
		return "", apperr.E(apperr.Upstream, "build signed upload request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.E(apperr.Upstream, "object upload failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", apperr.E(apperr.Upstream,
			fmt.Sprintf("object upload rejected with status %d: %s", resp.StatusCode, string(body)), nil)
	}

	return c.PublicURL(key), nil
}

// PublicURL is the canonical URL clients fetch the object from.
func (c *R2Client) PublicURL(key string) string {
	if c.publicDomain != "" {
		return c.publicDomain + "/" + key
	}
	return fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, key)
}

func (c *R2Client) newSignedRequest(ctx context.Context, method, key, contentType string, body []byte) (*http.Request, error) {
	now := time.Now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")

	host := c.endpoint
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}

	url := fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, key)
	payloadHash := hexSHA256(body)

	// canonical headers, sorted by name
	canonicalHeaders := fmt.Sprintf(
		"content-type:%s\nhost:%s\nx-amz-content-sha256:%s\nx-amz-date:%s\n",
		contentType, host, payloadHash, amzDate,
	)
	signedHeaders := "content-type;host;x-amz-content-sha256;x-amz-date"

	canonicalRequest := strings.Join([]string{
		method,
		"/" + c.bucket + "/" + key,
		"", // no query string
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	credentialScope := fmt.Sprintf("%s/auto/s3/aws4_request", dateStamp)
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		credentialScope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	signingKey := deriveSigningKey(c.secretKey, dateStamp, "auto", "s3")
	signature := hexHMAC(signingKey, []byte(stringToSign))

	authorization := fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s,SignedHeaders=%s,Signature=%s",
		c.accessKey, credentialScope, signedHeaders, signature,
	)

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Host", host)
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("Authorization", authorization)
	req.ContentLength = int64(len(body))

	return req, nil
}

func hexSHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexHMAC(key, data []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func rawHMAC(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func deriveSigningKey(secret, date, region, service string) []byte {
	kDate := rawHMAC([]byte("AWS4"+secret), []byte(date))
	kRegion := rawHMAC(kDate, []byte(region))
	kService := rawHMAC(kRegion, []byte(service))
	return rawHMAC(kService, []byte("aws4_request"))
}
