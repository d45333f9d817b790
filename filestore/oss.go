package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/aliyun/credentials-go/credentials"
)

// OSSStore keeps uploaded files in an Alibaba Cloud OSS bucket. All requests go
// through the internal endpoint when one is configured.
type OSSStore struct {
	bucketName string
	bucket     *oss.Bucket
	cred       credentials.Credential
}

// NewOSSFromEnv returns (nil, false, nil) when OSS_BUCKET is unset, meaning OSS
// is simply not configured. A true second return with a non-nil error means OSS
// was requested but misconfigured.
func NewOSSFromEnv() (*OSSStore, bool, error) {
	bucket := strings.TrimSpace(os.Getenv("OSS_BUCKET"))
	if bucket == "" {
		return nil, false, nil
	}

	region := strings.TrimSpace(os.Getenv("OSS_REGION"))
	if region == "" {
		region = "cn-heyuan"
	}

	endpoint := strings.TrimSpace(os.Getenv("OSS_ENDPOINT_INTERNAL"))
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OSS_ENDPOINT_PUBLIC"))
	}
	if endpoint == "" {
		return nil, true, errors.New("OSS_BUCKET is set but OSS_ENDPOINT_INTERNAL/OSS_ENDPOINT_PUBLIC are both empty")
	}

	cred, err := newAlibabaCredential(region)
	if err != nil {
		return nil, true, fmt.Errorf("init alibaba credentials failed: %w", err)
	}
	// Validate once up front so a missing credential fails loudly instead of
	// turning every PutObject into an anonymous request and a confusing 403.
	if err := validateAlibabaCredential(cred); err != nil {
		return nil, true, err
	}

	client, err := newOSSClient(endpoint, region, &credentialsProvider{cred: cred})
	if err != nil {
		return nil, true, fmt.Errorf("init oss client failed: %w", err)
	}
	b, err := client.Bucket(bucket)
	if err != nil {
		return nil, true, fmt.Errorf("open oss bucket failed: %w", err)
	}

	return &OSSStore{bucketName: bucket, bucket: b, cred: cred}, true, nil
}

func newAlibabaCredential(region string) (credentials.Credential, error) {
	// When the RRSA env vars are present, pin the OIDC flow explicitly and
	// allow overriding the STS endpoint for clusters without public egress.
	roleArn := strings.TrimSpace(os.Getenv("ALIBABA_CLOUD_ROLE_ARN"))
	providerArn := strings.TrimSpace(os.Getenv("ALIBABA_CLOUD_OIDC_PROVIDER_ARN"))
	tokenFile := strings.TrimSpace(os.Getenv("ALIBABA_CLOUD_OIDC_TOKEN_FILE"))
	if roleArn != "" && providerArn != "" && tokenFile != "" {
		cfg := new(credentials.Config).
			SetType("oidc_role_arn").
			SetRoleArn(roleArn).
			SetOIDCProviderArn(providerArn).
			SetOIDCTokenFilePath(tokenFile)

		stsEndpoint := strings.TrimSpace(os.Getenv("ALIBABA_CLOUD_STS_ENDPOINT"))
		if stsEndpoint == "" {
			stsEndpoint = "sts.aliyuncs.com"
			if strings.TrimSpace(region) != "" {
				stsEndpoint = "sts." + strings.TrimSpace(region) + ".aliyuncs.com"
			}
		}
		cfg.SetSTSEndpoint(stsEndpoint)
		return credentials.NewCredential(cfg)
	}
	return credentials.NewCredential(nil)
}

func validateAlibabaCredential(cred credentials.Credential) error {
	if cred == nil {
		return errors.New("alibaba credential not initialized (RRSA/AK/STS all unavailable)")
	}
	c, err := cred.GetCredential()
	if err != nil {
		return fmt.Errorf("fetch alibaba temporary credential failed (check RRSA injection / STS connectivity): %w", err)
	}
	if c == nil || c.AccessKeyId == nil || c.AccessKeySecret == nil || strings.TrimSpace(*c.AccessKeyId) == "" || strings.TrimSpace(*c.AccessKeySecret) == "" {
		return errors.New("alibaba credential is empty: RRSA likely not injected (ALIBABA_CLOUD_ROLE_ARN / ALIBABA_CLOUD_OIDC_PROVIDER_ARN / ALIBABA_CLOUD_OIDC_TOKEN_FILE)")
	}
	return nil
}

func newOSSClient(endpoint, region string, provider oss.CredentialsProvider) (*oss.Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("endpoint empty")
	}
	opts := []oss.ClientOption{
		oss.SetCredentialsProvider(provider),
		oss.AuthVersion(oss.AuthV4),
	}
	if strings.TrimSpace(region) != "" {
		opts = append(opts, oss.Region(region))
	}
	return oss.New(endpoint, "", "", opts...)
}

func (s *OSSStore) Enabled() bool { return s != nil && s.bucket != nil }

func (s *OSSStore) ensureCred() error {
	if s == nil || s.cred == nil {
		return errors.New("alibaba credential not initialized (RRSA/AK/STS all unavailable)")
	}
	return validateAlibabaCredential(s.cred)
}

func (s *OSSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if !s.Enabled() {
		return errors.New("oss not enabled")
	}
	if err := s.ensureCred(); err != nil {
		return err
	}
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return errors.New("object key empty")
	}
	opts := []oss.Option{}
	if strings.TrimSpace(contentType) != "" {
		opts = append(opts, oss.ContentType(strings.TrimSpace(contentType)))
	}
	return s.bucket.PutObject(key, bytes.NewReader(data), opts...)
}

func (s *OSSStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	if !s.Enabled() {
		return nil, errors.New("oss not enabled")
	}
	if err := s.ensureCred(); err != nil {
		return nil, err
	}
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return nil, errors.New("object key empty")
	}
	rc, err := s.bucket.GetObject(key)
	if err != nil {
		return nil, err
	}
	return readAll(rc)
}

func (s *OSSStore) Delete(ctx context.Context, key string) error {
	if !s.Enabled() {
		return errors.New("oss not enabled")
	}
	if err := s.ensureCred(); err != nil {
		return err
	}
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return errors.New("object key empty")
	}
	return s.bucket.DeleteObject(key)
}

// --- Credentials bridge: credentials-go -> OSS SDK V1 ---

type credentialsProvider struct {
	cred credentials.Credential
}

type ossCred struct {
	AccessKeyId     string
	AccessKeySecret string
	SecurityToken   string
}

func (c *ossCred) GetAccessKeyID() string     { return c.AccessKeyId }
func (c *ossCred) GetAccessKeySecret() string { return c.AccessKeySecret }
func (c *ossCred) GetSecurityToken() string   { return c.SecurityToken }

func (p *credentialsProvider) GetCredentials() oss.Credentials {
	out, err := p.cred.GetCredential()
	if err != nil || out == nil || out.AccessKeyId == nil || out.AccessKeySecret == nil {
		// The V1 provider interface cannot return an error; an empty
		// credential makes the actual request fail with a visible error.
		return &ossCred{}
	}
	token := ""
	if out.SecurityToken != nil {
		token = *out.SecurityToken
	}
	return &ossCred{
		AccessKeyId:     deref(out.AccessKeyId),
		AccessKeySecret: deref(out.AccessKeySecret),
		SecurityToken:   token,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func readEnvInt64Default(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}
