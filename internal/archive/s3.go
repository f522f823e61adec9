package archive

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"strings"
)

// S3Config holds the bucket and credentials for run uploads.
type S3Config struct {
	BucketURL    string
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	UseSSL       bool
}

// S3Uploader copies archived files with the AWS CLI (`aws s3 cp`).
type S3Uploader struct {
	bucket    string
	keyPrefix string
	cfg       S3Config
}

// NewS3Uploader parses BucketURL (s3://bucket/prefix, prefix optional).
// Credentials may come from the config or from the AWS CLI's own
// environment.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	bucket, prefix, err := parseS3BucketURL(cfg.BucketURL)
	if err != nil {
		return nil, err
	}
	if (cfg.AccessKey == "") != (cfg.SecretKey == "") {
		return nil, fmt.Errorf("s3: access key and secret key must be set together")
	}
	if _, err := exec.LookPath("aws"); err != nil {
		return nil, fmt.Errorf("s3: aws cli not found in PATH")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	return &S3Uploader{bucket: bucket, keyPrefix: prefix, cfg: cfg}, nil
}

// objectURL is where localPath lands for runKey.
func (u *S3Uploader) objectURL(localPath, runKey string) string {
	key := path.Join(runKey, path.Base(localPath))
	if u.keyPrefix != "" {
		key = path.Join(u.keyPrefix, key)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key)
}

// contentType maps the artifacts a run produces to their MIME types.
func contentType(localPath string) string {
	switch strings.ToLower(path.Ext(localPath)) {
	case ".json":
		return "application/json"
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".log":
		return "text/plain; charset=utf-8"
	}
	return ""
}

// uploadArgs builds the `aws s3 cp` invocation for one archived file. Each
// object is tagged with its run so a bucket listing can be grouped by run.
func (u *S3Uploader) uploadArgs(localPath, runKey string) []string {
	args := []string{"s3", "cp", localPath, u.objectURL(localPath, runKey),
		"--region", u.cfg.Region,
		"--metadata", "bundlelens-run=" + runKey,
		"--only-show-errors",
	}
	if ct := contentType(localPath); ct != "" {
		args = append(args, "--content-type", ct)
	}
	if endpoint := normalizeEndpoint(u.cfg.Endpoint, u.cfg.UseSSL); endpoint != "" {
		args = append(args, "--endpoint-url", endpoint)
	}
	return args
}

// credentialEnv returns the AWS variables set from config; anything left
// unset falls through to the CLI's own credential chain.
func (u *S3Uploader) credentialEnv() []string {
	env := []string{"AWS_DEFAULT_REGION=" + u.cfg.Region}
	if u.cfg.AccessKey != "" {
		env = append(env, "AWS_ACCESS_KEY_ID="+u.cfg.AccessKey, "AWS_SECRET_ACCESS_KEY="+u.cfg.SecretKey)
	}
	if token := strings.TrimSpace(u.cfg.SessionToken); token != "" {
		env = append(env, "AWS_SESSION_TOKEN="+token)
	}
	return env
}

// UploadFile implements Uploader.
func (u *S3Uploader) UploadFile(ctx context.Context, localPath, runKey string) error {
	cmd := exec.CommandContext(ctx, "aws", u.uploadArgs(localPath, runKey)...)
	cmd.Env = append(os.Environ(), u.credentialEnv()...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("s3: upload %s: %w: %s", path.Base(localPath), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func normalizeEndpoint(endpoint string, useSSL bool) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func parseS3BucketURL(raw string) (bucket string, prefix string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("s3: parse bucket-url: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("s3: bucket-url must use s3:// scheme")
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", "", fmt.Errorf("s3: bucket-url missing bucket name")
	}
	return u.Host, strings.Trim(strings.TrimSpace(u.Path), "/"), nil
}
