package transport

import (
	"context"
	"fmt"

	_ "github.com/rclone/rclone/backend/local"
	"github.com/rclone/rclone/backend/s3"
	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/config/configmap"
	"github.com/rclone/rclone/fs/filter"
)

// InjectConfig injects the transport's rclone configuration into the
// context. Low-level retries stay with rclone; attempt-level retries
// are owned by the orchestrator, so rclone itself runs a single pass.
func InjectConfig(ctx context.Context) context.Context {
	ctx, ci := fs.AddConfig(ctx)
	ci.Retries = 1
	ci.LowLevelRetries = 10
	ci.NoTraverse = true
	return ctx
}

// InjectFileList restricts the context's filter to the given file names.
func InjectFileList(ctx context.Context, files []string) (context.Context, error) {
	f, err := filter.NewFilter(nil)
	if err != nil {
		return ctx, fmt.Errorf("unable to create file filter: %w", err)
	}
	for _, file := range files {
		if err := f.AddFile(file); err != nil {
			return ctx, fmt.Errorf("unable to add %s to file filter: %w", file, err)
		}
	}
	return filter.ReplaceConfig(ctx, f), nil
}

// S3Credentials configures an S3-compatible remote backend.
type S3Credentials struct {
	Provider  string `json:"provider,omitempty"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Endpoint  string `json:"endpoint"`
	Region    string `json:"region,omitempty"`
	Bucket    string `json:"bucket"`
}

// mocks the config store of rclone
type dictConfigStore struct {
	config map[string]string
}

func (d *dictConfigStore) Get(key string) (string, bool) {
	value, ok := d.config[key]
	return value, ok
}

func (d *dictConfigStore) Set(key, value string) {
	d.config[key] = value
}

// NewS3Backend opens an S3-compatible bucket as an rclone filesystem.
func NewS3Backend(ctx context.Context, cred *S3Credentials) (fs.Fs, error) {
	if cred == nil {
		return nil, fmt.Errorf("S3 credentials are required")
	}

	conf := &dictConfigStore{
		config: make(map[string]string),
	}
	mopt := configmap.New()
	mopt.AddGetter(conf, 1)
	mopt.AddSetter(conf)
	provider := cred.Provider
	if provider == "" {
		provider = "Other"
	}
	region := cred.Region
	if region == "" {
		region = "auto"
	}
	mopt.Set("provider", provider)
	mopt.Set("access_key_id", cred.AccessKey)
	mopt.Set("secret_access_key", cred.SecretKey)
	mopt.Set("endpoint", cred.Endpoint)
	mopt.Set("region", region)
	mopt.Set("no_check_bucket", "true")
	mopt.Set("acl", "private")
	mopt.Set("force_path_style", "true")
	mopt.Set("list_chunk", "1000")
	mopt.Set("upload_concurrency", "4")

	f, err := s3.NewFs(ctx, "remote:", cred.Bucket, mopt)
	if err != nil {
		return nil, err
	}
	return f, nil
}
