package inject

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dmorgan81/textimage/internal/config"
	"github.com/dmorgan81/textimage/internal/controller"
	"github.com/dmorgan81/textimage/internal/image"
	"github.com/dmorgan81/textimage/internal/log"
	"github.com/dmorgan81/textimage/internal/page"
	"github.com/dmorgan81/textimage/internal/param"
	"github.com/dmorgan81/textimage/internal/store"
	"github.com/dmorgan81/textimage/internal/web"
	"github.com/samber/do"
)

// Setup registers every service lazily; AWS clients are only built when a
// component that needs them is invoked.
func Setup(ctx context.Context, cfg *config.Config) *do.Injector {
	logger := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		},
	})
	do.ProvideValue[*slog.Logger](injector, logger)
	do.ProvideValue[*config.Config](injector, cfg)

	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx)
	})
	do.Provide[*ssm.Client](injector, func(i *do.Injector) (*ssm.Client, error) {
		return ssm.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*s3.Client](injector, func(i *do.Injector) (*s3.Client, error) {
		return s3.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*cloudfront.Client](injector, func(i *do.Injector) (*cloudfront.Client, error) {
		return cloudfront.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.ProvideValue[*http.Client](injector, http.DefaultClient)

	do.Provide[param.Fetcher](injector, param.NewParameterStoreFetcher)
	do.ProvideNamed[string](injector, "api_key", func(i *do.Injector) (string, error) {
		if cfg.APIKeyParam == "" {
			return cfg.APIKey, nil
		}
		return do.MustInvoke[param.Fetcher](i).Fetch(ctx, cfg.APIKeyParam)
	})
	do.ProvideNamedValue[string](injector, "inference_url", cfg.InferenceURL)
	do.ProvideNamedValue[string](injector, "bucket", cfg.DownloadBucket)
	do.ProvideNamedValue[string](injector, "distribution", cfg.DownloadDistribution)

	do.Provide[image.Generator](injector, image.NewHuggingFaceGenerator)
	do.Provide[*store.S3Uploader](injector, store.NewS3Uploader)
	do.Provide[*store.CloudFrontInvalidator](injector, store.NewCloudFrontInvalidator)
	do.Provide[store.Uploader](injector, newUploader)
	do.Provide[*page.Templator](injector, page.NewTemplator)
	do.Provide[controller.Factory](injector, controller.NewFactory)
	do.Provide[*web.Server](injector, web.NewServer)

	return injector
}

func newUploader(i *do.Injector) (store.Uploader, error) {
	cfg := do.MustInvoke[*config.Config](i)
	switch cfg.DownloadTarget {
	case config.TargetS3:
		uploader := do.MustInvoke[*store.S3Uploader](i)
		if cfg.DownloadDistribution == "" {
			return uploader, nil
		}
		return &store.InvalidatingUploader{
			Uploader:    uploader,
			Invalidator: do.MustInvoke[*store.CloudFrontInvalidator](i),
		}, nil
	case config.TargetMinio:
		return store.NewMinioUploader(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey,
			cfg.DownloadBucket, cfg.Minio.UseSSL)
	default:
		return &store.FileUploader{Dir: cfg.DownloadDir}, nil
	}
}
