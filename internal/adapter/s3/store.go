// Package s3 reads CCKP artifacts from the public object store without
// credentials.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/climate-indicator-service/internal/observability"
)

var (
	// ErrUnsupportedURL is returned for object URLs that are not s3://bucket/key.
	ErrUnsupportedURL = errors.New("unsupported object url")
	// ErrNotFound is returned when the bucket has no object under the key.
	ErrNotFound = errors.New("object not found")
	// ErrCircuitOpen is returned while the breaker rejects requests.
	ErrCircuitOpen = errors.New("object store circuit breaker open")
)

// Config holds the object store client settings.
type Config struct {
	Region string
	// Endpoint overrides the AWS endpoint, e.g. for a local mirror. Path-style
	// addressing is used when set.
	Endpoint string
	// Timeout bounds one GetObject call including the body download. Zero
	// leaves the client default.
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type getObjectAPI interface {
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
}

// Store fetches whole objects with retries and a circuit breaker.
// It implements retrieval.ObjectStore.
type Store struct {
	client         getObjectAPI
	breaker        *gobreaker.CircuitBreaker
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	metrics        *observability.Metrics
	logger         *slog.Logger
}

// NewStore creates an anonymous S3 client for the public archive.
func NewStore(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Store {
	return newStore(awss3.New(clientOptions(cfg)), cfg, metrics, logger)
}

func clientOptions(cfg Config) awss3.Options {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := awss3.Options{
		Region:      region,
		Credentials: aws.AnonymousCredentials{},
		Retryer:     aws.NopRetryer{},
	}
	if cfg.Timeout > 0 {
		opts.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return opts
}

func newStore(client getObjectAPI, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Store {
	s := &Store{
		client:         client,
		maxRetries:     max(cfg.MaxRetries, 0),
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		metrics:        metrics,
		logger:         logger,
	}
	if s.initialBackoff <= 0 {
		s.initialBackoff = 200 * time.Millisecond
	}
	if s.maxBackoff <= 0 {
		s.maxBackoff = 5 * time.Second
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cckp-object-store",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		// Missing objects and caller cancellation say nothing about store health.
		IsSuccessful: func(err error) bool {
			return err == nil || isPermanent(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return s
}

// Get downloads one object. Transient failures are retried with exponential
// backoff; missing objects and other client errors are returned at once.
func (s *Store) Get(ctx context.Context, objectURL string) ([]byte, error) {
	bucket, key, err := ParseURL(objectURL)
	if err != nil {
		return nil, err
	}

	backoff := s.initialBackoff
	for attempt := 0; ; attempt++ {
		data, err := s.get(ctx, bucket, key)
		if err == nil {
			s.metrics.ArtifactBytes.Add(float64(len(data)))
			return data, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			s.metrics.CircuitOpen.Inc()
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		if isPermanent(err) || ctx.Err() != nil || attempt >= s.maxRetries {
			return nil, err
		}

		s.logger.Debug("object fetch failed, retrying",
			"url", objectURL,
			"attempt", attempt+1,
			"backoff", backoff,
			"error", err,
		)
		if !sharedretry.SleepWithContext(ctx, backoff) {
			return nil, ctx.Err()
		}
		backoff = sharedretry.NextBackoff(backoff, s.maxBackoff)
	}
}

func (s *Store) get(ctx context.Context, bucket, key string) ([]byte, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, classify(bucket, key, err)
		}
		defer out.Body.Close()

		data, err := io.ReadAll(out.Body)
		if err != nil {
			return nil, fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	data, ok := res.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return data, nil
}

// ParseURL splits s3://bucket/key.
func ParseURL(objectURL string) (bucket, key string, err error) {
	u, err := url.Parse(objectURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedURL, objectURL)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("%w: %q has no key", ErrUnsupportedURL, objectURL)
	}
	return u.Host, key, nil
}

func classify(bucket, key string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("s3://%s/%s: %w: %w", bucket, key, ErrNotFound, err)
		}
	}
	if statusCode(err) == http.StatusNotFound {
		return fmt.Errorf("s3://%s/%s: %w: %w", bucket, key, ErrNotFound, err)
	}
	return fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
}

// isPermanent reports errors that a retry cannot fix.
func isPermanent(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	code := statusCode(err)
	return code >= 400 && code < 500 &&
		code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

func statusCode(err error) int {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}
