package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-indicator-service/internal/observability"
)

type fakeClient struct {
	mu    sync.Mutex
	calls int
	errs  []error // returned in order before succeeding
	body  []byte
	input *awss3.GetObjectInput
}

func (f *fakeClient) GetObject(_ context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.input = in
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.body))}, nil
}

func testStore(client getObjectAPI, retries int) *Store {
	return newStore(client, Config{
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}, observability.NewMetricsForTesting(), slog.Default())
}

const objectURL = "s3://wbg-cckp/data/era5-x0.25/tas/era5-x0.25-historical/timeseries-tas-annual-mean_era5-x0.25_era5-x0.25-historical_timeseries_mean_1950-2022.nc"

func TestParseURL(t *testing.T) {
	bucket, key, err := ParseURL(objectURL)
	require.NoError(t, err)
	assert.Equal(t, "wbg-cckp", bucket)
	assert.Equal(t, "data/era5-x0.25/tas/era5-x0.25-historical/timeseries-tas-annual-mean_era5-x0.25_era5-x0.25-historical_timeseries_mean_1950-2022.nc", key)

	for _, bad := range []string{"https://example.com/a.nc", "s3://bucket", "s3:///key", "::"} {
		_, _, err := ParseURL(bad)
		assert.ErrorIs(t, err, ErrUnsupportedURL, bad)
	}
}

func TestStore_Get(t *testing.T) {
	client := &fakeClient{body: []byte("CDF\x01")}
	s := testStore(client, 2)

	data, err := s.Get(context.Background(), objectURL)
	require.NoError(t, err)
	assert.Equal(t, []byte("CDF\x01"), data)
	assert.Equal(t, "wbg-cckp", *client.input.Bucket)
	assert.Equal(t, 1, client.calls)
}

func TestStore_RetriesTransientErrors(t *testing.T) {
	client := &fakeClient{
		errs: []error{errors.New("connection reset"), errors.New("connection reset")},
		body: []byte("ok"),
	}
	s := testStore(client, 2)

	data, err := s.Get(context.Background(), objectURL)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
	assert.Equal(t, 3, client.calls)
}

func TestStore_GivesUpAfterMaxRetries(t *testing.T) {
	client := &fakeClient{errs: []error{errors.New("first failure"), errors.New("second failure"), errors.New("third failure")}}
	s := testStore(client, 1)

	_, err := s.Get(context.Background(), objectURL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second failure")
	assert.Equal(t, 2, client.calls)
}

func TestStore_NotFoundIsNotRetried(t *testing.T) {
	client := &fakeClient{errs: []error{&smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}}}
	s := testStore(client, 3)

	_, err := s.Get(context.Background(), objectURL)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, client.calls)
}

func TestStore_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = errors.New("service unavailable")
	}
	client := &fakeClient{errs: errs}
	s := testStore(client, 0)

	for range 5 {
		_, err := s.Get(context.Background(), objectURL)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrCircuitOpen)
	}

	_, err := s.Get(context.Background(), objectURL)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 5, client.calls, "open breaker does not reach the client")
}

func TestStore_NotFoundDoesNotTripBreaker(t *testing.T) {
	errs := make([]error, 8)
	for i := range errs {
		errs[i] = &smithy.GenericAPIError{Code: "NoSuchKey"}
	}
	s := testStore(&fakeClient{errs: errs}, 0)

	for range 8 {
		_, err := s.Get(context.Background(), objectURL)
		assert.ErrorIs(t, err, ErrNotFound)
	}
}

func TestStore_CancelledDuringBackoff(t *testing.T) {
	client := &fakeClient{errs: []error{errors.New("timeout"), errors.New("timeout")}}
	s := newStore(client, Config{MaxRetries: 3, InitialBackoff: time.Hour}, observability.NewMetricsForTesting(), slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Get(ctx, objectURL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, client.calls)
}

func TestNewStore_AnonymousPathStyle(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	s := NewStore(Config{Endpoint: srv.URL}, observability.NewMetricsForTesting(), slog.Default())

	data, err := s.Get(context.Background(), "s3://wbg-cckp/data/a.nc")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, "/wbg-cckp/data/a.nc", gotPath)
	assert.Empty(t, gotAuth, "requests are unsigned")
}

func TestClientOptions(t *testing.T) {
	opts := clientOptions(Config{})
	assert.Equal(t, "us-east-1", opts.Region)
	assert.Nil(t, opts.HTTPClient, "no timeout unless configured")
	assert.Nil(t, opts.BaseEndpoint)
	assert.False(t, opts.UsePathStyle)

	opts = clientOptions(Config{Region: "eu-west-1", Endpoint: "http://localhost:9000", Timeout: 5 * time.Minute})
	assert.Equal(t, "eu-west-1", opts.Region)
	client, ok := opts.HTTPClient.(*http.Client)
	require.True(t, ok)
	assert.Equal(t, 5*time.Minute, client.Timeout)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://localhost:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
}
