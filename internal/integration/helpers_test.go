//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/climate-indicator-service/internal/adapter/netcdf"
	"github.com/couchcryptid/climate-indicator-service/internal/adapter/s3"
	"github.com/couchcryptid/climate-indicator-service/internal/domain"
	"github.com/couchcryptid/climate-indicator-service/internal/observability"
	"github.com/couchcryptid/climate-indicator-service/internal/registry"
	"github.com/couchcryptid/climate-indicator-service/internal/retrieval"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the lifetime of the test.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	kc, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("climate-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(kc); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := kc.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// dirStore serves s3:// URLs from a local mirror laid out as <root>/<bucket>/<key>.
type dirStore struct{ root string }

func (d dirStore) Get(_ context.Context, objectURL string) ([]byte, error) {
	bucket, key, err := s3.ParseURL(objectURL)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(d.root, bucket, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil, s3.ErrNotFound
	}
	return data, err
}

// writeArchive mirrors every object the jobs need on a 3x3 grid around
// (45.125, 7.625). Each cell holds its year, offset by the row index.
func writeArchive(t *testing.T, jobs ...domain.JobParams) string {
	t.Helper()
	root := t.TempDir()
	locator := domain.NewLocator("")

	lat := []float64{44.875, 45.125, 45.375}
	lon := []float64{7.375, 7.625, 7.875}
	for _, job := range jobs {
		plan, err := locator.Locate(job)
		require.NoError(t, err)
		for _, gp := range plan.Groups {
			for _, a := range gp.Artifacts {
				years := []int{2000}
				if a.Window == "" {
					years = []int{2000, 2001, 2002}
				}
				g := domain.Grid{Lat: lat, Lon: lon, Years: years}
				for _, y := range years {
					for i := range lat {
						for range lon {
							g.Values = append(g.Values, float64(y)+float64(i))
						}
					}
				}

				bucket, key, err := s3.ParseURL(a.URL)
				require.NoError(t, err)
				path := filepath.Join(root, bucket, filepath.FromSlash(key))
				require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
				require.NoError(t, netcdf.WriteGrid(path, a.DataVar, g))
			}
		}
	}
	return root
}

func newRetriever(t *testing.T, root string) *retrieval.Retriever {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	metrics := observability.NewMetricsForTesting()
	fetcher := retrieval.NewFetcher(dirStore{root: root}, netcdf.NewDecoder(t.TempDir()), metrics, discardLogger())
	return retrieval.NewRetriever(domain.NewLocator(""), fetcher, reg, metrics, discardLogger())
}
