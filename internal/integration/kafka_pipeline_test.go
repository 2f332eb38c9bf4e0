//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-indicator-service/internal/adapter/kafka"
	"github.com/couchcryptid/climate-indicator-service/internal/config"
	"github.com/couchcryptid/climate-indicator-service/internal/domain"
	"github.com/couchcryptid/climate-indicator-service/internal/observability"
	"github.com/couchcryptid/climate-indicator-service/internal/pipeline"
)

const (
	testRequestTopic = "test-requests"
	testPayloadTopic = "test-payloads"
)

// payloadMessage holds a deserialized message read from the payload topic.
type payloadMessage struct {
	Payload domain.Payload
	Key     string
	Headers map[string]string
}

func readPayload(ctx context.Context, t *testing.T, consumer *kafkago.Reader) payloadMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from payload topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var p domain.Payload
	require.NoError(t, json.Unmarshal(msg.Value, &p), "unmarshal payload message")

	return payloadMessage{Payload: p, Key: string(msg.Key), Headers: headers}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaRequestTopic:  testRequestTopic,
		KafkaPayloadTopic:  testPayloadTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func requestBody(t *testing.T, id string, v domain.VariableCode, src domain.SourceKind, sc domain.Scenario) []byte {
	t.Helper()
	lat, lon := 45.1, 7.7
	req := domain.RetrievalRequest{
		RequestID: id,
		Variables: []domain.VariableCode{v},
		Sources:   []domain.SourceKind{src},
		Lat:       &lat,
		Lon:       &lon,
	}
	if src == domain.SourceCMIP6 {
		req.Scenarios = []domain.Scenario{sc}
		req.Bands = []domain.Band{domain.BandMedian}
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return data
}

func startPipeline(ctx context.Context, t *testing.T, cfg *config.Config, root string) (context.CancelFunc, <-chan error) {
	t.Helper()
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	transformer := pipeline.NewTransformer(newRetriever(t, root), nil, discardLogger())
	p := pipeline.New(reader, transformer, writer, discardLogger(), observability.NewMetricsForTesting(), 50)

	runCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(runCtx) }()
	return cancel, errCh
}

func payloadConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testPayloadTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaReaderWriter round-trips a request through kafka.Reader and a
// payload through kafka.Writer.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testRequestTopic)
	createTopic(t, broker, testPayloadTopic)
	cfg := testConfig(broker, "test-reader")

	era5 := domain.JobParams{Variable: "tas", Source: domain.SourceERA5}
	root := writeArchive(t, era5)
	body := requestBody(t, "req-1", "tas", domain.SourceERA5, "")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testRequestTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{Key: []byte("req-1"), Value: body}))

	// The consumer group may need time to rebalance before partitions are
	// assigned.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for request message")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("req-1"), raw.Key)
	assert.Equal(t, body, raw.Value)
	assert.Equal(t, testRequestTopic, raw.Topic)
	require.NotNil(t, raw.Commit)
	require.NoError(t, raw.Commit(ctx))

	transformer := pipeline.NewTransformer(newRetriever(t, root), nil, discardLogger())
	event, err := transformer.Transform(ctx, raw)
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.OutputEvent{event}))

	pm := readPayload(ctx, t, payloadConsumer(t, broker))
	assert.Equal(t, "tas/ERA5", pm.Key)
	assert.Equal(t, "req-1", pm.Headers["request_id"])
	assert.Equal(t, "retrieved", pm.Headers["status"])
	_, err = time.Parse(time.RFC3339, pm.Headers["retrieved_at"])
	assert.NoError(t, err, "retrieved_at should be valid RFC3339")

	assert.Equal(t, domain.VariableCode("tas"), pm.Payload.VarCode)
	for _, g := range domain.Groups {
		assert.Equal(t, domain.StatusRetrieved, pm.Payload.Status[g], string(g))
	}
	assert.Len(t, pm.Payload.Values[domain.ValuesTimeseries], 3)
}

// TestPipelineEndToEnd runs the worker against several jobs, one of which
// has no objects in the archive.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testRequestTopic)
	createTopic(t, broker, testPayloadTopic)
	cfg := testConfig(broker, "test-pipeline")

	root := writeArchive(t,
		domain.JobParams{Variable: "tas", Source: domain.SourceERA5},
		domain.JobParams{Variable: "pr", Source: domain.SourceERA5},
		domain.JobParams{Variable: "tas", Source: domain.SourceCMIP6, Scenario: domain.ScenarioSSP245, Bands: []domain.Band{domain.BandMedian}},
	)

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testRequestTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("a"), Value: requestBody(t, "a", "tas", domain.SourceERA5, "")},
		kafkago.Message{Key: []byte("b"), Value: requestBody(t, "b", "pr", domain.SourceERA5, "")},
		kafkago.Message{Key: []byte("c"), Value: requestBody(t, "c", "tas", domain.SourceCMIP6, domain.ScenarioSSP245)},
		kafkago.Message{Key: []byte("d"), Value: requestBody(t, "d", "hd35", domain.SourceERA5, "")},
	))

	stop, errCh := startPipeline(ctx, t, cfg, root)

	consumer := payloadConsumer(t, broker)
	received := map[string]payloadMessage{}
	for len(received) < 4 {
		pm := readPayload(ctx, t, consumer)
		received[pm.Headers["request_id"]] = pm
	}

	stop()
	require.NoError(t, <-errCh)

	assert.Equal(t, "tas/ERA5", received["a"].Key)
	assert.Equal(t, "retrieved", received["a"].Headers["status"])
	assert.Equal(t, "pr/ERA5", received["b"].Key)
	assert.Equal(t, "tas/CMIP6/ssp245", received["c"].Key)
	assert.Equal(t, "retrieved", received["c"].Headers["status"])

	// Missing objects are reported per group, not dropped.
	missing := received["d"]
	assert.Equal(t, "hd35/ERA5", missing.Key)
	assert.Equal(t, "error", missing.Headers["status"])
	assert.Equal(t, domain.StatusError, missing.Payload.Status[domain.GroupTimeseries])
	assert.Empty(t, missing.Payload.Values)
}

// TestPipelineRejectsBadRequests verifies that unparseable and multi-job
// requests are skipped and later messages are still processed.
func TestPipelineRejectsBadRequests(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testRequestTopic)
	createTopic(t, broker, testPayloadTopic)
	cfg := testConfig(broker, "test-poison")

	root := writeArchive(t, domain.JobParams{Variable: "tas", Source: domain.SourceERA5})

	lat, lon := 45.1, 7.7
	multi, err := json.Marshal(domain.RetrievalRequest{
		Variables: []domain.VariableCode{"tas", "pr"},
		Sources:   []domain.SourceKind{domain.SourceERA5},
		Lat:       &lat,
		Lon:       &lon,
	})
	require.NoError(t, err)

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testRequestTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("multi"), Value: multi},
		kafkago.Message{Key: []byte("good"), Value: requestBody(t, "good", "tas", domain.SourceERA5, "")},
	))

	stop, errCh := startPipeline(ctx, t, cfg, root)

	consumer := payloadConsumer(t, broker)
	pm := readPayload(ctx, t, consumer)
	assert.Equal(t, "good", pm.Headers["request_id"])

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on payload topic")

	stop()
	require.NoError(t, <-errCh)
}
