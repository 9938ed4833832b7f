//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/reef-sst-archive/internal/adapter/kafka"
	"github.com/couchcryptid/reef-sst-archive/internal/adapter/netcdf"
	"github.com/couchcryptid/reef-sst-archive/internal/archive"
	"github.com/couchcryptid/reef-sst-archive/internal/config"
	"github.com/couchcryptid/reef-sst-archive/internal/domain"
	"github.com/couchcryptid/reef-sst-archive/internal/ledger"
	"github.com/couchcryptid/reef-sst-archive/internal/observability"
	"github.com/couchcryptid/reef-sst-archive/internal/pipeline"
)

const testTopic = "test-sst-records"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("sst-archive-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
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

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}

// stageRaw writes a constant-temperature raw analysis (Kelvin) for d.
func stageRaw(t *testing.T, dir string, d domain.Date, celsius float64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	g := domain.NewGrid([]float64{11.9, 12.0, 12.1}, []float64{-68.5, -68.4}, domain.UnitsKelvin)
	for i := range g.Values {
		g.Values[i] = celsius + 273.15
	}
	f, err := os.Create(filepath.Join(dir, d.String()+".nc"))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, netcdf.WriteGrid(f, g, netcdf.VarSpec{Name: "analysed_sst"}))
}

// TestPipelinePublishesRecordEvents runs the archive over three staged days
// and reads the announced records back from Kafka.
func TestPipelinePublishesRecordEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	root := t.TempDir()
	layout := archive.Layout{Root: filepath.Join(root, "archive"), Scratch: filepath.Join(root, "scratch")}
	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	store, err := archive.Open(layout, "integration", logger)
	require.NoError(t, err)

	rng := ledger.Range{Start: domain.NewDate(2024, time.May, 1), End: domain.NewDate(2024, time.May, 3)}
	dates, err := rng.Days()
	require.NoError(t, err)
	for _, d := range dates {
		stageRaw(t, layout.ScratchDir(d), d, 29.5)
	}

	writer := kafka.NewWriter(&config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}, logger)
	t.Cleanup(func() { _ = writer.Close() })

	normalizer := pipeline.NewNormalizer(store, nil, pipeline.NormalizerConfig{
		RawVar:       "analysed_sst",
		Region:       domain.BoundingBox{MinLat: 11.95, MaxLat: 12.15, MinLon: -68.55, MaxLon: -68.35},
		KelvinOffset: 273.15,
	}, logger, metrics)
	reducer := pipeline.NewReducer(store, 2, logger, metrics)
	p := pipeline.New(store, pipeline.Stages{Normalizer: normalizer, Reducer: reducer}, writer, 2, logger, metrics)

	rep, err := p.Run(ctx, rng)
	require.NoError(t, err)
	require.Empty(t, rep.Failures)
	require.Len(t, rep.Events, 4) // 3 days + 1 month

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	keys := make(map[string]domain.RecordEvent)
	for range rep.Events {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from topic")

		var ev domain.RecordEvent
		require.NoError(t, json.Unmarshal(msg.Value, &ev))
		keys[string(msg.Key)] = ev
	}

	for _, k := range []string{"sst/daily/2024-05-01", "sst/daily/2024-05-02", "sst/daily/2024-05-03", "sst/monthly/2024-05"} {
		ev, ok := keys[k]
		if assert.True(t, ok, "missing event %s", k) {
			assert.Equal(t, rep.RunID, ev.RunID)
		}
	}
}
