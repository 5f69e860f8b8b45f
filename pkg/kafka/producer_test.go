package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducer(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	tests := []struct {
		compression string
		want        kafka.Compression
	}{
		{compression: "gzip", want: kafka.Gzip},
		{compression: "snappy", want: kafka.Snappy},
		{compression: "lz4", want: kafka.Lz4},
		{compression: "zstd", want: kafka.Zstd},
		{compression: "none", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.compression, func(t *testing.T) {
			p := NewProducer(ProducerConfig{
				Brokers:      []string{"localhost:9092"},
				Topic:        "linkage-findings",
				BatchSize:    10,
				BatchTimeout: 50 * time.Millisecond,
				RequiredAcks: 1,
				Compression:  tt.compression,
			}, logger)

			assert.Equal(t, tt.want, p.writer.Compression)
			assert.IsType(t, &kafka.Hash{}, p.writer.Balancer)
			assert.Equal(t, "linkage-findings", p.topic)

			require.NoError(t, p.PublishFindingEvents(context.Background(), nil))
			require.NoError(t, p.Close())
		})
	}
}
