package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAcks(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "one"},
		{in: "one", want: "one"},
		{in: "1", want: "one"},
		{in: "leader", want: "one"},
		{in: "none", want: "none"},
		{in: "0", want: "none"},
		{in: "ALL", want: "all"},
		{in: "-1", want: "all"},
		{in: "two", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := normalizeAcks(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "none"},
		{in: "off", want: "none"},
		{in: "GZIP", want: "gzip"},
		{in: " snappy ", want: "snappy"},
		{in: "lz4", want: "lz4"},
		{in: "zstd", want: "zstd"},
		{in: "brotli", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := normalizeCompression(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDriverMappings(t *testing.T) {
	sa, err := saramaAcks("none")
	require.NoError(t, err)
	assert.Equal(t, sarama.NoResponse, sa)

	sc, err := saramaCompression("lz4")
	require.NoError(t, err)
	assert.Equal(t, sarama.CompressionLZ4, sc)

	ka, err := kafkaGoAcks("all")
	require.NoError(t, err)
	assert.Equal(t, kafkago.RequireAll, ka)

	kc, err := kafkaGoCompression("snappy")
	require.NoError(t, err)
	assert.Equal(t, kafkago.Snappy, kc)

	_, err = franzAcks("maybe")
	assert.Error(t, err)
	_, err = franzCompression("rar")
	assert.Error(t, err)
}

func TestNewProducer_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no brokers", cfg: Config{Driver: DriverSarama}},
		{name: "unknown driver", cfg: Config{Driver: "carrier-pigeon", Brokers: []string{"localhost:9092"}}},
		{name: "bad acks for kafka-go", cfg: Config{Driver: DriverKafkaGo, Brokers: []string{"localhost:9092"}, RequiredAcks: "many"}},
		{name: "bad compression for franz", cfg: Config{Driver: DriverFranz, Brokers: []string{"localhost:9092"}, Compression: "rar"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProducer(tt.cfg)
			assert.Error(t, err)
			assert.Nil(t, p)
		})
	}
}

func TestHeaderValue(t *testing.T) {
	headers := []kafkago.Header{
		{Key: "brand", Value: []byte("VISA")},
		{Key: dispatchIDHeader, Value: []byte("abc")},
	}
	assert.Equal(t, "abc", headerValue(headers, dispatchIDHeader))
	assert.Equal(t, "", headerValue(headers, "missing"))
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{Driver: DriverFranz, Brokers: []string{"localhost:9092"}, RequiredAcks: "all", Compression: "zstd"}
	require.NoError(t, valid.Validate())

	invalid := Config{Driver: "x", RequiredAcks: "some", Compression: "rar", MaxAttempts: -1}
	err := invalid.Validate()
	require.Error(t, err)
	for _, want := range []string{"broker", "driver", "acks", "compression", "max attempts"} {
		assert.ErrorContains(t, err, want)
	}
}
