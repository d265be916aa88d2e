package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDestinationValidation(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]interface{}
		wantErr bool
	}{
		{
			name:    "missing brokers",
			raw:     map[string]interface{}{"topic": "test"},
			wantErr: true,
		},
		{
			name:    "missing topic",
			raw:     map[string]interface{}{"brokers": []interface{}{"localhost:9092"}},
			wantErr: true,
		},
		{
			name: "valid minimal config",
			raw: map[string]interface{}{
				"brokers": []interface{}{"localhost:9092"},
				"topic":   "test-topic",
			},
			wantErr: false,
		},
		{
			name: "invalid batch_timeout",
			raw: map[string]interface{}{
				"brokers":      []interface{}{"localhost:9092"},
				"topic":        "test-topic",
				"batchtimeout": "not-a-duration",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newDestination(1, "d1", tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewDestinationAppliesDefaults(t *testing.T) {
	dst, err := newDestination(2, "d2", map[string]interface{}{
		"brokers": []interface{}{"broker1:9092", "broker2:9092"},
		"topic":   "orders",
	})
	require.NoError(t, err)

	d := dst.(*Destination)
	assert.Equal(t, defaultBatchSize, d.cfg.BatchSize)
	assert.Equal(t, defaultBatchTimeout, d.cfg.BatchTimeout)
	assert.Equal(t, defaultCompression, d.cfg.Compression)
	assert.Equal(t, defaultMaxAttempts, d.cfg.MaxAttempts)
	assert.Equal(t, 2, d.MetaDataID())
	assert.Equal(t, "d2", d.Name())
}

func TestDestinationGetResponseAlwaysAbsent(t *testing.T) {
	d := NewDestination("d1", 1, Config{Brokers: []string{"localhost:9092"}, Topic: "t"})
	_, ok, err := d.GetResponse(nil, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDestinationQueueEnabledReflectsConfig(t *testing.T) {
	d := NewDestination("d1", 1, Config{Queue: true})
	assert.True(t, d.QueueEnabled())
}
