package kafka

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/corvushealth/engine/internal/connector"
)

func init() {
	connector.RegisterDestination("kafka", newDestination)
}

func decodeConfig(raw map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

func newDestination(metaDataID int, destName string, raw map[string]interface{}) (connector.Destination, error) {
	cfg := Config{
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Compression:  defaultCompression,
		MaxAttempts:  defaultMaxAttempts,
	}
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, fmt.Errorf("kafka destination %s config: %w", destName, err)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka destination %s: brokers is required", destName)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka destination %s: topic is required", destName)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	return NewDestination(destName, metaDataID, cfg), nil
}
