package tcp

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/corvushealth/engine/internal/connector"
)

func init() {
	connector.RegisterSource("tcp", newSource)
	connector.RegisterDestination("tcp", newDestination)
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

func newSource(raw map[string]interface{}) (connector.Source, error) {
	cfg := SourceConfig{
		ServerMode:        ServerModeServer,
		TransmissionMode:  ModeMLLP,
		ResponseMode:      ResponseAuto,
		BindRetryAttempts: 3,
		BindRetryInterval: 5 * time.Second,
		ReconnectInterval: 5 * time.Second,
		BufferSize:        65536,
	}
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, fmt.Errorf("tcp source config: %w", err)
	}
	if cfg.Host == "" && cfg.ServerMode == ServerModeServer {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("tcp source config: port is required")
	}
	name, _ := raw["name"].(string)
	if name == "" {
		name = fmt.Sprintf("tcp-listener-%d", cfg.Port)
	}
	return NewReceiver(name, cfg, nil), nil
}

func newDestination(metaDataID int, destName string, raw map[string]interface{}) (connector.Destination, error) {
	cfg := DestinationConfig{
		TransmissionMode: ModeMLLP,
		SendTimeout:      5 * time.Second,
		ResponseTimeout:  5 * time.Second,
		RetryInterval:    10 * time.Second,
		BufferSize:       65536,
	}
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, fmt.Errorf("tcp destination config: %w", err)
	}
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, fmt.Errorf("tcp destination %s: host and port are required", destName)
	}
	return NewDispatcher(destName, metaDataID, cfg), nil
}
