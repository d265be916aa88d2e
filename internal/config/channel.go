package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/corvushealth/engine/internal/channel"
	"github.com/corvushealth/engine/internal/connector"
	"github.com/corvushealth/engine/internal/storage"
)

// ChannelDefinition is the on-disk YAML shape of one channel (spec §6
// "Configuration surface"): identity, scripts, the source connector's
// transport and raw config, and its destinations in dispatch order.
// Connector-specific fields stay as a raw map so each transport's own
// wire.go decodes them (mapstructure, per internal/connector/tcp and
// internal/connector/kafka), instead of this package knowing every
// connector's schema.
type ChannelDefinition struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Enabled     bool   `yaml:"enabled"`
	Description string `yaml:"description"`

	MessageStorageMode string `yaml:"message_storage_mode"`
	EncryptData        bool   `yaml:"encrypt_data"`

	DeployScript        string `yaml:"deploy_script"`
	UndeployScript      string `yaml:"undeploy_script"`
	PreprocessorScript  string `yaml:"preprocessor_script"`
	PostprocessorScript string `yaml:"postprocessor_script"`
	FilterScript        string `yaml:"filter_script"`
	TransformerScript   string `yaml:"transformer_script"`

	AsyncIntake            bool `yaml:"async_intake"`
	RingSize               int  `yaml:"ring_size"`
	MessageRecoveryEnabled bool `yaml:"message_recovery_enabled"`

	Source       ConnectorDefinition   `yaml:"source"`
	Destinations []DestinationDefinition `yaml:"destinations"`
}

// ConnectorDefinition names a connector transport and carries its raw,
// transport-specific configuration.
type ConnectorDefinition struct {
	Transport string                 `yaml:"transport"`
	Config    map[string]interface{} `yaml:"config"`
}

// DestinationDefinition is one destination's declarative config (spec
// §6 "Destination (TCP)" and the Kafka equivalent), plus the
// pipeline-level fields (scripts, response storage, storage mode) the Channel
// Runtime itself owns rather than the connector.
type DestinationDefinition struct {
	MetaDataID int    `yaml:"meta_data_id"`
	Name       string `yaml:"name"`

	ConnectorDefinition `yaml:",inline"`

	FilterScript              string `yaml:"filter_script"`
	TransformerScript         string `yaml:"transformer_script"`
	ResponseTransformerScript string `yaml:"response_transformer_script"`
	StoreResponse             bool   `yaml:"store_response"`

	MessageStorageMode string `yaml:"message_storage_mode"`
	EncryptData        bool   `yaml:"encrypt_data"`
}

// LoadChannelDefinition reads and parses one channel's YAML definition
// from path. It does not build connectors or validate transport names;
// call Build for that.
func LoadChannelDefinition(path string) (*ChannelDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read channel definition %s: %w", path, err)
	}
	var def ChannelDefinition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("config: parse channel definition %s: %w", path, err)
	}
	return &def, nil
}

// Build resolves def into a channel.Config, constructing its source and
// destination connectors via the internal/connector registry (spec §6:
// the source/destination transport fields select which connector
// implementation to build).
func (def *ChannelDefinition) Build() (channel.Config, error) {
	if def.ID == "" {
		return channel.Config{}, fmt.Errorf("config: channel definition missing id")
	}
	if def.Source.Transport == "" {
		return channel.Config{}, fmt.Errorf("config: channel %s missing source.transport", def.ID)
	}

	source, err := connector.NewSource(def.Source.Transport, def.Source.Config)
	if err != nil {
		return channel.Config{}, fmt.Errorf("config: channel %s: build source: %w", def.ID, err)
	}

	settings, err := storageSettings(def.MessageStorageMode, def.EncryptData)
	if err != nil {
		return channel.Config{}, fmt.Errorf("config: channel %s: %w", def.ID, err)
	}

	cfg := channel.Config{
		ChannelID:   def.ID,
		ChannelName: def.Name,
		Source:      source,
		Settings:    settings,
		Scripts: channel.Scripts{
			Deploy:        def.DeployScript,
			Undeploy:      def.UndeployScript,
			Preprocessor:  def.PreprocessorScript,
			Postprocessor: def.PostprocessorScript,
			Filter:        def.FilterScript,
			Transformer:   def.TransformerScript,
		},
		AsyncIntake:            def.AsyncIntake,
		RingSize:               def.RingSize,
		MessageRecoveryEnabled: def.MessageRecoveryEnabled,
	}

	for _, d := range def.Destinations {
		if d.Transport == "" {
			return channel.Config{}, fmt.Errorf("config: channel %s: destination %s missing transport", def.ID, d.Name)
		}
		dconn, err := connector.NewDestination(d.Transport, d.MetaDataID, d.Name, d.Config)
		if err != nil {
			return channel.Config{}, fmt.Errorf("config: channel %s: build destination %s: %w", def.ID, d.Name, err)
		}
		dsettings, err := storageSettings(d.MessageStorageMode, d.EncryptData)
		if err != nil {
			return channel.Config{}, fmt.Errorf("config: channel %s: destination %s: %w", def.ID, d.Name, err)
		}
		cfg.Destinations = append(cfg.Destinations, channel.DestinationSpec{
			MetaDataID:                d.MetaDataID,
			Name:                      d.Name,
			Connector:                 dconn,
			FilterScript:              d.FilterScript,
			TransformerScript:         d.TransformerScript,
			ResponseTransformerScript: d.ResponseTransformerScript,
			Settings:                  dsettings,
			StoreResponse:             d.StoreResponse,
		})
	}

	return cfg, nil
}

func storageSettings(mode string, encrypt bool) (storage.Settings, error) {
	if mode == "" {
		mode = "PRODUCTION"
	}
	m, err := storage.ParseMode(mode)
	if err != nil {
		return storage.Settings{}, err
	}
	settings := storage.FromMode(m)
	settings.EncryptData = encrypt
	return settings, nil
}
