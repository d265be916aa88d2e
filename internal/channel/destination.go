package channel

import (
	"context"

	"github.com/corvushealth/engine/internal/connector"
	"github.com/corvushealth/engine/internal/script"
	"github.com/corvushealth/engine/internal/storage"
)

// destination bundles one Destination Connector with the scripts and
// storage settings that govern how the pipeline drives it (spec §4.1
// step 11, §4.2).
type destination struct {
	metaDataID int
	name       string

	conn connector.Destination

	filterScript              string
	transformerScript         string
	responseTransformerScript string
	executor                  script.Executor

	settings      storage.Settings
	storeResponse bool

	queue        *connector.Queue
	workerCfg    connector.WorkerConfig
	workerCancel context.CancelFunc
}

// DestinationSpec is the declarative configuration a Channel is built
// from for one destination (spec §6 channel definition).
type DestinationSpec struct {
	MetaDataID                int
	Name                      string
	Connector                 connector.Destination
	FilterScript              string
	TransformerScript         string
	ResponseTransformerScript string
	Settings                  storage.Settings
	StoreResponse             bool
	WorkerConfig              connector.WorkerConfig
}

func newDestination(spec DestinationSpec, executor script.Executor) *destination {
	return &destination{
		metaDataID:                spec.MetaDataID,
		name:                      spec.Name,
		conn:                      spec.Connector,
		filterScript:              spec.FilterScript,
		transformerScript:         spec.TransformerScript,
		responseTransformerScript: spec.ResponseTransformerScript,
		executor:                  executor,
		settings:                  spec.Settings,
		storeResponse:             spec.StoreResponse,
		workerCfg:                 spec.WorkerConfig,
		queue:                     connector.NewQueue(),
	}
}

func (d *destination) queueEnabled() bool {
	return d.conn.QueueEnabled()
}
