package connector

import "fmt"

// SourceFactory builds a Source connector from its typed config (already
// unmarshalled by the caller from the channel's YAML definition).
type SourceFactory func(cfg map[string]interface{}) (Source, error)

// DestinationFactory builds a Destination connector from its typed
// config and declared position (metaDataId, name).
type DestinationFactory func(metaDataID int, name string, cfg map[string]interface{}) (Destination, error)

var (
	sourceRegistry      = make(map[string]SourceFactory)
	destinationRegistry = make(map[string]DestinationFactory)
)

// RegisterSource registers a source connector factory by transport name
// (e.g. "tcp"). Panics on duplicate registration, which indicates a
// compile-time wiring bug rather than a runtime condition.
func RegisterSource(name string, factory SourceFactory) {
	if name == "" || factory == nil {
		panic("connector: invalid source registration")
	}
	if _, exists := sourceRegistry[name]; exists {
		panic(fmt.Sprintf("connector: source %q already registered", name))
	}
	sourceRegistry[name] = factory
}

// RegisterDestination registers a destination connector factory by
// transport name (e.g. "tcp", "kafka").
func RegisterDestination(name string, factory DestinationFactory) {
	if name == "" || factory == nil {
		panic("connector: invalid destination registration")
	}
	if _, exists := destinationRegistry[name]; exists {
		panic(fmt.Sprintf("connector: destination %q already registered", name))
	}
	destinationRegistry[name] = factory
}

// NewSource constructs a Source connector by transport name.
func NewSource(name string, cfg map[string]interface{}) (Source, error) {
	factory, ok := sourceRegistry[name]
	if !ok {
		return nil, fmt.Errorf("connector: unknown source transport %q", name)
	}
	return factory(cfg)
}

// NewDestination constructs a Destination connector by transport name.
func NewDestination(name string, metaDataID int, destName string, cfg map[string]interface{}) (Destination, error) {
	factory, ok := destinationRegistry[name]
	if !ok {
		return nil, fmt.Errorf("connector: unknown destination transport %q", name)
	}
	return factory(metaDataID, destName, cfg)
}
