package tcp

import "time"

// ServerMode selects whether the Source binds-and-listens or connects out.
type ServerMode string

const (
	ServerModeServer ServerMode = "SERVER"
	ServerModeClient ServerMode = "CLIENT"
)

// ResponseMode controls whether/how the receiver synthesizes a response
// after dispatch completes (spec §4.3).
type ResponseMode string

const (
	ResponseNone        ResponseMode = "NONE"
	ResponseAuto        ResponseMode = "AUTO"
	ResponseDestination ResponseMode = "DESTINATION"
)

// RespondOnNewConnection controls whether the synthesized response is
// written back on the original socket or a fresh one.
type RespondOnNewConnection string

const (
	RespondDisabled               RespondOnNewConnection = "DISABLED"
	RespondNewConnection          RespondOnNewConnection = "NEW_CONNECTION"
	RespondNewConnectionOnRecover RespondOnNewConnection = "NEW_CONNECTION_ON_RECOVERY"
)

// TLSConfig mirrors MLLPS options (spec §4.3, §6).
type TLSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	CAFile     string `mapstructure:"ca_file"`
	MinVersion string `mapstructure:"min_version"` // "1.2" | "1.3"
	ServerName string `mapstructure:"server_name"` // SNI
	MutualTLS  bool   `mapstructure:"mutual_tls"`
}

// SourceConfig configures a TCP Source Connector (spec §6).
type SourceConfig struct {
	ServerMode        ServerMode       `mapstructure:"server_mode"`
	Host              string           `mapstructure:"host"`
	Port              int              `mapstructure:"port"`
	TransmissionMode  TransmissionMode `mapstructure:"transmission_mode"`
	CharsetEncoding   string           `mapstructure:"charset_encoding"`
	ReceiveTimeout    time.Duration    `mapstructure:"receive_timeout"`
	KeepConnectionOpen bool            `mapstructure:"keep_connection_open"`
	MaxConnections    int              `mapstructure:"max_connections"`

	ResponseMode            ResponseMode            `mapstructure:"response_mode"`
	RespondOnNewConnection  RespondOnNewConnection  `mapstructure:"respond_on_new_connection"`
	ResponseAddress         string                  `mapstructure:"response_address"`
	ResponsePort            int                     `mapstructure:"response_port"`

	StartOfMessageBytes []byte        `mapstructure:"start_of_message_bytes"`
	EndOfMessageBytes   []byte        `mapstructure:"end_of_message_bytes"`
	DataType            string        `mapstructure:"data_type"`
	ReconnectInterval   time.Duration `mapstructure:"reconnect_interval"`
	BufferSize          int           `mapstructure:"buffer_size"`
	BindRetryAttempts   int           `mapstructure:"bind_retry_attempts"`
	BindRetryInterval   time.Duration `mapstructure:"bind_retry_interval"`

	TLS TLSConfig `mapstructure:"tls"`
}

// DestinationConfig configures a TCP Destination Connector (spec §6).
type DestinationConfig struct {
	Host               string           `mapstructure:"host"`
	Port               int              `mapstructure:"port"`
	TransmissionMode   TransmissionMode `mapstructure:"transmission_mode"`
	CharsetEncoding    string           `mapstructure:"charset_encoding"`
	SendTimeout        time.Duration    `mapstructure:"send_timeout"`
	ResponseTimeout    time.Duration    `mapstructure:"response_timeout"`
	KeepConnectionOpen bool             `mapstructure:"keep_connection_open"`
	CheckRemoteHost    bool             `mapstructure:"check_remote_host"`
	IgnoreResponse     bool             `mapstructure:"ignore_response"`
	QueueOnResponseTimeout bool         `mapstructure:"queue_on_response_timeout"`

	StartOfMessageBytes []byte `mapstructure:"start_of_message_bytes"`
	EndOfMessageBytes   []byte `mapstructure:"end_of_message_bytes"`
	Template            string `mapstructure:"template"`
	DataType            string `mapstructure:"data_type"`
	BufferSize          int    `mapstructure:"buffer_size"`

	LocalAddress string        `mapstructure:"local_address"`
	LocalPort    int           `mapstructure:"local_port"`
	SocketTimeout time.Duration `mapstructure:"socket_timeout"`

	QueueEnabledFlag bool `mapstructure:"queue_enabled"`
	RetryCount       int  `mapstructure:"retry_count"`
	RetryInterval    time.Duration `mapstructure:"retry_interval"`

	TLS TLSConfig `mapstructure:"tls"`
}
