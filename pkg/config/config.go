package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	ListenAddr        string // listen addr for the HTTP/WebSocket server
	FeedURL           string // URL of the upstream live timing feed (empty: no ingest client)
	FeedSession       string // session key used for frames from the upstream feed
	NatsURL           string // URL of the NATS server used as relay (empty: relay disabled)
	WaitForServices   string // duration to wait for other services to be ready
	LogLevel          string // sets the log level (zap log level values)
	LogFormat         string // text vs json
	LogConfig         string // path to log config file
	EnableTelemetry   bool   // enable telemetry
	TelemetryEndpoint string // endpoint for telemetry
	ProfilingPort     int    // port for profiling
	ProviderToken     string // token for data provider access
	StaleDuration     string // duration after which a session is considered stale
	ParamsFile        string // path to engine parameter overrides (yaml)
	BroadcastInterval string // interval for live position broadcasts
	MapInterval       string // interval for track map regeneration
	SessionTTL        string // expiration for the session metadata cache
	TLSCertFile       string // path to TLS certificate file
	TLSKeyFile        string // path to TLS key file
	TLSCAFile         string // path to TLS CA file (enables client cert verification)
	TraefikCerts      string // path to traefik acme.json (alternative cert source)
	TraefikCertDomain string // domain to extract from traefik acme.json
)

// Config holds the configuration values which are used by the application
type Config struct {
	PrintMessage bool // if true, the message payload will be print on debug level
}
