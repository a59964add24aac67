package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultURL              = "ws://127.0.0.1:5050"
	DefaultManualPayload    = "manualsend"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultEchoAddr         = "127.0.0.1:5050"
	DefaultEchoPath         = "/"
	DefaultEchoWriteTimeout = 5 * time.Second
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultBatchSize        = 100
	DefaultFlushInterval    = 1 * time.Second
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// DefaultGreetings are sent, in order, when the connection opens.
func DefaultGreetings() []string {
	return []string{"js says hi", "another"}
}

func (c *Config) applyDefaults() {
	// Client defaults
	if c.Client.URL == "" {
		c.Client.URL = DefaultURL
	}
	if c.Client.Greetings == nil {
		c.Client.Greetings = DefaultGreetings()
	}
	if c.Client.ManualPayload == "" {
		c.Client.ManualPayload = DefaultManualPayload
	}
	if c.Client.HandshakeTimeout == 0 {
		c.Client.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Client.WriteTimeout == 0 {
		c.Client.WriteTimeout = DefaultWriteTimeout
	}

	// Echo defaults
	if c.Echo.Addr == "" {
		c.Echo.Addr = DefaultEchoAddr
	}
	if c.Echo.Path == "" {
		c.Echo.Path = DefaultEchoPath
	}
	if c.Echo.WriteTimeout == 0 {
		c.Echo.WriteTimeout = DefaultEchoWriteTimeout
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
