package config

import "time"

// Config is the root configuration shared by the greeter and echo server binaries.
type Config struct {
	Client  ClientConfig  `yaml:"client"`
	Echo    EchoConfig    `yaml:"echo"`
	Journal JournalConfig `yaml:"journal"`
	Log     LogConfig     `yaml:"log"`
}

// ClientConfig holds the connection handle and greeter settings.
type ClientConfig struct {
	URL              string        `yaml:"url"`
	Greetings        []string      `yaml:"greetings"`      // Sent in order once the connection opens
	ManualPayload    string        `yaml:"manual_payload"` // Sent by the external trigger
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"` // 0 disables keepalive pings
	ReadLimit        int64         `yaml:"read_limit"`    // 0 = unlimited
}

// EchoConfig holds the echo server settings.
type EchoConfig struct {
	Addr         string        `yaml:"addr"`
	Path         string        `yaml:"path"`
	Prefix       string        `yaml:"prefix"` // Prepended to every echoed payload
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// JournalConfig holds the optional frame journal.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
