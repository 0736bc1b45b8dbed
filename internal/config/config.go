package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the name of the JSON config file looked up in the config dir.
const FileName = "imarker_server.cfg.json"

// ServerConfig holds HTTP/WebSocket transport settings
type ServerConfig struct {
	Address         string        `json:"address" mapstructure:"address"`
	TopicNamespace  string        `json:"topicNamespace" mapstructure:"topicNamespace"`
	PublishInterval time.Duration `json:"publishInterval" mapstructure:"publishInterval"`
	SendQueueSize   int           `json:"sendQueueSize" mapstructure:"sendQueueSize"`
	WriteTimeout    time.Duration `json:"writeTimeout" mapstructure:"writeTimeout"`
	AllowedOrigins  []string      `json:"allowedOrigins" mapstructure:"allowedOrigins"`
}

// FeedbackConfig holds feedback dispatcher settings
type FeedbackConfig struct {
	BufferSize int  `json:"bufferSize" mapstructure:"bufferSize"`
	Blocking   bool `json:"blocking" mapstructure:"blocking"`
	Logged     bool `json:"logged" mapstructure:"logged"`
}

// SQLiteConfig holds SQLite snapshot storage settings
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// DBConfig holds Postgres connection settings
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslMode" mapstructure:"sslMode"`
}

// StorageConfig holds marker snapshot persistence settings
type StorageConfig struct {
	Type             string        `json:"type" mapstructure:"type"` // "memory", "sqlite" or "postgres"
	SnapshotInterval time.Duration `json:"snapshotInterval" mapstructure:"snapshotInterval"`
	SQLite           SQLiteConfig  `json:"sqlite" mapstructure:"sqlite"`
	Postgres         DBConfig      `json:"db" mapstructure:"db"`
}

// InfluxConfig holds InfluxDB publish statistics settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// GraylogConfig holds GELF log shipping settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// SetDefaults registers the default value of every known key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./imlogs")

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.topicNamespace", "imarkers")
	viper.SetDefault("server.publishInterval", "100ms")
	viper.SetDefault("server.sendQueueSize", 256)
	viper.SetDefault("server.writeTimeout", "10s")
	viper.SetDefault("server.allowedOrigins", []string{})

	viper.SetDefault("feedback.bufferSize", 0)
	viper.SetDefault("feedback.blocking", false)
	viper.SetDefault("feedback.logged", false)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.snapshotInterval", "30s")
	viper.SetDefault("storage.sqlite.path", "./imarkers.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "imarkers")
	viper.SetDefault("db.sslMode", "disable")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "imarkers")
	viper.SetDefault("influx.bucket", "imarker-stats")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "imarker-server")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Defaults stay in
// effect when the file cannot be read.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetServerConfig returns the transport settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Address:         viper.GetString("server.address"),
		TopicNamespace:  viper.GetString("server.topicNamespace"),
		PublishInterval: viper.GetDuration("server.publishInterval"),
		SendQueueSize:   viper.GetInt("server.sendQueueSize"),
		WriteTimeout:    viper.GetDuration("server.writeTimeout"),
		AllowedOrigins:  viper.GetStringSlice("server.allowedOrigins"),
	}
}

// GetFeedbackConfig returns the feedback dispatcher settings.
func GetFeedbackConfig() FeedbackConfig {
	return FeedbackConfig{
		BufferSize: viper.GetInt("feedback.bufferSize"),
		Blocking:   viper.GetBool("feedback.blocking"),
		Logged:     viper.GetBool("feedback.logged"),
	}
}

// GetStorageConfig returns the snapshot persistence settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:             viper.GetString("storage.type"),
		SnapshotInterval: viper.GetDuration("storage.snapshotInterval"),
		SQLite: SQLiteConfig{
			Path: viper.GetString("storage.sqlite.path"),
		},
		Postgres: DBConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
			SSLMode:  viper.GetString("db.sslMode"),
		},
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetGraylogConfig returns the GELF settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
