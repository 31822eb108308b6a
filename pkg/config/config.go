// Package config provides configuration loading and management for the
// platypus replication and backup server.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// S3Config defines S3 storage settings
type S3Config struct {
	Enabled            bool   `yaml:"enabled"`
	Bucket             string `yaml:"bucket"`
	Region             string `yaml:"region"`
	Endpoint           string `yaml:"endpoint"`
	AccessKey          string `yaml:"accessKey"`
	SecretKey          string `yaml:"secretKey"`
	Prefix             string `yaml:"prefix"`
	PathStyle          bool   `yaml:"pathStyle"`
	UseSSL             bool   `yaml:"useSSL"`
	CustomCAPath       string `yaml:"customCAPath"`
	SkipCertValidation bool   `yaml:"skipCertValidation"`
}

// LocalConfig defines local-directory storage settings, used when running
// without remote object storage.
type LocalConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
}

// ReplicationConfig defines replica-side copy settings.
type ReplicationConfig struct {
	// ReplicaIndexes lists the indexes this node holds the replica role
	// for. Copy-files sessions against any other index are rejected.
	ReplicaIndexes []string `yaml:"replicaIndexes"`
	// CopyWorkers bounds concurrent per-file fetches within one copy job.
	CopyWorkers int `yaml:"copyWorkers"`
	// StatusInterval is the cadence of Ongoing messages on an open session.
	StatusInterval string `yaml:"statusInterval"`
}

// BackupConfig defines versioned-backup settings.
type BackupConfig struct {
	// ServiceName namespaces every blob and version object in remote storage.
	ServiceName string `yaml:"serviceName"`
	// ArchiverDirectory holds scoped temp workspaces for staging manifests
	// and downloads.
	ArchiverDirectory string `yaml:"archiverDirectory"`
	// Workers bounds concurrent per-file uploads/downloads.
	Workers int `yaml:"workers"`
	// Schedule is an optional cron expression for periodic snapshots.
	Schedule string `yaml:"schedule"`
	// Resources lists the indexes the scheduler snapshots.
	Resources []string `yaml:"resources"`
}

// IndexConfig defines where committed index files live locally.
type IndexConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
}

// MetricsConfig defines Prometheus metrics settings
type MetricsConfig struct {
	Port string `yaml:"port"`
}

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// AppConfig is the top-level configuration structure
type AppConfig struct {
	Debug       bool              `yaml:"debug"`
	Index       IndexConfig       `yaml:"index"`
	Replication ReplicationConfig `yaml:"replication"`
	Backup      BackupConfig      `yaml:"backup"`
	S3          S3Config          `yaml:"s3"`
	Local       LocalConfig       `yaml:"local"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Server      ServerConfig      `yaml:"server"`
}

// CFG is the global application configuration
var CFG AppConfig

// LoadConfiguration populates CFG from environment variables, then applies
// the YAML config file named by CONFIG_FILE (if any) on top.
func LoadConfiguration() {
	log.Println("Loading configuration from environment variables...")
	loadFromEnvironment()

	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		if err := loadFromFile(configFile); err != nil {
			log.Fatalf("Failed to load config file %s: %v", configFile, err)
		}
		log.Printf("Applied configuration overrides from %s", configFile)
	}

	setDefaults()

	if CFG.Debug {
		log.Printf("Configuration loaded: %+v\n", CFG)
	}
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment() {
	CFG.Debug = parseEnvBool("DEBUG", false)

	// Index settings
	CFG.Index.DataDirectory = getEnvOrDefault("INDEX_DATA_DIRECTORY", "/data/index")

	// Replication settings
	if replicas := getEnvOrDefault("REPLICA_INDEXES", ""); replicas != "" {
		CFG.Replication.ReplicaIndexes = strings.Split(replicas, ",")
	}
	if workers, err := strconv.Atoi(getEnvOrDefault("REPLICATION_COPY_WORKERS", "20")); err == nil {
		CFG.Replication.CopyWorkers = workers
	}
	CFG.Replication.StatusInterval = getEnvOrDefault("REPLICATION_STATUS_INTERVAL", "500ms")

	// Backup settings
	CFG.Backup.ServiceName = getEnvOrDefault("BACKUP_SERVICE_NAME", "platypus")
	CFG.Backup.ArchiverDirectory = getEnvOrDefault("BACKUP_ARCHIVER_DIRECTORY", "/data/archiver")
	if workers, err := strconv.Atoi(getEnvOrDefault("BACKUP_WORKERS", "20")); err == nil {
		CFG.Backup.Workers = workers
	}
	CFG.Backup.Schedule = getEnvOrDefault("BACKUP_SCHEDULE", "")
	if resources := getEnvOrDefault("BACKUP_RESOURCES", ""); resources != "" {
		CFG.Backup.Resources = strings.Split(resources, ",")
	}

	// S3 settings
	CFG.S3.Enabled = parseEnvBool("S3_ENABLED", false)
	CFG.S3.Bucket = getEnvOrDefault("S3_BUCKET", "")
	CFG.S3.Region = getEnvOrDefault("S3_REGION", "us-east-1")
	CFG.S3.Endpoint = getEnvOrDefault("S3_ENDPOINT", "")
	CFG.S3.AccessKey = getEnvOrDefault("S3_ACCESS_KEY", "")
	CFG.S3.SecretKey = getEnvOrDefault("S3_SECRET_KEY", "")
	CFG.S3.Prefix = getEnvOrDefault("S3_PREFIX", "platypus-backups")
	CFG.S3.PathStyle = parseEnvBool("S3_PATH_STYLE", false)
	CFG.S3.UseSSL = parseEnvBool("S3_USE_SSL", true)
	CFG.S3.CustomCAPath = getEnvOrDefault("S3_CUSTOM_CA_PATH", "")
	CFG.S3.SkipCertValidation = parseEnvBool("S3_SKIP_CERT_VALIDATION", false)

	// Local storage settings
	CFG.Local.Enabled = parseEnvBool("LOCAL_STORAGE_ENABLED", false)
	CFG.Local.Directory = getEnvOrDefault("LOCAL_STORAGE_DIRECTORY", "/data/remote")

	// Metrics and API settings
	CFG.Metrics.Port = getEnvOrDefault("METRICS_PORT", "8080")
	CFG.Server.Port = getEnvOrDefault("SERVER_PORT", "8081")
}

// loadFromFile overlays configuration from a YAML file onto CFG.
func loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &CFG); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// setDefaults ensures all config fields have reasonable default values
func setDefaults() {
	if CFG.Metrics.Port == "" {
		CFG.Metrics.Port = "8080"
	}
	if CFG.Server.Port == "" {
		CFG.Server.Port = "8081"
	}
	if CFG.Replication.CopyWorkers <= 0 {
		CFG.Replication.CopyWorkers = 20
	}
	if CFG.Replication.StatusInterval == "" {
		CFG.Replication.StatusInterval = "500ms"
	}
	if CFG.Backup.Workers <= 0 {
		CFG.Backup.Workers = 20
	}
	if CFG.Backup.ServiceName == "" {
		CFG.Backup.ServiceName = "platypus"
	}
}

// StatusIntervalDuration returns the parsed session status cadence.
func (r ReplicationConfig) StatusIntervalDuration() time.Duration {
	d, err := time.ParseDuration(r.StatusInterval)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseEnvBool parses a boolean environment variable
func parseEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Invalid boolean value for %s: %s, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// ValidateConfig checks that the configuration is usable.
func ValidateConfig() error {
	if !CFG.S3.Enabled && !CFG.Local.Enabled {
		return fmt.Errorf("no storage backend enabled: set S3_ENABLED or LOCAL_STORAGE_ENABLED")
	}
	if CFG.S3.Enabled && CFG.Local.Enabled {
		return fmt.Errorf("only one storage backend may be enabled at a time")
	}
	if CFG.S3.Enabled {
		if CFG.S3.Bucket == "" {
			return fmt.Errorf("S3 storage is enabled but no bucket is configured")
		}
		if CFG.S3.AccessKey == "" || CFG.S3.SecretKey == "" {
			return fmt.Errorf("S3 storage is enabled but credentials are not configured")
		}
	}
	if CFG.Backup.ArchiverDirectory == "" {
		return fmt.Errorf("backup archiver directory is not configured")
	}
	if CFG.Backup.Schedule != "" && len(CFG.Backup.Resources) == 0 {
		return fmt.Errorf("backup schedule is set but no resources are configured")
	}
	return nil
}

// DisplayConfiguration logs the active configuration with secrets masked.
func DisplayConfiguration() {
	log.Println("Active configuration:")
	log.Printf("  Debug: %v", CFG.Debug)
	log.Printf("  Index data directory: %s", CFG.Index.DataDirectory)
	log.Printf("  Replica indexes: %s", strings.Join(CFG.Replication.ReplicaIndexes, ", "))
	log.Printf("  Copy workers: %d", CFG.Replication.CopyWorkers)
	log.Printf("  Backup service: %s", CFG.Backup.ServiceName)
	log.Printf("  Backup workers: %d", CFG.Backup.Workers)
	if CFG.Backup.Schedule != "" {
		log.Printf("  Backup schedule: %s (resources: %s)", CFG.Backup.Schedule, strings.Join(CFG.Backup.Resources, ", "))
	}
	if CFG.S3.Enabled {
		log.Printf("  S3: bucket=%s region=%s endpoint=%s prefix=%s accessKey=%s",
			CFG.S3.Bucket, CFG.S3.Region, CFG.S3.Endpoint, CFG.S3.Prefix, maskSensitiveInfo(CFG.S3.AccessKey))
	}
	if CFG.Local.Enabled {
		log.Printf("  Local storage: %s", CFG.Local.Directory)
	}
	log.Printf("  Metrics port: %s, API port: %s", CFG.Metrics.Port, CFG.Server.Port)
}

// maskSensitiveInfo masks all but the first and last characters of a secret
func maskSensitiveInfo(info string) string {
	if len(info) <= 2 {
		return "**"
	}
	return info[:1] + strings.Repeat("*", len(info)-2) + info[len(info)-1:]
}
