package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	S3      S3Config
	Catalog CatalogConfig
	Cluster ClusterConfig
	Staging StagingConfig
	Jobs    JobsConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

// S3Config carries the credentials for the catalog bucket's
// S3-compatible endpoint.
type S3Config struct {
	AccessKey string
	SecretKey string
	Endpoint  string
	Region    string
	UseSSL    bool
}

type CatalogConfig struct {
	URL    string
	Bucket string
}

// ClusterConfig points at the redis instance backing the task queue
// and at the worker group ("cluster name") the server submits to.
type ClusterConfig struct {
	Address     string
	AuthType    string
	Password    string
	ClusterName string
	DB          int
}

type StagingConfig struct {
	// Timeout bounds how long result reconciliation waits for the
	// remaining tasks. Zero or negative disables the deadline.
	Timeout time.Duration
	// ExternalAuthConfig is the path of the station auth YAML file.
	ExternalAuthConfig string
}

type JobsConfig struct {
	RedisURL  string
	KeyPrefix string
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "release")
		viper.SetDefault("SERVER_READ_TIMEOUT", 15)
		viper.SetDefault("SERVER_WRITE_TIMEOUT", 15)
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("S3_REGION", "us-east-1")
		viper.SetDefault("S3_USE_SSL", true)
		viper.SetDefault("RSPY_CATALOG_URL", "http://localhost:8003")
		viper.SetDefault("RSPY_CATALOG_BUCKET", "rs-cluster-catalog")
		viper.SetDefault("RSPY_STAGING_TIMEOUT", 0)
		viper.SetDefault("RSPY_CLUSTER_AUTH_TYPE", "none")
		viper.SetDefault("RSPY_CLUSTER_NAME", "staging")
		viper.SetDefault("RSPY_CLUSTER_DB", 0)
		viper.SetDefault("RSPY_EXTERNAL_AUTH_CONFIG", "/etc/rspy/external-auth.yaml")
		viper.SetDefault("RSPY_JOBS_REDIS_URL", "")
		viper.SetDefault("RSPY_JOBS_KEY_PREFIX", "rspy:staging:jobs")

		viper.AutomaticEnv()

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			S3: S3Config{
				AccessKey: viper.GetString("S3_ACCESSKEY"),
				SecretKey: viper.GetString("S3_SECRETKEY"),
				Endpoint:  viper.GetString("S3_ENDPOINT"),
				Region:    viper.GetString("S3_REGION"),
				UseSSL:    viper.GetBool("S3_USE_SSL"),
			},
			Catalog: CatalogConfig{
				URL:    viper.GetString("RSPY_CATALOG_URL"),
				Bucket: viper.GetString("RSPY_CATALOG_BUCKET"),
			},
			Cluster: ClusterConfig{
				Address:     viper.GetString("RSPY_CLUSTER_ADDRESS"),
				AuthType:    viper.GetString("RSPY_CLUSTER_AUTH_TYPE"),
				Password:    viper.GetString("RSPY_CLUSTER_PASSWORD"),
				ClusterName: viper.GetString("RSPY_CLUSTER_NAME"),
				DB:          viper.GetInt("RSPY_CLUSTER_DB"),
			},
			Staging: StagingConfig{
				Timeout:            time.Duration(viper.GetInt("RSPY_STAGING_TIMEOUT")) * time.Second,
				ExternalAuthConfig: viper.GetString("RSPY_EXTERNAL_AUTH_CONFIG"),
			},
			Jobs: JobsConfig{
				RedisURL:  viper.GetString("RSPY_JOBS_REDIS_URL"),
				KeyPrefix: viper.GetString("RSPY_JOBS_KEY_PREFIX"),
			},
		}
	})

	return instance
}
