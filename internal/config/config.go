package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/harrylevesque/dwetransfer/internal/storage"
	"github.com/harrylevesque/dwetransfer/internal/utils"
)

// Config holds application configuration.
type Config struct {
	Data      DataConfig      `mapstructure:"data"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	App       AppConfig       `mapstructure:"app"`
	Log       LogConfig       `mapstructure:"log"`
	Relay     RelayConfig     `mapstructure:"relay"`
	HTTP      HTTPConfig      `mapstructure:"http"`
}

type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// StorageConfig points at the storage node, key service and gateway.
type StorageConfig struct {
	NodeURL       string `mapstructure:"node_url"`
	EncryptionURL string `mapstructure:"encryption_url"`
	GatewayURL    string `mapstructure:"gateway_url"`
	ViewHost      string `mapstructure:"view_host"`
	APIKey        string `mapstructure:"api_key"`
}

type MessagingConfig struct {
	RelayURL string `mapstructure:"relay_url"`
}

type AppConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// RelayConfig is read by the relay binary only.
type RelayConfig struct {
	Addr    string `mapstructure:"addr"`
	DBPath  string `mapstructure:"db_path"`
	TLSCert string `mapstructure:"tls_cert"`
	TLSKey  string `mapstructure:"tls_key"`
}

type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// flagKeys maps command line flags onto config keys. Flags missing from the
// FlagSet handed to Load are skipped.
var flagKeys = map[string]string{
	"data-dir":        "data.dir",
	"api-key":         "storage.api_key",
	"relay-url":       "messaging.relay_url",
	"log-level":       "log.level",
	"log-file":        "log.file",
	"addr":            "relay.addr",
	"db":              "relay.db_path",
	"tls-cert":        "relay.tls_cert",
	"tls-key":         "relay.tls_key",
	"timeout":         "http.timeout",
	"storage-node":    "storage.node_url",
	"storage-gateway": "storage.gateway_url",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.dir", utils.DefaultDataDir())
	v.SetDefault("storage.node_url", "https://node.lighthouse.storage")
	v.SetDefault("storage.encryption_url", "https://encryption.lighthouse.storage")
	v.SetDefault("storage.gateway_url", "https://gateway.lighthouse.storage")
	v.SetDefault("storage.view_host", "files.lighthouse.storage")
	v.SetDefault("storage.api_key", "")
	v.SetDefault("messaging.relay_url", "http://localhost:8081")
	v.SetDefault("app.url", "https://dwetransfer.vercel.app/")
	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("relay.addr", ":8081")
	v.SetDefault("relay.db_path", "")
	v.SetDefault("relay.tls_cert", "")
	v.SetDefault("relay.tls_key", "")
	v.SetDefault("http.timeout", 60*time.Second)
}

// Load reads .env, the config file, DWETRANSFER_* env vars and the flags in
// fs, later sources overriding earlier ones. fs may be nil.
func Load(fs *pflag.FlagSet) (Config, error) {
	// a missing .env is normal
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	cfgPath := os.Getenv("DWETRANSFER_CONFIG")
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			cfgPath = f.Value.String()
		}
	}
	if cfgPath != "" {
		v.SetConfigFile(utils.ExpandHome(cfgPath))
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "dwetransfer"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("DWETRANSFER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.fill()
	return c, nil
}

func (c *Config) fill() {
	c.Data.Dir = utils.ExpandHome(c.Data.Dir)
	if c.Log.File == "" {
		c.Log.File = filepath.Join(c.Data.Dir, "dwetransfer.log")
	}
	if c.Relay.DBPath == "" {
		c.Relay.DBPath = filepath.Join(c.Data.Dir, "relay.db")
	}
	c.Log.File = utils.ExpandHome(c.Log.File)
	c.Relay.DBPath = utils.ExpandHome(c.Relay.DBPath)
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = 60 * time.Second
	}
}

// StorageClientConfig converts the storage section for storage.NewClient.
func (c Config) StorageClientConfig() storage.Config {
	return storage.Config{
		NodeURL:       strings.TrimRight(c.Storage.NodeURL, "/"),
		EncryptionURL: strings.TrimRight(c.Storage.EncryptionURL, "/"),
		GatewayURL:    strings.TrimRight(c.Storage.GatewayURL, "/"),
		ViewHost:      c.Storage.ViewHost,
		APIKey:        c.Storage.APIKey,
	}
}
