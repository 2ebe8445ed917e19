package config

import (
	"log"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	IsDebug    bool   `yaml:"is_debug" env:"IS_DEBUG" env-default:"false"`
	WsURL      string `yaml:"ws_url" env:"WS_URL" env-default:"ws://csms.vcpsim.local/v1"`
	RosterFile string `yaml:"roster_file" env:"ROSTER_FILE" env-default:"chargers.json"`
	CacheDir   string `yaml:"cache_dir" env:"CACHE_DIR" env-default:"cache"`
	Listen     struct {
		BindIP string `yaml:"bind_ip" env-default:"0.0.0.0"`
		Port   string `yaml:"port" env:"API_PORT" env-default:"8090"`
	} `yaml:"listen"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		BindIP  string `yaml:"bind_ip" env-default:"0.0.0.0"`
		Port    string `yaml:"port" env-default:"9100"`
	} `yaml:"metrics"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env-default:"false"`
		URI      string `yaml:"uri" env-default:"mongodb://localhost:27017"`
		Database string `yaml:"database" env-default:"vcpsim"`
		User     string `yaml:"user" env-default:""`
		Password string `yaml:"password" env-default:""`
	} `yaml:"mongo"`
}

var instance *Config
var once sync.Once

func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		if readErr := cleanenv.ReadConfig(path, instance); readErr != nil {
			// missing config file is fine, env and defaults still apply
			if envErr := cleanenv.ReadEnv(instance); envErr != nil {
				err = envErr
				instance = nil
				return
			}
			log.Printf("config file not read (%s), using environment and defaults", readErr)
		}
	})
	return instance, err
}
