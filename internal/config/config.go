package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CHATAUTO_LOG_LEVEL.
const EnvPrefix = "CHATAUTO"

// Config 应用配置
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Host         HostConfig         `mapstructure:"host"`
	Log          LogConfig          `mapstructure:"log"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"`
	AutoContinue AutoContinueConfig `mapstructure:"autocontinue"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name      string `mapstructure:"name"`
	DataDir   string `mapstructure:"data_dir"`
	Workspace string `mapstructure:"workspace"`
}

// HostConfig IDE 桥接配置
type HostConfig struct {
	Socket         string        `mapstructure:"socket"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ScheduleConfig 调度配置
type ScheduleConfig struct {
	RunMissedOnStart bool `mapstructure:"run_missed_on_start"`
}

// AutoContinueConfig 自动继续脚本配置
type AutoContinueConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LoadConfig reads defaults, then the config file, then CHATAUTO_* environment
// variables. An empty path looks for chatauto.yaml in the data dir and the
// working directory; a missing file there is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("chatauto")
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString("app.data_dir"))
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "chatauto")
	v.SetDefault("app.data_dir", defaultDataDir())
	v.SetDefault("app.workspace", "")
	v.SetDefault("host.socket", filepath.Join(os.TempDir(), "chatauto", "host.sock"))
	v.SetDefault("host.command_timeout", 5*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("schedule.run_missed_on_start", false)
	v.SetDefault("autocontinue.poll_interval", 3*time.Second)
}

// DBPath 返回数据库路径
func (c *Config) DBPath() string {
	return filepath.Join(c.App.DataDir, "chatauto.db")
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "chatauto")
	}
	return ".chatauto"
}
