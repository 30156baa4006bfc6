package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/marmos91/fixgate/internal/logger"
)

// Watch re-reads the config file on change and reapplies the logging
// settings. Only logging is hot-reloadable; everything else requires a
// restart, because sessions and stores are built once at startup.
func Watch(configPath string) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return
		}
		configPath = GetDefaultConfigPath()
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		logger.Warn("config watch disabled", logger.KeyError, err)
		return
	}

	v.OnConfigChange(func(ev fsnotify.Event) {
		if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
			return
		}
		if err := v.ReadInConfig(); err != nil {
			logger.Warn("config reload failed", logger.KeyError, err)
			return
		}
		if level := v.GetString("logging.level"); level != "" {
			logger.SetLevel(level)
			logger.Info("log level reloaded", "level", level)
		}
		if format := v.GetString("logging.format"); format != "" {
			logger.SetFormat(format)
		}
	})
	v.WatchConfig()
}
