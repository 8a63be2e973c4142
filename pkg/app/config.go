package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roidota/roidota/pkg/log"
)

const configFlagName = "config"

var cfgFile string

// addConfigFlag registers --config and prepares viper to read the named file
// and environment variables prefixed with the upper-cased basename.
func addConfigFlag(basename string, fs *pflag.FlagSet) {
	fs.StringVarP(&cfgFile, configFlagName, "c", cfgFile, "Read configuration from specified `FILE`, "+
		"support JSON, TOML, YAML, HCL, or Java properties formats.")

	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix(basename))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// envPrefix turns "roidota-hub" into "ROIDOTA".
func envPrefix(basename string) string {
	name, _, _ := strings.Cut(basename, "-")
	return strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

// loadConfig reads the config file, when one is given or found in the
// default locations. A missing default file is not an error.
func loadConfig(basename string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, "."+envPrefixLower(basename)))
		}
		viper.AddConfigPath(filepath.Join("/etc", envPrefixLower(basename)))
		viper.SetConfigName(basename)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read configuration file(%s): %w", cfgFile, err)
	}

	log.Info("Using config file", "file", viper.ConfigFileUsed())
	return nil
}

// logLevelKey is the one setting applied without a restart.
const logLevelKey = "log.level"

// watchConfig follows the config file. A changed log level is applied at
// once; every other option is bound at startup and needs a restart.
func watchConfig() {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		onConfigChange(e, viper.GetString(logLevelKey))
	})
	viper.WatchConfig()
}

func onConfigChange(e fsnotify.Event, level string) {
	if level != "" && level != log.Level() {
		if err := log.SetLevel(level); err != nil {
			log.Error(err, "Ignoring log level from config file", "file", e.Name)
		} else {
			log.Info("Log level changed", "level", level)
		}
	}
	log.Warn("Config file changed, restart to apply other options", "file", e.Name, "op", e.Op.String())
}

func envPrefixLower(basename string) string {
	return strings.ToLower(envPrefix(basename))
}
