package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command line flags to the config keys they override.
var flagKeys = map[string]string{
	"log-level": "logLevel",
	"listen":    "server.listen",
	"storage":   "storage.type",
	"catalog":   "world.catalog",
}

// RegisterFlags adds the config overriding flags to fs and binds them.
// A flag only wins over file and environment values when it is set.
func RegisterFlags(fs *pflag.FlagSet) error {
	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.String("listen", "", "client listen address, e.g. :8085")
	fs.String("storage", "", "journal backend: memory, sqlite, postgres or websocket")
	fs.String("catalog", "", "path to the map catalog yaml")

	for name, key := range flagKeys {
		if err := viper.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}
