// Package pathutil locates and writes arq-sim configuration and result files.
package pathutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skycoin/skycoin/src/util/logging"
)

var log = logging.MustGetLogger("pathutil")

// ConfigEnv is the environment variable holding an explicit config path.
const ConfigEnv = "ARQ_CONFIG"

// ConfigLocationType describes a config path's location type.
type ConfigLocationType string

const (
	// WorkingDirLoc is the working directory location of a config file.
	WorkingDirLoc = ConfigLocationType("WD")

	// HomeLoc is the home folder location of a config file.
	HomeLoc = ConfigLocationType("HOME")

	// LocalLoc is the /usr/local location of a config file.
	LocalLoc = ConfigLocationType("LOCAL")
)

// String implements fmt.Stringer for ConfigLocationType.
func (t ConfigLocationType) String() string {
	return string(t)
}

// Set implements pflag.Value for ConfigLocationType.
func (t *ConfigLocationType) Set(s string) error {
	for _, valid := range AllConfigLocationTypes() {
		if ConfigLocationType(s) == valid {
			*t = valid
			return nil
		}
	}
	return fmt.Errorf("invalid config location %q, valid: %v", s, AllConfigLocationTypes())
}

// Type implements pflag.Value for ConfigLocationType.
func (t ConfigLocationType) Type() string {
	return "pathutil.ConfigLocationType"
}

// AllConfigLocationTypes returns all valid config location types.
func AllConfigLocationTypes() []ConfigLocationType {
	return []ConfigLocationType{
		WorkingDirLoc,
		HomeLoc,
		LocalLoc,
	}
}

// ConfigPaths maps location types to config paths.
type ConfigPaths map[ConfigLocationType]string

// String implements fmt.Stringer for ConfigPaths.
func (dp ConfigPaths) String() string {
	raw, err := json.MarshalIndent(dp, "", "\t")
	if err != nil {
		return fmt.Sprintf("%v", map[ConfigLocationType]string(dp))
	}
	return string(raw)
}

// Get obtains the path stored under the given location type.
func (dp ConfigPaths) Get(cpType ConfigLocationType) (string, error) {
	if path, ok := dp[cpType]; ok {
		return path, nil
	}
	return "", fmt.Errorf("invalid config type '%s' provided. Valid types: %v", cpType, AllConfigLocationTypes())
}

// SimDefaults returns the default config paths for arq-sim.
func SimDefaults() ConfigPaths {
	paths := make(ConfigPaths)
	if wd, err := os.Getwd(); err == nil {
		paths[WorkingDirLoc] = filepath.Join(wd, "arq-sim.json")
	}
	if home, err := HomeDir(); err == nil {
		paths[HomeLoc] = filepath.Join(home, ".arq-sim", "config.json")
	}
	paths[LocalLoc] = "/usr/local/arq-sim/config.json"
	return paths
}

// FindConfigPath looks for a config file path in the following order:
// - From CLI argument.
// - From ENV.
// - From a list of default paths.
// If argsIndex < 0, searching from CLI arguments does not take place.
// An empty path and no error means no config exists and defaults apply.
func FindConfigPath(args []string, argsIndex int, env string, defaults ConfigPaths) (string, error) {
	if argsIndex >= 0 && len(args) > argsIndex {
		path := args[argsIndex]
		log.Infof("using args[%d] as config path: %s", argsIndex, path)
		return Expand(path)
	}
	if env != "" {
		if path, ok := os.LookupEnv(env); ok && path != "" {
			log.Infof("using $%s as config path: %s", env, path)
			return Expand(path)
		}
	}
	log.Debugf("config path is not explicitly specified, trying default paths...")
	for i, cpType := range AllConfigLocationTypes() {
		path, ok := defaults[cpType]
		if !ok {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			log.Debugf("- [%d/%d] '%s' cannot be accessed: %s", i+1, len(defaults), path, err.Error())
			continue
		}
		log.Debugf("- [%d/%d] '%s' is found", i+1, len(defaults), path)
		log.Infof("using fallback config path: %s", path)
		return path, nil
	}
	log.Debugf("config not found in any of the following paths: %s", defaults.String())
	return "", nil
}

// WriteJSONConfig is used by config file generators.
// 'output' specifies the path to save generated config files.
// 'replace' is true if replacing files is allowed.
func WriteJSONConfig(conf interface{}, output string, replace bool) error {
	raw, err := json.MarshalIndent(conf, "", "\t")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %s", err)
	}
	if _, err := os.Stat(output); !replace && err == nil {
		return fmt.Errorf("file %s already exists, stopping as 'replace,r' flag is not set", output)
	}
	if _, err := EnsureDir(filepath.Dir(output)); err != nil {
		return err
	}
	if err := AtomicWriteFile(output, raw); err != nil {
		return err
	}
	log.Infof("Wrote %d bytes to %s", len(raw), output)
	return nil
}
