package commands

import (
	"fmt"
	"io/ioutil"
	"log/syslog"
	"strings"

	"github.com/google/uuid"
	logrus_syslog "github.com/sirupsen/logrus/hooks/syslog"
	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/spf13/cobra"

	"github.com/denisstrizhkin/network-labs/pkg/experiment"
	"github.com/denisstrizhkin/network-labs/pkg/util/pathutil"
)

var log = logging.MustGetLogger("arq-sim")

var (
	logLevel   string
	syslogAddr string
	tag        string
	configPath string

	masterLogger *logging.MasterLogger
	logger       *logging.Logger
	conf         *experiment.Config
)

var rootCmd = &cobra.Command{
	Use:   "arq-sim",
	Short: "Go-Back-N and Selective-Repeat simulator over a lossy link",
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		startLogger()
		if cmd.Name() != genConfigCmd.Name() {
			readConfig(cmd)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level, overrides the config. One of: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&syslogAddr, "syslog", "none", "syslog server address. E.g. localhost:514")
	rootCmd.PersistentFlags().StringVar(&tag, "tag", "arq-sim", "logging tag")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config path, defaults to $"+pathutil.ConfigEnv+" or a default location")
}

// Execute executes root CLI command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func startLogger() {
	masterLogger = logging.NewMasterLogger()
	logger = masterLogger.PackageLogger(tag)

	if syslogAddr != "none" {
		hook, err := logrus_syslog.NewSyslogHook("udp", syslogAddr, syslog.LOG_INFO, tag)
		if err != nil {
			logger.Error("Unable to connect to syslog daemon:", err)
		} else {
			masterLogger.AddHook(hook)
			masterLogger.Out = ioutil.Discard
		}
	}
	if logLevel != "" {
		setLevel(logLevel)
	}
}

func setLevel(level string) {
	lvl, err := logging.LevelFromString(level)
	catch(err, "invalid log level:")
	masterLogger.SetLevel(lvl)
	logging.SetLevel(lvl)
}

func readConfig(cmd *cobra.Command) {
	var args []string
	if cmd.Flags().Changed("config") || configPath != "" {
		args = []string{configPath}
	}
	path, err := pathutil.FindConfigPath(args, 0, pathutil.ConfigEnv, pathutil.SimDefaults())
	catch(err, "failed to find config:")

	conf, err = experiment.ReadConfig(path)
	catch(err, "failed to read config:")
	conf.ApplyEnv()
	catch(conf.Validate(), "invalid config:")

	if logLevel == "" && conf.LogLevel != "" {
		setLevel(conf.LogLevel)
	}
	if path == "" {
		logger.Debug("No config file found, using defaults")
	}
}

// catch handles errors of arq-sim commands.
func catch(err error, msgs ...string) {
	if err != nil {
		if len(msgs) > 0 {
			log.Fatalln(strings.Join(append(msgs, err.Error()), " "))
		} else {
			log.Fatalln(err)
		}
	}
}

// parseUUID parses a uuid argument.
func parseUUID(name, v string) uuid.UUID {
	id, err := uuid.Parse(v)
	catch(err, fmt.Sprintf("failed to parse <%s>:", name))
	return id
}
