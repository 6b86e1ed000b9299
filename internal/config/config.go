// Package config handles the global command line tool config - the global
// flags, environment variable bindings and the shared logger.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/awm/vaire-cfg/pkg/logger"
)

// Viper keys for all global flags. Subcommands read settings through these
// instead of re-declaring flags.
const (
	ManifestKey     = "manifest"
	SecretsKey      = "secrets"
	StateKey        = "state"
	UnitDirKey      = "unit-dir"
	NumWorkersKey   = "num-workers"
	DebugKey        = "debug"
	RawKey          = "raw"
	ColumnsKey      = "columns"
	PageSizeKey     = "page-size"
	PrintJsonKey    = "json"
	PrintJsonPretty = "json-pretty"

	LogTypeKey      = "log-type"
	LogFileKey      = "log-file"
	LogLevelKey     = "log-level"
	LogMaxSizeKey   = "log-max-size"
	LogNumFilesKey  = "log-num-rotated-files"
	LogDeveloperKey = "log-developer"
)

// Defines all the global flags and binds them to viper.
func InitGlobalFlags(cmd *cobra.Command) {
	home, _ := os.UserHomeDir()

	cmd.PersistentFlags().String(ManifestKey, "services.yml", "Path to the service manifest.")
	cmd.PersistentFlags().String(SecretsKey, "secrets.yml", "Path to the secret store. Must be readable only by the owner.")
	cmd.PersistentFlags().String(StateKey, ".state.yml", "Path to the deployment state file.")
	cmd.PersistentFlags().String(UnitDirKey, filepath.Join(home, ".config", "containers", "systemd"),
		"Directory quadlet unit files are installed into.")
	cmd.PersistentFlags().Int(NumWorkersKey, runtime.GOMAXPROCS(0),
		"The maximum number of workers to use when a command can complete work in parallel (default: number of CPUs).")

	cmd.PersistentFlags().Bool(DebugKey, false, "Print additional details that are normally hidden.")
	cmd.PersistentFlags().Bool(RawKey, false, "Print raw byte counts without SI or IEC prefixes.")
	cmd.PersistentFlags().StringSlice(ColumnsKey, []string{},
		"When printing structured data, the columns/fields to include (use 'all' to include everything).")
	cmd.PersistentFlags().Uint(PageSizeKey, 100,
		`The number of rows to print before output is flushed to stdout.
	When printing using a table, the header is repeated after this many rows (no headers when set to 0).`)
	cmd.PersistentFlags().Bool(PrintJsonKey, false, "Print output normally rendered as a table as JSON instead.")
	cmd.PersistentFlags().Bool(PrintJsonPretty, false, "Print output normally rendered as a table as pretty JSON instead.")

	cmd.PersistentFlags().String(LogTypeKey, "stderr", "Where log messages should be sent ('stderr', 'stdout', 'logfile').")
	cmd.PersistentFlags().String(LogFileKey, "/var/log/vaire.log", "Path to the log file when --log-type is 'logfile'.")
	cmd.PersistentFlags().Int8(LogLevelKey, 0,
		"By default only fatal errors are logged. Optionally enable additional logging (0=Fatal, 1=Error, 2=Warn, 3=Info, 4+5=Debug).")
	cmd.PersistentFlags().Int(LogMaxSizeKey, 100, "Maximum size of the log file in megabytes before rotation.")
	cmd.PersistentFlags().Int(LogNumFilesKey, 5, "Number of rotated log files to keep.")
	cmd.PersistentFlags().Bool(LogDeveloperKey, false, "Enable logging at DebugLevel and above and print stack traces at WarnLevel and above.")
	cmd.PersistentFlags().MarkHidden(LogDeveloperKey)

	// Environment variables should start with VAIRE_
	viper.SetEnvPrefix("vaire")
	// Environment variables cannot use "-", replace with "_"
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Bind all persistent pflags to viper
	cmd.PersistentFlags().VisitAll(func(flag *pflag.Flag) {
		viper.BindEnv(flag.Name)
		viper.BindPFlag(flag.Name, flag)
	})
}

var (
	logOnce   sync.Once
	sharedLog *logger.Logger
	logErr    error
)

// GetLogger returns the process-wide logger built from the global log flags.
// The first caller wins; later flag changes have no effect.
func GetLogger() (*logger.Logger, error) {
	logOnce.Do(func() {
		sharedLog, logErr = logger.New(logger.Config{
			Type:            viper.GetString(LogTypeKey),
			File:            viper.GetString(LogFileKey),
			Level:           int8(viper.GetInt(LogLevelKey)),
			MaxSize:         viper.GetInt(LogMaxSizeKey),
			NumRotatedFiles: viper.GetInt(LogNumFilesKey),
			Developer:       viper.GetBool(LogDeveloperKey),
		})
		if logErr != nil {
			logErr = fmt.Errorf("unable to initialize logging: %w", logErr)
		}
	})
	return sharedLog, logErr
}

// Cleanup flushes the shared logger, if one was built.
func Cleanup() {
	if sharedLog != nil {
		sharedLog.Sync()
	}
}
