package common

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/stressbench/stressbench/internal/common/bencherrors"
	commonconfig "github.com/stressbench/stressbench/internal/common/config"
	"github.com/stressbench/stressbench/internal/common/logging"
)

// EnvPrefix prefixes the environment variables overriding configuration, e.g. STRESSBENCH_HDR_JAVA.
const EnvPrefix = "STRESSBENCH"

// LoadConfig decodes the files at paths, later files overriding earlier ones, into config.
// Environment variables prefixed with EnvPrefix override file values. A missing path is an error.
func LoadConfig(config interface{}, paths []string) (*viper.Viper, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigType("yaml")
	for _, path := range paths {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.WithMessagef(err, "failed to read config %s", path)
		}
		log.Debugf("read config from %s", path)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("::", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.Unmarshal(config, commonconfig.CustomHooks...); err != nil {
		return nil, errors.WithMessage(err, "failed to decode config")
	}
	return v, nil
}

// Log formats selectable with SetLogFormat.
const (
	LogFormatCommandLine = "cli"
	LogFormatText        = "text"
)

// ConfigureLogging sets up logrus for unattended use, e.g. a long benchmark with its stderr
// redirected to a file: full timestamps and fields on every line.
func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)
}

// ConfigureCommandLineLogging sets up logrus for interactive use: bare messages on stderr,
// leaving stdout to reports.
func ConfigureCommandLineLogging() {
	log.SetFormatter(&logging.CommandLineFormatter{})
	log.SetOutput(os.Stderr)
}

// SetLogFormat applies one of the LogFormat* formats.
func SetLogFormat(format string) error {
	switch format {
	case LogFormatCommandLine:
		ConfigureCommandLineLogging()
	case LogFormatText:
		ConfigureLogging()
	default:
		return errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "logFormat",
			Value:   format,
			Message: "must be " + LogFormatCommandLine + " or " + LogFormatText,
		})
	}
	return nil
}

// SetLogLevel parses and applies a logrus level name such as "debug".
func SetLogLevel(level string) error {
	l, err := log.ParseLevel(level)
	if err != nil {
		return errors.WithStack(err)
	}
	log.SetLevel(l)
	return nil
}
