package cmd

import (
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/sanity-io/litter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stressbench/stressbench/internal/common"
	commonconfig "github.com/stressbench/stressbench/internal/common/config"
	"github.com/stressbench/stressbench/internal/hdr"
	"github.com/stressbench/stressbench/internal/stressbench"
)

const defaultConfigName = ".stressbench"

func addParamFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Config file (default is $HOME/.stressbench.yaml).")
	flags.String("logLevel", "info", "Log level: debug, info, warn or error.")
	flags.String("logFormat", common.LogFormatCommandLine, "Log format: cli (bare messages) or text (timestamped, for unattended runs).")
	flags.String("java", hdr.DefaultJava, "Java runtime running the histogram tools.")
	flags.Float64("timeStart", -1, "Drop intervals starting before this many seconds into each log. Negative keeps everything.")
	flags.Float64("timeEnd", -1, "Drop intervals starting after this many seconds into each log. Negative keeps everything.")
	flags.Int("concurrency", 0, "Maximum number of tool invocations in flight (default twice the number of CPUs).")
	flags.String("decompose", string(hdr.DecomposeBackground), "Per-tag decomposition: background, await or disabled.")
	flags.StringP("output", "o", "table", "Report format: table, yaml or json.")
	flags.String("metricsFile", "", "Write tool metrics to this file in the node exporter textfile format on exit.")
	flags.String("binDir", "bin", "Directory holding the deployment's ssh and ansible-inventory wrappers.")
}

// initParams merges flags, environment and the config file into app.Params.
// Flags take precedence over the environment, which takes precedence over the file.
func initParams(cmd *cobra.Command, app *stressbench.App) error {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return errors.WithStack(err)
	}
	v.SetEnvPrefix(common.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v); err != nil {
		return err
	}
	if err := common.SetLogFormat(v.GetString("logFormat")); err != nil {
		return err
	}
	if err := common.SetLogLevel(v.GetString("logLevel")); err != nil {
		return err
	}
	if err := v.Unmarshal(app.Params, commonconfig.CustomHooks...); err != nil {
		return errors.WithMessage(err, "invalid parameters")
	}
	log.Debugf("parameters: %s", litter.Sdump(*app.Params))
	return nil
}

func readConfigFile(v *viper.Viper) error {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		return errors.WithMessagef(v.ReadInConfig(), "failed to read %s", path)
	}
	home, err := homedir.Dir()
	if err != nil {
		return errors.WithStack(err)
	}
	v.AddConfigPath(home)
	v.SetConfigName(defaultConfigName)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.WithMessage(err, "failed to read config")
	}
	log.Debugf("using config file %s", v.ConfigFileUsed())
	return nil
}
