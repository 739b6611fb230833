package config

import (
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/stressbench/stressbench/internal/common/process"
)

var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		CommandDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)),
}

// CommandDecodeHook allows a process.Command to be written as a single string, e.g.
// "java -cp lib/processor.jar CommandDispatcherMain". The string is split on whitespace;
// use the structured form when an argument contains spaces.
func CommandDecodeHook() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(process.Command{}) {
			return data, nil
		}
		fields := strings.Fields(data.(string))
		if len(fields) == 0 {
			return nil, errors.New("empty command")
		}
		return process.Command{Path: fields[0], Args: fields[1:]}, nil
	}
}
