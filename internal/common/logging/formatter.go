package logging

import (
	"bytes"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
)

// CommandLineFormatter writes the bare message, preceded by the level for warnings and errors
// and followed by any fields in key=value form.
type CommandLineFormatter struct{}

func (f *CommandLineFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b bytes.Buffer
	if entry.Level <= log.WarnLevel {
		fmt.Fprintf(&b, "%s: ", entry.Level)
	}
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != Stacktrace {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}
