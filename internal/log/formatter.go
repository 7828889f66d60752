package log

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	defaultPattern = "%time [%level] %msg%n"
	defaultTime    = "2006-01-02 15:04:05"
)

type formatter struct {
	pattern string
	time    string
}

// Format expands %time, %level, %field, %msg and %n in the pattern.
// Fields are rendered as sorted key=value pairs.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	pattern, timeLayout := f.pattern, f.time
	if pattern == "" {
		pattern = defaultPattern
	}
	if timeLayout == "" {
		timeLayout = defaultTime
	}

	output := strings.ReplaceAll(pattern, "%n", "\n")
	output = strings.Replace(output, "%time", entry.Time.Format(timeLayout), 1)
	output = strings.Replace(output, "%level", entry.Level.String(), 1)
	output = strings.Replace(output, "%field", buildFields(entry), 1)
	output = strings.Replace(output, "%msg", entry.Message, 1)
	return []byte(output), nil
}

func buildFields(entry *logrus.Entry) string {
	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys))
	for _, key := range keys {
		val := entry.Data[key]
		stringVal, ok := val.(string)
		if !ok {
			stringVal = fmt.Sprint(val)
		}
		fields = append(fields, key+"="+stringVal)
	}
	return strings.Join(fields, ",")
}
