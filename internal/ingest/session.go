package ingest

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const datetimeLayout = "2006-01-02 15:04:05"

// sessionName matches "<prefix>_YYYY-MM-DD-HH-MM-SS_<split>.bag".
var sessionName = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2})_(\d+)(?:\.bag)?$`)

// ParseSessionName returns the recording start time and split index encoded
// in a session file name such as "mapping_van_2019-09-17-15-07-19_0.bag".
// The time is wall-clock time of the recorder and carries no zone.
func ParseSessionName(name string) (time.Time, int, error) {
	base := strings.TrimSuffix(filepath.Base(name), string(filepath.Separator))
	m := sessionName.FindStringSubmatch(base)
	if m == nil {
		return time.Time{}, 0, fmt.Errorf("session name %q: want <name>_YYYY-MM-DD-HH-MM-SS_<n>.bag", base)
	}
	start, err := time.Parse("2006-01-02-15-04-05", m[1])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("session name %q: %w", base, err)
	}
	split, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("session name %q: split index: %w", base, err)
	}
	return start, split, nil
}
