package notification

import (
	"context"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Destinations is the set of places a notification is delivered to
type Destinations struct {
	Telegram []int64  `yaml:"telegram_chat_ids"`
	FCM      []string `yaml:"fcm_tokens"`
}

// Empty reports whether there is nowhere to deliver
func (d Destinations) Empty() bool {
	return len(d.Telegram) == 0 && len(d.FCM) == 0
}

// DestinationProvider returns the current destinations. It is queried on
// every notification so edits take effect without a restart.
type DestinationProvider interface {
	Destinations(ctx context.Context) (Destinations, error)
}

// StaticDestinations always returns the same set
type StaticDestinations Destinations

func (s StaticDestinations) Destinations(context.Context) (Destinations, error) {
	return Destinations(s), nil
}

// FileDestinations reads a YAML file on each call. A missing file yields the
// fallback set.
type FileDestinations struct {
	Path     string
	Fallback Destinations
}

func (f FileDestinations) Destinations(context.Context) (Destinations, error) {
	if f.Path == "" {
		return f.Fallback, nil
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f.Fallback, nil
		}
		return Destinations{}, errors.Wrapf(err, "read destinations %s", f.Path)
	}
	var d Destinations
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Destinations{}, errors.Wrapf(err, "parse destinations %s", f.Path)
	}
	return d, nil
}

// ParseChatIDs parses a comma separated list of Telegram chat ids
func ParseChatIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid telegram chat id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
