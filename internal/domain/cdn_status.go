package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCDNFlushFailed   = errors.New("cdn flush failed")
	ErrUnknownCDNStatus = errors.New("unknown cdn status")
)

// CDNStatus tracks the cache invalidation state of a media's derived paths.
type CDNStatus int

const (
	CDNStatusNotFlushed CDNStatus = iota
	CDNStatusToFlush
	CDNStatusWaiting
	CDNStatusFlushed
	CDNStatusError
)

//nolint:gochecknoglobals
var cdnStatusNames = map[CDNStatus]string{
	CDNStatusNotFlushed: "not_flushed",
	CDNStatusToFlush:    "to_flush",
	CDNStatusWaiting:    "waiting",
	CDNStatusFlushed:    "flushed",
	CDNStatusError:      "error",
}

func (s CDNStatus) String() string {
	if name, ok := cdnStatusNames[s]; ok {
		return name
	}

	return fmt.Sprintf("CDNStatus(%d)", int(s))
}

// Terminal reports whether no further status change is expected from the CDN.
func (s CDNStatus) Terminal() bool {
	return s == CDNStatusFlushed || s == CDNStatusError
}

// MarshalText implements encoding.TextMarshaler.
func (s CDNStatus) MarshalText() ([]byte, error) {
	name, ok := cdnStatusNames[s]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCDNStatus, int(s))
	}

	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *CDNStatus) UnmarshalText(text []byte) error {
	status, err := ParseCDNStatus(string(text))
	if err != nil {
		return err
	}

	*s = status

	return nil
}

// ParseCDNStatus parses the textual form produced by String.
func ParseCDNStatus(name string) (CDNStatus, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	for status, candidate := range cdnStatusNames {
		if candidate == name {
			return status, nil
		}
	}

	return CDNStatusNotFlushed, fmt.Errorf("%w: %q", ErrUnknownCDNStatus, name)
}
