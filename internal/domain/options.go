package domain

import (
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort             = 10053
	DefaultUpdatePeriod     = 60 * time.Second
	DefaultWorkerName       = "mastermind2.26"
	DefaultEnqueueTimeout   = 4000 * time.Millisecond
	DefaultReconnectTimeout = 4000 * time.Millisecond
)

// Options are the named construction parameters of spec.md §6.
type Options struct {
	// Remotes is a comma- and colon-separated "host[:port]" list, default
	// port DefaultPort. Must be non-empty (ErrRemotesEmpty otherwise).
	Remotes string

	UpdatePeriod     time.Duration
	CachePath        string // empty disables persistence
	WarningTime      time.Duration
	ExpireTime       time.Duration
	WorkerName       string
	EnqueueTimeout   time.Duration
	ReconnectTimeout time.Duration

	NamespaceFilter     NamespaceFilter
	UserSettingsFactory UserSettingsFactory
	AutoStart           bool

	Clock  Clock
	Random RandomSource
}

// WithDefaults returns a copy of o with zero-valued fields replaced by the
// spec's documented defaults.
func (o Options) WithDefaults() Options {
	if o.UpdatePeriod <= 0 {
		o.UpdatePeriod = DefaultUpdatePeriod
	}
	if o.WorkerName == "" {
		o.WorkerName = DefaultWorkerName
	}
	if o.EnqueueTimeout <= 0 {
		o.EnqueueTimeout = DefaultEnqueueTimeout
	}
	if o.ReconnectTimeout <= 0 {
		o.ReconnectTimeout = DefaultReconnectTimeout
	}
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	return o
}

// ParseRemotes parses the comma/colon-separated remotes string into an
// ordered list of endpoints, applying DefaultPort where no port is given.
func ParseRemotes(s string) ([]Remote, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrRemotesEmpty
	}
	var remotes []Remote
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		host := part
		port := DefaultPort
		if idx := strings.LastIndex(part, ":"); idx >= 0 {
			host = part[:idx]
			if p, err := strconv.Atoi(part[idx+1:]); err == nil {
				port = p
			}
		}
		remotes = append(remotes, Remote{Host: host, Port: port})
	}
	if len(remotes) == 0 {
		return nil, ErrRemotesEmpty
	}
	return remotes, nil
}
