package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath string

	// HTTP API
	Port         string
	BaseUrl      string
	APIAccessKey string

	// Fetching
	UserAgent    string
	FetchTimeout int
	FetchRetries int

	// Scheduling
	SchedulerInterval int
	ScrapeDelay       int
	ScrapeWorkers     int
	LeaseDuration     int

	// Extraction
	DiffMode     string
	SelectorsDir string

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}

func (c *Cfg) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

func (c *Cfg) SchedulerIntervalDuration() time.Duration {
	return time.Duration(c.SchedulerInterval) * time.Second
}

func (c *Cfg) ScrapeDelayDuration() time.Duration {
	return time.Duration(c.ScrapeDelay) * time.Millisecond
}

func (c *Cfg) LeaseDurationValue() time.Duration {
	return time.Duration(c.LeaseDuration) * time.Second
}
