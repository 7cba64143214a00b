package domain

import "time"

type PolicySource string

const (
	PolicyFromRobots  PolicySource = "robots"
	PolicyAbsent      PolicySource = "absent"
	PolicyUnreachable PolicySource = "unreachable"
)

// SitePolicy is the crawl policy resolved once per domain and reused for the whole run.
type SitePolicy struct {
	Domain     string
	Source     PolicySource
	AllowAll   bool
	DenyAll    bool
	CrawlDelay time.Duration
	FetchedAt  time.Time
}
