package constants

import "time"

const (
	ExternalAPITimeout = 10 * time.Second
	CatalogLoadTimeout = 30 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	SessionTTL           = 30 * time.Minute
	SessionSweepInterval = 5 * time.Minute
)

const (
	DefaultFeedLimit      = 20
	MaxFeedLimit          = 100
	TransformConcurrency  = 8
	DedupBufferMultiplier = 2
)

const (
	DefaultQueueID = 420
	TeamSize       = 5
	UnknownPlayer  = "Unknown"
)

var QueueNames = map[int]string{
	420:  "Ranked Solo/Duo",
	440:  "Ranked Flex",
	400:  "Normal Draft",
	430:  "Normal Blind",
	450:  "ARAM",
	700:  "Clash",
	900:  "URF",
	1020: "One For All",
	1300: "Nexus Blitz",
	1400: "Ultimate Spellbook",
	1700: "Arena",
}
