package domain

import (
	"fmt"
	"strings"
)

type Platform string

const (
	PlatformTwitter Platform = "twitter"
	PlatformThreads Platform = "threads"
)

// AllPlatforms is the closed set of publishing targets, in dispatch order.
var AllPlatforms = []Platform{PlatformTwitter, PlatformThreads}

func ParsePlatform(raw string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "twitter", "x":
		return PlatformTwitter, nil
	case "threads":
		return PlatformThreads, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, raw)
	}
}

func (p Platform) String() string { return string(p) }

func (p Platform) Valid() bool {
	return p == PlatformTwitter || p == PlatformThreads
}

func (p Platform) DisplayName() string {
	switch p {
	case PlatformTwitter:
		return "Twitter"
	case PlatformThreads:
		return "Threads"
	default:
		return string(p)
	}
}
