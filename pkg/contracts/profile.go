package contracts

import (
	"fmt"
	"strings"
	"time"
)

// Profile is the operational enforcement profile.
type Profile string

const (
	ProfileStandard  Profile = "STANDARD"
	ProfileDefense   Profile = "DEFENSE"
	ProfileEmergency Profile = "EMERGENCY"
	ProfileResearch  Profile = "RESEARCH"
)

// Profiles lists every profile in declaration order.
var Profiles = []Profile{ProfileStandard, ProfileDefense, ProfileEmergency, ProfileResearch}

// ParseProfile is case-insensitive.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Profiles {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown profile %q", s)
}

// ProfileTransition is one entry of the append-only transition log.
type ProfileTransition struct {
	Timestamp time.Time `json:"timestamp"`
	From      Profile   `json:"from"`
	To        Profile   `json:"to"`
	Reason    string    `json:"reason"`
}
