// Package models defines the core domain entities: waveform traces, template
// sets, trigger candidates, and detection records.
package models

import (
	"fmt"
	"strings"
)

// ChannelID identifies a seismic channel by network, station, and channel
// code. It is used as a map key throughout the pipeline instead of dotted
// string concatenation.
type ChannelID struct {
	Network string
	Station string
	Channel string
}

// String returns the conventional "NET.STA.CHAN" form.
func (c ChannelID) String() string {
	return c.Network + "." + c.Station + "." + c.Channel
}

// ParseChannelID parses a "NET.STA.CHAN" identifier.
func ParseChannelID(s string) (ChannelID, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return ChannelID{}, fmt.Errorf("invalid channel id %q: want NET.STA.CHAN", s)
	}
	for _, p := range parts {
		if p == "" {
			return ChannelID{}, fmt.Errorf("invalid channel id %q: empty component", s)
		}
	}
	return ChannelID{Network: parts[0], Station: parts[1], Channel: parts[2]}, nil
}

// Matches reports whether the id passes the given selection filters. An empty
// filter list accepts every value.
func (c ChannelID) Matches(networks, stations, channels []string) bool {
	return matchesFilter(c.Network, networks) &&
		matchesFilter(c.Station, stations) &&
		matchesFilter(c.Channel, channels)
}

func matchesFilter(v string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}
