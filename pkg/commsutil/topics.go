package commsutil

import (
	"strings"

	"github.com/MeteorMsg/Meteor/pkg/transport"
)

// DefaultChannel is the base channel name used when none is configured.
const DefaultChannel = "meteor"

// BuildTopic derives the bus topic for one direction of a channel,
// e.g. "meteor_towardimplementation".
func BuildTopic(base string, dir transport.Direction) string {
	if base == "" {
		base = DefaultChannel
	}
	return base + "_" + strings.ToLower(dir.String())
}

// BuildTopics returns the topics for both directions keyed by direction.
func BuildTopics(base string) map[transport.Direction]string {
	topics := make(map[transport.Direction]string, 2)
	for _, dir := range transport.Directions() {
		topics[dir] = BuildTopic(base, dir)
	}
	return topics
}
