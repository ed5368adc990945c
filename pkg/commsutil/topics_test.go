package commsutil

import (
	"testing"

	"github.com/MeteorMsg/Meteor/pkg/transport"
)

func TestBuildTopic(t *testing.T) {
	tests := []struct {
		name string
		base string
		dir  transport.Direction
		want string
	}{
		{"implementation", "orders", transport.ToImplementation, "orders_towardimplementation"},
		{"caller", "orders", transport.ToCaller, "orders_towardcaller"},
		{"default base", "", transport.ToCaller, "meteor_towardcaller"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildTopic(tt.base, tt.dir)
			if got != tt.want {
				t.Errorf("BuildTopic(%q, %v) = %q, want %q", tt.base, tt.dir, got, tt.want)
			}
		})
	}
}

func TestBuildTopics(t *testing.T) {
	topics := BuildTopics("math")
	if len(topics) != 2 {
		t.Fatalf("commsutil:topics_test - expected 2 topics, got %d", len(topics))
	}
	if topics[transport.ToImplementation] != "math_towardimplementation" {
		t.Errorf("commsutil:topics_test - implementation topic = %q", topics[transport.ToImplementation])
	}
	if topics[transport.ToCaller] != "math_towardcaller" {
		t.Errorf("commsutil:topics_test - caller topic = %q", topics[transport.ToCaller])
	}
}
