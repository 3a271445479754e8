package push

import (
	"fmt"
	"strings"

	"truck-dispatch/internal/domain"
)

// Recipient is a room owner, e.g. {Kind: "driver", ID: "d1"}.
type Recipient struct {
	Kind string
	ID   string
}

func (r Recipient) String() string { return r.Kind + ":" + r.ID }

func parseRoom(room string) (Recipient, bool) {
	kind, id, ok := strings.Cut(room, ":")
	if !ok || kind == "" || id == "" {
		return Recipient{}, false
	}
	return Recipient{Kind: kind, ID: id}, true
}

// rule picks who gets a message for one event type and what it says.
type rule struct {
	kinds   []string
	message func(domain.Event) string
}

type ruleFactory struct {
	byType map[domain.EventType]rule
}

// Realtime-only events (status, created, accepted, rejected, closed) have no rule.
func newRuleFactory() *ruleFactory {
	return &ruleFactory{
		byType: map[domain.EventType]rule{
			domain.EventBroadcastNew: {
				kinds: []string{"transporter"},
				message: func(e domain.Event) string {
					return fmt.Sprintf("New truck request: %s x %s, %s per truck",
						e.Data["trucks_needed"], e.Data["vehicle_type"], e.Data["fare_per_truck"])
				},
			},
			domain.EventAcceptConfirmed: {
				kinds:   []string{"driver"},
				message: func(domain.Event) string { return "You have been assigned a trip" },
			},
			domain.EventBroadcastFilled: {
				kinds:   []string{"customer"},
				message: func(domain.Event) string { return "All trucks for your request are confirmed" },
			},
			domain.EventBroadcastExpired: {
				kinds:   []string{"customer"},
				message: withDefault("Your request expired"),
			},
			domain.EventBroadcastCancelled: {
				kinds:   []string{"transporter"},
				message: withDefault("Request cancelled"),
			},
			domain.EventTripCancelled: {
				kinds:   []string{"driver"},
				message: withDefault("Trip cancelled"),
			},
		},
	}
}

func withDefault(text string) func(domain.Event) string {
	return func(e domain.Event) string {
		if m := strings.TrimSpace(e.Message); m != "" {
			return m
		}
		return text
	}
}

func (f *ruleFactory) get(t domain.EventType) (rule, bool) {
	r, ok := f.byType[t]
	return r, ok
}

func (r rule) accepts(kind string) bool {
	for _, k := range r.kinds {
		if k == kind {
			return true
		}
	}
	return false
}
