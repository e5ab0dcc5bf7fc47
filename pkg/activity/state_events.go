package activity

import (
	"strings"
	"time"
)

const (
	VerbSlicePersisted = "state.slice.persisted"
	VerbSliceFailed    = "state.slice.failed"
	VerbSliceRemoved   = "state.slice.removed"
	VerbHydrated       = "state.hydrated"
	VerbCleared        = "state.cleared"
)

// SliceEventInput describes one persistence root written (or not) to storage.
type SliceEventInput struct {
	StoreID    string
	Root       string
	Key        string
	Codec      string
	Bytes      int
	Err        error
	OccurredAt time.Time
}

// HydrationEventInput summarises one hydration pass.
type HydrationEventInput struct {
	StoreID    string
	Strategy   string
	Applied    []string
	Skipped    []string
	OccurredAt time.Time
}

// BuildSlicePersistedEvent constructs an event for a slice written to storage.
func BuildSlicePersistedEvent(input SliceEventInput) Event {
	return buildSliceEvent(VerbSlicePersisted, input)
}

// BuildSliceFailedEvent constructs an event for a slice that did not persist
// this round.
func BuildSliceFailedEvent(input SliceEventInput) Event {
	return buildSliceEvent(VerbSliceFailed, input)
}

// BuildSliceRemovedEvent constructs an event for a slice removed from storage
// because its root no longer exists in the store.
func BuildSliceRemovedEvent(input SliceEventInput) Event {
	return buildSliceEvent(VerbSliceRemoved, input)
}

// BuildHydratedEvent constructs an event describing a completed hydration.
func BuildHydratedEvent(input HydrationEventInput) Event {
	metadata := map[string]any{
		"strategy": input.Strategy,
		"applied":  append([]string{}, input.Applied...),
	}
	if len(input.Skipped) > 0 {
		metadata["skipped"] = append([]string{}, input.Skipped...)
	}
	return Event{
		Verb:       VerbHydrated,
		ObjectType: "state",
		ObjectID:   objectID(input.StoreID, "state"),
		Metadata:   withStore(metadata, input.StoreID),
		OccurredAt: input.OccurredAt,
	}
}

// BuildClearedEvent constructs an event for a bulk removal of persisted keys.
func BuildClearedEvent(storeID, prefix string) Event {
	return Event{
		Verb:       VerbCleared,
		ObjectType: "state",
		ObjectID:   objectID(storeID, "state"),
		Metadata:   withStore(map[string]any{"prefix": prefix}, storeID),
	}
}

func buildSliceEvent(verb string, input SliceEventInput) Event {
	metadata := map[string]any{"root": input.Root}
	if input.Key != "" {
		metadata["key"] = input.Key
	}
	if input.Codec != "" {
		metadata["codec"] = input.Codec
	}
	if input.Bytes > 0 {
		metadata["bytes"] = input.Bytes
	}
	if input.Err != nil {
		metadata["error"] = input.Err.Error()
	}
	return Event{
		Verb:       verb,
		ObjectType: "state.slice",
		ObjectID:   objectID(input.Root, input.Key),
		Metadata:   withStore(metadata, input.StoreID),
		OccurredAt: input.OccurredAt,
	}
}

func withStore(metadata map[string]any, storeID string) map[string]any {
	if strings.TrimSpace(storeID) != "" {
		metadata["store_id"] = storeID
	}
	return metadata
}

func objectID(candidates ...string) string {
	for _, candidate := range candidates {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
