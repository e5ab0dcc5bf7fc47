// Package usersink forwards store persistence events into a go-users
// ActivitySink so state lifecycle shows up next to user activity.
package usersink

import (
	"context"
	"slices"
	"strings"

	"github.com/goliatone/go-reactive/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// Hook turns events into go-users ActivityRecords.
type Hook struct {
	Sink usertypes.ActivitySink
	// UserID is stamped on every record.
	UserID uuid.UUID
	// Verbs limits forwarding to the listed verbs. Empty forwards all.
	Verbs []string
}

// Notify forwards event to the sink. Unroutable events and filtered verbs
// are skipped.
func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}
	event = activity.NormalizeEvent(event)
	if event.Verb == "" || event.ObjectType == "" || event.ObjectID == "" {
		return nil
	}
	if len(h.Verbs) > 0 && !slices.Contains(h.Verbs, event.Verb) {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return h.Sink.Log(ctx, h.record(event))
}

func (h Hook) record(event activity.Event) usertypes.ActivityRecord {
	return usertypes.ActivityRecord{
		ActorID:    actorID(event),
		UserID:     h.UserID,
		TenantID:   parseUUID(event.TenantID),
		Verb:       event.Verb,
		ObjectType: event.ObjectType,
		ObjectID:   event.ObjectID,
		Channel:    event.Channel,
		Data:       event.Metadata,
		OccurredAt: event.OccurredAt,
	}
}

// actorID prefers the event actor. Store events without one are attributed to
// a stable name-based UUID derived from the store ID.
func actorID(event activity.Event) uuid.UUID {
	if event.ActorID != "" {
		return parseUUID(event.ActorID)
	}
	if storeID, ok := event.Metadata["store_id"].(string); ok && storeID != "" {
		return StoreActor(storeID)
	}
	return uuid.Nil
}

// StoreActor returns the actor UUID used for events of storeID.
func StoreActor(storeID string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("reactive:store:"+storeID))
}

func parseUUID(input string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return uuid.Nil
	}
	return id
}
