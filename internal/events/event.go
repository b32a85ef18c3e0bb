// Package events defines the server events of the idea board and the
// in-process bus that relays them from producers to live subscribers.
package events

import "encoding/json"

// Kind discriminates the event variants.
type Kind string

const (
	KindConnected     Kind = "connected"
	KindPing          Kind = "ping"
	KindTagsGenerated Kind = "tags-generated"
	KindIdeaCreated   Kind = "idea-created"
	KindIdeaDeleted   Kind = "idea-deleted"
)

// StreamKinds are the bus kinds forwarded to streaming clients.
var StreamKinds = []Kind{KindTagsGenerated, KindIdeaCreated, KindIdeaDeleted}

// TagRef is a persisted tag as carried by tags-generated.
type TagRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Event is a transient server event. Only the fields of its Kind are
// meaningful; the JSON form carries exactly those fields.
type Event struct {
	Type      Kind
	IdeaID    string
	UserID    string
	SessionID string
	Tags      []TagRef
}

// TagsGenerated builds a tags-generated event.
func TagsGenerated(ideaID, userID string, tags []TagRef) Event {
	return Event{Type: KindTagsGenerated, IdeaID: ideaID, UserID: userID, Tags: tags}
}

// IdeaCreated builds an idea-created event.
func IdeaCreated(ideaID, userID, sessionID string) Event {
	return Event{Type: KindIdeaCreated, IdeaID: ideaID, UserID: userID, SessionID: sessionID}
}

// IdeaDeleted builds an idea-deleted event.
func IdeaDeleted(ideaID, userID, sessionID string) Event {
	return Event{Type: KindIdeaDeleted, IdeaID: ideaID, UserID: userID, SessionID: sessionID}
}

// Connected is the acknowledgement sent when a stream opens.
func Connected() Event { return Event{Type: KindConnected} }

// Ping is the keep-alive frame.
func Ping() Event { return Event{Type: KindPing} }

// IsLifecycle reports whether the event announces an idea being created or deleted.
func (e Event) IsLifecycle() bool {
	return e.Type == KindIdeaCreated || e.Type == KindIdeaDeleted
}

type tagsPayload struct {
	Type   Kind     `json:"type"`
	IdeaID string   `json:"ideaId"`
	UserID string   `json:"userId"`
	Tags   []TagRef `json:"tags"`
}

type lifecyclePayload struct {
	Type      Kind   `json:"type"`
	IdeaID    string `json:"ideaId"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

type barePayload struct {
	Type Kind `json:"type"`
}

// MarshalJSON encodes the variant selected by Type.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case KindTagsGenerated:
		tags := e.Tags
		if tags == nil {
			tags = []TagRef{}
		}
		return json.Marshal(tagsPayload{Type: e.Type, IdeaID: e.IdeaID, UserID: e.UserID, Tags: tags})
	case KindIdeaCreated, KindIdeaDeleted:
		return json.Marshal(lifecyclePayload{Type: e.Type, IdeaID: e.IdeaID, UserID: e.UserID, SessionID: e.SessionID})
	default:
		return json.Marshal(barePayload{Type: e.Type})
	}
}

// UnmarshalJSON accepts any variant, including kinds this build does not know.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      Kind     `json:"type"`
		IdeaID    string   `json:"ideaId"`
		UserID    string   `json:"userId"`
		SessionID string   `json:"sessionId"`
		Tags      []TagRef `json:"tags"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event{
		Type:      raw.Type,
		IdeaID:    raw.IdeaID,
		UserID:    raw.UserID,
		SessionID: raw.SessionID,
		Tags:      raw.Tags,
	}
	return nil
}
