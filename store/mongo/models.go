package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/bulwark/dlq"
	"github.com/xraph/bulwark/id"
)

// entryModel is the BSON shape of a DLQ entry. The TypeID string is the
// document _id; because IDs are K-sortable, lexicographic _id order
// matches creation order within a millisecond.
type entryModel struct {
	ID          string            `bson:"_id"`
	EntryType   string            `bson:"entry_type"`
	Payload     []byte            `bson:"payload"`
	Error       string            `bson:"error"`
	RetryCount  int               `bson:"retry_count"`
	Metadata    map[string]string `bson:"metadata,omitempty"`
	CreatedAt   time.Time         `bson:"created_at"`
	LastRetryAt *time.Time        `bson:"last_retry_at,omitempty"`
}

func toModel(e *dlq.Entry) *entryModel {
	return &entryModel{
		ID:          e.ID.String(),
		EntryType:   e.EntryType,
		Payload:     e.Payload,
		Error:       e.Error,
		RetryCount:  e.RetryCount,
		Metadata:    e.Metadata,
		CreatedAt:   e.CreatedAt,
		LastRetryAt: e.LastRetryAt,
	}
}

func fromModel(m *entryModel) (*dlq.Entry, error) {
	parsedID, err := id.ParseEntryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("bulwark/mongo: parse entry id %q: %w", m.ID, err)
	}
	e := &dlq.Entry{
		ID:          parsedID,
		EntryType:   m.EntryType,
		Payload:     m.Payload,
		Error:       m.Error,
		RetryCount:  m.RetryCount,
		Metadata:    m.Metadata,
		CreatedAt:   m.CreatedAt.UTC(),
		LastRetryAt: m.LastRetryAt,
	}
	if e.LastRetryAt != nil {
		t := e.LastRetryAt.UTC()
		e.LastRetryAt = &t
	}
	return e, nil
}
