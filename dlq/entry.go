package dlq

import (
	"time"

	"github.com/xraph/bulwark/id"
	"github.com/xraph/bulwark/page"
)

// Entry represents one failed operation awaiting replay or disposal.
type Entry struct {
	ID          id.EntryID        `json:"id"`
	EntryType   string            `json:"entry_type"`
	Payload     []byte            `json:"payload"`
	Error       string            `json:"error"`
	RetryCount  int               `json:"retry_count"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	LastRetryAt *time.Time        `json:"last_retry_at,omitempty"`
}

// Key returns the entry's keyset pagination position. Both components are
// fixed at push time, so a cursor issued for this entry stays valid no
// matter how the entry is later mutated.
func (e *Entry) Key() page.Cursor {
	return page.Cursor{At: e.CreatedAt, ID: e.ID}
}
