// Package session persists the conversation transcript and identity backing
// each run: the Session record and its message history, keyed by an opaque
// session key used for locking, cancellation, and transcript grouping.
package session

import (
	"context"

	"github.com/serialagent/gateway/pkg/models"
)

// Store is the interface for session persistence.
type Store interface {
	// Session CRUD
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error

	// Session lookup
	GetByKey(ctx context.Context, key string) (*models.Session, error)
	GetOrCreate(ctx context.Context, key string, agentID string) (*models.Session, error)
	List(ctx context.Context, agentID string, opts ListOptions) ([]*models.Session, error)

	// Message history
	AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error
	GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
}

// ListOptions configures session listing.
type ListOptions struct {
	Limit  int
	Offset int
}

// SessionKey builds a unique session key for a given agent and caller-scoped
// discriminator (e.g. a node ID, a schedule ID, or an API client's own key).
func SessionKey(agentID, scope string) string {
	return agentID + ":" + scope
}
