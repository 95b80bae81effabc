package events

import (
	"time"

	"github.com/trellisgw/trellis/internal/console/hierarchy"
)

// DocumentEvent describes a committed change to the configuration document.
// Address and NodeType are set for node-scoped edits; whole-document imports
// carry only the revision. Stats reflect the document after the change.
type DocumentEvent struct {
	Type      string          `json:"type"`
	Address   string          `json:"address,omitempty"`
	NodeType  string          `json:"node_type,omitempty"`
	Revision  string          `json:"revision"`
	Stats     hierarchy.Stats `json:"stats"`
	Timestamp time.Time       `json:"timestamp"`
	Message   string          `json:"message,omitempty"`
}

const (
	TypeNodeCreated      = "NODE_CREATED"
	TypeNodeUpdated      = "NODE_UPDATED"
	TypeNodeDeleted      = "NODE_DELETED"
	TypeDocumentReplaced = "DOCUMENT_REPLACED"
)

// TopicDocumentEvents is the default event bus topic for document changes.
const TopicDocumentEvents = "console.document.events"
