// Package domain holds example payload types published and consumed
// over the bus. The bus itself is payload-agnostic; these types exist
// so the codec registry, the bridge's data_type lookup, and the
// busclient CLI have something concrete to marshal.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Heartbeat is a liveness ping a publisher sends on a well-known topic
// so subscribers can detect staleness independent of any individual
// business payload.
type Heartbeat struct {
	SourceID  uuid.UUID `json:"source_id"`
	Sequence  uint64    `json:"sequence"`
	EmittedAt time.Time `json:"emitted_at"`
}

// NoticeLevel classifies a Notice's severity.
type NoticeLevel string

const (
	NoticeLevelInfo    NoticeLevel = "info"
	NoticeLevelWarning NoticeLevel = "warning"
	NoticeLevelError   NoticeLevel = "error"
)

// Notice is a free-form operational message, the kind of payload a
// dashboard or CLI subscriber renders directly.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Source  string      `json:"source"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}
