package model

import (
	"time"

	"gorm.io/datatypes"
)

// CommandLog records an external command sent to an agent session.
type CommandLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_cmd_trace;size:36" json:"trace_id"`
	AgentID    string         `gorm:"index:idx_cmd_agent;size:64;not null" json:"agent_id"`
	Command    string         `gorm:"size:32;not null" json:"command"`
	Args       datatypes.JSON `json:"args"`
	Error      string         `gorm:"type:text" json:"error"`
	IP         string         `gorm:"size:45" json:"ip"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_cmd_created;autoCreateTime:milli" json:"created_at"`
}

func (CommandLog) TableName() string { return "command_logs" }
