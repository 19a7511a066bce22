package model

import (
	"time"

	"gorm.io/datatypes"
)

// AgentSave is one save slot holding a serialized behavior record.
type AgentSave struct {
	SlotID    string         `gorm:"primaryKey;size:64" json:"slot_id"`
	AgentID   string         `gorm:"index:idx_save_agent;size:64;not null" json:"agent_id"`
	Version   int            `gorm:"not null" json:"version"`
	Mode      string         `gorm:"size:32" json:"mode"` // denormalized for listings
	State     datatypes.JSON `json:"state"`
	SavedAt   time.Time      `gorm:"index:idx_save_time" json:"saved_at"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (AgentSave) TableName() string { return "agent_saves" }
