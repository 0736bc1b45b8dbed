package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&ServerInfo{},
	&Marker{},
}

// ServerInfo identifies the server instance that owns the snapshot tables
type ServerInfo struct {
	gorm.Model
	Namespace   string `json:"namespace" gorm:"size:127;uniqueIndex"`
	Description string `json:"description" gorm:"size:255"`
}

func (*ServerInfo) TableName() string {
	return "server_infos"
}

// Marker is the persisted form of one interactive marker. The full marker
// document lives in Data; the other columns exist for querying.
type Marker struct {
	Name      string         `json:"name" gorm:"primaryKey;size:255"`
	Seq       uint64         `json:"seq"`
	FrameID   string         `json:"frameId" gorm:"size:255;index:idx_marker_frame_id"`
	Data      datatypes.JSON `json:"data"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (*Marker) TableName() string {
	return "interactive_markers"
}
