package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// JournalModels is a list of all the structs exported here which represent tables in the database schema
var JournalModels = []interface{}{
	&RealmInfo{},
	&TeleportRecord{},
	&TickRecord{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// RealmInfo describes the realm this world server belongs to
type RealmInfo struct {
	gorm.Model
	RealmName   string `json:"realmName" gorm:"size:127"`
	Description string `json:"description" gorm:"size:255"`
	Website     string `json:"website" gorm:"size:255"`
}

func (*RealmInfo) TableName() string {
	return "realm_infos"
}

////////////////////////
// JOURNAL MODELS
////////////////////////

// TeleportRecord is one teleport transition (start or completion) of a character
type TeleportRecord struct {
	ID            uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	Time          time.Time  `json:"time" gorm:"index:idx_teleport_time"`
	CharacterGUID uint64     `json:"guid" gorm:"index:idx_teleport_guid"`
	CharacterName string     `json:"name" gorm:"size:64"`
	Phase         string     `json:"phase" gorm:"size:16"`
	Kind          string     `json:"kind" gorm:"size:8"`
	FromMap       uint32     `json:"fromMap"`
	FromArea      uint32     `json:"fromArea"`
	FromPosition  geom.Point `json:"fromPosition"`
	ToMap         uint32     `json:"toMap" gorm:"index:idx_teleport_to_map"`
	ToArea        uint32     `json:"toArea"`
	ToPosition    geom.Point `json:"toPosition"`
	Orientation   float32    `json:"orientation"`
	// movement snapshot at the time of the transition
	Movement datatypes.JSON `json:"movement"`
}

func (*TeleportRecord) TableName() string {
	return "teleport_records"
}

// TickRecord is the timing of one scheduler iteration
type TickRecord struct {
	ID         uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time       time.Time `json:"time" gorm:"index:idx_tick_time"`
	Tick       uint64    `json:"tick" gorm:"index:idx_tick_number"`
	DTMs       float64   `json:"dtMs"`
	WorkMs     float64   `json:"workMs"`
	TotalMs    float64   `json:"totalMs"`
	Overrun    bool      `json:"overrun"`
	Clients    int       `json:"clients"`
	QueueDepth int       `json:"queueDepth"`
	Population int       `json:"population"`
}

func (*TickRecord) TableName() string {
	return "tick_records"
}
