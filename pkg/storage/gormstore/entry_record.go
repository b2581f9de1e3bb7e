package gormstore

import "time"

// EntryRecord is the metadata row of an entry.
type EntryRecord struct {
	ID string `gorm:"primaryKey;type:text"`

	Kind      string `gorm:"type:varchar(16);not null;index:idx_entry_kind"`
	Name      string `gorm:"type:text;not null"`
	Role      string `gorm:"type:varchar(32);not null"`
	ValueType string `gorm:"column:value_type;type:varchar(32);not null"`
	Readable  bool   `gorm:"not null"`
	Writable  bool   `gorm:"not null"`
	Native    string `gorm:"type:text;not null"` // JSON object

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (EntryRecord) TableName() string {
	return "entry_record"
}

// StateRecord holds the current value of a leaf entry.
type StateRecord struct {
	ID string `gorm:"primaryKey;type:text"`

	Val string    `gorm:"type:text;not null"` // JSON-encoded value
	Ack bool      `gorm:"not null"`
	Ts  time.Time `gorm:"not null"`
	LC  time.Time `gorm:"column:lc;not null"`

	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName overrides the default table name for GORM.
func (StateRecord) TableName() string {
	return "entry_state"
}
