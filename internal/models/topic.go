package models

import (
	"time"
)

// TopicScore is the stored performance score of one catalog topic
type TopicScore struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Topic     string    `gorm:"size:255;uniqueIndex;not null" json:"topic"`
	Score     float64   `json:"score"`
	Samples   int       `json:"samples"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
