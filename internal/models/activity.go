package models

import (
	"time"
)

// ActivityType classifies an activity log entry
type ActivityType string

const (
	ActivityPost       ActivityType = "post"
	ActivityPostFailed ActivityType = "post_failed"
	ActivityConnection ActivityType = "connection"
	ActivityEngagement ActivityType = "engagement"
	ActivityReply      ActivityType = "comment_reply"
	ActivityAdaptation ActivityType = "adaptation"
)

// Metadata keys shared by writers and the weekly report
const (
	MetaTopic          = "topic"
	MetaTimestamp      = "timestamp"
	MetaAttempts       = "attempts"
	MetaError          = "error"
	MetaEngagementRate = "engagement_rate"
	MetaStatus         = "status"
	MetaEngagementType = "type"
	MetaPostURN        = "post_urn"
	MetaCommentURN     = "comment_urn"
)

// ConnectionAccepted is the status of a connection request that was accepted
const ConnectionAccepted = "accepted"

// Activity is an append-only log entry
type Activity struct {
	ID         uint         `gorm:"primaryKey" json:"-"`
	ActivityID string       `gorm:"size:255;index" json:"id"`
	Type       ActivityType `gorm:"size:32;index;not null" json:"type"`
	Timestamp  time.Time    `gorm:"index;not null" json:"timestamp"`
	Metadata   JSON         `gorm:"type:json" json:"metadata"`
}

// Topic returns the topic recorded for a post activity
func (a *Activity) Topic() string {
	return a.Metadata.String(MetaTopic)
}

// EngagementRate returns the recorded engagement rate of a post, if any
func (a *Activity) EngagementRate() (float64, bool) {
	return a.Metadata.Float(MetaEngagementRate)
}
