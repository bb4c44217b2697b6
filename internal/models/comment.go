package models

import (
	"time"
)

// OwnPost is a post published by the authenticated member
type OwnPost struct {
	URN       string    `json:"urn"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Comment is a comment left on one of the member's posts
type Comment struct {
	URN       string    `json:"urn"`
	ID        string    `json:"id"`
	PostURN   string    `json:"post_urn"`
	ActorURN  string    `json:"actor_urn"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
