package models

// Draft is generated post content ready to be shared
type Draft struct {
	Title       string `json:"title"`
	Text        string `json:"text"`
	Description string `json:"description"`
	URL         string `json:"url"`
	ImageURL    string `json:"image_url"`
}

// HasMedia reports whether the share carries an article or image
func (d *Draft) HasMedia() bool {
	return d.URL != "" || d.ImageURL != ""
}

// AttemptOutcome is the result of a publish cycle
type AttemptOutcome string

const (
	OutcomePending   AttemptOutcome = "pending"
	OutcomePublished AttemptOutcome = "published"
	OutcomeFailed    AttemptOutcome = "failed"
)

// PostAttempt tracks one publish cycle. It is not persisted; only its activity entry is.
type PostAttempt struct {
	Topic    string
	Text     string
	Attempts int
	Outcome  AttemptOutcome
	PostID   string
	Err      error
}
