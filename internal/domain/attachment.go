package domain

// Attachment describes an already-uploaded file. The URL is resolved and
// directly downloadable; the struct is immutable once attached to a message.
type Attachment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"size"`
	MimeType  string `json:"type"`
	URL       string `json:"url"`
}
