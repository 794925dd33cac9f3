package models

// TranscriptRequest is the body of the dedicated transcript endpoint.
type TranscriptRequest struct {
	URL      string `json:"url"`
	Language string `json:"language,omitempty"`
}

// TranscriptResult is returned once per URL resolution and never stored.
type TranscriptResult struct {
	Transcript string `json:"transcript"`
	Title      string `json:"title"`
	Language   string `json:"language,omitempty"`
}

// TranscriptSegment is one timed caption line from a transcript provider.
type TranscriptSegment struct {
	Text     string
	StartMs  int
	Duration int
}
