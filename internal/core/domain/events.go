package domain

// Rect is one overlay region in page coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// EventKind identifies one progress notification type.
type EventKind string

const (
	EventLog           EventKind = "log"
	EventImage         EventKind = "image"
	EventOverlay       EventKind = "overlay"
	EventFileProcessed EventKind = "file_processed"
)

// EventMessage is one transient progress notification. Not persisted.
type EventMessage struct {
	Kind    EventKind `json:"kind"`
	Text    string    `json:"text,omitempty"`
	Path    string    `json:"path,omitempty"`
	Regions []Rect    `json:"regions,omitempty"`
}
