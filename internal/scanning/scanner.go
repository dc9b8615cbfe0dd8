package scanning

import "context"

// PageImage is one rendered page of a document
type PageImage struct {
	Index    int // 1-based page number
	Width    int
	Height   int
	MIMEType string
	Data     []byte
}

// Document is the ordered list of page images sent to the model
type Document []PageImage

// Payload is everything a backend needs for one extraction call
type Payload struct {
	System       string
	Instructions string
	Schema       map[string]any
	Pages        Document
}

// TokenUsage reports the tokens consumed by a model call
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the model's raw text output
type Response struct {
	Text  string
	Usage TokenUsage
}

// Scanner defines the interface for vision model backends
type Scanner interface {
	// Scan submits the payload and returns the model's raw text. Failures
	// are returned as *ModelInvocationError.
	Scan(ctx context.Context, payload Payload) (*Response, error)
	// Close closes the scanner and releases resources
	Close() error
}
