package scanning

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// Vertex implements the Scanner interface using Gemini on Vertex AI
type Vertex struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewVertex creates a Vertex AI Scanner using application default
// credentials
func NewVertex(ctx context.Context, projectID, region, modelName string) (*Vertex, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("vertex project and region are required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &Vertex{client: client, model: model}, nil
}

// Scan sends the page images followed by the instructions
func (v *Vertex) Scan(ctx context.Context, payload Payload) (*Response, error) {
	parts := make([]genai.Part, 0, len(payload.Pages)+1)
	for _, page := range payload.Pages {
		parts = append(parts, genai.ImageData(imageFormat(page.MIMEType), page.Data))
	}
	parts = append(parts, genai.Text(payload.Instructions))

	resp, err := v.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, ClassifyModelError(ctx, fmt.Errorf("generating content: %w", err))
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &ModelInvocationError{Kind: ModelEmptyResponse, Err: fmt.Errorf("no response from vertex ai")}
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, &ModelInvocationError{Kind: ModelEmptyResponse, Err: fmt.Errorf("vertex ai response has no text")}
	}

	out := &Response{Text: text.String()}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = TokenUsage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// Close closes the Vertex AI client
func (v *Vertex) Close() error {
	return v.client.Close()
}
