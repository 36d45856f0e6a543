package enhance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	vertexProviderName = "vertex"
	defaultVertexModel = "gemini-1.5-pro"
)

// Vertex enhances text with a Gemini model on Vertex AI.
type Vertex struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewVertex creates a Vertex AI enhancer for the given project and region.
func NewVertex(ctx context.Context, projectID, region, modelName string) (*Vertex, error) {
	if projectID == "" || region == "" {
		return nil, errors.New("vertex: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = defaultVertexModel
	}

	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
	}

	return &Vertex{client: client, model: model}, nil
}

// Enhance sends text to Gemini. Quota exhaustion is reported as ErrRateLimited.
func (v *Vertex) Enhance(ctx context.Context, text string) (Result, error) {
	resp, err := v.model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		if isQuotaError(err) {
			return Result{Provider: vertexProviderName}, fmt.Errorf("vertex: %v: %w", err, ErrRateLimited)
		}
		return Result{}, fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	enhanced, err := parseEnhanced(responseText(resp))
	if err != nil {
		return Result{}, err
	}
	return Result{Text: enhanced, Provider: vertexProviderName}, nil
}

// Close releases the underlying client.
func (v *Vertex) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}

func isQuotaError(err error) bool {
	if status.Code(err) == codes.ResourceExhausted {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests
}
