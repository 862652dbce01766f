package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiReviewer looks at the completion photo and judges whether the
// requested services were performed.
type GeminiReviewer struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	source   *EvidenceSource
	minScore float64
}

// NewGeminiReviewer initializes a Gemini client. Verdicts below minScore
// confidence are treated as rejections. Evidence is read through source.
func NewGeminiReviewer(ctx context.Context, apiKey string, minScore float64, source *EvidenceSource) (*GeminiReviewer, error) {
	if source == nil {
		return nil, errors.New("gemini reviewer needs an evidence source")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-2.0-flash")
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.1)

	return &GeminiReviewer{
		client:   client,
		model:    model,
		source:   source,
		minScore: minScore,
	}, nil
}

func (r *GeminiReviewer) Close() {
	r.client.Close()
}

func (r *GeminiReviewer) Review(ctx context.Context, req EvidenceRequest) (*Verdict, error) {
	if strings.TrimSpace(req.EvidenceRef) == "" {
		return &Verdict{Approved: false, Confidence: 1, Reason: "no evidence submitted"}, nil
	}
	format, img, err := r.source.Fetch(ctx, req.EvidenceRef)
	if err != nil {
		return nil, err
	}

	resp, err := r.model.GenerateContent(ctx, genai.ImageData(format, img), genai.Text(buildReviewPrompt(req)))
	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response candidates from Gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	v, err := parseVerdict(text.String())
	if err != nil {
		return nil, err
	}
	if v.Approved && v.Confidence < r.minScore {
		v.Approved = false
		v.Reason = fmt.Sprintf("low confidence %.2f: %s", v.Confidence, v.Reason)
	}
	return v, nil
}

func buildReviewPrompt(req EvidenceRequest) string {
	notes := req.Notes
	if notes == "" {
		notes = "NONE"
	}
	return fmt.Sprintf(`Role: You verify completion photos for a snow removal service.
Job:
- Services requested: %s
- Address: %s
- Client notes: %s

Decide whether the photo shows the requested surfaces cleared of snow.
Reject photos that are unrelated, show uncleared snow on a requested surface, or are unreadable.

Output JSON Schema:
{
  "approved": boolean,
  "confidence": number between 0 and 1,
  "reason": "string (one sentence)"
}
`, strings.Join(req.Services, ", "), req.Address, notes)
}

func parseVerdict(raw string) (*Verdict, error) {
	clean := cleanJSONString(raw)
	var v Verdict
	if err := json.Unmarshal([]byte(clean), &v); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w. Raw: %s", err, clean)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", v.Confidence)
	}
	return &v, nil
}

// cleanJSONString removes markdown code blocks if present (e.g. ```json ... ```)
func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
