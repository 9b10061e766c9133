package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"wellpath/internal/config"
	"wellpath/internal/model"
)

const maxCompletionTokens = 1024

var errUnknownFormat = errors.New("unknown response format")

// ReasonerService talks to an OpenAI-compatible chat completion API. With no
// API key configured it answers from a fixed script so the service still runs
// end to end.
type ReasonerService struct {
	config *config.AIConfig
	client *openai.Client
	log    zerolog.Logger
}

// NewReasonerService creates a new reasoner service
func NewReasonerService(cfg *config.AIConfig, logger zerolog.Logger) *ReasonerService {
	if cfg == nil {
		cfg = config.DefaultAIConfig()
	}
	s := &ReasonerService{
		config: cfg,
		log:    logger.With().Str("component", "reasoner").Logger(),
	}
	if cfg.IsEnabled() {
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		s.client = openai.NewClientWithConfig(oc)
	}
	return s
}

// Enabled reports whether a real model is behind the service
func (s *ReasonerService) Enabled() bool {
	return s.client != nil
}

// NextQuestion asks for the most useful next question, or a conclusion when
// the model is confident enough.
func (s *ReasonerService) NextQuestion(ctx context.Context, transcript []model.TranscriptEntry) (*model.ReasonerStep, error) {
	if !s.Enabled() {
		return mockStep(transcript), nil
	}

	content, err := s.complete(ctx, buildNextQuestionPrompt(transcript))
	if err != nil {
		return nil, err
	}
	return parseStep(content)
}

// Conclude asks for the final summary and suggestions
func (s *ReasonerService) Conclude(ctx context.Context, transcript []model.TranscriptEntry) (*model.Conclusion, error) {
	if !s.Enabled() {
		return mockConclusion(transcript), nil
	}

	content, err := s.complete(ctx, buildConclusionPrompt(transcript))
	if err != nil {
		return nil, err
	}
	step, err := parseStep(content)
	if err != nil {
		return nil, err
	}
	if step.Conclusion == nil {
		return nil, fmt.Errorf("expected a conclusion: %w", errUnknownFormat)
	}
	return step.Conclusion, nil
}

func (s *ReasonerService) complete(ctx context.Context, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout())
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Temperature: s.config.Temperature,
		MaxTokens:   maxCompletionTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	content := resp.Choices[0].Message.Content
	s.log.Debug().Str("model", s.config.Model).Int("tokens", resp.Usage.TotalTokens).Msg("chat completion")
	return content, nil
}

const systemPrompt = "You are an assistant guiding a medical questionnaire for a wellness app. " +
	"Your goal is to ask short, specific questions to help the user determine which supplements or tests they might need."

func buildNextQuestionPrompt(transcript []model.TranscriptEntry) string {
	return fmt.Sprintf(`### Instructions:
1. Use the user's previous answers to decide the next most relevant question:
   - Provide a conclusion when confident there is enough information to make accurate and relevant suggestions.
   - Do not ask a question the user has already answered.
   - Otherwise ask only the single most critical next question.
2. For each question, specify:
   - type: "text", "choice" or "multiselect".
   - options: only for "choice" or "multiselect", at most %d.
     Yes/No/Not sure and 1-5 scales are fine as "choice".
3. Respond with JSON only, in one of the formats below.

### User's Previous Answers:
%s

### Response Formats:
For a question:
{"question": "Your next question", "type": "text" | "choice" | "multiselect", "options": ["option1", "option2"]}

For a conclusion:
{"conclusion": "Your conclusion", "suggestions": ["suggestion1", "suggestion2"]}
`, model.MaxGeneratedOptions, renderTranscript(transcript))
}

func buildConclusionPrompt(transcript []model.TranscriptEntry) string {
	return fmt.Sprintf(`### Instructions:
1. Use the user's previous answers to write a conclusion with accurate and relevant suggestions.
2. Respond with JSON only, in the format below.

### User's Previous Answers:
%s

### Response Format:
{"conclusion": "Your conclusion", "suggestions": ["suggestion1", "suggestion2"]}
`, renderTranscript(transcript))
}

func renderTranscript(transcript []model.TranscriptEntry) string {
	if len(transcript) == 0 {
		return "(no answers yet)"
	}
	var b strings.Builder
	for _, e := range transcript {
		fmt.Fprintf(&b, "- [%s] %s\n", e.ID, e.Question)
		if len(e.Options) > 0 {
			fmt.Fprintf(&b, "  options: %s\n", strings.Join(e.Options, " | "))
		}
		if e.Answered {
			fmt.Fprintf(&b, "  answer: %s\n", e.Answer)
		} else {
			b.WriteString("  answer: (not answered)\n")
		}
	}
	return b.String()
}

var fence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// stripFences removes a markdown code fence around a JSON payload
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if m := fence.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return content
}

type wireStep struct {
	Question    string   `json:"question"`
	Type        string   `json:"type"`
	Kind        string   `json:"kind"`
	Options     []string `json:"options"`
	Category    string   `json:"category"`
	Conclusion  string   `json:"conclusion"`
	Summary     string   `json:"summary"`
	Suggestions []string `json:"suggestions"`
}

var conclusionKeys = map[string]bool{"conclusion": true, "summary": true, "suggestions": true}

// parseStep turns a model reply into a question or a conclusion. Shape checks
// on generated questions happen in the fallback, not here.
func parseStep(content string) (*model.ReasonerStep, error) {
	payload := stripFences(content)

	var w wireStep
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return nil, fmt.Errorf("parse model reply: %w", err)
	}

	switch {
	case w.Question != "":
		kindName := w.Type
		if kindName == "" {
			kindName = w.Kind
		}
		kind, ok := model.ParseQuestionKind(kindName)
		if !ok {
			return nil, fmt.Errorf("question type %q: %w", kindName, errUnknownFormat)
		}
		return &model.ReasonerStep{Question: &model.QuestionRecord{
			Text:     w.Question,
			Kind:     kind,
			Options:  w.Options,
			Category: w.Category,
		}}, nil

	case w.Conclusion != "" || w.Summary != "":
		summary := w.Conclusion
		if summary == "" {
			summary = w.Summary
		}

		var all map[string]interface{}
		if err := json.Unmarshal([]byte(payload), &all); err != nil {
			return nil, fmt.Errorf("parse model reply: %w", err)
		}
		var extended map[string]interface{}
		for k, v := range all {
			if conclusionKeys[k] {
				continue
			}
			if extended == nil {
				extended = map[string]interface{}{}
			}
			extended[k] = v
		}

		return &model.ReasonerStep{Conclusion: &model.Conclusion{
			Summary:     summary,
			Suggestions: w.Suggestions,
			Extended:    extended,
		}}, nil
	}

	return nil, errUnknownFormat
}

var mockQuestions = []model.QuestionRecord{
	{
		Text:    "How would you rate your overall energy levels? (1 = low, 5 = high)",
		Kind:    model.KindSingleChoice,
		Options: []string{"1", "2", "3", "4", "5"},
	},
	{
		Text:    "Do you experience any of the following?",
		Kind:    model.KindMultiChoice,
		Options: []string{"Frequent headaches", "Trouble sleeping", "Low mood", "Digestive issues", "None of these"},
	},
	{
		Text: "Is there anything else you would like us to know?",
		Kind: model.KindFreeText,
	},
}

var generatedIDPattern = regexp.MustCompile(`^q[0-9]+$`)

func mockStep(transcript []model.TranscriptEntry) *model.ReasonerStep {
	asked := 0
	for _, e := range transcript {
		if e.ID != model.RootQuestionID && generatedIDPattern.MatchString(e.ID) {
			asked++
		}
	}
	if asked < len(mockQuestions) {
		q := mockQuestions[asked].Clone()
		return &model.ReasonerStep{Question: &q}
	}
	return &model.ReasonerStep{Conclusion: mockConclusion(transcript)}
}

func mockConclusion(transcript []model.TranscriptEntry) *model.Conclusion {
	answered := 0
	for _, e := range transcript {
		if e.Answered {
			answered++
		}
	}
	return &model.Conclusion{
		Summary: fmt.Sprintf("Based on %d answers, no urgent concerns were identified. "+
			"This is an automated summary and not a diagnosis.", answered),
		Suggestions: []string{
			"Keep a regular sleep schedule",
			"Stay hydrated and keep active most days",
			"Talk to a doctor if symptoms persist or get worse",
		},
	}
}
