package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Stage 1 result shape, one per session:
// {
//   "mood": {
//     "moodScore": "number (1-10)",
//     "valence": "negative | neutral | positive",
//     "indicators": ["string"],
//     "confidence": "number (0-1)"
//   },
//   "topics": [{"name": "string", "salience": "number (0-1)"}],
//   "actionItems": [{"description": "string", "owner": "client | therapist"}],
//   "breakthroughs": [{"summary": "string", "quote": "string", "significance": "number (0-1)"}]
// }
type Stage1Result struct {
	Mood          MoodResult     `json:"mood"`
	Topics        []Topic        `json:"topics"`
	ActionItems   []ActionItem   `json:"actionItems"`
	Breakthroughs []Breakthrough `json:"breakthroughs"`
}

type MoodResult struct {
	MoodScore  float64  `json:"moodScore"`
	Valence    string   `json:"valence"`
	Indicators []string `json:"indicators"`
	Confidence float64  `json:"confidence"`
}

type Topic struct {
	Name     string  `json:"name"`
	Salience float64 `json:"salience"`
}

type ActionItem struct {
	Description string `json:"description"`
	Owner       string `json:"owner"`
}

type Breakthrough struct {
	Summary      string  `json:"summary"`
	Quote        string  `json:"quote"`
	Significance float64 `json:"significance"`
}

type topicActionsResult struct {
	Topics      []Topic      `json:"topics"`
	ActionItems []ActionItem `json:"actionItems"`
}

type breakthroughResult struct {
	Breakthroughs []Breakthrough `json:"breakthroughs"`
	None          bool           `json:"none"`
}

// Stage 2 result shape, one per session:
// {
//   "narrative": "string",
//   "progressAssessment": "string",
//   "themes": [{"name": "string", "trajectory": "emerging | recurring | resolving"}],
//   "recommendedFocus": ["string"]
// }
type Stage2Result struct {
	Narrative          string   `json:"narrative"`
	ProgressAssessment string   `json:"progressAssessment"`
	Themes             []Theme  `json:"themes"`
	RecommendedFocus   []string `json:"recommendedFocus"`
}

type Theme struct {
	Name       string `json:"name"`
	Trajectory string `json:"trajectory"`
}

func parseMoodResult(raw json.RawMessage) (MoodResult, error) {
	var result MoodResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return MoodResult{}, fmt.Errorf("llm output parse mood: %w", err)
	}
	if result.MoodScore < 1 || result.MoodScore > 10 {
		return MoodResult{}, fmt.Errorf("llm output invalid: moodScore %v out of range", result.MoodScore)
	}
	return result, nil
}

func parseTopicActions(raw json.RawMessage) (topicActionsResult, error) {
	var result topicActionsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return topicActionsResult{}, fmt.Errorf("llm output parse topics: %w", err)
	}
	for _, topic := range result.Topics {
		if strings.TrimSpace(topic.Name) == "" {
			return topicActionsResult{}, fmt.Errorf("llm output invalid: topic with empty name")
		}
	}
	return result, nil
}

func parseBreakthroughs(raw json.RawMessage) (breakthroughResult, error) {
	var result breakthroughResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return breakthroughResult{}, fmt.Errorf("llm output parse breakthroughs: %w", err)
	}
	return result, nil
}

func parseStage2Result(raw json.RawMessage) (Stage2Result, error) {
	var result Stage2Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return Stage2Result{}, fmt.Errorf("llm output parse synthesis: %w", err)
	}
	if strings.TrimSpace(result.Narrative) == "" {
		return Stage2Result{}, fmt.Errorf("llm output invalid: empty narrative")
	}
	return result, nil
}
