package llm

const moodScoreInstructions = `You are a clinical analysis assistant. Score the emotional state
expressed in the session transcript. Respond with a JSON object:
{"moodScore": <1-10>, "valence": "<negative|neutral|positive>",
"indicators": [<short phrases from the transcript>], "confidence": <0-1>}.
Base the score only on the transcript. Output JSON only.`

const topicActionsInstructions = `You are a clinical analysis assistant. Extract the topics discussed
and any agreed action items from the session transcript. Respond with a
JSON object: {"topics": [{"name": "...", "salience": <0-1>}],
"actionItems": [{"description": "...", "owner": "<client|therapist>"}]}.
Output JSON only.`

const breakthroughInstructions = `You are a clinical analysis assistant. Detect moments of insight or
breakthrough in the session transcript. Respond with a JSON object:
{"breakthroughs": [{"summary": "...", "quote": "...", "significance":
<0-1>}], "none": <true if no breakthrough occurred>}. Output JSON only.`

const sessionSynthesisInstructions = `You are a clinical analysis assistant. Synthesize this session in
light of the accumulated context from all earlier sessions. Respond with
a JSON object: {"narrative": "...", "progressAssessment": "...",
"themes": [{"name": "...", "trajectory": "<emerging|recurring|resolving>"}],
"recommendedFocus": ["..."]}. Weigh continuity with prior sessions over
novelty. Output JSON only.`

// InstructionsFor returns the task-specific instructions and whether the task is recognized.
func InstructionsFor(task Task) (string, bool) {
	switch task {
	case TaskMoodScore:
		return moodScoreInstructions, true
	case TaskTopicActions:
		return topicActionsInstructions, true
	case TaskBreakthrough:
		return breakthroughInstructions, true
	case TaskSessionSynthesis:
		return sessionSynthesisInstructions, true
	default:
		return "", false
	}
}
