package llm

import "strings"

// Emotion labels produced by ClassifyEmotion.
const (
	EmotionHappy     = "happy"
	EmotionSad       = "sad"
	EmotionConfused  = "confused"
	EmotionSurprised = "surprised"
	EmotionNeutral   = "neutral"
)

// emotionRules are checked in order; the first category with a matching
// token wins.
var emotionRules = []struct {
	label  string
	tokens []string
}{
	{EmotionHappy, []string{"!", "great", "awesome", "wonderful", "happy", "excited"}},
	{EmotionSad, []string{"sorry", "unfortunately", "sad", "disappointed"}},
	{EmotionConfused, []string{"?", "hmm", "not sure", "maybe"}},
	{EmotionSurprised, []string{"wow", "amazing", "incredible", "surprising"}},
}

// ClassifyEmotion labels text with a fixed keyword-priority heuristic.
func ClassifyEmotion(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range emotionRules {
		for _, tok := range rule.tokens {
			if strings.Contains(lower, tok) {
				return rule.label
			}
		}
	}
	return EmotionNeutral
}
