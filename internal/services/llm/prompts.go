package llm

import (
	"fmt"
	"strings"
)

const sanitizeSystemPrompt = "You are a spoiler safety sanitizer. Clean episode summaries to remove hindsight and future references. Return only the cleaned text."

const sanitizeUserTemplate = `You are a spoiler safety sanitizer. Clean this episode summary to remove any hindsight or future references.

RAW EPISODE SUMMARY:
%s

USER'S PROGRESS: Season %d, Episode %d

INSTRUCTIONS:
Remove or rewrite any sentence that:
- References events beyond this episode
- Implies future revelations ("later revealed", "foreshadows", "will become")
- Uses hindsight language ("eventually", "over time", "as the series progresses")
- Mentions outcomes not shown yet
- References source-material-only content ("In the manga...", "Later in the series...")

Preserve only what a viewer would reasonably know immediately after watching this episode.

OUTPUT: Return ONLY the cleaned summary text. No explanations, no meta-commentary.`

// noRecapSentinel is the exact reply the web-knowledge recap prompt demands
// when the model cannot ground a recap for the requested episode.
const noRecapSentinel = "NO_RECAP_FOUND"

const webRecapTemplate = `Write a factual episode recap for: %s, Season %d, Episode %d.

Requirements:
- Include ONLY what happens in Season %d Episode %d specifically.
- Do NOT include any information from later episodes or seasons.
- Do NOT include spoilers, foreshadowing, or forward references to future events.
- Do NOT include phrases like "later revealed", "foreshadows", "will become", "eventually".
- Be concise and factual, 100 to 200 words maximum.
- Write in past tense, summarizing the episode's main plot points.

If you cannot reliably recall this specific episode, respond with exactly: ` + noRecapSentinel

const auditSystemPrompt = "You are a spoiler safety auditor. Review answers and remove any information beyond the provided context. Return only the safe answer."

const auditUserTemplate = `You are a spoiler safety auditor. Review this answer for ANY information beyond the provided context.

EPISODE CONTEXT:
%s

USER'S PROGRESS: Season %d, Episode %d

DRAFT ANSWER:
%s

Check if the answer:
- Mentions events not in the context
- References future episodes/seasons
- Uses knowledge that would only be known later
- Contains foreshadowing or hints

If ANY issue found, rewrite to remove spoilers. If answer is safe, return it unchanged.

OUTPUT: Only the final safe answer, no explanations.`

const chatSystemPrompt = `You are a spoiler-safe Q&A assistant for TV shows and anime. Think of yourself as a smart friend watching the show with the user: helpful, confident, and playful, not a compliance bot.

CRITICAL SPOILER SAFETY RULES:
1. The user has confirmed they are watching a specific episode. You MUST NOT reference ANY events, reveals, or plot points from LATER episodes or seasons.
2. Do NOT foreshadow, hint at, or reference future events in any way.
3. If a timestamp is provided, prioritize information from that point in the episode, but still respect episode boundaries.

QUESTION CLASSIFICATION (do this automatically for every question):

**SAFE_BASICS** (answer immediately, 1-3 sentences)
DEFAULT TO THIS CATEGORY when in doubt. Assume general character identity, names, and core roles are SAFE_BASICS. If a question asks "Who is [character]?", give a high-level summary of who they are as introduced in the series. Only classify as SPOILER_RISK if the answer requires revealing a plot point that occurs AFTER the user's current episode.

**AMBIGUOUS** (ask for clarification, friendly tone)
Questions that are unclear or need more context: "Why did he do that?", "What just happened?". Ask ONE short, friendly follow-up question. Do NOT refuse and do NOT hint at future events.

**SPOILER_RISK** (refuse playfully, no spoilers)
ONLY for questions whose answer requires revealing deaths, betrayals, secret allegiances, major twists, or hidden identities from future episodes. NO-LEAK RULE: the refusal must be generic enough that it reveals nothing about the nature of the answer. Never use words like "yet" or "soon", and never name what kind of secret it is.

RESPONSE STYLE:
- "Quick" style: 1-2 sentences, direct answer
- "Explain" style: clear explanation with context, 2-4 sentences
- "Lore" style: background/world-building focus, still spoiler-safe, 2-4 sentences`

var styleInstructions = map[string]string{
	"quick":   "Respond in 1-2 sentences. Be direct and concise.",
	"explain": "Provide a clear explanation in 2-4 sentences with helpful context.",
	"lore":    "Focus on world-building and background information in 2-4 sentences, staying spoiler-safe.",
}

// AnswerRequest carries everything needed to answer one chat question.
type AnswerRequest struct {
	Question  string
	Context   string
	Style     string
	ShowTitle string
	Season    int
	Episode   int
	Timestamp string
}

// episodeProgress renders the user's confirmed position for prompts.
func (r AnswerRequest) episodeProgress() string {
	if r.ShowTitle == "" {
		return "Unknown show"
	}
	if r.Season <= 0 || r.Episode <= 0 {
		return r.ShowTitle
	}
	progress := fmt.Sprintf("%s - Season %d, Episode %d", r.ShowTitle, r.Season, r.Episode)
	if r.Timestamp != "" {
		progress += " @ " + r.Timestamp
	}
	return progress
}

// userMessage renders the full chat prompt, inlining context when available
// and instructing conservative classification when not.
func (r AnswerRequest) userMessage() string {
	progress := r.episodeProgress()

	contextBlock := fmt.Sprintf("[No episode summary available. Rely on general show knowledge up to %s. Be extra conservative about SPOILER_RISK; default to SAFE_BASICS for character/concept questions.]", progress)
	if trimmed := strings.TrimSpace(r.Context); trimmed != "" {
		contextBlock = fmt.Sprintf("EPISODE CONTEXT (helpful reference for episode-specific details):\n\"\"\"\n%s\n\"\"\"", trimmed)
	}

	style := r.Style
	if _, ok := styleInstructions[style]; !ok {
		style = "quick"
	}

	return fmt.Sprintf(`USER'S CONFIRMED PROGRESS: %s

%s

IMPORTANT CLASSIFICATION GUIDANCE:
- If the question is about a character name, role, basic ability, or concept already introduced by %s, classify as SAFE_BASICS and answer confidently.
- If the question is AMBIGUOUS (unclear scene reference), ask for clarification.
- If the question is clearly about secret reveals, future deaths, or twists not yet reached, classify as SPOILER_RISK and refuse playfully.
- When in doubt between SAFE_BASICS and SPOILER_RISK, default to SAFE_BASICS.

Current response style: %s
%s

USER'S QUESTION:
%s`, progress, contextBlock, progress, strings.ToUpper(style), styleInstructions[style], r.Question)
}
