// Package llm provides LLM integration for fact extraction, embedding, and
// memory reconciliation. It includes strict JSON-only prompt templates and
// response parsers that work with Ollama, OpenAI, and Anthropic models.
package llm

import (
	"fmt"
	"strings"

	"github.com/scrypster/engram/pkg/types"
)

// FactExtractionPrompt generates a strict JSON-only prompt that distills
// long-term facts about the user from a conversation transcript. Messages are
// rendered with role labels so the model can tell who said what.
func FactExtractionPrompt(messages []types.Message) string {
	var transcript strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&transcript, "%s: %s\n", msg.Role, msg.Content)
	}

	return fmt.Sprintf(`TASK: Extract facts worth remembering long-term about the user from a conversation.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO backticks. NO ARRAY - MUST BE OBJECT.

WHAT COUNTS AS A FACT:
- Personal details: name, location, family, occupation
- Preferences: likes, dislikes, habits, favorites
- Plans and intentions: trips, goals, deadlines
- Professional details: projects, skills, tools used
- Health and dietary information the user volunteers

WHAT DOES NOT COUNT:
- Small talk, greetings, pleasantries
- Requests to the assistant ("summarize this", "translate that")
- Facts about the assistant
- Anything already phrased as a question

RULES:
1. Each fact is one short self-contained sentence
2. Facts are stated from the user's perspective ("Prefers aisle seats")
3. If nothing is worth remembering, return {"facts":[]}
4. No duplicate facts
5. Do not invent information that is not in the conversation

CONVERSATION:
%s
RESPOND WITH ONLY THIS JSON STRUCTURE (nothing else):
{"facts":["fact one","fact two"]}`, transcript.String())
}

// ReconciliationPrompt generates a strict JSON-only prompt that decides, for
// each new fact, how it relates to the existing memories retrieved for it.
// The model must return exactly one action per fact, in fact order.
func ReconciliationPrompt(facts []string, existing []types.Memory) string {
	var factList strings.Builder
	for i, fact := range facts {
		fmt.Fprintf(&factList, "%d. %s\n", i+1, fact)
	}

	var memoryList strings.Builder
	if len(existing) == 0 {
		memoryList.WriteString("(none)\n")
	}
	for _, mem := range existing {
		fmt.Fprintf(&memoryList, "- id: %s text: %s\n", mem.ID, mem.Text)
	}

	return fmt.Sprintf(`TASK: Reconcile new facts against existing memories.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO backticks. NO ARRAY - MUST BE OBJECT.

For EACH new fact decide exactly one event:
- ADD: the fact is new information, no existing memory covers it
- UPDATE: the fact enriches or supersedes an existing memory (reuse that memory's id, put the old text in old_memory)
- DELETE: the fact contradicts an existing memory which must be removed (reuse that memory's id)
- NONE: the fact is already fully captured by an existing memory (reuse that memory's id)

RULES:
1. Return EXACTLY one entry per fact, in the same order as the facts
2. For UPDATE, DELETE, NONE: "id" MUST be an id from the existing memories list
3. For UPDATE: include "old_memory" with the existing memory's current text
4. For ADD: "id" may be any placeholder, "text" is the new fact
5. A contradiction that also introduces new information is a DELETE for the old memory followed by the contradicting fact as its own entry
6. If there are no existing memories, every fact is ADD
7. No trailing commas, valid JSON syntax

NEW FACTS:
%s
EXISTING MEMORIES:
%s
RESPOND WITH ONLY THIS JSON STRUCTURE (nothing else):
{"memory":[{"id":"0","text":"...","event":"ADD"},{"id":"<existing-id>","text":"...","event":"UPDATE","old_memory":"..."}]}`, factList.String(), memoryList.String())
}
