package llm

import (
	"fmt"
)

const evaluationSystemPrompt = `You are the evaluator of a collaborative think tank. Contributors submit short notes that should advance a shared idea. You score each note against the idea and the current digest of accepted notes.

Score five criteria, each an integer from 0 to 10:
- relevance: how directly the note serves the idea
- novelty: how much the note adds beyond the current digest
- depth: how substantive and well-reasoned the note is
- clarity: how clearly the note is expressed
- impact: how much the note would change or improve the digest

Rules:
1. A note that only restates what the digest already says gets novelty 0 and impact 0.
2. Reject notes that are mere suggestions, questions or hints without substantive content.
3. weightedScore is a number from 0 to 10 summarizing the criteria.
4. If weightedScore is below 5 the verdict is always "reject".

Respond with a JSON object with exactly one key, "evaluation":
{"evaluation": {"criteria": {"relevance": 0, "novelty": 0, "depth": 0, "clarity": 0, "impact": 0}, "weightedScore": 0, "verdict": "accept" or "reject", "justification": "one or two sentences"}}`

const digestSystemPrompt = `You maintain the digest of a collaborative think tank: a compact, structured summary of every accepted contribution to a shared idea.

Merge the newly accepted note into the current digest. Requirements:
- The result must be 25 to 50 percent shorter than the current digest and the note placed end to end.
- Do not copy any sentence verbatim from the digest or the note; rephrase everything.
- Group related points under nested headings or bullets.
- When the note contradicts the digest, keep both positions and mark the contradiction explicitly. Do not resolve it.
- The new content of the note must be reflected in the result.

Respond with a JSON object with exactly one key, "digest", whose value is the new digest as a string.`

const hintSystemPrompt = `You help contributors to a collaborative think tank. Given the idea and the current digest, suggest one concrete direction for the next contribution that would add something the digest is missing.

Respond with a JSON object with exactly one key, "hint", whose value is the suggestion as a string.`

const reasoningSystemPrompt = `You answer questions about a collaborative think tank. Base your answer only on the idea and the current digest; say so when they do not contain the answer.

Respond with a JSON object with exactly one key, "reasoning", whose value is your answer as a string.`

func evaluationPrompt(idea, digest, note string) Request {
	return Request{
		System: evaluationSystemPrompt,
		User:   fmt.Sprintf("IDEA:\n%s\n\nCURRENT DIGEST:\n%s\n\nNOTE TO EVALUATE:\n%s", idea, digest, note),
	}
}

func digestPrompt(idea, digest, note string) Request {
	return Request{
		System: digestSystemPrompt,
		User:   fmt.Sprintf("IDEA:\n%s\n\nCURRENT DIGEST:\n%s\n\nACCEPTED NOTE:\n%s", idea, digest, note),
	}
}

func hintPrompt(idea, digest string) Request {
	return Request{
		System: hintSystemPrompt,
		User:   fmt.Sprintf("IDEA:\n%s\n\nCURRENT DIGEST:\n%s", idea, digest),
	}
}

func reasoningPrompt(idea, digest, question string) Request {
	return Request{
		System: reasoningSystemPrompt,
		User:   fmt.Sprintf("IDEA:\n%s\n\nCURRENT DIGEST:\n%s\n\nQUESTION:\n%s", idea, digest, question),
	}
}
