package extract

// batchExtractionPrompt asks for high-recall topic extraction across a
// numbered batch of reviews. The response must be a bare JSON object
// keyed by the batch-local review index.
const batchExtractionPrompt = `Extract ALL topics from these app reviews. Prioritize HIGH RECALL.

Include context in topic names (e.g., "delivery partner rude" not just "rude").
Detect sarcasm: "Great job delivering cold food" -> "food delivered cold"
Return max 5 most important topics per review.

Reviews:
%s

Output JSON object ONLY (no markdown, just raw JSON):
{"reviews": [
  {"review_id": "0", "topics": [{"topic": "descriptive phrase", "category": "issue|request|feedback"}]},
  {"review_id": "1", "topics": [{"topic": "descriptive phrase", "category": "issue|request|feedback"}]},
  ...
]}`
