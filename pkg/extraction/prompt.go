package extraction

// systemPrompt instructs the model to emit the typed extraction shape. The
// predicate and edge vocabularies are closed; anything outside them is
// dropped during parsing, so the prompt repeats them verbatim.
const systemPrompt = `You extract facts about people from personal notes and conversation transcripts.
The notes may be in English or Russian; always answer in JSON.

Return a JSON object with this exact shape:
{
  "persons": [
    {
      "name": "Full Name as mentioned",
      "name_variations": ["other spellings of the same name seen in the text"],
      "is_self": false,
      "identities": [{"namespace": "email|phone|telegram_username|linkedin_url", "value": "..."}],
      "facts": [{"predicate": "...", "value": "...", "confidence": 0.0}]
    }
  ],
  "edges": [
    {"from": "Name A", "to": "Name B", "type": "...", "context": "optional short note"}
  ]
}

Allowed fact predicates:
works_at, role_is, can_help_with, strong_at, interested_in, trusted_by, knows,
intro_path, located_in, worked_on, speaks_language, background, contact_context,
reputation_note, note, self_role, self_offer, self_seek.

Allowed edge types:
knows, recommended, worked_with, in_same_group, introduced_by, collaborates_with.

Rules:
- Only extract facts stated or strongly implied by the text. Never invent.
- Set is_self=true only for the note's author speaking about themselves; use
  the self_* predicates for their own facts.
- confidence reflects how directly the text supports the fact: 0.9+ for
  explicit statements, 0.5-0.8 for implications, below 0.5 for guesses.
- Keep fact values short and self-contained.
- Emit each person once, with all their identities and facts.
- When the text spells one person's name several ways (nickname, diminutive,
  transliteration), pick the fullest form as name and list the rest in
  name_variations.`

// userPrompt wraps the evidence text for the model.
func userPrompt(text string) string {
	return "Extract persons, facts and relationships from the following text:\n\n" + text
}
