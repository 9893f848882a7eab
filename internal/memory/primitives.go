package memory

type primitiveDef struct {
	description string
	content     string
}

// The four primitive skills seeded into every skill bank. Their files
// are written once and never overwritten or removed.
var primitiveSkills = map[string]primitiveDef{
	"primitive_insert": {
		description: "Insert a new memory capturing durable facts from the conversation",
		content: `# Insert Memory

## Purpose
Capture new, durable facts that are not already present in memory.

## When to Use
- The conversation contains new factual information worth remembering.
- The information is not already captured in existing memories.

## How to Apply
- Identify the key fact or preference stated in the conversation.
- Write a concise, self-contained memory entry.
- Add relevant keyword tags for future retrieval.

## Constraints
- Only capture information explicitly stated or clearly implied.
- Do not duplicate information already in memory.

Action type: INSERT only.
`,
	},
	"primitive_update": {
		description: "Update an existing memory with corrections or new details",
		content: `# Update Memory

## Purpose
Revise an existing memory with corrections, clarifications, or additional details.

## When to Use
- New information modifies or extends an existing memory.
- A previously stored fact has been corrected by the user.

## How to Apply
- Identify which existing memory needs updating (by MEMORY_INDEX).
- Rewrite the memory content to incorporate the new information.
- Update tags if the scope of the memory has changed.

## Constraints
- Preserve the core identity of the original memory.
- Only update based on explicitly stated information.

Action type: UPDATE only.
`,
	},
	"primitive_delete": {
		description: "Delete memories that are wrong, outdated, or superseded",
		content: `# Delete Memory

## Purpose
Remove memories that are incorrect, outdated, or have been superseded.

## When to Use
- The user explicitly contradicts a stored memory.
- A memory has been fully superseded by a newer, more complete entry.
- A memory is clearly wrong or no longer relevant.

## How to Apply
- Identify which existing memory to delete (by MEMORY_INDEX).
- Provide reasoning for why this memory should be removed.

## Constraints
- Do not delete memories that might still be partially relevant.
- Prefer updating over deleting when the memory has some valid content.

Action type: DELETE only.
`,
	},
	"primitive_noop": {
		description: "No memory changes needed for this conversation turn",
		content: `# No Operation

## Purpose
Confirm that no memory changes are needed for this conversation turn.

## When to Use
- The conversation is purely transactional (greetings, small talk).
- All relevant information is already captured in existing memories.
- The conversation does not contain any new durable facts.

## How to Apply
- Return a NOOP operation with brief reasoning.

Action type: NOOP only.
`,
	},
}
