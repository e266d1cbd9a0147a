package mcpserver

// NoteFormatContract describes the persisted task note format that LLM
// consumers should follow when writing notes.
const NoteFormatContract = `# Task Note Format Contract

Task notes are stored as a single JSON object. The ` + "`" + `format` + "`" + ` field selects
which other fields are present.

## Formats

` + "```" + `json
{"format":"text","content":"Free-form text"}
{"format":"list","items":[ITEM, ...]}
{"format":"both","content":"Free-form text","items":[ITEM, ...]}
` + "```" + `

An ITEM is:

` + "```" + `json
{"id":"0190c3b2-...","text":"Buy milk","completed":false,"order":0,"createdAt":"2026-01-02T03:04:05Z"}
` + "```" + `

## Rules

1. ` + "`" + `format` + "`" + ` is one of ` + "`" + `text` + "`" + `, ` + "`" + `list` + "`" + `, ` + "`" + `both` + "`" + `.
2. ` + "`" + `text` + "`" + ` requires a string ` + "`" + `content` + "`" + `; ` + "`" + `list` + "`" + ` requires an ` + "`" + `items` + "`" + ` array;
   ` + "`" + `both` + "`" + ` requires both. Other fields are ignored.
3. Every item needs ` + "`" + `id` + "`" + ` (string, unique within the note), ` + "`" + `text` + "`" + ` (string),
   ` + "`" + `completed` + "`" + ` (boolean) and ` + "`" + `order` + "`" + ` (integer). ` + "`" + `createdAt` + "`" + ` is an optional
   RFC 3339 timestamp.
4. Items are displayed by ascending ` + "`" + `order` + "`" + `. Orders are renumbered 0..n-1 on read,
   so gaps and duplicates are tolerated.
5. Anything that is not a valid note object is kept as a plain text note with the
   whole string as its content. Nothing is rejected, but malformed JSON will not
   become a checklist.
6. Prefer the checklist tools (` + "`" + `add_checklist_item` + "`" + `, ` + "`" + `toggle_checklist_item` + "`" + `,
   ` + "`" + `move_checklist_item` + "`" + `, ` + "`" + `remove_checklist_item` + "`" + `) over rewriting the whole note;
   they assign ids and keep the order dense.
7. Pass the ` + "`" + `checksum` + "`" + ` from ` + "`" + `read_task_notes` + "`" + ` as ` + "`" + `ifMatch` + "`" + ` when writing to avoid
   overwriting concurrent edits.

## Example

` + "```" + `json
{
  "format": "both",
  "content": "Packing for the conference.",
  "items": [
    {"id": "a1", "text": "Passport", "completed": true, "order": 0},
    {"id": "b2", "text": "Charger", "completed": false, "order": 1}
  ]
}
` + "```" + `
`
