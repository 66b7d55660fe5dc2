package mcpserver

// NoteKindsGuide describes the note model for LLM consumers.
const NoteKindsGuide = `# Note Kinds

Every note has an immutable id, a kind, a non-empty title and a creation
time. The kind never changes after capture.

| Kind | Stores | Tool |
|---|---|---|
| text | typed text (required) | create_text_note |
| webLink | source URL, fetched text or a placeholder | capture_web_link |
| document | the imported file and its extracted text | import_document |
| audio | a recording and its duration | (recorded through the HTTP API) |

## Rules

1. A title is required for every capture. Blank titles are rejected
   before anything is stored.
2. Web links must use http or https. Fetching happens at most once and a
   failed fetch still saves the link with the text "Web link: <url>".
3. Documents are accepted when their content is PDF, RTF, XML, CSV,
   Markdown or plain text. Anything else is rejected as UNSUPPORTED_TYPE.
4. Deleting a note removes its attachment as well.
`
