package mcpserver

// MemoryFormatContract describes how memories are stored on disk and how
// links between them are written. Tools create and edit the files; the
// contract matters to anyone editing them directly.
const MemoryFormatContract = `# llm-mem Memory Format Contract

Every memory is one Markdown file with a YAML front-matter header.

## Structure

` + "```" + `markdown
---
id: 0190b0e0-7c1e-7a3b-9f00-2b1c3d4e5f60   # REQUIRED, generated, never changes
title: Retry policy                        # REQUIRED
category: architecture                     # REQUIRED
tags:
  - http
sources:
  - https://example.com/rfc
abstract: One-sentence summary.
created_at: 2026-01-02T03:04:05Z
updated_at: 2026-01-02T03:04:05Z
last_reviewed: 2026-01-02T03:04:05Z
links:
  - 0190b0e0-0000-7000-8000-000000000002
owner: platform                            # custom field, kept as is
---

Body text in Markdown.

## Related

- [[Other Memory Title]]
- [[Another Title|display text]]
` + "```" + `

## Rules

1. **Protected fields** are ` + "`" + `id, title, category, tags, sources, abstract,
   created_at, updated_at, last_reviewed, links` + "`" + `. Custom fields may add keys but
   never reuse these names.
2. **Location** is ` + "`" + `<slug(category)>/<slug(title)>-<id>.md` + "`" + `. Changing the title
   or category moves the file.
3. **Links** exist twice: the ` + "`" + `links` + "`" + ` id list and a ` + "`" + `[[Title]]` + "`" + ` marker under
   ` + "`" + `## Related` + "`" + `. Use the link_memories tool so both sides get both.
4. **Markers** name the target's current title. Renaming a memory rewrites
   markers in memories that list its id.
5. **Timestamps** are RFC 3339 in UTC.
6. **Deleting** a memory leaves references to it in place; run audit_memories
   to find them.
`
