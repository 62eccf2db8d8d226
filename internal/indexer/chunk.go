package indexer

import (
	"strings"

	"github.com/dshills/scriptcontext-mcp/pkg/types"
)

// MaxChunkChars is the target maximum size of one bible chunk. Notes are
// split on paragraph boundaries; a single paragraph longer than the
// target stays whole rather than being cut mid-sentence.
const MaxChunkChars = 1500

// ChunkBibleNotes splits each of the script's bible notes into indexable
// chunks. Chunk order is stable within a note.
func ChunkBibleNotes(script *types.Script) []types.BibleChunk {
	var chunks []types.BibleChunk
	for i := range script.BibleNotes {
		note := &script.BibleNotes[i]
		for order, content := range splitNote(note.Content) {
			chunks = append(chunks, types.BibleChunk{
				ScriptID:   script.ID,
				NoteID:     note.ID,
				Title:      note.Title,
				Content:    content,
				ChunkOrder: order,
			})
		}
	}
	return chunks
}

// splitNote breaks note text into paragraph-aligned chunks of at most
// MaxChunkChars. Empty paragraphs are dropped.
func splitNote(content string) []string {
	paragraphs := strings.Split(content, "\n\n")

	var out []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
		}
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p)+2 > MaxChunkChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()

	return out
}
