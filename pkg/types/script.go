package types

import (
	"crypto/sha256"
	"errors"
	"strings"
)

// Script represents a parsed screenplay ready for indexing.
// Parsing itself happens upstream; the indexer consumes this structure as-is.
type Script struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	Season   int    `json:"season,omitempty"`
	Episode  int    `json:"episode,omitempty"`
	Metadata string `json:"metadata,omitempty"` // Opaque JSON from the parser, stored verbatim

	Scenes     []Scene     `json:"scenes"`
	BibleNotes []BibleNote `json:"bible_notes,omitempty"`
}

// Scene represents a single screenplay scene.
type Scene struct {
	ID          int64  `json:"id"`
	ScriptID    int64  `json:"script_id"`
	SceneNumber int    `json:"scene_number"`
	Heading     string `json:"heading"` // Full slug line, e.g. "INT. COFFEE SHOP - DAY"
	Location    string `json:"location,omitempty"`
	TimeOfDay   string `json:"time_of_day,omitempty"`
	Content     string `json:"content,omitempty"` // Action lines and description

	Lines []CharacterLine `json:"lines,omitempty"`
}

// CharacterLine is one dialogue block within a scene.
type CharacterLine struct {
	ID            int64  `json:"id"`
	SceneID       int64  `json:"scene_id"`
	Character     string `json:"character"` // Case-normalized upper
	Dialogue      string `json:"dialogue"`
	Parenthetical string `json:"parenthetical,omitempty"`
	LineOrder     int    `json:"line_order"`
}

// BibleNote is a freeform world/character note attached to a script.
// Notes are chunked before embedding; the note itself is the unit the
// parser hands over.
type BibleNote struct {
	ID       int64  `json:"id"`
	ScriptID int64  `json:"script_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

// BibleChunk is an indexed slice of a bible note, embedded and searched
// like a scene.
type BibleChunk struct {
	ID         int64  `json:"id"`
	ScriptID   int64  `json:"script_id"`
	NoteID     int64  `json:"note_id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	ChunkOrder int    `json:"chunk_order"`
}

// EntityType distinguishes embedding owners in the embeddings table.
type EntityType string

const (
	EntityScene      EntityType = "scene"
	EntityBibleChunk EntityType = "bible_chunk"
)

// Validate checks structural integrity of a scene before indexing.
func (s *Scene) Validate() error {
	if s.SceneNumber <= 0 {
		return errors.New("scene number must be positive")
	}
	if strings.TrimSpace(s.Heading) == "" {
		return errors.New("scene heading cannot be empty")
	}
	return nil
}

// Validate checks structural integrity of a script before indexing.
func (s *Script) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return errors.New("script title cannot be empty")
	}
	for i := range s.Scenes {
		if err := s.Scenes[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ContentHash computes a SHA-256 hash of the scene's searchable text,
// used to skip re-embedding unchanged scenes.
func (s *Scene) ContentHash() [32]byte {
	var b strings.Builder
	b.WriteString(s.Heading)
	b.WriteString("\n")
	b.WriteString(s.Content)
	for _, l := range s.Lines {
		b.WriteString("\n")
		b.WriteString(l.Character)
		b.WriteString(": ")
		b.WriteString(l.Dialogue)
	}
	return sha256.Sum256([]byte(b.String()))
}

// EmbeddingText returns the text submitted to the embedding provider for
// this scene.
func (s *Scene) EmbeddingText() string {
	var b strings.Builder
	b.WriteString(s.Heading)
	if s.Content != "" {
		b.WriteString("\n")
		b.WriteString(s.Content)
	}
	for _, l := range s.Lines {
		b.WriteString("\n")
		b.WriteString(l.Character)
		if l.Parenthetical != "" {
			b.WriteString(" (")
			b.WriteString(l.Parenthetical)
			b.WriteString(")")
		}
		b.WriteString(": ")
		b.WriteString(l.Dialogue)
	}
	return b.String()
}
