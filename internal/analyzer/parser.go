package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"codewarden/internal/types"
)

// FileResult is the parse output for one source file. Relation targets are
// raw names (qualified guesses or module paths); the resolution pass binds
// them to entity ids.
type FileResult struct {
	FilePath  string
	Entities  []*types.CodeEntity
	Relations []*rawRelation
}

// rawRelation is a relation before target resolution. Target holds the
// referenced name as written in the source.
type rawRelation struct {
	SourceID string
	Target   string
	Kind     types.RelationKind
	FilePath string
	Resolved bool // contains edges are resolved at parse time
	TargetID string
}

// Parser extracts entities and raw relations from one source file.
// A parser must tolerate broken input: emit what it can, never abort the run.
type Parser interface {
	Language() string
	Extensions() []string
	ParseFile(relPath string, content []byte) (*FileResult, error)
}

// entityID derives the deterministic id for an entity. Collision suffixes
// (-2, -3, ...) are handled by the analyzer per run.
func entityID(filePath string, kind types.EntityKind, name string, lineStart int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", filePath, kind, name, lineStart)))
	return hex.EncodeToString(h[:])[:16]
}
