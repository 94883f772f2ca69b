// Package novel holds the domain model shared by the translation
// pipeline: a Work (one serialized fiction title) and its Chapters,
// together with per-chapter translation state.
package novel

// Status is the translation state of a single chapter.
type Status string

const (
	StatusPending    Status = "pending"
	StatusTranslated Status = "translated"
	StatusFailed     Status = "failed"
)

// Method identifies which translation path produced a chapter's
// translated body.
type Method string

const (
	MethodNone Method = ""
	// MethodGemini: the context-aware provider translated the raw
	// chapter directly.
	MethodGemini Method = "gemini"
	// MethodGeminiPolished: the literal provider translated the
	// chapter after a content-policy rejection, and the context-aware
	// provider then polished the censored draft.
	MethodGeminiPolished Method = "gemini_polished"
	// MethodGoogle: the literal provider translated the chapter and
	// no polish pass succeeded.
	MethodGoogle Method = "google"
)

// Primary reports whether the method corresponds to a direct
// context-aware translation. Polished and literal results both count
// as fallback output for run accounting.
func (m Method) Primary() bool {
	return m == MethodGemini
}

// Chapter is one chapter of a Work. Index is 1-based and unique
// within the Work; ordering follows source numbering.
type Chapter struct {
	Index           int
	Title           string
	Body            string
	TitleTranslated string
	BodyTranslated  string
	Status          Status
	Method          Method
}

// Work is one serialized fiction title and its chapter set.
type Work struct {
	ID                    string
	Title                 string
	TitleTranslated       string
	Description           string
	DescriptionTranslated string
	Chapters              []Chapter
}
