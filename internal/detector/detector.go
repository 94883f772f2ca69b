// Package detector wraps language detection for the pipeline's fixed
// language pair. Detection is only used to sanity-check model output,
// never to choose a translation direction.
package detector

import (
	lingua "github.com/pemistahl/lingua-go"
)

type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector restricted to the pipeline's two languages.
// Restricting the language set keeps model loading fast and avoids
// misdetections among languages that never occur in the data.
func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(lingua.Chinese, lingua.English).
		Build()

	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the ISO 639-1 code of the detected language.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return lang.IsoCode639_1().String(), true
}
