// Package validator checks that provider output is actually in the
// target language. The primary provider occasionally echoes the
// source text back or answers in the source language; both must be
// treated as failed attempts, not stored as translations.
package validator

import (
	"fmt"
	"strings"

	"github.com/okovalov/seritran/internal/detector"
)

// minValidationRunes is the minimum rune count required to attempt
// language detection. Shorter texts (chapter titles, single names)
// produce unreliable results and are accepted without validation.
const minValidationRunes = 20

// Validator checks that translated text is written in the expected
// target language. The underlying detector is expensive to build;
// reuse the instance.
type Validator struct {
	det *detector.Detector
}

func New() *Validator {
	return &Validator{det: detector.New()}
}

// Validate returns nil when text appears to be written in targetLang.
//
// Short texts and texts whose language cannot be determined pass
// without error. When the detected language differs the error names
// both codes.
func (v *Validator) Validate(text, targetLang string) error {
	if targetLang == "" {
		return nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("translation is empty")
	}
	if len([]rune(text)) < minValidationRunes {
		return nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		// Ambiguous language, cannot validate.
		return nil
	}

	if !strings.EqualFold(detected, targetLang) {
		return fmt.Errorf("expected %s but detected %s", targetLang, strings.ToLower(detected))
	}
	return nil
}
