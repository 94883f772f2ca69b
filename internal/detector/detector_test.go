package detector

import (
	"testing"

	lingua "github.com/pemistahl/lingua-go"
)

func TestDetect_Chinese(t *testing.T) {
	d := New()
	lang, ok := d.Detect("林羽走进了大殿，四周一片寂静。他抬起头，看见了远处的山峰。")
	if !ok {
		t.Fatal("expected a detection result")
	}
	if lang != lingua.Chinese {
		t.Errorf("detected %v, want Chinese", lang)
	}
}

func TestDetect_English(t *testing.T) {
	d := New()
	code, ok := d.DetectISO("Lin Yu walked into the great hall. Everything around him was silent.")
	if !ok {
		t.Fatal("expected a detection result")
	}
	if code != "EN" && code != "en" {
		t.Errorf("detected %q, want en", code)
	}
}

func TestDetect_Empty(t *testing.T) {
	d := New()
	if _, ok := d.Detect(""); ok {
		t.Error("empty text must not produce a detection")
	}
}
