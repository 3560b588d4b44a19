package textutil

import (
	"math"
	"testing"
)

func TestFoldStripsDiacritics(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Bhagavad-gītā", "bhagavad-gita"},
		{"Śrīmad-Bhāgavatam", "srimad-bhagavatam"},
		{"Caitanya-caritāmṛta Ādi", "caitanya-caritamrta adi"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := Fold(tt.input); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCosineSimilarityNil(t *testing.T) {
	if got := CosineSimilarity(nil, NewFingerprint("hello world")); got != 0 {
		t.Fatalf("expected 0 for nil fingerprint, got %v", got)
	}
	zero := &Fingerprint{counts: map[string]float64{}, norm: 0}
	if got := CosineSimilarity(zero, NewFingerprint("hello world test")); got != 0 {
		t.Fatalf("expected 0 for zero norm, got %v", got)
	}
}

func TestCosineSimilarityIdenticalAndSymmetric(t *testing.T) {
	a := NewFingerprint("karmany evadhikaras te ma phalesu kadacana")
	b := NewFingerprint("karmany evadhikaras te ma phalesu kadacana")
	if got := CosineSimilarity(a, b); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical similarity = %v, want 1", got)
	}
	c := NewFingerprint("evadhikaras phalesu something else")
	if CosineSimilarity(a, c) != CosineSimilarity(c, a) {
		t.Fatal("similarity not symmetric")
	}
}

func TestTrigramFingerprintToleratesGarbling(t *testing.T) {
	reference := NewTrigramFingerprint("karmaṇy evādhikāras te mā phaleṣu kadācana")
	garbled := NewTrigramFingerprint("karmanye vadhika raste ma phaleshu kadachana")
	unrelated := NewTrigramFingerprint("the weather today is rather cloudy and cold")

	close := CosineSimilarity(reference, garbled)
	far := CosineSimilarity(reference, unrelated)
	if close <= far {
		t.Fatalf("expected garbled text closer than unrelated text: %v <= %v", close, far)
	}
	if close < 0.4 {
		t.Fatalf("expected garbled similarity above 0.4, got %v", close)
	}
	if NewTrigramFingerprint("ab") != nil {
		t.Fatal("expected nil trigram fingerprint for short text")
	}
}

func TestNewFingerprintNormCalculation(t *testing.T) {
	fp := NewFingerprint("hello hello world")
	if fp == nil {
		t.Fatal("expected fingerprint")
	}
	if math.Abs(fp.norm-math.Sqrt(5)) > 0.0001 {
		t.Fatalf("norm = %v, want %v", fp.norm, math.Sqrt(5))
	}
	if fp.TokenCount() != 2 {
		t.Fatalf("token count = %d, want 2", fp.TokenCount())
	}
	if NewFingerprint("a an it to") != nil {
		t.Fatal("expected nil for short tokens only")
	}
}

func TestTokenizeFoldsInput(t *testing.T) {
	got := Tokenize("Śrī Īśopaniṣad, mantra 1!")
	want := []string{"sri", "isopanisad", "mantra"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("token[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFileToken(t *testing.T) {
	tests := map[string]string{
		"Lecture on BG 2.47!":       "lecture_on_bg_2_47",
		"Śrī Īśopaniṣad":            "sri_isopanisad",
		"Collected Lectures (2024)": "collected_lectures_2024",
		"job-1":                     "job-1",
		"   ":                       "unknown",
	}
	for in, want := range tests {
		if got := FileToken(in); got != want {
			t.Errorf("FileToken(%q) = %q, want %q", in, got, want)
		}
	}
}
