package feature

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/rushteam/bookrec/core"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "lowercase and split",
			in:   "Science Fiction Asimov",
			want: []string{"science", "fiction", "asimov"},
		},
		{
			name: "drop single char and stop words",
			in:   "a Tale of the Two Cities",
			want: []string{"tale", "cities"},
		},
		{
			name: "punctuation separates tokens",
			in:   "Sci-Fi, Le_Guin!",
			want: []string{"sci", "fi", "le_guin"},
		},
		{
			name: "unicode letters kept",
			in:   "Novela García Márquez",
			want: []string{"novela", "garcía", "márquez"},
		},
		{
			name: "empty",
			in:   "   ",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.in)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTfidfVectorizer_Fit(t *testing.T) {
	v := &TfidfVectorizer{}
	docs := []string{
		"Novel Fiction Orwell",
		"Novel Fiction Orwell",
		"Reference History Gibbon",
	}
	if err := v.Fit(docs); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	wantVocab := []string{"fiction", "gibbon", "history", "novel", "orwell", "reference"}
	if !reflect.DeepEqual(v.Vocabulary, wantVocab) {
		t.Fatalf("Vocabulary = %v, want %v", v.Vocabulary, wantVocab)
	}

	// df=2 -> ln(4/3)+1, df=1 -> ln(2)+1
	common := math.Log(4.0/3.0) + 1
	rare := math.Log(2.0) + 1
	wantIDF := []float64{common, rare, rare, common, common, rare}
	for i := range wantIDF {
		if math.Abs(v.IDF[i]-wantIDF[i]) > 1e-12 {
			t.Errorf("IDF[%d] = %v, want %v", i, v.IDF[i], wantIDF[i])
		}
	}
}

func TestTfidfVectorizer_FitEmpty(t *testing.T) {
	tests := []struct {
		name string
		docs []string
	}{
		{name: "no documents", docs: nil},
		{name: "only stop words", docs: []string{"the and of", "a an"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &TfidfVectorizer{}
			err := v.Fit(tt.docs)
			if !errors.Is(err, core.ErrEmptyVocabulary) {
				t.Errorf("Fit() error = %v, want ErrEmptyVocabulary", err)
			}
		})
	}
}

func TestTfidfVectorizer_Transform(t *testing.T) {
	v := &TfidfVectorizer{}
	if err := v.Fit([]string{"Novel Fiction Orwell", "Reference History Gibbon"}); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	vec := v.Transform("Novel Fiction Orwell")
	if len(vec) != v.Dimension() {
		t.Fatalf("len = %d, want %d", len(vec), v.Dimension())
	}
	var norm float64
	for _, x := range vec {
		norm += x * x
	}
	if math.Abs(norm-1) > 1e-9 {
		t.Errorf("squared norm = %v, want 1", norm)
	}

	// 词表外的词被忽略
	again := v.Transform("Novel Fiction Orwell Unknownword")
	if !reflect.DeepEqual(vec, again) {
		t.Errorf("unknown terms changed vector: %v vs %v", vec, again)
	}

	zero := v.Transform("completely unseen")
	for i, x := range zero {
		if x != 0 {
			t.Errorf("zero[%d] = %v, want 0", i, x)
		}
	}
}

func TestNewTfidfVectorizer(t *testing.T) {
	if _, err := NewTfidfVectorizer([]string{"a", "b"}, []float64{1}); !errors.Is(err, core.ErrModelCorrupt) {
		t.Errorf("NewTfidfVectorizer() error = %v, want ErrModelCorrupt", err)
	}

	fitted := &TfidfVectorizer{}
	if err := fitted.Fit([]string{"Novel Fiction Orwell", "Reference History Gibbon"}); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	restored, err := NewTfidfVectorizer(fitted.Vocabulary, fitted.IDF)
	if err != nil {
		t.Fatalf("NewTfidfVectorizer() error = %v", err)
	}
	doc := "Reference History Gibbon"
	if !reflect.DeepEqual(fitted.Transform(doc), restored.Transform(doc)) {
		t.Errorf("restored vectorizer transforms differently")
	}
}
