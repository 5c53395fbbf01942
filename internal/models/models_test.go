package models

import (
	"errors"
	"strings"
	"testing"
)

func TestBloomLevels_order(t *testing.T) {
	want := []BloomLevel{Remember, Understand, Apply, Analyze, Evaluate, Create}
	got := BloomLevels()
	if len(got) != len(want) {
		t.Fatalf("got %d levels, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("level %d: got %s, want %s", i, got[i], want[i])
		}
		if got[i].Rank() != i {
			t.Errorf("%s rank = %d, want %d", got[i], got[i].Rank(), i)
		}
		if got[i].Color() == "" {
			t.Errorf("%s has no color", got[i])
		}
	}
	got[0] = "mutated"
	if BloomLevels()[0] != Remember {
		t.Error("BloomLevels should return a copy")
	}
}

func TestBloomLevel_IsValid(t *testing.T) {
	tests := []struct {
		level BloomLevel
		want  bool
	}{
		{Remember, true},
		{Create, true},
		{"remember", false},
		{"Synthesize", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.level.IsValid(); got != tt.want {
			t.Errorf("%q.IsValid() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestCurriculum(t *testing.T) {
	if n := len(Subjects()); n != 17 {
		t.Errorf("got %d subjects, want 17", n)
	}
	if !SubjectHistory.IsValid() || Subject("Astrology").IsValid() {
		t.Error("subject validation mismatch")
	}
	if n := len(GradeLevels()); n != 4 {
		t.Errorf("got %d grades, want 4", n)
	}
	if !Grade3.IsValid() || GradeLevel("5º MEDIO").IsValid() {
		t.Error("grade validation mismatch")
	}
}

func TestAnalysisInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		input   AnalysisInput
		wantErr bool
	}{
		{"valid", AnalysisInput{Title: "Unit 1 quiz", Subject: SubjectMathematics, GradeLevel: Grade1}, false},
		{"empty text is accepted", AnalysisInput{Title: "T", Subject: SubjectMathematics, GradeLevel: Grade1, Text: ""}, false},
		{"blank title", AnalysisInput{Title: "   ", Subject: SubjectMathematics, GradeLevel: Grade1}, true},
		{"long title", AnalysisInput{Title: strings.Repeat("á", MaxTitleLength+1), Subject: SubjectMathematics, GradeLevel: Grade1}, true},
		{"title at limit", AnalysisInput{Title: strings.Repeat("á", MaxTitleLength), Subject: SubjectMathematics, GradeLevel: Grade1}, false},
		{"unknown subject", AnalysisInput{Title: "T", Subject: "Alchemy", GradeLevel: Grade1}, true},
		{"missing grade", AnalysisInput{Title: "T", Subject: SubjectMathematics}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error %v should wrap ErrInvalidInput", err)
			}
		})
	}
}

func TestAnalysisInput_ValidateTrimsTitle(t *testing.T) {
	in := AnalysisInput{Title: "  Midterm  ", Subject: SubjectArts, GradeLevel: Grade2}
	if err := in.Validate(); err != nil {
		t.Fatal(err)
	}
	if in.Title != "Midterm" {
		t.Errorf("title = %q, want trimmed", in.Title)
	}
}
