package models

// Subject is a school subject from the fixed curriculum list.
type Subject string

const (
	SubjectLanguage              Subject = "Language and Literature"
	SubjectMathematics           Subject = "Mathematics"
	SubjectScience               Subject = "Science"
	SubjectScienceForCitizenship Subject = "Science for Citizenship"
	SubjectHistory               Subject = "History"
	SubjectCivicEducation        Subject = "Civic Education"
	SubjectPhilosophy            Subject = "Philosophy"
	SubjectEnglish               Subject = "English"
	SubjectLogicalThinking       Subject = "Logical Thinking"
	SubjectReadingCompetence     Subject = "Reading Competence"
	SubjectArts                  Subject = "Arts"
	SubjectMusic                 Subject = "Music"
	SubjectPhysicalEducation     Subject = "Physical Education"
	SubjectEntrepreneurship      Subject = "Entrepreneurship"
	SubjectAutomotiveMechanics   Subject = "Automotive Mechanics"
	SubjectIndustrialMechanics   Subject = "Industrial Mechanics"
	SubjectTechnology            Subject = "Technology"
)

var subjects = []Subject{
	SubjectLanguage,
	SubjectMathematics,
	SubjectScience,
	SubjectScienceForCitizenship,
	SubjectHistory,
	SubjectCivicEducation,
	SubjectPhilosophy,
	SubjectEnglish,
	SubjectLogicalThinking,
	SubjectReadingCompetence,
	SubjectArts,
	SubjectMusic,
	SubjectPhysicalEducation,
	SubjectEntrepreneurship,
	SubjectAutomotiveMechanics,
	SubjectIndustrialMechanics,
	SubjectTechnology,
}

// Subjects returns the curriculum subjects in display order.
func Subjects() []Subject {
	out := make([]Subject, len(subjects))
	copy(out, subjects)
	return out
}

// IsValid reports whether s is in the curriculum list.
func (s Subject) IsValid() bool {
	for _, v := range subjects {
		if v == s {
			return true
		}
	}
	return false
}

// GradeLevel is a secondary-school grade.
type GradeLevel string

const (
	Grade1 GradeLevel = "1º MEDIO"
	Grade2 GradeLevel = "2º MEDIO"
	Grade3 GradeLevel = "3º MEDIO"
	Grade4 GradeLevel = "4º MEDIO"
)

var gradeLevels = []GradeLevel{Grade1, Grade2, Grade3, Grade4}

// GradeLevels returns the grades in ascending order.
func GradeLevels() []GradeLevel {
	out := make([]GradeLevel, len(gradeLevels))
	copy(out, gradeLevels)
	return out
}

// IsValid reports whether g is one of the four grades.
func (g GradeLevel) IsValid() bool {
	for _, v := range gradeLevels {
		if v == g {
			return true
		}
	}
	return false
}
