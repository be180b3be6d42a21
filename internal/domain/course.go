package domain

import "encoding/json"

// ContentNode is one migratable item. The set of implementations is closed:
// Course, Unit, Quiz, Question, Assignment and Certificate.
type ContentNode interface {
	Kind() Kind
	Header() *Base
	sealed()
}

// Base holds the attributes every content node shares.
// OldID is the source identity; it is stable and never reused.
type Base struct {
	OldID       int64  `json:"old_id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	Status      Status `json:"status"`
	Slug        string `json:"slug"`
	ParentOldID int64  `json:"parent_old_id,omitempty"`
}

func (b *Base) Header() *Base { return b }
func (b *Base) sealed()       {}

// Course is the canonical representation of a course inside this service.
// Extraction maps the source schema into it and the importer maps from it.
type Course struct {
	Base
	AccessType      AccessType `json:"access_type"`
	AccessTypeFinal AccessType `json:"access_type_final"`
	Duration        string     `json:"duration,omitempty"`
	DurationUnit    string     `json:"duration_unit,omitempty"`

	Commerce CommerceInfo  `json:"commerce"`
	Button   *CallToAction `json:"button,omitempty"`

	CategoryTerms []Term `json:"category_terms"`
	TagTerms      []Term `json:"tag_terms"`

	Curriculum   []CurriculumItem `json:"curriculum"`
	Units        []Unit           `json:"units"`
	Quizzes      []Quiz           `json:"quizzes"`
	Certificates []Certificate    `json:"certificates"`
	Media        []MediaRef       `json:"media"`

	// Enrollments are carried verbatim; the importer only defers them.
	Enrollments json.RawMessage `json:"enrollments,omitempty"`
}

func (*Course) Kind() Kind { return KindCourse }

type Unit struct {
	Base
	Assignments []Assignment `json:"assignments"`
}

func (*Unit) Kind() Kind { return KindUnit }

type Quiz struct {
	Base
	PassingGrade string     `json:"passing_grade,omitempty"`
	Questions    []Question `json:"questions"`
}

func (*Quiz) Kind() Kind { return KindQuiz }

type Question struct {
	Base
	QuestionType string          `json:"question_type,omitempty"`
	Answers      json.RawMessage `json:"answers,omitempty"`
}

func (*Question) Kind() Kind { return KindQuestion }

type Assignment struct {
	Base
}

func (*Assignment) Kind() Kind { return KindAssignment }

type Certificate struct {
	Base
}

func (*Certificate) Kind() Kind { return KindCertificate }

// CurriculumItem is one actionable entry of a course curriculum.
type CurriculumItem struct {
	Type  Kind  `json:"type"`
	OldID int64 `json:"old_id"`
}

// Term is a taxonomy term attached to a course.
type Term struct {
	ID       int64  `json:"id"`
	Taxonomy string `json:"taxonomy"`
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	ParentID int64  `json:"parent_id,omitempty"`
	Depth    int    `json:"depth"`
}

// MediaRef points at a source attachment. Identity is OldID.
type MediaRef struct {
	OldID int64  `json:"old_id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Role  string `json:"role"` // "thumbnail" or "gallery"
}

// CallToAction is the course button (link + label) shown instead of a buy button.
type CallToAction struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}
