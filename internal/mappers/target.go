package mappers

import (
	"fmt"
	"strconv"
	"strings"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/store"
)

var targetTypes = map[domain.Kind]string{
	domain.KindCourse:      store.TargetCourse,
	domain.KindUnit:        store.TargetLesson,
	domain.KindQuiz:        store.TargetQuiz,
	domain.KindQuestion:    store.TargetQuestion,
	domain.KindAssignment:  store.TargetAssignment,
	domain.KindCertificate: store.TargetCertificate,
	domain.KindMedia:       store.TargetAttachment,
}

// TargetType returns the target object type a kind is imported as.
func TargetType(k domain.Kind) string {
	return targetTypes[k]
}

// Marker is the _migrated_from value written on every imported object.
func Marker(k domain.Kind, oldID int64) string {
	return fmt.Sprintf("%s:%d", k, oldID)
}

// ParseMarker splits a marker written by Marker.
func ParseMarker(s string) (domain.Kind, int64, bool) {
	kind, id, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return "", 0, false
	}
	k, err := domain.ParseKind(kind)
	if err != nil {
		return "", 0, false
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return "", 0, false
	}
	return k, n, true
}

func fields(k domain.Kind, b domain.Base) store.Fields {
	return store.Fields{
		Title:  b.Title,
		Body:   b.Body,
		Status: pickStatus(b.Status),
		Slug:   b.Slug,
		Meta:   map[string]any{store.MetaMigratedFrom: Marker(k, b.OldID)},
	}
}

func CourseToTarget(c domain.Course) store.Fields {
	f := fields(domain.KindCourse, c.Base)
	f.Meta[store.MetaTargetAccess] = string(pickAccess(c.AccessTypeFinal, c.AccessType))
	if c.Duration != "" {
		f.Meta[store.MetaDuration] = c.Duration
		f.Meta[store.MetaDurationUnit] = c.DurationUnit
	}
	if c.Button != nil {
		f.Meta[store.MetaButtonURL] = c.Button.URL
		f.Meta[store.MetaButtonLabel] = c.Button.Label
	}
	return f
}

// UnitToTarget maps a unit to a lesson. courseNewID is 0 for orphans
// without a resolved course.
func UnitToTarget(u domain.Unit, courseNewID int64, position int) store.Fields {
	f := fields(domain.KindUnit, u.Base)
	f.ParentID = courseNewID
	f.MenuOrder = position
	f.Meta[store.MetaTargetCourseID] = courseNewID
	f.Meta[store.MetaTargetPosition] = position
	return f
}

func QuizToTarget(q domain.Quiz, courseNewID int64, position int) store.Fields {
	f := fields(domain.KindQuiz, q.Base)
	f.ParentID = courseNewID
	f.MenuOrder = position
	f.Meta[store.MetaTargetCourseID] = courseNewID
	f.Meta[store.MetaTargetPosition] = position
	if q.PassingGrade != "" {
		f.Meta[store.MetaPassingGrade] = q.PassingGrade
	}
	return f
}

func QuestionToTarget(q domain.Question, quizNewID int64, position int) store.Fields {
	f := fields(domain.KindQuestion, q.Base)
	f.ParentID = quizNewID
	f.MenuOrder = position
	if q.QuestionType != "" {
		f.Meta[store.MetaQuestionType] = q.QuestionType
	}
	if len(q.Answers) > 0 {
		f.Meta[store.MetaAnswers] = string(q.Answers)
	}
	return f
}

// AssignmentToTarget attaches an assignment to its lesson when one is
// resolved, else to the course.
func AssignmentToTarget(a domain.Assignment, lessonNewID, courseNewID int64) store.Fields {
	f := fields(domain.KindAssignment, a.Base)
	f.ParentID = lessonNewID
	if lessonNewID == 0 {
		f.ParentID = courseNewID
	}
	if lessonNewID != 0 {
		f.Meta[store.MetaTargetLessonID] = lessonNewID
	}
	f.Meta[store.MetaTargetCourseID] = courseNewID
	return f
}

func CertificateToTarget(c domain.Certificate, courseNewID int64) store.Fields {
	f := fields(domain.KindCertificate, c.Base)
	f.ParentID = courseNewID
	f.Meta[store.MetaTargetCourseID] = courseNewID
	return f
}

func MediaToTarget(m domain.MediaRef, parentNewID int64, localPath string) store.Fields {
	title := m.Title
	if title == "" {
		title = pickTitle(m.URL)
	}
	return store.Fields{
		Title:    title,
		Status:   domain.StatusInherit,
		ParentID: parentNewID,
		GUID:     pickGUID(localPath, m.URL),
		Meta:     map[string]any{store.MetaMigratedFrom: Marker(domain.KindMedia, m.OldID)},
	}
}

func pickStatus(s domain.Status) domain.Status {
	if s == "" || s == domain.StatusTrash {
		return domain.StatusDraft
	}
	return s
}

func pickAccess(final, raw domain.AccessType) domain.AccessType {
	if final != "" {
		return final
	}
	if raw != "" {
		return raw
	}
	return domain.AccessFree
}

func pickGUID(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func pickTitle(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		url = url[i+1:]
	}
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	return url
}
