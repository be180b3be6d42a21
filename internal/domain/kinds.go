package domain

import (
	"strings"

	"lms-migrate/internal/errors"
)

// Kind identifies a migratable entity type. The same values name the source
// object types and the ID map sub-maps.
type Kind string

const (
	KindCourse      Kind = "course"
	KindUnit        Kind = "unit"
	KindQuiz        Kind = "quiz"
	KindQuestion    Kind = "question"
	KindAssignment  Kind = "assignment"
	KindCertificate Kind = "certificate"
	KindMedia       Kind = "media"

	// Objects the engines read but never migrate.
	KindProduct    Kind = "product"
	KindAttachment Kind = "attachment"
)

// ContentKinds are the kinds that carry a ContentNode, in import order.
var ContentKinds = []Kind{KindCourse, KindUnit, KindQuiz, KindQuestion, KindAssignment, KindCertificate}

// OrphanKinds are the kinds the orphan classifier reports on, in import order.
var OrphanKinds = []Kind{KindUnit, KindQuiz, KindAssignment, KindCertificate}

var kindAliases = map[string]Kind{
	"courses":      KindCourse,
	"units":        KindUnit,
	"lesson":       KindUnit,
	"lessons":      KindUnit,
	"quizzes":      KindQuiz,
	"questions":    KindQuestion,
	"assignments":  KindAssignment,
	"certificates": KindCertificate,
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindCourse, KindUnit, KindQuiz, KindQuestion, KindAssignment, KindCertificate, KindMedia:
		return k, nil
	}
	if alias, ok := kindAliases[string(k)]; ok {
		return alias, nil
	}
	return "", errors.Newf("unknown entity kind %q", s)
}

// ParseKinds parses a comma separated kind list. "all" expands to every content kind.
func ParseKinds(s string) ([]Kind, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return append([]Kind(nil), ContentKinds...), nil
	}
	var out []Kind
	seen := map[Kind]bool{}
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := ParseKind(part)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out, nil
}

// Status is the publication status of a content object.
type Status string

const (
	StatusPublish Status = "publish"
	StatusDraft   Status = "draft"
	StatusPending Status = "pending"
	StatusPrivate Status = "private"
	StatusFuture  Status = "future"
	StatusTrash   Status = "trash"

	// StatusInherit is only carried by attachments, which follow their parent.
	StatusInherit Status = "inherit"
)

// LiveStatuses are all statuses except trash.
var LiveStatuses = []Status{StatusPublish, StatusDraft, StatusPending, StatusPrivate, StatusFuture}

func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPublish, StatusDraft, StatusPending, StatusPrivate, StatusFuture, StatusTrash:
		return st, true
	}
	return "", false
}

func (s Status) Live() bool {
	return s != "" && s != StatusTrash
}

// ExportMode is the export-completeness policy for orphans.
type ExportMode string

const (
	ModeStrict          ExportMode = "strict"
	ModeDiscoverRelated ExportMode = "discover_related"
	ModeDiscoverAll     ExportMode = "discover_all"
)

func ParseExportMode(s string) (ExportMode, error) {
	m := ExportMode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeStrict, ModeDiscoverRelated, ModeDiscoverAll:
		return m, nil
	case "":
		return ModeStrict, nil
	}
	return "", errors.Newf("unknown export mode %q (want strict, discover_related or discover_all)", s)
}

// OrphanReason explains why an entity was classified as orphaned.
type OrphanReason string

const (
	ReasonNoCourseLink         OrphanReason = "no_course_link"
	ReasonNotInCurriculum      OrphanReason = "not_in_curriculum"
	ReasonMissingParentDeleted OrphanReason = "missing_parent_deleted"
	ReasonIDNotFound           OrphanReason = "id_not_found"
)

// AccessType is the normalized access classification of a course.
type AccessType string

const (
	AccessFree      AccessType = "free"
	AccessPaid      AccessType = "paid"
	AccessSubscribe AccessType = "subscribe"
	AccessClosed    AccessType = "closed"
	AccessLead      AccessType = "lead"
)

type Visibility string

const (
	VisibilityVisible Visibility = "visible"
	VisibilityHidden  Visibility = "hidden"
)
