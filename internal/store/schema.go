package store

// Source object types.
const (
	TypeCourse      = "course"
	TypeUnit        = "unit"
	TypeQuiz        = "quiz"
	TypeQuestion    = "question"
	TypeAssignment  = "assignment"
	TypeCertificate = "certificate"
	TypeProduct     = "product"
	TypeAttachment  = "attachment"
)

// Target object types.
const (
	TargetCourse      = "lms_course"
	TargetLesson      = "lms_lesson"
	TargetQuiz        = "lms_quiz"
	TargetQuestion    = "lms_question"
	TargetAssignment  = "lms_assignment"
	TargetCertificate = "lms_certificate"
	TargetAttachment  = "attachment"
)

// Taxonomies.
const (
	TaxonomyCategory = "course_category"
	TaxonomyTag      = "course_tag"
)

// Source relationship and course metadata keys.
const (
	MetaCurriculum        = "curriculum"
	MetaUnitAssignments   = "lesson_assignments"
	MetaQuizCourses       = "quiz_courses"
	MetaQuizQuestions     = "questions"
	MetaCourseCertificate = "course_certificate"
	MetaCourseProducts    = "course_products"
	MetaProductCourses    = "related_courses"

	MetaFreeFlag         = "is_free"
	MetaSubscriptionOnly = "subscription_only"
	MetaMembershipPlans  = "membership_plans"
	MetaRequiresApproval = "requires_approval"
	MetaCTAURL           = "cta_url"
	MetaCTALabel         = "cta_label"

	MetaDuration     = "duration"
	MetaDurationUnit = "duration_unit"
	MetaThumbnailID  = "thumbnail_id"
	MetaGallery      = "gallery"
	MetaEnrollments  = "enrollments"

	MetaPassingGrade = "passing_grade"
	MetaQuestionType = "question_type"
	MetaAnswers      = "answers"
)

// Product metadata keys.
const (
	MetaPrice        = "_price"
	MetaRegularPrice = "_regular_price"
	MetaSalePrice    = "_sale_price"
	MetaSKU          = "_sku"
	MetaVisibility   = "_visibility"
)

// Target metadata keys.
const (
	// MetaMigratedFrom marks every object the importer created, as "<kind>:<old id>".
	MetaMigratedFrom = "_migrated_from"

	MetaTargetCourseID  = "course_id"
	MetaTargetLessonID  = "lesson_id"
	MetaTargetPosition  = "position"
	MetaTargetAccess    = "access_type"
	MetaTargetProductID = "product_id"
	MetaButtonURL       = "button_url"
	MetaButtonLabel     = "button_label"
	MetaTargetThumbnail = "_thumbnail_id"
)
