package model

import "time"

type WorkshopStatus string

const (
	WorkshopStatusDraft     WorkshopStatus = "draft"
	WorkshopStatusPublished WorkshopStatus = "published"
	WorkshopStatusOngoing   WorkshopStatus = "ongoing"
	WorkshopStatusCompleted WorkshopStatus = "completed"
	WorkshopStatusCancelled WorkshopStatus = "cancelled"
)

type MeetingType string

const (
	MeetingTypeGoogleMeet MeetingType = "google_meet"
	MeetingTypeTeams      MeetingType = "teams"
)

const DefaultTimezone = "America/Sao_Paulo"

var (
	WorkshopCategories   = []string{"data_analysis", "data_science", "bi", "data_engineering", "visualization", "other"}
	WorkshopDifficulties = []string{"beginner", "intermediate", "advanced"}
)

type Workshop struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Category           string   `json:"category"`
	Difficulty         string   `json:"difficulty"`
	Duration           int      `json:"duration"`
	MaxParticipants    int      `json:"maxParticipants"`
	Prerequisites      []string `json:"prerequisites"`
	LearningObjectives []string `json:"learningObjectives"`
	Tags               []string `json:"tags"`

	CreatorID   string `json:"creatorId"`
	CreatorName string `json:"creatorName"`

	ScheduledDate time.Time `json:"scheduledDate"`
	StartTime     string    `json:"startTime"`
	EndTime       string    `json:"endTime"`
	Timezone      string    `json:"timezone"`

	MeetingType MeetingType `json:"meetingType"`
	MeetingLink string      `json:"meetingLink,omitempty"`
	MeetingID   string      `json:"meetingId,omitempty"`

	Status         WorkshopStatus `json:"status"`
	EnrolledCount  int            `json:"enrolledCount"`
	CompletedCount int            `json:"completedCount"`

	AutoGenerateCertificate bool          `json:"autoGenerateCertificate"`
	SendReminders           bool          `json:"sendReminders"`
	AllowWaitlist           bool          `json:"allowWaitlist"`
	RemindersSent           RemindersSent `json:"remindersSent"`

	PublishedAt        *time.Time `json:"publishedAt,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`
	CancellationReason string     `json:"cancellationReason,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

type RemindersSent struct {
	Day  bool `json:"day"`
	Hour bool `json:"hour"`
}

func (w Workshop) RemainingSpots() int {
	return max(0, w.MaxParticipants-w.EnrolledCount)
}

func (w Workshop) HasSeat() bool {
	return w.EnrolledCount < w.MaxParticipants
}

// Editable reports whether the creator may still change the workshop.
func (w Workshop) Editable() bool {
	switch w.Status {
	case WorkshopStatusOngoing, WorkshopStatusCompleted, WorkshopStatusCancelled:
		return false
	}
	return true
}

type EnrollmentStatus string

const (
	EnrollmentEnrolled   EnrollmentStatus = "enrolled"
	EnrollmentWaitlisted EnrollmentStatus = "waitlisted"
	EnrollmentAttended   EnrollmentStatus = "attended"
	EnrollmentCompleted  EnrollmentStatus = "completed"
	EnrollmentNoShow     EnrollmentStatus = "no_show"
	EnrollmentCancelled  EnrollmentStatus = "cancelled"
)

var EnrollmentStatuses = []EnrollmentStatus{
	EnrollmentEnrolled, EnrollmentWaitlisted, EnrollmentAttended,
	EnrollmentCompleted, EnrollmentNoShow, EnrollmentCancelled,
}

// Active statuses block a new enrollment for the same pair.
func (s EnrollmentStatus) Active() bool {
	switch s {
	case EnrollmentEnrolled, EnrollmentWaitlisted, EnrollmentAttended, EnrollmentCompleted:
		return true
	}
	return false
}

type Feedback struct {
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment"`
	SubmittedAt time.Time `json:"submittedAt"`
}

type Enrollment struct {
	ID                string            `json:"id"`
	WorkshopID        string            `json:"workshopId"`
	UserID            string            `json:"userId"`
	UserName          string            `json:"userName"`
	UserEmail         string            `json:"userEmail"`
	Status            EnrollmentStatus  `json:"status"`
	EnrolledAt        time.Time         `json:"enrolledAt"`
	CompletedAt       *time.Time        `json:"completedAt,omitempty"`
	CancelledAt       *time.Time        `json:"cancelledAt,omitempty"`
	PreviousStatus    *EnrollmentStatus `json:"previousStatus,omitempty"`
	ReEnrolledAt      *time.Time        `json:"reEnrolledAt,omitempty"`
	PromotedAt        *time.Time        `json:"promotedAt,omitempty"`
	CertificateIssued bool              `json:"certificateIssued"`
	CertificateID     string            `json:"certificateId,omitempty"`
	Feedback          *Feedback         `json:"feedback,omitempty"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// EnrollmentID is the key of the single enrollment a user may hold for a workshop.
func EnrollmentID(workshopID, userID string) string {
	return workshopID + "_" + userID
}

type Certificate struct {
	ID                string     `json:"id"`
	WorkshopID        string     `json:"workshopId"`
	WorkshopTitle     string     `json:"workshopTitle"`
	UserID            string     `json:"userId"`
	UserName          string     `json:"userName"`
	CompletedAt       time.Time  `json:"completedAt"`
	IssuedAt          time.Time  `json:"issuedAt"`
	CertificateURL    string     `json:"certificateUrl"`
	StorageKey        string     `json:"storageKey,omitempty"`
	VerificationCode  string     `json:"verificationCode"`
	ValidUntil        *time.Time `json:"validUntil,omitempty"`
	RegeneratedAt     *time.Time `json:"regeneratedAt,omitempty"`
	RegenerationCount int        `json:"regenerationCount"`
}

// CertificateID keys the one certificate a user can hold for a workshop.
func CertificateID(workshopID, userID string) string {
	return "cert_" + workshopID + "_" + userID
}
