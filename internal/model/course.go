package model

import "time"

// Course is a published course as listed by GET /courses.
type Course struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Instructor  User      `json:"instructor"`
	Enrolled    int       `json:"enrolledCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Lecture is a single video lecture within a course.
type Lecture struct {
	ID        string    `json:"_id"`
	CourseID  string    `json:"courseId"`
	Title     string    `json:"title"`
	VideoURL  string    `json:"videoUrl"`
	Duration  int       `json:"duration"` // seconds
	CreatedAt time.Time `json:"createdAt"`
}

// Assignment is a graded task attached to a course.
type Assignment struct {
	ID          string    `json:"_id"`
	CourseID    string    `json:"courseId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"dueDate"`
}

// Submission is one student upload against an assignment.
// Grading fields are filled in by the backend once an instructor reviews it.
type Submission struct {
	ID           string    `json:"_id"`
	AssignmentID string    `json:"assignmentId"`
	StudentID    string    `json:"studentId"`
	FileURL      string    `json:"fileUrl"`
	Grade        *float64  `json:"grade"` // nil until graded
	Feedback     string    `json:"feedback"`
	SubmittedAt  time.Time `json:"submittedAt"`
}
