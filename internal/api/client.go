// Package api is the typed REST client for the ShikshaSetu backend.
//
// Every request carries the session's bearer token (see transport.go).
// Failure propagation follows one policy: a 401/403 from the backend
// means the credential is no longer good, so the client clears the
// session — once — and returns an authentication error. Every other
// failure stays local to the call that made it and never touches session
// state.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/shikshasetu/shiksha-client/internal/apperror"
	"github.com/shikshasetu/shiksha-client/internal/model"
	"github.com/shikshasetu/shiksha-client/internal/session"
)

// Client talks to the backend REST API.
type Client struct {
	baseURL  string
	http     *http.Client
	sessions *session.Store
	logger   *slog.Logger
}

// New creates a Client for the backend at baseURL (including the /api
// suffix). The session store supplies the bearer token and absorbs
// authorization failures.
func New(baseURL string, sessions *session.Store, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		sessions: sessions,
		logger:   logger,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &transport{
				base:     http.DefaultTransport,
				sessions: sessions,
				logger:   logger,
			},
		},
	}
}

// errorResponse is the backend's standard error body:
// {"error":"not_found","message":"..."}.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do performs one request and decodes a JSON response into out (out may
// be nil for calls with no interesting body).
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("api: building %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, apperror.Unavailable(err.Error()))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp, method, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("api: decoding %s %s response: %w", method, path, apperror.Unavailable(err.Error()))
		}
	}
	return nil
}

// decodeError maps an HTTP failure status onto the apperror taxonomy.
//
// 401 and 403 are the one global case: the backend no longer accepts the
// credential, so the session is cleared here, regardless of which view
// triggered the call. The caller sees an ErrUnauthenticated/ErrForbidden
// and routes to login.
func (c *Client) decodeError(resp *http.Response, method, path string) error {
	var body errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body) // best effort; body may be empty
	msg := body.Message
	if msg == "" {
		msg = resp.Status
	}

	var appErr *apperror.AppError
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		c.sessions.Clear()
		c.logger.Warn("credential rejected by backend, signed out")
		appErr = apperror.Unauthenticated(msg)
	case http.StatusForbidden:
		c.sessions.Clear()
		c.logger.Warn("credential no longer authorized, signed out")
		appErr = apperror.Forbidden(msg)
	case http.StatusNotFound:
		appErr = apperror.NotFound(msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		appErr = apperror.ValidationFailed("", msg)
	default:
		appErr = apperror.Unavailable(msg)
	}

	return fmt.Errorf("api: %s %s: %w", method, path, appErr)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("api: encoding %s request: %w", path, err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(raw), "application/json", out)
}

// AuthResult bundles the issued token with the signed-in user so the
// caller can seed the session store in one step.
type AuthResult struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// Login exchanges email/password credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	var result AuthResult
	payload := map[string]string{"email": email, "password": password}
	if err := c.postJSON(ctx, "/auth/login", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Signup registers a new account. The backend accepts student and
// instructor self-signup; admin accounts are provisioned out of band.
func (c *Client) Signup(ctx context.Context, name, email, password string, role model.Role) (*AuthResult, error) {
	if role != model.RoleStudent && role != model.RoleInstructor {
		return nil, apperror.ValidationFailed("role", fmt.Sprintf("cannot sign up with role %q", role))
	}

	var result AuthResult
	payload := map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
		"role":     string(role),
	}
	if err := c.postJSON(ctx, "/auth/signup", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Me fetches the full profile behind the current token.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var out struct {
		User model.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, "", &out); err != nil {
		return model.User{}, err
	}
	return out.User, nil
}

// Courses lists all published courses.
func (c *Client) Courses(ctx context.Context) ([]model.Course, error) {
	var out struct {
		Courses []model.Course `json:"courses"`
	}
	if err := c.do(ctx, http.MethodGet, "/courses", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Courses, nil
}

// Course fetches one course by id.
func (c *Client) Course(ctx context.Context, id string) (model.Course, error) {
	if id == "" {
		return model.Course{}, apperror.ValidationFailed("id", "course id is required")
	}
	var out struct {
		Course model.Course `json:"course"`
	}
	if err := c.do(ctx, http.MethodGet, "/courses/"+id, nil, "", &out); err != nil {
		return model.Course{}, err
	}
	return out.Course, nil
}

// Enroll enrolls the signed-in student in a course.
func (c *Client) Enroll(ctx context.Context, courseID string) error {
	if courseID == "" {
		return apperror.ValidationFailed("courseId", "course id is required")
	}
	return c.do(ctx, http.MethodPost, "/courses/"+courseID+"/enroll", nil, "", nil)
}

// CreateCourse publishes a new course under the signed-in instructor.
func (c *Client) CreateCourse(ctx context.Context, title, description, category string) (model.Course, error) {
	if title == "" {
		return model.Course{}, apperror.ValidationFailed("title", "course title is required")
	}

	var out struct {
		Course model.Course `json:"course"`
	}
	payload := map[string]string{
		"title":       title,
		"description": description,
		"category":    category,
	}
	if err := c.postJSON(ctx, "/courses", payload, &out); err != nil {
		return model.Course{}, err
	}
	return out.Course, nil
}

// Lectures lists the lectures of a course.
func (c *Client) Lectures(ctx context.Context, courseID string) ([]model.Lecture, error) {
	var out struct {
		Lectures []model.Lecture `json:"lectures"`
	}
	if err := c.do(ctx, http.MethodGet, "/courses/"+courseID+"/lectures", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Lectures, nil
}

// AddLecture uploads a lecture video to a course (multipart: the title
// as a form field, the video under "video").
func (c *Client) AddLecture(ctx context.Context, courseID, title, filename string, video io.Reader) (model.Lecture, error) {
	if courseID == "" {
		return model.Lecture{}, apperror.ValidationFailed("courseId", "course id is required")
	}
	if title == "" {
		return model.Lecture{}, apperror.ValidationFailed("title", "lecture title is required")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("title", title); err != nil {
		return model.Lecture{}, fmt.Errorf("api: preparing upload: %w", err)
	}
	part, err := mw.CreateFormFile("video", filename)
	if err != nil {
		return model.Lecture{}, fmt.Errorf("api: preparing upload: %w", err)
	}
	if _, err := io.Copy(part, video); err != nil {
		return model.Lecture{}, fmt.Errorf("api: reading upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return model.Lecture{}, fmt.Errorf("api: finalizing upload: %w", err)
	}

	var out struct {
		Lecture model.Lecture `json:"lecture"`
	}
	path := "/courses/" + courseID + "/lectures"
	if err := c.do(ctx, http.MethodPost, path, &buf, mw.FormDataContentType(), &out); err != nil {
		return model.Lecture{}, err
	}
	return out.Lecture, nil
}

// Assignments lists the assignments of a course.
func (c *Client) Assignments(ctx context.Context, courseID string) ([]model.Assignment, error) {
	var out struct {
		Assignments []model.Assignment `json:"assignments"`
	}
	if err := c.do(ctx, http.MethodGet, "/courses/"+courseID+"/assignments", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Assignments, nil
}

// AddAssignment creates an assignment on a course.
func (c *Client) AddAssignment(ctx context.Context, courseID, title, description string, dueDate time.Time) (model.Assignment, error) {
	if courseID == "" {
		return model.Assignment{}, apperror.ValidationFailed("courseId", "course id is required")
	}
	if title == "" {
		return model.Assignment{}, apperror.ValidationFailed("title", "assignment title is required")
	}

	var out struct {
		Assignment model.Assignment `json:"assignment"`
	}
	payload := map[string]any{
		"title":       title,
		"description": description,
		"dueDate":     dueDate,
	}
	if err := c.postJSON(ctx, "/courses/"+courseID+"/assignments", payload, &out); err != nil {
		return model.Assignment{}, err
	}
	return out.Assignment, nil
}

// SubmitAssignment uploads a file as the student's submission for an
// assignment (multipart, field name "file").
func (c *Client) SubmitAssignment(ctx context.Context, courseID, assignmentID, filename string, file io.Reader) (model.Submission, error) {
	if courseID == "" || assignmentID == "" {
		return model.Submission{}, apperror.ValidationFailed("id", "course and assignment ids are required")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return model.Submission{}, fmt.Errorf("api: preparing upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return model.Submission{}, fmt.Errorf("api: reading upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return model.Submission{}, fmt.Errorf("api: finalizing upload: %w", err)
	}

	path := "/courses/" + courseID + "/assignments/" + assignmentID + "/submissions"
	var out struct {
		Submission model.Submission `json:"submission"`
	}
	if err := c.do(ctx, http.MethodPost, path, &buf, mw.FormDataContentType(), &out); err != nil {
		return model.Submission{}, err
	}
	return out.Submission, nil
}

// ChatHistory fetches the ordered message history of a course's chat.
//
// An empty history is a valid, non-error result: the returned slice is
// empty and the error nil. A failed fetch returns a nil slice and an
// error — callers render these two outcomes differently.
func (c *Client) ChatHistory(ctx context.Context, courseID string) ([]model.Message, error) {
	if courseID == "" {
		return nil, apperror.ValidationFailed("courseId", "course id is required")
	}
	var out struct {
		Messages []model.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/courses/"+courseID+"/chat", nil, "", &out); err != nil {
		return nil, err
	}
	if out.Messages == nil {
		out.Messages = []model.Message{}
	}
	return out.Messages, nil
}

// AdminUsers lists every account on the platform (admin only).
func (c *Client) AdminUsers(ctx context.Context) ([]model.User, error) {
	var out struct {
		Users []model.User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/users", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}
