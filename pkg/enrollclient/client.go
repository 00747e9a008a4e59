// Package enrollclient is a typed HTTP client for the enrollment API.
package enrollclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

const defaultTimeout = 15 * time.Second

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// RemoteError is a non-2xx answer from the API.
type RemoteError struct {
	Status  int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// ProofFile is the binary part of an enrollment submission.
type ProofFile struct {
	Filename  string
	MediaType string
	Content   []byte
}

// Submission carries the multipart fields of POST /enrollments.
type Submission struct {
	CourseID       string
	UserID         string
	Name           string
	Email          string
	Phone          string
	PaymentMethod  models.PaymentMethod
	Amount         float64
	Status         models.EnrollmentStatus
	PaymentDetails models.PaymentDetails
	Proof          ProofFile
}

// Client calls the enrollment API with a bearer token.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client. A non-positive timeout falls back to 15s.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Me returns the identity behind the configured token.
func (c *Client) Me(ctx context.Context) (*models.UserInfo, error) {
	var out models.UserInfo
	if err := c.get(ctx, "/auth/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCourse fetches one catalog entry.
func (c *Client) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	var out models.Course
	if err := c.get(ctx, "/courses/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMyEnrollments returns every record owned by the caller.
func (c *Client) ListMyEnrollments(ctx context.Context) ([]models.EnrollmentRecord, error) {
	var out []models.EnrollmentRecord
	if err := c.get(ctx, "/enrollments/me", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateEnrollment submits the multipart enrollment request.
func (c *Client) CreateEnrollment(ctx context.Context, sub Submission) (*models.EnrollmentRecord, error) {
	body, contentType, err := encodeSubmission(sub)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/enrollments", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	var out models.EnrollmentRecord
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func encodeSubmission(sub Submission) (*bytes.Buffer, string, error) {
	details, err := json.Marshal(sub.PaymentDetails)
	if err != nil {
		return nil, "", fmt.Errorf("encode payment details: %w", err)
	}

	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	fields := [][2]string{
		{"name", sub.Name},
		{"email", sub.Email},
		{"phone", sub.Phone},
		{"course_id", sub.CourseID},
		{"user_id", sub.UserID},
		{"payment_method", string(sub.PaymentMethod)},
		{"amount", strconv.FormatFloat(sub.Amount, 'f', -1, 64)},
		{"status", string(sub.Status)},
		{"payment_details", string(details)},
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="proof"; filename="%s"`, quoteEscaper.Replace(sub.Proof.Filename)))
	header.Set("Content-Type", sub.Proof.MediaType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create proof part: %w", err)
	}
	if _, err := part.Write(sub.Proof.Content); err != nil {
		return nil, "", fmt.Errorf("write proof part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf, writer.FormDataContentType(), nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("enrollment api request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read enrollment api response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return parseRemoteError(resp, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode enrollment api response: %w", err)
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode enrollment api data: %w", err)
	}
	return nil
}

func parseRemoteError(resp *http.Response, raw []byte) *RemoteError {
	remote := &RemoteError{Status: resp.StatusCode}
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil {
		remote.Code = env.Error.Code
		remote.Message = env.Error.Message
		return remote
	}
	remote.Message = strings.TrimSpace(string(raw))
	if remote.Message == "" {
		remote.Message = http.StatusText(resp.StatusCode)
	}
	return remote
}
