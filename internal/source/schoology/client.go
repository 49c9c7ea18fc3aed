// Package schoology fetches LMS data from the Schoology REST API and maps
// it into the UDM. Auth is two-legged OAuth 1.0 with PLAINTEXT signatures;
// paging follows the links.next URL in each response envelope.
package schoology

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"lms-sync/internal/source"
	"lms-sync/internal/syncdb"
)

const defaultPageSize = 200

// Client talks to one Schoology instance.
type Client struct {
	http     *source.HTTPClient
	baseURL  string
	key      string
	secret   string
	pageSize int
}

// NewClient creates a Schoology client. baseURL is normally
// https://api.schoology.com; tests point it elsewhere.
func NewClient(baseURL, key, secret string, logger *slog.Logger) *Client {
	return &Client{
		http:     source.NewHTTPClient(source.Schoology, logger),
		baseURL:  strings.TrimRight(baseURL, "/"),
		key:      key,
		secret:   secret,
		pageSize: defaultPageSize,
	}
}

// Users lists every user in the instance.
func (c *Client) Users(ctx context.Context) ([]syncdb.Record, error) {
	rows, err := c.fetchList(ctx, "users", "/v1/users", "user")
	return source.ProjectColumns(rows, userColumns), err
}

// Courses lists every course.
func (c *Client) Courses(ctx context.Context) ([]syncdb.Record, error) {
	rows, err := c.fetchList(ctx, "courses", "/v1/courses", "course")
	return source.ProjectColumns(rows, courseColumns), err
}

// Sections lists a course's sections.
func (c *Client) Sections(ctx context.Context, courseID string) ([]syncdb.Record, error) {
	rows, err := c.fetchList(ctx, "sections",
		fmt.Sprintf("/v1/courses/%s/sections", url.PathEscape(courseID)), "section")
	return source.ProjectColumns(rows, sectionColumns), err
}

// Enrollments lists a section's enrollments, stamped with the section id
// the payload does not carry.
func (c *Client) Enrollments(ctx context.Context, sectionID string) ([]syncdb.Record, error) {
	rows, err := c.fetchList(ctx, "enrollments",
		fmt.Sprintf("/v1/sections/%s/enrollments", url.PathEscape(sectionID)), "enrollment")
	if err != nil {
		return nil, err
	}
	rows = source.ProjectColumns(rows, enrollmentColumns)
	for _, r := range rows {
		r["section_id"] = sectionID
	}
	return rows, nil
}

// Assignments lists a section's assignments, stamped with the section id.
func (c *Client) Assignments(ctx context.Context, sectionID string) ([]syncdb.Record, error) {
	rows, err := c.fetchList(ctx, "assignments",
		fmt.Sprintf("/v1/sections/%s/assignments", url.PathEscape(sectionID)), "assignment")
	if err != nil {
		return nil, err
	}
	rows = source.ProjectColumns(rows, assignmentColumns)
	for _, r := range rows {
		r["section_id"] = sectionID
	}
	return rows, nil
}

// Submissions lists the submission revisions for one grade item in one
// section.
func (c *Client) Submissions(ctx context.Context, sectionID, gradeItemID string) ([]syncdb.Record, error) {
	rows, err := c.fetchList(ctx, "submissions",
		fmt.Sprintf("/v1/sections/%s/submissions/%s", url.PathEscape(sectionID), url.PathEscape(gradeItemID)), "revision")
	if err != nil {
		return nil, err
	}
	// The revision payload carries neither section nor grade item; stamp
	// both so the composite key is self-contained.
	rows = source.ProjectColumns(rows, submissionColumns)
	for _, r := range rows {
		r["section_id"] = sectionID
		r["grade_item_id"] = gradeItemID
	}
	return rows, nil
}

// Discussions lists a section's discussions.
func (c *Client) Discussions(ctx context.Context, sectionID string) ([]syncdb.Record, error) {
	rows, err := c.fetchList(ctx, "discussions",
		fmt.Sprintf("/v1/sections/%s/discussions", url.PathEscape(sectionID)), "discussion")
	if err != nil {
		return nil, err
	}
	rows = source.ProjectColumns(rows, discussionColumns)
	for _, r := range rows {
		r["section_id"] = sectionID
	}
	return rows, nil
}

// FinalGrades returns one record per enrollment carrying the section
// final grade. The grades envelope nests them under final_grade, with the
// grade itself inside a period list.
func (c *Client) FinalGrades(ctx context.Context, sectionID string) ([]syncdb.Record, error) {
	body, err := c.get(ctx, "grades",
		c.baseURL+fmt.Sprintf("/v1/sections/%s/grades", url.PathEscape(sectionID)))
	if err != nil {
		return nil, err
	}

	var envelope struct {
		FinalGrade []struct {
			EnrollmentID json.Number `json:"enrollment_id"`
			Period       []struct {
				PeriodID string      `json:"period_id"`
				Grade    json.Number `json:"grade"`
			} `json:"period"`
		} `json:"final_grade"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding grades response: %w", err)
	}

	out := make([]syncdb.Record, 0, len(envelope.FinalGrade))
	for _, fg := range envelope.FinalGrade {
		rec := syncdb.Record{
			"enrollment_id": fg.EnrollmentID.String(),
			"section_id":    sectionID,
			"grade":         "",
		}
		if len(fg.Period) > 0 {
			rec["grade"] = fg.Period[0].Grade.String()
		}
		out = append(out, rec)
	}
	return out, nil
}

// Attendance returns one record per student attendance entry in a
// section. The envelope nests entries three levels deep, by date then
// status code.
func (c *Client) Attendance(ctx context.Context, sectionID string) ([]syncdb.Record, error) {
	body, err := c.get(ctx, "attendance",
		c.baseURL+fmt.Sprintf("/v1/sections/%s/attendance", url.PathEscape(sectionID)))
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Date []struct {
			Date     string `json:"date"`
			Statuses struct {
				Status []struct {
					StatusCode  json.Number `json:"status_code"`
					Attendances struct {
						Attendance []struct {
							EnrollmentID json.Number `json:"enrollment_id"`
							Status       json.Number `json:"status"`
							Comment      string      `json:"comment"`
						} `json:"attendance"`
					} `json:"attendances"`
				} `json:"status"`
			} `json:"statuses"`
		} `json:"date"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding attendance response: %w", err)
	}

	var out []syncdb.Record
	for _, day := range envelope.Date {
		for _, status := range day.Statuses.Status {
			for _, att := range status.Attendances.Attendance {
				out = append(out, syncdb.Record{
					"enrollment_id": att.EnrollmentID.String(),
					"section_id":    sectionID,
					"date":          day.Date,
					"status":        att.Status.String(),
					"comment":       att.Comment,
				})
			}
		}
	}
	return out, nil
}

// fetchList drains a links.next paged endpoint whose records sit under
// listKey in the envelope.
func (c *Client) fetchList(ctx context.Context, op, path, listKey string) ([]syncdb.Record, error) {
	firstURL := fmt.Sprintf("%s%s?limit=%d", c.baseURL, path, c.pageSize)

	fetch := source.FetcherFunc(func(ctx context.Context, token string) (source.Page, error) {
		pageURL := firstURL
		if token != "" {
			pageURL = token
		}

		body, err := c.get(ctx, op, pageURL)
		if err != nil {
			return source.Page{}, err
		}

		var envelope map[string]any
		if err := json.Unmarshal(body, &envelope); err != nil {
			return source.Page{}, fmt.Errorf("decoding %s response: %w", op, err)
		}

		list, _ := envelope[listKey].([]any)
		return source.Page{
			Records:   source.FlattenList(list),
			NextToken: nextLink(envelope),
		}, nil
	})

	return source.FetchAll(ctx, fetch)
}

func (c *Client) get(ctx context.Context, op, pageURL string) ([]byte, error) {
	resp, err := c.http.Do(ctx, op, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", c.authHeader())
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", op, err)
	}
	return body, nil
}

// authHeader builds a two-legged OAuth 1.0 PLAINTEXT header. No token
// means the signature is just the consumer secret and an empty token
// secret.
func (c *Client) authHeader() string {
	return fmt.Sprintf(`OAuth realm="Schoology API", oauth_consumer_key="%s", oauth_token="", oauth_nonce="%s", oauth_timestamp="%s", oauth_signature_method="PLAINTEXT", oauth_version="1.0", oauth_signature="%s%%26"`,
		c.key, uuid.NewString(), strconv.FormatInt(time.Now().Unix(), 10), c.secret)
}

// nextLink pulls links.next out of a response envelope. Schoology sets it
// to the current URL on the last page of some endpoints, so self == next
// also terminates.
func nextLink(envelope map[string]any) string {
	links, _ := envelope["links"].(map[string]any)
	next, _ := links["next"].(string)
	self, _ := links["self"].(string)
	if next == "" || next == self {
		return ""
	}
	return next
}
