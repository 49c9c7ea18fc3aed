// Package canvas fetches LMS data from the Canvas REST API and maps it
// into the UDM. Paging follows RFC 5988 Link headers; auth is a bearer
// token.
package canvas

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

	"lms-sync/internal/source"
	"lms-sync/internal/syncdb"
)

const defaultPageSize = 100

// Client talks to one Canvas instance.
type Client struct {
	http     *source.HTTPClient
	baseURL  string
	token    string
	account  string
	pageSize int
}

// NewClient creates a Canvas client. baseURL is the instance root (e.g.
// https://canvas.example.edu), account the Canvas account whose courses
// are extracted ("self" works for most installs).
func NewClient(baseURL, token, account string, logger *slog.Logger) *Client {
	return &Client{
		http:     source.NewHTTPClient(source.Canvas, logger),
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		account:  account,
		pageSize: defaultPageSize,
	}
}

// Courses lists the account's available and completed courses.
func (c *Client) Courses(ctx context.Context) ([]syncdb.Record, error) {
	u := fmt.Sprintf("%s/api/v1/accounts/%s/courses?state[]=available&state[]=completed&per_page=%d",
		c.baseURL, url.PathEscape(c.account), c.pageSize)
	rows, err := c.fetchList(ctx, "courses", u, "")
	return source.ProjectColumns(rows, courseColumns), err
}

// Sections lists a course's sections.
func (c *Client) Sections(ctx context.Context, courseID string) ([]syncdb.Record, error) {
	u := fmt.Sprintf("%s/api/v1/courses/%s/sections?per_page=%d",
		c.baseURL, url.PathEscape(courseID), c.pageSize)
	rows, err := c.fetchList(ctx, "sections", u, "")
	return source.ProjectColumns(rows, sectionColumns), err
}

// Students lists a course's student users.
func (c *Client) Students(ctx context.Context, courseID string) ([]syncdb.Record, error) {
	u := fmt.Sprintf("%s/api/v1/courses/%s/users?enrollment_type[]=student&include[]=email&per_page=%d",
		c.baseURL, url.PathEscape(courseID), c.pageSize)
	rows, err := c.fetchList(ctx, "students", u, "")
	return source.ProjectColumns(rows, studentColumns), err
}

// Enrollments lists a section's enrollments, grade fields included.
func (c *Client) Enrollments(ctx context.Context, sectionID string) ([]syncdb.Record, error) {
	u := fmt.Sprintf("%s/api/v1/sections/%s/enrollments?per_page=%d",
		c.baseURL, url.PathEscape(sectionID), c.pageSize)
	rows, err := c.fetchList(ctx, "enrollments", u, "")
	return source.ProjectColumns(rows, enrollmentColumns), err
}

// Assignments lists a course's assignments.
func (c *Client) Assignments(ctx context.Context, courseID string) ([]syncdb.Record, error) {
	u := fmt.Sprintf("%s/api/v1/courses/%s/assignments?per_page=%d",
		c.baseURL, url.PathEscape(courseID), c.pageSize)
	rows, err := c.fetchList(ctx, "assignments", u, "")
	return source.ProjectColumns(rows, assignmentColumns), err
}

// Submissions lists the submissions for one assignment in one section.
// The payload carries neither, so both are stamped onto every row.
func (c *Client) Submissions(ctx context.Context, sectionID, assignmentID string) ([]syncdb.Record, error) {
	u := fmt.Sprintf("%s/api/v1/sections/%s/assignments/%s/submissions?per_page=%d",
		c.baseURL, url.PathEscape(sectionID), url.PathEscape(assignmentID), c.pageSize)
	rows, err := c.fetchList(ctx, "submissions", u, "")
	if err != nil {
		return nil, err
	}
	rows = source.ProjectColumns(rows, submissionColumns)
	for _, r := range rows {
		r["section_id"] = sectionID
	}
	return rows, nil
}

// AuthEvents lists a user's authentication audit events between two
// timestamps. The audit API wraps the list in an "events" envelope.
func (c *Client) AuthEvents(ctx context.Context, userID, startTime, endTime string) ([]syncdb.Record, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(c.pageSize))
	if startTime != "" {
		q.Set("start_time", startTime)
	}
	if endTime != "" {
		q.Set("end_time", endTime)
	}
	u := fmt.Sprintf("%s/api/v1/audit/authentication/users/%s?%s",
		c.baseURL, url.PathEscape(userID), q.Encode())
	rows, err := c.fetchList(ctx, "auth_events", u, "events")
	return source.ProjectColumns(rows, authEventColumns), err
}

// fetchList drains a Link-header paged endpoint. listKey is empty for
// endpoints that return a bare JSON array, or the envelope key otherwise.
func (c *Client) fetchList(ctx context.Context, op, firstURL, listKey string) ([]syncdb.Record, error) {
	fetch := source.FetcherFunc(func(ctx context.Context, token string) (source.Page, error) {
		pageURL := firstURL
		if token != "" {
			pageURL = token
		}

		resp, err := c.http.Do(ctx, op, func() (*http.Request, error) {
			req, err := http.NewRequest(http.MethodGet, pageURL, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+c.token)
			return req, nil
		})
		if err != nil {
			return source.Page{}, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return source.Page{}, fmt.Errorf("reading %s response: %w", op, err)
		}

		records, err := decodeList(body, listKey)
		if err != nil {
			return source.Page{}, fmt.Errorf("decoding %s response: %w", op, err)
		}

		return source.Page{
			Records:   records,
			NextToken: nextLink(resp.Header.Get("Link")),
		}, nil
	})

	rows, err := source.FetchAll(ctx, fetch)
	if err != nil {
		return nil, err
	}
	return flattenColumns(rows), nil
}

func decodeList(body []byte, listKey string) ([]syncdb.Record, error) {
	if listKey == "" {
		var list []any
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, err
		}
		return source.FlattenList(list), nil
	}

	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	list, _ := envelope[listKey].([]any)
	return source.FlattenList(list), nil
}

// flattenColumns rewrites dotted column names (from nested objects, e.g.
// grades.current_score) with underscores so they survive as identifiers
// downstream.
func flattenColumns(rows []syncdb.Record) []syncdb.Record {
	for _, row := range rows {
		for k, v := range row {
			if strings.Contains(k, ".") {
				delete(row, k)
				row[strings.ReplaceAll(k, ".", "_")] = v
			}
		}
	}
	return rows
}

// nextLink extracts the rel="next" URL from an RFC 5988 Link header, or
// returns "" on the last page.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(strings.TrimSpace(part), ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(segments[0]), "<>")
		for _, param := range segments[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return target
			}
		}
	}
	return ""
}
