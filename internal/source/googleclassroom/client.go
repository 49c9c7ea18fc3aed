// Package googleclassroom fetches LMS data from the Google Classroom REST
// API and maps it into the UDM. Paging uses pageToken/nextPageToken; auth
// is an OAuth bearer token.
package googleclassroom

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

// Client talks to the Google Classroom API for one domain.
type Client struct {
	http     *source.HTTPClient
	baseURL  string
	token    string
	pageSize int
}

// NewClient creates a Classroom client. baseURL is normally
// https://classroom.googleapis.com; tests point it elsewhere.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		http:     source.NewHTTPClient(source.Google, logger),
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		pageSize: defaultPageSize,
	}
}

// Courses lists active and archived courses.
func (c *Client) Courses(ctx context.Context) ([]syncdb.Record, error) {
	rows, err := c.fetchList(ctx, "courses", "/v1/courses",
		url.Values{"courseStates": []string{"ACTIVE", "ARCHIVED"}}, "courses")
	return source.ProjectColumns(rows, courseColumns), err
}

// Students lists a course's student memberships.
func (c *Client) Students(ctx context.Context, courseID string) ([]syncdb.Record, error) {
	rows, err := c.fetchList(ctx, "students",
		fmt.Sprintf("/v1/courses/%s/students", url.PathEscape(courseID)), nil, "students")
	return source.ProjectColumns(rows, membershipColumns), err
}

// Teachers lists a course's teacher memberships.
func (c *Client) Teachers(ctx context.Context, courseID string) ([]syncdb.Record, error) {
	rows, err := c.fetchList(ctx, "teachers",
		fmt.Sprintf("/v1/courses/%s/teachers", url.PathEscape(courseID)), nil, "teachers")
	return source.ProjectColumns(rows, membershipColumns), err
}

// CourseWork lists a course's published coursework.
func (c *Client) CourseWork(ctx context.Context, courseID string) ([]syncdb.Record, error) {
	rows, err := c.fetchList(ctx, "coursework",
		fmt.Sprintf("/v1/courses/%s/courseWork", url.PathEscape(courseID)), nil, "courseWork")
	return source.ProjectColumns(rows, courseWorkColumns), err
}

// StudentSubmissions lists the submissions for one coursework item.
func (c *Client) StudentSubmissions(ctx context.Context, courseID, courseWorkID string) ([]syncdb.Record, error) {
	rows, err := c.fetchList(ctx, "submissions",
		fmt.Sprintf("/v1/courses/%s/courseWork/%s/studentSubmissions",
			url.PathEscape(courseID), url.PathEscape(courseWorkID)), nil, "studentSubmissions")
	return source.ProjectColumns(rows, submissionColumns), err
}

func (c *Client) fetchList(ctx context.Context, op, path string, query url.Values, listKey string) ([]syncdb.Record, error) {
	fetch := source.FetcherFunc(func(ctx context.Context, token string) (source.Page, error) {
		q := url.Values{}
		for k, vs := range query {
			q[k] = vs
		}
		q.Set("pageSize", strconv.Itoa(c.pageSize))
		if token != "" {
			q.Set("pageToken", token)
		}
		pageURL := c.baseURL + path + "?" + q.Encode()

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

		var envelope map[string]any
		if err := json.Unmarshal(body, &envelope); err != nil {
			return source.Page{}, fmt.Errorf("decoding %s response: %w", op, err)
		}

		list, _ := envelope[listKey].([]any)
		next, _ := envelope["nextPageToken"].(string)
		return source.Page{Records: underscoreColumns(source.FlattenList(list)), NextToken: next}, nil
	})

	return source.FetchAll(ctx, fetch)
}

// underscoreColumns rewrites dotted column names (profile.name.fullName
// and friends) with underscores so they survive as identifiers downstream.
func underscoreColumns(rows []syncdb.Record) []syncdb.Record {
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
