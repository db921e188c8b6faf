package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"jobportal/internal/model"
)

const (
	DefaultTimeout   = 15 * time.Second
	defaultUserAgent = "jobportal-cli"
	maxErrorBody     = 4096
	maxResponseBody  = 8 << 20
)

// Resource is a list endpoint path relative to the base URL.
type Resource string

const (
	ResourceJobs         Resource = "jobs"
	ResourceApplications Resource = "applications"
	ResourceApplied      Resource = "applications/applied"
	ResourceShortlist    Resource = "shortlist"
)

func ParseResource(raw string) (Resource, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "jobs", "job":
		return ResourceJobs, true
	case "applications", "application", "applicants":
		return ResourceApplications, true
	case "applied":
		return ResourceApplied, true
	case "shortlist", "shortlisted":
		return ResourceShortlist, true
	default:
		return "", false
	}
}

// ItemsAreApplications reports whether the resource lists application
// records rather than jobs.
func (r Resource) ItemsAreApplications() bool {
	return r == ResourceApplications
}

type Options struct {
	BaseURL   string
	Session   *Session
	Timeout   time.Duration
	UserAgent string
	HTTP      *http.Client
	Logger    *slog.Logger
}

// Client performs exactly one HTTP call per operation and maps every failure
// to a *model.Error. It keeps no state besides the session.
type Client struct {
	baseURL   *url.URL
	session   *Session
	http      *http.Client
	userAgent string
	logger    *slog.Logger
}

func New(opts Options) (*Client, error) {
	base, err := ParseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	httpClient := opts.HTTP
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	session := opts.Session
	if session == nil {
		session = NewSession("")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}

	return &Client{
		baseURL:   base,
		session:   session,
		http:      httpClient,
		userAgent: ua,
		logger:    logger,
	}, nil
}

func ParseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base URL %q has no host", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func (c *Client) Session() *Session {
	return c.session
}

func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// List fetches one page of a list resource. The response envelope is checked
// against the list schema before decoding; a malformed envelope is reported
// as a server error.
func List[T any](ctx context.Context, c *Client, res Resource, q model.ListQuery) (model.ResultPage[T], error) {
	op := "list " + string(res)
	q = q.Normalize()

	values := url.Values{}
	values.Set("search", q.SearchText)
	values.Set("status", q.StatusFilter)
	values.Set("page", strconv.Itoa(q.Page))
	values.Set("limit", strconv.Itoa(q.PageSize))

	data, status, err := c.doRaw(ctx, op, http.MethodGet, string(res), values, nil)
	if err != nil {
		return model.ResultPage[T]{}, err
	}
	if err := validateDocument(listEnvelope, data); err != nil {
		return model.ResultPage[T]{}, &model.Error{Kind: model.KindServer, Op: op, Status: status, Message: "malformed list response", Err: err}
	}

	var page model.ResultPage[T]
	if err := json.Unmarshal(data, &page); err != nil {
		return model.ResultPage[T]{}, &model.Error{Kind: model.KindServer, Op: op, Status: status, Message: "decode list response", Err: err}
	}
	if page.Page <= 0 {
		page.Page = q.Page
	}
	if page.Limit <= 0 {
		page.Limit = q.PageSize
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page, nil
}

func (c *Client) ListJobs(ctx context.Context, res Resource, q model.ListQuery) (model.ResultPage[model.Job], error) {
	return List[model.Job](ctx, c, res, q)
}

func (c *Client) ListApplications(ctx context.Context, q model.ListQuery) (model.ResultPage[model.ApplicationRecord], error) {
	return List[model.ApplicationRecord](ctx, c, ResourceApplications, q)
}

func (c *Client) GetApplication(ctx context.Context, id string) (model.ApplicationRecord, error) {
	const op = "get application"
	id = strings.TrimSpace(id)
	if id == "" {
		return model.ApplicationRecord{}, model.Errorf(model.KindValidation, op, "application id is required")
	}
	var rec model.ApplicationRecord
	if err := c.do(ctx, op, http.MethodGet, joinPath("applications", id), nil, &rec); err != nil {
		return model.ApplicationRecord{}, err
	}
	return rec, nil
}

type statusUpdate struct {
	Status        model.ApplicationStatus `json:"status"`
	InterviewDate *time.Time              `json:"interviewDate,omitempty"`
}

func (c *Client) UpdateStatus(ctx context.Context, id string, status model.ApplicationStatus, interviewDate *time.Time) (model.ApplicationRecord, error) {
	const op = "update application status"
	id = strings.TrimSpace(id)
	if id == "" {
		return model.ApplicationRecord{}, model.Errorf(model.KindValidation, op, "application id is required")
	}
	body := statusUpdate{Status: status}
	if status == model.StatusInterviewScheduled {
		body.InterviewDate = interviewDate
	}
	var rec model.ApplicationRecord
	if err := c.do(ctx, op, http.MethodPut, joinPath("applications", id, "status"), body, &rec); err != nil {
		return model.ApplicationRecord{}, err
	}
	return rec, nil
}

// CreateSubResource posts payload under a persisted parent. out receives the
// created entry, which must carry an id.
func (c *Client) CreateSubResource(ctx context.Context, parent, parentID, sub string, payload any, out any) error {
	op := "create " + sub
	if strings.TrimSpace(parentID) == "" {
		return model.Errorf(model.KindValidation, op, "parent id is required")
	}
	data, status, err := c.doRaw(ctx, op, http.MethodPost, joinPath(parent, parentID, sub), nil, payload)
	if err != nil {
		return err
	}
	if err := validateDocument(createdEntry, data); err != nil {
		return &model.Error{Kind: model.KindServer, Op: op, Status: status, Message: "malformed create response", Err: err}
	}
	return decodeInto(op, status, data, out)
}

func (c *Client) DeleteSubResource(ctx context.Context, parent, parentID, sub, key string) error {
	op := "delete " + sub
	if strings.TrimSpace(parentID) == "" || strings.TrimSpace(key) == "" {
		return model.Errorf(model.KindValidation, op, "parent id and key are required")
	}
	return c.do(ctx, op, http.MethodDelete, joinPath(parent, parentID, sub, key), nil, nil)
}

func (c *Client) CreateProfile(ctx context.Context, parent string, body any, out any) error {
	op := "create " + parent
	data, status, err := c.doRaw(ctx, op, http.MethodPost, joinPath(parent), nil, body)
	if err != nil {
		return err
	}
	if err := validateDocument(createdEntry, data); err != nil {
		return &model.Error{Kind: model.KindServer, Op: op, Status: status, Message: "malformed profile response", Err: err}
	}
	return decodeInto(op, status, data, out)
}

func (c *Client) UpdateProfile(ctx context.Context, parent, id string, body any, out any) error {
	op := "update " + parent
	if strings.TrimSpace(id) == "" {
		return model.Errorf(model.KindValidation, op, "profile id is required")
	}
	data, status, err := c.doRaw(ctx, op, http.MethodPut, joinPath(parent, id), nil, body)
	if err != nil {
		return err
	}
	return decodeInto(op, status, data, out)
}

// Ping issues the smallest authenticated list request. Used by doctor.
func (c *Client) Ping(ctx context.Context) error {
	_, err := List[json.RawMessage](ctx, c, ResourceJobs, model.ListQuery{Page: 1, PageSize: 1})
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, out any) error {
	data, status, err := c.doRaw(ctx, op, method, path, nil, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return decodeInto(op, status, data, out)
}

func (c *Client) doRaw(ctx context.Context, op, method, path string, query url.Values, body any) ([]byte, int, error) {
	token, ok := c.session.Token()
	if !ok {
		return nil, 0, model.Errorf(model.KindAuth, op, "missing bearer token")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, &model.Error{Kind: model.KindValidation, Op: op, Message: "encode request body", Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return nil, 0, model.Wrap(model.KindNetwork, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("portal request failed", "op", op, "method", method, "path", path, "err", err)
		return nil, 0, transportError(ctx, op, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("portal request", "op", op, "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := responseError(op, resp)
		if e.Kind == model.KindAuth {
			c.session.Clear()
		}
		return nil, resp.StatusCode, e
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, resp.StatusCode, transportError(ctx, op, err)
	}
	return data, resp.StatusCode, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func joinPath(parts ...string) string {
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
			if seg == "" {
				continue
			}
			escaped = append(escaped, url.PathEscape(seg))
		}
	}
	return strings.Join(escaped, "/")
}

func decodeInto(op string, status int, data []byte, out any) error {
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &model.Error{Kind: model.KindServer, Op: op, Status: status, Message: "decode response", Err: err}
	}
	return nil
}

// KindForStatus maps an HTTP status code to an error kind.
func KindForStatus(code int) model.ErrorKind {
	switch {
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return model.KindValidation
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return model.KindAuth
	case code == http.StatusNotFound:
		return model.KindNotFound
	default:
		return model.KindServer
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func responseError(op string, resp *http.Response) *model.Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case strings.TrimSpace(parsed.Error) != "":
			msg = strings.TrimSpace(parsed.Error)
		case strings.TrimSpace(parsed.Message) != "":
			msg = strings.TrimSpace(parsed.Message)
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &model.Error{Kind: KindForStatus(resp.StatusCode), Op: op, Status: resp.StatusCode, Message: msg}
}

func transportError(ctx context.Context, op string, err error) *model.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &model.Error{Kind: model.KindTimeout, Op: op, Message: "request timed out", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &model.Error{Kind: model.KindTimeout, Op: op, Message: "request timed out", Err: err}
	}
	return model.Wrap(model.KindNetwork, op, err)
}
