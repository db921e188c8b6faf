// Package portaltest runs an in-process job-portal backend for tests. It
// serves the same routes as the real API with in-memory data, records every
// call, and can be told to fail the next matching request.
package portaltest

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"jobportal/internal/model"
)

const (
	DefaultToken = "test-token"
	APIPrefix    = "/api"
)

var (
	ProfileParents = []string{"candidates", "companies"}
	SubKinds       = []string{"skills", "educations", "experiences", "certifications"}
)

type Call struct {
	Method string
	Path   string
	Query  url.Values
}

type failure struct {
	method  string
	prefix  string
	status  int
	message string
}

type profileDoc struct {
	ID     string
	Fields map[string]string
	Subs   map[string][]map[string]any
}

type Server struct {
	*httptest.Server

	Token string

	mu           sync.Mutex
	now          func() time.Time
	lists        map[string][]model.Job
	applications []model.ApplicationRecord
	profiles     map[string]map[string]*profileDoc
	calls        []Call
	failures     []failure
	nextID       int
	beforeList   func(resource string, q url.Values)
}

// New starts a server and registers its shutdown with t.Cleanup.
func New(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		Token:    DefaultToken,
		now:      time.Now,
		lists:    map[string][]model.Job{},
		profiles: map[string]map[string]*profileDoc{},
		nextID:   100,
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the value a client should be configured with.
func (s *Server) BaseURL() string {
	return s.URL + APIPrefix
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.record, s.inject, s.auth)

	api := r.Group(APIPrefix)
	api.GET("/jobs", s.listJobs("jobs"))
	api.GET("/shortlist", s.listJobs("shortlist"))
	api.GET("/applications", s.listApplications)
	api.GET("/applications/:id", s.getApplication)
	api.PUT("/applications/:id/status", s.updateStatus)

	for _, parent := range ProfileParents {
		g := api.Group("/" + parent)
		g.POST("", s.createProfile(parent))
		g.PUT("/:id", s.updateProfile(parent))
		g.POST("/:id/:sub", s.createSub(parent))
		g.DELETE("/:id/:sub/:key", s.deleteSub(parent))
	}
	return r
}

func (s *Server) record(c *gin.Context) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Method: c.Request.Method,
		Path:   strings.TrimPrefix(c.Request.URL.Path, APIPrefix),
		Query:  c.Request.URL.Query(),
	})
	s.mu.Unlock()
	c.Next()
}

func (s *Server) inject(c *gin.Context) {
	path := strings.TrimPrefix(c.Request.URL.Path, APIPrefix)
	s.mu.Lock()
	for i, f := range s.failures {
		if f.method == c.Request.Method && strings.HasPrefix(path, f.prefix) {
			s.failures = append(s.failures[:i], s.failures[i+1:]...)
			s.mu.Unlock()
			c.AbortWithStatusJSON(f.status, gin.H{"error": f.message})
			return
		}
	}
	s.mu.Unlock()
	c.Next()
}

func (s *Server) auth(c *gin.Context) {
	if c.GetHeader("Authorization") != "Bearer "+s.Token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}
	c.Next()
}

// SetNow replaces the clock used to check interview dates.
func (s *Server) SetNow(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// FailNext makes the next request whose method matches and whose path (without
// the /api prefix) starts with prefix fail with status and message.
func (s *Server) FailNext(method, prefix string, status int, message string) {
	s.mu.Lock()
	s.failures = append(s.failures, failure{method: method, prefix: prefix, status: status, message: message})
	s.mu.Unlock()
}

// BeforeList runs fn before every list response. Tests use it to hold a
// response back.
func (s *Server) BeforeList(fn func(resource string, q url.Values)) {
	s.mu.Lock()
	s.beforeList = fn
	s.mu.Unlock()
}

func (s *Server) SeedJobs(resource string, jobs ...model.Job) {
	s.mu.Lock()
	s.lists[resource] = append(s.lists[resource], jobs...)
	s.mu.Unlock()
}

func (s *Server) SeedApplications(apps ...model.ApplicationRecord) {
	s.mu.Lock()
	s.applications = append(s.applications, apps...)
	s.mu.Unlock()
}

func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount counts recorded calls by method and path prefix.
func (s *Server) CallCount(method, prefix string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method && strings.HasPrefix(c.Path, prefix) {
			n++
		}
	}
	return n
}

func (s *Server) Application(id string) (model.ApplicationRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.applications {
		if a.ID == id {
			return a.Clone(), true
		}
	}
	return model.ApplicationRecord{}, false
}

// ProfileEntries returns the stored entries of one sub-resource collection.
func (s *Server) ProfileEntries(parent, id, sub string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.profiles[parent][id]
	if !ok {
		return nil
	}
	return append([]map[string]any(nil), doc.Subs[sub]...)
}

func (s *Server) ProfileIDs(parent string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.profiles[parent]))
	for id := range s.profiles[parent] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Server) newIDLocked() string {
	s.nextID++
	return strconv.Itoa(s.nextID)
}

type pageParams struct {
	search string
	status string
	page   int
	limit  int
}

func parsePage(c *gin.Context) pageParams {
	p := pageParams{
		search: strings.ToLower(strings.TrimSpace(c.Query("search"))),
		status: strings.TrimSpace(c.Query("status")),
		page:   1,
		limit:  model.DefaultPageSize,
	}
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		p.page = v
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		p.limit = v
	}
	return p
}

func pageBounds(total, page, limit int) (int, int) {
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return start, end
}

func (s *Server) holdList(resource string, c *gin.Context) {
	s.mu.Lock()
	fn := s.beforeList
	s.mu.Unlock()
	if fn != nil {
		fn(resource, c.Request.URL.Query())
	}
}

func (s *Server) listJobs(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.holdList(resource, c)
		p := parsePage(c)

		s.mu.Lock()
		matched := make([]model.Job, 0)
		for _, j := range s.lists[resource] {
			if p.search != "" && !strings.Contains(strings.ToLower(j.Title+" "+j.Company), p.search) {
				continue
			}
			if p.status != "" && !strings.EqualFold(j.Status, p.status) {
				continue
			}
			matched = append(matched, j)
		}
		s.mu.Unlock()

		start, end := pageBounds(len(matched), p.page, p.limit)
		c.JSON(http.StatusOK, gin.H{
			"items": matched[start:end],
			"total": len(matched),
			"page":  p.page,
			"limit": p.limit,
		})
	}
}

func (s *Server) listApplications(c *gin.Context) {
	s.holdList("applications", c)
	p := parsePage(c)

	s.mu.Lock()
	matched := make([]model.ApplicationRecord, 0)
	for _, a := range s.applications {
		if p.search != "" && !strings.Contains(strings.ToLower(a.CandidateName+" "+a.JobTitle), p.search) {
			continue
		}
		if p.status != "" && !strings.EqualFold(string(a.Status), p.status) {
			continue
		}
		matched = append(matched, a.Clone())
	}
	s.mu.Unlock()

	start, end := pageBounds(len(matched), p.page, p.limit)
	c.JSON(http.StatusOK, gin.H{
		"items": matched[start:end],
		"total": len(matched),
		"page":  p.page,
		"limit": p.limit,
	})
}

func (s *Server) getApplication(c *gin.Context) {
	if c.Param("id") == "applied" {
		s.listJobs("applications/applied")(c)
		return
	}
	if a, ok := s.Application(c.Param("id")); ok {
		c.JSON(http.StatusOK, a)
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "application not found"})
}

type statusBody struct {
	Status        model.ApplicationStatus `json:"status" binding:"required"`
	InterviewDate *time.Time              `json:"interviewDate"`
}

func (s *Server) updateStatus(c *gin.Context) {
	var body statusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !model.IsKnownStatus(body.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.applications {
		if a.ID != c.Param("id") {
			continue
		}
		if !model.CanTransition(a.Status, body.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "transition not allowed"})
			return
		}
		if body.Status == model.StatusInterviewScheduled {
			if body.InterviewDate == nil || !body.InterviewDate.After(s.now()) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "interview date must be in the future"})
				return
			}
			a.InterviewDate = body.InterviewDate
		}
		a.Status = body.Status
		s.applications[i] = a
		c.JSON(http.StatusOK, a.Clone())
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "application not found"})
}

func (s *Server) profileJSON(doc *profileDoc) gin.H {
	out := gin.H{"id": doc.ID, "fields": doc.Fields}
	for _, sub := range SubKinds {
		entries := doc.Subs[sub]
		if entries == nil {
			entries = []map[string]any{}
		}
		out[sub] = entries
	}
	return out
}

type profileBody struct {
	Fields map[string]string `json:"fields"`
	Subs   map[string][]map[string]any
}

func bindProfile(c *gin.Context) (profileBody, bool) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return profileBody{}, false
	}
	body := profileBody{Fields: map[string]string{}, Subs: map[string][]map[string]any{}}
	if fields, ok := raw["fields"].(map[string]any); ok {
		for k, v := range fields {
			if sv, ok := v.(string); ok {
				body.Fields[k] = sv
			}
		}
	}
	for _, sub := range SubKinds {
		list, _ := raw[sub].([]any)
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				body.Subs[sub] = append(body.Subs[sub], m)
			}
		}
	}
	return body, true
}

func (s *Server) assignIDsLocked(entries []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		cp := make(map[string]any, len(e)+1)
		for k, v := range e {
			cp[k] = v
		}
		if id, ok := cp["id"].(string); !ok || id == "" {
			cp["id"] = s.newIDLocked()
		}
		out = append(out, cp)
	}
	return out
}

func (s *Server) createProfile(parent string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := bindProfile(c)
		if !ok {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		doc := &profileDoc{ID: s.newIDLocked(), Fields: body.Fields, Subs: map[string][]map[string]any{}}
		for sub, entries := range body.Subs {
			doc.Subs[sub] = s.assignIDsLocked(entries)
		}
		if s.profiles[parent] == nil {
			s.profiles[parent] = map[string]*profileDoc{}
		}
		s.profiles[parent][doc.ID] = doc
		c.JSON(http.StatusCreated, s.profileJSON(doc))
	}
}

func (s *Server) updateProfile(parent string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := bindProfile(c)
		if !ok {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		doc, found := s.profiles[parent][c.Param("id")]
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": parent + " not found"})
			return
		}
		doc.Fields = body.Fields
		for _, sub := range SubKinds {
			doc.Subs[sub] = s.assignIDsLocked(body.Subs[sub])
		}
		c.JSON(http.StatusOK, s.profileJSON(doc))
	}
}

func validSub(sub string) bool {
	for _, k := range SubKinds {
		if k == sub {
			return true
		}
	}
	return false
}

func (s *Server) createSub(parent string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub := c.Param("sub")
		if !validSub(sub) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown collection " + sub})
			return
		}
		var entry map[string]any
		if err := c.ShouldBindJSON(&entry); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		doc, found := s.profiles[parent][c.Param("id")]
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": parent + " not found"})
			return
		}
		delete(entry, "id")
		created := s.assignIDsLocked([]map[string]any{entry})[0]
		doc.Subs[sub] = append(doc.Subs[sub], created)
		c.JSON(http.StatusCreated, created)
	}
}

func (s *Server) deleteSub(parent string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		doc, found := s.profiles[parent][c.Param("id")]
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": parent + " not found"})
			return
		}
		sub, key := c.Param("sub"), c.Param("key")
		entries := doc.Subs[sub]
		for i, e := range entries {
			if id, _ := e["id"].(string); id == key {
				doc.Subs[sub] = append(entries[:i:i], entries[i+1:]...)
				c.Status(http.StatusNoContent)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": sub + " entry not found"})
	}
}
