package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Item is anything an accumulated list can key by id.
type Item interface {
	ItemID() string
}

type Job struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Company     string     `json:"company,omitempty"`
	Location    string     `json:"location,omitempty"`
	Status      string     `json:"status,omitempty"`
	Salary      string     `json:"salary,omitempty"`
	Description string     `json:"description,omitempty"`
	PostedAt    *time.Time `json:"postedAt,omitempty"`
}

func (j Job) ItemID() string { return j.ID }

type ApplicationRecord struct {
	ID            string            `json:"id"`
	CandidateID   string            `json:"candidateId"`
	JobID         string            `json:"jobId"`
	Status        ApplicationStatus `json:"status"`
	InterviewDate *time.Time        `json:"interviewDate,omitempty"`
	Notes         []string          `json:"notes,omitempty"`
	CandidateName string            `json:"candidateName,omitempty"`
	JobTitle      string            `json:"jobTitle,omitempty"`
}

func (a ApplicationRecord) ItemID() string { return a.ID }

func (a ApplicationRecord) Clone() ApplicationRecord {
	out := a
	if a.InterviewDate != nil {
		when := *a.InterviewDate
		out.InterviewDate = &when
	}
	if a.Notes != nil {
		out.Notes = append(make([]string, 0, len(a.Notes)+1), a.Notes...)
	}
	return out
}

// ResultPage is one page of a list response as returned by the backend.
type ResultPage[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// FlexibleID decodes an identifier sent either as a JSON string or a number.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	if strings.TrimSpace(string(b)) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number, got %s", b)
	}
	*f = FlexibleID(n.String())
	return nil
}
