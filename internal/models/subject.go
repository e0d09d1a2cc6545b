// Package models - Admission subjects and operation classes.
// A subject is whoever a limit or block applies to; the operation class picks
// which of the subject's independent budgets a request draws from.
package models

import (
	"net/http"
	"strings"
)

// UnknownIP is the sentinel for a caller whose address could not be resolved.
// Such callers cannot be attributed, so blocking and rate limiting skip them.
const UnknownIP = "unknown"

type SubjectKind string

const (
	SubjectIP   SubjectKind = "ip"
	SubjectUser SubjectKind = "user"
)

type Subject struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
}

func IPSubject(ip string) Subject {
	return Subject{Kind: SubjectIP, ID: ip}
}

func UserSubject(userID string) Subject {
	return Subject{Kind: SubjectUser, ID: userID}
}

// Attributable reports whether abuse can be pinned on this subject.
func (s Subject) Attributable() bool {
	return s.ID != "" && s.ID != UnknownIP
}

func (s Subject) String() string {
	return string(s.Kind) + ":" + s.ID
}

// OperationClass separates cheap reads from state-changing requests. Each class
// has its own budget per subject.
type OperationClass string

const (
	OperationRead   OperationClass = "read"
	OperationMutate OperationClass = "mutate"
)

// ClassifyMethod maps GET and HEAD to Read and everything else to Mutate.
func ClassifyMethod(method string) OperationClass {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead:
		return OperationRead
	default:
		return OperationMutate
	}
}
