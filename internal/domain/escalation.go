package domain

import (
	"fmt"
	"strings"
	"time"
)

// Scope selects which configuration rows apply to a request. Both ids empty means global.
type Scope struct {
	PropertyID string
	PlanID     string
}

// ScopeLevel is the precedence tier a scope belongs to.
type ScopeLevel string

const (
	ScopeLevelProperty ScopeLevel = "property"
	ScopeLevelPlan     ScopeLevel = "plan"
	ScopeLevelGlobal   ScopeLevel = "global"
)

// ScopePrecedence lists scope tiers from most to least specific.
var ScopePrecedence = []ScopeLevel{ScopeLevelProperty, ScopeLevelPlan, ScopeLevelGlobal}

// Level returns the tier of a configuration row's scope.
func (s Scope) Level() ScopeLevel {
	switch {
	case strings.TrimSpace(s.PropertyID) != "":
		return ScopeLevelProperty
	case strings.TrimSpace(s.PlanID) != "":
		return ScopeLevelPlan
	}
	return ScopeLevelGlobal
}

// EscalationPolicy configures the SLA deadline for a request category.
type EscalationPolicy struct {
	ID              string
	Category        string
	HoursToDeadline float64
	Scope           Scope
}

func (p *EscalationPolicy) Validate() error {
	if strings.TrimSpace(p.Category) == "" {
		return fmt.Errorf("%w: category is required", ErrValidation)
	}
	if p.HoursToDeadline <= 0 {
		return fmt.Errorf("%w: hours to deadline must be > 0", ErrValidation)
	}
	return nil
}

// EscalationMatrixEntry is one rung of an escalation ladder.
type EscalationMatrixEntry struct {
	ID                 string
	Level              int
	Role               string
	HoursAfterDeadline float64
	Scope              Scope
}

func (e *EscalationMatrixEntry) Validate() error {
	if e.Level < 1 {
		return fmt.Errorf("%w: level must be >= 1", ErrValidation)
	}
	if strings.TrimSpace(e.Role) == "" {
		return fmt.Errorf("%w: role is required", ErrValidation)
	}
	if e.HoursAfterDeadline < 0 {
		return fmt.Errorf("%w: hours after deadline must be >= 0", ErrValidation)
	}
	return nil
}

// EscalationEvent records that a level has fired for a request.
// (RequestID, Level) is unique.
type EscalationEvent struct {
	ID          string
	RequestID   string
	Level       int
	Role        string
	TriggeredAt time.Time
}

// RequestStatus is the state of a support or maintenance request.
type RequestStatus string

const (
	RequestStatusOpen     RequestStatus = "OPEN"
	RequestStatusResolved RequestStatus = "RESOLVED"
	RequestStatusClosed   RequestStatus = "CLOSED"
)

// SupportRequest is the read model of an open support or maintenance request.
type SupportRequest struct {
	ID           string
	SubscriberID string
	PropertyID   string
	PlanID       string
	Category     string
	Title        string
	Status       RequestStatus
	// Deadline is the SLA deadline; nil means it is derived from the category policy.
	Deadline  *time.Time
	CreatedAt time.Time
}

func (r SupportRequest) Scope() Scope {
	return Scope{PropertyID: r.PropertyID, PlanID: r.PlanID}
}

// RoleContact is a person holding an escalation role for a subscriber.
type RoleContact struct {
	ID           string
	SubscriberID string
	PropertyID   string
	Role         string
	Contact      Contact
}
