package leads

import (
	"fmt"
	"strings"
	"time"
)

// Lead is a prospective customer worked through outbound calling.
//
// Phone is stored as entered by whoever created the lead; it is normalized at
// dial time and never rewritten here.
type Lead struct {
	ID         string `json:"id" db:"id"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`

	Name    string `json:"name" db:"name"`
	Company string `json:"company,omitempty" db:"company"`
	Phone   string `json:"phone" db:"phone"`

	Status          Status `json:"status" db:"status"`
	AssignedAgentID string `json:"assigned_agent_id,omitempty" db:"assigned_agent_id"`
	Notes           string `json:"notes,omitempty" db:"notes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusNew                     Status = "new"
	StatusContacted               Status = "contacted"
	StatusCallback                Status = "callback"
	StatusQualificationCallBooked Status = "qualification_call_booked"
	StatusLeadLost                Status = "lead_lost"
)

// ActionableStatuses are the statuses a calling queue works through.
var ActionableStatuses = []Status{StatusNew, StatusContacted, StatusCallback}

func (s Status) Actionable() bool {
	for _, a := range ActionableStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// Campaign is read-only for the calling core.
type Campaign struct {
	ID      string       `json:"id" db:"id"`
	Name    string       `json:"name" db:"name"`
	Kind    CampaignKind `json:"kind" db:"kind"`
	Script  string       `json:"script,omitempty" db:"script"`
	Purpose string       `json:"purpose,omitempty" db:"purpose"`
}

type CampaignKind string

const (
	CampaignKindCold    CampaignKind = "cold"
	CampaignKindPartner CampaignKind = "partner"
)

// Update is a partial lead update. AppendNote is added to the existing notes,
// never replacing them.
type Update struct {
	LeadID          string
	Status          Status
	AppendNote      string
	AssignedAgentID string
	UpdatedAt       time.Time
}

// NoteEntry formats a timestamped note line.
func NoteEntry(at time.Time, label, text string) string {
	head := fmt.Sprintf("[%s] %s", at.UTC().Format("2006-01-02 15:04"), label)
	text = strings.TrimSpace(text)
	if text == "" {
		return head
	}
	return head + ": " + text
}

// AppendNote returns existing notes with entry added as a new paragraph.
func AppendNote(existing, entry string) string {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return existing
	}
	if strings.TrimSpace(existing) == "" {
		return entry
	}
	return strings.TrimRight(existing, "\n") + "\n\n" + entry
}

// Apply returns a copy of l with u applied.
func (u Update) Apply(l Lead) Lead {
	if u.Status != "" {
		l.Status = u.Status
	}
	if u.AssignedAgentID != "" {
		l.AssignedAgentID = u.AssignedAgentID
	}
	l.Notes = AppendNote(l.Notes, u.AppendNote)
	if !u.UpdatedAt.IsZero() {
		l.UpdatedAt = u.UpdatedAt
	}
	return l
}
