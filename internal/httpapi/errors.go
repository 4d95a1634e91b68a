package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sales-dialer/internal/callsession"
	"sales-dialer/internal/leads"
	"sales-dialer/internal/phone"
	"sales-dialer/internal/queue"
	"sales-dialer/internal/reporting"
	"sales-dialer/internal/results"
	"sales-dialer/internal/session"
	"sales-dialer/internal/telephony"
	"sales-dialer/pkg/logger"
)

type errorClass struct {
	status int
	code   string
}

// errorTable is checked in order; the first match wins.
var errorTable = []struct {
	err   error
	class errorClass
}{
	{phone.ErrEmpty, errorClass{http.StatusBadRequest, "phone_missing"}},
	{phone.ErrInvalid, errorClass{http.StatusBadRequest, "phone_invalid"}},
	{session.ErrNoPhone, errorClass{http.StatusBadRequest, "phone_missing"}},
	{callsession.ErrNoNumber, errorClass{http.StatusBadRequest, "phone_missing"}},
	{results.ErrNoOutcome, errorClass{http.StatusBadRequest, "outcome_missing"}},
	{results.ErrUnknownOutcome, errorClass{http.StatusBadRequest, "outcome_unknown"}},
	{results.ErrNoLead, errorClass{http.StatusBadRequest, "lead_missing"}},
	{session.ErrNoCampaign, errorClass{http.StatusBadRequest, "campaign_missing"}},
	{session.ErrNoAgent, errorClass{http.StatusBadRequest, "agent_missing"}},
	{reporting.ErrInvalidRequest, errorClass{http.StatusBadRequest, "invalid_request"}},
	{leads.ErrInvalidArgument, errorClass{http.StatusBadRequest, "invalid_request"}},

	{leads.ErrNotFound, errorClass{http.StatusNotFound, "not_found"}},
	{queue.ErrNotInPage, errorClass{http.StatusNotFound, "callback_not_loaded"}},

	{callsession.ErrCallActive, errorClass{http.StatusConflict, "call_active"}},
	{callsession.ErrNoCall, errorClass{http.StatusConflict, "no_active_call"}},
	{callsession.ErrNotReady, errorClass{http.StatusConflict, "device_not_ready"}},
	{callsession.ErrClosed, errorClass{http.StatusConflict, "session_closed"}},
	{session.ErrClosed, errorClass{http.StatusConflict, "session_closed"}},
	{session.ErrNoLead, errorClass{http.StatusConflict, "no_current_lead"}},
	{session.ErrDraftLead, errorClass{http.StatusConflict, "draft_stale"}},
	{results.ErrSaveInFlight, errorClass{http.StatusConflict, "save_in_flight"}},
	{telephony.ErrMuteUnsupported, errorClass{http.StatusConflict, "mute_unsupported"}},

	{telephony.ErrTokenFetch, errorClass{http.StatusServiceUnavailable, "registration_failed"}},
	{telephony.ErrRegistration, errorClass{http.StatusServiceUnavailable, "registration_failed"}},
	{telephony.ErrNotRegistered, errorClass{http.StatusServiceUnavailable, "device_not_registered"}},
	{telephony.ErrClosed, errorClass{http.StatusServiceUnavailable, "device_closed"}},

	{results.ErrPersistence, errorClass{http.StatusBadGateway, "persistence_failed"}},
	{callsession.ErrCallFailed, errorClass{http.StatusBadGateway, "call_failed"}},
}

func classify(err error) errorClass {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.class
		}
	}
	return errorClass{http.StatusInternalServerError, "internal"}
}

// writeError maps domain errors onto statuses. Internal errors are logged
// and never echoed to the client.
func writeError(c *gin.Context, err error) {
	class := classify(err)
	msg := err.Error()
	if class.status == http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		msg = "internal error"
	} else if class.status >= 500 {
		logger.FromGin(c).Warn("request failed", "code", class.code, "err", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(class.status, gin.H{"error": msg, "code": class.code})
}
