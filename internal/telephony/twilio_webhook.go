package telephony

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	twilioclient "github.com/twilio/twilio-go/client"

	"sales-dialer/pkg/logger"
)

// TwilioStatusForm is the subset of status callback fields the dialer reads.
// Twilio posts application/x-www-form-urlencoded.
type TwilioStatusForm struct {
	CallSid      string
	AccountSid   string
	CallStatus   string
	CallDuration string
	To           string
	From         string
	Timestamp    string
}

func ParseStatusCallback(r *http.Request) (TwilioStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioStatusForm{}, err
	}
	return TwilioStatusForm{
		CallSid:      strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid:   r.PostFormValue("AccountSid"),
		CallStatus:   strings.TrimSpace(r.PostFormValue("CallStatus")),
		CallDuration: r.PostFormValue("CallDuration"),
		To:           strings.TrimSpace(r.PostFormValue("To")),
		From:         strings.TrimSpace(r.PostFormValue("From")),
		Timestamp:    r.PostFormValue("Timestamp"),
	}, nil
}

// OccurredAt parses the RFC1123Z timestamp Twilio attaches, falling back to now.
func (f TwilioStatusForm) OccurredAt(now time.Time) time.Time {
	if f.Timestamp == "" {
		return now
	}
	if t, err := time.Parse(time.RFC1123Z, f.Timestamp); err == nil {
		return t
	}
	return now
}

type TwilioWebhookHandler struct {
	Provider *TwilioProvider
	CallerID string
	Log      *slog.Logger
}

// HandleStatusCallback feeds call progress into the live call handle.
// Unknown SIDs are acknowledged so Twilio does not retry.
func (h TwilioWebhookHandler) HandleStatusCallback(c *gin.Context) {
	form, err := ParseStatusCallback(c.Request)
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	if form.CallSid == "" || form.CallStatus == "" {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	if h.Provider == nil || !h.Provider.HandleStatus(form.CallSid, form.CallStatus, form.OccurredAt(time.Now().UTC())) {
		h.requestLog(c).Debug("status callback for unknown call", "call_sid", form.CallSid, "status", form.CallStatus)
	}
	c.Status(http.StatusNoContent)
}

// HandleAnswer returns TwiML that bridges the answered lead to the agent
// client named in the query string.
func (h TwilioWebhookHandler) HandleAnswer(c *gin.Context) {
	identity := strings.TrimSpace(c.Query("client"))
	var (
		xml string
		err error
	)
	if identity == "" {
		xml, err = RenderHangup()
	} else {
		xml, err = RenderBridge(identity, h.CallerID)
	}
	if err != nil {
		h.requestLog(c).Error("render answer twiml", "err", err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(xml))
}

// requestLog prefers an explicit Log, then the request-scoped logger.
func (h TwilioWebhookHandler) requestLog(c *gin.Context) *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return logger.From(c.Request.Context())
}

// RequireTwilioSignature rejects webhooks whose X-Twilio-Signature does not
// match. publicBaseURL is the externally visible scheme+host Twilio signed.
func RequireTwilioSignature(authToken, publicBaseURL string) gin.HandlerFunc {
	validator := twilioclient.NewRequestValidator(authToken)
	base := strings.TrimRight(publicBaseURL, "/")
	return func(c *gin.Context) {
		sig := c.GetHeader("X-Twilio-Signature")
		if sig == "" {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		params := make(map[string]string, len(c.Request.PostForm))
		for k, v := range c.Request.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		if !validator.Validate(base+c.Request.URL.RequestURI(), params, sig) {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}
