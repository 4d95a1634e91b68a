package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sales-dialer/internal/auth"
	"sales-dialer/internal/rbac"
	"sales-dialer/internal/reporting"
	"sales-dialer/internal/session"
	"sales-dialer/internal/telephony"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call the agent's session, return JSON.
type Handlers struct {
	Auth        *auth.Manager
	Sessions    *session.Registry
	Reports     *reporting.Service
	VoiceTokens telephony.TokenSource
}

// --- Auth ---

type loginRequest struct {
	AgentID string `json:"agent_id"`
	TeamID  string `json:"team_id"`
	Role    string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.AgentID = strings.TrimSpace(req.AgentID)
	if req.AgentID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent_id, role required"})
		return
	}
	if !rbac.CanDial(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.AgentID, req.TeamID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Session ---

// controller resolves the caller's session, creating it on first use.
func (h Handlers) controller(c *gin.Context) (*session.Controller, bool) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
		return nil, false
	}
	agentID, err := auth.AgentID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "agent_id required"})
		return nil, false
	}
	ctl, err := h.Sessions.Get(agentID)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return ctl, true
}

func (h Handlers) GetSession(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ctl.Snapshot())
}

// StartSession registers the agent's device. Retry is the same operation
// exposed under its own route for the error banner.
func (h Handlers) StartSession(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	if err := ctl.Start(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctl.Snapshot())
}

func (h Handlers) RetrySession(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	if err := ctl.Retry(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctl.Snapshot())
}

func (h Handlers) EndSession(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
		return
	}
	agentID, err := auth.AgentID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "agent_id required"})
		return
	}
	if err := h.Sessions.Close(c.Request.Context(), agentID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type selectCampaignRequest struct {
	CampaignID string `json:"campaign_id"`
}

func (h Handlers) SelectCampaign(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	var req selectCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	snap, err := ctl.SelectCampaign(c.Request.Context(), req.CampaignID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// --- Call ---

func (h Handlers) StartCall(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	attempt, err := ctl.StartCall(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, attempt)
}

func (h Handlers) Hangup(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	if err := ctl.Hangup(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctl.Snapshot())
}

type muteRequest struct {
	Muted *bool `json:"muted"`
}

func (h Handlers) SetMuted(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Muted == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "muted required"})
		return
	}
	if err := ctl.SetMuted(c.Request.Context(), *req.Muted); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctl.Snapshot())
}

// RetryCallLog re-attempts call log writes that failed earlier.
func (h Handlers) RetryCallLog(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	before := ctl.Snapshot().Unlogged
	left, err := ctl.RetryUnlogged(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logged": max(before-left, 0), "unlogged": left})
}

// --- Queue & outcomes ---

func (h Handlers) Skip(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	advanced, err := ctl.Skip()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"advanced": advanced, "session": ctl.Snapshot()})
}

type draftRequest struct {
	Outcome string `json:"outcome"`
	Notes   string `json:"notes"`
}

func (h Handlers) SetDraft(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	d, err := ctl.SetDraft(req.Outcome, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h Handlers) SaveOutcome(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	res, err := ctl.SaveOutcome(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "session": ctl.Snapshot()})
}

// --- Callbacks ---

func (h Handlers) ListCallbacks(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	page := 0
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
			return
		}
		page = n
	}
	p, err := ctl.Callbacks(c.Request.Context(), page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h Handlers) SelectCallback(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	lead, err := ctl.SelectCallback(c.Request.Context(), c.Param("lead_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lead": lead, "session": ctl.Snapshot()})
}

// --- Voice token ---

// VoiceToken hands the browser softphone a short-lived access token for the
// caller's identity.
func (h Handlers) VoiceToken(c *gin.Context) {
	if h.VoiceTokens == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "voice tokens not available"})
		return
	}
	agentID, err := auth.AgentID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "agent_id required"})
		return
	}
	tok, err := h.VoiceTokens.FetchToken(c.Request.Context(), agentID)
	if err != nil {
		writeError(c, errors.Join(telephony.ErrTokenFetch, err))
		return
	}
	resp := gin.H{"token": tok, "identity": agentID}
	if exp, err := telephony.TokenExpiry(tok); err == nil {
		resp["expires_at"] = exp
	}
	c.JSON(http.StatusOK, resp)
}

// --- Reports ---

// reportScope resolves whose data the caller may read. Agents only see
// their own; managers and admins may pass agent_id.
func reportScope(c *gin.Context) (string, reporting.TimeRange, bool) {
	self, err := auth.AgentID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "agent_id required"})
		return "", reporting.TimeRange{}, false
	}
	agentID := self
	if q := strings.TrimSpace(c.Query("agent_id")); q != "" && q != self {
		role, _ := auth.Role(c.Request.Context())
		if role != rbac.RoleManager && !rbac.IsAdmin(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return "", reporting.TimeRange{}, false
		}
		agentID = q
	}

	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return "", reporting.TimeRange{}, false
		}
		from = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return "", reporting.TimeRange{}, false
		}
		to = t
	}
	return agentID, reporting.TimeRange{From: from, To: to}, true
}

func (h Handlers) CallsReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reports not configured"})
		return
	}
	agentID, rng, ok := reportScope(c)
	if !ok {
		return
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{AgentID: agentID, Range: rng})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) OutcomesReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reports not configured"})
		return
	}
	agentID, rng, ok := reportScope(c)
	if !ok {
		return
	}
	out, err := h.Reports.OutcomeSummary(c.Request.Context(), reporting.OutcomeSummaryRequest{
		AgentID:    agentID,
		Range:      rng,
		CampaignID: c.Query("campaign_id"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
