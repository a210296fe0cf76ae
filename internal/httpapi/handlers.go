package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"triage-platform/internal/auth"
	"triage-platform/internal/dispatch"
	"triage-platform/internal/queue"
	"triage-platform/internal/reports"
	"triage-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Dispatcher  *dispatch.Dispatcher
	Reports     *reports.Service
	Revocations auth.RevocationList
	Clock       func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

// callView is the external shape of a queued call.
type callView struct {
	CallID     string     `json:"call_id"`
	Phone      string     `json:"phone"`
	RiskLevel  string     `json:"risk_level"`
	RiskScore  int        `json:"risk_score"`
	ReceivedAt time.Time  `json:"received_at"`
	State      string     `json:"state"`
	ClaimedBy  string     `json:"claimed_by,omitempty"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
}

func viewOf(e queue.CallEntry) callView {
	return callView{
		CallID:     e.ID,
		Phone:      e.Phone,
		RiskLevel:  e.RiskLevel.String(),
		RiskScore:  int(e.RiskLevel),
		ReceivedAt: e.ReceivedAt,
		State:      string(e.State),
		ClaimedBy:  e.ClaimedBy,
		ClaimedAt:  e.ClaimedAt,
	}
}

func counselorOf(c *gin.Context) (string, bool) {
	id, err := auth.CounselorID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "counselor identity required", "code": "unauthorized"})
		return "", false
	}
	return id, true
}

// --- Intake ---

// received_at is stamped by the dispatcher when the call is accepted.
type enqueueRequest struct {
	CallID    string    `json:"call_id" binding:"omitempty,max=64"`
	Phone     string    `json:"phone" binding:"required,phone"`
	RiskLevel riskParam `json:"risk_level" binding:"required,risk_level"`
}

// Enqueue places a caller whose intake has finished into the queue.
func (h Handlers) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, validationMessage(err))
		return
	}
	risk, err := queue.ParseRiskLevel(string(req.RiskLevel))
	if err != nil {
		badRequest(c, "risk_level must be low, medium, high or 1-3")
		return
	}

	entry, err := h.Dispatcher.Enqueue(c.Request.Context(), dispatch.Intake{
		ID:        req.CallID,
		Phone:     req.Phone,
		RiskLevel: risk,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"call_id": entry.ID, "risk_level": entry.RiskLevel.String()})
}

// --- Queue ---

// ListQueue is the counselor poll. It doubles as a heartbeat.
func (h Handlers) ListQueue(c *gin.Context) {
	counselorID, ok := counselorOf(c)
	if !ok {
		return
	}
	snap, err := h.Dispatcher.ListWaiting(c.Request.Context(), counselorID)
	if err != nil {
		writeError(c, err)
		return
	}
	calls := make([]callView, 0, snap.Len())
	for e := range snap.All() {
		calls = append(calls, viewOf(e))
	}
	c.JSON(http.StatusOK, gin.H{"calls": calls, "count": len(calls)})
}

func (h Handlers) GetCall(c *gin.Context) {
	entry, err := h.Dispatcher.Get(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(entry))
}

func (h Handlers) Claim(c *gin.Context) {
	counselorID, ok := counselorOf(c)
	if !ok {
		return
	}
	entry, err := h.Dispatcher.Claim(c.Request.Context(), c.Param("call_id"), counselorID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(entry))
}

func (h Handlers) Release(c *gin.Context) {
	counselorID, ok := counselorOf(c)
	if !ok {
		return
	}
	if err := h.Dispatcher.Release(c.Request.Context(), c.Param("call_id"), counselorID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": c.Param("call_id"), "state": queue.StateWaiting})
}

type completeRequest struct {
	Report reports.Payload `json:"report"`
}

// Complete files the report and removes the call from the queue.
func (h Handlers) Complete(c *gin.Context) {
	counselorID, ok := counselorOf(c)
	if !ok {
		return
	}
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	out, err := h.Dispatcher.Complete(c.Request.Context(), c.Param("call_id"), counselorID, req.Report)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// --- Presence ---

type statusRequest struct {
	Available *bool `json:"available" binding:"required"`
}

func (h Handlers) SetStatus(c *gin.Context) {
	counselorID, ok := counselorOf(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, validationMessage(err))
		return
	}
	c.JSON(http.StatusOK, h.Dispatcher.SetStatus(c.Request.Context(), counselorID, *req.Available))
}

func (h Handlers) Heartbeat(c *gin.Context) {
	counselorID, ok := counselorOf(c)
	if !ok {
		return
	}
	if err := h.Dispatcher.Heartbeat(c.Request.Context(), counselorID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Reports ---

func (h Handlers) ListReports(c *gin.Context) {
	counselorID, ok := counselorOf(c)
	if !ok {
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	rows, err := h.Reports.ListByCounselor(c.Request.Context(), counselorID, reports.Search{
		By:    reports.SearchField(c.Query("search_by")),
		Term:  c.Query("search_term"),
		Limit: limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": rows, "count": len(rows)})
}

func (h Handlers) GetReport(c *gin.Context) {
	counselorID, ok := counselorOf(c)
	if !ok {
		return
	}
	rep, err := h.Reports.Get(c.Request.Context(), counselorID, c.Param("report_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ReportSummary aggregates the caller's reports; the range defaults to the last 30 days.
func (h Handlers) ReportSummary(c *gin.Context) {
	counselorID, ok := counselorOf(c)
	if !ok {
		return
	}
	to := h.now().UTC()
	from := to.AddDate(0, 0, -30)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			badRequest(c, "from must be RFC3339")
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			badRequest(c, "to must be RFC3339")
			return
		}
	}
	out, err := h.Reports.Summary(c.Request.Context(), reports.SummaryRequest{
		CounselorID: counselorID,
		Range:       reports.TimeRange{From: from, To: to},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Auth ---

// Logout revokes the presented access token and stops the counselor's session.
func (h Handlers) Logout(c *gin.Context) {
	jti, exp, err := auth.TokenID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token required", "code": "unauthorized"})
		return
	}
	if h.Revocations != nil {
		if err := h.Revocations.Revoke(c.Request.Context(), jti, exp); err != nil {
			logger.FromGin(c).Error("token revocation failed", "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "logout failed, please retry", "code": "unavailable"})
			return
		}
	}
	if id, err := auth.CounselorID(c.Request.Context()); err == nil {
		h.Dispatcher.SetStatus(c.Request.Context(), id, false)
	}
	c.Status(http.StatusNoContent)
}

// --- Admin ---

func (h Handlers) Counselors(c *gin.Context) {
	list := h.Dispatcher.Counselors()
	c.JSON(http.StatusOK, gin.H{"counselors": list, "count": len(list)})
}

func (h Handlers) QueueStats(c *gin.Context) {
	stats := h.Dispatcher.Stats()
	c.JSON(http.StatusOK, gin.H{
		"waiting": stats[queue.StateWaiting],
		"claimed": stats[queue.StateClaimed],
	})
}

// ResetQueue evicts every live call. Supervisor only.
func (h Handlers) ResetQueue(c *gin.Context) {
	actorID, _ := auth.CounselorID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	n := h.Dispatcher.ResetAll(c.Request.Context(), actorID, role)
	c.JSON(http.StatusOK, gin.H{"evicted": n})
}
