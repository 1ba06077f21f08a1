package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voicebot/internal/audit"
	"voicebot/internal/auth"
	"voicebot/internal/calls"
	"voicebot/internal/contacts"
	"voicebot/internal/dialout"
	"voicebot/internal/reporting"
	"voicebot/pkg/logger"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth    *auth.Manager
	Calls   CallStore
	Dialout Dialer
	Events  EventLog
	Reports Reporter

	// Ping checks store connectivity for the health probes.
	Ping func(ctx context.Context) error
}

type CallStore interface {
	Get(ctx context.Context, id string) (calls.CallRecord, error)
	List(ctx context.Context, f calls.ListFilter) ([]calls.CallRecord, error)
	SetTimeToCall(ctx context.Context, id string, at time.Time) error
}

type Dialer interface {
	Ready() error
	Single(ctx context.Context, to, from string) (dialout.Outcome, error)
	Batch(ctx context.Context, list []contacts.Contact) []dialout.Outcome
	Redial(ctx context.Context, id string) (dialout.Outcome, error)
}

type EventLog interface {
	List(ctx context.Context, callSID string) ([]audit.Event, error)
	LogOperatorAction(ctx context.Context, callSID, actorUserID, message string) error
}

type Reporter interface {
	CallsSummary(ctx context.Context, req reporting.CallsSummaryRequest) (reporting.CallsSummary, error)
}

// MaxUploadBytes bounds contact spreadsheets.
const MaxUploadBytes = 10 << 20

// --- Auth ---

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh exchanges a refresh token for a new pair. Tokens are minted by cmd/issue-token.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	now := time.Now()
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, now)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	pair, err := h.Auth.IssuePair(now, claims.UserID, claims.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Dial-out ---

type startRequest struct {
	ToNumber   string `json:"to_number" binding:"required"`
	FromNumber string `json:"from_number"`
}

// StartCall dials one number.
func (h Handlers) StartCall(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to_number required"})
		return
	}
	o, err := h.Dialout.Single(c.Request.Context(), req.ToNumber, req.FromNumber)
	if errors.Is(err, dialout.ErrNoPhoneNumber) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to_number required"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("dial failed", "to", req.ToNumber, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_sid": o.CallSID, "status": "call_initiated", "to_number": *o.Phone})
}

// UploadContacts parses a contact spreadsheet and dials every row in order.
func (h Handlers) UploadContacts(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	if fh.Size > MaxUploadBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file unreadable"})
		return
	}
	defer f.Close()

	list, err := contacts.Parse(f, fh.Filename)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log := logger.FromGin(c)
	log.Info("contact upload parsed", "file", fh.Filename, "rows", len(list))

	if err := h.Dialout.Ready(); err != nil {
		log.Error("batch dial unavailable", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Server misconfiguration: sender number not set", "data": list})
		return
	}
	results := h.Dialout.Batch(c.Request.Context(), list)
	c.JSON(http.StatusOK, gin.H{"results": results, "data": list})
}

// --- Call records ---

// ListCalls supports ?status=&email=&from=&to=&limit= with RFC3339 times.
func (h Handlers) ListCalls(c *gin.Context) {
	f := calls.ListFilter{Email: c.Query("email")}
	if v := c.Query("status"); v != "" {
		st, ok := calls.ParseStatus(v)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			return
		}
		f.Status = st
	}
	var err error
	if f.From, err = queryTime(c, "from"); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
		return
	}
	if f.To, err = queryTime(c, "to"); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
		return
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		f.Limit = n
	}

	recs, err := h.Calls.List(c.Request.Context(), f)
	if err != nil {
		logger.FromGin(c).Error("list calls failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h Handlers) GetCall(c *gin.Context) {
	rec, ok := h.record(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) CallEvents(c *gin.Context) {
	rec, ok := h.record(c)
	if !ok {
		return
	}
	evs, err := h.Events.List(c.Request.Context(), rec.CallSID)
	if err != nil {
		logger.FromGin(c).Error("list call events failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "events unavailable"})
		return
	}
	c.JSON(http.StatusOK, evs)
}

// Redial calls a record's number again under a new record.
func (h Handlers) Redial(c *gin.Context) {
	id, ok := recordID(c)
	if !ok {
		return
	}
	o, err := h.Dialout.Redial(c.Request.Context(), id)
	switch {
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	case err != nil:
		logger.FromGin(c).Error("redial failed", "id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	actor := auth.Actor(c.Request.Context())
	if err := h.Events.LogOperatorAction(c.Request.Context(), o.CallSID, actor, "redial of "+id); err != nil {
		logger.FromGin(c).Warn("operator action not recorded", "err", err)
	}
	c.JSON(http.StatusOK, gin.H{"call_sid": o.CallSID, "status": "call_initiated", "to_number": *o.Phone, "record_id": o.RecordID})
}

type timestampRequest struct {
	TimeToCall string `json:"time_to_call" binding:"required"`
}

// UpdateTimestamp lets an operator move a record's callback time.
func (h Handlers) UpdateTimestamp(c *gin.Context) {
	rec, ok := h.record(c)
	if !ok {
		return
	}
	var req timestampRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "time_to_call required"})
		return
	}
	at, err := dialout.ScheduleTime(req.TimeToCall)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "time_to_call must be RFC3339"})
		return
	}
	if err := h.Calls.SetTimeToCall(c.Request.Context(), rec.ID, at); err != nil {
		logger.FromGin(c).Error("set time_to_call failed", "id", rec.ID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	actor := auth.Actor(c.Request.Context())
	if err := h.Events.LogOperatorAction(c.Request.Context(), rec.CallSID, actor, "time_to_call set to "+at.Format(time.RFC3339)); err != nil {
		logger.FromGin(c).Warn("operator action not recorded", "err", err)
	}
	c.JSON(http.StatusOK, gin.H{"_id": rec.ID, "time_to_call": at})
}

// --- Reporting ---

func (h Handlers) Stats(c *gin.Context) {
	var req reporting.CallsSummaryRequest
	var err error
	if req.Range.From, err = queryTime(c, "from"); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
		return
	}
	if req.Range.To, err = queryTime(c, "to"); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
		return
	}
	sum, err := h.Reports.CallsSummary(c.Request.Context(), req)
	switch {
	case errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		logger.FromGin(c).Error("stats failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// --- Health ---

// Health always answers 200; the body reports store connectivity.
func (h Handlers) Health(c *gin.Context) {
	if h.Ping == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "not initialized"})
		return
	}
	if err := h.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "database": "disconnected", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "connected"})
}

func (h Handlers) record(c *gin.Context) (calls.CallRecord, bool) {
	id, ok := recordID(c)
	if !ok {
		return calls.CallRecord{}, false
	}
	rec, err := h.Calls.Get(c.Request.Context(), id)
	switch {
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return calls.CallRecord{}, false
	case err != nil:
		logger.FromGin(c).Error("get call failed", "id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return calls.CallRecord{}, false
	}
	return rec, true
}

func recordID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return "", false
	}
	return id, true
}

func queryTime(c *gin.Context, key string) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
