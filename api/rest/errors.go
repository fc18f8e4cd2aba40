package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/nickfinder/audit"
	mw "github.com/kasuganosora/nickfinder/middleware"
	"github.com/kasuganosora/nickfinder/social"
)

// fail writes the HTTP response for an operation error. Unknown errors are
// attached to the context so the request logger records them.
func fail(c *gin.Context, err error) {
	if v, ok := social.AsValidation(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": v.Reasons[0], "errors": v.Reasons})
		return
	}
	if r, ok := social.AsRejected(err); ok {
		status := http.StatusConflict
		if r.Code == social.CodeRateLimited {
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{"error": r.Reason, "code": r.Code})
		return
	}
	switch {
	case errors.Is(err, social.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, social.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, social.ErrNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "trace_id": mw.GetTraceID(c)})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// paramID parses a positive int64 path parameter, writing 400 on failure.
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// queryID parses an optional int64 query parameter; absent yields 0.
func queryID(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// record appends an audit entry for the current request.
func record(c *gin.Context, a *audit.Service, action string, charID, targetID int64, detail interface{}, err error) {
	e := audit.AuditEntry{
		TraceID:     mw.GetTraceID(c),
		UserID:      audit.ID(mw.GetUserID(c)),
		CharacterID: audit.ID(charID),
		TargetID:    audit.ID(targetID),
		Action:      action,
		Detail:      detail,
		IP:          c.ClientIP(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	a.Log(e)
}
