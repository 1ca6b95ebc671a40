package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"grievance/internal/complaint"
	apperrors "grievance/internal/errors"
	"grievance/internal/evidence"
	"grievance/internal/logging"
	"grievance/internal/summary"
	"grievance/internal/telephony"
)

type handlers struct {
	d   Deps
	log logging.Logger
}

// fail maps the error taxonomy onto a status code and the {success:false}
// envelope the dashboard expects.
func (h *handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsNotFound(err):
		status = http.StatusNotFound
	case apperrors.IsCollaborator(err):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		h.log.WithContext(c.Request.Context()).Error("request error", logging.F("path", c.FullPath()), logging.Err(err))
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

// newComplaintRequest is decoded leniently: the voice assistant sends numeric
// phones and ids, and unknown keys are ignored.
type newComplaintRequest struct {
	ID      complaint.Text  `json:"id"`
	Type    complaint.Text  `json:"type"`
	Subject complaint.Text  `json:"subject"`
	Desc    complaint.Text  `json:"desc"`
	Loc     complaint.Text  `json:"loc"`
	Status  complaint.Text  `json:"status"`
	Date    complaint.Text  `json:"date"`
	Phone   complaint.Text  `json:"phone"`
	Dept    complaint.Text  `json:"dept"`
	Lat     complaint.Coord `json:"lat"`
	Long    complaint.Coord `json:"long"`
	Img     complaint.Text  `json:"img"`
	Email   complaint.Text  `json:"email"`
	Source  complaint.Text  `json:"source"`
}

func (r newComplaintRequest) partial() complaint.Partial {
	return complaint.Partial{
		ID:      r.ID.String(),
		Type:    r.Type.String(),
		Subject: r.Subject.String(),
		Desc:    r.Desc.String(),
		Loc:     r.Loc.String(),
		Status:  r.Status.String(),
		Date:    r.Date.String(),
		Phone:   r.Phone.String(),
		Dept:    r.Dept.String(),
		Lat:     r.Lat,
		Long:    r.Long,
		Img:     r.Img.String(),
		Email:   r.Email.String(),
	}
}

func (h *handlers) createComplaint(c *gin.Context) {
	var req newComplaintRequest
	// An empty body is an empty complaint; the normalizer fills every field.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid complaint payload: "+err.Error())
		return
	}
	src := complaint.SourceWeb
	if complaint.Source(req.Source) == complaint.SourceVoice {
		src = complaint.SourceVoice
	}

	created, err := h.d.Service.Create(c.Request.Context(), req.partial(), src)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": created.ID})
}

func (h *handlers) listComplaints(c *gin.Context) {
	c.JSON(http.StatusOK, h.d.Service.List())
}

func (h *handlers) uploadPhoto(c *gin.Context) {
	file, err := c.FormFile("photo")
	if err != nil {
		badRequest(c, "No file uploaded")
		return
	}
	f, err := file.Open()
	if err != nil {
		badRequest(c, "unreadable upload")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		badRequest(c, "unreadable upload")
		return
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	res, err := h.d.Evidence.Submit(c.Request.Context(), evidence.Submission{
		ID:          strings.TrimSpace(c.PostForm("id")),
		Filename:    file.Filename,
		ContentType: contentType,
		Data:        data,
		Lat:         complaint.Coord(strings.TrimSpace(c.PostForm("lat"))),
		Long:        complaint.Coord(strings.TrimSpace(c.PostForm("long"))),
	})
	switch {
	case apperrors.IsValidationRejected(err):
		c.JSON(http.StatusOK, gin.H{"success": false, "spam": true})
		return
	case apperrors.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Complaint ID not found"})
		return
	case err != nil:
		h.fail(c, err)
		return
	}

	body := gin.H{"success": true, "url": res.URL, "spam": false}
	if res.Warning != "" {
		body["warning"] = res.Warning
	}
	c.JSON(http.StatusOK, body)
}

type rejectRequest struct {
	ID     string `json:"id" binding:"required"`
	Reason string `json:"reason"`
}

func (h *handlers) rejectComplaint(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "id is required")
		return
	}
	callSid, err := h.d.Service.Reject(c.Request.Context(), req.ID, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "callSid": callSid})
}

type auditRequest struct {
	Loc   string      `json:"loc" binding:"required"`
	Dept  string      `json:"dept" binding:"required"`
	Count json.Number `json:"count"`
}

func (h *handlers) auditCluster(c *gin.Context) {
	var req auditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "loc and dept are required")
		return
	}
	count := req.Count.String()
	if count == "" {
		count = "0"
	}
	callSid, err := h.d.Audit.StartAudit(c.Request.Context(), req.Loc, req.Dept, count)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "callSid": callSid})
}

// ivrPrompt serves the audit script the provider fetches when the call connects.
func (h *handlers) ivrPrompt(c *gin.Context) {
	doc, err := h.d.Audit.PromptScript(c.Query("dept"), c.Query("loc"), c.Query("count"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(doc))
}

type ivrResultRequest struct {
	CallID string `json:"callId"`
	Digit  string `json:"digit"`
}

// ivrResult accepts the provider's form webhook (CallSid, Digits) or a JSON
// body (callId, digit) from internal tooling.
func (h *handlers) ivrResult(c *gin.Context) {
	var req ivrResultRequest
	isJSON := strings.HasPrefix(c.ContentType(), "application/json")
	if isJSON {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid result payload")
			return
		}
	} else {
		req.CallID = c.PostForm("CallSid")
		req.Digit = c.PostForm("Digits")
	}
	if strings.TrimSpace(req.CallID) == "" {
		badRequest(c, "callId is required")
		return
	}

	if err := h.d.Audit.RecordResult(c.Request.Context(), req.CallID, req.Digit); err != nil {
		h.fail(c, err)
		return
	}
	if isJSON {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}
	doc, err := telephony.ThanksScript()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(doc))
}

func (h *handlers) auditStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": h.d.Audit.CheckStatus(c.Request.Context(), c.Param("callId"))})
}

func (h *handlers) token(c *gin.Context) {
	tok, err := h.d.Tokens.VoiceToken(telephony.BrowserIdentity)
	if err != nil {
		h.log.WithContext(c.Request.Context()).Error("token generation failed", logging.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to generate token",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok, "identity": telephony.BrowserIdentity})
}

func (h *handlers) testCredentials(c *gin.Context) {
	c.JSON(http.StatusOK, h.d.Credentials)
}

func (h *handlers) summaryImage(c *gin.Context) {
	png, err := h.d.Summary.Render(h.d.Service.List(), time.Now())
	if errors.Is(err, summary.ErrNothingPending) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *handlers) broadcastSummary(c *gin.Context) {
	if h.d.Officials == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "officials channel not configured"})
		return
	}
	all := h.d.Service.List()
	png, err := h.d.Summary.Render(all, time.Now())
	if errors.Is(err, summary.ErrNothingPending) {
		c.JSON(http.StatusOK, gin.H{"success": true, "pending": 0})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	pending := len(summary.Pending(all))
	if err := h.d.Officials.SendPhoto(c.Request.Context(), "Pending grievances", png); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pending": pending})
}
