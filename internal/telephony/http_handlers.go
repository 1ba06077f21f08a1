package telephony

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voicebot/internal/audit"
	"voicebot/internal/calls"
	"voicebot/pkg/logger"
)

// Store is the part of the call record store the carrier webhooks touch.
type Store interface {
	Create(ctx context.Context, r calls.CallRecord) error
	FindByCallSID(ctx context.Context, callSID string) (calls.CallRecord, error)
	ApplyCarrierUpdate(ctx context.Context, callSID string, u calls.CarrierUpdate) error
}

type Events interface {
	Record(ctx context.Context, callSID string, typ audit.EventType, message string, metadata map[string]any)
}

// TwilioWebhookHandler converts Twilio webhooks to internal types and writes the responses.
//
// No business logic here.
type TwilioWebhookHandler struct {
	Store  Store
	Events Events

	// StreamURL is the public wss:// address of the media stream endpoint.
	StreamURL string

	// StatusForwarder is optional; it mirrors callbacks into the call system.
	StatusForwarder interface{ ForwardStatus(callSID, status string) }
}

// HandleTwiML answers the voice webhook with a media stream bridge.
// Inbound calls without a record get one so the rest of the lifecycle can find it.
func (h TwilioWebhookHandler) HandleTwiML(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseTwilioVoice(c.Request)
	if err != nil {
		log.Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	if form.CallSid != "" && h.Store != nil {
		h.trackInbound(c.Request.Context(), form)
	}

	twiml, err := RenderStreamTwiML(StreamTarget{
		URL:    h.StreamURL,
		Params: map[string]string{"to_number": form.To, "from_number": form.From},
	})
	if err != nil {
		log.Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}

	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}

func (h TwilioWebhookHandler) trackInbound(ctx context.Context, form TwilioVoiceForm) {
	log := logger.From(ctx)
	if _, err := h.Store.FindByCallSID(ctx, form.CallSid); err == nil {
		return
	}
	rec := calls.CallRecord{
		ID:      uuid.NewString(),
		Name:    form.CallerName,
		Phone:   form.From,
		CallSID: form.CallSid,
		Status:  calls.CallStatusRinging,
	}
	if form.FromCountry != "" {
		rec.FromCountry = &form.FromCountry
	}
	if form.ToCountry != "" {
		rec.ToCountry = &form.ToCountry
	}
	if err := h.Store.Create(ctx, rec); err != nil {
		if !errors.Is(err, calls.ErrDuplicateSID) {
			log.Warn("inbound call not recorded", "call_sid", form.CallSid, "from", form.From, "err", err)
		}
		return
	}
	if h.Events != nil {
		h.Events.Record(ctx, form.CallSid, audit.EventTypeCarrierStatus, "inbound", map[string]any{"from": form.From, "to": form.To})
	}
}

// HandleCallStatus applies a status callback. A missing record is logged and still acknowledged
// so the carrier does not retry.
func (h TwilioWebhookHandler) HandleCallStatus(c *gin.Context) {
	log := logger.FromGin(c)
	ctx := c.Request.Context()

	form, err := ParseTwilioStatus(c.Request)
	if err != nil || form.CallSid == "" {
		log.Warn("status callback parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if h.StatusForwarder != nil {
		h.StatusForwarder.ForwardStatus(form.CallSid, form.CallStatus)
	}

	u, err := form.CarrierUpdate()
	if err != nil {
		log.Warn("status callback ignored", "call_sid", form.CallSid, "err", err)
		c.JSON(http.StatusOK, gin.H{"status": "success"})
		return
	}

	if err := h.Store.ApplyCarrierUpdate(ctx, form.CallSid, u); err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			log.Warn("status callback for unknown call", "call_sid", form.CallSid, "status", form.CallStatus)
			c.JSON(http.StatusOK, gin.H{"status": "success"})
			return
		}
		log.Error("status update failed", "call_sid", form.CallSid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	if h.Events != nil {
		md := map[string]any{"status": string(u.Status)}
		if u.DurationSeconds != nil {
			md["duration"] = *u.DurationSeconds
		}
		h.Events.Record(ctx, form.CallSid, audit.EventTypeCarrierStatus, form.CallStatus, md)
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
