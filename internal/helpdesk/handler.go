package helpdesk

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"receipthub/internal/logger"
	"receipthub/pkg/errors"
)

type BaseHandler struct {
	Service Service
	Logger  logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToProblemResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
	Audit AuditRepository
}

func NewHandler(service Service, audit AuditRepository, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{
			Service: service,
			Logger:  log,
		},
		Audit: audit,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		receipts := v1.Group("/receipts")
		{
			receipts.GET("/:eventId", h.GetReceipt)
			receipts.POST("/:eventId/recover-failed", h.RecoverReceipt)
			receipts.POST("/recover-failed", h.RecoverReceiptsMassive)
			receipts.POST("/:eventId/recover-not-notified", h.RecoverNotNotified)
			receipts.POST("/recover-not-notified", h.RecoverNotNotifiedMassive)
		}

		receiptErrors := v1.Group("/receipt-errors")
		{
			receiptErrors.POST("/:id/review", h.ReviewReceiptError)
			receiptErrors.POST("/requeue-reviewed", h.RequeueReviewed)
		}

		audit := v1.Group("/audit")
		{
			audit.GET("/sweeps", h.ListSweeps)
		}
	}
}

// GetReceipt godoc
// @Summary      Get a receipt by event id
// @Description  Look up the receipt created for a payment event
// @Tags         receipts
// @Produce      json
// @Param        eventId  path  string  true  "Source event id"
// @Success      200  {object}  model.Receipt
// @Failure      404  {object}  map[string]interface{}
// @Router       /receipts/{eventId} [get]
func (h *Handler) GetReceipt(c *gin.Context) {
	receipt, err := h.Service.GetReceipt(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// RecoverReceipt godoc
// @Summary      Recover a stuck receipt
// @Description  Requeue a receipt stuck in NOT_QUEUE_SENT, INSERTED or FAILED for PDF generation
// @Tags         receipts
// @Produce      json
// @Param        eventId  path  string  true  "Source event id"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]interface{}
// @Failure      422  {object}  map[string]interface{}
// @Router       /receipts/{eventId}/recover-failed [post]
func (h *Handler) RecoverReceipt(c *gin.Context) {
	eventID := c.Param("eventId")
	if err := h.Service.RecoverReceipt(c.Request.Context(), eventID); err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"eventId": eventID, "status": "recovered"})
}

// RecoverReceiptsMassive godoc
// @Summary      Recover all stuck receipts
// @Description  Sweep every receipt stuck before PDF generation inside the lookback window
// @Tags         receipts
// @Produce      json
// @Param        status  query  string  false  "Restrict the sweep to one status"
// @Success      200  {object}  model.MassiveRecoverResult
// @Failure      400  {object}  map[string]interface{}
// @Router       /receipts/recover-failed [post]
func (h *Handler) RecoverReceiptsMassive(c *gin.Context) {
	result, err := h.Service.RecoverReceiptsMassive(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RecoverNotNotified godoc
// @Summary      Reset a stuck notification
// @Description  Clear the notification retry state of a generated receipt
// @Tags         receipts
// @Produce      json
// @Param        eventId  path  string  true  "Source event id"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]interface{}
// @Failure      422  {object}  map[string]interface{}
// @Router       /receipts/{eventId}/recover-not-notified [post]
func (h *Handler) RecoverNotNotified(c *gin.Context) {
	eventID := c.Param("eventId")
	if err := h.Service.RecoverNotNotified(c.Request.Context(), eventID); err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"eventId": eventID, "status": "recovered"})
}

// RecoverNotNotifiedMassive godoc
// @Summary      Reset all stuck notifications
// @Description  Sweep every generated receipt whose user notification is stuck
// @Tags         receipts
// @Produce      json
// @Param        status  query  string  false  "Restrict the sweep to one status"
// @Success      200  {object}  model.MassiveRecoverResult
// @Failure      400  {object}  map[string]interface{}
// @Router       /receipts/recover-not-notified [post]
func (h *Handler) RecoverNotNotifiedMassive(c *gin.Context) {
	result, err := h.Service.RecoverNotNotifiedMassive(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ReviewReceiptError godoc
// @Summary      Mark a poisoned message as reviewed
// @Description  Move a parked poison record from TO_REVIEW to REVIEWED so the requeue sweep picks it up
// @Tags         receipt-errors
// @Produce      json
// @Param        id  path  string  true  "Receipt error id"
// @Success      200  {object}  model.ReceiptError
// @Failure      404  {object}  map[string]interface{}
// @Failure      422  {object}  map[string]interface{}
// @Router       /receipt-errors/{id}/review [post]
func (h *Handler) ReviewReceiptError(c *gin.Context) {
	record, err := h.Service.ReviewReceiptError(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// RequeueReviewed godoc
// @Summary      Requeue reviewed poison messages
// @Description  Forward every REVIEWED poison payload back onto the generation queue
// @Tags         receipt-errors
// @Produce      json
// @Success      200  {object}  model.MassiveRecoverResult
// @Router       /receipt-errors/requeue-reviewed [post]
func (h *Handler) RequeueReviewed(c *gin.Context) {
	result, err := h.Service.RequeueReviewed(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListSweeps godoc
// @Summary      List recovery sweeps
// @Description  Get the audit trail of recent recovery sweeps
// @Tags         audit
// @Produce      json
// @Param        limit  query  int  false  "Maximum entries to return"  default(100)
// @Success      200  {array}  SweepRecord
// @Router       /audit/sweeps [get]
func (h *Handler) ListSweeps(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.HandleError(c, errors.ErrValidation.WithDetail("message", "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	if h.Audit == nil {
		c.JSON(http.StatusOK, []SweepRecord{})
		return
	}

	records, err := h.Audit.ListSweeps(c.Request.Context(), limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if records == nil {
		records = []SweepRecord{}
	}
	c.JSON(http.StatusOK, records)
}
