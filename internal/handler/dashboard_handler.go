package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kursadbilgin/hrp-console/internal/domain"
	"github.com/kursadbilgin/hrp-console/internal/orchestrator"
	"github.com/kursadbilgin/hrp-console/internal/upstream"
)

const maxPageSize = 500

// Pipeline is the slice of the orchestrator the HTTP layer drives.
type Pipeline interface {
	UpdateQuery(kind domain.RecordKind, q domain.QueryState) (<-chan struct{}, error)
	BatchSnapshot() orchestrator.BatchView
	ProcessSnapshot() orchestrator.ProcessView
	SubmitStatus(ctx context.Context, recordID int64, decision domain.Decision, comment string) error
}

// Downloader streams upstream CSV exports without interpreting them.
type Downloader interface {
	Download(ctx context.Context, kind domain.RecordKind, q domain.QueryState) (io.ReadCloser, string, error)
}

type DashboardHandler struct {
	pipeline   Pipeline
	downloader Downloader
}

func NewDashboardHandler(pipeline Pipeline, downloader Downloader) (*DashboardHandler, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	return &DashboardHandler{pipeline: pipeline, downloader: downloader}, nil
}

func RegisterDashboardRoutes(router fiber.Router, pipeline Pipeline, downloader Downloader) error {
	h, err := NewDashboardHandler(pipeline, downloader)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/batches", h.ListBatches)
	v1.Get("/batches/download", h.DownloadBatches)
	v1.Get("/processes", h.ListProcesses)
	v1.Get("/processes/download", h.DownloadProcesses)
	v1.Post("/processes/status", h.SubmitStatus)

	return nil
}

type batchResponse struct {
	BatchID        int64      `json:"batchId"`
	SourceDateTime time.Time  `json:"sourceDateTime"`
	PickupDateTime *time.Time `json:"pickupDateTime,omitempty"`
	FileCount      int        `json:"fileCount"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type processResponse struct {
	RecordID      int64     `json:"recordId"`
	InsertedAt    time.Time `json:"insertedAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	EffectiveAt   time.Time `json:"effectiveAt"`
	SubjectID     string    `json:"subjectId"`
	ActionType    string    `json:"actionType"`
	ResultPayload string    `json:"resultPayload,omitempty"`
	AgencyArea    string    `json:"agencyArea,omitempty"`
	Flags         int       `json:"flags"`
	SubjectNumber string    `json:"subjectNumber,omitempty"`
	Status        string    `json:"status"`
	ErrorMessage  *string   `json:"errorMessage,omitempty"`
	Name          string    `json:"name,omitempty"`
	ParentBatchID *int64    `json:"parentBatchId,omitempty"`
}

type listMeta struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	Total    int  `json:"total"`
	Approx   bool `json:"approx"`
}

type submitStatusRequest struct {
	RecordID int64  `json:"recordId"`
	Decision string `json:"decision"`
	Comment  string `json:"comment"`
}

func (h *DashboardHandler) ListBatches(c *fiber.Ctx) error {
	q, err := parseQuery(c, domain.KindBatch)
	if err != nil {
		return toHTTPError(err)
	}

	if err := h.refresh(c, domain.KindBatch, q); err != nil {
		return err
	}

	view := h.pipeline.BatchSnapshot()
	if view.State == orchestrator.StateError {
		return errorResponse(c, view.ErrorKind, view.ErrorMessage)
	}

	data := make([]batchResponse, 0, len(view.Result.Items))
	for _, item := range view.Result.Items {
		data = append(data, batchResponse{
			BatchID:        item.BatchID,
			SourceDateTime: item.SourceDateTime,
			PickupDateTime: item.PickupDateTime,
			FileCount:      item.FileCount,
			Status:         item.Status.String(),
			CreatedAt:      item.CreatedAt,
			UpdatedAt:      item.UpdatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": data,
		"meta": toListMeta(view.Result.Page, view.Result.PageSize, view.Result.TotalCount, view.Result.ApproxTotal),
	})
}

func (h *DashboardHandler) ListProcesses(c *fiber.Ctx) error {
	q, err := parseQuery(c, domain.KindProcess)
	if err != nil {
		return toHTTPError(err)
	}

	if err := h.refresh(c, domain.KindProcess, q); err != nil {
		return err
	}

	view := h.pipeline.ProcessSnapshot()
	if view.State == orchestrator.StateError {
		return errorResponse(c, view.ErrorKind, view.ErrorMessage)
	}

	data := make([]processResponse, 0, len(view.Result.Items))
	for _, item := range view.Result.Items {
		data = append(data, processResponse{
			RecordID:      item.RecordID,
			InsertedAt:    item.InsertedAt,
			UpdatedAt:     item.UpdatedAt,
			EffectiveAt:   item.EffectiveAt,
			SubjectID:     item.SubjectID,
			ActionType:    item.ActionType,
			ResultPayload: item.ResultPayload,
			AgencyArea:    item.AgencyArea,
			Flags:         item.Flags,
			SubjectNumber: item.SubjectNumber,
			Status:        item.Status,
			ErrorMessage:  item.ErrorMessage,
			Name:          item.Name,
			ParentBatchID: item.ParentBatchID,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": data,
		"meta": toListMeta(view.Result.Page, view.Result.PageSize, view.Result.TotalCount, view.Result.ApproxTotal),
	})
}

func (h *DashboardHandler) SubmitStatus(c *fiber.Ctx) error {
	var req submitStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.RecordID <= 0 {
		return toHTTPError(fmt.Errorf("%w: recordId is required", domain.ErrValidation))
	}
	decision, err := domain.ParseDecisionFromString(req.Decision)
	if err != nil {
		return toHTTPError(err)
	}

	if err := h.pipeline.SubmitStatus(c.Context(), req.RecordID, decision, req.Comment); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"recordId": req.RecordID,
		"status":   decision.String(),
		"comment":  strings.TrimSpace(req.Comment),
	})
}

func (h *DashboardHandler) DownloadBatches(c *fiber.Ctx) error {
	return h.download(c, domain.KindBatch)
}

func (h *DashboardHandler) DownloadProcesses(c *fiber.Ctx) error {
	return h.download(c, domain.KindProcess)
}

func (h *DashboardHandler) download(c *fiber.Ctx, kind domain.RecordKind) error {
	if h.downloader == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "downloads are not configured")
	}

	q, err := parseQuery(c, kind)
	if err != nil {
		return toHTTPError(err)
	}

	body, contentType, err := h.downloader.Download(c.Context(), kind, q)
	if err != nil {
		return errorResponse(c, upstream.KindOf(err), err.Error())
	}

	if contentType == "" {
		contentType = "text/csv"
	}
	c.Set(fiber.HeaderContentType, contentType)
	// fasthttp closes the stream once the response is written.
	return c.SendStream(body)
}

// refresh issues the query and waits for that request to settle. A request
// superseded mid-flight still settles; the snapshot then carries the newer
// query's outcome, which is exactly what the caller should see.
func (h *DashboardHandler) refresh(c *fiber.Ctx, kind domain.RecordKind, q domain.QueryState) error {
	done, err := h.pipeline.UpdateQuery(kind, q)
	if err != nil {
		return toHTTPError(err)
	}

	select {
	case <-done:
		return nil
	case <-c.Context().Done():
		return fiber.NewError(fiber.StatusRequestTimeout, "client went away")
	}
}

func parseQuery(c *fiber.Ctx, kind domain.RecordKind) (domain.QueryState, error) {
	q := domain.QueryState{
		Kind:      kind,
		Page:      c.QueryInt("page", 0),
		PageSize:  c.QueryInt("pageSize", 0),
		DateRange: domain.DateRange(strings.TrimSpace(c.Query("dateRange"))),
		Search:    strings.TrimSpace(c.Query("search")),
	}

	if q.Page < 0 {
		return domain.QueryState{}, fmt.Errorf("%w: page must be >= 0", domain.ErrValidation)
	}
	if q.PageSize < 0 || q.PageSize > maxPageSize {
		return domain.QueryState{}, fmt.Errorf("%w: pageSize must be between 0 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawSort := strings.TrimSpace(c.Query("sortBy")); rawSort != "" {
		q.SortColumn = rawSort
		if rawDir := strings.TrimSpace(c.Query("sortDir")); rawDir != "" {
			dir, err := domain.ParseSortDirectionFromString(rawDir)
			if err != nil {
				return domain.QueryState{}, err
			}
			q.SortDirection = dir
		}
	}

	if kind == domain.KindProcess {
		if rawBatch := strings.TrimSpace(c.Query("batchJobId")); rawBatch != "" {
			id := int64(c.QueryInt("batchJobId"))
			if id <= 0 {
				return domain.QueryState{}, fmt.Errorf("%w: batchJobId must be a positive integer", domain.ErrValidation)
			}
			q.AnchorBatchID = &id
		}
		q.AnchorDate = strings.TrimSpace(c.Query("searchDate"))
	}

	return q, nil
}

func toListMeta(page, pageSize, total int, approx bool) listMeta {
	return listMeta{
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		Approx:   approx,
	}
}

// errorResponse writes the taxonomy kind alongside the operator message so
// the dashboard can distinguish a slow upstream from a broken one.
func errorResponse(c *fiber.Ctx, kind upstream.Kind, message string) error {
	return c.Status(statusForKind(kind)).JSON(fiber.Map{
		"error": message,
		"kind":  kind.String(),
	})
}

func statusForKind(kind upstream.Kind) int {
	switch kind {
	case upstream.KindTimeout:
		return fiber.StatusGatewayTimeout
	case upstream.KindTransport, upstream.KindLogical, upstream.KindNetwork:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return err
	}
}
