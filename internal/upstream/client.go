package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/hrp-console/internal/domain"
)

const (
	defaultUpstreamTimeout = 30 * time.Second
	successSentinel        = "SUCCESS"

	batchesPath           = "/HRP/Batches"
	processesPath         = "/HRP/Processes"
	statusPath            = "/HRP/Processes/Status"
	batchesDownloadPath   = "/HRP/Batches/Download"
	processesDownloadPath = "/HRP/Processes/Download"
)

// envelope is the upstream response wrapper shared by both record kinds.
// Success is message == "SUCCESS" with a null errorMessage; anything else is
// a logical failure even on a 200.
type envelope struct {
	Message      string       `json:"message"`
	ErrorMessage *string      `json:"errorMessage"`
	Data         envelopeData `json:"data"`
}

type envelopeData struct {
	CurrentPage  int             `json:"currentPage"`
	TotalPage    int             `json:"totalPage"`
	TotalRecords *int            `json:"totalRecords"`
	DataPerPage  int             `json:"dataPerPage"`
	Data         json.RawMessage `json:"data"`
}

// Client is the gateway to the upstream HR data-processing system. It
// translates normalized query state into the upstream's parameter dialects
// and the upstream envelope back into PageResult.
type Client struct {
	client           *resty.Client
	batchesDialect   Dialect
	processesDialect Dialect
	now              func() time.Time
}

func NewClient(baseURL string, batchesDialect Dialect) (*Client, error) {
	client := resty.New()
	client.SetTimeout(defaultUpstreamTimeout)
	client.SetRetryCount(0)
	client.SetBaseURL(strings.TrimSpace(baseURL))

	return NewClientWithResty(client, batchesDialect)
}

func NewClientWithResty(client *resty.Client, batchesDialect Dialect) (*Client, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if strings.TrimSpace(client.BaseURL) == "" {
		return nil, fmt.Errorf("upstream base url is required")
	}
	if _, err := url.ParseRequestURI(client.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid upstream base url: %w", err)
	}
	if batchesDialect == nil {
		return nil, fmt.Errorf("batches dialect is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultUpstreamTimeout)
	}
	client.SetRetryCount(0)

	return &Client{
		client:           client,
		batchesDialect:   batchesDialect,
		processesDialect: DateRangeDialect{},
		now:              time.Now,
	}, nil
}

// FetchBatches retrieves one page of batch runs.
func (c *Client) FetchBatches(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.BatchRecord], error) {
	q = q.Normalize()

	data, err := c.fetchEnvelope(ctx, batchesPath, c.batchesDialect.Encode(q, c.now()))
	if err != nil {
		return domain.PageResult[domain.BatchRecord]{}, err
	}

	var wires []batchWire
	if err := json.Unmarshal(data.Data, &wires); err != nil {
		return domain.PageResult[domain.BatchRecord]{}, &Error{Kind: KindLogical, Message: "malformed batch payload", Cause: err}
	}

	items := make([]domain.BatchRecord, 0, len(wires))
	for _, w := range wires {
		items = append(items, w.toDomain())
	}
	return pageResult(items, q, data), nil
}

// FetchProcesses retrieves one page of per-record outcomes. The processes
// route always speaks the date-range dialect plus the batch association
// parameters.
func (c *Client) FetchProcesses(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.ProcessRecord], error) {
	q = q.Normalize()

	values := c.processesDialect.Encode(q, c.now())
	values.Set("includeBatchId", "true")
	if q.AnchorBatchID != nil {
		values.Set("batchJobId", strconv.FormatInt(*q.AnchorBatchID, 10))
	}
	if q.AnchorDate != "" {
		values.Set("searchDate", q.AnchorDate)
	}

	data, err := c.fetchEnvelope(ctx, processesPath, values)
	if err != nil {
		return domain.PageResult[domain.ProcessRecord]{}, err
	}

	var wires []processWire
	if err := json.Unmarshal(data.Data, &wires); err != nil {
		return domain.PageResult[domain.ProcessRecord]{}, &Error{Kind: KindLogical, Message: "malformed process payload", Cause: err}
	}

	items := make([]domain.ProcessRecord, 0, len(wires))
	for _, w := range wires {
		items = append(items, w.toDomain())
	}
	return pageResult(items, q, data), nil
}

// StatusUpdate is the write-back payload for one operator decision.
type StatusUpdate struct {
	RecordID    int64
	Decision    domain.Decision
	Comment     string
	ActionType  string
	InsertedAt  time.Time
	EffectiveAt time.Time
	UpdatedAt   time.Time
}

type statusUpdateRequest struct {
	Status        int    `json:"status"`
	Comment       string `json:"comment"`
	Type          string `json:"type"`
	DataID        int64  `json:"dataID"`
	InsertDate    string `json:"insertDate"`
	EffectiveDate string `json:"effectiveDate"`
	UpdateDate    string `json:"updateDate"`
}

// SubmitStatus writes one override back to the upstream. Callers treat the
// outcome as best-effort; the local override stands either way.
func (c *Client) SubmitStatus(ctx context.Context, update StatusUpdate) error {
	code, err := decisionWireCode(update.Decision)
	if err != nil {
		return err
	}

	body := statusUpdateRequest{
		Status:        code,
		Comment:       update.Comment,
		Type:          update.ActionType,
		DataID:        update.RecordID,
		InsertDate:    update.InsertedAt.Format(time.RFC3339),
		EffectiveDate: update.EffectiveAt.Format(time.RFC3339),
		UpdateDate:    update.UpdatedAt.Format(time.RFC3339),
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(statusPath)
	if err != nil {
		return classifyRequestError(err)
	}
	if response == nil {
		return &Error{Kind: KindNetwork, Message: "upstream returned empty response"}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return &Error{Kind: KindTransport, StatusCode: statusCode, Message: transportMessage(statusCode, response.String())}
	}

	var env envelope
	if err := json.Unmarshal(response.Body(), &env); err != nil {
		return &Error{Kind: KindLogical, Message: "malformed upstream envelope", Cause: err}
	}
	return checkEnvelope(env)
}

// Download streams the upstream's CSV export unmodified. The body is opaque
// bytes; the caller owns closing it.
func (c *Client) Download(ctx context.Context, kind domain.RecordKind, q domain.QueryState) (io.ReadCloser, string, error) {
	q = q.Normalize()

	var path string
	var values url.Values
	switch kind {
	case domain.KindBatch:
		path = batchesDownloadPath
		values = c.batchesDialect.Encode(q, c.now())
	case domain.KindProcess:
		path = processesDownloadPath
		values = c.processesDialect.Encode(q, c.now())
		values.Set("includeBatchId", "true")
	default:
		return nil, "", fmt.Errorf("%w: unknown record kind %q", domain.ErrValidation, kind)
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetQueryParamsFromValues(values).
		Get(path)
	if err != nil {
		return nil, "", classifyRequestError(err)
	}
	if response == nil || response.RawBody() == nil {
		return nil, "", &Error{Kind: KindNetwork, Message: "upstream returned empty response"}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		_ = response.RawBody().Close()
		return nil, "", &Error{Kind: KindTransport, StatusCode: statusCode, Message: transportMessage(statusCode, "")}
	}

	return response.RawBody(), response.Header().Get("Content-Type"), nil
}

func (c *Client) fetchEnvelope(ctx context.Context, path string, values url.Values) (*envelopeData, error) {
	response, err := c.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(values).
		Get(path)
	if err != nil {
		return nil, classifyRequestError(err)
	}
	if response == nil {
		return nil, &Error{Kind: KindNetwork, Message: "upstream returned empty response"}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &Error{Kind: KindTransport, StatusCode: statusCode, Message: transportMessage(statusCode, response.String())}
	}

	var env envelope
	if err := json.Unmarshal(response.Body(), &env); err != nil {
		return nil, &Error{Kind: KindLogical, Message: "malformed upstream envelope", Cause: err}
	}
	if err := checkEnvelope(env); err != nil {
		return nil, err
	}

	return &env.Data, nil
}

// checkEnvelope enforces the success sentinel. A bad envelope must fail
// loudly, never degrade into an empty page indistinguishable from "no
// matching records".
func checkEnvelope(env envelope) error {
	if env.ErrorMessage != nil && strings.TrimSpace(*env.ErrorMessage) != "" {
		return &Error{Kind: KindLogical, Message: *env.ErrorMessage}
	}
	if env.Message != successSentinel {
		return &Error{Kind: KindLogical, Message: fmt.Sprintf("upstream reported %q", env.Message)}
	}
	if env.ErrorMessage != nil {
		return &Error{Kind: KindLogical, Message: "upstream reported a non-null error"}
	}
	return nil
}

func pageResult[T any](items []T, q domain.QueryState, data *envelopeData) domain.PageResult[T] {
	pageSize := data.DataPerPage
	if pageSize <= 0 {
		pageSize = q.PageSize
	}

	result := domain.PageResult[T]{
		Items:    items,
		Page:     q.Page,
		PageSize: pageSize,
	}

	if data.TotalRecords != nil {
		result.TotalCount = *data.TotalRecords
		return result
	}

	// totalPage*dataPerPage overstates the count on a partial last page;
	// the flag keeps callers from presenting it as exact.
	result.TotalCount = data.TotalPage * data.DataPerPage
	result.ApproxTotal = true
	return result
}

func decisionWireCode(d domain.Decision) (int, error) {
	switch d {
	case domain.DecisionReviewed:
		return 0, nil
	case domain.DecisionOthers:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: invalid decision %q", domain.ErrValidation, d)
	}
}

func transportMessage(statusCode int, body string) string {
	base := fmt.Sprintf("upstream returned status %d", statusCode)
	body = strings.TrimSpace(body)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
