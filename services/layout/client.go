package layoutsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/seating"
	logsvc "github.com/trezcool/shule/services/logger"
)

const (
	serviceName    = "layout service"
	defaultSection = "A"
	maxBodyLog     = 512
)

var errMalformed = errors.New("malformed layout payload")

// Client calls the external seating layout service.
type Client struct {
	client         *resty.Client
	logger         core.Logger
	healthTimeout  time.Duration
	requestTimeout time.Duration
}

var _ seating.LayoutClient = (*Client)(nil)

func NewClient(conf *core.Config, logger core.Logger) *Client {
	client := resty.New().
		SetBaseURL(conf.Seating.ServiceURL).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", conf.AppName+"/"+conf.Build).
		SetLogger(logsvc.RestyLogger{Logger: logger})

	client.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		logger.Debug(fmt.Sprintf("layout service request: %s %s", req.Method, req.URL))
		return nil
	})
	client.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logger.Debug(fmt.Sprintf("layout service response: %d (took %v)", resp.StatusCode(), resp.Time()))
		return nil
	})

	return &Client{
		client:         client,
		logger:         logger,
		healthTimeout:  conf.Seating.HealthTimeout,
		requestTimeout: conf.Seating.RequestTimeout,
	}
}

func (c *Client) CheckHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	resp, err := c.client.R().SetContext(ctx).Get("/health")
	if err != nil {
		c.logger.Warn("layout service health check failed", err)
		return false
	}
	if !resp.IsSuccess() {
		c.logger.Warn(fmt.Sprintf("layout service health check failed with status %d", resp.StatusCode()))
		return false
	}
	return true
}

func (c *Client) RequestLayout(ctx context.Context, req seating.LayoutRequest) (seating.LayoutPayload, error) {
	if req.Section == "" {
		req.Section = defaultSection
	}
	students := make([]seating.LayoutStudent, len(req.Students))
	for i, s := range req.Students {
		if s.Section == "" {
			s.Section = req.Section
		}
		students[i] = s
	}
	req.Students = students

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	extras := map[string]interface{}{
		"grade":         req.Grade,
		"section":       req.Section,
		"students":      len(req.Students),
		"seats_per_row": req.SeatsPerRow,
		"total_rows":    req.TotalRows,
	}
	resp, err := c.client.R().SetContext(ctx).SetBody(req).Post("/generate-seating")
	if err != nil {
		c.logger.Error("layout service request failed", err, extras)
		return seating.LayoutPayload{}, &core.UpstreamRequestError{Service: serviceName, Err: err}
	}
	if !resp.IsSuccess() {
		upErr := &core.UpstreamRequestError{
			Service:    serviceName,
			StatusCode: resp.StatusCode(),
			Body:       truncate(resp.String()),
			Err:        errors.New(http.StatusText(resp.StatusCode())),
		}
		extras["status"] = upErr.StatusCode
		extras["body"] = upErr.Body
		c.logger.Error("layout service returned an error", upErr, extras)
		return seating.LayoutPayload{}, upErr
	}

	payload, err := Normalize(resp.Body(), req.TotalRows, req.SeatsPerRow)
	if err != nil {
		upErr := &core.UpstreamRequestError{
			Service:    serviceName,
			StatusCode: resp.StatusCode(),
			Body:       truncate(resp.String()),
			Err:        err,
		}
		extras["body"] = upErr.Body
		c.logger.Error("layout service returned a malformed payload", upErr, extras)
		return seating.LayoutPayload{}, upErr
	}
	return payload, nil
}

type rawEntry struct {
	StudentID  json.RawMessage `json:"student_id"`
	Row        *int            `json:"row"`
	Column     *int            `json:"column"`
	SeatNumber *int            `json:"seat_number"`
	SeatLabel  *string         `json:"seat_label"`
}

// Normalize validates a layout document and returns its placements.
// The layout may be nested under a "data" object or be at the top level; nothing else is accepted.
func Normalize(body []byte, totalRows, seatsPerRow int) (seating.LayoutPayload, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil || top == nil {
		return seating.LayoutPayload{}, errors.Wrap(errMalformed, "body is not a JSON object")
	}
	if raw, ok := top["success"]; ok {
		var success bool
		if err := json.Unmarshal(raw, &success); err != nil {
			return seating.LayoutPayload{}, errors.Wrap(errMalformed, "success is not a boolean")
		}
		if !success {
			return seating.LayoutPayload{}, errors.Wrap(errMalformed, "service reported failure")
		}
	}

	doc := top
	layout := json.RawMessage(body)
	if raw, ok := top["data"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err != nil || nested == nil {
			return seating.LayoutPayload{}, errors.Wrap(errMalformed, "data is not an object")
		}
		doc = nested
		layout = raw
	}

	rawArr, ok := doc["arrangement"]
	if !ok {
		return seating.LayoutPayload{}, errors.Wrap(errMalformed, "missing arrangement")
	}
	var entries []rawEntry
	if err := json.Unmarshal(rawArr, &entries); err != nil || entries == nil {
		return seating.LayoutPayload{}, errors.Wrap(errMalformed, "arrangement is not a list of placements")
	}

	payload := seating.LayoutPayload{
		Arrangement: make([]seating.LayoutEntry, 0, len(entries)),
		Raw:         compact(layout),
	}
	for i, e := range entries {
		if e.Row == nil || e.Column == nil {
			return seating.LayoutPayload{}, errors.Wrapf(errMalformed, "placement %d: missing row or column", i)
		}
		if *e.Row < 1 || *e.Row > totalRows || *e.Column < 1 || *e.Column > seatsPerRow {
			return seating.LayoutPayload{}, errors.Wrapf(errMalformed, "placement %d: seat (%d, %d) outside of the %dx%d grid",
				i, *e.Row, *e.Column, totalRows, seatsPerRow)
		}
		studentID, err := parseStudentID(e.StudentID)
		if err != nil {
			return seating.LayoutPayload{}, errors.Wrapf(errMalformed, "placement %d: %v", i, err)
		}
		entry := seating.LayoutEntry{StudentID: studentID, Row: *e.Row, Column: *e.Column}
		if e.SeatNumber != nil {
			entry.SeatNumber = *e.SeatNumber
		}
		if e.SeatLabel != nil {
			entry.SeatLabel = *e.SeatLabel
		}
		payload.Arrangement = append(payload.Arrangement, entry)
	}
	return payload, nil
}

// parseStudentID accepts a positive integer, a numeric string, null or nothing (0).
func parseStudentID(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var id int
	if err := json.Unmarshal(raw, &id); err == nil {
		if id < 0 {
			return 0, errors.Errorf("invalid student_id %d", id)
		}
		return id, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, errors.Errorf("invalid student_id %s", raw)
	}
	if s == "" {
		return 0, nil
	}
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, errors.Errorf("invalid student_id %q", s)
	}
	return id, nil
}

func compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

func truncate(s string) string {
	if len(s) > maxBodyLog {
		return s[:maxBodyLog] + "..."
	}
	return s
}
