package predictsvc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/prediction"
	logsvc "github.com/trezcool/shule/services/logger"
)

const (
	serviceName   = "prediction service"
	statusHealthy = "healthy"
	maxBodyLog    = 512
)

// Client calls the external performance prediction service.
type Client struct {
	client         *resty.Client
	logger         core.Logger
	healthTimeout  time.Duration
	requestTimeout time.Duration
	trackPath      string
}

var _ prediction.Client = (*Client)(nil)

func NewClient(conf *core.Config, logger core.Logger) *Client {
	client := resty.New().
		SetBaseURL(conf.Prediction.ServiceURL).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", conf.AppName+"/"+conf.Build).
		SetLogger(logsvc.RestyLogger{Logger: logger})

	client.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		logger.Debug(fmt.Sprintf("prediction service request: %s %s", req.Method, req.URL))
		return nil
	})
	client.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logger.Debug(fmt.Sprintf("prediction service response: %d (took %v)", resp.StatusCode(), resp.Time()))
		return nil
	})

	return &Client{
		client:         client,
		logger:         logger,
		healthTimeout:  conf.Prediction.HealthTimeout,
		requestTimeout: conf.Prediction.RequestTimeout,
		trackPath:      conf.Prediction.TrackPath,
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

// CheckHealth requires a 2xx `{"status": "healthy"}` response.
func (c *Client) CheckHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	var health healthResponse
	resp, err := c.client.R().SetContext(ctx).SetResult(&health).Get("/health")
	if err != nil {
		c.logger.Warn("prediction service health check failed", err)
		return false
	}
	if !resp.IsSuccess() || health.Status != statusHealthy {
		c.logger.Warn(fmt.Sprintf("prediction service is not healthy (status %d)", resp.StatusCode()),
			map[string]interface{}{"body": truncate(resp.String())})
		return false
	}
	return true
}

// post sends `body` and decodes a successful response into `result`; any failure is an *core.UpstreamRequestError.
func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.client.R().SetContext(ctx).SetBody(body).SetResult(result).Post(path)
	if err != nil {
		return &core.UpstreamRequestError{Service: serviceName, Err: errors.Wrap(err, "POST "+path)}
	}
	if !resp.IsSuccess() {
		return &core.UpstreamRequestError{
			Service:    serviceName,
			StatusCode: resp.StatusCode(),
			Body:       truncate(resp.String()),
			Err:        errors.New(http.StatusText(resp.StatusCode())),
		}
	}
	return nil
}

func (c *Client) malformed(resp string, format string, args ...interface{}) error {
	return &core.UpstreamRequestError{
		Service:    serviceName,
		StatusCode: http.StatusOK,
		Body:       truncate(resp),
		Err:        errors.Errorf(format, args...),
	}
}

func (c *Client) Predict(ctx context.Context, req prediction.StudentData) (prediction.Forecast, error) {
	var forecast prediction.Forecast
	if err := c.post(ctx, "/predict", req, &forecast); err != nil {
		return prediction.Forecast{}, err
	}
	if forecast.Predictions == nil {
		return prediction.Forecast{}, c.malformed("", "missing predictions for student %d", req.StudentID)
	}
	if forecast.StudentID != 0 && forecast.StudentID != req.StudentID {
		return prediction.Forecast{}, c.malformed("", "predictions of student %d returned for student %d", forecast.StudentID, req.StudentID)
	}
	forecast.StudentID = req.StudentID
	return forecast, nil
}

type batchRequest struct {
	Students []prediction.StudentData `json:"students"`
}

func (c *Client) PredictBatch(ctx context.Context, students []prediction.StudentData) (prediction.BatchForecast, error) {
	var forecast prediction.BatchForecast
	if err := c.post(ctx, "/predict/batch", batchRequest{Students: students}, &forecast); err != nil {
		return prediction.BatchForecast{}, err
	}
	if forecast.Results == nil {
		return prediction.BatchForecast{}, c.malformed("", "missing batch results")
	}
	return forecast, nil
}

type trackResponse struct {
	Prediction *prediction.TrackPrediction `json:"prediction"`
}

func (c *Client) PredictTrack(ctx context.Context, req prediction.TrackData) (prediction.TrackPrediction, error) {
	var track trackResponse
	if err := c.post(ctx, c.trackPath, req, &track); err != nil {
		return prediction.TrackPrediction{}, err
	}
	if track.Prediction == nil || track.Prediction.PredictedTrack == "" {
		return prediction.TrackPrediction{}, c.malformed("", "missing predicted track")
	}
	return *track.Prediction, nil
}

func truncate(s string) string {
	if len(s) > maxBodyLog {
		return s[:maxBodyLog] + "..."
	}
	return s
}
