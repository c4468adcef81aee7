package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/logging"
)

const (
	forecastPath    = "/forecast"
	currentFields   = "temperature_2m,relative_humidity_2m"
	openMeteoLayout = "2006-01-02T15:04"
)

// WeatherOptions parameterise the Open-Meteo fetcher.
type WeatherOptions struct {
	BaseURL   string
	Latitude  float64
	Longitude float64
	Timeout   time.Duration
	UserAgent string
}

// Weather fetches current conditions from an Open-Meteo compatible API.
type Weather struct {
	opts    WeatherOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewWeather constructs a weather fetcher.
func NewWeather(opts WeatherOptions, logger zerolog.Logger) *Weather {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.open-meteo.com/v1"
	}

	return &Weather{
		opts:    opts,
		logger:  logging.Component(logger, "weather_fetcher"),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchConditions retrieves the current temperature and relative humidity.
func (w *Weather) FetchConditions(ctx context.Context) (Conditions, error) {
	if w.opts.Latitude < -90 || w.opts.Latitude > 90 || w.opts.Longitude < -180 || w.opts.Longitude > 180 {
		return Conditions{}, errors.New("latitude/longitude out of range")
	}

	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(w.opts.Latitude, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(w.opts.Longitude, 'f', -1, 64))
	query.Set("current", currentFields)
	query.Set("timezone", "GMT")

	endpoint := w.baseURL + forecastPath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Conditions{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(w.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "heatwatch/1.0")
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return Conditions{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Conditions{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return Conditions{}, parseHTTPError(resp.StatusCode, payload)
	}

	var res forecastResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return Conditions{}, fmt.Errorf("decode forecast: %w", err)
	}
	if res.Current.Temperature == nil || res.Current.Humidity == nil {
		return Conditions{}, errors.New("forecast response missing current conditions")
	}

	observed := time.Now().UTC()
	if res.Current.Time != "" {
		if t, err := time.Parse(openMeteoLayout, res.Current.Time); err == nil {
			observed = t
		}
	}

	w.logger.Debug().
		Float64("temperature_c", *res.Current.Temperature).
		Float64("humidity", *res.Current.Humidity).
		Msg("ambient conditions fetched")

	return Conditions{
		TemperatureC:     *res.Current.Temperature,
		RelativeHumidity: *res.Current.Humidity,
		ObservedAt:       observed,
	}, nil
}

type forecastResponse struct {
	Current struct {
		Time        string   `json:"time"`
		Temperature *float64 `json:"temperature_2m"`
		Humidity    *float64 `json:"relative_humidity_2m"`
	} `json:"current"`
}

type errorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Reason != "" {
		return fmt.Errorf("weather api error (%d): %s", status, apiErr.Reason)
	}
	if len(payload) > 0 {
		return fmt.Errorf("weather api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("weather api error (%d)", status)
}

var _ ConditionsFetcher = (*Weather)(nil)
