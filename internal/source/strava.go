// ABOUTME: Strava API adapter: paged activity fetch with a client-side
// ABOUTME: rate limiter and bounded retry on transient failures.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/harperreed/pulse/internal/models"
)

const (
	stravaBaseURL  = "https://www.strava.com/api/v3"
	stravaPageSize = 100

	stravaRetries      = 3
	stravaRetryBackoff = 2 * time.Second
)

// StravaConfig configures the Strava adapter.
type StravaConfig struct {
	AccessToken string
	BaseURL     string
	// RequestsPerMinute caps the client-side request rate. Zero uses
	// a conservative default well under Strava's 100/15min budget.
	RequestsPerMinute int
}

// Strava fetches activities from the Strava v3 API.
type Strava struct {
	cfg     StravaConfig
	client  *http.Client
	limiter *rate.Limiter
	backoff time.Duration
	log     *slog.Logger
}

// NewStrava creates the adapter. The access token must already be
// valid; refresh is the operator's concern.
func NewStrava(cfg StravaConfig, log *slog.Logger) *Strava {
	if cfg.BaseURL == "" {
		cfg.BaseURL = stravaBaseURL
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 6
	}
	if log == nil {
		log = slog.Default()
	}
	return &Strava{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		backoff: stravaRetryBackoff,
		log:     log,
	}
}

// Name implements Source.
func (s *Strava) Name() string { return "strava" }

// stravaActivity is the subset of the activity payload we consume.
type stravaActivity struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	StartDateLocal string  `json:"start_date_local"`
	MovingTime     int     `json:"moving_time"`
	Distance       float64 `json:"distance"`
	ElevationGain  float64 `json:"total_elevation_gain"`
	AverageHR      float64 `json:"average_heartrate"`
	MaxHR          float64 `json:"max_heartrate"`
	AverageWatts   float64 `json:"average_watts"`
	Calories       float64 `json:"kilojoules"`
	SufferScore    float64 `json:"suffer_score"`
}

// Fetch pages through /athlete/activities newest-first until it runs
// past the window. Incremental runs start after opts.Since; backfills
// cover opts.Days (default 365).
func (s *Strava) Fetch(ctx context.Context, opts FetchOptions) (*Batch, error) {
	after, err := s.windowStart(opts)
	if err != nil {
		return nil, err
	}

	batch := &Batch{}
	for page := 1; ; page++ {
		activities, err := s.fetchPage(ctx, page, after)
		if err != nil {
			return nil, err
		}
		if len(activities) == 0 {
			break
		}
		for _, a := range activities {
			w, err := s.toWorkout(a)
			if err != nil {
				batch.Rejected = append(batch.Rejected, err)
				continue
			}
			batch.Workouts = append(batch.Workouts, w)
		}
		if len(activities) < stravaPageSize {
			break
		}
	}
	s.log.Debug("strava fetch complete",
		"workouts", len(batch.Workouts), "rejected", len(batch.Rejected))
	return batch, nil
}

func (s *Strava) windowStart(opts FetchOptions) (time.Time, error) {
	if opts.Mode == ModeIncremental && opts.Since != "" {
		t, err := models.ParseDate(opts.Since)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid high-water mark %q: %w", opts.Since, err)
		}
		return t, nil
	}
	days := opts.Days
	if days <= 0 {
		days = 365
	}
	return time.Now().AddDate(0, 0, -days), nil
}

// fetchPage issues one paged request, retrying transient failures.
// 401 is terminal: a bad token never fixes itself mid-run.
func (s *Strava) fetchPage(ctx context.Context, page int, after time.Time) ([]stravaActivity, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(stravaPageSize))
	if !after.IsZero() {
		q.Set("after", strconv.FormatInt(after.Unix(), 10))
	}
	endpoint := s.cfg.BaseURL + "/athlete/activities?" + q.Encode()

	var lastErr error
	for attempt := 0; attempt < stravaRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.backoff << (attempt - 1)):
			}
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		activities, retryable, err := s.doRequest(ctx, endpoint)
		if err == nil {
			return activities, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		s.log.Warn("strava request failed, retrying",
			"page", page, "attempt", attempt+1, "error", err)
	}
	return nil, &UnavailableError{Source: s.Name(), Err: lastErr}
}

func (s *Strava) doRequest(ctx context.Context, endpoint string) ([]stravaActivity, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, false, fmt.Errorf("strava rejected the access token - refresh credentials")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("strava returned %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("strava returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("reading response: %w", err)
	}
	var activities []stravaActivity
	if err := json.Unmarshal(body, &activities); err != nil {
		return nil, false, fmt.Errorf("decoding activities: %w", err)
	}
	return activities, false, nil
}

func (s *Strava) toWorkout(a stravaActivity) (models.Workout, error) {
	if a.ID == 0 {
		return models.Workout{}, &ParseError{
			Source: s.Name(), Record: a.Name,
			Err: fmt.Errorf("activity has no id"),
		}
	}
	start, err := time.Parse("2006-01-02T15:04:05Z", a.StartDateLocal)
	if err != nil {
		return models.Workout{}, &ParseError{
			Source: s.Name(), Record: strconv.FormatInt(a.ID, 10),
			Err: fmt.Errorf("bad start date %q: %w", a.StartDateLocal, err),
		}
	}

	w := models.Workout{
		Source:          s.Name(),
		SourceID:        strconv.FormatInt(a.ID, 10),
		Date:            models.FormatDate(start),
		StartTime:       start,
		Type:            strings.ToLower(a.Type),
		Name:            a.Name,
		DurationMinutes: float64(a.MovingTime) / 60,
		DistanceMeters:  a.Distance,
		ElevationGain:   a.ElevationGain,
		AvgHR:           a.AverageHR,
		MaxHR:           a.MaxHR,
		Calories:        int(a.Calories),
	}
	if a.SufferScore > 0 {
		// Strava's relative effort is already the strain scalar.
		w.Effort = a.SufferScore
	} else {
		w.Effort = w.DeriveEffort(a.AverageWatts)
	}
	return w, nil
}
