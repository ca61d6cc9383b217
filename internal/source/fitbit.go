// ABOUTME: Fitbit API adapter: daily sleep, steps, resting HR, and weight,
// ABOUTME: requested in 31-day chunks with token refresh ahead of expiry.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harperreed/pulse/internal/models"
)

const (
	fitbitBaseURL = "https://api.fitbit.com"

	// fitbitChunkDays is the widest range Fitbit's time-series
	// endpoints accept in one request.
	fitbitChunkDays = 31

	// fitbitRefreshBuffer refreshes the token this long before its
	// recorded expiry rather than racing the server clock.
	fitbitRefreshBuffer = 5 * time.Minute
)

// FitbitConfig configures the Fitbit adapter.
type FitbitConfig struct {
	ClientID     string
	ClientSecret string
	TokenFile    string
	BaseURL      string
}

// fitbitToken is the persisted OAuth state.
type fitbitToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Fitbit fetches daily health metrics from the Fitbit Web API.
type Fitbit struct {
	cfg    FitbitConfig
	client *http.Client
	token  fitbitToken
	log    *slog.Logger
}

// NewFitbit creates the adapter and loads the persisted token.
func NewFitbit(cfg FitbitConfig, log *slog.Logger) (*Fitbit, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = fitbitBaseURL
	}
	if log == nil {
		log = slog.Default()
	}
	f := &Fitbit{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
	if err := f.loadToken(); err != nil {
		return nil, err
	}
	return f, nil
}

// Name implements Source.
func (f *Fitbit) Name() string { return "fitbit" }

// Fetch pulls sleep, steps, resting HR, and weight for the window,
// one 31-day chunk at a time, and folds them into per-date records.
func (f *Fitbit) Fetch(ctx context.Context, opts FetchOptions) (*Batch, error) {
	start, end, err := f.window(opts)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]*models.DailyMetrics)
	day := func(date string) *models.DailyMetrics {
		if d, ok := byDate[date]; ok {
			return d
		}
		d := &models.DailyMetrics{Source: f.Name(), Date: date}
		byDate[date] = d
		return d
	}

	for chunkStart := start; !chunkStart.After(end); chunkStart = chunkStart.AddDate(0, 0, fitbitChunkDays) {
		chunkEnd := chunkStart.AddDate(0, 0, fitbitChunkDays-1)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		if err := f.fetchChunk(ctx, chunkStart, chunkEnd, day); err != nil {
			return nil, err
		}
	}

	batch := &Batch{}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if rec, ok := byDate[models.FormatDate(d)]; ok && !rec.Empty() {
			batch.Daily = append(batch.Daily, *rec)
		}
	}
	f.log.Debug("fitbit fetch complete", "days", len(batch.Daily))
	return batch, nil
}

func (f *Fitbit) window(opts FetchOptions) (time.Time, time.Time, error) {
	end := time.Now()
	if opts.Mode == ModeIncremental && opts.Since != "" {
		t, err := models.ParseDate(opts.Since)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid high-water mark %q: %w", opts.Since, err)
		}
		// Refetch the mark day itself; late-arriving sleep data is
		// common and the merge dedups.
		return t, end, nil
	}
	days := opts.Days
	if days <= 0 {
		days = 90
	}
	return end.AddDate(0, 0, -days), end, nil
}

func (f *Fitbit) fetchChunk(ctx context.Context, start, end time.Time, day func(string) *models.DailyMetrics) error {
	s, e := models.FormatDate(start), models.FormatDate(end)

	var sleep struct {
		Sleep []struct {
			DateOfSleep string `json:"dateOfSleep"`
			Duration    int64  `json:"duration"`
			IsMainSleep bool   `json:"isMainSleep"`
		} `json:"sleep"`
	}
	if err := f.get(ctx, fmt.Sprintf("/1.2/user/-/sleep/date/%s/%s.json", s, e), &sleep); err != nil {
		return err
	}
	for _, entry := range sleep.Sleep {
		if !entry.IsMainSleep {
			continue
		}
		hours := float64(entry.Duration) / 1000 / 3600
		day(entry.DateOfSleep).SetField(models.FieldSleepHours, hours)
	}

	var steps struct {
		Series []fitbitSeriesPoint `json:"activities-steps"`
	}
	if err := f.get(ctx, fmt.Sprintf("/1/user/-/activities/steps/date/%s/%s.json", s, e), &steps); err != nil {
		return err
	}
	for _, p := range steps.Series {
		if v, ok := p.float(); ok && v > 0 {
			day(p.DateTime).SetField(models.FieldSteps, v)
		}
	}

	var heart struct {
		Series []struct {
			DateTime string `json:"dateTime"`
			Value    struct {
				RestingHeartRate float64 `json:"restingHeartRate"`
			} `json:"value"`
		} `json:"activities-heart"`
	}
	if err := f.get(ctx, fmt.Sprintf("/1/user/-/activities/heart/date/%s/%s.json", s, e), &heart); err != nil {
		return err
	}
	for _, p := range heart.Series {
		if p.Value.RestingHeartRate > 0 {
			day(p.DateTime).SetField(models.FieldRestingHR, p.Value.RestingHeartRate)
		}
	}

	var weight struct {
		Weight []struct {
			Date   string  `json:"date"`
			Weight float64 `json:"weight"`
		} `json:"weight"`
	}
	if err := f.get(ctx, fmt.Sprintf("/1/user/-/body/log/weight/date/%s/%s.json", s, e), &weight); err != nil {
		return err
	}
	for _, p := range weight.Weight {
		if p.Weight > 0 {
			day(p.Date).SetField(models.FieldWeight, p.Weight)
		}
	}
	return nil
}

type fitbitSeriesPoint struct {
	DateTime string `json:"dateTime"`
	Value    string `json:"value"`
}

func (p fitbitSeriesPoint) float() (float64, bool) {
	v, err := parseFloat(p.Value)
	return v, err == nil
}

func (f *Fitbit) get(ctx context.Context, path string, out any) error {
	if err := f.ensureToken(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+f.token.AccessToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return &UnavailableError{Source: f.Name(), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("fitbit rejected the access token - re-authorize")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &UnavailableError{Source: f.Name(), Err: fmt.Errorf("fitbit returned %s", resp.Status)}
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("fitbit returned %s for %s", resp.Status, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UnavailableError{Source: f.Name(), Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// ensureToken refreshes the access token when it is inside the
// expiry buffer.
func (f *Fitbit) ensureToken(ctx context.Context) error {
	if time.Until(f.token.ExpiresAt) > fitbitRefreshBuffer {
		return nil
	}
	if f.token.RefreshToken == "" {
		return fmt.Errorf("fitbit token expired and no refresh token on file - re-authorize")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", f.token.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.BaseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(f.cfg.ClientID, f.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		return &UnavailableError{Source: f.Name(), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fitbit token refresh failed: %s", resp.Status)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decoding token response: %w", err)
	}

	f.token = fitbitToken{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
	}
	f.log.Debug("fitbit token refreshed", "expires_at", f.token.ExpiresAt)
	return f.saveToken()
}

func (f *Fitbit) loadToken() error {
	data, err := os.ReadFile(f.cfg.TokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no fitbit token at %s - authorize first", f.cfg.TokenFile)
		}
		return fmt.Errorf("reading fitbit token: %w", err)
	}
	if err := json.Unmarshal(data, &f.token); err != nil {
		return fmt.Errorf("parsing fitbit token file: %w", err)
	}
	return nil
}

func (f *Fitbit) saveToken() error {
	data, err := json.MarshalIndent(f.token, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.cfg.TokenFile), 0o755); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	if err := os.WriteFile(f.cfg.TokenFile, data, 0o600); err != nil {
		return fmt.Errorf("saving fitbit token: %w", err)
	}
	return nil
}
