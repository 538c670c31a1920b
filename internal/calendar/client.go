// Package calendar talks to the Cal.com scheduling API: it computes free
// slots from busy intervals and open date ranges, and creates bookings for
// confirmed UTC intervals.
package calendar

import (
	"bytes"
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

	"github.com/sdrlabs/leadqual/internal/domain"
)

const maxSlots = 5

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is an HTTP client for the Cal.com v1 API.
type Client struct {
	apiKey      string
	username    string
	eventTypeID int
	duration    time.Duration
	timezone    string
	location    *time.Location
	baseURL     string
	httpClient  *http.Client
	logger      *slog.Logger
	now         func() time.Time
}

// NewClient creates a Cal.com client. timezone is the business timezone
// used both for the availability query and for display formatting.
func NewClient(apiKey, username string, eventTypeID, durationMinutes int, timezone string, opts ...ClientOption) (*Client, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	c := &Client{
		apiKey:      apiKey,
		username:    username,
		eventTypeID: eventTypeID,
		duration:    time.Duration(durationMinutes) * time.Minute,
		timezone:    timezone,
		location:    loc,
		baseURL:     "https://api.cal.com/v1",
		httpClient:  http.DefaultClient,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Location returns the configured business timezone.
func (c *Client) Location() *time.Location { return c.location }

// availabilityResponse is the shape returned by GET /availability.
type availabilityResponse struct {
	Busy []struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"busy"`
	DateRanges []struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"dateRanges"`
}

// Slots is an index-aligned pair of UTC intervals and their localized
// display strings.
type Slots struct {
	UTC     []domain.AvailableSlot
	Display []string
}

// GetAvailableSlots fetches busy intervals and open ranges for the next
// `days` days and returns up to five free slots with their display strings.
func (c *Client) GetAvailableSlots(ctx context.Context, days int) (*Slots, error) {
	if days <= 0 {
		days = 7
	}

	from := c.now().In(c.location)
	to := from.AddDate(0, 0, days)

	q := url.Values{}
	q.Set("username", c.username)
	q.Set("eventTypeId", strconv.Itoa(c.eventTypeID))
	q.Set("dateFrom", from.Format(time.RFC3339))
	q.Set("dateTo", to.Format(time.RFC3339))
	q.Set("timezone", c.timezone)
	q.Set("apiKey", c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/availability?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.UpstreamAPIError{Provider: "cal.com", Err: fmt.Errorf("availability request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.UpstreamAPIError{Provider: "cal.com", Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.UpstreamAPIError{Provider: "cal.com", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var avail availabilityResponse
	if err := json.Unmarshal(respBody, &avail); err != nil {
		return nil, &domain.UpstreamAPIError{Provider: "cal.com", Err: fmt.Errorf("failed to unmarshal availability: %w", err)}
	}

	slots := c.scanFreeSlots(&avail)
	c.logger.Debug("availability scan complete",
		slog.Int("busy", len(avail.Busy)),
		slog.Int("ranges", len(avail.DateRanges)),
		slog.Int("slots", len(slots.UTC)))
	return slots, nil
}

// scanFreeSlots walks each open range in event-duration steps, skipping
// candidates already in the past and candidates overlapping any busy
// interval under the half-open rule start < busyEnd && end > busyStart.
// The scan stops after maxSlots accepted candidates across all ranges.
func (c *Client) scanFreeSlots(avail *availabilityResponse) *Slots {
	slots := &Slots{}

	for _, r := range avail.DateRanges {
		cursor := r.Start
		for !cursor.Add(c.duration).After(r.End) {
			slotEnd := cursor.Add(c.duration)

			// "now" is re-read per candidate: the scan itself takes wall time.
			if cursor.Before(c.now().UTC()) {
				cursor = cursor.Add(c.duration)
				continue
			}

			candidate := domain.AvailableSlot{Start: cursor.UTC(), End: slotEnd.UTC()}
			busy := false
			for _, b := range avail.Busy {
				if candidate.Overlaps(b.Start, b.End) {
					busy = true
					break
				}
			}

			if !busy {
				slots.UTC = append(slots.UTC, candidate)
				slots.Display = append(slots.Display, FormatLocalized(candidate.Start, c.location))
				if len(slots.UTC) >= maxSlots {
					return slots
				}
			}
			cursor = cursor.Add(c.duration)
		}
	}

	return slots
}

// bookingRequest is the POST /bookings payload.
type bookingRequest struct {
	EventTypeID int               `json:"eventTypeId"`
	Start       string            `json:"start"`
	End         string            `json:"end"`
	Responses   bookingAttendee   `json:"responses"`
	Status      string            `json:"status"`
	TimeZone    string            `json:"timeZone"`
	Language    string            `json:"language"`
	Metadata    map[string]string `json:"metadata"`
}

type bookingAttendee struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// bookingResponse is the (unevenly populated) shape returned by the API.
type bookingResponse struct {
	ID           int64  `json:"id"`
	UID          string `json:"uid"`
	VideoCallURL string `json:"videoCallUrl"`
	Location     string `json:"location"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
}

// Booking is a confirmed meeting with a joinable reference.
type Booking struct {
	MeetingLink string
	Start       time.Time
	End         time.Time
}

// Video-conferencing markers recognized inside a generic location field.
var videoDomains = []string{"meet.google.com", "zoom.us"}

// Book submits the exact UTC interval plus attendee identity. The interval
// is trusted as-is: the caller already validated it through the slot
// correlation store, and recomputing here would break the byte-for-byte
// round trip the booking depends on.
func (c *Client) Book(ctx context.Context, start, end time.Time, attendeeEmail, attendeeName string) (*Booking, error) {
	payload := bookingRequest{
		EventTypeID: c.eventTypeID,
		Start:       start.UTC().Format(time.RFC3339),
		End:         end.UTC().Format(time.RFC3339),
		Responses:   bookingAttendee{Email: attendeeEmail, Name: attendeeName},
		Status:      "ACCEPTED",
		TimeZone:    c.timezone,
		Language:    "pt-BR",
		Metadata:    map[string]string{},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal booking: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bookings?apiKey="+url.QueryEscape(c.apiKey), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.UpstreamAPIError{Provider: "cal.com", Err: fmt.Errorf("booking request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.UpstreamAPIError{Provider: "cal.com", Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &domain.UpstreamAPIError{Provider: "cal.com", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var booked bookingResponse
	if err := json.Unmarshal(respBody, &booked); err != nil {
		return nil, &domain.UpstreamAPIError{Provider: "cal.com", Err: fmt.Errorf("failed to unmarshal booking: %w", err)}
	}
	if booked.ID == 0 && booked.UID == "" {
		return nil, &domain.UpstreamAPIError{Provider: "cal.com", Err: fmt.Errorf("booking response carries no identifier")}
	}

	result := &Booking{
		MeetingLink: c.extractMeetingLink(&booked),
		Start:       start.UTC(),
		End:         end.UTC(),
	}

	// Prefer the provider-confirmed times when they parse.
	if ts, err := time.Parse(time.RFC3339, booked.StartTime); err == nil {
		result.Start = ts.UTC()
	}
	if ts, err := time.Parse(time.RFC3339, booked.EndTime); err == nil {
		result.End = ts.UTC()
	}

	c.logger.Info("booking created",
		slog.String("uid", booked.UID),
		slog.String("start", result.Start.Format(time.RFC3339)))
	return result, nil
}

// extractMeetingLink walks the fallback chain: the dedicated video-call
// field, then a location that looks like a conferencing URL, then a
// constructed confirmation-page link. A successful booking always yields
// some joinable reference.
func (c *Client) extractMeetingLink(b *bookingResponse) string {
	if b.VideoCallURL != "" {
		return b.VideoCallURL
	}
	for _, d := range videoDomains {
		if strings.Contains(b.Location, d) {
			return b.Location
		}
	}
	ref := b.UID
	if ref == "" {
		ref = strconv.FormatInt(b.ID, 10)
	}
	return "https://cal.com/booking/" + ref
}
