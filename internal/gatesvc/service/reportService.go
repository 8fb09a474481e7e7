package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avvvet/gate-services/internal/gatesvc/models"
	"github.com/avvvet/gate-services/internal/gatesvc/store"
)

type Period string

const (
	PeriodToday     Period = "today"
	PeriodThisWeek  Period = "this_week"
	PeriodThisMonth Period = "this_month"
)

var Periods = []Period{PeriodToday, PeriodThisWeek, PeriodThisMonth}

var ErrUnknownPeriod = errors.New("unknown period")

func ParsePeriod(s string) (Period, error) {
	for _, p := range Periods {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w %q, expected today, this_week or this_month", ErrUnknownPeriod, s)
}

const dateLayout = "2006-01-02"

// PeriodRange returns the first and last calendar day of the period
// containing now, both inclusive, at midnight in now's location.
func PeriodRange(p Period, now time.Time) (first, last time.Time, err error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch p {
	case PeriodToday:
		return today, today, nil
	case PeriodThisWeek:
		// weeks start on Monday
		offset := (int(today.Weekday()) + 6) % 7
		return today.AddDate(0, 0, -offset), today, nil
	case PeriodThisMonth:
		first = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return first, first.AddDate(0, 1, -1), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w %q", ErrUnknownPeriod, p)
	}
}

// ReportService aggregates the session log. Open sessions count as ending now.
type ReportService struct {
	cards    store.Cards
	sessions store.Sessions
	presence *PresenceService
	now      func() time.Time
	loc      *time.Location
}

type ReportOption func(*ReportService)

func WithReportClock(now func() time.Time) ReportOption {
	return func(s *ReportService) { s.now = now }
}

// WithLocation sets the timezone calendar days are counted in.
func WithLocation(loc *time.Location) ReportOption {
	return func(s *ReportService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewReportService(cards store.Cards, sessions store.Sessions, opts ...ReportOption) *ReportService {
	s := &ReportService{
		cards:    cards,
		sessions: sessions,
		presence: NewPresenceService(sessions),
		now:      time.Now,
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns, per registered card with at least one entry in the period,
// the entry count and the average worked time per entry.
func (s *ReportService) Stats(ctx context.Context, p Period) (*models.PeriodStats, error) {
	now := s.now().In(s.loc)
	first, last, err := PeriodRange(p, now)
	if err != nil {
		return nil, err
	}

	cards, err := s.cards.ListCards(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.SessionsBetween(ctx, first, last.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	byCard := make(map[string][]models.Session)
	for _, sess := range sessions {
		byCard[sess.CardID] = append(byCard[sess.CardID], sess)
	}

	out := &models.PeriodStats{
		Period: string(p),
		From:   first.Format(dateLayout),
		To:     last.Format(dateLayout),
		Cards:  []models.CardStats{},
	}
	for _, c := range cards {
		list := byCard[c.CardID]
		if len(list) == 0 {
			continue
		}

		var total time.Duration
		for i := range list {
			total += list[i].DurationUntil(now)
		}
		avg := total / time.Duration(len(list))

		out.Cards = append(out.Cards, models.CardStats{
			CardID:       c.CardID,
			Entries:      len(list),
			Total:        total,
			Average:      avg,
			AverageHours: hours(avg),
			AverageHM:    FormatHM(avg),
		})
	}

	return out, nil
}

// WorkTime is the total time worked today by one card.
func (s *ReportService) WorkTime(ctx context.Context, cardID string) (*models.WorkTime, error) {
	now := s.now().In(s.loc)
	today, _, _ := PeriodRange(PeriodToday, now)

	list, err := s.sessions.SessionsForCard(ctx, cardID)
	if err != nil {
		return nil, err
	}

	wt := &models.WorkTime{CardID: cardID, Date: today.Format(dateLayout)}
	for i := range list {
		if list[i].EnterTime.In(s.loc).Format(dateLayout) != wt.Date {
			continue
		}
		wt.Entries++
		wt.Total += list[i].DurationUntil(now)
	}
	wt.Seconds = int64(wt.Total / time.Second)
	wt.HM = FormatHM(wt.Total)

	wt.Inside, err = s.presence.IsInside(ctx, cardID)
	if err != nil {
		return nil, err
	}
	return wt, nil
}

func hours(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(d / time.Second)).
		Div(decimal.NewFromInt(3600)).
		Round(2)
}

// FormatHM renders a duration as "7h 30min", dropping seconds.
func FormatHM(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int64(d / time.Hour)
	m := int64((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dmin", h, m)
}
