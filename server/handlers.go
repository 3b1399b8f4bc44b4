package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/etnz/beanrates"
	"github.com/etnz/beanrates/date"
	"github.com/shopspring/decimal"
)

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	filter, err := filterRange(r.URL.Query())
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	sn, err := s.load()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.ok(w, beanrates.NewTrackerConfig(sn, filter))
}

type availabilityPayload struct {
	Base  string                      `json:"base"`
	Range []date.Date                 `json:"range"`
	Days  []beanrates.AvailabilityDay `json:"days"`
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := filterRange(q)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	sn, err := s.load()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}

	// base and currency are accepted for symmetry with the series endpoint,
	// but availability is ledger-wide: the heatmap always shows every price
	// directive, whatever pair is selected.
	av := beanrates.Aggregate(beanrates.Clamp(sn.Prices, filter), filter)
	payload := availabilityPayload{
		Base: strings.ToUpper(strings.TrimSpace(q.Get("base"))),
		Days: av.Days,
	}
	if payload.Days == nil {
		payload.Days = []beanrates.AvailabilityDay{}
	}
	if av.Range != nil {
		payload.Range = []date.Date{av.Range.From, av.Range.To}
	}
	s.ok(w, payload)
}

type markerPayload struct {
	Date    date.Date       `json:"d"`
	Value   decimal.Decimal `json:"v"`
	Color   string          `json:"color,omitempty"`
	Comment string          `json:"comment,omitempty"`
}

type seriesPayload struct {
	Currency string                  `json:"currency"`
	Base     string                  `json:"base"`
	Inverted bool                    `json:"inverted"`
	Points   []beanrates.SeriesPoint `json:"points"`
	Markers  []markerPayload         `json:"markers"`
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	currency := strings.ToUpper(strings.TrimSpace(q.Get("currency")))
	base := strings.ToUpper(strings.TrimSpace(q.Get("base")))
	if currency == "" || base == "" {
		s.fail(w, http.StatusBadRequest, errors.New("missing currency or base query parameter"))
		return
	}
	filter, err := filterRange(q)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	sn, err := s.load()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}

	series, err := beanrates.BuildSeries(
		beanrates.Clamp(sn.Prices, filter),
		beanrates.ClampMarkers(sn.Markers, filter),
		currency, base)
	switch {
	case errors.Is(err, beanrates.ErrSamePair):
		s.fail(w, http.StatusBadRequest, err)
		return
	case err != nil:
		s.fail(w, http.StatusInternalServerError, err)
		return
	}

	payload := seriesPayload{
		Currency: currency,
		Base:     base,
		Points:   []beanrates.SeriesPoint{},
		Markers:  []markerPayload{},
	}
	if series != nil {
		payload.Inverted = series.Inverted
		payload.Points = series.Points
		for _, m := range series.Markers {
			payload.Markers = append(payload.Markers, markerPayload{
				Date: m.Date, Value: m.Value, Color: m.Color, Comment: m.Comment,
			})
		}
	}
	s.ok(w, payload)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dateS := strings.TrimSpace(q.Get("date"))
	if dateS == "" {
		s.fail(w, http.StatusBadRequest, errors.New("missing date query parameter"))
		return
	}
	day, err := date.Parse(dateS)
	if err != nil {
		s.fail(w, http.StatusBadRequest, errors.New("invalid date format (expected YYYY-MM-DD)"))
		return
	}
	base := strings.ToUpper(strings.TrimSpace(q.Get("base")))

	sn, err := s.load()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	preview, err := s.cfg.Orchestrator(sn, s.runner).Preview(r.Context(), day, base)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.ok(w, preview)
}

type savedPayload struct {
	Filename string `json:"filename"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Date    string `json:"date"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	if strings.TrimSpace(body.Date) == "" {
		s.fail(w, http.StatusBadRequest, errors.New("missing date"))
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		s.fail(w, http.StatusBadRequest, errors.New("nothing to save (empty content)"))
		return
	}
	day, err := date.Parse(strings.TrimSpace(body.Date))
	if err != nil {
		s.fail(w, http.StatusBadRequest, errors.New("invalid date format (expected YYYY-MM-DD)"))
		return
	}

	sn, err := s.load()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	filename, err := s.writer.Save(sn, day, body.Content)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.ok(w, savedPayload{Filename: filename})
}

func (s *Server) handlePreviewRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	currency := strings.ToUpper(strings.TrimSpace(q.Get("currency")))
	if currency == "" {
		s.fail(w, http.StatusBadRequest, errors.New("missing currency query parameter"))
		return
	}
	start, end, err := parseSpan(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}

	sn, err := s.load()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	src, ok := sn.PriceSources[currency]
	if !ok {
		s.fail(w, http.StatusInternalServerError, noPriceSource(currency))
		return
	}
	preview, err := s.cfg.Orchestrator(sn, s.runner).PreviewRange(r.Context(), currency, start, end, src)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.ok(w, preview)
}

func (s *Server) handleSaveRange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Currency  string `json:"currency"`
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
		Content   string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(body.Currency))
	if currency == "" {
		s.fail(w, http.StatusBadRequest, errors.New("missing currency"))
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		s.fail(w, http.StatusBadRequest, errors.New("nothing to save (empty content)"))
		return
	}
	start, end, err := parseSpan(body.StartDate, body.EndDate)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}

	sn, err := s.load()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	filename, err := s.writer.SaveRange(sn, currency, start, end, body.Content)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.ok(w, savedPayload{Filename: filename})
}

// parseSpan validates the startDate/endDate pair shared by the range endpoints.
func parseSpan(startS, endS string) (start, end date.Date, err error) {
	startS, endS = strings.TrimSpace(startS), strings.TrimSpace(endS)
	if startS == "" {
		return start, end, errors.New("missing startDate")
	}
	if endS == "" {
		return start, end, errors.New("missing endDate")
	}
	if start, err = date.Parse(startS); err != nil {
		return start, end, errors.New("invalid startDate format (expected YYYY-MM-DD)")
	}
	if end, err = date.Parse(endS); err != nil {
		return start, end, errors.New("invalid endDate format (expected YYYY-MM-DD)")
	}
	if start.After(end) {
		return start, end, errors.New("startDate must be before or equal to endDate")
	}
	return start, end, nil
}

func noPriceSource(currency string) error {
	return fmt.Errorf("no price metadata found for commodity %s; declare it with e.g.\n  commodity %s\n    price: \"USD:yahoo/%sUSD=X\"", currency, currency, currency)
}
