// Package fills validates and submits manually logged fills.
package fills

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/opsboard/pkg/opsapi"
)

var log = logrus.WithField("module", "fills")

// Poster is the write endpoint.
type Poster interface {
	LogFills(ctx context.Context, requestID string, fills []opsapi.FillEntry) (*opsapi.LogFillsResult, error)
}

// FieldError is one failed check on one row.
type FieldError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every problem found before anything was sent.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Row < 0 {
			msgs = append(msgs, f.Message)
			continue
		}
		msgs = append(msgs, fmt.Sprintf("row %d: %s", f.Row+1, f.Message))
	}
	return "invalid fills: " + strings.Join(msgs, "; ")
}

// SubmitError is a failed submission, worded for the user. Nothing is retried automatically;
// Retryable tells the user whether submitting the same batch again can help.
type SubmitError struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	RequestID string `json:"request_id"`
	Err       error  `json:"-"`
}

func (e *SubmitError) Error() string { return e.Message }

func (e *SubmitError) Unwrap() error { return e.Err }

// Result of an accepted submission. Duplicates are skipped by the backend and counted.
type Result struct {
	RequestID string `json:"request_id"`
	Inserted  int    `json:"inserted"`
	Skipped   int    `json:"skipped"`
}

type batch struct {
	Fills []opsapi.FillEntry `json:"fills" validate:"required,min=1,max=500,dive"`
}

// Submitter validates then posts a batch.
type Submitter struct {
	poster   Poster
	validate *validator.Validate
	newID    func() string
}

// NewSubmitter returns a Submitter posting to p.
func NewSubmitter(p Poster) *Submitter {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(rv reflect.Value) interface{} {
		if d, ok := rv.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return &Submitter{poster: p, validate: v, newID: uuid.NewString}
}

// Normalize trims text fields and upper-cases symbol and side. The input is not modified.
func Normalize(fills []opsapi.FillEntry) []opsapi.FillEntry {
	out := make([]opsapi.FillEntry, len(fills))
	for i, f := range fills {
		f.Date = strings.TrimSpace(f.Date)
		f.StrategyID = strings.TrimSpace(f.StrategyID)
		f.Symbol = strings.ToUpper(strings.TrimSpace(f.Symbol))
		f.Side = strings.ToUpper(strings.TrimSpace(f.Side))
		f.Note = strings.TrimSpace(f.Note)
		out[i] = f
	}
	return out
}

// Validate checks a normalized batch. It returns *ValidationError or nil.
func (s *Submitter) Validate(fills []opsapi.FillEntry) error {
	err := s.validate.Struct(batch{Fills: fills})
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []FieldError{{Row: -1, Message: err.Error()}}}
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Row: rowOf(fe), Field: fe.Field(), Message: message(fe)})
	}
	return out
}

// Submit normalizes, validates and posts fills under a fresh request id.
func (s *Submitter) Submit(ctx context.Context, fills []opsapi.FillEntry) (*Result, error) {
	fills = Normalize(fills)
	if err := s.Validate(fills); err != nil {
		return nil, err
	}
	id := s.newID()
	res, err := s.poster.LogFills(ctx, id, fills)
	if err != nil {
		serr := classify(err)
		serr.RequestID = id
		log.WithFields(logrus.Fields{"request_id": id, "fills": len(fills), "retryable": serr.Retryable}).
			Warnf("fill submission failed: %v", err)
		return nil, serr
	}
	log.WithFields(logrus.Fields{"request_id": id, "inserted": res.Inserted, "skipped": res.Skipped}).Info("fills logged")
	return &Result{RequestID: id, Inserted: res.Inserted, Skipped: res.Skipped}, nil
}

func classify(err error) *SubmitError {
	var he *opsapi.HTTPError
	switch {
	case errors.Is(err, context.Canceled):
		return &SubmitError{Message: "submission cancelled, nothing was confirmed; submit again", Retryable: true, Err: err}
	case errors.As(err, &he) && he.Status == http.StatusTooManyRequests:
		return &SubmitError{Message: "backend is busy; wait a moment and submit again", Retryable: true, Err: err}
	case errors.As(err, &he) && he.Status == http.StatusRequestTimeout:
		return &SubmitError{Message: "backend timed out; submit again", Retryable: true, Err: err}
	case errors.As(err, &he) && he.Status >= 400 && he.Status < 500:
		body := strings.TrimSpace(he.Body)
		if body == "" {
			body = http.StatusText(he.Status)
		}
		return &SubmitError{Message: "backend rejected the fills: " + body, Retryable: false, Err: err}
	case errors.As(err, &he):
		return &SubmitError{Message: fmt.Sprintf("backend error (http %d); duplicates are skipped, so submitting again is safe", he.Status), Retryable: true, Err: err}
	default:
		return &SubmitError{Message: "could not reach the backend; duplicates are skipped, so submitting again is safe", Retryable: true, Err: err}
	}
}

// rowOf reads the index out of a namespace like "batch.fills[3].qty".
func rowOf(fe validator.FieldError) int {
	ns := fe.Namespace()
	open := strings.Index(ns, "[")
	end := strings.Index(ns, "]")
	if open < 0 || end < open {
		return -1
	}
	var n int
	if _, err := fmt.Sscanf(ns[open+1:end], "%d", &n); err != nil {
		return -1
	}
	return n
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "datetime":
		return fmt.Sprintf("%s must be a date like 2024-01-31", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("at least %s fill is required", fe.Param())
	case "max":
		return fmt.Sprintf("at most %s fills per submission", fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
