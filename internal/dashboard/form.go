package dashboard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/opsboard/internal/fills"
	"github.com/betbot/opsboard/pkg/opsapi"
)

var errNoSubmitter = errors.New("fill logging is not configured")

// fillForm is a one-line entry box. Fills are separated by ";" and each reads
// "<date|today> <strategy> <symbol> <side> <qty> <price> [note...]".
type fillForm struct {
	input   string
	editing bool
	pending bool
	status  string
	failed  bool
	today   func() time.Time
}

func newFillForm(now func() time.Time) *fillForm {
	return &fillForm{today: now}
}

func (f *fillForm) insert(s string) {
	if f.pending {
		return
	}
	f.input += s
}

func (f *fillForm) backspace() {
	if f.pending || f.input == "" {
		return
	}
	r := []rune(f.input)
	f.input = string(r[:len(r)-1])
}

func (f *fillForm) parse() ([]opsapi.FillEntry, error) {
	var out []opsapi.FillEntry
	for i, chunk := range strings.Split(f.input, ";") {
		fields := strings.Fields(chunk)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 6 {
			return nil, fmt.Errorf("fill %d: want date strategy symbol side qty price [note]", i+1)
		}
		qty, err := decimal.NewFromString(fields[4])
		if err != nil {
			return nil, fmt.Errorf("fill %d: qty %q is not a number", i+1, fields[4])
		}
		price, err := decimal.NewFromString(fields[5])
		if err != nil {
			return nil, fmt.Errorf("fill %d: price %q is not a number", i+1, fields[5])
		}
		date := fields[0]
		if strings.EqualFold(date, "today") {
			date = f.today().Format("2006-01-02")
		}
		out = append(out, opsapi.FillEntry{
			Date:       date,
			StrategyID: fields[1],
			Symbol:     fields[2],
			Side:       fields[3],
			Qty:        qty,
			Price:      price,
			Note:       strings.Join(fields[6:], " "),
		})
	}
	if len(out) == 0 {
		return nil, errors.New("nothing to submit")
	}
	return out, nil
}

// finish records the outcome. The input is kept after a failure so that a retry resubmits it.
func (f *fillForm) finish(res *fills.Result, err error) {
	f.pending = false
	if err == nil {
		f.failed = false
		f.status = fmt.Sprintf("logged %d fill(s), %d duplicate(s) skipped [%s]", res.Inserted, res.Skipped, res.RequestID)
		f.input = ""
		return
	}
	f.failed = true

	var verr *fills.ValidationError
	var serr *fills.SubmitError
	switch {
	case errors.As(err, &verr):
		f.status = verr.Error()
	case errors.As(err, &serr):
		f.status = serr.Message
		if serr.Retryable {
			f.status += " (press enter to retry)"
		}
	default:
		f.status = err.Error()
	}
}
