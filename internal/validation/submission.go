package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
)

// Amount carries the raw amount literal exactly as it appeared on the wire,
// whether the caller sent a JSON number or a quoted string. Parsing into a
// decimal happens in AmountRules.Validate, so no binary-float conversion
// can touch the value in between.
type Amount string

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	*a = Amount(b)
	return nil
}

// Submission is the wire shape of a transaction admission request. All
// fields are kept in their raw form; the pipeline converts them to domain
// values stage by stage so each conversion failure maps to exactly one
// validation error.
type Submission struct {
	ID          string          `json:"id,omitempty"`
	FromUser    string          `json:"from_user_id"     validate:"required"`
	ToUser      string          `json:"to_user_id"       validate:"required"`
	Amount      Amount          `json:"amount"           validate:"required"`
	Type        string          `json:"transaction_type" validate:"required"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	ReferenceID string          `json:"reference_id,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
}

// New returns the validator used for submission shape checks, reporting
// field names by their json tag.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseSubmission decodes a JSON request body into a Submission. Unknown
// fields are rejected so typos like "ammount" fail loudly instead of
// silently dropping the intended field.
func ParseSubmission(body []byte) (Submission, error) {
	var sub Submission
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sub); err != nil {
		return Submission{}, fmt.Errorf("decode submission: %w", err)
	}
	return sub, nil
}

// CheckRequired verifies the presence of all required submission fields and
// folds validator failures into ErrMissingFields with the offending field
// names.
func CheckRequired(v *validatorv10.Validate, sub Submission) error {
	err := v.Struct(sub)
	if err == nil {
		return nil
	}
	var verrs validatorv10.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(fields, ", "))
	}
	return err
}

// ParseTimestamp parses an optional RFC 3339 timestamp. An absent value
// yields the zero time so the pipeline can stamp the current time instead.
func ParseTimestamp(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, raw)
	}
	return ts.UTC(), nil
}
