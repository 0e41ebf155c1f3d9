package formatter

import (
	"io"
	"net/url"

	"github.com/artpar/actionkit/pkg/apierr"
)

// MaxFormBytes bounds form bodies.
const MaxFormBytes = 10 << 20

// FormParser decodes application/x-www-form-urlencoded bodies into
// url.Values, keeping repeated keys.
type FormParser struct{}

func (FormParser) Name() string      { return "form" }
func (FormParser) MediaType() string { return "application/x-www-form-urlencoded" }

// Parse implements Parser.
func (FormParser) Parse(r io.Reader, _ map[string]string) (any, error) {
	b, err := io.ReadAll(io.LimitReader(r, MaxFormBytes+1))
	if err != nil {
		return nil, apierr.New(400, "parse_error", "Form parse error - "+err.Error()).Cause(err).Build()
	}
	if len(b) > MaxFormBytes {
		return nil, apierr.ParseError("Form parse error - body too large")
	}
	vals, err := url.ParseQuery(string(b))
	if err != nil {
		return nil, apierr.New(400, "parse_error", "Form parse error - "+err.Error()).Cause(err).Build()
	}
	return vals, nil
}

func init() {
	mustRegister(DefaultRegistry.RegisterParser(FormParser{}))
}
