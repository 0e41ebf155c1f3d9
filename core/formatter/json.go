package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/artpar/actionkit/pkg/apierr"
)

// JSONParser decodes application/json bodies. Numbers are kept as
// json.Number so integer fields never lose precision.
type JSONParser struct{}

func (JSONParser) Name() string      { return "json" }
func (JSONParser) MediaType() string { return "application/json" }

// Parse implements Parser.
func (JSONParser) Parse(r io.Reader, _ map[string]string) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apierr.ParseError("JSON parse error - empty body")
		}
		return nil, apierr.New(400, "parse_error", "JSON parse error - "+err.Error()).Cause(err).Build()
	}
	if dec.More() {
		return nil, apierr.ParseError("JSON parse error - unexpected data after top-level value")
	}
	return v, nil
}

// JSONRenderer encodes application/json responses. The "indent" media type
// parameter enables pretty printing; values <= 0 or non-numeric mean
// compact output.
type JSONRenderer struct{}

func (JSONRenderer) Name() string      { return "json" }
func (JSONRenderer) MediaType() string { return "application/json" }

// Render implements Renderer.
func (JSONRenderer) Render(w io.Writer, v any, params map[string]string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if n := Indent(params); n > 0 {
		enc.SetIndent("", strings.Repeat(" ", n))
	}
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode terminates with a newline; responses don't.
	_, err := w.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return err
}

// Indent reads the "indent" parameter.
func Indent(params map[string]string) int {
	n, err := strconv.Atoi(strings.TrimSpace(params["indent"]))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func init() {
	mustRegister(DefaultRegistry.RegisterParser(JSONParser{}))
	mustRegister(DefaultRegistry.RegisterRenderer(JSONRenderer{}))
}
