package formatter

import (
	"io"

	"github.com/artpar/actionkit/pkg/apierr"
	"gopkg.in/yaml.v3"
)

// YAMLParser decodes application/yaml bodies.
type YAMLParser struct{}

func (YAMLParser) Name() string      { return "yaml" }
func (YAMLParser) MediaType() string { return "application/yaml" }

// Parse implements Parser.
func (YAMLParser) Parse(r io.Reader, _ map[string]string) (any, error) {
	var v any
	if err := yaml.NewDecoder(r).Decode(&v); err != nil {
		if err == io.EOF {
			return nil, apierr.ParseError("YAML parse error - empty body")
		}
		return nil, apierr.New(400, "parse_error", "YAML parse error - "+err.Error()).Cause(err).Build()
	}
	return v, nil
}

// YAMLRenderer encodes application/yaml responses.
type YAMLRenderer struct{}

func (YAMLRenderer) Name() string      { return "yaml" }
func (YAMLRenderer) MediaType() string { return "application/yaml" }

// Render implements Renderer. "indent" sets the nesting width (default 2).
func (YAMLRenderer) Render(w io.Writer, v any, params map[string]string) error {
	enc := yaml.NewEncoder(w)
	indent := Indent(params)
	if indent == 0 {
		indent = 2
	}
	enc.SetIndent(indent)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func init() {
	mustRegister(DefaultRegistry.RegisterParser(YAMLParser{}))
	mustRegister(DefaultRegistry.RegisterRenderer(YAMLRenderer{}))
}
