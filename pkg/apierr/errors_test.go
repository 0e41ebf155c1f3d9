package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/artpar/actionkit/core/validation"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *Error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"parse", ParseError(""), 400, "parse_error", "Malformed request."},
		{"parse detail", ParseError("JSON parse error - unexpected EOF"), 400, "parse_error", "JSON parse error - unexpected EOF"},
		{"auth failed", AuthenticationFailed(""), 401, "authentication_failed", "Incorrect authentication credentials."},
		{"not authenticated", NotAuthenticated(""), 401, "not_authenticated", "Authentication credentials were not provided."},
		{"forbidden", PermissionDenied(""), 403, "permission_denied", "You do not have permission to perform this action."},
		{"not found", NotFound(""), 404, "not_found", "Not found."},
		{"method", MethodNotAllowed("PATCH", []string{"GET", "POST"}), 405, "method_not_allowed", `Method "PATCH" not allowed.`},
		{"not acceptable", NotAcceptable(), 406, "not_acceptable", "Could not satisfy the request Accept header."},
		{"media type", UnsupportedMediaType("text/csv"), 415, "unsupported_media_type", `Unsupported media type "text/csv" in request.`},
		{"throttled", Throttled(0), 429, "throttled", "Request was throttled."},
		{"throttled wait", Throttled(1500 * time.Millisecond), 429, "throttled", "Request was throttled. Expected available in 2 seconds."},
		{"server", ServerError(""), 500, "", "A server error occurred."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.StatusCode() != tt.wantStatus {
				t.Errorf("Status = %d, want %d", tt.err.StatusCode(), tt.wantStatus)
			}
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
			if tt.err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.wantMsg)
			}
		})
	}
}

func TestHeaders(t *testing.T) {
	if got := MethodNotAllowed("PUT", []string{"GET", "HEAD"}).Headers.Get("Allow"); got != "GET, HEAD" {
		t.Errorf("Allow = %q", got)
	}
	if got := Throttled(3 * time.Second).Headers.Get("Retry-After"); got != "3" {
		t.Errorf("Retry-After = %q", got)
	}
	if MethodNotAllowed("PUT", nil).Headers != nil {
		t.Error("no Allow header expected without allowed methods")
	}
	if got := HeadersOf(fmt.Errorf("wrapped: %w", Throttled(time.Second))).Get("Retry-After"); got != "1" {
		t.Errorf("HeadersOf = %q", got)
	}

	base := Throttled(time.Second)
	challenged := base.WithHeader("WWW-Authenticate", "Bearer")
	if challenged.Headers.Get("WWW-Authenticate") != "Bearer" || challenged.Headers.Get("Retry-After") != "1" {
		t.Errorf("WithHeader headers = %v", challenged.Headers)
	}
	if base.Headers.Get("WWW-Authenticate") != "" {
		t.Error("WithHeader modified the original error")
	}
}

type teapot struct{}

func (teapot) Error() string   { return "short and stout" }
func (teapot) StatusCode() int { return http.StatusTeapot }

type weird struct{}

func (weird) Error() string   { return "ok?" }
func (weird) StatusCode() int { return 200 }

func TestClassify(t *testing.T) {
	verr := &validation.Error{}
	verr.AddField("email", validation.New("required", "This field is required."))
	verr.AddField(validation.SchemaKey, validation.New("invalid", "Bad record."))

	tests := []struct {
		name       string
		err        error
		wantOK     bool
		wantStatus int
		wantItems  int
	}{
		{"api error", NotFound(""), true, 404, 1},
		{"wrapped api error", fmt.Errorf("load note: %w", PermissionDenied("")), true, 403, 1},
		{"validation", verr, true, 400, 2},
		{"native http", teapot{}, true, 418, 1},
		{"native non-error status", weird{}, false, 0, 0},
		{"plain", errors.New("boom"), false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, items, ok := Classify(tt.err)
			if ok != tt.wantOK || status != tt.wantStatus || len(items) != tt.wantItems {
				t.Errorf("Classify = (%d, %d items, %v), want (%d, %d, %v)",
					status, len(items), ok, tt.wantStatus, tt.wantItems, tt.wantOK)
			}
		})
	}
}

func TestEnvelopeJSON(t *testing.T) {
	tests := []struct {
		name  string
		items []Item
		want  string
	}{
		{
			name:  "server error has message only",
			items: ServerError("").Items(),
			want:  `{"errors":[{"message":"A server error occurred."}]}`,
		},
		{
			name:  "field and code",
			items: []Item{{Message: "Must be at most 3.", Field: "age", Code: "max_value", Extra: map[string]any{"max_value": 3}}},
			want:  `{"errors":[{"code":"max_value","field":"age","max_value":3,"message":"Must be at most 3."}]}`,
		},
		{
			name:  "extra cannot override",
			items: []Item{{Message: "m", Extra: map[string]any{"message": "x", "field": "y"}}},
			want:  `{"errors":[{"message":"m"}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(Envelope(tt.items...))
			if err != nil {
				t.Fatal(err)
			}
			if string(b) != tt.want {
				t.Errorf("got %s, want %s", b, tt.want)
			}
		})
	}
}

func TestValidationItemsUseDottedPaths(t *testing.T) {
	inner := &validation.Error{}
	inner.AddField("city", validation.New("required", "This field is required."))
	verr := &validation.Error{}
	verr.AddField("address", inner)
	verr.AddField(validation.SchemaKey, validation.New("invalid", "Bad record."))

	items := ValidationItems(verr)
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Field != "" || items[0].Message != "Bad record." {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Field != "address.city" || items[1].Code != "required" {
		t.Errorf("items[1] = %+v", items[1])
	}
}
