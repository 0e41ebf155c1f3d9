package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/artpar/actionkit/adapters/hasher"
	"github.com/rs/zerolog"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		cfgFile = "actionkit.yaml"
		routesJSON = false
		hashCost = 0
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	want := "actionkit dev (" + runtime.Version() + ", " + runtime.GOOS + "/" + runtime.GOARCH + ")\n"
	if !strings.HasPrefix(out, want) {
		t.Errorf("output = %q, want prefix %q", out, want)
	}

	t.Cleanup(func() { versionJSON = false })
	out, err = run(t, "", "version", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var v versionInfo
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if v.Version != "dev" || v.Go != runtime.Version() {
		t.Errorf("version = %+v", v)
	}
	if got := buildInfo(); got.Version != "dev" || got.Commit != v.Commit {
		t.Errorf("buildInfo() = %+v, want commit %q", got, v.Commit)
	}
}

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"argument", "", []string{"hash-password", "--cost", "4", "s3cret"}},
		{"stdin", "s3cret\n", []string{"hash-password", "--cost", "4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.stdin, tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			hash := strings.TrimSpace(out)
			if !hasher.IsHash(hash) || !hasher.NewBcrypt(4).Compare([]byte(hash), "s3cret") {
				t.Errorf("hash = %q does not verify", hash)
			}
		})
	}

	if _, err := run(t, "\n", "hash-password"); err == nil {
		t.Error("empty password accepted")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "actionkit.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\nthrottle:\n  enabled: true\n  limit: 10\n")
	out, err := run(t, "", "validate", "--config", path)
	if err != nil {
		t.Fatalf("validate error = %v\n%s", err, out)
	}
	for _, want := range []string{"0.0.0.0:9000", "Throttle: 10 per 1m0s", "Configuration is valid."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	path = writeConfig(t, "negotiation:\n  renderers: [xml]\n")
	if _, err := run(t, "", "validate", "--config", path); err == nil || !strings.Contains(err.Error(), "renderers") {
		t.Errorf("unknown renderer error = %v", err)
	}

	path = writeConfig(t, "server:\n  port: 99999\n")
	if _, err := run(t, "", "validate", "--config", path); err == nil {
		t.Error("invalid port accepted")
	}
}

func TestRoutesJSON(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: error\nauth:\n  jwt:\n    secret: x\n")
	out, err := run(t, "", "routes", "--json", "--config", path)
	if err != nil {
		t.Fatalf("routes error = %v", err)
	}
	var routes []routeInfo
	if err := json.Unmarshal([]byte(out), &routes); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}

	byName := map[string]routeInfo{}
	for _, r := range routes {
		byName[r.Name] = r
	}
	create, ok := byName["notes.create"]
	if !ok || create.Method != "POST" || create.Pattern != "/notes" {
		t.Fatalf("notes.create = %+v", create)
	}
	if got := strings.Join(create.Filters["authentication"], ","); got != "jwt,basic" {
		t.Errorf("authentication filters = %s", got)
	}
	if got := strings.Join(create.Filters["authorization"], ","); got != "is_authenticated,has_role:writer" {
		t.Errorf("authorization filters = %s", got)
	}
	if _, ok := byName["auth.token"]; !ok {
		t.Error("auth.token route missing")
	}
}

func TestGenSecret(t *testing.T) {
	out, err := run(t, "", "gen-secret")
	if err != nil {
		t.Fatal(err)
	}
	if secret := strings.TrimSpace(out); len(secret) != 64 {
		t.Errorf("secret = %q, want 64 hex chars", secret)
	}
}
