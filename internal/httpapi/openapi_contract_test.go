package httpapi

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"
)

// apiDocument is the part of api/openapi.yaml the router is checked against.
type apiDocument struct {
	Servers []struct {
		URL string `yaml:"url"`
	} `yaml:"servers"`
	Paths      map[string]map[string]apiOperation `yaml:"paths"`
	Components map[string]map[string]any          `yaml:"components"`
}

type apiOperation struct {
	Responses map[string]any `yaml:"responses"`
}

func loadAPIDocument(t *testing.T) (apiDocument, any) {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "api", "openapi.yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}

	var doc apiDocument
	if err := yaml.Unmarshal(b, &doc); err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	var raw any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	if len(doc.Servers) != 1 {
		t.Fatalf("expected exactly one server entry, got %d", len(doc.Servers))
	}
	return doc, raw
}

var routeMethods = map[string]struct{}{
	http.MethodGet: {}, http.MethodPost: {}, http.MethodPut: {}, http.MethodPatch: {}, http.MethodDelete: {},
}

func TestOpenAPI_matchesRouter(t *testing.T) {
	doc, _ := loadAPIDocument(t)
	prefix := strings.TrimSuffix(doc.Servers[0].URL, "/")

	documented := map[string]struct{}{}
	for p, ops := range doc.Paths {
		for m := range ops {
			method := strings.ToUpper(m)
			if _, ok := routeMethods[method]; ok {
				documented[method+" "+trimRoute(prefix+p)] = struct{}{}
			}
		}
	}

	mux, ok := NewHandler(NewLogger(io.Discard, "satalertas", "error"), nil, nil, Options{}).Router().(*chi.Mux)
	if !ok {
		t.Fatal("Router() is not a *chi.Mux")
	}
	registered := map[string]struct{}{}
	err := chi.Walk(mux, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if _, ok := routeMethods[method]; ok && strings.HasPrefix(route, prefix+"/") {
			registered[method+" "+trimRoute(route)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk router: %v", err)
	}

	if missing := missingKeys(documented, registered); len(missing) > 0 {
		t.Errorf("documented but not routed:\n  %s", strings.Join(missing, "\n  "))
	}
	if undocumented := missingKeys(registered, documented); len(undocumented) > 0 {
		t.Errorf("routed but not in api/openapi.yaml:\n  %s", strings.Join(undocumented, "\n  "))
	}
}

func TestOpenAPI_operationsDeclareSuccessAndResolveRefs(t *testing.T) {
	doc, raw := loadAPIDocument(t)

	for p, ops := range doc.Paths {
		for m, op := range ops {
			success := false
			for code := range op.Responses {
				if strings.HasPrefix(code, "2") {
					success = true
				}
			}
			if !success {
				t.Errorf("%s %s declares no 2xx response", strings.ToUpper(m), p)
			}
		}
	}

	walkRefs(raw, func(ref string) {
		parts := strings.Split(strings.TrimPrefix(ref, "#/components/"), "/")
		if !strings.HasPrefix(ref, "#/components/") || len(parts) != 2 {
			t.Errorf("unsupported $ref %q", ref)
			return
		}
		if _, ok := doc.Components[parts[0]][parts[1]]; !ok {
			t.Errorf("$ref %q does not resolve", ref)
		}
	})
}

func walkRefs(node any, visit func(string)) {
	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			if ref, ok := v.(string); ok && k == "$ref" {
				visit(ref)
				continue
			}
			walkRefs(v, visit)
		}
	case []any:
		for _, v := range n {
			walkRefs(v, visit)
		}
	}
}

func trimRoute(route string) string {
	if len(route) > 1 {
		return strings.TrimSuffix(route, "/")
	}
	return route
}

// missingKeys lists the keys of a that b lacks, sorted.
func missingKeys(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
