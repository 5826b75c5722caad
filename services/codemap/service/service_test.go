// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"

	"github.com/LunarLaurus/codebuddy/services/codemap/ast"
	"github.com/LunarLaurus/codebuddy/services/codemap/config"
	"github.com/LunarLaurus/codebuddy/services/codemap/pipeline"
	"github.com/LunarLaurus/codebuddy/services/codemap/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var sampleProject = map[string]string{
	"include/parse.h": "int parse(void);\n",
	"src/main.c": `#include "parse.h"
int main(void) {
    parse();
    return 0;
}
`,
	"src/parse.c": `int parse(void) {
    return helper() + strlen("x");
}
int helper(void) {
    return 1;
}
`,
}

// newTestRouter builds a service over a temp C project with an
// in-memory snapshot store and returns the wired router.
func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	root := t.TempDir()
	for rel, content := range sampleProject {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	p, err := pipeline.New(ast.NewCParser(), pipeline.WithRoot(root), pipeline.WithWorkers(2))
	if err != nil {
		t.Fatal(err)
	}

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	snapshots, err := store.NewSnapshotManager(db, nil)
	if err != nil {
		t.Fatal(err)
	}

	svc := NewService(config.Default(root), p, snapshots, nil)
	router := gin.New()
	RegisterRoutes(router.Group("/v1"), NewHandlers(svc, nil))
	return router, svc
}

func doRequest(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth_BeforeAndAfterBuild(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/v1/map/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"has_build":false`) {
		t.Errorf("health before build: %s", rec.Body.String())
	}

	if rec := doRequest(t, router, http.MethodPost, "/v1/map/build", ""); rec.Code != http.StatusOK {
		t.Fatalf("build = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/v1/map/health", "")
	if !strings.Contains(rec.Body.String(), `"has_build":true`) {
		t.Errorf("health after build: %s", rec.Body.String())
	}
}

func TestQueriesBeforeBuildConflict(t *testing.T) {
	router, _ := newTestRouter(t)
	for _, path := range []string{
		"/v1/map/overview",
		"/v1/map/symbols/main",
		"/v1/map/functions/main",
		"/v1/map/diagnostics",
		"/v1/map/tools",
		"/v1/map/debug/stats",
	} {
		rec := doRequest(t, router, http.MethodGet, path, "")
		if rec.Code != http.StatusConflict {
			t.Errorf("%s before build = %d, want 409", path, rec.Code)
		}
	}
}

func TestBuildAndQuery(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doRequest(t, router, http.MethodPost, "/v1/map/build", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("build = %d: %s", rec.Code, rec.Body.String())
	}
	var stats pipeline.BuildStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.FilesWalked != 3 || stats.Symbols == 0 || stats.Edges == 0 {
		t.Errorf("stats = %+v", stats)
	}

	rec = doRequest(t, router, http.MethodGet, "/v1/map/functions/main", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("function view = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"callees":["parse"]`) {
		t.Errorf("main view: %s", rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/v1/map/functions/parse/callers", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "main") {
		t.Errorf("callers of parse = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/v1/map/functions/ghost/callees", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown function = %d, want 404", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/v1/map/symbols?q=pars", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "parse") {
		t.Errorf("find = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/v1/map/symbols", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("find without q = %d, want 400", rec.Code)
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	doRequest(t, router, http.MethodPost, "/v1/map/build", "")

	rec := doRequest(t, router, http.MethodGet, "/v1/map/diagnostics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("diagnostics = %d", rec.Code)
	}
	// strlen has no definition anywhere: unresolved_callee.
	if !strings.Contains(rec.Body.String(), "unresolved_callee") {
		t.Errorf("diagnostics: %s", rec.Body.String())
	}
}

func TestToolEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	doRequest(t, router, http.MethodPost, "/v1/map/build", "")

	rec := doRequest(t, router, http.MethodGet, "/v1/map/tools", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "find_callers") {
		t.Fatalf("tools = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPost, "/v1/map/tools/find_callers",
		`{"params":{"function_name":"parse"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("run tool = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Errorf("tool result: %s", rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPost, "/v1/map/tools/no_such_tool", `{"params":{}}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown tool = %d, want 404", rec.Code)
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)
	doRequest(t, router, http.MethodPost, "/v1/map/build", "")

	rec := doRequest(t, router, http.MethodPost, "/v1/map/snapshots", `{"label":"baseline"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("save snapshot = %d: %s", rec.Code, rec.Body.String())
	}
	var meta store.SnapshotMetadata
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatal(err)
	}
	if meta.SnapshotID == "" || meta.Label != "baseline" {
		t.Errorf("meta = %+v", meta)
	}

	rec = doRequest(t, router, http.MethodGet, "/v1/map/snapshots", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), meta.SnapshotID) {
		t.Errorf("list = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/v1/map/snapshots/"+meta.SnapshotID, "")
	if rec.Code != http.StatusOK {
		t.Errorf("load = %d", rec.Code)
	}

	// Unchanged tree: diff against the current build is empty.
	rec = doRequest(t, router, http.MethodGet, "/v1/map/snapshots/diff?old="+meta.SnapshotID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("diff = %d: %s", rec.Code, rec.Body.String())
	}
	var diff store.SnapshotDiff
	if err := json.Unmarshal(rec.Body.Bytes(), &diff); err != nil {
		t.Fatal(err)
	}
	if !diff.Empty() {
		t.Errorf("diff of identical builds not empty: %+v", diff)
	}

	rec = doRequest(t, router, http.MethodDelete, "/v1/map/snapshots/"+meta.SnapshotID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
	rec = doRequest(t, router, http.MethodGet, "/v1/map/snapshots/"+meta.SnapshotID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("load deleted = %d, want 404", rec.Code)
	}
}

func TestDebugEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	doRequest(t, router, http.MethodPost, "/v1/map/build", "")

	rec := doRequest(t, router, http.MethodGet, "/v1/map/debug/stats", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"watch_subscribers":0`) {
		t.Errorf("debug stats = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/v1/map/debug/dump", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"schema_version"`) {
		t.Errorf("debug dump = %d", rec.Code)
	}
}

func TestHub_BroadcastWithoutSubscribers(t *testing.T) {
	_, svc := newTestRouter(t)

	// Publishing with no subscribers must not block.
	svc.hub.Broadcast(BuildEvent{Type: "noop"})
	if _, err := svc.Build(t.Context()); err != nil {
		t.Fatal(err)
	}
	if svc.hub.ClientCount() != 0 {
		t.Errorf("client count = %d", svc.hub.ClientCount())
	}
}
