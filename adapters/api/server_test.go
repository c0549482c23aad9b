package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"pseudobulk/internal"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"summary.tsv":       "contrast\tup\tdown\nc0.vs.c3\t12\t7\n",
		"de_c0.vs.c3.tsv":   "Symbol\tbaseMean\tpadj\ng1\t10.5\t0.01\ng2\t0.2\tNA\n",
		"de_c0.vs.c7.tsv":   "Symbol\tbaseMean\tpadj\ng1\t3.1\t0.2\n",
		"overlap_up.tsv":    "Symbol\tc0.vs.c3\tc0.vs.c7\ng1\t1\t0\n",
		"report.html":       "<html><body>report</body></html>",
		"results.xlsx":      "not a real workbook but served verbatim",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	srv := NewServer(dir, internal.NewLogger(internal.LogLevelError))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, dir
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestServerSummary(t *testing.T) {
	ts, _ := newTestServer(t)

	var payload struct {
		Columns []string            `json:"columns"`
		Rows    []map[string]string `json:"rows"`
	}
	if code := getJSON(t, ts.URL+"/api/summary", &payload); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(payload.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(payload.Rows))
	}
	if payload.Rows[0]["contrast"] != "c0.vs.c3" {
		t.Errorf("contrast = %q", payload.Rows[0]["contrast"])
	}
}

func TestServerContrastList(t *testing.T) {
	ts, _ := newTestServer(t)

	var payload struct {
		Contrasts []string `json:"contrasts"`
	}
	if code := getJSON(t, ts.URL+"/api/contrasts", &payload); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	want := []string{"c0.vs.c3", "c0.vs.c7"}
	if len(payload.Contrasts) != len(want) {
		t.Fatalf("contrasts = %v, want %v", payload.Contrasts, want)
	}
	for i, c := range want {
		if payload.Contrasts[i] != c {
			t.Errorf("contrasts[%d] = %q, want %q", i, payload.Contrasts[i], c)
		}
	}
}

func TestServerContrastTableKeepsNA(t *testing.T) {
	ts, _ := newTestServer(t)

	var payload struct {
		Rows []map[string]string `json:"rows"`
	}
	if code := getJSON(t, ts.URL+"/api/contrasts/c0.vs.c3", &payload); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(payload.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(payload.Rows))
	}
	if payload.Rows[1]["padj"] != "NA" {
		t.Errorf("padj = %q, want NA", payload.Rows[1]["padj"])
	}
}

func TestServerMissingArtifact(t *testing.T) {
	ts, _ := newTestServer(t)

	if code := getJSON(t, ts.URL+"/api/contrasts/c9.vs.c9", nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
	if code := getJSON(t, ts.URL+"/api/overlap/sideways", nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

func TestServerRejectsTraversal(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/artifacts/%2E%2E%2Fsecrets")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Error("traversal path served")
	}
}
