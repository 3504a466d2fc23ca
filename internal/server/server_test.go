package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gihan9a/treestore/internal/config"
	"gihan9a/treestore/internal/store"
)

func newTestServer(t *testing.T, mutate ...func(*config.Config)) (*Server, http.Handler) {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = ""
	for _, m := range mutate {
		m(cfg)
	}
	st, err := store.Open("")
	require.NoError(t, err)
	srv := New(cfg, st)
	t.Cleanup(func() {
		srv.Close()
		st.Close()
	})
	return srv, srv.SetupRoutes()
}

func do(t *testing.T, h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

// put writes body at target and returns the new revision.
func put(t *testing.T, h http.Handler, target, body string) string {
	t.Helper()
	rec := do(t, h, http.MethodPut, target, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeMap(t, rec)["rev"].(string)
}

func TestPutGetDocument(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPut, "/docid", `{"what":"a doc"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	res := decodeMap(t, rec)
	assert.Equal(t, true, res["ok"])
	assert.Equal(t, "docid", res["id"])
	rev := res["rev"].(string)
	assert.True(t, strings.HasPrefix(rev, "1-"))

	rec = do(t, h, http.MethodGet, "/docid", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"_id":"docid","_rev":"`+rev+`","what":"a doc"}`, rec.Body.String())
	assert.Equal(t, `"`+rev+`"`, rec.Header().Get("ETag"))

	rec = do(t, h, http.MethodGet, "/docid/what", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"a doc"`, rec.Body.String())
	assert.Equal(t, `"`+rev+`"`, rec.Header().Get("ETag"))
}

func TestPutSubPathOfNewDocument(t *testing.T) {
	_, h := newTestServer(t)

	rev := put(t, h, "/extra/numbers", `{"one":{"_val":1},"two":{"_val":2}}`)

	rec := do(t, h, http.MethodGet, "/extra", "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decodeMap(t, rec)
	assert.Len(t, doc, 3)
	assert.JSONEq(t, `{"_id":"extra","_rev":"`+rev+`","numbers":{"one":1,"two":2}}`, rec.Body.String())
}

func TestPointUpdateKeepsSiblings(t *testing.T) {
	_, h := newTestServer(t)

	rev := put(t, h, "/doc", `{"a":{"x":1,"y":2},"b":"keep"}`)
	rev = put(t, h, "/doc/a/x?rev="+rev, `10`)

	rec := do(t, h, http.MethodGet, "/doc", "")
	assert.JSONEq(t, `{"_id":"doc","_rev":"`+rev+`","a":{"x":10,"y":2},"b":"keep"}`, rec.Body.String())
}

func TestGetEncoded(t *testing.T) {
	_, h := newTestServer(t)
	put(t, h, "/arr/list", `[1,2,3,4,5]`)

	rec := do(t, h, http.MethodGet, "/arr/list?encoded=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"0":{"_val":1},"1":{"_val":2},"2":{"_val":3},"3":{"_val":4},"4":{"_val":5}}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/arr/list", "")
	assert.JSONEq(t, `{"0":1,"1":2,"2":3,"3":4,"4":5}`, rec.Body.String())
}

func TestLeafDocument(t *testing.T) {
	_, h := newTestServer(t)
	rev := put(t, h, "/scalar", `42`)

	rec := do(t, h, http.MethodGet, "/scalar", "")
	assert.JSONEq(t, `{"_id":"scalar","_rev":"`+rev+`","_val":42}`, rec.Body.String())
}

func TestConflictAndDelete(t *testing.T) {
	_, h := newTestServer(t)
	rev := put(t, h, "/doc", `{"a":1}`)

	rec := do(t, h, http.MethodPut, "/doc", `{"a":2}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeMap(t, rec)["error"])

	rec = do(t, h, http.MethodPut, "/doc", `{"a":2}`, "If-Match", `"`+rev+`"`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rev = decodeMap(t, rec)["rev"].(string)

	rec = do(t, h, http.MethodDelete, "/doc?rev=1-stale", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodDelete, "/doc?rev="+rev, "")
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decodeMap(t, rec)["rev"].(string)
	assert.True(t, strings.HasPrefix(deleted, "3-"))

	rec = do(t, h, http.MethodGet, "/doc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeMap(t, rec)["error"])

	rec = do(t, h, http.MethodGet, "/doc?rev="+deleted, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeMap(t, rec)["_deleted"])
}

func TestDeleteViaBody(t *testing.T) {
	_, h := newTestServer(t)
	rev := put(t, h, "/doc", `{"a":1}`)

	rec := do(t, h, http.MethodPut, "/doc", `{"_rev":"`+rev+`","_deleted":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/doc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteSubPath(t *testing.T) {
	_, h := newTestServer(t)
	rev := put(t, h, "/doc", `{"a":{"b":1},"c":2}`)

	rec := do(t, h, http.MethodDelete, "/doc/a/b?rev="+rev, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/doc/c", "")
	assert.JSONEq(t, `2`, rec.Body.String())
	rec = do(t, h, http.MethodGet, "/doc/a", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBadRequests(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPut, "/doc", `{"a":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decodeMap(t, rec)["error"])

	rec = do(t, h, http.MethodPut, "/doc", `{"_val":1,"x":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/_reserved", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/_changes?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkDocsReplicatedConflicts(t *testing.T) {
	_, h := newTestServer(t)
	put(t, h, "/docid", `{"what":"a doc"}`)

	rec := do(t, h, http.MethodPost, "/_bulk_docs", `{"new_edits":false,"docs":[
		{"_id":"docid","_rev":"2-bbbb","gen":2},
		{"_id":"docid","_rev":"3-cccc","gen":3},
		{"_id":"docid","_rev":"4-aaaa","gen":4},
		{"_id":"docid","_rev":"4-zyz","gen":4,"who":"zyz"},
		{"_id":"docid","_rev":"2-dddd","gen":2}
	]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var results []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 5)
	for _, r := range results {
		assert.Equal(t, true, r["ok"], r)
	}

	rec = do(t, h, http.MethodGet, "/docid?conflicts=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decodeMap(t, rec)
	assert.Equal(t, "4-zyz", doc["_rev"])
	assert.Equal(t, "zyz", doc["who"])
	assert.Contains(t, doc["_conflicts"], "4-aaaa")
}

func TestBulkDocsRecordErrors(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/_bulk_docs", `{"new_edits":false,"docs":[
		{"_id":"ok","_rev":"1-a"},
		{"_id":"orphan","_rev":"3-c","_revisions":{"start":3,"ids":["c","b"]}},
		{"_id":"norev"},
		[1,2]
	]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var results []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 4)
	assert.Equal(t, true, results[0]["ok"])
	assert.Equal(t, "missing_ancestor", results[1]["error"])
	assert.Equal(t, "orphan", results[1]["id"])
	assert.Equal(t, "bad_request", results[2]["error"])
	assert.Equal(t, "bad_request", results[3]["error"])
}

func TestBulkDocsNewEdits(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/_bulk_docs", `{"docs":[{"_id":"a","v":1},{"v":2},{"_id":"a","v":3}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var results []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Equal(t, true, results[0]["ok"])
	assert.Equal(t, true, results[1]["ok"])
	assert.NotEmpty(t, results[1]["id"])
	assert.Equal(t, "conflict", results[2]["error"])
}

func TestRevsDiff(t *testing.T) {
	_, h := newTestServer(t)
	do(t, h, http.MethodPost, "/_bulk_docs", `{"new_edits":false,"docs":[
		{"_id":"doc","_rev":"2-b","_revisions":{"start":2,"ids":["b","a"]}}
	]}`)

	rec := do(t, h, http.MethodPost, "/_revs_diff", `{"doc":["1-a","2-b","3-c"],"other":["1-x"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"doc":{"missing":["3-c"],"possible_ancestors":["2-b"]},
		"other":{"missing":["1-x"]}
	}`, rec.Body.String())
}

func TestChangesNormal(t *testing.T) {
	_, h := newTestServer(t)
	revA := put(t, h, "/a", `{}`)
	put(t, h, "/b", `{}`)
	put(t, h, "/a?rev="+revA, `{"x":1}`)

	rec := do(t, h, http.MethodGet, "/_changes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		Results []struct {
			Seq     uint64 `json:"seq"`
			ID      string `json:"id"`
			Changes []struct {
				Rev string `json:"rev"`
			} `json:"changes"`
			Doc map[string]any `json:"doc"`
		} `json:"results"`
		LastSeq uint64 `json:"last_seq"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Results, 2)
	assert.Equal(t, "b", res.Results[0].ID)
	assert.Equal(t, "a", res.Results[1].ID)
	assert.Equal(t, uint64(3), res.Results[1].Seq)
	assert.Equal(t, uint64(3), res.LastSeq)

	rec = do(t, h, http.MethodGet, "/_changes?since=2&include_docs=true", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Results, 1)
	assert.Equal(t, float64(1), res.Results[0].Doc["x"])

	rec = do(t, h, http.MethodGet, "/_changes?since=now", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Empty(t, res.Results)
	assert.Equal(t, uint64(3), res.LastSeq)
}

func TestChangesLongpoll(t *testing.T) {
	srv, h := newTestServer(t)
	put(t, h, "/a", `{}`)
	require.Equal(t, uint64(1), srv.store.UpdateSeq())

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		done <- do(t, h, http.MethodGet, "/_changes?feed=longpoll&since=1&timeout=5000", "")
	}()

	time.Sleep(50 * time.Millisecond)
	put(t, h, "/b", `{}`)

	select {
	case rec := <-done:
		assert.Contains(t, rec.Body.String(), `"id":"b"`)
		assert.Contains(t, rec.Body.String(), `"last_seq":2`)
	case <-time.After(3 * time.Second):
		t.Fatal("longpoll did not return")
	}
}

func TestChangesLongpollTimeout(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/_changes?feed=longpoll&timeout=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results":[],"last_seq":0,"pending":0}`, rec.Body.String())
}

func TestLocalDocs(t *testing.T) {
	srv, h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/_local/cp", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPut, "/_local/cp", `{"last_seq":3}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"ok":true,"id":"_local/cp","rev":"0-1"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/_local/cp", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"_id":"_local/cp","_rev":"0-1","last_seq":3}`, rec.Body.String())

	rec = do(t, h, http.MethodPut, "/_local/cp", `{"_rev":"0-7","last_seq":4}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPut, "/_local/cp", `{"_rev":"0-1","last_seq":4}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	// local documents never reach the change feed
	assert.Equal(t, uint64(0), srv.store.UpdateSeq())

	rec = do(t, h, http.MethodDelete, "/_local/cp?rev=0-2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/_local/cp", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInfoAndEnsureFullCommit(t *testing.T) {
	_, h := newTestServer(t)
	rev := put(t, h, "/a", `{}`)
	put(t, h, "/b", `{}`)
	do(t, h, http.MethodDelete, "/a?rev="+rev, "")

	rec := do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeMap(t, rec)
	assert.Equal(t, "treestore", info["db_name"])
	assert.Equal(t, float64(3), info["update_seq"])
	assert.Equal(t, float64(1), info["doc_count"])
	assert.Equal(t, float64(1), info["doc_del_count"])
	assert.NotEmpty(t, info["instance_start_time"])

	rec = do(t, h, http.MethodPost, "/_ensure_full_commit", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, decodeMap(t, rec)["ok"])
}

func TestAllDocsAndBulkGet(t *testing.T) {
	_, h := newTestServer(t)
	revB := put(t, h, "/b", `{"v":"b"}`)
	revA := put(t, h, "/a", `{"v":"a"}`)

	rec := do(t, h, http.MethodGet, "/_all_docs?include_docs=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_rows":2,"offset":0,"rows":[
		{"id":"a","key":"a","value":{"rev":"`+revA+`"},"doc":{"_id":"a","_rev":"`+revA+`","v":"a"}},
		{"id":"b","key":"b","value":{"rev":"`+revB+`"},"doc":{"_id":"b","_rev":"`+revB+`","v":"b"}}
	]}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/_bulk_get?revs=true", `{"docs":[{"id":"a"},{"id":"b","rev":"9-zz"},{"id":"nope"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		Results []struct {
			ID   string `json:"id"`
			Docs []struct {
				OK    map[string]any `json:"ok"`
				Error map[string]any `json:"error"`
			} `json:"docs"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Results, 3)
	assert.Equal(t, revA, res.Results[0].Docs[0].OK["_rev"])
	assert.NotNil(t, res.Results[0].Docs[0].OK["_revisions"])
	assert.Equal(t, "not_found", res.Results[1].Docs[0].Error["error"])
	assert.Equal(t, "9-zz", res.Results[1].Docs[0].Error["rev"])
	assert.Equal(t, "not_found", res.Results[2].Docs[0].Error["error"])
}

func TestOpenRevs(t *testing.T) {
	_, h := newTestServer(t)
	do(t, h, http.MethodPost, "/_bulk_docs", `{"new_edits":false,"docs":[
		{"_id":"doc","_rev":"1-a","v":1},
		{"_id":"doc","_rev":"2-b","_revisions":{"start":2,"ids":["b","a"]},"v":2},
		{"_id":"doc","_rev":"2-c","_revisions":{"start":2,"ids":["c","a"]},"v":3}
	]}`)

	rec := do(t, h, http.MethodGet, "/doc?open_revs=all&revs=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal(t, "2-c", all[0]["ok"]["_rev"])
	assert.Equal(t, "2-b", all[1]["ok"]["_rev"])

	rec = do(t, h, http.MethodGet, "/doc?open_revs="+url.QueryEscape(`["2-b","5-x"]`), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"ok":{"_id":"doc","_rev":"2-b","v":2}},{"missing":"5-x"}]`, rec.Body.String())
}

func TestCompactEndpoint(t *testing.T) {
	_, h := newTestServer(t)
	do(t, h, http.MethodPost, "/_bulk_docs", `{"new_edits":false,"docs":[
		{"_id":"doc","_rev":"1-a","v":1},
		{"_id":"doc","_rev":"2-b","_revisions":{"start":2,"ids":["b","a"]},"v":"loser"},
		{"_id":"doc","_rev":"2-c","_revisions":{"start":2,"ids":["c","a"]},"v":"winner"}
	]}`)

	rec := do(t, h, http.MethodPost, "/_compact", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		return do(t, h, http.MethodGet, "/doc?rev=2-b", "").Code == http.StatusNotFound
	}, 2*time.Second, 10*time.Millisecond)

	rec = do(t, h, http.MethodGet, "/doc/v", "")
	assert.JSONEq(t, `"winner"`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/_revs_diff", `{"doc":["1-a","2-b","2-c"]}`)
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	_, h := newTestServer(t, func(c *config.Config) { c.CORS.Enabled = true })

	rec := do(t, h, http.MethodOptions, "/doc", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))

	rec = do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestEscapedSegments(t *testing.T) {
	_, h := newTestServer(t)
	put(t, h, "/doc/a%2Fb", `1`)

	rec := do(t, h, http.MethodGet, "/doc", "")
	doc := decodeMap(t, rec)
	assert.Equal(t, float64(1), doc["a/b"])
}

func TestPostCreatesDocument(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/", `{"what":"posted"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decodeMap(t, rec)
	assert.Equal(t, true, res["ok"])
	id := res["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "/"+id, rec.Header().Get("Location"))

	rec = do(t, h, http.MethodGet, "/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decodeMap(t, rec)
	assert.Equal(t, "posted", doc["what"])
	assert.Equal(t, res["rev"], doc["_rev"])

	rec = do(t, h, http.MethodPost, "/", `{"_id":"chosen","n":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "chosen", decodeMap(t, rec)["id"])

	rec = do(t, h, http.MethodPost, "/", `{"_id":"chosen","n":2}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPostAddsField(t *testing.T) {
	_, h := newTestServer(t)
	rev := put(t, h, "/doc", `{"list":{"x":1}}`)

	rec := do(t, h, http.MethodPost, "/doc/list?rev="+rev, `{"y":2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	key := decodeMap(t, rec)["id"].(string)

	rec = do(t, h, http.MethodGet, "/doc/list", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeMap(t, rec)
	assert.Len(t, list, 2)
	assert.Equal(t, map[string]any{"y": float64(2)}, list[key])

	rec = do(t, h, http.MethodPost, "/doc/list", `3`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLeafKeySegmentRejected(t *testing.T) {
	_, h := newTestServer(t)
	rev := put(t, h, "/doc", `{"a":1}`)

	rec := do(t, h, http.MethodPut, "/doc/a/_val?rev="+rev, `5`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decodeMap(t, rec)["error"])

	rec = do(t, h, http.MethodDelete, "/doc/_val?rev="+rev, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/doc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decodeMap(t, rec)
	assert.Equal(t, rev, doc["_rev"])
	assert.Equal(t, float64(1), doc["a"])

	put(t, h, "/doc/b?rev="+rev, `2`)
}
