// Package couchproto holds the JSON bodies exchanged with replication peers.
package couchproto

import "encoding/json"

// Reserved document fields.
const (
	FieldID        = "_id"
	FieldRev       = "_rev"
	FieldDeleted   = "_deleted"
	FieldRevisions = "_revisions"
	FieldConflicts = "_conflicts"
	FieldLocalSeq  = "_local_seq"
)

// Error is the body of every failed response.
type Error struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// DocResult is the outcome of one document write.
type DocResult struct {
	OK     bool   `json:"ok,omitempty"`
	ID     string `json:"id"`
	Rev    string `json:"rev,omitempty"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Revisions is the _revisions field: the ancestry of a revision, newest
// first, given as hashes counting down from Start.
type Revisions struct {
	Start int      `json:"start"`
	IDs   []string `json:"ids"`
}

// BulkDocsRequest is the body of POST /_bulk_docs. NewEdits defaults to true.
type BulkDocsRequest struct {
	Docs     []json.RawMessage `json:"docs"`
	NewEdits *bool             `json:"new_edits,omitempty"`
}

// ChangeRev names one revision of a change row.
type ChangeRev struct {
	Rev string `json:"rev"`
}

// ChangeRow is one document of the change feed.
type ChangeRow struct {
	Seq     uint64      `json:"seq"`
	ID      string      `json:"id"`
	Changes []ChangeRev `json:"changes"`
	Deleted bool        `json:"deleted,omitempty"`
	Doc     any         `json:"doc,omitempty"`
}

// ChangesResponse is the body of a normal or longpoll _changes request.
type ChangesResponse struct {
	Results []ChangeRow `json:"results"`
	LastSeq uint64      `json:"last_seq"`
	Pending int         `json:"pending"`
}

// LastSeq ends a continuous _changes feed.
type LastSeq struct {
	LastSeq uint64 `json:"last_seq"`
}

// RevsDiffEntry is the per-document result of POST /_revs_diff.
type RevsDiffEntry struct {
	Missing           []string `json:"missing"`
	PossibleAncestors []string `json:"possible_ancestors,omitempty"`
}

// AllDocsValue carries the winning revision of an _all_docs row.
type AllDocsValue struct {
	Rev string `json:"rev"`
}

// AllDocsRow is one row of GET /_all_docs.
type AllDocsRow struct {
	ID    string       `json:"id"`
	Key   string       `json:"key"`
	Value AllDocsValue `json:"value"`
	Doc   any          `json:"doc,omitempty"`
}

// AllDocsResponse is the body of GET /_all_docs.
type AllDocsResponse struct {
	TotalRows int          `json:"total_rows"`
	Offset    int          `json:"offset"`
	Rows      []AllDocsRow `json:"rows"`
}

// BulkGetRef names a document, and optionally one revision, to fetch.
type BulkGetRef struct {
	ID  string `json:"id"`
	Rev string `json:"rev,omitempty"`
}

// BulkGetRequest is the body of POST /_bulk_get.
type BulkGetRequest struct {
	Docs []BulkGetRef `json:"docs"`
}

// BulkGetDoc is either a document body or an error.
type BulkGetDoc struct {
	OK    any        `json:"ok,omitempty"`
	Error *DocResult `json:"error,omitempty"`
}

// BulkGetResult groups the revisions fetched for one reference.
type BulkGetResult struct {
	ID   string       `json:"id"`
	Docs []BulkGetDoc `json:"docs"`
}

// BulkGetResponse is the body returned by POST /_bulk_get.
type BulkGetResponse struct {
	Results []BulkGetResult `json:"results"`
}

// OpenRev is one entry of a GET with open_revs.
type OpenRev struct {
	OK      any    `json:"ok,omitempty"`
	Missing string `json:"missing,omitempty"`
}

// DBInfo is the body of GET /.
type DBInfo struct {
	DBName            string `json:"db_name"`
	UpdateSeq         uint64 `json:"update_seq"`
	DocCount          int    `json:"doc_count"`
	DocDelCount       int    `json:"doc_del_count"`
	InstanceStartTime string `json:"instance_start_time"`
	CompactRunning    bool   `json:"compact_running"`
	DiskFormatVersion int    `json:"disk_format_version"`
}

// OK is the body of simple acknowledgements.
type OK struct {
	OK                bool   `json:"ok"`
	InstanceStartTime string `json:"instance_start_time,omitempty"`
}
