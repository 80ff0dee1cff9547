// Package gatewaytest is an in-process double of the hosted gateway: REST
// CRUD over in-memory tables, the realtime packet protocol over websocket,
// presence rooms, and failure injection. It exists for tests; nothing in it
// is production code.
package gatewaytest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

type Server struct {
	mu     sync.Mutex
	tables map[string][]map[string]any
	seq    int

	failNext map[string]int // table -> status code, consumed on next write

	rpcs     map[string]func(args map[string]any) any
	rpcCalls []string

	objects map[string][]byte

	rooms map[string]*room

	router http.Handler
	now    func() time.Time
}

func New() *Server {
	s := &Server{
		tables:   make(map[string][]map[string]any),
		failNext: make(map[string]int),
		rpcs:     make(map[string]func(args map[string]any) any),
		objects:  make(map[string][]byte),
		rooms:    make(map[string]*room),
		now:      time.Now,
	}

	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/rest/v1/{table}", s.handleSelect)
	r.Post("/rest/v1/rpc/{fn}", s.handleRPC)
	r.Post("/rest/v1/{table}", s.handleInsert)
	r.Patch("/rest/v1/{table}", s.handleUpdate)
	r.Delete("/rest/v1/{table}", s.handleDelete)

	r.Post("/storage/v1/object/{bucket}/*", s.handleUpload)
	r.Get("/storage/v1/object/public/{bucket}/*", s.handleDownload)

	r.Get("/realtime/v1", s.handleSocket)

	s.router = r
	return s
}

// Handler is the gateway's HTTP surface, for httptest.NewServer.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Seed inserts rows directly, without fan-out or id assignment.
func (s *Server) Seed(table string, rows ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], rows...)
}

// Rows returns a copy of a table's rows.
func (s *Server) Rows(table string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.tables[table]))
	copy(out, s.tables[table])
	return out
}

// FailNext makes the next write (insert/update/delete) on table fail with
// the given status. One-shot.
func (s *Server) FailNext(table string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[table] = status
}

// HandleRPC registers a server-side function.
func (s *Server) HandleRPC(fn string, handler func(args map[string]any) any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rpcs[fn] = handler
}

// RPCCalls lists the RPC functions invoked, in order.
func (s *Server) RPCCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.rpcCalls))
	copy(out, s.rpcCalls)
	return out
}

func (s *Server) consumeFailure(table string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.failNext[table]
	if ok {
		delete(s.failNext, table)
	}
	return status, ok
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	filters, orderBy, desc, limit, offset := parseQuery(r)

	s.mu.Lock()
	rows := matchRows(s.tables[table], filters)
	s.mu.Unlock()

	if orderBy != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			less := compareValues(rows[i][orderBy], rows[j][orderBy])
			if desc {
				return !less && !equalValues(rows[i][orderBy], rows[j][orderBy])
			}
			return less
		})
	}
	if offset > 0 {
		if offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[offset:]
		}
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if status, ok := s.consumeFailure(table); ok {
		writeJSON(w, status, map[string]any{"message": "injected failure"})
		return
	}

	var row map[string]any
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}

	s.mu.Lock()
	s.seq++
	if _, ok := row["id"]; !ok {
		row["id"] = fmt.Sprintf("%s-%d", strings.TrimSuffix(table, "s"), s.seq)
	}
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = s.now().UnixMilli()
	}
	s.tables[table] = append(s.tables[table], row)
	s.mu.Unlock()

	s.fanOutInsert(table, row)
	writeJSON(w, http.StatusCreated, []map[string]any{row})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if status, ok := s.consumeFailure(table); ok {
		writeJSON(w, status, map[string]any{"message": "injected failure"})
		return
	}
	filters, _, _, _, _ := parseQuery(r)

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}

	s.mu.Lock()
	var updated []map[string]any
	for _, row := range s.tables[table] {
		if rowMatches(row, filters) {
			for k, v := range patch {
				row[k] = v
			}
			updated = append(updated, row)
		}
	}
	s.mu.Unlock()

	if updated == nil {
		updated = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if status, ok := s.consumeFailure(table); ok {
		writeJSON(w, status, map[string]any{"message": "injected failure"})
		return
	}
	filters, _, _, _, _ := parseQuery(r)

	s.mu.Lock()
	kept := s.tables[table][:0]
	for _, row := range s.tables[table] {
		if !rowMatches(row, filters) {
			kept = append(kept, row)
		}
	}
	s.tables[table] = kept
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, []map[string]any{})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	fn := chi.URLParam(r, "fn")

	var args map[string]any
	if r.Body != nil {
		body, _ := io.ReadAll(r.Body)
		if len(body) > 0 {
			json.Unmarshal(body, &args)
		}
	}

	s.mu.Lock()
	s.rpcCalls = append(s.rpcCalls, fn)
	handler := s.rpcs[fn]
	s.mu.Unlock()

	var result any = map[string]any{}
	if handler != nil {
		result = handler(args)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	path := chi.URLParam(r, "*")
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}

	s.mu.Lock()
	s.objects[bucket+"/"+path] = data
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"Key": bucket + "/" + path})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	path := chi.URLParam(r, "*")

	s.mu.Lock()
	data, ok := s.objects[bucket+"/"+path]
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func parseQuery(r *http.Request) (filters map[string]string, orderBy string, desc bool, limit, offset int) {
	filters = make(map[string]string)
	for key, vals := range r.URL.Query() {
		if len(vals) == 0 {
			continue
		}
		val := vals[0]
		switch key {
		case "order":
			parts := strings.SplitN(val, ".", 2)
			orderBy = parts[0]
			desc = len(parts) == 2 && parts[1] == "desc"
		case "limit":
			limit, _ = strconv.Atoi(val)
		case "offset":
			offset, _ = strconv.Atoi(val)
		default:
			if strings.HasPrefix(val, "eq.") {
				filters[key] = strings.TrimPrefix(val, "eq.")
			}
		}
	}
	return
}

func matchRows(rows []map[string]any, filters map[string]string) []map[string]any {
	var out []map[string]any
	for _, row := range rows {
		if rowMatches(row, filters) {
			out = append(out, row)
		}
	}
	if out == nil {
		out = []map[string]any{}
	}
	return out
}

func rowMatches(row map[string]any, filters map[string]string) bool {
	for col, want := range filters {
		if fmt.Sprintf("%v", row[col]) != want {
			return false
		}
	}
	return true
}

func compareValues(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprintf("%v", a) < fmt.Sprintf("%v", b)
}

func equalValues(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
