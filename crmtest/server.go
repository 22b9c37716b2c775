// ABOUTME: In-memory fake of the remote constituent CRM for tests
// ABOUTME: Serves every endpoint the engine uses, counts calls, and injects failures on demand
package crmtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/crmsync/config"
)

// APIKey is the credential the fake server accepts.
const APIKey = "test-api-key"

// Record is a stored JSON object. Ids are JSON numbers.
type Record map[string]any

// Call is one request seen by the server.
type Call struct {
	Method string
	Path   string
	Query  string
	Body   Record
}

type failure struct {
	method    string
	fragment  string
	status    int
	remaining int
}

// Server is a fake CRM. All state is guarded by mu.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	nextID       int
	constituents []Record
	contacts     map[string]map[string][]Record // constituent id -> collection -> records
	memberships  []Record
	gifts        map[string][]Record
	taxonomies   map[string][]Record // path -> items
	relations    []Record
	groups       []Record
	calls        []Call
	failures     []*failure

	// ListShape selects how list responses are wrapped: "items" (default), "array".
	ListShape string
	// EmbedContacts includes email_addresses in search results.
	EmbedContacts bool
	// Latency delays every response.
	Latency time.Duration
}

// NewServer starts a fake CRM that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		nextID:     100,
		contacts:   make(map[string]map[string][]Record),
		gifts:      make(map[string][]Record),
		taxonomies: make(map[string][]Record),
		ListShape:  "items",
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Config returns a configuration pointed at the server with fast limits.
func (s *Server) Config() *config.Config {
	cfg := config.Default()
	cfg.APIBaseURL = s.URL
	cfg.APIKey = APIKey
	cfg.RequestTimeoutSeconds = 5
	cfg.RateLimitMaxRequests = 10000
	cfg.MinDelayBetweenRequestsMs = 0
	cfg.RateLimitMaxWaitSeconds = 5
	cfg.MaxRetries = 2
	cfg.RetryBaseDelayMs = 1
	return cfg
}

// FailNext makes the next times requests whose method matches and whose path
// contains fragment fail with status.
func (s *Server) FailNext(method, fragment string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{method: method, fragment: fragment, status: status, remaining: times})
}

// Calls returns how many requests matched method and path prefix. An empty
// method matches every verb.
func (s *Server) Calls(method, pathPrefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.calls {
		if (method == "" || c.Method == method) && strings.HasPrefix(c.Path, pathPrefix) {
			n++
		}
	}
	return n
}

// CallsExact counts requests whose path equals path exactly.
func (s *Server) CallsExact(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.calls {
		if (method == "" || c.Method == method) && c.Path == path {
			n++
		}
	}
	return n
}

// Writes counts POST, PUT and DELETE requests.
func (s *Server) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.calls {
		if c.Method != http.MethodGet {
			n++
		}
	}
	return n
}

// History returns a copy of every recorded call.
func (s *Server) History() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *Server) newID() int {
	s.nextID++
	return s.nextID
}

// AddConstituent seeds a person. The first email is preferred.
func (s *Server) AddConstituent(first, last string, emails ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	s.constituents = append(s.constituents, Record{"id": id, "first_name": first, "last_name": last})
	key := strconv.Itoa(id)
	for i, email := range emails {
		s.appendContact(key, "email_addresses", Record{"address": email, "is_preferred": i == 0})
	}
	return key
}

// AddContact seeds a contact sub-record and returns its id.
func (s *Server) AddContact(constituentID, collection string, rec Record) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strconv.Itoa(s.appendContact(constituentID, collection, rec))
}

func (s *Server) appendContact(constituentID, collection string, rec Record) int {
	id := s.newID()
	stored := Record{"id": id}
	for k, v := range rec {
		stored[k] = v
	}
	if s.contacts[constituentID] == nil {
		s.contacts[constituentID] = make(map[string][]Record)
	}
	s.contacts[constituentID][collection] = append(s.contacts[constituentID][collection], stored)
	return id
}

// SetTaxonomy replaces a taxonomy list and returns the assigned ids by name.
func (s *Server) SetTaxonomy(path string, names ...string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]string, len(names))
	items := make([]Record, 0, len(names))
	for _, name := range names {
		id := s.newID()
		items = append(items, Record{"id": id, "name": name})
		ids[name] = strconv.Itoa(id)
	}
	s.taxonomies["/"+strings.Trim(path, "/")] = items
	return ids
}

// AddMembership seeds a membership for a constituent.
func (s *Server) AddMembership(constituentID, levelID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	s.memberships = append(s.memberships, Record{
		"id":                  id,
		"constituent_id":      constituentID,
		"membership_level_id": levelID,
	})
	return strconv.Itoa(id)
}

// Contacts returns copies of the records of one collection.
func (s *Server) Contacts(constituentID, collection string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRecords(s.contacts[constituentID][collection])
}

func (s *Server) Gifts(constituentID string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRecords(s.gifts[constituentID])
}

func (s *Server) Memberships(constituentID string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRecords(filter(s.memberships, "constituent_id", constituentID))
}

func (s *Server) Relationships(constituentID string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRecords(filter(s.relations, "constituent_id", constituentID))
}

func (s *Server) GroupMemberships(constituentID string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRecords(filter(s.groups, "constituent_id", constituentID))
}

// Constituent returns the stored scalar fields, or nil.
func (s *Server) Constituent(id string) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.findConstituent(id); c != nil {
		return copyRecords([]Record{c})[0]
	}
	return nil
}

func (s *Server) ConstituentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.constituents)
}

func copyRecords(in []Record) []Record {
	out := make([]Record, 0, len(in))
	for _, r := range in {
		c := make(Record, len(r))
		for k, v := range r {
			c[k] = v
		}
		out = append(out, c)
	}
	return out
}

func filter(in []Record, key, value string) []Record {
	var out []Record
	for _, r := range in {
		if fmt.Sprint(r[key]) == value {
			out = append(out, r)
		}
	}
	return out
}

func idOf(r Record) string {
	return fmt.Sprint(r["id"])
}

func (s *Server) findConstituent(id string) Record {
	for _, c := range s.constituents {
		if idOf(c) == id {
			return c
		}
	}
	return nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if s.Latency > 0 {
		time.Sleep(s.Latency)
	}

	w.Header().Set("X-Request-Id", uuid.NewString())

	var body Record
	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut) {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})

	if user, _, ok := r.BasicAuth(); !ok || user != APIKey {
		writeJSON(w, http.StatusUnauthorized, Record{"error": "unauthorized"})
		return
	}

	for _, f := range s.failures {
		if f.remaining > 0 && f.method == r.Method && strings.Contains(r.URL.Path, f.fragment) {
			f.remaining--
			writeJSON(w, f.status, Record{"error": "injected failure"})
			return
		}
	}

	status, payload := s.route(r, body)
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) list(records []Record) any {
	if records == nil {
		records = []Record{}
	}
	if s.ListShape == "array" {
		return records
	}
	return Record{"items": records}
}

var notFound = Record{"error": "not found"}

// route dispatches on path segments. Caller holds mu.
func (s *Server) route(r *http.Request, body Record) (int, any) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if items, ok := s.taxonomies[path]; ok && r.Method == http.MethodGet {
		return http.StatusOK, s.list(items)
	}

	segs := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case segs[0] == "constituents":
		return s.routeConstituents(r, segs[1:], body)

	case segs[0] == "memberships" && len(segs) == 2 && r.Method == http.MethodPut:
		for _, m := range s.memberships {
			if idOf(m) == segs[1] {
				merge(m, body)
				return http.StatusOK, m
			}
		}
		return http.StatusNotFound, notFound

	case segs[0] == "constituent_relationships" && len(segs) == 2 && r.Method == http.MethodDelete:
		s.relations = remove(s.relations, strings.TrimSuffix(segs[1], ".json"))
		return http.StatusNoContent, nil

	case segs[0] == "group_memberships" && len(segs) == 2 && r.Method == http.MethodDelete:
		s.groups = remove(s.groups, segs[1])
		return http.StatusNoContent, nil

	case strings.HasSuffix(path, ".json") || segs[0] == "relationship_types":
		return http.StatusOK, s.list(nil)
	}

	return http.StatusNotFound, notFound
}

func (s *Server) routeConstituents(r *http.Request, segs []string, body Record) (int, any) {
	if len(segs) == 0 {
		switch r.Method {
		case http.MethodGet:
			return http.StatusOK, s.list(s.search(r))
		case http.MethodPost:
			id := s.newID()
			rec := Record{"id": id}
			merge(rec, body)
			s.constituents = append(s.constituents, rec)
			return http.StatusCreated, rec
		}
		return http.StatusMethodNotAllowed, nil
	}

	id := segs[0]
	c := s.findConstituent(id)
	if c == nil {
		return http.StatusNotFound, notFound
	}

	if len(segs) == 1 {
		switch r.Method {
		case http.MethodGet:
			return http.StatusOK, s.withContacts(c)
		case http.MethodPut:
			merge(c, body)
			return http.StatusOK, c
		}
		return http.StatusMethodNotAllowed, nil
	}

	coll := segs[1]
	switch coll {
	case "email_addresses", "phone_numbers", "street_addresses":
		return s.routeContacts(r, id, coll, segs[2:], body)

	case "memberships":
		switch {
		case len(segs) == 2 && r.Method == http.MethodGet:
			return http.StatusOK, s.list(filter(s.memberships, "constituent_id", id))
		case len(segs) == 2 && r.Method == http.MethodPost:
			rec := Record{"id": s.newID(), "constituent_id": id}
			merge(rec, body)
			s.memberships = append(s.memberships, rec)
			return http.StatusCreated, rec
		case len(segs) == 3 && r.Method == http.MethodDelete:
			s.memberships = remove(s.memberships, segs[2])
			return http.StatusNoContent, nil
		case len(segs) == 3 && r.Method == http.MethodPut:
			// The real API rejects nested membership updates.
			return http.StatusMethodNotAllowed, Record{"error": "use /memberships/{id}"}
		}

	case "gifts.json":
		switch r.Method {
		case http.MethodPost:
			rec := Record{"id": s.newID()}
			merge(rec, body)
			s.gifts[id] = append(s.gifts[id], rec)
			return http.StatusCreated, rec
		case http.MethodGet:
			return http.StatusOK, s.list(s.gifts[id])
		}

	case "constituent_relationships.json":
		switch r.Method {
		case http.MethodGet:
			return http.StatusOK, s.list(filter(s.relations, "constituent_id", id))
		case http.MethodPost:
			rec := Record{"id": s.newID(), "constituent_id": id}
			merge(rec, body)
			s.relations = append(s.relations, rec)
			return http.StatusCreated, rec
		}

	case "group_memberships":
		switch r.Method {
		case http.MethodGet:
			return http.StatusOK, s.list(filter(s.groups, "constituent_id", id))
		case http.MethodPost:
			rec := Record{"id": s.newID(), "constituent_id": id}
			merge(rec, body)
			s.groups = append(s.groups, rec)
			return http.StatusCreated, rec
		}
	}

	return http.StatusNotFound, notFound
}

func (s *Server) routeContacts(r *http.Request, id, coll string, rest []string, body Record) (int, any) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			return http.StatusOK, s.list(s.contacts[id][coll])
		case http.MethodPost:
			recID := s.appendContact(id, coll, body)
			for _, rec := range s.contacts[id][coll] {
				if idOf(rec) == strconv.Itoa(recID) {
					return http.StatusCreated, rec
				}
			}
		}
		return http.StatusMethodNotAllowed, nil
	}

	recID := rest[0]
	records := s.contacts[id][coll]
	for i, rec := range records {
		if idOf(rec) != recID {
			continue
		}
		switch r.Method {
		case http.MethodPut:
			merge(rec, body)
			return http.StatusOK, rec
		case http.MethodDelete:
			s.contacts[id][coll] = append(records[:i:i], records[i+1:]...)
			return http.StatusNoContent, nil
		case http.MethodGet:
			return http.StatusOK, rec
		}
	}
	return http.StatusNotFound, notFound
}

// search emulates the loose remote index: email queries match on the local part
// of the base address as a substring, name queries on any contained term.
func (s *Server) search(r *http.Request) []Record {
	q := r.URL.Query()
	var out []Record

	if email := strings.ToLower(q.Get("email")); email != "" {
		needle := email
		if at := strings.IndexByte(email, '@'); at > 0 {
			needle = email[:at]
		}
		if plus := strings.IndexByte(needle, '+'); plus > 0 {
			needle = needle[:plus]
		}
		for _, c := range s.constituents {
			for _, rec := range s.contacts[idOf(c)]["email_addresses"] {
				if strings.Contains(strings.ToLower(fmt.Sprint(rec["address"])), needle) {
					out = append(out, s.searchResult(c))
					break
				}
			}
		}
		return out
	}

	if term := strings.ToLower(strings.TrimSpace(q.Get("search"))); term != "" {
		words := strings.Fields(term)
		for _, c := range s.constituents {
			full := strings.ToLower(fmt.Sprintf("%v %v %v", c["first_name"], c["last_name"], c["org_name"]))
			for _, w := range words {
				if strings.Contains(full, w) {
					out = append(out, s.searchResult(c))
					break
				}
			}
		}
	}
	return out
}

func (s *Server) searchResult(c Record) Record {
	if s.EmbedContacts {
		return s.withContacts(c)
	}
	return c
}

func (s *Server) withContacts(c Record) Record {
	out := make(Record, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	emails := s.contacts[idOf(c)]["email_addresses"]
	if emails == nil {
		emails = []Record{}
	}
	out["email_addresses"] = emails
	return out
}

func merge(dst, src Record) {
	for k, v := range src {
		if k != "id" {
			dst[k] = v
		}
	}
}

func remove(in []Record, id string) []Record {
	out := in[:0]
	for _, r := range in {
		if idOf(r) != id {
			out = append(out, r)
		}
	}
	return out
}
