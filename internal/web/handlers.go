package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"wallcal/internal/edit"
	"wallcal/internal/ics"
	appLog "wallcal/internal/log"
	"wallcal/internal/model"
	"wallcal/internal/occurrence"
	"wallcal/internal/recurrence"
	"wallcal/internal/reminder"
	"wallcal/internal/store"
	"wallcal/internal/wallclock"
)

// maxBodyBytes bounds request bodies, imports included.
const maxBodyBytes = 10 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// definitionView adds a readable repeat summary to a stored definition.
type definitionView struct {
	model.Definition
	RepeatDescription string `json:"repeatDescription,omitempty"`
}

func viewOf(d model.Definition) definitionView {
	return definitionView{Definition: d, RepeatDescription: recurrence.Describe(d.RepeatRule)}
}

func (s *Server) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := s.store.All(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	views := make([]definitionView, 0, len(defs))
	for _, d := range defs {
		views = append(views, viewOf(d))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(def))
}

// handleCreateDefinition stores a new single event or series.
//
// POST /api/definitions with a Definition body. The id is assigned by the
// store.
func (s *Server) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	var def model.Definition
	if !decodeBody(w, r, &def) {
		return
	}
	def.Title = strings.TrimSpace(def.Title)
	if def.Title == "" {
		s.writeStoreError(w, model.ErrMissingTitle)
		return
	}
	if err := def.Validate(); err != nil {
		s.writeStoreError(w, err)
		return
	}
	if def.RepeatRule != "" {
		if err := recurrence.Validate(def.RepeatRule); err != nil {
			s.writeStoreError(w, err)
			return
		}
	}

	created, err := s.store.Create(r.Context(), def)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	appLog.Info("web: definition created", "id", created.ID, "recurring", created.IsRecurring())
	writeJSON(w, http.StatusCreated, viewOf(created))
}

type skipView struct {
	DefinitionID string `json:"definitionId"`
	Error        string `json:"error"`
}

type occurrencesResponse struct {
	Occurrences []model.Occurrence `json:"occurrences"`
	Truncated   []string           `json:"truncated,omitempty"`
	Skipped     []skipView         `json:"skipped,omitempty"`
}

// expand returns the memoized expansion for the start/end query window.
func (s *Server) expand(r *http.Request) (occurrence.Result, wallclock.Time, wallclock.Time, error) {
	ws, we, err := parseWindow(r)
	if err != nil {
		return occurrence.Result{}, ws, we, err
	}
	// read the revision first so a concurrent write can only make the
	// cached entry newer than its key
	rev := s.store.Revision()
	defs, err := s.store.All(r.Context())
	if err != nil {
		return occurrence.Result{}, ws, we, err
	}
	return s.memo.Expand(rev, defs, ws, we), ws, we, nil
}

// handleOccurrences expands every definition over a wall-clock window.
//
// GET /api/occurrences?start=2025-01-01T00:00:00&end=2025-02-01T00:00:00
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	res, _, _, err := s.expand(r)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	resp := occurrencesResponse{
		Occurrences: res.Occurrences,
		Truncated:   res.Truncated,
	}
	if resp.Occurrences == nil {
		resp.Occurrences = []model.Occurrence{}
	}
	for _, sk := range res.Skipped {
		resp.Skipped = append(resp.Skipped, skipView{DefinitionID: sk.DefinitionID, Error: sk.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

type daysResponse struct {
	Zone  string                        `json:"zone"`
	Dates []string                      `json:"dates"`
	Days  map[string][]model.Occurrence `json:"days"`
}

// handleDays groups a window's occurrences by date.
//
// GET /api/days?start=&end=&zone=Europe/Berlin&clip=1
//   - zone: view zone, "local" (default) for the configured home zone
//   - clip: clamp each occurrence's displayed span to the window
func (s *Server) handleDays(w http.ResponseWriter, r *http.Request) {
	res, ws, we, err := s.expand(r)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	occs := res.Occurrences
	if clip := r.URL.Query().Get("clip"); clip == "1" || clip == "true" {
		clipped := make([]model.Occurrence, len(occs))
		for i, occ := range occs {
			clipped[i] = occurrence.ClipToWindow(occ, ws, we)
		}
		occs = clipped
	}

	zone := r.URL.Query().Get("zone")
	groups, err := s.grouper.GroupByDate(occs, zone)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if zone == "" {
		zone = "local"
	}
	writeJSON(w, http.StatusOK, daysResponse{
		Zone:  zone,
		Dates: occurrence.SortedDates(groups),
		Days:  groups,
	})
}

type saveRequest struct {
	OriginalID string         `json:"originalId"`
	ParentID   string         `json:"parentId"`
	Start      wallclock.Time `json:"start"`
	End        wallclock.Time `json:"end"`
	Fields     model.Patch    `json:"fields"`
}

// handleSaveOccurrence applies an edit to the occurrence with the given
// instance id. Edits to one occurrence of a series become overrides.
//
// PUT /api/occurrences/{id}
func (s *Server) handleSaveOccurrence(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ref := edit.Ref{
		InstanceID: r.PathValue("id"),
		OriginalID: req.OriginalID,
		ParentID:   req.ParentID,
		Start:      req.Start,
		End:        req.End,
	}
	saved, err := s.resolver.Save(r.Context(), ref, req.Fields)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(saved))
}

// handleDeleteOccurrence removes one occurrence or it and all later ones.
//
// DELETE /api/occurrences/{id}?scope=this|thisAndFuture&start=&originalId=&parentId=
func (s *Server) handleDeleteOccurrence(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope, err := edit.ParseScope(q.Get("scope"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	ref := edit.Ref{
		InstanceID: r.PathValue("id"),
		OriginalID: q.Get("originalId"),
		ParentID:   q.Get("parentId"),
	}
	if v := q.Get("start"); v != "" {
		if ref.Start, err = wallclock.Parse(v); err != nil {
			s.writeStoreError(w, err)
			return
		}
	}
	if err := s.resolver.Delete(r.Context(), ref, scope); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := store.ExportJSON(r.Context(), s.store, &buf); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="wallcal-backup.json"`)
	_, _ = w.Write(buf.Bytes())
}

type importResponse struct {
	Imported int `json:"imported"`
}

// handleImportJSON replaces every definition with the uploaded backup.
func (s *Server) handleImportJSON(w http.ResponseWriter, r *http.Request) {
	n, err := store.ImportJSON(r.Context(), s.store, http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	appLog.Info("web: backup imported", "definitions", n)
	writeJSON(w, http.StatusOK, importResponse{Imported: n})
}

func (s *Server) handleExportICS(w http.ResponseWriter, r *http.Request) {
	defs, err := s.store.All(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := ics.Export(defs, &buf); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="wallcal.ics"`)
	_, _ = w.Write(buf.Bytes())
}

// handleImportICS appends the events of an uploaded calendar file.
func (s *Server) handleImportICS(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}
	defs, err := ics.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := ics.Import(r.Context(), s.store, defs)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	appLog.Info("web: calendar imported", "definitions", n)
	writeJSON(w, http.StatusOK, importResponse{Imported: n})
}

func (s *Server) handleReminderOptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, reminder.Options)
}

type pushKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

func (s *Server) handlePushKey(w http.ResponseWriter, _ *http.Request) {
	if s.subs == nil || !s.cfg.HasVAPIDKeys() {
		writeError(w, http.StatusServiceUnavailable, "web push is not configured")
		return
	}
	writeJSON(w, http.StatusOK, pushKeyResponse{PublicKey: s.cfg.Push.VAPIDPublicKey})
}

// subscribeRequest mirrors the browser's PushSubscription.toJSON().
type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
	DeviceName string `json:"deviceName"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if s.subs == nil {
		writeError(w, http.StatusServiceUnavailable, "web push is not configured")
		return
	}
	var req subscribeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint and keys are required")
		return
	}
	sub, err := s.subs.Save(r.Context(), req.Endpoint, req.Keys.P256dh, req.Keys.Auth, req.DeviceName)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	appLog.Info("web: push subscription saved", "id", sub.ID, "device", sub.DeviceName)
	writeJSON(w, http.StatusCreated, sub)
}

// handleUnsubscribe removes a subscription.
//
// DELETE /api/push/subscriptions?endpoint=...
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if s.subs == nil {
		writeError(w, http.StatusServiceUnavailable, "web push is not configured")
		return
	}
	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}
	if err := s.subs.DeleteByEndpoint(r.Context(), endpoint); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseWindow reads the required start and end query values as wall-clock
// times.
func parseWindow(r *http.Request) (wallclock.Time, wallclock.Time, error) {
	q := r.URL.Query()
	ws, err := wallclock.Parse(q.Get("start"))
	if err != nil {
		return wallclock.Time{}, wallclock.Time{}, fmt.Errorf("start: %w", err)
	}
	we, err := wallclock.Parse(q.Get("end"))
	if err != nil {
		return wallclock.Time{}, wallclock.Time{}, fmt.Errorf("end: %w", err)
	}
	if !we.After(ws) {
		return wallclock.Time{}, wallclock.Time{}, errBadWindow
	}
	return ws, we, nil
}

var errBadWindow = errors.New("end must be after start")

// decodeBody decodes a JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, edit.ErrPartialWrite):
		return http.StatusInternalServerError
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrMissingStart),
		errors.Is(err, model.ErrMissingTitle),
		errors.Is(err, model.ErrInvalidTimeRange),
		errors.Is(err, recurrence.ErrInvalidRule),
		errors.Is(err, edit.ErrUnknownScope),
		errors.Is(err, edit.ErrNoSeries),
		errors.Is(err, store.ErrInvalidBackup),
		errors.Is(err, wallclock.ErrEmpty),
		errors.Is(err, wallclock.ErrInvalid),
		errors.Is(err, errBadWindow):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeStoreError writes err with the status statusOf picks. Unexpected
// failures are logged and hidden from the client.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if errors.Is(err, edit.ErrPartialWrite) {
		appLog.Error("web: edit partially applied", err)
		writeJSON(w, status, errorResponse{Error: err.Error(), Partial: true})
		return
	}
	if status == http.StatusInternalServerError {
		appLog.Error("web: request failed", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
