package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/huddlehq/huddle/internal/bus"
	"github.com/huddlehq/huddle/internal/chat"
	"github.com/huddlehq/huddle/internal/directory"
	"github.com/huddlehq/huddle/internal/identity"
	"github.com/huddlehq/huddle/internal/metrics"
	"github.com/huddlehq/huddle/internal/status"
	"github.com/huddlehq/huddle/internal/store"
)

// Handlers wires the daemon services behind the HTTP surface.
type Handlers struct {
	db       *store.DB
	bus      *bus.Bus
	resolver *identity.Resolver
	dir      *directory.Aggregator
	chat     *chat.Service
	machine  *status.Machine
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewHandlers(
	db *store.DB,
	b *bus.Bus,
	resolver *identity.Resolver,
	dir *directory.Aggregator,
	svc *chat.Service,
	machine *status.Machine,
	m *metrics.Metrics,
	log *zap.Logger,
) *Handlers {
	return &Handlers{
		db:       db,
		bus:      b,
		resolver: resolver,
		dir:      dir,
		chat:     svc,
		machine:  machine,
		metrics:  m,
		log:      log,
	}
}

// Router builds the daemon's HTTP routing table.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	if h.metrics != nil {
		r.Use(countRequests(h.metrics))
		r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(mux.MiddlewareFunc(requireUser))

	v1.HandleFunc("/status", h.getStatus).Methods(http.MethodGet)
	v1.HandleFunc("/me", h.getMe).Methods(http.MethodGet)
	v1.HandleFunc("/directory", h.getDirectory).Methods(http.MethodGet)

	v1.HandleFunc("/organizations", h.createOrganization).Methods(http.MethodPost)
	v1.HandleFunc("/roster", h.upsertRosterMember).Methods(http.MethodPut)
	v1.HandleFunc("/roster/import", h.importRoster).Methods(http.MethodPost)
	v1.HandleFunc("/roster/{userID}", h.removeRosterMember).Methods(http.MethodDelete)

	v1.HandleFunc("/conversations", h.listConversations).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/direct", h.startDirect).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/group", h.createGroup).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/name", h.renameGroup).Methods(http.MethodPatch)
	v1.HandleFunc("/conversations/{id}", h.deleteGroup).Methods(http.MethodDelete)
	v1.HandleFunc("/conversations/{id}/members/{memberID}", h.removeMember).Methods(http.MethodDelete)
	v1.HandleFunc("/conversations/{id}/messages", h.listMessages).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{id}/messages", h.sendMessage).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/read", h.markRead).Methods(http.MethodPost)
	v1.HandleFunc("/unread", h.getUnread).Methods(http.MethodGet)

	v1.HandleFunc("/events", h.streamEvents).Methods(http.MethodGet)
	return r
}

func (h *Handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  string(h.machine.Current()),
	})
}

func (h *Handlers) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"state": string(h.machine.Current())})
}

func (h *Handlers) getMe(w http.ResponseWriter, r *http.Request) {
	id, err := h.resolver.Resolve(userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (h *Handlers) getDirectory(w http.ResponseWriter, r *http.Request) {
	id, err := h.resolver.Resolve(userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var entries []directory.Participant
	if role := r.URL.Query().Get("role"); role != "" {
		if role != store.RoleStudent && role != store.RoleTrainer {
			writeError(w, http.StatusBadRequest, "unknown role "+role, "invalid_request")
			return
		}
		entries, err = h.dir.Role(id.OrgID, role)
	} else {
		entries, err = h.dir.Directory(id.OrgID)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"participants": entries})
}

func (h *Handlers) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req createOrgRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.db.CreateOrganization(&store.Organization{ID: userID(r), Name: req.Name}); err != nil {
		writeServiceError(w, err)
		return
	}
	h.resolver.Invalidate(userID(r))
	writeJSON(w, http.StatusCreated, map[string]string{"org_id": userID(r)})
}

// requireOwner resolves the caller and checks they own their organization.
func (h *Handlers) requireOwner(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, err := h.resolver.Resolve(userID(r))
	if err != nil {
		writeServiceError(w, err)
		return identity.Identity{}, false
	}
	if id.Role != identity.RoleOwner {
		writeError(w, http.StatusForbidden, "roster administration is owner-only", "not_owner")
		return identity.Identity{}, false
	}
	return id, true
}

func (h *Handlers) upsertRosterMember(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	var req rosterMemberRequest
	if !decode(w, r, &req) {
		return
	}

	member := &store.RosterMember{
		OrgID:     id.OrgID,
		UserID:    req.UserID,
		Role:      req.Role,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		AvatarURL: req.AvatarURL,
	}
	if err := h.db.UpsertRosterMember(member); err != nil {
		writeServiceError(w, err)
		return
	}
	h.resolver.Invalidate(req.UserID)
	h.bus.Publish(bus.NewEvent(bus.KindRosterChanged, directory.RosterChange{OrgID: id.OrgID, Role: req.Role}))
	if h.metrics != nil {
		h.metrics.DirectoryRefreshes.Inc()
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *Handlers) importRoster(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	var req rosterImportRequest
	if !decode(w, r, &req) {
		return
	}

	members := make([]store.RosterMember, 0, len(req.Members))
	for _, m := range req.Members {
		members = append(members, store.RosterMember{
			OrgID:     id.OrgID,
			UserID:    m.UserID,
			Role:      m.Role,
			FirstName: m.FirstName,
			LastName:  m.LastName,
			AvatarURL: m.AvatarURL,
		})
	}
	if err := h.db.BulkUpsertRosterMembers(members); err != nil {
		writeServiceError(w, err)
		return
	}
	for _, m := range members {
		h.resolver.Invalidate(m.UserID)
	}
	// Bulk imports may touch both rosters; refresh everything.
	h.bus.Publish(bus.NewEvent(bus.KindRosterChanged, directory.RosterChange{OrgID: id.OrgID}))
	writeJSON(w, http.StatusOK, map[string]int{"imported": len(members)})
}

func (h *Handlers) removeRosterMember(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	target := mux.Vars(r)["userID"]
	if err := h.db.RemoveRosterMember(id.OrgID, target); err != nil {
		writeServiceError(w, err)
		return
	}
	h.resolver.Invalidate(target)
	h.bus.Publish(bus.NewEvent(bus.KindRosterChanged, directory.RosterChange{OrgID: id.OrgID}))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) listConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.chat.Conversations(userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": toConversationViews(convs)})
}

func (h *Handlers) startDirect(w http.ResponseWriter, r *http.Request) {
	id, err := h.resolver.Resolve(userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req startDirectRequest
	if !decode(w, r, &req) {
		return
	}
	// The target id comes straight from the client; make sure it names a
	// real member of the caller's organization before creating anything.
	target, err := h.resolver.Resolve(req.TargetID)
	if errors.Is(err, identity.ErrNoOrganization) || (err == nil && target.OrgID != id.OrgID) {
		writeError(w, http.StatusNotFound, "target not found in organization", "unknown_target")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	conv, err := h.chat.StartOrGetDirect(id.OrgID, userID(r), req.TargetID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationView(*conv))
}

func (h *Handlers) createGroup(w http.ResponseWriter, r *http.Request) {
	id, err := h.resolver.Resolve(userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req createGroupRequest
	if !decode(w, r, &req) {
		return
	}
	conv, err := h.chat.CreateGroup(id.OrgID, userID(r), req.Name, req.MemberIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConversationView(*conv))
}

func (h *Handlers) renameGroup(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.chat.Rename(mux.Vars(r)["id"], userID(r), req.Name); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) deleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.DeleteGroup(mux.Vars(r)["id"], userID(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) removeMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.chat.RemoveMember(vars["id"], userID(r), vars["memberID"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", "invalid_request")
			return
		}
		limit = n
	}
	msgs, err := h.chat.Messages(mux.Vars(r)["id"], userID(r), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": toMessageViews(msgs, userID(r))})
}

func (h *Handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	msg, err := h.chat.Send(mux.Vars(r)["id"], userID(r), req.Text)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageView(*msg, userID(r)))
}

func (h *Handlers) markRead(w http.ResponseWriter, r *http.Request) {
	marked, err := h.chat.MarkRead(mux.Vars(r)["id"], userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": marked})
}

func (h *Handlers) getUnread(w http.ResponseWriter, r *http.Request) {
	counts, err := h.chat.UnreadCounts(userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unread": counts})
}
