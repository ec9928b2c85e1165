package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"telepost/internal/domain"
	"telepost/internal/observability"
	"telepost/internal/service"
	"telepost/internal/userbot"
	"telepost/internal/util"
)

type API struct {
	Publish  *service.PublishService
	Channels *service.ChannelService
	Auth     *userbot.Manager
	Puller   *userbot.Puller
	IDGen    func() string
}

func (a *API) Register(r *mux.Router) {
	r.Use(countRequests)
	r.HandleFunc("/v1/posts/publish", a.handlePublish).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/start", a.handleStartAuth).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/complete", a.handleCompleteAuth).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/{ownerId}", a.handleLogout).Methods(http.MethodDelete)
	r.HandleFunc("/v1/auth/{ownerId}", a.handleAuthStatus).Methods(http.MethodGet)
	r.HandleFunc("/v1/channels/parse", a.handleParse).Methods(http.MethodPost)
	r.HandleFunc("/v1/channels/{channelId}/stats", a.handleChannelStats).Methods(http.MethodGet)
	r.HandleFunc("/v1/channels/check", a.handleCheckChannel).Methods(http.MethodPost)
	r.HandleFunc("/v1/channels/post", a.handleSendAs).Methods(http.MethodPost)
}

func (a *API) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req domain.PublishRequest
	if !decode(w, r, &req, func() error { return req.Validate() }) {
		return
	}
	resp, err := a.Publish.Publish(r.Context(), req, a.IDGen(), util.NowUTC())
	if err != nil {
		fail(w, "publish", err, "post_id", req.PostID, "bot_id", req.BotID)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (a *API) handleStartAuth(w http.ResponseWriter, r *http.Request) {
	var req domain.StartAuthRequest
	if !decode(w, r, &req, func() error { return req.Validate() }) {
		return
	}
	resp, err := a.Auth.StartAuth(r.Context(), req.OwnerID, req.Phone)
	if err != nil {
		fail(w, "start auth", err, "owner_id", req.OwnerID)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCompleteAuth(w http.ResponseWriter, r *http.Request) {
	var req domain.CompleteAuthRequest
	if !decode(w, r, &req, func() error { return req.Validate() }) {
		return
	}
	identity, err := a.Auth.CompleteAuth(r.Context(), req)
	if err != nil {
		fail(w, "complete auth", err, "owner_id", req.OwnerID)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	ownerID := mux.Vars(r)["ownerId"]
	if err := a.Auth.Logout(r.Context(), ownerID); err != nil {
		fail(w, "logout", err, "owner_id", ownerID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	ownerID := mux.Vars(r)["ownerId"]
	ok, err := a.Auth.HasSession(r.Context(), ownerID)
	if err != nil {
		fail(w, "auth status", err, "owner_id", ownerID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": ok})
}

func (a *API) handleParse(w http.ResponseWriter, r *http.Request) {
	var req domain.ParseRequest
	if !decode(w, r, &req, func() error { return req.Validate() }) {
		return
	}
	page, err := a.Puller.ParseChannel(r.Context(), req)
	if err != nil {
		fail(w, "parse channel", err, "owner_id", req.OwnerID, "channel", req.Channel)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleChannelStats(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(mux.Vars(r)["channelId"], 10, 64)
	if err != nil {
		http.Error(w, "invalid channel id", http.StatusBadRequest)
		return
	}
	ownerID := r.URL.Query().Get("ownerId")
	if ownerID == "" {
		http.Error(w, domain.ErrMissingFields.Error(), http.StatusBadRequest)
		return
	}
	stats, err := a.Puller.ChannelStats(r.Context(), ownerID, channelID)
	if err != nil {
		fail(w, "channel stats", err, "owner_id", ownerID, "channel_id", channelID)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleCheckChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BotID   string `json:"botId"`
		Channel string `json:"channel"`
	}
	if !decode(w, r, &req, func() error {
		if req.BotID == "" || req.Channel == "" {
			return domain.ErrMissingFields
		}
		return nil
	}) {
		return
	}
	check, err := a.Channels.Check(r.Context(), req.BotID, req.Channel)
	if err != nil {
		fail(w, "check channel", err, "bot_id", req.BotID, "channel", req.Channel)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (a *API) handleSendAs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID string `json:"ownerId"`
		Channel string `json:"channel"`
		Text    string `json:"text"`
	}
	if !decode(w, r, &req, func() error {
		if req.OwnerID == "" || req.Channel == "" || req.Text == "" {
			return domain.ErrMissingFields
		}
		return nil
	}) {
		return
	}
	if err := a.Puller.SendAs(r.Context(), req.OwnerID, req.Channel, req.Text); err != nil {
		fail(w, "send as", err, "owner_id", req.OwnerID, "channel", req.Channel)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, into any, validate func() error) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return false
	}
	if err := validate(); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return false
	}
	return true
}

func fail(w http.ResponseWriter, op string, err error, args ...any) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error(op+" failed", append(args, "err", err)...)
		msg = ErrDependency
	}
	http.Error(w, msg, status)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// countRequests counts by route template, not raw path, so path
// parameters do not explode label cardinality.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}
		observability.APIRequests.WithLabelValues(endpoint, strconv.Itoa(sw.status)).Inc()
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
