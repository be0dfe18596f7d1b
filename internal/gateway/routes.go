package gateway

import (
	"context"
	"net/http"

	"github.com/hawkfin/hawkd/internal/agent"
	"github.com/hawkfin/hawkd/internal/domain"
	"github.com/hawkfin/hawkd/internal/version"
)

// registerHTTPRoutes sets up the HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("agent.submit", s.rpcAgentSubmit)
	s.Handle("session.list", s.rpcSessionList)
	s.Handle("session.rate", s.rpcSessionRate)
	s.Handle("session.markCompletion", s.rpcSessionMarkCompletion)
	s.Handle("template.stats", s.rpcTemplateStats)
	s.Handle("dashboard.metrics", s.rpcDashboardMetrics)
	s.Handle("dashboard.setFilter", s.rpcDashboardSetFilter)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:  "ok",
		Version: version.Version,
		Clients: s.clients.Count(),
	})
}

type agentSubmitParams struct {
	TemplateText     string            `json:"templateText"`
	Values           map[string]string `json:"values,omitempty"`
	UserID           string            `json:"userId,omitempty"`
	SessionType      string            `json:"sessionType,omitempty"`
	TemplateCategory string            `json:"templateCategory,omitempty"`
	TemplateIndex    int               `json:"templateIndex,omitempty"`
}

// rpcAgentSubmit runs a streaming submission. The blocking stream runs
// in its own goroutine so this connection keeps answering other RPCs;
// progress is pushed as agent.delta events and the terminal outcome
// both as an event and as the response to the original request.
func (s *Server) rpcAgentSubmit(rc *RequestContext) {
	if s.agentSvc == nil {
		rc.RespondError("unavailable", "agent service not configured")
		return
	}

	var p agentSubmitParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.TemplateText == "" {
		rc.RespondError("invalid_params", "templateText is required")
		return
	}

	reqID := rc.Frame.ID
	go func() {
		out := s.agentSvc.Submit(context.Background(), agent.SubmitRequest{
			TemplateText:     p.TemplateText,
			Values:           p.Values,
			UserID:           p.UserID,
			SessionType:      domain.SessionType(p.SessionType),
			TemplateCategory: p.TemplateCategory,
			TemplateIndex:    p.TemplateIndex,
		}, func(accumulated string) {
			rc.Client.SendEvent(EventAgentDelta, map[string]any{
				"requestId": reqID,
				"content":   accumulated,
			}, s.eventSeq.Add(1))
		})

		payload := map[string]any{
			"requestId":   reqID,
			"messageUid":  out.Session.MessageUID,
			"state":       string(out.Result.State),
			"displayText": out.DisplayText,
			"attempts":    out.Result.Attempts,
			"truncated":   out.Result.Truncated,
		}
		if out.Result.Usage != nil {
			payload["usage"] = out.Result.Usage
		}

		if out.Result.State == agent.StateFailed {
			payload["error"] = out.Result.Err.Error()
			rc.Client.SendEvent(EventAgentError, payload, s.eventSeq.Add(1))
		} else {
			rc.Client.SendEvent(EventAgentDone, payload, s.eventSeq.Add(1))
		}
		rc.Respond(payload)
	}()
}

func (s *Server) rpcSessionList(rc *RequestContext) {
	if s.sessions == nil {
		rc.RespondError("unavailable", "session store not configured")
		return
	}
	sessions, err := s.sessions.List()
	if err != nil {
		rc.RespondError("store_error", err.Error())
		return
	}
	rc.Respond(map[string]any{"sessions": sessions})
}

type sessionRateParams struct {
	MessageUID string `json:"messageUid"`
	Rating     int    `json:"rating"`
}

func (s *Server) rpcSessionRate(rc *RequestContext) {
	if s.agentSvc == nil {
		rc.RespondError("unavailable", "agent service not configured")
		return
	}
	var p sessionRateParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if err := s.agentSvc.Rate(p.MessageUID, p.Rating); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	rc.Respond(map[string]any{"messageUid": p.MessageUID, "rating": p.Rating})
}

type markCompletionParams struct {
	MessageUID string `json:"messageUid"`
	Status     string `json:"status"` // "complete" | "incomplete"
}

func (s *Server) rpcSessionMarkCompletion(rc *RequestContext) {
	if s.agentSvc == nil {
		rc.RespondError("unavailable", "agent service not configured")
		return
	}
	var p markCompletionParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if err := s.agentSvc.MarkCompletion(p.MessageUID, domain.CompletionStatus(p.Status)); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	rc.Respond(map[string]any{"messageUid": p.MessageUID, "completionStatus": p.Status})
}

type templateStatsParams struct {
	TemplateCategory string `json:"templateCategory,omitempty"`
	TemplateIndex    int    `json:"templateIndex,omitempty"`
}

// rpcTemplateStats returns the success-rate view: one slot when a
// category+index is given, otherwise all slots. Store read failures
// propagate as errors so the UI shows "unknown" rather than zeros.
func (s *Server) rpcTemplateStats(rc *RequestContext) {
	if s.stats == nil {
		rc.RespondError("unavailable", "statistics not configured")
		return
	}
	var p templateStatsParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	if p.TemplateCategory != "" && p.TemplateIndex > 0 {
		st, err := s.stats.TemplateStats(p.TemplateCategory, p.TemplateIndex)
		if err != nil {
			rc.RespondError("store_error", err.Error())
			return
		}
		rc.Respond(st)
		return
	}

	all, err := s.stats.AllStats()
	if err != nil {
		rc.RespondError("store_error", err.Error())
		return
	}
	rc.Respond(map[string]any{"stats": all})
}

func (s *Server) rpcDashboardMetrics(rc *RequestContext) {
	if s.refresher == nil {
		rc.RespondError("unavailable", "dashboard not configured")
		return
	}
	m := s.refresher.Latest()
	if m == nil {
		var err error
		if m, err = s.refresher.Refresh(); err != nil {
			rc.RespondError("store_error", err.Error())
			return
		}
	}
	rc.Respond(m)
}

type dashboardFilterParams struct {
	Currency string `json:"currency"`
}

func (s *Server) rpcDashboardSetFilter(rc *RequestContext) {
	if s.refresher == nil {
		rc.RespondError("unavailable", "dashboard not configured")
		return
	}
	var p dashboardFilterParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	m, err := s.refresher.SetFilter(p.Currency)
	if err != nil {
		rc.RespondError("store_error", err.Error())
		return
	}
	rc.Respond(m)
}
