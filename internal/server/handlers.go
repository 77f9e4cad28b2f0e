package server

import (
	"net/http"

	"github.com/ryhazerus/apiwatch"
)

type createResourceRequest struct {
	ServiceName     string `json:"serviceName"`
	APIKey          string `json:"apiKey"`
	RateLimit       int64  `json:"rateLimit"`
	RateLimitPeriod string `json:"rateLimitPeriod"`
	Pattern         string `json:"pattern"`
}

type updateResourceRequest struct {
	ServiceName     *string `json:"serviceName"`
	APIKey          *string `json:"apiKey"`
	RateLimit       *int64  `json:"rateLimit"`
	RateLimitPeriod *string `json:"rateLimitPeriod"`
	Pattern         *string `json:"pattern"`
}

type trackUsageRequest struct {
	APIID string `json:"apiId"`
	Count *int64 `json:"count"`
}

type createAlertRequest struct {
	APIID     string `json:"apiId"`
	Threshold int    `json:"thresholdPercentage"`
}

type updateAlertRequest struct {
	Threshold *int  `json:"thresholdPercentage"`
	Active    *bool `json:"isActive"`
}

func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	list, err := s.tracker.ListResources(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) createResource(w http.ResponseWriter, r *http.Request) {
	var req createResourceRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.tracker.CreateResource(r.Context(), userID(r), apiwatch.ResourceSpec{
		Name:       req.ServiceName,
		Pattern:    req.Pattern,
		Credential: []byte(req.APIKey),
		Limit:      req.RateLimit,
		Period:     req.RateLimitPeriod,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, res)
}

func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	detail, err := s.tracker.GetResourceDetail(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, detail)
}

func (s *Server) updateResource(w http.ResponseWriter, r *http.Request) {
	var req updateResourceRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	upd := apiwatch.ResourceUpdate{
		Name:    req.ServiceName,
		Pattern: req.Pattern,
		Limit:   req.RateLimit,
		Period:  req.RateLimitPeriod,
	}
	if req.APIKey != nil {
		upd.Credential = []byte(*req.APIKey)
	}
	res, err := s.tracker.UpdateResource(r.Context(), userID(r), r.PathValue("id"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) deleteResource(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.DeleteResource(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "API deleted successfully")
}

func (s *Server) trackUsage(w http.ResponseWriter, r *http.Request) {
	var req trackUsageRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.APIID == "" {
		s.writeError(w, r, &apiwatch.ValidationError{Field: "apiId", Reason: "is required"})
		return
	}
	count := int64(1)
	if req.Count != nil {
		count = *req.Count
	}
	res, err := s.tracker.RecordUsage(r.Context(), userID(r), req.APIID, count)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) usageHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng := apiwatch.Last7Days
	if v := q.Get("period"); v != "" {
		rng = apiwatch.HistoryRange(v)
	}
	g := apiwatch.Daily
	if v := q.Get("granularity"); v != "" {
		g = apiwatch.Granularity(v)
	}

	points, err := s.tracker.GetHistory(r.Context(), userID(r), r.PathValue("id"), rng, g)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, points)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	rules, err := s.tracker.ListAlertRules(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rules)
}

func (s *Server) createAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.APIID == "" {
		s.writeError(w, r, &apiwatch.ValidationError{Field: "apiId", Reason: "is required"})
		return
	}
	rule, err := s.tracker.CreateAlertRule(r.Context(), userID(r), req.APIID, req.Threshold)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, rule)
}

func (s *Server) updateAlert(w http.ResponseWriter, r *http.Request) {
	var req updateAlertRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rule, err := s.tracker.UpdateAlertRule(r.Context(), userID(r), r.PathValue("id"), apiwatch.RuleUpdate{
		Threshold: req.Threshold,
		Active:    req.Active,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rule)
}

func (s *Server) deleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.DeleteAlertRule(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "Alert deleted successfully")
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := s.tracker.Notifications(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.MarkNotificationRead(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "Notification marked as read")
}

func (s *Server) ackNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.AckNotification(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "Notification acknowledged")
}

func (s *Server) clearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.ClearNotifications(r.Context(), userID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "Notifications cleared")
}
