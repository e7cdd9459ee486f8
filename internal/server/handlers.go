package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/briefly/tracker/internal/inference"
	"github.com/briefly/tracker/internal/signallog"
	"github.com/briefly/tracker/internal/store"
	"github.com/briefly/tracker/internal/summarycache"
)

type trackSignalsRequest struct {
	Signals []signallog.Signal `json:"signals"`
}

func (s *Server) handleTrackSignals(w http.ResponseWriter, r *http.Request) {
	var req trackSignalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request", "request body is not valid JSON")
		return
	}
	if len(req.Signals) == 0 {
		s.respondError(w, http.StatusBadRequest, "invalid request", "signals array is required")
		return
	}
	s.logger.Debug("track signals request", zap.Int("count", len(req.Signals)))

	total, err := s.signals.AppendBatch(r.Context(), req.Signals)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			s.respondError(w, http.StatusConflict, "write conflict", "concurrent update, please retry")
			return
		}
		s.logger.Error("track signals failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to track signals", err.Error())
		return
	}

	positive, negative := 0, 0
	for _, sig := range req.Signals {
		if sig.Type == signallog.TypeNegative {
			negative++
		} else {
			positive++
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"message":      fmt.Sprintf("Tracked %d positive, %d negative signals", positive, negative),
		"total_clicks": total,
	})
}

type trackClickRequest struct {
	ArticleID int    `json:"article_id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Category  string `json:"category"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

// handleTrackClick is the legacy single-click endpoint, kept for clients that
// predate batched signals.
func (s *Server) handleTrackClick(w http.ResponseWriter, r *http.Request) {
	var req trackClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request", "request body is not valid JSON")
		return
	}
	if req.Title == "" {
		s.respondError(w, http.StatusBadRequest, "invalid request", "title is required")
		return
	}
	s.logger.Debug("track click request", zap.String("title", req.Title))

	total, err := s.signals.Append(r.Context(), signallog.Signal{
		Type:      signallog.TypePositive,
		ArticleID: req.ArticleID,
		Title:     req.Title,
		URL:       req.URL,
		Category:  req.Category,
		Source:    req.Source,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			s.respondError(w, http.StatusConflict, "write conflict", "concurrent update, please retry")
			return
		}
		s.logger.Error("track click failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to track click", err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"message":      "Click tracked",
		"total_clicks": total,
	})
}

type summarizeRequest struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	ArticleID int    `json:"article_id"`
	Date      string `json:"date"`
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request", "request body is not valid JSON")
		return
	}
	if req.URL == "" {
		s.respondError(w, http.StatusBadRequest, "invalid request", "url is required")
		return
	}

	// Without both date and article id there is no cache identity; such
	// requests are summarized fresh every time rather than collide on a
	// partial key.
	cacheable := req.Date != "" && req.ArticleID != 0
	if cacheable {
		key := summarycache.Key(req.Date, req.ArticleID)
		entry, err := s.cache.Get(r.Context(), req.Date, req.ArticleID)
		if err != nil {
			s.logger.Error("summary cache read failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "failed to summarize", err.Error())
			return
		}
		if entry != nil {
			s.logger.Debug("summary cache hit", zap.String("key", key))
			s.respondJSON(w, http.StatusOK, map[string]interface{}{
				"success":      true,
				"cached":       true,
				"article_text": entry.ArticleText,
				"ai_summary":   entry.AISummary,
			})
			return
		}
	}

	text := s.fetcher.Fetch(r.Context(), req.URL)
	summary, err := s.summarizer.Summarize(r.Context(), req.Title, text)
	if err != nil {
		s.logger.Error("summarize failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to summarize", err.Error())
		return
	}

	// Cache write is best-effort; a lost race or transient failure only costs
	// a future regeneration.
	if cacheable {
		entry := &summarycache.Entry{ArticleText: text, AISummary: *summary}
		if err := s.cache.PutIfAbsent(r.Context(), req.Date, req.ArticleID, entry); err != nil {
			s.logger.Warn("summary cache write failed",
				zap.String("key", summarycache.Key(req.Date, req.ArticleID)), zap.Error(err))
		}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"cached":       false,
		"article_text": text,
		"ai_summary":   summary,
	})
}

func (s *Server) handleAnalyzePreferences(w http.ResponseWriter, r *http.Request) {
	if s.config.CronSecret != "" {
		if r.Header.Get("Authorization") != "Bearer "+s.config.CronSecret {
			s.respondError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
	}

	report, err := s.learner.Run(r.Context())
	if err != nil {
		var parseErr *inference.ParseError
		if errors.As(err, &parseErr) {
			s.logger.Error("analysis output unusable", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "failed to analyze preferences", "analysis produced no usable output")
			return
		}
		s.logger.Error("preference analysis failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to analyze preferences", err.Error())
		return
	}
	if report.Skipped {
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "no signals to analyze",
		})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"clicks_analyzed":  report.ClicksAnalyzed,
		"learning_phase":   report.LearningPhase,
		"boosted_keywords": report.BoostedKeywords,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, label, message string) {
	s.respondJSON(w, status, map[string]string{"error": label, "message": message})
}
