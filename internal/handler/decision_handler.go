package handler

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"groupdecide/internal/domain"
	"groupdecide/internal/middleware"
	"groupdecide/internal/service"
	apperrors "groupdecide/pkg/errors"
	"groupdecide/pkg/logger"
)

// maxBodyBytes caps request bodies; ballots and options are small
const maxBodyBytes = 1 << 20

type DecisionHandler struct {
	decisions *service.DecisionService
	logger    *logger.Logger
}

func NewDecisionHandler(decisions *service.DecisionService, log *logger.Logger) *DecisionHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &DecisionHandler{
		decisions: decisions,
		logger:    log.Named("http"),
	}
}

// AdvanceVoteRequest names the phase the caller saw when voting to advance
type AdvanceVoteRequest struct {
	FromPhase domain.Phase `json:"from_phase"`
}

// TransferRequest names the member who becomes organizer
type TransferRequest struct {
	UserID string `json:"user_id"`
}

// Routes mounts the decision endpoints. Every route needs a caller identity.
func (h *DecisionHandler) Routes(r chi.Router) {
	r.Route("/decisions", func(r chi.Router) {
		r.Use(middleware.RequireUser(h.logger))

		r.Post("/", h.CreateDecision)
		r.Get("/", h.ListDecisions)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetDecision)
			r.Patch("/", h.UpdateDecision)
			r.Delete("/", h.DeleteDecision)
			r.Get("/actions", h.LegalActions)

			r.Post("/advance", h.AdvancePhase)
			r.Post("/revert", h.RevertPhase)

			r.Post("/advance-votes", h.RecordAdvanceVote)
			r.Delete("/advance-votes", h.RetractAdvanceVote)
			r.Get("/advance-votes", h.AdvanceVoteStatus)

			r.Post("/members", h.JoinDecision)
			r.Get("/members", h.ListMembers)
			r.Delete("/members/me", h.LeaveDecision)
			r.Delete("/members/{userID}", h.RemoveMember)
			r.Post("/organizer", h.TransferOrganizer)

			r.Post("/constraints", h.SubmitConstraint)
			r.Get("/constraints", h.ListConstraints)
			r.Delete("/constraints/{constraintID}", h.RemoveConstraint)

			r.Post("/options", h.SubmitOption)
			r.Get("/options", h.ListOptions)
			r.Delete("/options/{optionID}", h.RemoveOption)
			r.Get("/ballot", h.BallotOptions)

			r.Post("/ballots", h.SubmitBallot)
			r.Get("/voting-status", h.VotingStatus)
			r.Get("/results", h.GetResults)

			r.Post("/comments", h.AddComment)
			r.Get("/comments", h.CommentThread)
		})
	})
}

// CreateDecision handles POST /decisions
func (h *DecisionHandler) CreateDecision(w http.ResponseWriter, r *http.Request) {
	var input domain.CreateDecisionInput
	if !h.decode(w, r, &input) {
		return
	}
	d, err := h.decisions.CreateDecision(r.Context(), middleware.UserID(r.Context()), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, d)
}

// ListDecisions handles GET /decisions
func (h *DecisionHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	decisions, err := h.decisions.ListDecisions(r.Context(), middleware.UserID(r.Context()))
	h.respond(w, r, http.StatusOK, decisions, err)
}

// GetDecision handles GET /decisions/{id}
func (h *DecisionHandler) GetDecision(w http.ResponseWriter, r *http.Request) {
	d, err := h.decisions.GetDecision(r.Context(), decisionID(r))
	h.respond(w, r, http.StatusOK, d, err)
}

// UpdateDecision handles PATCH /decisions/{id}
func (h *DecisionHandler) UpdateDecision(w http.ResponseWriter, r *http.Request) {
	var input domain.UpdateDecisionInput
	if !h.decode(w, r, &input) {
		return
	}
	d, err := h.decisions.UpdateDecisionDetails(r.Context(), decisionID(r), middleware.UserID(r.Context()), input)
	h.respond(w, r, http.StatusOK, d, err)
}

// DeleteDecision handles DELETE /decisions/{id}
func (h *DecisionHandler) DeleteDecision(w http.ResponseWriter, r *http.Request) {
	err := h.decisions.DeleteDecision(r.Context(), decisionID(r), middleware.UserID(r.Context()))
	h.respondEmpty(w, r, err)
}

// LegalActions handles GET /decisions/{id}/actions
func (h *DecisionHandler) LegalActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.decisions.LegalActions(r.Context(), decisionID(r), middleware.UserID(r.Context()))
	h.respond(w, r, http.StatusOK, map[string]interface{}{"actions": actions}, err)
}

// AdvancePhase handles POST /decisions/{id}/advance
func (h *DecisionHandler) AdvancePhase(w http.ResponseWriter, r *http.Request) {
	var req service.PhaseChangeRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	d, err := h.decisions.AdvancePhase(r.Context(), decisionID(r), middleware.UserID(r.Context()), req)
	h.respond(w, r, http.StatusOK, d, err)
}

// RevertPhase handles POST /decisions/{id}/revert
func (h *DecisionHandler) RevertPhase(w http.ResponseWriter, r *http.Request) {
	var req service.PhaseChangeRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	d, err := h.decisions.RevertPhase(r.Context(), decisionID(r), middleware.UserID(r.Context()), req)
	h.respond(w, r, http.StatusOK, d, err)
}

// RecordAdvanceVote handles POST /decisions/{id}/advance-votes
func (h *DecisionHandler) RecordAdvanceVote(w http.ResponseWriter, r *http.Request) {
	var req AdvanceVoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	status, err := h.decisions.RecordAdvanceVote(r.Context(), decisionID(r), middleware.UserID(r.Context()), req.FromPhase)
	h.respond(w, r, http.StatusOK, status, err)
}

// RetractAdvanceVote handles DELETE /decisions/{id}/advance-votes
func (h *DecisionHandler) RetractAdvanceVote(w http.ResponseWriter, r *http.Request) {
	status, err := h.decisions.RetractAdvanceVote(r.Context(), decisionID(r), middleware.UserID(r.Context()))
	h.respond(w, r, http.StatusOK, status, err)
}

// AdvanceVoteStatus handles GET /decisions/{id}/advance-votes
func (h *DecisionHandler) AdvanceVoteStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.decisions.AdvanceVoteStatus(r.Context(), decisionID(r), middleware.UserID(r.Context()))
	h.respond(w, r, http.StatusOK, status, err)
}

// JoinDecision handles POST /decisions/{id}/members
func (h *DecisionHandler) JoinDecision(w http.ResponseWriter, r *http.Request) {
	member, err := h.decisions.JoinDecision(r.Context(), decisionID(r), middleware.UserID(r.Context()))
	h.respond(w, r, http.StatusOK, member, err)
}

// ListMembers handles GET /decisions/{id}/members
func (h *DecisionHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.decisions.ListMembers(r.Context(), decisionID(r), middleware.UserID(r.Context()))
	h.respond(w, r, http.StatusOK, members, err)
}

// LeaveDecision handles DELETE /decisions/{id}/members/me
func (h *DecisionHandler) LeaveDecision(w http.ResponseWriter, r *http.Request) {
	err := h.decisions.LeaveDecision(r.Context(), decisionID(r), middleware.UserID(r.Context()))
	h.respondEmpty(w, r, err)
}

// RemoveMember handles DELETE /decisions/{id}/members/{userID}
func (h *DecisionHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	err := h.decisions.RemoveMember(r.Context(), decisionID(r), middleware.UserID(r.Context()), chi.URLParam(r, "userID"))
	h.respondEmpty(w, r, err)
}

// TransferOrganizer handles POST /decisions/{id}/organizer
func (h *DecisionHandler) TransferOrganizer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := h.decisions.TransferOrganizer(r.Context(), decisionID(r), middleware.UserID(r.Context()), req.UserID)
	h.respond(w, r, http.StatusOK, d, err)
}

// SubmitConstraint handles POST /decisions/{id}/constraints
func (h *DecisionHandler) SubmitConstraint(w http.ResponseWriter, r *http.Request) {
	var input domain.ConstraintInput
	if !h.decode(w, r, &input) {
		return
	}
	c, err := h.decisions.SubmitConstraint(r.Context(), decisionID(r), middleware.UserID(r.Context()), input)
	h.respond(w, r, http.StatusCreated, c, err)
}

// ListConstraints handles GET /decisions/{id}/constraints
func (h *DecisionHandler) ListConstraints(w http.ResponseWriter, r *http.Request) {
	constraints, err := h.decisions.ListConstraints(r.Context(), decisionID(r), middleware.UserID(r.Context()))
	h.respond(w, r, http.StatusOK, constraints, err)
}

// RemoveConstraint handles DELETE /decisions/{id}/constraints/{constraintID}
func (h *DecisionHandler) RemoveConstraint(w http.ResponseWriter, r *http.Request) {
	err := h.decisions.RemoveConstraint(r.Context(), decisionID(r), middleware.UserID(r.Context()), chi.URLParam(r, "constraintID"))
	h.respondEmpty(w, r, err)
}

// SubmitOption handles POST /decisions/{id}/options
func (h *DecisionHandler) SubmitOption(w http.ResponseWriter, r *http.Request) {
	var draft domain.OptionDraft
	if !h.decode(w, r, &draft) {
		return
	}
	option, err := h.decisions.SubmitOption(r.Context(), decisionID(r), middleware.UserID(r.Context()), draft)
	h.respond(w, r, http.StatusCreated, option, err)
}

// ListOptions handles GET /decisions/{id}/options
func (h *DecisionHandler) ListOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.decisions.ListOptions(r.Context(), decisionID(r), middleware.UserID(r.Context()))
	h.respond(w, r, http.StatusOK, options, err)
}

// RemoveOption handles DELETE /decisions/{id}/options/{optionID}
func (h *DecisionHandler) RemoveOption(w http.ResponseWriter, r *http.Request) {
	err := h.decisions.RemoveOption(r.Context(), decisionID(r), middleware.UserID(r.Context()), chi.URLParam(r, "optionID"))
	h.respondEmpty(w, r, err)
}

// BallotOptions handles GET /decisions/{id}/ballot
func (h *DecisionHandler) BallotOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.decisions.BallotOptions(r.Context(), decisionID(r), middleware.UserID(r.Context()))
	h.respond(w, r, http.StatusOK, options, err)
}

// SubmitBallot handles POST /decisions/{id}/ballots
func (h *DecisionHandler) SubmitBallot(w http.ResponseWriter, r *http.Request) {
	var ballot domain.BallotRequest
	if !h.decode(w, r, &ballot) {
		return
	}
	votes, err := h.decisions.SubmitBallot(r.Context(), decisionID(r), middleware.UserID(r.Context()), ballot)
	h.respond(w, r, http.StatusCreated, votes, err)
}

// VotingStatus handles GET /decisions/{id}/voting-status (polling endpoint)
func (h *DecisionHandler) VotingStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.decisions.VotingStatus(r.Context(), decisionID(r), middleware.UserID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondCacheable(w, r, status, "private, max-age=5")
}

// GetResults handles GET /decisions/{id}/results
func (h *DecisionHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.decisions.GetResults(r.Context(), decisionID(r), middleware.UserID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	// results never change once locked
	h.respondCacheable(w, r, results, "private, max-age=300")
}

// AddComment handles POST /decisions/{id}/comments
func (h *DecisionHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req service.CommentRequest
	if !h.decode(w, r, &req) {
		return
	}
	comment, err := h.decisions.AddComment(r.Context(), decisionID(r), middleware.UserID(r.Context()), req)
	h.respond(w, r, http.StatusCreated, comment, err)
}

// CommentThread handles GET /decisions/{id}/comments
func (h *DecisionHandler) CommentThread(w http.ResponseWriter, r *http.Request) {
	thread, err := h.decisions.CommentThread(r.Context(), decisionID(r), middleware.UserID(r.Context()))
	h.respond(w, r, http.StatusOK, thread, err)
}

// Helper methods

func decisionID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// decode reads a required JSON body into dst
func (h *DecisionHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		h.respondError(w, r, apperrors.NewValidationError("Invalid request body", map[string]interface{}{
			"reason": err.Error(),
		}))
		return false
	}
	return true
}

// decodeOptional is decode for endpoints whose body may be empty
func (h *DecisionHandler) decodeOptional(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil && err != io.EOF {
		h.respondError(w, r, apperrors.NewValidationError("Invalid request body", map[string]interface{}{
			"reason": err.Error(),
		}))
		return false
	}
	return true
}

func (h *DecisionHandler) respond(w http.ResponseWriter, r *http.Request, status int, data interface{}, err error) {
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, status, data)
}

func (h *DecisionHandler) respondEmpty(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondCacheable serves data with an ETag so polling clients get 304s
func (h *DecisionHandler) respondCacheable(w http.ResponseWriter, r *http.Request, data interface{}, cacheControl string) {
	etag := generateETag(data)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", cacheControl)
	h.respondJSON(w, http.StatusOK, data)
}

func generateETag(data interface{}) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return fmt.Sprintf(`"%x"`, hash)
}

func (h *DecisionHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *DecisionHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	middleware.WriteError(w, r, err, h.logger)
}
