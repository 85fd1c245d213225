package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/kyudo-console/survey"
)

// =============================================================================
// SURVEY HANDLERS
// =============================================================================

// ListSurveys returns the surveys visible to the caller, each annotated with
// eligibility and whether an answer is still expected.
func (h *Handler) ListSurveys(w http.ResponseWriter, r *http.Request) {
	list, err := h.reconciler.List(r.Context(), surveyViewer(identity(r)))
	if err != nil {
		h.fail(w, r, err, "fetch failed")
		return
	}
	dtos := make([]SurveySummaryDTO, len(list))
	for i, s := range list {
		dtos[i] = SurveySummaryDTO{
			SurveyDTO:        toSurveyDTO(s.Survey),
			Eligible:         s.Eligible,
			Responded:        s.Responded,
			Availability:     string(s.Availability),
			CanAnswer:        s.CanAnswer,
			RequiresResponse: s.RequiresResponse,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSurvey returns the survey with results computed over the eligible set.
func (h *Handler) GetSurvey(w http.ResponseWriter, r *http.Request) {
	d, err := h.reconciler.Detail(r.Context(), surveyViewer(identity(r)), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "fetch failed")
		return
	}
	writeJSON(w, http.StatusOK, toDetailDTO(d))
}

// SubmitResponse stores or replaces the caller's answers.
func (h *Handler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	var req SubmitResponseRequest
	if !h.decode(w, r, &req) {
		return
	}
	answers := make([]survey.SubmittedAnswer, len(req.Answers))
	for i, a := range req.Answers {
		answers[i] = survey.SubmittedAnswer{QuestionID: a.QuestionID, OptionIDs: a.OptionIDs}
	}
	if err := h.responder.Submit(r.Context(), surveyViewer(identity(r)), chi.URLParam(r, "id"), answers); err != nil {
		h.fail(w, r, err, "failed to save response")
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// AppendOption adds a respondent-authored option. An equivalent existing
// label returns the existing option.
func (h *Handler) AppendOption(w http.ResponseWriter, r *http.Request) {
	var req AppendOptionRequest
	if !h.decode(w, r, &req) {
		return
	}
	opt, err := h.responder.AppendOption(r.Context(), surveyViewer(identity(r)), chi.URLParam(r, "id"), req.QuestionID, req.Label)
	if err != nil {
		h.fail(w, r, err, "failed to add option")
		return
	}
	writeJSON(w, http.StatusOK, toOptionDTO(*opt))
}

// =============================================================================
// SURVEY ADMINISTRATION
// =============================================================================

func (h *Handler) draftFromRequest(w http.ResponseWriter, r *http.Request) (survey.Draft, bool) {
	var req SurveyDraftRequest
	if !h.decode(w, r, &req) {
		return survey.Draft{}, false
	}
	d, err := req.toDraft()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return survey.Draft{}, false
	}
	return d, true
}

// CreateSurvey stores a new draft.
func (h *Handler) CreateSurvey(w http.ResponseWriter, r *http.Request) {
	d, ok := h.draftFromRequest(w, r)
	if !ok {
		return
	}
	s, err := h.editor.Create(r.Context(), identity(r).AccountID, d)
	if err != nil {
		h.fail(w, r, err, "failed to save survey")
		return
	}
	writeJSON(w, http.StatusCreated, toSurveyDTO(*s))
}

// ReplaceSurvey rewrites a draft in full.
func (h *Handler) ReplaceSurvey(w http.ResponseWriter, r *http.Request) {
	d, ok := h.draftFromRequest(w, r)
	if !ok {
		return
	}
	s, err := h.editor.Replace(r.Context(), identity(r).AccountID, chi.URLParam(r, "id"), d)
	if err != nil {
		h.fail(w, r, err, "failed to save survey")
		return
	}
	writeJSON(w, http.StatusOK, toSurveyDTO(*s))
}

// SetSurveyStatus opens or closes a survey.
func (h *Handler) SetSurveyStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.editor.SetStatus(r.Context(), chi.URLParam(r, "id"), survey.Status(req.Status))
	if err != nil {
		h.fail(w, r, err, "failed to update survey")
		return
	}
	writeJSON(w, http.StatusOK, toSurveyDTO(*s))
}

// DeleteSurveys removes surveys with their responses.
func (h *Handler) DeleteSurveys(w http.ResponseWriter, r *http.Request) {
	var req IDsRequest
	if !h.decode(w, r, &req) {
		return
	}
	n, err := h.editor.Delete(r.Context(), req.IDs)
	if err != nil {
		h.fail(w, r, err, "failed to delete surveys")
		return
	}
	writeJSON(w, http.StatusOK, DeletedResponse{Deleted: n})
}

// SurveyAnalytics rolls up participation per account for surveys created in
// [start, end]. Both bounds default to the last 365 days.
func (h *Handler) SurveyAnalytics(w http.ResponseWriter, r *http.Request) {
	end, ok := queryEnd(r, "end")
	if !ok {
		if r.URL.Query().Has("end") {
			writeError(w, http.StatusBadRequest, "end must be an RFC 3339 time or a date")
			return
		}
		end = time.Now().UTC()
	}
	start, ok := queryTime(r, "start")
	if !ok {
		if r.URL.Query().Has("start") {
			writeError(w, http.StatusBadRequest, "start must be an RFC 3339 time or a date")
			return
		}
		start = end.AddDate(-1, 0, 0)
	}

	rates, err := h.reconciler.Analytics(r.Context(), start, end)
	if err != nil {
		h.fail(w, r, err, "fetch failed")
		return
	}
	dtos := make([]AccountRateDTO, len(rates))
	for i, a := range rates {
		dtos[i] = AccountRateDTO{
			RespondentDTO:  toRespondentDTO(a.Respondent),
			EligibleCount:  a.EligibleCount,
			RespondedCount: a.RespondedCount,
			ResponseRate:   a.ResponseRate,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}
