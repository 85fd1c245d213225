package api

import (
	"time"

	"github.com/warp/kyudo-console/audit"
	"github.com/warp/kyudo-console/auth"
	"github.com/warp/kyudo-console/billing"
	"github.com/warp/kyudo-console/calendar"
	"github.com/warp/kyudo-console/equipment"
	"github.com/warp/kyudo-console/membership"
	"github.com/warp/kyudo-console/survey"
)

// =============================================================================
// DOMAIN -> DTO
// =============================================================================

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtTime(*t)
	return &s
}

func permissionNames(perms []auth.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

func toProfileDTO(p membership.Profile) ProfileDTO {
	return ProfileDTO{
		ID:             p.AccountID,
		Email:          p.Email,
		DisplayName:    p.DisplayName,
		Generation:     p.Generation,
		Gender:         string(p.Gender),
		Department:     p.Department,
		Ryuha:          p.Ryuha,
		Position:       p.Position,
		PublicNote:     p.PublicNote,
		StudentNumber:  p.StudentNumber,
		Phone:          p.Phone,
		Address:        p.Address,
		RestrictedNote: p.RestrictedNote,
		UpdatedAt:      fmtTime(p.UpdatedAt),
	}
}

func toAuditDTOs(entries []audit.Entry) []AuditEntryDTO {
	out := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = AuditEntryDTO{
			ID:         e.ID,
			OperatorID: e.OperatorID,
			SubjectID:  e.SubjectID,
			Action:     e.Action,
			Detail:     e.Detail,
			At:         fmtTime(e.At),
		}
	}
	return out
}

func toSurveyDTO(s survey.Survey) SurveyDTO {
	return SurveyDTO{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Status:      string(s.Status),
		OpensAt:     fmtTimePtr(s.OpensAt),
		ClosesAt:    fmtTimePtr(s.ClosesAt),
		IsAnonymous: s.IsAnonymous,
		CreatedBy:   s.CreatedBy,
		CreatedAt:   fmtTime(s.CreatedAt),
		UpdatedAt:   fmtTime(s.UpdatedAt),
	}
}

func toOptionDTO(o survey.Option) OptionDTO {
	return OptionDTO{ID: o.ID, Label: o.Label, CreatedBy: o.CreatedBy}
}

func toQuestionDTOs(qs []survey.Question) []QuestionDTO {
	out := make([]QuestionDTO, len(qs))
	for i, q := range qs {
		opts := make([]OptionDTO, len(q.Options))
		for j, o := range q.Options {
			opts[j] = toOptionDTO(o)
		}
		out[i] = QuestionDTO{
			ID:             q.ID,
			Prompt:         q.Prompt,
			Type:           string(q.Type),
			AllowOptionAdd: q.AllowOptionAdd,
			Position:       q.Position,
			Options:        opts,
		}
	}
	return out
}

func toRespondentDTO(r survey.Respondent) RespondentDTO {
	return RespondentDTO{
		AccountID:     r.AccountID,
		DisplayName:   r.DisplayName,
		StudentNumber: r.StudentNumber,
		Generation:    r.Generation,
	}
}

func toRespondentDTOs(rs []survey.Respondent) []RespondentDTO {
	if rs == nil {
		return nil
	}
	out := make([]RespondentDTO, len(rs))
	for i, r := range rs {
		out[i] = toRespondentDTO(r)
	}
	return out
}

func toDetailDTO(d *survey.Detail) SurveyDetailDTO {
	res := ResultsDTO{
		RespondedCount: d.Results.RespondedCount,
		EligibleCount:  d.Results.EligibleCount,
		ResponseRate:   d.Results.ResponseRate,
		CountsByOption: d.Results.CountsByOption,
		Unresponded:    toRespondentDTOs(d.Results.Unresponded),
	}
	if d.Results.RespondentsByOption != nil {
		res.RespondentsByOption = make(map[string][]RespondentDTO, len(d.Results.RespondentsByOption))
		for opt, rs := range d.Results.RespondentsByOption {
			res.RespondentsByOption[opt] = toRespondentDTOs(rs)
		}
	}

	out := SurveyDetailDTO{
		Survey:       toSurveyDTO(d.Survey),
		Questions:    toQuestionDTOs(d.Questions),
		Eligible:     d.Eligible,
		Availability: string(d.Availability),
		CanAnswer:    d.CanAnswer,
		MyAnswers:    map[string][]string{},
		Results:      res,
	}
	if d.MyResponse != nil {
		out.MyAnswers = d.MyResponse.Answers
		out.RespondedAt = fmtTimePtr(&d.MyResponse.UpdatedAt)
	}
	return out
}

func toInvoiceDTO(inv billing.Invoice) InvoiceDTO {
	return InvoiceDTO{
		ID:          inv.ID,
		AccountID:   inv.AccountID,
		Amount:      inv.Amount,
		BilledAt:    fmtTime(inv.BilledAt),
		Status:      string(inv.Status),
		ApproverID:  inv.ApproverID,
		ApprovedAt:  fmtTimePtr(inv.ApprovedAt),
		RequesterID: inv.RequesterID,
		Title:       inv.Title,
		Description: inv.Description,
		CreatedAt:   fmtTime(inv.CreatedAt),
	}
}

func toBowDTO(b equipment.Bow) BowDTO {
	return BowDTO{
		ID:                b.ID,
		BowNumber:         b.BowNumber,
		Name:              b.Name,
		Strength:          b.Strength,
		Length:            string(b.Length),
		Note:              b.Note,
		Available:         b.Available(),
		BorrowerProfileID: b.BorrowerProfileID,
		BorrowerName:      b.BorrowerName,
	}
}

func toLoanDTO(l equipment.Loan) LoanDTO {
	return LoanDTO{
		ID:                l.ID,
		BowID:             l.BowID,
		BorrowerProfileID: l.BorrowerProfileID,
		BorrowerName:      l.BorrowerName,
		OperatorID:        l.OperatorID,
		BorrowedAt:        fmtTime(l.BorrowedAt),
		ReturnedAt:        fmtTimePtr(l.ReturnedAt),
	}
}

func toEventDTO(e calendar.Event) EventDTO {
	return EventDTO{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		StartsAt:    fmtTime(e.StartsAt),
		EndsAt:      fmtTime(e.EndsAt),
		AllDay:      e.AllDay,
		Color:       e.Color,
		CreatedBy:   e.CreatedBy,
	}
}

// =============================================================================
// REQUEST -> DOMAIN
// =============================================================================

func (req SurveyDraftRequest) toDraft() (survey.Draft, error) {
	d := survey.Draft{
		Title:            req.Title,
		Description:      req.Description,
		OpensAt:          req.OpensAt,
		ClosesAt:         req.ClosesAt,
		IsAnonymous:      req.IsAnonymous,
		TargetAccountIDs: req.TargetAccountIDs,
	}
	for _, q := range req.Questions {
		qt, err := survey.ParseQuestionType(q.Type)
		if err != nil {
			return d, err
		}
		d.Questions = append(d.Questions, survey.DraftQuestion{
			Prompt:         q.Prompt,
			Type:           qt,
			AllowOptionAdd: q.AllowOptionAdd,
			Options:        q.Options,
		})
	}
	for _, g := range req.TargetGroups {
		conds := make([]survey.Condition, 0, len(g))
		for _, c := range g {
			field, err := survey.ParseField(c.Field)
			if err != nil {
				return d, err
			}
			op, err := survey.ParseOp(c.Op)
			if err != nil {
				return d, err
			}
			conds = append(conds, survey.Condition{Field: field, Op: op, Value: c.Value})
		}
		d.TargetGroups = append(d.TargetGroups, conds)
	}
	return d, nil
}

func (req UpdateProfileRequest) toPatch() membership.ProfilePatch {
	p := membership.ProfilePatch{
		DisplayName:    req.DisplayName,
		Generation:     req.Generation,
		Department:     req.Department,
		Ryuha:          req.Ryuha,
		Position:       req.Position,
		PublicNote:     req.PublicNote,
		StudentNumber:  req.StudentNumber,
		Phone:          req.Phone,
		Address:        req.Address,
		RestrictedNote: req.RestrictedNote,
	}
	if req.Gender != nil {
		g := membership.Gender(*req.Gender)
		p.Gender = &g
	}
	return p
}

func toPermissions(names []string) []auth.Permission {
	out := make([]auth.Permission, len(names))
	for i, n := range names {
		out[i] = auth.Permission(n)
	}
	return out
}
