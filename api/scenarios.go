/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Provides pre-built scenarios that populate the database with a realistic
	club: a roster across several generations, bows, invoices, events and
	surveys. Everything is created through the domain services, so the same
	validation and audit rules apply as for real traffic.

AVAILABLE SCENARIOS:
	club-basics:            Roster, calendar for the current month
	targeted-surveys:       Open, closed, draft and anonymous surveys with
	                        condition groups and explicit targets
	equipment-and-billing:  Bows on loan, pending and approved invoices

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create the roster (one admin, members across generations)
 3. Create the scenario's domain data as the admin
 4. Optionally submit responses as members

USAGE VIA API:
	POST /api/scenarios/load
	{"scenarioId": "targeted-surveys"}

USAGE VIA CLI:
	kyudo-console seed --scenario targeted-surveys

NOTE:
	Scenarios reset the database, including the logged-in account. Only use
	in development/demo environments.

SEE ALSO:
  - server.go: routes are only mounted when scenarios are enabled
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/kyudo-console/auth"
	"github.com/warp/kyudo-console/billing"
	"github.com/warp/kyudo-console/calendar"
	"github.com/warp/kyudo-console/domain"
	"github.com/warp/kyudo-console/equipment"
	"github.com/warp/kyudo-console/membership"
	"github.com/warp/kyudo-console/survey"
)

// Demo credentials. Every roster account uses DemoPassword.
const (
	DemoAdminEmail = "admin@example.com"
	DemoPassword   = "kyudo-demo-pass"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, h *Handler, c *club) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "club-basics",
			Name:        "Club Basics",
			Description: "Roster across three generations and this month's practice calendar",
		},
		load: loadClubBasics,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "targeted-surveys",
			Name:        "Targeted Surveys",
			Description: "Surveys targeted by generation, gender and explicit members, some already answered",
		},
		load: loadTargetedSurveys,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "equipment-and-billing",
			Name:        "Equipment & Billing",
			Description: "Bows on loan with history, pending and approved invoices",
		},
		load: loadEquipmentAndBilling,
	},
}

// Scenarios lists the available scenarios.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	return out
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s.ScenarioDTO)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.ApplyScenario(r.Context(), req.ScenarioID); err != nil {
		h.fail(w, r, err, "failed to load scenario")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ApplyScenario resets the database and loads the scenario with the given id.
func (h *Handler) ApplyScenario(ctx context.Context, id string) error {
	var sc *scenario
	for i := range scenarios {
		if scenarios[i].ID == id {
			sc = &scenarios[i]
		}
	}
	if sc == nil {
		return domain.Invalidf("unknown scenario %q", id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset database: %w", err)
	}
	h.currentScenario = ""

	c, err := h.seedRoster(ctx)
	if err != nil {
		return fmt.Errorf("seed roster: %w", err)
	}
	if err := sc.load(ctx, h, c); err != nil {
		return fmt.Errorf("load %s: %w", id, err)
	}

	h.currentScenario = id
	h.logger.Info("scenario loaded", zap.String("scenario", id), zap.Int("accounts", len(c.members)+1))
	return nil
}

// =============================================================================
// ROSTER
// =============================================================================

// club is the roster every scenario starts from.
type club struct {
	admin   auth.Identity
	members map[string]auth.Identity // keyed by short name
}

type rosterEntry struct {
	key, name, generation, student string
	gender                         membership.Gender
	department, ryuha, position    string
}

var roster = []rosterEntry{
	{"sato", "佐藤 花子", "50", "S50-001", membership.GenderFemale, "文学部", "日置流印西派", ""},
	{"suzuki", "鈴木 一郎", "50", "S50-002", membership.GenderMale, "工学部", "日置流印西派", ""},
	{"takahashi", "高橋 美咲", "50", "S50-003", membership.GenderFemale, "理学部", "小笠原流", ""},
	{"tanaka", "田中 健", "49", "S49-001", membership.GenderMale, "工学部", "日置流印西派", "主将"},
	{"ito", "伊藤 さくら", "49", "S49-002", membership.GenderFemale, "経済学部", "小笠原流", "会計"},
	{"watanabe", "渡辺 翔", "48", "S48-001", membership.GenderMale, "法学部", "日置流印西派", "副将"},
	{"yamamoto", "山本 蓮", "48", "S48-002", "", "工学部", "", ""},
}

func (h *Handler) seedRoster(ctx context.Context) (*club, error) {
	system := auth.Identity{Role: auth.RoleAdmin}
	admin, err := h.members.CreateAccount(ctx, system, membership.NewAccount{
		Email:       DemoAdminEmail,
		Password:    DemoPassword,
		DisplayName: "管理者",
		Role:        auth.RoleAdmin,
	})
	if err != nil {
		return nil, err
	}
	c := &club{
		admin:   auth.Identity{AccountID: admin.AccountID, Email: admin.Email, Role: auth.RoleAdmin},
		members: make(map[string]auth.Identity, len(roster)),
	}

	for _, m := range roster {
		var perms []auth.Permission
		switch m.position {
		case "主将":
			perms = []auth.Permission{auth.PermSurveyAdmin, auth.PermCalendarAdmin}
		case "会計":
			perms = []auth.Permission{auth.PermInvoiceAdmin}
		case "副将":
			perms = []auth.Permission{auth.PermBowAdmin}
		}
		p, err := h.members.CreateAccount(ctx, c.admin, membership.NewAccount{
			Email:         m.key + "@example.com",
			Password:      DemoPassword,
			DisplayName:   m.name,
			Permissions:   perms,
			Generation:    m.generation,
			StudentNumber: m.student,
			Gender:        m.gender,
			Department:    m.department,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", m.key, err)
		}
		if m.ryuha != "" || m.position != "" {
			ryuha, position := m.ryuha, m.position
			if _, err := h.members.UpdateProfile(ctx, c.admin, p.AccountID, membership.ProfilePatch{
				Ryuha:    &ryuha,
				Position: &position,
			}); err != nil {
				return nil, fmt.Errorf("update %s: %w", m.key, err)
			}
		}
		c.members[m.key] = auth.Identity{
			AccountID:   p.AccountID,
			Email:       p.Email,
			Role:        auth.RoleUser,
			Permissions: perms,
		}
	}
	return c, nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadClubBasics(ctx context.Context, h *Handler, c *club) error {
	month := calendar.Month(time.Now().UTC())
	day := func(n, hour int) time.Time {
		return month.Start.AddDate(0, 0, n-1).Add(time.Duration(hour) * time.Hour)
	}

	events := []calendar.EventInput{
		{Title: "月例射会", StartsAt: day(5, 9), EndsAt: day(5, 12), Color: "#ef4444"},
		{Title: "新人練習会", Description: "50期向け 巻藁練習", StartsAt: day(12, 13), EndsAt: day(12, 16)},
		{Title: "合宿", Description: "三泊四日", StartsAt: day(20, 0), EndsAt: day(23, 23), AllDay: true, Color: "#22c55e"},
		{Title: "道場清掃", StartsAt: day(28, 10), EndsAt: day(28, 11)},
	}
	for _, in := range events {
		if _, err := h.events.Create(ctx, c.admin.AccountID, in); err != nil {
			return err
		}
	}
	return nil
}

func loadTargetedSurveys(ctx context.Context, h *Handler, c *club) error {
	now := time.Now().UTC()
	inAWeek := now.AddDate(0, 0, 7)

	// Generation 50 or any woman.
	camp, err := createOpenSurvey(ctx, h, c, survey.Draft{
		Title:       "合宿参加確認",
		Description: "50期および女子部員対象",
		ClosesAt:    &inAWeek,
		Questions: []survey.DraftQuestion{
			{Prompt: "参加しますか", Type: survey.QuestionSingle, Options: []string{"参加", "不参加"}},
			{Prompt: "参加可能日", Type: survey.QuestionMultiple, AllowOptionAdd: true, Options: []string{"初日", "二日目", "三日目"}},
		},
		TargetGroups: [][]survey.Condition{
			{{Field: survey.FieldGeneration, Op: survey.OpEq, Value: "50"}},
			{{Field: survey.FieldGender, Op: survey.OpEq, Value: "female"}},
		},
	})
	if err != nil {
		return err
	}
	if err := answer(ctx, h, c.members["sato"], camp, [][]int{{0}, {0, 1}}); err != nil {
		return err
	}
	if err := answer(ctx, h, c.members["ito"], camp, [][]int{{1}, {2}}); err != nil {
		return err
	}

	// Everyone, anonymous.
	practice, err := createOpenSurvey(ctx, h, c, survey.Draft{
		Title:       "練習時間アンケート",
		IsAnonymous: true,
		Questions: []survey.DraftQuestion{
			{Prompt: "希望する練習時間帯", Type: survey.QuestionMultiple, Options: []string{"朝", "昼", "夕方"}},
		},
	})
	if err != nil {
		return err
	}
	for key, pick := range map[string][]int{"tanaka": {0}, "suzuki": {2}, "watanabe": {1, 2}} {
		if err := answer(ctx, h, c.members[key], practice, [][]int{pick}); err != nil {
			return err
		}
	}

	// Explicit officers only.
	officers, err := createOpenSurvey(ctx, h, c, survey.Draft{
		Title: "幹部会日程",
		Questions: []survey.DraftQuestion{
			{Prompt: "都合のよい曜日", Type: survey.QuestionSingle, Options: []string{"月曜", "水曜", "金曜"}},
		},
		TargetAccountIDs: []string{
			c.members["tanaka"].AccountID,
			c.members["ito"].AccountID,
			c.members["watanabe"].AccountID,
		},
	})
	if err != nil {
		return err
	}
	if err := answer(ctx, h, c.members["tanaka"], officers, [][]int{{1}}); err != nil {
		return err
	}

	// Closed after collecting answers from engineering students.
	gear, err := createOpenSurvey(ctx, h, c, survey.Draft{
		Title: "弽の購入希望",
		Questions: []survey.DraftQuestion{
			{Prompt: "購入しますか", Type: survey.QuestionSingle, Options: []string{"はい", "いいえ"}},
		},
		TargetGroups: [][]survey.Condition{
			{{Field: survey.FieldDepartment, Op: survey.OpILike, Value: "工学"}},
		},
	})
	if err != nil {
		return err
	}
	if err := answer(ctx, h, c.members["suzuki"], gear, [][]int{{0}}); err != nil {
		return err
	}
	if _, err := h.editor.SetStatus(ctx, gear.ID, survey.StatusClosed); err != nil {
		return err
	}

	// Draft, visible to survey administrators only.
	_, err = h.editor.Create(ctx, c.admin.AccountID, survey.Draft{
		Title: "新歓イベント案",
		Questions: []survey.DraftQuestion{
			{Prompt: "どれがよいですか", Type: survey.QuestionSingle, Options: []string{"体験会", "演武"}},
		},
	})
	return err
}

func loadEquipmentAndBilling(ctx context.Context, h *Handler, c *club) error {
	bows := []equipment.BowInput{
		{BowNumber: "B-01", Name: "直心 並寸", Strength: decimal.NewFromInt(11), Length: equipment.LengthNamisun},
		{BowNumber: "B-02", Name: "直心 伸寸", Strength: decimal.NewFromInt(13), Length: equipment.LengthNisunNobi},
		{BowNumber: "B-03", Name: "粋 並寸", Strength: decimal.RequireFromString("9.5"), Length: equipment.LengthNamisun, Note: "新人用"},
		{BowNumber: "B-04", Name: "翠 四寸伸", Strength: decimal.NewFromInt(15), Length: equipment.LengthYonsunNobi},
	}
	ids := make([]string, len(bows))
	for i, in := range bows {
		b, err := h.bows.Create(ctx, in)
		if err != nil {
			return err
		}
		ids[i] = b.ID
	}

	// B-01 has history, B-02 and B-03 are out.
	if _, err := h.bows.Borrow(ctx, c.members["suzuki"], ids[0], ""); err != nil {
		return err
	}
	if _, err := h.bows.Return(ctx, c.members["suzuki"], ids[0]); err != nil {
		return err
	}
	if _, err := h.bows.Borrow(ctx, c.members["sato"], ids[1], ""); err != nil {
		return err
	}
	if _, err := h.bows.Borrow(ctx, c.admin, ids[2], c.members["takahashi"].AccountID); err != nil {
		return err
	}

	billed := time.Now().UTC().AddDate(0, 0, -14)
	var approve []string
	for _, key := range []string{"sato", "suzuki", "takahashi", "tanaka", "ito", "watanabe", "yamamoto"} {
		inv, err := h.invoices.Create(ctx, c.admin, billing.NewInvoice{
			AccountID: c.members[key].AccountID,
			Amount:    decimal.NewFromInt(3000),
			BilledAt:  billed,
			Title:     "前期部費",
		})
		if err != nil {
			return err
		}
		if key == "tanaka" || key == "ito" || key == "watanabe" {
			approve = append(approve, inv.ID)
		}
	}
	if _, err := h.invoices.Create(ctx, c.admin, billing.NewInvoice{
		AccountID:   c.members["sato"].AccountID,
		Amount:      decimal.RequireFromString("1250.50"),
		BilledAt:    billed,
		Title:       "矢の修理",
		Description: "矢羽交換 2本",
	}); err != nil {
		return err
	}
	_, err := h.invoices.Approve(ctx, c.members["ito"], approve)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// openSurvey is a published survey with its questions, for seeding answers.
type openSurvey struct {
	ID        string
	Questions []survey.Question
}

func createOpenSurvey(ctx context.Context, h *Handler, c *club, d survey.Draft) (*openSurvey, error) {
	s, err := h.editor.Create(ctx, c.admin.AccountID, d)
	if err != nil {
		return nil, err
	}
	if _, err := h.editor.SetStatus(ctx, s.ID, survey.StatusOpen); err != nil {
		return nil, err
	}
	detail, err := h.reconciler.Detail(ctx, survey.Viewer{AccountID: c.admin.AccountID, Admin: true}, s.ID)
	if err != nil {
		return nil, err
	}
	return &openSurvey{ID: s.ID, Questions: detail.Questions}, nil
}

// answer submits option indexes per question, in question order.
func answer(ctx context.Context, h *Handler, who auth.Identity, s *openSurvey, picks [][]int) error {
	answers := make([]survey.SubmittedAnswer, len(s.Questions))
	for i, q := range s.Questions {
		a := survey.SubmittedAnswer{QuestionID: q.ID}
		for _, idx := range picks[i] {
			a.OptionIDs = append(a.OptionIDs, q.Options[idx].ID)
		}
		answers[i] = a
	}
	return h.responder.Submit(ctx, surveyViewer(who), s.ID, answers)
}
