package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/jobs"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/state"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/conversation"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/repository"
)

// fakeDB is an in-memory stand-in for the PostgreSQL schema.
type fakeDB struct {
	mu sync.Mutex

	nextID      int64
	users       map[int64]*models.Principal
	levels      []models.AcademicLevel
	sections    map[int64]*models.Section
	memberships []*models.Membership
	subjects    map[string]int64
	assignments map[int64]*models.Assignment
	edits       []models.Assignment
	records     []models.NotificationRecord
	activity    []models.ActivityLog
	takenCodes  map[string]bool
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:       map[int64]*models.Principal{},
		sections:    map[int64]*models.Section{},
		subjects:    map[string]int64{},
		assignments: map[int64]*models.Assignment{},
		takenCodes:  map[string]bool{},
		levels: []models.AcademicLevel{
			{ID: 1, Name: "Level 1", Number: 1, Active: true},
			{ID: 2, Name: "Level 2", Number: 2, Active: true},
		},
	}
}

func (db *fakeDB) id() int64 {
	db.nextID++
	return db.nextID
}

func (db *fakeDB) repos() (Repos, TxFunc) {
	r := Repos{
		Users:         fakeUsers{db},
		Levels:        fakeLevels{db},
		Sections:      fakeSections{db},
		Memberships:   fakeMemberships{db},
		Assignments:   fakeAssignments{db},
		Notifications: fakeNotifications{db},
		Activity:      fakeActivity{db},
		Stats:         fakeStats{db},
	}
	tx := func(_ context.Context, fn func(Repos) error) error { return fn(r) }
	return r, tx
}

func (db *fakeDB) addUser(tg int64, role models.Role, name string) *models.Principal {
	db.mu.Lock()
	defer db.mu.Unlock()
	p := &models.Principal{ID: db.id(), TelegramID: tg, FullName: name, Role: role, Active: true}
	db.users[p.ID] = p
	return p
}

func (db *fakeDB) addSection(name string, admin *models.Principal, max int) *models.Section {
	db.mu.Lock()
	defer db.mu.Unlock()
	s := &models.Section{
		ID:          db.id(),
		Name:        name,
		LevelID:     1,
		StudyType:   models.StudyMorning,
		Division:    "A",
		JoinCode:    fmt.Sprintf("SEC_%012d", db.nextID),
		MaxStudents: max,
		Active:      true,
	}
	if admin != nil {
		s.AdminID = &admin.ID
	}
	db.sections[s.ID] = s
	db.takenCodes[s.JoinCode] = true
	return s
}

func (db *fakeDB) addMembership(student *models.Principal, sec *models.Section, status models.MembershipStatus) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.memberships = append(db.memberships, &models.Membership{
		ID: db.id(), StudentID: student.ID, SectionID: sec.ID, Status: status, Active: true,
	})
}

func (db *fakeDB) membership(studentID, sectionID int64) *models.Membership {
	for _, m := range db.memberships {
		if m.StudentID == studentID && m.SectionID == sectionID {
			return m
		}
	}
	return nil
}

func (db *fakeDB) countMemberships(studentID, sectionID int64) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, m := range db.memberships {
		if m.StudentID == studentID && m.SectionID == sectionID {
			n++
		}
	}
	return n
}

func (db *fakeDB) userByTG(tg int64) *models.Principal {
	for _, u := range db.users {
		if u.TelegramID == tg {
			return u
		}
	}
	return nil
}

type fakeUsers struct{ db *fakeDB }

func (f fakeUsers) GetByTelegramID(_ context.Context, tg int64) (*models.Principal, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if u := f.db.userByTG(tg); u != nil {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (f fakeUsers) GetByID(_ context.Context, id int64) (*models.Principal, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if u, ok := f.db.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (f fakeUsers) Ensure(_ context.Context, p models.Principal) (*models.Principal, bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if u := f.db.userByTG(p.TelegramID); u != nil {
		if p.Username != nil {
			u.Username = p.Username
		}
		cp := *u
		return &cp, false, nil
	}
	p.ID = f.db.id()
	p.Active = true
	f.db.users[p.ID] = &p
	cp := p
	return &cp, true, nil
}

func (f fakeUsers) SetFullName(_ context.Context, id int64, name string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if u, ok := f.db.users[id]; ok {
		u.FullName = name
	}
	return nil
}

func (f fakeUsers) SetBlocked(_ context.Context, id int64, blocked bool) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[id]
	if !ok || u.Role == models.RoleOwner {
		return false, nil
	}
	u.Blocked = blocked
	return true, nil
}

type fakeLevels struct{ db *fakeDB }

func (f fakeLevels) ListActive(context.Context) ([]models.AcademicLevel, error) {
	return f.db.levels, nil
}

func (f fakeLevels) GetActive(_ context.Context, id int64) (*models.AcademicLevel, error) {
	for _, l := range f.db.levels {
		if l.ID == id && l.Active {
			cp := l
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeSections struct{ db *fakeDB }

func (f fakeSections) GetByID(_ context.Context, id int64) (*models.Section, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if s, ok := f.db.sections[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (f fakeSections) GetByJoinCode(_ context.Context, code string) (*models.Section, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, s := range f.db.sections {
		if s.JoinCode == code {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f fakeSections) GetApprovedForStudent(_ context.Context, studentID int64) (*models.Section, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, m := range f.db.memberships {
		if m.StudentID == studentID && m.Status == models.MembershipApproved && m.Active {
			cp := *f.db.sections[m.SectionID]
			return &cp, nil
		}
	}
	return nil, nil
}

func (f fakeSections) ListActive(_ context.Context, adminID int64) ([]models.Section, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Section
	for _, s := range f.db.sections {
		if !s.Active || (adminID > 0 && (s.AdminID == nil || *s.AdminID != adminID)) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeSections) JoinCodeExists(_ context.Context, code string) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.takenCodes[code], nil
}

func (f fakeSections) Create(_ context.Context, s *models.Section) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, other := range f.db.sections {
		if other.Active && other.LevelID == s.LevelID && other.StudyType == s.StudyType && other.Division == s.Division {
			return fmt.Errorf("create section: %w", &pq.Error{Code: "23505", Constraint: repository.ConstraintSectionTriple})
		}
	}
	s.ID = f.db.id()
	s.Active = true
	s.CreatedAt = time.Now()
	cp := *s
	f.db.sections[s.ID] = &cp
	f.db.takenCodes[s.JoinCode] = true
	return nil
}

type fakeMemberships struct{ db *fakeDB }

func (f fakeMemberships) Get(_ context.Context, studentID, sectionID int64) (*models.Membership, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if m := f.db.membership(studentID, sectionID); m != nil {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (f fakeMemberships) CountApproved(_ context.Context, sectionID int64) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	n := 0
	for _, m := range f.db.memberships {
		if m.SectionID == sectionID && m.Status == models.MembershipApproved {
			n++
		}
	}
	return n, nil
}

func (f fakeMemberships) CreatePending(_ context.Context, studentID, sectionID int64) (*models.Membership, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.membership(studentID, sectionID) != nil {
		return nil, &pq.Error{Code: "23505", Constraint: repository.ConstraintMembershipPair}
	}
	m := &models.Membership{ID: f.db.id(), StudentID: studentID, SectionID: sectionID, Status: models.MembershipPending, Active: true}
	f.db.memberships = append(f.db.memberships, m)
	cp := *m
	return &cp, nil
}

func (f fakeMemberships) Decide(_ context.Context, studentID, sectionID int64, status models.MembershipStatus, decidedBy int64) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	m := f.db.membership(studentID, sectionID)
	if m == nil || m.Status != models.MembershipPending {
		return false, nil
	}
	now := time.Now()
	m.Status, m.ApprovedAt, m.ApprovedBy = status, &now, &decidedBy
	return true, nil
}

func (f fakeMemberships) ListPending(_ context.Context, adminID int64) ([]models.PendingRequest, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.PendingRequest
	for _, m := range f.db.memberships {
		sec := f.db.sections[m.SectionID]
		if m.Status != models.MembershipPending || (adminID > 0 && (sec.AdminID == nil || *sec.AdminID != adminID)) {
			continue
		}
		u := f.db.users[m.StudentID]
		out = append(out, models.PendingRequest{
			Membership:        *m,
			StudentTelegramID: u.TelegramID,
			StudentName:       u.FullName,
			SectionName:       sec.Name,
		})
	}
	return out, nil
}

func (f fakeMemberships) Recipients(_ context.Context, sectionID int64) ([]models.Recipient, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Recipient
	for _, m := range f.db.memberships {
		u := f.db.users[m.StudentID]
		if m.SectionID != sectionID || m.Status != models.MembershipApproved || !m.Active || !u.Active || u.Blocked {
			continue
		}
		out = append(out, models.Recipient{PrincipalID: u.ID, TelegramID: u.TelegramID, FullName: u.FullName})
	}
	return out, nil
}

type fakeAssignments struct{ db *fakeDB }

func (f fakeAssignments) UpsertSubject(_ context.Context, name string) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if id, ok := f.db.subjects[name]; ok {
		return id, nil
	}
	id := f.db.id()
	f.db.subjects[name] = id
	return id, nil
}

func (f fakeAssignments) Create(_ context.Context, a *models.Assignment) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a.ID = f.db.id()
	a.Active = true
	cp := *a
	f.db.assignments[a.ID] = &cp
	return nil
}

func (f fakeAssignments) GetByID(_ context.Context, id int64) (*models.Assignment, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if a, ok := f.db.assignments[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (f fakeAssignments) ListActiveBySection(_ context.Context, sectionID int64) ([]models.Assignment, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Assignment
	for _, a := range f.db.assignments {
		if a.SectionID == sectionID && a.Active {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f fakeAssignments) ListActiveForAdmin(_ context.Context, adminID int64) ([]models.Assignment, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Assignment
	for _, a := range f.db.assignments {
		sec := f.db.sections[a.SectionID]
		if !a.Active || (adminID > 0 && (sec.AdminID == nil || *sec.AdminID != adminID)) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (f fakeAssignments) RecordEdit(_ context.Context, prev *models.Assignment, _ int64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.edits = append(f.db.edits, *prev)
	return nil
}

func (f fakeAssignments) Update(_ context.Context, id int64, title, description string, deadline time.Time) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.assignments[id]
	if !ok || !a.Active {
		return false, nil
	}
	a.Title, a.Description, a.Deadline, a.Edited = title, description, deadline, true
	return true, nil
}

func (f fakeAssignments) SoftDelete(_ context.Context, id int64) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.assignments[id]
	if !ok || !a.Active {
		return false, nil
	}
	a.Active = false
	return true, nil
}

type fakeNotifications struct{ db *fakeDB }

func (f fakeNotifications) Insert(_ context.Context, rec *models.NotificationRecord) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	rec.ID = f.db.id()
	rec.SentAt = time.Now()
	f.db.records = append(f.db.records, *rec)
	return nil
}

func (f fakeNotifications) StatsForAssignment(_ context.Context, assignmentID int64) (models.DispatchStats, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var st models.DispatchStats
	for _, r := range f.db.records {
		if r.AssignmentID == assignmentID {
			st.Add(r.Status)
		}
	}
	return st, nil
}

type fakeActivity struct{ db *fakeDB }

func (f fakeActivity) Log(_ context.Context, entry models.ActivityLog) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.activity = append(f.db.activity, entry)
	return nil
}

func (db *fakeDB) actions() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, 0, len(db.activity))
	for _, a := range db.activity {
		out = append(out, a.Action)
	}
	return out
}

type fakeStats struct{ db *fakeDB }

func (f fakeStats) Overall(context.Context) (models.Statistics, error) {
	return f.compute(0), nil
}

func (f fakeStats) ForAdmin(_ context.Context, adminID int64) (models.Statistics, error) {
	return f.compute(adminID), nil
}

func (f fakeStats) compute(adminID int64) models.Statistics {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var st models.Statistics
	owns := func(sectionID int64) bool {
		sec := f.db.sections[sectionID]
		return sec.Active && (adminID == 0 || (sec.AdminID != nil && *sec.AdminID == adminID))
	}
	for id := range f.db.sections {
		if owns(id) {
			st.ActiveSections++
		}
	}
	for _, m := range f.db.memberships {
		if !owns(m.SectionID) {
			continue
		}
		switch m.Status {
		case models.MembershipApproved:
			st.ApprovedStudents++
		case models.MembershipPending:
			st.PendingRequests++
		}
	}
	for _, a := range f.db.assignments {
		if a.Active && owns(a.SectionID) {
			st.ActiveAssignments++
		}
	}
	if adminID == 0 {
		for _, u := range f.db.users {
			if u.Role == models.RoleAdmin && u.Active {
				st.ActiveAdmins++
			}
		}
	}
	return st
}

// fakeNotifier records deliveries; fail maps a telegram id to the error it returns.
type fakeNotifier struct {
	mu   sync.Mutex
	sent map[int64][]Message
	fail map[int64]error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: map[int64][]Message{}, fail: map[int64]error{}}
}

func (n *fakeNotifier) Notify(_ context.Context, tg int64, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.fail[tg]; err != nil {
		return err
	}
	n.sent[tg] = append(n.sent[tg], msg)
	return nil
}

func (n *fakeNotifier) messages(tg int64) []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.sent[tg]...)
}

type observerStub struct {
	mu            sync.Mutex
	notifications map[string]int
	registrations map[string]int
	dispatches    int
}

func newObserverStub() *observerStub {
	return &observerStub{notifications: map[string]int{}, registrations: map[string]int{}}
}

func (o *observerStub) ObserveNotification(kind, status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifications[kind+"/"+status]++
}

func (o *observerStub) ObserveDispatch(time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dispatches++
}

func (o *observerStub) ObserveRegistration(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.registrations[outcome]++
}

type queueStub struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.jobs = append(q.jobs, job)
	return fmt.Sprintf("job-%d", len(q.jobs)), nil
}

// harness wires every service over one fakeDB.
type harness struct {
	db       *fakeDB
	notifier *fakeNotifier
	obs      *observerStub
	queue    *queueStub
	engine   *conversation.Engine
	store    state.Store

	gate          *PermissionGate
	sections      *SectionService
	sectionFlow   *SectionCreationFlow
	registration  *RegistrationFlow
	assignments   *AssignmentService
	assignFlow    *AssignmentCreationFlow
	editFlow      *AssignmentEditFlow
	conversations *Conversations
	identity      *IdentityService
	stats         *StatsService

	owner *models.Principal
	now   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		db:       newFakeDB(),
		notifier: newFakeNotifier(),
		obs:      newObserverStub(),
		queue:    &queueStub{},
		now:      time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
	}
	repos, tx := h.db.repos()
	h.store = state.NewMemoryStore(state.MemoryOptions{})
	h.engine = conversation.New(h.store, conversation.Options{})
	h.gate = NewPermissionGate(repos)
	h.sections = NewSectionService(repos, tx, h.gate, AcademicOptions{BotUsername: "drs_bot"})
	h.sectionFlow = NewSectionCreationFlow(h.engine, h.gate, h.sections)
	h.registration = NewRegistrationFlow(h.engine, h.gate, repos, tx, h.notifier, h.obs, nil)
	h.assignments = NewAssignmentService(repos, tx, h.gate, h.queue, nil, AssignmentOptions{
		Location: time.UTC,
		Now:      func() time.Time { return h.now },
	})
	h.assignFlow = NewAssignmentCreationFlow(h.engine, h.assignments)
	h.editFlow = NewAssignmentEditFlow(h.engine, h.assignments)
	h.identity = NewIdentityService(repos, tx, h.gate)
	h.stats = NewStatsService(repos, h.gate)

	conv, err := NewConversations(h.engine, h.sectionFlow, h.registration, h.assignFlow, h.editFlow)
	require.NoError(t, err)
	h.conversations = conv

	h.owner = h.db.addUser(1000, models.RoleOwner, "Owner")
	return h
}

func (h *harness) send(t *testing.T, key conversation.Key, in conversation.Input) (Reply, error) {
	t.Helper()
	return h.conversations.Handle(context.Background(), key, in)
}

func (h *harness) current(t *testing.T, key conversation.Key) state.State {
	t.Helper()
	st, err := h.engine.Current(context.Background(), key)
	require.NoError(t, err)
	return st
}
