package campaign

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/arbitrageos/campaignd/internal/mail"
	"github.com/arbitrageos/campaignd/internal/models"
)

type mockCampaignStore struct {
	byID     map[int64]*models.Campaign
	statuses map[int64]string
}

func newMockCampaignStore(campaigns ...*models.Campaign) *mockCampaignStore {
	m := &mockCampaignStore{
		byID:     map[int64]*models.Campaign{},
		statuses: map[int64]string{},
	}
	for _, c := range campaigns {
		m.byID[c.ID] = c
	}
	return m
}

func (m *mockCampaignStore) CreateCampaign(_ context.Context, params models.CampaignCreateParams) (*models.Campaign, error) {
	c := &models.Campaign{
		ID:                   int64(len(m.byID) + 1),
		PublicID:             uuid.New(),
		UserID:               params.UserID,
		MailboxID:            params.MailboxID,
		Name:                 params.Name,
		Status:               models.CampaignActive,
		Subject:              params.Subject,
		Body:                 params.Body,
		ScheduleMode:         params.ScheduleMode,
		ScheduledAt:          params.ScheduledAt,
		AutoReply:            params.AutoReply,
		AutoReplyBody:        params.AutoReplyBody,
		AutoFollowup:         params.AutoFollowup,
		FollowupIntervalDays: params.FollowupIntervalDays,
		MaxFollowups:         params.MaxFollowups,
		CreatedAt:            time.Now(),
		UpdatedAt:            time.Now(),
	}
	m.byID[c.ID] = c
	return c, nil
}

func (m *mockCampaignStore) GetCampaignByID(_ context.Context, id int64) (*models.Campaign, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func (m *mockCampaignStore) GetCampaignByPublicID(_ context.Context, publicID uuid.UUID) (*models.Campaign, error) {
	for _, c := range m.byID {
		if c.PublicID == publicID {
			return c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCampaignStore) ListCampaignsByUserID(_ context.Context, userID int64) ([]models.Campaign, error) {
	var out []models.Campaign
	for _, c := range m.byID {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockCampaignStore) ListCampaignsByMailboxID(_ context.Context, mailboxID int64) ([]models.Campaign, error) {
	var out []models.Campaign
	for _, c := range m.byID {
		if c.MailboxID == mailboxID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockCampaignStore) ListActiveCampaigns(_ context.Context) ([]models.Campaign, error) {
	var out []models.Campaign
	for _, c := range m.byID {
		if c.Status == models.CampaignActive {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockCampaignStore) ClaimCampaign(_ context.Context, id int64, cooldown time.Duration, now time.Time) (bool, error) {
	c, ok := m.byID[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	if c.LastProcessedAt != nil && c.LastProcessedAt.After(now.Add(-cooldown)) {
		return false, nil
	}
	stamp := now
	c.LastProcessedAt = &stamp
	return true, nil
}

func (m *mockCampaignStore) IncrementEmailsSent(_ context.Context, id int64, delta int) error {
	c, ok := m.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.EmailsSent += delta
	return nil
}

func (m *mockCampaignStore) UpdateCampaignStatus(_ context.Context, id int64, status string) error {
	c, ok := m.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Status = status
	m.statuses[id] = status
	return nil
}

type mockLeadStore struct {
	byCampaign map[int64][]models.Lead
	nextID     int64
}

func newMockLeadStore() *mockLeadStore {
	return &mockLeadStore{byCampaign: map[int64][]models.Lead{}}
}

func (m *mockLeadStore) CreateLeads(_ context.Context, campaignID int64, params []models.LeadCreateParams) ([]models.Lead, error) {
	var created []models.Lead
	for _, p := range params {
		m.nextID++
		lead := models.Lead{
			ID:         m.nextID,
			CampaignID: campaignID,
			Email:      p.Email,
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			Company:    p.Company,
			Title:      p.Title,
			CreatedAt:  time.Now(),
		}
		m.byCampaign[campaignID] = append(m.byCampaign[campaignID], lead)
		created = append(created, lead)
	}
	return created, nil
}

func (m *mockLeadStore) ListLeadsByCampaignID(_ context.Context, campaignID int64) ([]models.Lead, error) {
	return m.byCampaign[campaignID], nil
}

func (m *mockLeadStore) GetLeadByCampaignAndEmail(_ context.Context, campaignID int64, email string) (*models.Lead, error) {
	for _, l := range m.byCampaign[campaignID] {
		if l.Email == email {
			lead := l
			return &lead, nil
		}
	}
	return nil, sql.ErrNoRows
}

type attemptKey struct {
	campaignID int64
	leadID     int64
	sequence   int
}

type mockSendAttemptStore struct {
	attempts map[attemptKey]*models.SendAttempt
	nextID   int64
}

func newMockSendAttemptStore() *mockSendAttemptStore {
	return &mockSendAttemptStore{attempts: map[attemptKey]*models.SendAttempt{}}
}

func (m *mockSendAttemptStore) seedSent(campaignID, leadID int64, sequence int, sentAt time.Time) {
	m.nextID++
	m.attempts[attemptKey{campaignID, leadID, sequence}] = &models.SendAttempt{
		ID:         m.nextID,
		CampaignID: campaignID,
		LeadID:     leadID,
		Sequence:   sequence,
		Token:      uuid.New(),
		Status:     models.AttemptSent,
		SentAt:     &sentAt,
	}
}

func (m *mockSendAttemptStore) ClaimSendAttempt(_ context.Context, campaignID, leadID int64, sequence int, token uuid.UUID) (*models.SendAttempt, bool, error) {
	k := attemptKey{campaignID, leadID, sequence}
	if existing, ok := m.attempts[k]; ok {
		if existing.Status == models.AttemptSent {
			return existing, false, nil
		}
		existing.Token = token
		existing.Status = models.AttemptPending
		existing.LastError = ""
		return existing, true, nil
	}
	m.nextID++
	a := &models.SendAttempt{
		ID:         m.nextID,
		CampaignID: campaignID,
		LeadID:     leadID,
		Sequence:   sequence,
		Token:      token,
		Status:     models.AttemptPending,
		CreatedAt:  time.Now(),
	}
	m.attempts[k] = a
	return a, true, nil
}

func (m *mockSendAttemptStore) byID(id int64) *models.SendAttempt {
	for _, a := range m.attempts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (m *mockSendAttemptStore) MarkSendAttemptSent(_ context.Context, id int64, sentAt time.Time) error {
	a := m.byID(id)
	if a == nil {
		return sql.ErrNoRows
	}
	a.Status = models.AttemptSent
	a.SentAt = &sentAt
	return nil
}

func (m *mockSendAttemptStore) MarkSendAttemptFailed(_ context.Context, id int64, lastError string) error {
	a := m.byID(id)
	if a == nil {
		return sql.ErrNoRows
	}
	a.Status = models.AttemptFailed
	a.LastError = lastError
	return nil
}

func (m *mockSendAttemptStore) ListSendAttemptsByCampaignID(_ context.Context, campaignID int64) ([]models.SendAttempt, error) {
	var out []models.SendAttempt
	for _, a := range m.attempts {
		if a.CampaignID == campaignID {
			out = append(out, *a)
		}
	}
	return out, nil
}

type mockMailboxStore struct {
	byID map[int64]*models.Mailbox
}

func newMockMailboxStore(mailboxes ...*models.Mailbox) *mockMailboxStore {
	m := &mockMailboxStore{byID: map[int64]*models.Mailbox{}}
	for _, mb := range mailboxes {
		m.byID[mb.ID] = mb
	}
	return m
}

func (m *mockMailboxStore) CreateMailbox(_ context.Context, params models.MailboxCreateParams) (*models.Mailbox, error) {
	mb := &models.Mailbox{
		ID:       int64(len(m.byID) + 1),
		PublicID: uuid.New(),
		UserID:   params.UserID,
		Address:  params.Address,
		Enabled:  true,
	}
	m.byID[mb.ID] = mb
	return mb, nil
}

func (m *mockMailboxStore) GetMailboxByID(_ context.Context, id int64) (*models.Mailbox, error) {
	mb, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return mb, nil
}

func (m *mockMailboxStore) GetMailboxByPublicID(_ context.Context, publicID uuid.UUID) (*models.Mailbox, error) {
	for _, mb := range m.byID {
		if mb.PublicID == publicID {
			return mb, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockMailboxStore) ListMailboxesByUserID(_ context.Context, userID int64) ([]models.Mailbox, error) {
	var out []models.Mailbox
	for _, mb := range m.byID {
		if mb.UserID == userID {
			out = append(out, *mb)
		}
	}
	return out, nil
}

func (m *mockMailboxStore) ListEnabledMailboxes(_ context.Context) ([]models.Mailbox, error) {
	var out []models.Mailbox
	for _, mb := range m.byID {
		if mb.Enabled {
			out = append(out, *mb)
		}
	}
	return out, nil
}

func (m *mockMailboxStore) SetMailboxEnabled(_ context.Context, id int64, enabled bool) error {
	mb, ok := m.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	mb.Enabled = enabled
	return nil
}

func (m *mockMailboxStore) AdvanceMailboxSyncWatermark(_ context.Context, id int64, syncedAt time.Time) error {
	mb, ok := m.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	if mb.LastSyncAt == nil || mb.LastSyncAt.Before(syncedAt) {
		stamp := syncedAt
		mb.LastSyncAt = &stamp
	}
	return nil
}

type sentMail struct {
	Mailbox string
	To      string
	Subject string
	Body    string
}

type fakeConnector struct {
	sends   []sentMail
	failFor map[string]error
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{failFor: map[string]error{}}
}

func (c *fakeConnector) FetchSince(_ context.Context, _ *models.Mailbox, _ time.Time) ([]mail.InboundMessage, error) {
	return nil, nil
}

func (c *fakeConnector) Send(_ context.Context, mailbox *models.Mailbox, to, subject, body string) error {
	if err, ok := c.failFor[to]; ok {
		return &mail.SendError{Mailbox: mailbox.Address, Recipient: to, Err: err}
	}
	c.sends = append(c.sends, sentMail{Mailbox: mailbox.Address, To: to, Subject: subject, Body: body})
	return nil
}

func testMailbox() *models.Mailbox {
	return &models.Mailbox{
		ID:       1,
		PublicID: uuid.New(),
		UserID:   7,
		Address:  "outreach@acme.io",
		Enabled:  true,
	}
}

func testCampaign(mailboxID int64) *models.Campaign {
	return &models.Campaign{
		ID:           10,
		PublicID:     uuid.New(),
		UserID:       7,
		MailboxID:    mailboxID,
		Name:         "Launch",
		Status:       models.CampaignActive,
		Subject:      "Quick question, {{firstName}}",
		Body:         "Hi {{firstName}}",
		ScheduleMode: models.ScheduleImmediate,
	}
}

func TestRun_SendsInitialToEveryLead(t *testing.T) {
	mb := testMailbox()
	c := testCampaign(mb.ID)
	cs := newMockCampaignStore(c)
	ls := newMockLeadStore()
	ls.byCampaign[c.ID] = []models.Lead{
		{ID: 1, CampaignID: c.ID, Email: "a@x.com"},
		{ID: 2, CampaignID: c.ID, Email: "b@x.com"},
	}
	as := newMockSendAttemptStore()
	conn := newFakeConnector()
	r := NewRunner(cs, ls, as, newMockMailboxStore(mb), conn, nil, 5*time.Minute)

	now := time.Now().UTC()
	res, err := r.Run(context.Background(), c, now)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Skipped {
		t.Fatalf("expected campaign to be processed")
	}
	if res.InitialSent != 2 || len(res.Errors) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(conn.sends) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(conn.sends))
	}
	if conn.sends[0].Body != "Hi a" || conn.sends[1].Body != "Hi b" {
		t.Fatalf("unexpected bodies: %q, %q", conn.sends[0].Body, conn.sends[1].Body)
	}
	if c.EmailsSent != 2 {
		t.Fatalf("expected emails_sent=2, got %d", c.EmailsSent)
	}
	if c.LastProcessedAt == nil || !c.LastProcessedAt.Equal(now) {
		t.Fatalf("expected last_processed_at stamped to %v, got %v", now, c.LastProcessedAt)
	}
}

func TestRun_CooldownSkipHasNoSideEffects(t *testing.T) {
	mb := testMailbox()
	c := testCampaign(mb.ID)
	stamp := time.Now().UTC().Add(-2 * time.Minute)
	c.LastProcessedAt = &stamp
	cs := newMockCampaignStore(c)
	ls := newMockLeadStore()
	ls.byCampaign[c.ID] = []models.Lead{{ID: 1, CampaignID: c.ID, Email: "a@x.com"}}
	conn := newFakeConnector()
	r := NewRunner(cs, ls, newMockSendAttemptStore(), newMockMailboxStore(mb), conn, nil, 5*time.Minute)

	res, err := r.Run(context.Background(), c, time.Now().UTC())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !res.Skipped {
		t.Fatalf("expected skip inside cooldown window")
	}
	if len(conn.sends) != 0 {
		t.Fatalf("expected zero sends, got %d", len(conn.sends))
	}
	if c.EmailsSent != 0 {
		t.Fatalf("expected counter untouched, got %d", c.EmailsSent)
	}
	if !c.LastProcessedAt.Equal(stamp) {
		t.Fatalf("expected last_processed_at unchanged")
	}
}

func TestRun_LeadFailureDoesNotAbortCampaign(t *testing.T) {
	mb := testMailbox()
	c := testCampaign(mb.ID)
	cs := newMockCampaignStore(c)
	ls := newMockLeadStore()
	for i := 1; i <= 5; i++ {
		ls.byCampaign[c.ID] = append(ls.byCampaign[c.ID], models.Lead{
			ID: int64(i), CampaignID: c.ID, Email: fmt.Sprintf("lead%d@x.com", i),
		})
	}
	as := newMockSendAttemptStore()
	conn := newFakeConnector()
	conn.failFor["lead3@x.com"] = errors.New("550 mailbox unavailable")
	r := NewRunner(cs, ls, as, newMockMailboxStore(mb), conn, nil, 5*time.Minute)

	res, err := r.Run(context.Background(), c, time.Now().UTC())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.InitialSent != 4 {
		t.Fatalf("expected 4 sends, got %d", res.InitialSent)
	}
	if c.EmailsSent != 4 {
		t.Fatalf("expected emails_sent=4, got %d", c.EmailsSent)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "lead3@x.com") {
		t.Fatalf("expected one error for lead3, got %v", res.Errors)
	}
	failed := as.attempts[attemptKey{c.ID, 3, 0}]
	if failed == nil || failed.Status != models.AttemptFailed {
		t.Fatalf("expected failed attempt recorded for lead3, got %+v", failed)
	}
}

func TestRun_FollowupDueAfterInterval(t *testing.T) {
	mb := testMailbox()
	c := testCampaign(mb.ID)
	c.AutoFollowup = true
	c.FollowupIntervalDays = 3
	c.MaxFollowups = 2
	cs := newMockCampaignStore(c)
	ls := newMockLeadStore()
	ls.byCampaign[c.ID] = []models.Lead{
		{ID: 1, CampaignID: c.ID, Email: "due@x.com"},
		{ID: 2, CampaignID: c.ID, Email: "fresh@x.com"},
		{ID: 3, CampaignID: c.ID, Email: "done@x.com"},
	}
	now := time.Now().UTC()
	as := newMockSendAttemptStore()
	as.seedSent(c.ID, 1, 0, now.Add(-4*24*time.Hour))
	as.seedSent(c.ID, 2, 0, now.Add(-24*time.Hour))
	as.seedSent(c.ID, 3, 0, now.Add(-20*24*time.Hour))
	as.seedSent(c.ID, 3, 1, now.Add(-12*24*time.Hour))
	as.seedSent(c.ID, 3, 2, now.Add(-5*24*time.Hour))
	conn := newFakeConnector()
	r := NewRunner(cs, ls, as, newMockMailboxStore(mb), conn, nil, 5*time.Minute)

	res, err := r.Run(context.Background(), c, now)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.FollowupsSent != 1 || res.InitialSent != 0 {
		t.Fatalf("expected exactly one follow-up, got %+v", res)
	}
	if len(conn.sends) != 1 || conn.sends[0].To != "due@x.com" {
		t.Fatalf("expected follow-up to due@x.com, got %+v", conn.sends)
	}
	if !strings.HasPrefix(conn.sends[0].Subject, "Re: ") {
		t.Fatalf("expected Re: subject, got %q", conn.sends[0].Subject)
	}
}

func TestRun_AlreadySentAttemptIsNotResent(t *testing.T) {
	mb := testMailbox()
	c := testCampaign(mb.ID)
	cs := newMockCampaignStore(c)
	ls := newMockLeadStore()
	ls.byCampaign[c.ID] = []models.Lead{{ID: 1, CampaignID: c.ID, Email: "a@x.com"}}
	as := newMockSendAttemptStore()
	// A prior tick delivered the initial send but crashed before its
	// counters landed: the attempt row says sent, the campaign stamp is gone.
	as.seedSent(c.ID, 1, 0, time.Now().UTC().Add(-time.Minute))
	conn := newFakeConnector()
	r := NewRunner(cs, ls, as, newMockMailboxStore(mb), conn, nil, 5*time.Minute)

	res, err := r.Run(context.Background(), c, time.Now().UTC())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(conn.sends) != 0 {
		t.Fatalf("expected no resend for a sent attempt, got %d", len(conn.sends))
	}
	if res.InitialSent != 0 {
		t.Fatalf("expected zero counted sends, got %d", res.InitialSent)
	}
}

func TestRun_MarksCampaignCompletedWhenExhausted(t *testing.T) {
	mb := testMailbox()
	c := testCampaign(mb.ID)
	cs := newMockCampaignStore(c)
	ls := newMockLeadStore()
	ls.byCampaign[c.ID] = []models.Lead{
		{ID: 1, CampaignID: c.ID, Email: "a@x.com"},
		{ID: 2, CampaignID: c.ID, Email: "b@x.com"},
	}
	conn := newFakeConnector()
	r := NewRunner(cs, ls, newMockSendAttemptStore(), newMockMailboxStore(mb), conn, nil, 5*time.Minute)

	if _, err := r.Run(context.Background(), c, time.Now().UTC()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if cs.statuses[c.ID] != models.CampaignCompleted {
		t.Fatalf("expected campaign completed, got %q", c.Status)
	}
}
