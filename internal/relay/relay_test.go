package relay

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"codegate/internal/audit"
	"codegate/internal/delivery"
	"codegate/internal/intake"
	"codegate/internal/matcher"
	"codegate/internal/orders"
	"codegate/internal/pending"
	"codegate/internal/quota"
	"codegate/internal/storage/snapshot"
)

type sentMessage struct {
	ChatID int64
	Text   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) Send(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeSender) to(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

const (
	ownerChat = int64(99)
	chatA     = int64(7)
	chatB     = int64(8)
)

// ScenarioSuite drives the assembled core through the conversational and
// mailbox flows, the way the deployed wiring does.
type ScenarioSuite struct {
	suite.Suite
	svc        *Service
	sender     *fakeSender
	registry   *pending.MemoryRegistry
	quotaStore *quota.MemoryStore
	dailyLimit int
	fallback   bool
	ttl        time.Duration
	now        time.Time
}

func TestScenarioSuite(t *testing.T) {
	suite.Run(t, new(ScenarioSuite))
}

func (s *ScenarioSuite) SetupTest() {
	s.dailyLimit = 3
	s.fallback = true
	s.ttl = 0
	s.now = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s.rebuild()
}

// rebuild assembles the core with the suite's current knobs.
func (s *ScenarioSuite) rebuild() {
	var err error
	s.registry, err = pending.NewMemory(snapshot.Discard{})
	s.Require().NoError(err)
	s.quotaStore, err = quota.NewMemory(snapshot.Discard{})
	s.Require().NoError(err)
	s.assemble()
}

// assemble rewires services around the existing stores.
func (s *ScenarioSuite) assemble() {
	logger := slog.Default()
	clock := func() time.Time { return s.now }
	set := orders.NewSet([]orders.Order{{OrderID: "1001"}, {OrderID: "1002"}})
	tracker := quota.NewTracker(s.quotaStore, s.dailyLimit, quota.WithNow(clock))
	s.sender = &fakeSender{}
	auditPub := audit.NewPublisher(audit.NewMemory(100), logger)
	gate := delivery.NewGate(s.sender, tracker, auditPub, nil, logger)
	intakeSvc := intake.New(set, s.registry, s.sender, ownerChat, auditPub, logger, intake.WithNow(clock))
	matcherSvc := matcher.New(s.registry, gate, s.sender, ownerChat, s.fallback, auditPub, nil, logger)
	s.svc = New(intakeSvc, matcherSvc, s.registry, s.ttl, auditPub, nil, logger, WithNow(clock))
}

func (s *ScenarioSuite) chat(chatID int64, text string) {
	s.svc.dispatch(context.Background(), event{kind: chatEvent, chatID: chatID, senderID: chatID, text: text})
}

func (s *ScenarioSuite) mail(body string) {
	s.svc.dispatch(context.Background(), event{kind: mailEvent, body: body})
}

func (s *ScenarioSuite) pendingKeys() []string {
	entries, err := s.registry.List(context.Background())
	s.Require().NoError(err)
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return keys
}

// Scenario 1: full happy path from order id to delivered code.
func (s *ScenarioSuite) TestHappyPath() {
	s.chat(chatA, "1001")
	s.Require().Len(s.sender.to(chatA), 1)
	s.Contains(s.sender.to(chatA)[0], "approved")

	s.chat(chatA, "steamfan77")
	s.Equal([]string{"steamfan77"}, s.pendingKeys())

	s.mail("Hello, your login code is 482913 for account steamfan77. Enjoy!")

	msgs := s.sender.to(chatA)
	s.Require().Len(msgs, 3)
	s.Contains(msgs[2], "482913")
	s.Empty(s.pendingKeys(), "entry removed after delivery")

	rec, found, err := s.quotaStore.Get(context.Background(), chatA)
	s.Require().NoError(err)
	s.Require().True(found)
	s.Equal(1, rec.Count)
}

// Scenario 2: unknown order id is rejected with no state change.
func (s *ScenarioSuite) TestUnknownOrderRejected() {
	s.chat(chatB, "9999")

	msgs := s.sender.to(chatB)
	s.Require().Len(msgs, 1)
	s.Contains(msgs[0], "not found")
	s.Empty(s.pendingKeys())
}

// Scenario 3: a matching code for an over-quota requester leaves the entry
// pending and the count unchanged.
func (s *ScenarioSuite) TestOverQuotaPreservesEntry() {
	s.dailyLimit = 1
	s.assemble()

	s.chat(chatA, "1001")
	s.chat(chatA, "steamfan77")
	s.mail("code 111111 for steamfan77")
	s.Empty(s.pendingKeys())

	s.chat(chatA, "1002")
	s.chat(chatA, "steamfan77")
	s.mail("code 222222 for steamfan77")

	msgs := s.sender.to(chatA)
	s.Contains(msgs[len(msgs)-1], "daily limit")
	s.Equal([]string{"steamfan77"}, s.pendingKeys())

	rec, _, err := s.quotaStore.Get(context.Background(), chatA)
	s.Require().NoError(err)
	s.Equal(1, rec.Count)
}

// Scenario 4: recovery notices are discarded even when they carry digits.
func (s *ScenarioSuite) TestRecoveryNoticeDiscarded() {
	s.chat(chatA, "1001")
	s.chat(chatA, "steamfan77")
	before := s.sender.count()

	s.mail("We received a request to change your password. Code: 482913")

	s.Equal(before, s.sender.count(), "no delivery, no escalation")
	s.Equal([]string{"steamfan77"}, s.pendingKeys())
}

// Scenario 5: with several requesters and no identifier match, the owner
// gets the code and an excerpt; the registry is untouched.
func (s *ScenarioSuite) TestAmbiguousCodeEscalates() {
	s.chat(chatA, "1001")
	s.chat(chatA, "steamfan77")
	s.chat(chatB, "1002")
	s.chat(chatB, "otherguy")

	s.mail("Your login code is 482913.")

	msgs := s.sender.to(ownerChat)
	s.Require().Len(msgs, 1)
	s.Contains(msgs[0], "482913")
	s.Contains(msgs[0], "could not be matched")
	s.Equal([]string{"steamfan77", "otherguy"}, s.pendingKeys())
}

// The daily quota resets on the first attempt of a new calendar day.
func (s *ScenarioSuite) TestQuotaResetsNextDay() {
	s.dailyLimit = 1
	s.assemble()

	s.chat(chatA, "1001")
	s.chat(chatA, "steamfan77")
	s.mail("code 111111 for steamfan77")

	s.chat(chatA, "1002")
	s.chat(chatA, "steamfan77")
	s.mail("code 222222 for steamfan77")
	s.Equal([]string{"steamfan77"}, s.pendingKeys(), "second code refused today")

	s.now = s.now.Add(24 * time.Hour)
	s.mail("code 333333 for steamfan77")
	s.Empty(s.pendingKeys(), "new day, delivery allowed again")
	last := s.sender.to(chatA)
	s.Contains(last[len(last)-1], "333333")
}

// The TTL sweep removes requests older than the configured age.
func (s *ScenarioSuite) TestExpirySweep() {
	s.ttl = time.Hour
	s.assemble()

	s.chat(chatA, "1001")
	s.chat(chatA, "steamfan77")
	s.Require().Equal([]string{"steamfan77"}, s.pendingKeys())

	s.now = s.now.Add(2 * time.Hour)
	s.svc.expire(context.Background())
	s.Empty(s.pendingKeys())
}

// Run consumes events enqueued by both producer entry points.
func (s *ScenarioSuite) TestRunConsumesQueue() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.svc.Run(ctx)
	}()

	s.svc.HandleChatMessage(chatA, chatA, "1001")
	s.svc.HandleChatMessage(chatA, chatA, "steamfan77")
	s.svc.HandleMailBody("code 482913 for steamfan77")

	s.Require().Eventually(func() bool {
		for _, text := range s.sender.to(chatA) {
			if text == "Your Steam login code: 482913\nDo not share this code with anyone." {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
