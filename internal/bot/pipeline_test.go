package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"leadbot-gateway/internal/ai"
	"leadbot-gateway/internal/database"
	"leadbot-gateway/internal/models"
	"leadbot-gateway/internal/store"
	"leadbot-gateway/internal/zapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type sentMessage struct {
	Phone   string
	Body    string
	Buttons []zapi.Button
}

type fakeGateway struct {
	mu        sync.Mutex
	sent      []sentMessage
	failSends bool
}

func (g *fakeGateway) SendText(phone, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSends {
		return errors.New("gateway unavailable")
	}
	g.sent = append(g.sent, sentMessage{Phone: phone, Body: message})
	return nil
}

func (g *fakeGateway) SendButtonList(phone, message string, buttons []zapi.Button) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSends {
		return errors.New("gateway unavailable")
	}
	g.sent = append(g.sent, sentMessage{Phone: phone, Body: message, Buttons: buttons})
	return nil
}

func (g *fakeGateway) GetProfilePicture(phone string) (string, error) {
	return "", errors.New("lookup unavailable")
}

func (g *fakeGateway) GetContactInfo(phone string) (*zapi.ContactInfo, error) {
	return nil, errors.New("lookup unavailable")
}

func (g *fakeGateway) sentTo(phone string) []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []sentMessage
	for _, m := range g.sent {
		if m.Phone == phone {
			out = append(out, m)
		}
	}
	return out
}

type fakeResponder struct {
	reply string
	calls int
}

func (r *fakeResponder) Generate(ctx context.Context, history []ai.Turn, newMessage string) (string, error) {
	r.calls++
	return r.reply, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Emit(event string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *fakeNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == event {
			c++
		}
	}
	return c
}

func newTestPipeline(t *testing.T) (*Pipeline, *store.Store, *fakeGateway, *fakeResponder, *fakeNotifier) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	st := store.NewStore(db)
	gw := &fakeGateway{}
	responder := &fakeResponder{}
	notifier := &fakeNotifier{}
	return NewPipeline(st, gw, responder, notifier), st, gw, responder, notifier
}

const leadPhone = "5511999990000"
const adminPhone = "5511977770000"

func feed(p *Pipeline, phone, message string) {
	p.HandleEvent(context.Background(), textPayload(phone, message))
}

func TestHappyPathWalk(t *testing.T) {
	p, st, gw, _, _ := newTestPipeline(t)
	require.NoError(t, st.CreateUser(&models.User{
		Email:              "admin@example.com",
		PasswordHash:       "x",
		NotificationNumber: adminPhone,
	}))

	steps := []struct {
		input    string
		expected string
	}{
		{"1", "TRIAGE"},
		{"site", "QUALIFY_SITE"},
		{"sim", "QUALIFY_ONLINE"},
		{"sim", "QUALIFY_PRODUCTS"},
		{"50", "QUALIFY_GOAL"},
		{"vendas", "OFFER"},
		{"1", "CLOSING"},
	}
	for _, step := range steps {
		feed(p, leadPhone, step.input)
		contact, err := st.ContactByPhone(leadPhone)
		require.NoError(t, err)
		assert.Equal(t, step.expected, contact.FlowStep, "after input %q", step.input)
	}

	contact, err := st.ContactByPhone(leadPhone)
	require.NoError(t, err)
	profile, err := st.ProfileByContact(contact.ID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "site", profile.Interest)
	assert.Equal(t, "sim", profile.HasSite)
	assert.Equal(t, "sim", profile.SellsOnline)
	assert.Equal(t, "50", profile.ProductCount)
	assert.Equal(t, "venda", profile.MainGoal)
	assert.Equal(t, "1", profile.OfferChoice)
	// site(10) + has_site(10) + sells_online(10) + 50 products(10) + venda(5)
	assert.Equal(t, 45, profile.Score)

	// One reply per step, all delivered to the lead.
	assert.Len(t, gw.sentTo(leadPhone), 7)

	// Admin notification carries every captured answer.
	adminMsgs := gw.sentTo(adminPhone)
	require.Len(t, adminMsgs, 1)
	summary := adminMsgs[0].Body
	for _, field := range []string{"site", "sim", "50", "venda", "PDF"} {
		assert.Contains(t, summary, field)
	}
}

func TestInvalidInputKeepsStateAndProfile(t *testing.T) {
	p, st, gw, _, _ := newTestPipeline(t)

	feed(p, leadPhone, "oi")     // NEW -> TRIAGE
	feed(p, leadPhone, "site")   // TRIAGE -> QUALIFY_SITE
	feed(p, leadPhone, "talvez") // invalid yes/no

	contact, err := st.ContactByPhone(leadPhone)
	require.NoError(t, err)
	assert.Equal(t, "QUALIFY_SITE", contact.FlowStep)

	profile, err := st.ProfileByContact(contact.ID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Empty(t, profile.HasSite)

	msgs := gw.sentTo(leadPhone)
	require.Len(t, msgs, 3)
	assert.Equal(t, invalidYesNoText, msgs[2].Body)
}

func TestResetCommand(t *testing.T) {
	p, st, gw, _, _ := newTestPipeline(t)

	feed(p, leadPhone, "oi")
	feed(p, leadPhone, "sistemas")
	feed(p, leadPhone, "  #RESET  ")

	contact, err := st.ContactByPhone(leadPhone)
	require.NoError(t, err)
	assert.Equal(t, "NEW", contact.FlowStep)

	profile, err := st.ProfileByContact(contact.ID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Empty(t, profile.Interest)
	assert.Equal(t, 0, profile.Score)

	msgs := gw.sentTo(leadPhone)
	require.Len(t, msgs, 3)
	assert.Equal(t, resetAckText, msgs[2].Body)
}

func TestPauseGate(t *testing.T) {
	p, st, gw, responder, notifier := newTestPipeline(t)

	feed(p, leadPhone, "oi") // creates contact, NEW -> TRIAGE
	contact, err := st.ContactByPhone(leadPhone)
	require.NoError(t, err)
	require.NoError(t, st.SetPaused(contact.ID, true))

	feed(p, leadPhone, "site")

	contact, err = st.ContactByPhone(leadPhone)
	require.NoError(t, err)
	assert.Equal(t, "TRIAGE", contact.FlowStep, "paused contact must not transition")

	messages, err := st.MessagesByContact(contact.ID)
	require.NoError(t, err)
	bodies := make([]string, 0, len(messages))
	for _, m := range messages {
		bodies = append(bodies, m.Body)
	}
	assert.Contains(t, bodies, "site", "inbound message is still persisted while paused")

	assert.Len(t, gw.sentTo(leadPhone), 1, "no reply while paused")
	assert.Equal(t, 0, responder.calls)
	assert.Equal(t, 2, notifier.count("message_received"))
}

func TestBotEchoSuppression(t *testing.T) {
	p, st, gw, responder, _ := newTestPipeline(t)

	raw := textPayload(leadPhone, "resposta manual do operador")
	raw.FromMe = true
	p.HandleEvent(context.Background(), raw)

	contact, err := st.ContactByPhone(leadPhone)
	require.NoError(t, err)
	assert.Equal(t, "NEW", contact.FlowStep)

	messages, err := st.MessagesByContact(contact.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.True(t, messages[0].FromMe)

	assert.Empty(t, gw.sentTo(leadPhone))
	assert.Equal(t, 0, responder.calls)
}

func TestBotEchoKeepsContactIdentity(t *testing.T) {
	p, st, _, _, _ := newTestPipeline(t)

	_, err := st.ResolveContact(leadPhone, store.ContactHints{Name: "Maria"})
	require.NoError(t, err)

	// Echoes carry the bot account's senderName; it must never rename the
	// stored contact.
	raw := textPayload(leadPhone, "olá, tudo bem?")
	raw.FromMe = true
	raw.SenderName = "Minha Empresa Bot"
	p.HandleEvent(context.Background(), raw)

	contact, err := st.ContactByPhone(leadPhone)
	require.NoError(t, err)
	assert.Equal(t, "Maria", contact.Name)
}

func TestSendFailureKeepsStep(t *testing.T) {
	p, st, gw, _, _ := newTestPipeline(t)

	feed(p, leadPhone, "oi")
	gw.failSends = true
	feed(p, leadPhone, "site")

	contact, err := st.ContactByPhone(leadPhone)
	require.NoError(t, err)
	assert.Equal(t, "TRIAGE", contact.FlowStep, "failed send must not commit the transition")

	profile, err := st.ProfileByContact(contact.ID)
	require.NoError(t, err)
	assert.Nil(t, profile)

	messages, err := st.MessagesByContact(contact.ID)
	require.NoError(t, err)
	for _, m := range messages {
		assert.False(t, m.FromMe && strings.Contains(m.Body, askSiteText), "undelivered reply must not be recorded")
	}
}

func TestAIFallbackDeliversReply(t *testing.T) {
	p, st, gw, responder, notifier := newTestPipeline(t)
	responder.reply = "Claro! Posso ajudar com isso."

	contact, err := st.ResolveContact(leadPhone, store.ContactHints{Name: "Maria"})
	require.NoError(t, err)
	require.NoError(t, st.UpdateFlowStep(contact.ID, string(StepAIChat)))

	feed(p, leadPhone, "me fala mais sobre vocês")

	assert.Equal(t, 1, responder.calls)
	msgs := gw.sentTo(leadPhone)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Claro! Posso ajudar com isso.", msgs[0].Body)

	messages, err := st.MessagesByContact(contact.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.True(t, messages[1].FromMe)
	assert.Equal(t, 1, notifier.count("message_sent"))
}

func TestAIFallbackEmptyReplySendsNothing(t *testing.T) {
	p, st, gw, responder, _ := newTestPipeline(t)
	responder.reply = ""

	contact, err := st.ResolveContact(leadPhone, store.ContactHints{})
	require.NoError(t, err)
	require.NoError(t, st.UpdateFlowStep(contact.ID, string(StepAIChat)))

	feed(p, leadPhone, "oi")

	assert.Equal(t, 1, responder.calls)
	assert.Empty(t, gw.sentTo(leadPhone))
}

func TestFlowDisabledRoutesToAI(t *testing.T) {
	p, st, gw, responder, _ := newTestPipeline(t)
	responder.reply = "Resposta da IA"
	_, err := st.UpsertConfig(flowEnabledKey, "false")
	require.NoError(t, err)

	feed(p, leadPhone, "oi")

	assert.Equal(t, 1, responder.calls)
	contact, err := st.ContactByPhone(leadPhone)
	require.NoError(t, err)
	assert.Equal(t, "NEW", contact.FlowStep, "disabled flow must not advance the script")
	require.Len(t, gw.sentTo(leadPhone), 1)
	assert.Equal(t, "Resposta da IA", gw.sentTo(leadPhone)[0].Body)
}

func TestCorruptedStepRecovers(t *testing.T) {
	p, st, gw, _, _ := newTestPipeline(t)

	contact, err := st.ResolveContact(leadPhone, store.ContactHints{})
	require.NoError(t, err)
	require.NoError(t, st.UpdateFlowStep(contact.ID, "WAT"))

	feed(p, leadPhone, "oi")

	contact, err = st.ContactByPhone(leadPhone)
	require.NoError(t, err)
	assert.Equal(t, "NEW", contact.FlowStep)
	msgs := gw.sentTo(leadPhone)
	require.Len(t, msgs, 1)
	assert.Equal(t, corruptStateText, msgs[0].Body)
}

func TestConcurrentEventsForSameContactSerialize(t *testing.T) {
	p, st, _, _, _ := newTestPipeline(t)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			feed(p, leadPhone, fmt.Sprintf("mensagem %d", i))
		}(i)
	}
	wg.Wait()

	contacts, err := st.Contacts()
	require.NoError(t, err)
	require.Len(t, contacts, 1)

	// NEW is unconditional and TRIAGE rejects "mensagem N": the contact must
	// land on TRIAGE exactly once, never skip ahead.
	assert.Equal(t, "TRIAGE", contacts[0].FlowStep)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Empty(t, p.locks, "lock entries must be released after processing")
}

func TestPhoneLocksDoNotAccumulate(t *testing.T) {
	p, _, _, _, _ := newTestPipeline(t)

	for i := 0; i < 3; i++ {
		feed(p, fmt.Sprintf("55119999911%02d", i), "oi")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Empty(t, p.locks)
}
