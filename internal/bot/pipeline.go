package bot

import (
	"context"
	"fmt"
	"log"
	"sync"

	"leadbot-gateway/internal/ai"
	"leadbot-gateway/internal/models"
	"leadbot-gateway/internal/store"
	"leadbot-gateway/internal/zapi"
)

// Gateway is the outbound chat-platform surface the pipeline depends on.
type Gateway interface {
	SendText(phone, message string) error
	SendButtonList(phone, message string, buttons []zapi.Button) error
	GetProfilePicture(phone string) (string, error)
	GetContactInfo(phone string) (*zapi.ContactInfo, error)
}

// Responder generates a fallback reply from conversation history. An empty
// reply means "send nothing".
type Responder interface {
	Generate(ctx context.Context, history []ai.Turn, newMessage string) (string, error)
}

// Notifier publishes events to connected real-time observers. Implementations
// must never block or fail the pipeline.
type Notifier interface {
	Emit(event string, data interface{})
}

// MessageEvent is the payload for message_received / message_sent events.
type MessageEvent struct {
	Contact *models.Contact `json:"contact"`
	Message *models.Message `json:"message"`
}

const historyLimit = 10

// flowEnabledKey is a system_configs switch: set to "false" to disable the
// scripted flow and route every contact straight to the AI responder.
const flowEnabledKey = "FLOW_ENABLED"

// Pipeline processes classified inbound messages end to end. Transitions for
// the same contact are serialized through a per-phone lock; different phones
// run fully in parallel. Lock entries are reference counted and removed when
// the last holder releases, so the map stays bounded by in-flight traffic.
type Pipeline struct {
	store    *store.Store
	gateway  Gateway
	ai       Responder
	notifier Notifier

	mu    sync.Mutex
	locks map[string]*phoneLock
}

type phoneLock struct {
	mu   sync.Mutex
	refs int
}

func NewPipeline(st *store.Store, gw Gateway, responder Responder, notifier Notifier) *Pipeline {
	return &Pipeline{
		store:    st,
		gateway:  gw,
		ai:       responder,
		notifier: notifier,
		locks:    make(map[string]*phoneLock),
	}
}

func (p *Pipeline) lockPhone(phone string) *phoneLock {
	p.mu.Lock()
	lock, ok := p.locks[phone]
	if !ok {
		lock = &phoneLock{}
		p.locks[phone] = lock
	}
	lock.refs++
	p.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (p *Pipeline) unlockPhone(phone string, lock *phoneLock) {
	lock.mu.Unlock()

	p.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(p.locks, phone)
	}
	p.mu.Unlock()
}

// HandleEvent processes one webhook delivery. It never returns an error:
// every failure is logged here so the HTTP acknowledgement to the platform
// is unaffected by downstream problems.
func (p *Pipeline) HandleEvent(ctx context.Context, payload *Payload) {
	botNumbers, err := p.store.BotNumbers()
	if err != nil {
		log.Printf("Error loading bot numbers: %v", err)
	}

	msg, ok := Classify(payload, botNumbers)
	if !ok {
		return
	}

	lock := p.lockPhone(msg.Phone)
	defer p.unlockPhone(msg.Phone, lock)

	// Bot echoes carry the bot account's own name; only user-originated
	// traffic may update the stored identity.
	var hints store.ContactHints
	if !msg.FromMe {
		hints = store.ContactHints{Name: msg.Name, PicURL: msg.PicURL}
		p.enrich(msg.Phone, &hints)
	}

	contact, err := p.store.ResolveContact(msg.Phone, hints)
	if err != nil {
		log.Printf("Error resolving contact %s: %v", msg.Phone, err)
		return
	}

	inbound, err := p.store.AppendMessage(contact.ID, msg.Body, msg.FromMe)
	if err != nil {
		log.Printf("Error saving inbound message for %s: %v", msg.Phone, err)
		return
	}
	p.notifier.Emit("message_received", MessageEvent{Contact: contact, Message: inbound})

	// Bot echoes are persisted for history but never answered.
	if msg.FromMe {
		return
	}

	if contact.IsBotPaused {
		log.Printf("Bot is paused for contact %s. Ignoring message.", msg.Phone)
		return
	}

	p.advance(ctx, contact, msg.Body)
}

// enrich upgrades name/avatar hints from the platform's contact lookups.
// Lookup failures are logged and swallowed; the merge proceeds with whatever
// hints are available.
func (p *Pipeline) enrich(phone string, hints *store.ContactHints) {
	if hints.Name == "" || hints.Name == "Unknown" {
		info, err := p.gateway.GetContactInfo(phone)
		if err != nil {
			log.Printf("Failed to get contact info for %s: %v", phone, err)
		} else if info != nil {
			if info.Name != "" {
				hints.Name = info.Name
			} else if info.Vname != "" {
				hints.Name = info.Vname
			}
			if hints.PicURL == "" {
				hints.PicURL = info.ImgURL
			}
		}
	}
	if hints.PicURL == "" {
		link, err := p.gateway.GetProfilePicture(phone)
		if err != nil {
			log.Printf("Failed to get profile picture for %s: %v", phone, err)
		} else {
			hints.PicURL = link
		}
	}
}

// advance runs the reset command, the scripted flow or the AI fallback for
// one inbound message.
func (p *Pipeline) advance(ctx context.Context, contact *models.Contact, input string) {
	if IsResetCommand(input) {
		if err := p.store.ResetFlow(contact.ID); err != nil {
			log.Printf("Error resetting flow for %s: %v", contact.Phone, err)
			return
		}
		p.deliver(contact, ResetReply())
		return
	}

	step := Step(contact.FlowStep)
	if step == StepAIChat || !p.flowEnabled() {
		p.aiReply(ctx, contact, input)
		return
	}

	tr := Evaluate(step, input)

	if !tr.Valid {
		// Corrective prompt only: no state transition, no field write.
		p.deliver(contact, tr.Reply)
		return
	}

	// Commit-after-send: the state advances only once the reply is actually
	// delivered, so a failed send re-asks the same question next time.
	if err := p.send(contact.Phone, tr.Reply); err != nil {
		log.Printf("Failed to send reply to %s, keeping step %s: %v", contact.Phone, step, err)
		return
	}

	if tr.Profile != nil {
		if _, err := p.store.UpsertProfile(contact.ID, *tr.Profile); err != nil {
			log.Printf("Error upserting profile for %s: %v", contact.Phone, err)
		}
	}
	if tr.Next != step {
		if err := p.store.UpdateFlowStep(contact.ID, string(tr.Next)); err != nil {
			log.Printf("Error updating flow step for %s: %v", contact.Phone, err)
		}
	}
	p.record(contact, replyBody(tr.Reply))

	if tr.Completed {
		p.notifyLeadComplete(contact)
	}
}

// aiReply delegates to the AI responder. An empty reply means every model
// was exhausted: send nothing rather than surface an error to the user.
func (p *Pipeline) aiReply(ctx context.Context, contact *models.Contact, input string) {
	history, err := p.store.History(contact.ID, historyLimit)
	if err != nil {
		log.Printf("Error loading history for %s: %v", contact.Phone, err)
	}

	turns := make([]ai.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, ai.Turn{FromMe: m.FromMe, Body: m.Body})
	}
	// The inbound message was already appended; it goes in as the new prompt,
	// not as history.
	if n := len(turns); n > 0 && !turns[n-1].FromMe && turns[n-1].Body == input {
		turns = turns[:n-1]
	}

	reply, err := p.ai.Generate(ctx, turns, input)
	if err != nil {
		log.Printf("Error generating AI response for %s: %v", contact.Phone, err)
	}
	if reply == "" {
		return
	}
	p.deliver(contact, Reply{Text: reply})
}

// deliver sends a reply and, on success, records it and emits message_sent.
func (p *Pipeline) deliver(contact *models.Contact, reply Reply) {
	if err := p.send(contact.Phone, reply); err != nil {
		log.Printf("Failed to send message to %s: %v", contact.Phone, err)
		return
	}
	p.record(contact, replyBody(reply))
}

func (p *Pipeline) send(phone string, reply Reply) error {
	if len(reply.Buttons) > 0 {
		return p.gateway.SendButtonList(phone, reply.Text, reply.Buttons)
	}
	return p.gateway.SendText(phone, reply.Text)
}

func (p *Pipeline) record(contact *models.Contact, body string) {
	outbound, err := p.store.AppendMessage(contact.ID, body, true)
	if err != nil {
		log.Printf("Error saving outbound message for %s: %v", contact.Phone, err)
		return
	}
	p.notifier.Emit("message_sent", MessageEvent{Contact: contact, Message: outbound})
}

func replyBody(reply Reply) string {
	if len(reply.Buttons) == 0 {
		return reply.Text
	}
	body := reply.Text
	for _, b := range reply.Buttons {
		body += fmt.Sprintf("\n%s - %s", b.ID, b.Label)
	}
	return body
}

func (p *Pipeline) flowEnabled() bool {
	cfg, err := p.store.ConfigByKey(flowEnabledKey)
	if err != nil || cfg == nil {
		return true
	}
	return cfg.Value != "false"
}

// notifyLeadComplete re-reads the full profile and sends a structured
// summary to every configured operator number. Best-effort: failures are
// logged and never abort the user-facing transition.
func (p *Pipeline) notifyLeadComplete(contact *models.Contact) {
	profile, err := p.store.ProfileByContact(contact.ID)
	if err != nil || profile == nil {
		log.Printf("Lead completed for %s but profile could not be read: %v", contact.Phone, err)
		return
	}

	numbers, err := p.store.NotificationNumbers()
	if err != nil {
		log.Printf("Error loading notification numbers: %v", err)
		return
	}
	if len(numbers) == 0 {
		log.Printf("Lead completed for %s but no notification number is configured", contact.Phone)
		return
	}

	summary := formatLeadSummary(contact, profile)
	for _, number := range numbers {
		if err := p.gateway.SendText(number, summary); err != nil {
			log.Printf("Failed to notify %s about lead %s: %v", number, contact.Phone, err)
		}
	}
}

func formatLeadSummary(contact *models.Contact, profile *models.LeadProfile) string {
	decision := "Receber proposta em PDF"
	if profile.OfferChoice == "2" {
		decision = "Agendar reunião"
	}
	return fmt.Sprintf(
		"🎯 Novo lead qualificado!\n\n"+
			"👤 Nome: %s\n"+
			"📱 Telefone: %s\n"+
			"💼 Interesse: %s\n"+
			"🌐 Já tem site: %s\n"+
			"🛒 Vende online: %s\n"+
			"📦 Produtos: %s\n"+
			"🏁 Objetivo: %s\n"+
			"✅ Decisão: %s\n"+
			"⭐ Score: %d",
		contact.Name, contact.Phone,
		profile.Interest, profile.HasSite, profile.SellsOnline,
		profile.ProductCount, profile.MainGoal, decision, profile.Score,
	)
}
