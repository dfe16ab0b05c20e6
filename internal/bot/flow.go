package bot

import (
	"strconv"
	"strings"
	"unicode"

	"leadbot-gateway/internal/store"
	"leadbot-gateway/internal/zapi"
)

// Step is one state of the per-contact conversation flow.
type Step string

const (
	StepNew             Step = "NEW"
	StepTriage          Step = "TRIAGE"
	StepQualifySite     Step = "QUALIFY_SITE"
	StepQualifyOnline   Step = "QUALIFY_ONLINE"
	StepQualifyProducts Step = "QUALIFY_PRODUCTS"
	StepQualifyGoal     Step = "QUALIFY_GOAL"
	StepOffer           Step = "OFFER"
	StepClosing         Step = "CLOSING"
	StepAIChat          Step = "AI_CHAT"
)

// resetCommand is the operator escape hatch: matched case- and
// whitespace-insensitively against the whole message.
const resetCommand = "#reset"

func IsResetCommand(input string) bool {
	return strings.EqualFold(strings.TrimSpace(input), resetCommand)
}

// Reply is the outbound content for a transition. Buttons non-nil means a
// button-list message, otherwise plain text.
type Reply struct {
	Text    string
	Buttons []zapi.Button
}

// Transition is the outcome of feeding one user input to the flow.
// Valid=false means the input did not match the current state: the reply is
// a corrective prompt and neither state nor profile may be written.
type Transition struct {
	Valid     bool
	Next      Step
	Profile   *store.ProfileUpdate
	Reply     Reply
	Completed bool
}

// --- Reply texts ---

var greetingReply = Reply{
	Text: "Olá! 👋 Sou o assistente virtual da equipe.\nPara começar, qual dessas opções combina mais com o que você procura?",
	Buttons: []zapi.Button{
		{ID: "1", Label: "Site profissional"},
		{ID: "2", Label: "Loja virtual"},
		{ID: "3", Label: "Sistemas sob medida"},
	},
}

var offerReply = Reply{
	Text: "Perfeito! Com base no que você me contou, temos dois caminhos:",
	Buttons: []zapi.Button{
		{ID: "1", Label: "Receber proposta em PDF"},
		{ID: "2", Label: "Agendar reunião"},
	},
}

const (
	askSiteText     = "Ótimo! Me conta: você já tem um site hoje? (sim/não)"
	askOnlineText   = "Entendi. E você já vende pela internet? (sim/não)"
	askProductsText = "Quantos produtos ou serviços você pretende oferecer? Pode mandar só o número."
	askGoalText     = "Seu objetivo principal é agendamento ou venda direta?\n1 - Agendamento\n2 - Venda direta"
	closingText     = "Fechado! 🎉 Registramos tudo por aqui e nossa equipe entra em contato em breve com os próximos passos. Obrigado!"
	closedAgainText = "Seu atendimento já está registrado! Em breve um especialista entra em contato. 😉"

	invalidTriageText   = "Não entendi 🤔 Responda com 1, 2 ou 3, ou escreva site, loja ou sistemas."
	invalidYesNoText    = "Responda apenas com sim ou não, por favor."
	invalidProductsText = "Preciso de um número. Quantos produtos, aproximadamente?"
	invalidGoalText     = "Responda 1 para agendamento ou 2 para venda direta."
	invalidOfferText    = "Responda 1 para receber o PDF ou 2 para agendar uma reunião."

	resetAckText     = "Tudo certo! Recomeçamos do zero. ✅ Mande qualquer mensagem para iniciar o atendimento."
	corruptStateText = "Tivemos um probleminha por aqui e seu atendimento foi reiniciado. Mande qualquer mensagem para começar de novo."
)

// ResetReply acknowledges the reset command. It is the only reply sent.
func ResetReply() Reply {
	return Reply{Text: resetAckText}
}

// Evaluate runs one scripted step: given the contact's current state and the
// user input it decides validity, the captured field, the next state and the
// reply. It is pure; the pipeline applies the side effects.
func Evaluate(current Step, input string) Transition {
	norm := normalize(input)

	switch current {
	case StepNew:
		// Unconditional: the first inbound message only triggers the menu.
		return Transition{Valid: true, Next: StepTriage, Reply: greetingReply}

	case StepTriage:
		interest, score, ok := matchInterest(norm)
		if !ok {
			return invalid(current, invalidTriageText)
		}
		return Transition{
			Valid:   true,
			Next:    StepQualifySite,
			Profile: &store.ProfileUpdate{Interest: interest, ScoreDelta: score},
			Reply:   Reply{Text: askSiteText},
		}

	case StepQualifySite:
		answer, ok := matchYesNo(norm)
		if !ok {
			return invalid(current, invalidYesNoText)
		}
		return Transition{
			Valid:   true,
			Next:    StepQualifyOnline,
			Profile: &store.ProfileUpdate{HasSite: answer, ScoreDelta: yesScore(answer, 10)},
			Reply:   Reply{Text: askOnlineText},
		}

	case StepQualifyOnline:
		answer, ok := matchYesNo(norm)
		if !ok {
			return invalid(current, invalidYesNoText)
		}
		return Transition{
			Valid:   true,
			Next:    StepQualifyProducts,
			Profile: &store.ProfileUpdate{SellsOnline: answer, ScoreDelta: yesScore(answer, 10)},
			Reply:   Reply{Text: askProductsText},
		}

	case StepQualifyProducts:
		count, ok := matchProductCount(norm)
		if !ok {
			return invalid(current, invalidProductsText)
		}
		score := 0
		if n, err := strconv.Atoi(count); err == nil && n >= 20 {
			score = 10
		}
		return Transition{
			Valid:   true,
			Next:    StepQualifyGoal,
			Profile: &store.ProfileUpdate{ProductCount: count, ScoreDelta: score},
			Reply:   Reply{Text: askGoalText},
		}

	case StepQualifyGoal:
		goal, ok := matchGoal(norm)
		if !ok {
			return invalid(current, invalidGoalText)
		}
		score := 0
		if goal == "venda" {
			score = 5
		}
		return Transition{
			Valid:   true,
			Next:    StepOffer,
			Profile: &store.ProfileUpdate{MainGoal: goal, ScoreDelta: score},
			Reply:   offerReply,
		}

	case StepOffer:
		choice, ok := matchOffer(norm)
		if !ok {
			return invalid(current, invalidOfferText)
		}
		score := 0
		if choice == "2" {
			score = 15
		}
		return Transition{
			Valid:     true,
			Next:      StepClosing,
			Profile:   &store.ProfileUpdate{OfferChoice: choice, ScoreDelta: score},
			Reply:     Reply{Text: closingText},
			Completed: true,
		}

	case StepClosing:
		// Absorbing: the lead is done, keep acknowledging.
		return Transition{Valid: true, Next: StepClosing, Reply: Reply{Text: closedAgainText}}

	default:
		// Corrupted flow_step: recover to the start instead of failing.
		return Transition{Valid: true, Next: StepNew, Reply: Reply{Text: corruptStateText}}
	}
}

func invalid(current Step, prompt string) Transition {
	return Transition{Valid: false, Next: current, Reply: Reply{Text: prompt}}
}

func normalize(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// matchInterest maps the triage answer onto a canonical interest category
// and its base qualification score. Case-insensitive substring match.
func matchInterest(norm string) (string, int, bool) {
	switch {
	case containsAny(norm, "site", "profissional", "1"):
		return "site", 10, true
	case containsAny(norm, "loja", "commerce", "2"):
		return "loja", 15, true
	case containsAny(norm, "sistemas", "3"):
		return "sistemas", 20, true
	}
	return "", 0, false
}

// matchYesNo accepts the yes/no family as an exact token (substring would
// let "talvez" pass on the lone "s").
func matchYesNo(norm string) (string, bool) {
	switch norm {
	case "sim", "s", "yes":
		return "sim", true
	case "não", "nao", "n", "no":
		return "nao", true
	}
	return "", false
}

// matchProductCount accepts any input containing a digit and keeps the
// digits as the captured count.
func matchProductCount(norm string) (string, bool) {
	var digits strings.Builder
	for _, r := range norm {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return "", false
	}
	return digits.String(), true
}

func matchGoal(norm string) (string, bool) {
	switch {
	case containsAny(norm, "agendamento", "agenda", "1"):
		return "agendamento", true
	case containsAny(norm, "venda", "direta", "2"):
		return "venda", true
	}
	return "", false
}

// matchOffer normalizes the offer answer to the canonical "1" (PDF
// proposal) or "2" (meeting).
func matchOffer(norm string) (string, bool) {
	switch {
	case containsAny(norm, "pdf", "proposta", "1"):
		return "1", true
	case containsAny(norm, "reunião", "reuniao", "agendar", "2"):
		return "2", true
	}
	return "", false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func yesScore(answer string, points int) int {
	if answer == "sim" {
		return points
	}
	return 0
}
