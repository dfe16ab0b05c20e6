// Package store is the persistence accessor for contacts, messages, lead
// profiles, users and system configuration.
package store

import (
	"errors"
	"time"

	"leadbot-gateway/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ContactHints carries best-effort identity details extracted from an
// inbound event or a platform lookup.
type ContactHints struct {
	Name   string
	PicURL string
}

// ResolveContact finds or creates the contact for a phone number. Creation
// is idempotent under concurrent delivery: the unique index on phone plus an
// ON CONFLICT DO NOTHING guarantees a single row, and the loser re-reads the
// winner. Non-empty hints that differ from stored values are merged, but a
// known name is never replaced with a placeholder.
func (s *Store) ResolveContact(phone string, hints ContactHints) (*models.Contact, error) {
	var contact models.Contact
	err := s.db.Where("phone = ?", phone).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		contact = models.Contact{
			Phone:           phone,
			Name:            hints.Name,
			PicURL:          hints.PicURL,
			FlowStep:        "NEW",
			FlowData:        "{}",
			LastInteraction: time.Now(),
		}
		err = s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "phone"}},
			DoNothing: true,
		}).Create(&contact).Error
		if err != nil {
			return nil, err
		}
		// Lost the race or won it: either way the row exists now.
		if err := s.db.Where("phone = ?", phone).First(&contact).Error; err != nil {
			return nil, err
		}
		return &contact, nil
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"last_interaction": time.Now()}
	if hints.Name != "" && hints.Name != "Unknown" && hints.Name != contact.Name {
		updates["name"] = hints.Name
		contact.Name = hints.Name
	}
	if hints.PicURL != "" && hints.PicURL != contact.PicURL {
		updates["pic_url"] = hints.PicURL
		contact.PicURL = hints.PicURL
	}
	if err := s.db.Model(&contact).Updates(updates).Error; err != nil {
		return nil, err
	}
	contact.LastInteraction = updates["last_interaction"].(time.Time)
	return &contact, nil
}

// AppendMessage appends one line to the contact's conversation log.
func (s *Store) AppendMessage(contactID, body string, fromMe bool) (*models.Message, error) {
	msg := models.Message{
		ContactID: contactID,
		FromMe:    fromMe,
		Body:      body,
	}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// History returns the most recent messages for a contact in chronological
// order (oldest first), regardless of storage query order.
func (s *Store) History(contactID string, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.Where("contact_id = ?", contactID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ProfileUpdate holds a partial set of qualification answers. Empty string
// fields are left untouched; ScoreDelta is added to the running score.
type ProfileUpdate struct {
	Interest     string
	HasSite      string
	SellsOnline  string
	ProductCount string
	MainGoal     string
	OfferChoice  string
	ScoreDelta   int
}

// UpsertProfile finds or creates the lead profile for a contact and merges
// the given fields into it.
func (s *Store) UpsertProfile(contactID string, update ProfileUpdate) (*models.LeadProfile, error) {
	var profile models.LeadProfile
	err := s.db.Where("contact_id = ?", contactID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = models.LeadProfile{ContactID: contactID}
		if err := s.db.Create(&profile).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if update.Interest != "" {
		profile.Interest = update.Interest
	}
	if update.HasSite != "" {
		profile.HasSite = update.HasSite
	}
	if update.SellsOnline != "" {
		profile.SellsOnline = update.SellsOnline
	}
	if update.ProductCount != "" {
		profile.ProductCount = update.ProductCount
	}
	if update.MainGoal != "" {
		profile.MainGoal = update.MainGoal
	}
	if update.OfferChoice != "" {
		profile.OfferChoice = update.OfferChoice
	}
	profile.Score += update.ScoreDelta

	if err := s.db.Save(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// ProfileByContact returns the lead profile, or nil when none exists yet.
func (s *Store) ProfileByContact(contactID string) (*models.LeadProfile, error) {
	var profile models.LeadProfile
	err := s.db.Where("contact_id = ?", contactID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateFlowStep advances the contact to the given state.
func (s *Store) UpdateFlowStep(contactID, step string) error {
	return s.db.Model(&models.Contact{}).Where("id = ?", contactID).
		Update("flow_step", step).Error
}

// ResetFlow puts the contact back at the start of the script and blanks all
// captured profile answers in place. The profile row itself is kept: message
// history and profile rows are append-or-update only, never deleted.
func (s *Store) ResetFlow(contactID string) error {
	err := s.db.Model(&models.Contact{}).Where("id = ?", contactID).
		Updates(map[string]interface{}{"flow_step": "NEW", "flow_data": "{}"}).Error
	if err != nil {
		return err
	}
	return s.db.Model(&models.LeadProfile{}).Where("contact_id = ?", contactID).
		Updates(map[string]interface{}{
			"interest":      "",
			"has_site":      "",
			"sells_online":  "",
			"product_count": "",
			"main_goal":     "",
			"offer_choice":  "",
			"score":         0,
		}).Error
}

// Contacts lists all contacts, most recently active first.
func (s *Store) Contacts() ([]models.Contact, error) {
	var contacts []models.Contact
	err := s.db.Order("last_interaction DESC").Find(&contacts).Error
	return contacts, err
}

// ContactByPhone returns the contact or gorm.ErrRecordNotFound.
func (s *Store) ContactByPhone(phone string) (*models.Contact, error) {
	var contact models.Contact
	if err := s.db.Where("phone = ?", phone).First(&contact).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

// MessagesByContact returns the full conversation, oldest first.
func (s *Store) MessagesByContact(contactID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.Where("contact_id = ?", contactID).
		Order("timestamp ASC").
		Find(&messages).Error
	return messages, err
}

// SetPaused flips the manual-takeover flag.
func (s *Store) SetPaused(contactID string, paused bool) error {
	return s.db.Model(&models.Contact{}).Where("id = ?", contactID).
		Update("is_bot_paused", paused).Error
}

// BotNumbers returns the registered bot/service numbers. Inbound traffic
// from any of these is dropped by the classifier.
func (s *Store) BotNumbers() ([]string, error) {
	var numbers []string
	err := s.db.Model(&models.User{}).Where("bot_number <> ''").
		Pluck("bot_number", &numbers).Error
	return numbers, err
}

// NotificationNumbers returns operator numbers that receive lead-completion
// summaries.
func (s *Store) NotificationNumbers() ([]string, error) {
	var numbers []string
	err := s.db.Model(&models.User{}).Where("notification_number <> ''").
		Pluck("notification_number", &numbers).Error
	return numbers, err
}

// --- Users ---

func (s *Store) CreateUser(user *models.User) error {
	return s.db.Create(user).Error
}

func (s *Store) UserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// --- System configuration ---

func (s *Store) Configs() ([]models.SystemConfig, error) {
	var configs []models.SystemConfig
	err := s.db.Find(&configs).Error
	return configs, err
}

func (s *Store) ConfigByKey(key string) (*models.SystemConfig, error) {
	var cfg models.SystemConfig
	if err := s.db.Where("key = ?", key).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) UpsertConfig(key, value string) (*models.SystemConfig, error) {
	var cfg models.SystemConfig
	err := s.db.Where("key = ?", key).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = models.SystemConfig{Key: key, Value: value}
		if err := s.db.Create(&cfg).Error; err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err != nil {
		return nil, err
	}
	cfg.Value = value
	if err := s.db.Save(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}
