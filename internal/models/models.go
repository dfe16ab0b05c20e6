package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Contact represents a WhatsApp conversation participant, keyed by phone number.
type Contact struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Phone           string    `gorm:"uniqueIndex;not null;type:varchar(50)" json:"phone"`
	Name            string    `gorm:"type:varchar(255)" json:"name"`
	PicURL          string    `gorm:"type:text" json:"pic_url"`
	IsBotPaused     bool      `gorm:"default:false" json:"is_bot_paused"`
	FlowStep        string    `gorm:"type:varchar(50);default:'NEW'" json:"flow_step"`
	FlowData        string    `gorm:"type:text;default:'{}'" json:"flow_data"`
	LastInteraction time.Time `json:"last_interaction"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Messages []Message    `gorm:"foreignKey:ContactID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
	Profile  *LeadProfile `gorm:"foreignKey:ContactID;constraint:OnDelete:CASCADE" json:"profile,omitempty"`
}

func (Contact) TableName() string {
	return "contacts"
}

func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Message represents one inbound or outbound chat line. Append-only.
type Message struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ContactID string    `gorm:"index;not null;type:varchar(36)" json:"contact_id"`
	FromMe    bool      `gorm:"not null" json:"from_me"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return nil
}

// LeadProfile accumulates the structured qualification answers for a contact.
type LeadProfile struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ContactID    string    `gorm:"uniqueIndex;not null;type:varchar(36)" json:"contact_id"`
	Interest     string    `gorm:"type:varchar(100)" json:"interest"`      // Ex: "site"
	HasSite      string    `gorm:"type:varchar(20)" json:"has_site"`       // Ex: "sim"
	SellsOnline  string    `gorm:"type:varchar(20)" json:"sells_online"`   // Ex: "nao"
	ProductCount string    `gorm:"type:varchar(50)" json:"product_count"`  // Ex: "50"
	MainGoal     string    `gorm:"type:varchar(100)" json:"main_goal"`     // Ex: "venda"
	OfferChoice  string    `gorm:"type:varchar(10)" json:"offer_choice"`   // "1" or "2"
	Score        int       `gorm:"default:0" json:"score"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (LeadProfile) TableName() string {
	return "lead_profiles"
}

func (p *LeadProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// User is an operator account. BotNumber registers the WhatsApp number the
// bot runs on (its traffic is ignored by the pipeline); NotificationNumber
// receives the lead-completion summary.
type User struct {
	ID                 string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name               string    `gorm:"type:varchar(255)" json:"name"`
	Email              string    `gorm:"uniqueIndex;not null;type:varchar(255)" json:"email"`
	PasswordHash       string    `gorm:"not null;type:varchar(255)" json:"-"`
	BotNumber          string    `gorm:"type:varchar(50)" json:"bot_number"`
	NotificationNumber string    `gorm:"type:varchar(50)" json:"notification_number"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// SystemConfig is a generic key/value configuration row.
type SystemConfig struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Key         string    `gorm:"uniqueIndex;not null;type:varchar(255)" json:"key"`
	Value       string    `gorm:"type:text;not null" json:"value"`
	Description string    `gorm:"type:varchar(255)" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SystemConfig) TableName() string {
	return "system_configs"
}
