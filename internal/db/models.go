package db

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
)

const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"

	TypeFull = "full"
)

// BackupLog is one audited backup run. It is append-only apart from the
// single terminal update, and it is the only record of whether a run is in
// progress. RunningGuard is 1 while running and NULL otherwise; its unique
// index admits any number of NULLs, so at most one running row can exist.
type BackupLog struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	RunID           string     `gorm:"size:36;uniqueIndex" json:"runId"`
	BackupType      string     `gorm:"size:32;not null;index:idx_backup_logs_type_started,priority:1" json:"backupType"`
	Status          string     `gorm:"size:20;not null;index:idx_backup_logs_status_started,priority:1" json:"status"`
	StartedAt       time.Time  `gorm:"not null;index:idx_backup_logs_type_started,priority:2;index:idx_backup_logs_status_started,priority:2" json:"startedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	DurationSeconds *float64   `json:"durationSeconds,omitempty"`
	ErrorMessage    string     `gorm:"type:text" json:"errorMessage,omitempty"`
	ProcessedCount  int        `gorm:"not null;default:0" json:"processedCount"`
	FailedCount     int        `gorm:"not null;default:0" json:"failedCount"`
	RunningGuard    *int8      `gorm:"->;type:tinyint GENERATED ALWAYS AS (IF(status = 'running', 1, NULL)) STORED;uniqueIndex:uk_backup_logs_running" json:"-"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (BackupLog) TableName() string {
	return "backup_logs"
}

// Row is a destination row keyed by its natural key. UpdateColumns lists the
// columns overwritten when the key already exists; creation timestamps are
// left out so replays keep the first value.
type Row interface {
	TableName() string
	NaturalKey() string
	ConflictColumns() []string
	UpdateColumns() []string
}

type User struct {
	ID          uint       `gorm:"primaryKey"`
	UID         string     `gorm:"column:uid;size:128;not null;uniqueIndex:uk_users_uid"`
	Email       string     `gorm:"size:255;not null;default:''"`
	DisplayName string     `gorm:"size:255;not null;default:''"`
	PhotoURL    string     `gorm:"column:photo_url;size:1024;not null;default:''"`
	Provider    string     `gorm:"size:32;not null;default:''"`
	Role        string     `gorm:"size:32;not null;default:'user'"`
	LastLoginAt *time.Time `gorm:"column:last_login_at"`
	CreatedAt   time.Time  `gorm:"not null"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
}

func (User) TableName() string { return "users" }
func (u User) NaturalKey() string { return u.UID }
func (User) ConflictColumns() []string { return []string{"uid"} }
func (User) UpdateColumns() []string {
	return []string{"email", "display_name", "photo_url", "provider", "role", "last_login_at", "updated_at"}
}

type UserProfile struct {
	ID               uint           `gorm:"primaryKey"`
	UID              string         `gorm:"column:uid;size:128;not null;uniqueIndex:uk_user_profiles_uid"`
	Nickname         string         `gorm:"size:100;not null;default:''"`
	Gender           string         `gorm:"size:20;not null;default:''"`
	BirthYear        int            `gorm:"not null;default:0"`
	Occupation       string         `gorm:"size:100;not null;default:''"`
	PersonalityType  string         `gorm:"size:32;not null;default:''"`
	Concerns         datatypes.JSON `gorm:"type:json;not null"`
	CounselingGoal   string         `gorm:"type:text;not null"`
	ProfileUpdatedAt *time.Time     `gorm:"column:profile_updated_at"`
	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime"`
}

func (UserProfile) TableName() string { return "user_profiles" }
func (p UserProfile) NaturalKey() string { return p.UID }
func (UserProfile) ConflictColumns() []string { return []string{"uid"} }
func (UserProfile) UpdateColumns() []string {
	return []string{"nickname", "gender", "birth_year", "occupation", "personality_type",
		"concerns", "counseling_goal", "profile_updated_at", "updated_at"}
}

type EmotionRecord struct {
	ID        uint           `gorm:"primaryKey"`
	UID       string         `gorm:"column:uid;size:128;not null;uniqueIndex:uk_emotion_records_uid_date,priority:1"`
	Date      string         `gorm:"size:10;not null;uniqueIndex:uk_emotion_records_uid_date,priority:2"`
	Emotion   string         `gorm:"size:50;not null;default:''"`
	Score     int            `gorm:"not null;default:0"`
	Keywords  datatypes.JSON `gorm:"type:json;not null"`
	Note      string         `gorm:"type:text;not null"`
	Summary   string         `gorm:"type:text;not null"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (EmotionRecord) TableName() string { return "emotion_records" }
func (e EmotionRecord) NaturalKey() string { return e.UID + "/" + e.Date }
func (EmotionRecord) ConflictColumns() []string { return []string{"uid", "date"} }
func (EmotionRecord) UpdateColumns() []string {
	return []string{"emotion", "score", "keywords", "note", "summary", "updated_at"}
}

type CounselingSession struct {
	ID            uint       `gorm:"primaryKey"`
	UID           string     `gorm:"column:uid;size:128;not null;uniqueIndex:uk_counseling_sessions_uid_session,priority:1"`
	SessionID     string     `gorm:"size:128;not null;uniqueIndex:uk_counseling_sessions_uid_session,priority:2;index"`
	Title         string     `gorm:"size:255;not null;default:''"`
	CounselorType string     `gorm:"size:50;not null;default:''"`
	Status        string     `gorm:"size:20;not null;default:'active'"`
	Summary       string     `gorm:"type:text;not null"`
	MessageCount  int        `gorm:"not null;default:0"`
	StartedAt     time.Time  `gorm:"not null"`
	EndedAt       *time.Time `gorm:"column:ended_at"`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime"`

	// StartKnown is set when StartedAt came from the source document rather
	// than the mapper clock. Only a known start overwrites a stored one.
	StartKnown bool `gorm:"-"`
}

func (CounselingSession) TableName() string { return "counseling_sessions" }
func (s CounselingSession) NaturalKey() string { return s.UID + "/" + s.SessionID }
func (CounselingSession) ConflictColumns() []string { return []string{"uid", "session_id"} }
func (s CounselingSession) UpdateColumns() []string {
	cols := []string{"title", "counselor_type", "status", "summary", "message_count", "ended_at"}
	if s.StartKnown {
		cols = append(cols, "started_at")
	}
	return append(cols, "updated_at")
}

type ChatMessage struct {
	ID           uint      `gorm:"primaryKey"`
	SessionID    string    `gorm:"size:128;not null;uniqueIndex:uk_chat_messages_session_order,priority:1"`
	MessageOrder int       `gorm:"not null;uniqueIndex:uk_chat_messages_session_order,priority:2"`
	UID          string    `gorm:"column:uid;size:128;not null;index"`
	Role         string    `gorm:"size:20;not null;default:''"`
	Content      string    `gorm:"type:mediumtext;not null"`
	SentAt       time.Time `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`

	// SentKnown is set when SentAt derives from source timestamps.
	SentKnown bool `gorm:"-"`
}

func (ChatMessage) TableName() string { return "chat_messages" }
func (m ChatMessage) NaturalKey() string { return m.SessionID + "#" + strconv.Itoa(m.MessageOrder) }
func (ChatMessage) ConflictColumns() []string { return []string{"session_id", "message_order"} }
func (m ChatMessage) UpdateColumns() []string {
	cols := []string{"uid", "role", "content"}
	if m.SentKnown {
		cols = append(cols, "sent_at")
	}
	return append(cols, "updated_at")
}

// Models lists every table managed by AutoMigrate.
func Models() []any {
	return []any{&BackupLog{}, &User{}, &UserProfile{}, &EmotionRecord{}, &CounselingSession{}, &ChatMessage{}}
}
