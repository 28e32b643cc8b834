package source

import "time"

// The document shapes below mirror what the web application writes to the
// primary store. Optional fields are pointers or zero values; the mapper
// supplies defaults.

type UserAccount struct {
	UID         string     `bson:"uid"`
	Email       string     `bson:"email"`
	DisplayName string     `bson:"displayName"`
	PhotoURL    string     `bson:"photoURL"`
	Provider    string     `bson:"provider"`
	Role        string     `bson:"role"`
	CreatedAt   *time.Time `bson:"createdAt"`
	LastLoginAt *time.Time `bson:"lastLoginAt"`
}

type UserProfile struct {
	UID             string     `bson:"uid"`
	Nickname        string     `bson:"nickname"`
	Gender          string     `bson:"gender"`
	BirthYear       int        `bson:"birthYear"`
	Occupation      string     `bson:"occupation"`
	PersonalityType string     `bson:"personalityType"`
	Concerns        []string   `bson:"concerns"`
	CounselingGoal  string     `bson:"counselingGoal"`
	CreatedAt       *time.Time `bson:"createdAt"`
	UpdatedAt       *time.Time `bson:"updatedAt"`
}

// EmotionEntry is one daily emotion diary record. Date is YYYY-MM-DD.
type EmotionEntry struct {
	UID       string     `bson:"uid"`
	Date      string     `bson:"date"`
	Emotion   string     `bson:"emotion"`
	Score     int        `bson:"score"`
	Keywords  []string   `bson:"keywords"`
	Note      string     `bson:"note"`
	Summary   string     `bson:"summary"`
	CreatedAt *time.Time `bson:"createdAt"`
}

type CounselingSession struct {
	SessionID     string        `bson:"sessionId"`
	UID           string        `bson:"uid"`
	Title         string        `bson:"title"`
	CounselorType string        `bson:"counselorType"`
	Status        string        `bson:"status"`
	Summary       string        `bson:"summary"`
	StartedAt     *time.Time    `bson:"startedAt"`
	EndedAt       *time.Time    `bson:"endedAt"`
	Messages      []ChatMessage `bson:"messages"`
}

// ChatMessage order is its index in CounselingSession.Messages.
type ChatMessage struct {
	Role      string     `bson:"role"`
	Content   string     `bson:"content"`
	Timestamp *time.Time `bson:"timestamp"`
}
