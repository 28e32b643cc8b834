// Package mapper turns source documents into destination rows. Every function
// is pure given the Mapper's clock: no I/O, and the same document always maps
// to the same content columns.
package mapper

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/datatypes"

	"github.com/davexpro/hybrid-backup/internal/db"
	"github.com/davexpro/hybrid-backup/internal/errs"
	"github.com/davexpro/hybrid-backup/internal/source"
)

const dateLayout = "2006-01-02"

// Mapper holds the clock used for missing creation timestamps. Those land in
// insert-only columns, so a replay never rewrites them.
type Mapper struct {
	Now func() time.Time
}

func New() *Mapper {
	return &Mapper{Now: time.Now}
}

func (m *Mapper) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now().UTC()
}

func (m *Mapper) MapUserAccount(doc source.UserAccount) (db.User, error) {
	uid := strings.TrimSpace(doc.UID)
	if uid == "" {
		return db.User{}, errs.NewMappingError(doc.Email, "user account has no uid")
	}
	role := doc.Role
	if role == "" {
		role = "user"
	}
	return db.User{
		UID:         uid,
		Email:       doc.Email,
		DisplayName: doc.DisplayName,
		PhotoURL:    doc.PhotoURL,
		Provider:    doc.Provider,
		Role:        role,
		LastLoginAt: utcPtr(doc.LastLoginAt),
		CreatedAt:   m.orNow(doc.CreatedAt),
	}, nil
}

func (m *Mapper) MapUserProfile(doc source.UserProfile) (db.UserProfile, error) {
	uid := strings.TrimSpace(doc.UID)
	if uid == "" {
		return db.UserProfile{}, errs.NewMappingError(doc.Nickname, "user profile has no uid")
	}
	return db.UserProfile{
		UID:              uid,
		Nickname:         doc.Nickname,
		Gender:           doc.Gender,
		BirthYear:        doc.BirthYear,
		Occupation:       doc.Occupation,
		PersonalityType:  doc.PersonalityType,
		Concerns:         jsonList(doc.Concerns),
		CounselingGoal:   doc.CounselingGoal,
		ProfileUpdatedAt: utcPtr(doc.UpdatedAt),
		CreatedAt:        m.orNow(doc.CreatedAt),
	}, nil
}

// MapEmotionEntry maps one diary entry. date is the entry's key within the
// user's diary and must be YYYY-MM-DD.
func (m *Mapper) MapEmotionEntry(doc source.EmotionEntry, date string) (db.EmotionRecord, error) {
	uid := strings.TrimSpace(doc.UID)
	date = strings.TrimSpace(date)
	key := uid + "/" + date
	if uid == "" {
		return db.EmotionRecord{}, errs.NewMappingError(key, "emotion entry has no uid")
	}
	if date == "" {
		return db.EmotionRecord{}, errs.NewMappingError(key, "emotion entry has no date")
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return db.EmotionRecord{}, errs.NewMappingError(key, "emotion entry date is not YYYY-MM-DD")
	}
	return db.EmotionRecord{
		UID:       uid,
		Date:      date,
		Emotion:   doc.Emotion,
		Score:     doc.Score,
		Keywords:  jsonList(doc.Keywords),
		Note:      doc.Note,
		Summary:   doc.Summary,
		CreatedAt: m.orNow(doc.CreatedAt),
	}, nil
}

// MapSession maps the session header. Messages are mapped separately with
// MapMessage so each one can fail on its own.
func (m *Mapper) MapSession(doc source.CounselingSession, sessionID string) (db.CounselingSession, error) {
	uid := strings.TrimSpace(doc.UID)
	sessionID = strings.TrimSpace(sessionID)
	key := uid + "/" + sessionID
	if uid == "" {
		return db.CounselingSession{}, errs.NewMappingError(key, "session has no uid")
	}
	if sessionID == "" {
		return db.CounselingSession{}, errs.NewMappingError(key, "session has no id")
	}

	status := doc.Status
	if status == "" {
		status = "active"
	}
	started, known := m.sessionStart(doc)
	return db.CounselingSession{
		UID:           uid,
		SessionID:     sessionID,
		Title:         doc.Title,
		CounselorType: doc.CounselorType,
		Status:        status,
		Summary:       doc.Summary,
		MessageCount:  len(doc.Messages),
		StartedAt:     started,
		EndedAt:       utcPtr(doc.EndedAt),
		CreatedAt:     started,
		StartKnown:    known,
	}, nil
}

// MapMessage maps the message at position index of its session. index is
// the message order and is never derived from timestamps.
func (m *Mapper) MapMessage(session db.CounselingSession, msg source.ChatMessage, index int) (db.ChatMessage, error) {
	row := db.ChatMessage{
		SessionID:    session.SessionID,
		MessageOrder: index,
		UID:          session.UID,
	}
	if session.SessionID == "" {
		return row, errs.NewMappingError(row.NaturalKey(), "message has no session id")
	}
	if index < 0 {
		return row, errs.NewMappingError(row.NaturalKey(), "message order is negative")
	}

	sent, known := session.StartedAt, session.StartKnown
	if msg.Timestamp != nil && !msg.Timestamp.IsZero() {
		sent, known = msg.Timestamp.UTC(), true
	}
	row.Role = msg.Role
	row.Content = msg.Content
	row.SentAt = sent
	row.SentKnown = known
	row.CreatedAt = sent
	return row, nil
}

// sessionStart prefers the recorded start, then the first message timestamp.
// The clock is the last resort and is reported as unknown.
func (m *Mapper) sessionStart(doc source.CounselingSession) (time.Time, bool) {
	if doc.StartedAt != nil && !doc.StartedAt.IsZero() {
		return doc.StartedAt.UTC(), true
	}
	for _, msg := range doc.Messages {
		if msg.Timestamp != nil && !msg.Timestamp.IsZero() {
			return msg.Timestamp.UTC(), true
		}
	}
	return m.now(), false
}

func (m *Mapper) orNow(t *time.Time) time.Time {
	if t == nil || t.IsZero() {
		return m.now()
	}
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

// jsonList encodes a string list, writing [] for nil so NOT NULL JSON
// columns are always satisfied.
func jsonList(items []string) datatypes.JSON {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(b)
}
