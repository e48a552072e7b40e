// Package journal persists sessions, messages and agents to SQL so state
// survives a restart and transcripts outlive in-memory retention.
package journal

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/session"
)

// Journal writes through every state change. It satisfies session.Journal
// and agent.Journal.
type Journal struct {
	db  *gorm.DB
	log zerolog.Logger
}

// New creates a Journal on an already migrated database.
func New(db *gorm.DB, logger zerolog.Logger) *Journal {
	return &Journal{db: db, log: logger.With().Str("component", "journal").Logger()}
}

// SaveSession upserts the session row. Messages are stored separately.
func (j *Journal) SaveSession(s *models.Session) error {
	err := j.db.Omit(clause.Associations).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(s).Error
	if err != nil {
		return fmt.Errorf("journal: save session %s: %w", s.ID, err)
	}
	return nil
}

// AppendMessage inserts a message and bumps its session's updated_at.
func (j *Journal) AppendMessage(m *models.Message) error {
	err := j.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return tx.Model(&models.Session{}).
			Where("id = ?", m.SessionID).
			Update("updated_at", m.Timestamp).Error
	})
	if err != nil {
		return fmt.Errorf("journal: append message to %s: %w", m.SessionID, err)
	}
	return nil
}

// SaveAgent upserts the agent row.
func (j *Journal) SaveAgent(a *models.Agent) error {
	err := j.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(a).Error
	if err != nil {
		return fmt.Errorf("journal: save agent %s: %w", a.ID, err)
	}
	return nil
}

func orderedMessages(db *gorm.DB) *gorm.DB {
	return db.Order("sequence ASC")
}

// LoadOpen returns every session that is not closed, with messages, and
// every agent.
func (j *Journal) LoadOpen() ([]*models.Session, []*models.Agent, error) {
	var sessions []*models.Session
	err := j.db.Preload("Messages", orderedMessages).
		Where("status <> ?", models.StatusClosed).
		Order("created_at ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, nil, fmt.Errorf("journal: load sessions: %w", err)
	}
	var agents []*models.Agent
	if err := j.db.Order("joined_at ASC").Find(&agents).Error; err != nil {
		return nil, nil, fmt.Errorf("journal: load agents: %w", err)
	}
	j.log.Debug().Int("sessions", len(sessions)).Int("agents", len(agents)).Msg("loaded open state")
	return sessions, agents, nil
}

// Transcript returns a session with its full message history in sequence
// order, whether or not it is closed.
func (j *Journal) Transcript(sessionID string) (*models.Session, error) {
	var s models.Session
	err := j.db.Preload("Messages", orderedMessages).
		Where("id = ?", sessionID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("journal: %w: %s", session.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("journal: transcript %s: %w", sessionID, err)
	}
	return &s, nil
}
