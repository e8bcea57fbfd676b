package chat

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateChat(ctx context.Context, c *Chat) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetChat(ctx context.Context, userID uint64, chatID string) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", chatID, userID).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) ListChats(ctx context.Context, userID uint64) ([]Chat, error) {
	var out []Chat
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("pinned DESC, updated_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) RenameChat(ctx context.Context, userID uint64, chatID, title string) error {
	res := r.db.WithContext(ctx).Model(&Chat{}).
		Where("id = ? AND user_id = ?", chatID, userID).
		Update("title", title)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repo) SetPinned(ctx context.Context, userID uint64, chatID string, pinned bool) error {
	res := r.db.WithContext(ctx).Model(&Chat{}).
		Where("id = ? AND user_id = ?", chatID, userID).
		Update("pinned", pinned)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteChat removes the chat, its messages, and any share link. Messages
// cascade at the schema level; the explicit deletes keep sqlite test DBs
// honest too.
func (r *Repo) DeleteChat(ctx context.Context, userID uint64, chatID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c Chat
		if err := tx.Where("id = ? AND user_id = ?", chatID, userID).First(&c).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&SharedConversation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&c).Error
	})
}

func (r *Repo) AddMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMessages returns the chat's messages in seq_num order, scoped to the
// owner.
func (r *Repo) ListMessages(ctx context.Context, userID uint64, chatID string) ([]Message, error) {
	if _, err := r.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return r.listMessages(ctx, chatID)
}

func (r *Repo) listMessages(ctx context.Context, chatID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("seq_num ASC, id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) GetMessage(ctx context.Context, chatID string, messageID uint64) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).
		Where("id = ? AND chat_id = ?", messageID, chatID).
		First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) LastMessage(ctx context.Context, chatID string) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("seq_num DESC, id DESC").
		First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) MaxSeqNum(ctx context.Context, chatID string) (int, error) {
	var max *int
	if err := r.db.WithContext(ctx).Model(&Message{}).
		Where("chat_id = ?", chatID).
		Select("MAX(seq_num)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// LastAssistantSeq returns the highest seq_num among assistant messages, or
// ok=false when the chat has no assistant reply yet.
func (r *Repo) LastAssistantSeq(ctx context.Context, chatID string) (int, bool, error) {
	var m Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND role = ?", chatID, RoleAssistant).
		Order("seq_num DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return m.SeqNum, true, nil
}

func (r *Repo) UpdateMessageContent(ctx context.Context, messageID uint64, content string, attachments []string) error {
	updates := map[string]any{"content": content}
	if len(attachments) > 0 {
		updates["attachments"] = attachments
	}
	return r.db.WithContext(ctx).Model(&Message{}).
		Where("id = ?", messageID).
		Updates(updates).Error
}

// DeleteFromSeq truncates the branch at seq. inclusive deletes seq itself
// (user-message edit); exclusive keeps it (regenerate from assistant turn).
func (r *Repo) DeleteFromSeq(ctx context.Context, chatID string, seq int, inclusive bool) error {
	q := r.db.WithContext(ctx).Where("chat_id = ?", chatID)
	if inclusive {
		q = q.Where("seq_num >= ?", seq)
	} else {
		q = q.Where("seq_num > ?", seq)
	}
	return q.Delete(&Message{}).Error
}

// SelectMessage marks one assistant message of a generation batch as
// selected and unselects every sibling sharing its previous_message_id.
func (r *Repo) SelectMessage(ctx context.Context, userID uint64, chatID string, messageID uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c Chat
		if err := tx.Where("id = ? AND user_id = ?", chatID, userID).First(&c).Error; err != nil {
			return err
		}
		var m Message
		if err := tx.Where("id = ? AND chat_id = ?", messageID, chatID).First(&m).Error; err != nil {
			return err
		}
		if m.Role != RoleAssistant || m.PreviousMessageID == nil {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Model(&Message{}).
			Where("chat_id = ? AND previous_message_id = ?", chatID, *m.PreviousMessageID).
			Update("selected", false).Error; err != nil {
			return err
		}
		return tx.Model(&Message{}).
			Where("id = ?", messageID).
			Update("selected", true).Error
	})
}

// CreateShare is idempotent: sharing an already-shared chat returns the
// existing link.
func (r *Repo) CreateShare(ctx context.Context, userID uint64, chatID string) (*SharedConversation, error) {
	if _, err := r.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	var existing SharedConversation
	err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	share := &SharedConversation{ID: uuid.NewString(), ChatID: chatID}
	if err := r.db.WithContext(ctx).Create(share).Error; err != nil {
		// lost a race with a concurrent share of the same chat
		if getErr := r.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&existing).Error; getErr == nil {
			return &existing, nil
		}
		return nil, err
	}
	return share, nil
}

func (r *Repo) GetShare(ctx context.Context, shareID string) (*SharedConversation, error) {
	var s SharedConversation
	if err := r.db.WithContext(ctx).Where("id = ?", shareID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) DeleteShare(ctx context.Context, userID uint64, chatID string) error {
	if _, err := r.GetChat(ctx, userID, chatID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&SharedConversation{}).Error
}

// SharedMessages materializes the shared chat's message list for public
// read-only consumption.
func (r *Repo) SharedMessages(ctx context.Context, shareID string) (*Chat, []Message, error) {
	share, err := r.GetShare(ctx, shareID)
	if err != nil {
		return nil, nil, err
	}
	var c Chat
	if err := r.db.WithContext(ctx).Where("id = ?", share.ChatID).First(&c).Error; err != nil {
		return nil, nil, err
	}
	msgs, err := r.listMessages(ctx, share.ChatID)
	if err != nil {
		return nil, nil, err
	}
	return &c, msgs, nil
}

// CreateChatFromShared deep-copies a shared conversation's messages into a
// new chat owned by userID. Fresh message ids are minted while seq_num,
// role, and selection are preserved; each assistant row is re-pointed at the
// user row copied immediately before it.
func (r *Repo) CreateChatFromShared(ctx context.Context, userID uint64, shareID, newChatID string) (*Chat, error) {
	var out *Chat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var share SharedConversation
		if err := tx.Where("id = ?", shareID).First(&share).Error; err != nil {
			return err
		}
		var src Chat
		if err := tx.Where("id = ?", share.ChatID).First(&src).Error; err != nil {
			return err
		}
		var msgs []Message
		if err := tx.Where("chat_id = ?", share.ChatID).
			Order("seq_num ASC, id ASC").
			Find(&msgs).Error; err != nil {
			return err
		}

		c := &Chat{ID: newChatID, UserID: userID, Title: src.Title}
		if err := tx.Create(c).Error; err != nil {
			return err
		}

		var lastUserID *uint64
		for _, m := range msgs {
			cp := Message{
				ChatID:       c.ID,
				Role:         m.Role,
				Content:      m.Content,
				Attachments:  m.Attachments,
				ModelID:      m.ModelID,
				ImageModelID: m.ImageModelID,
				SeqNum:       m.SeqNum,
				Selected:     m.Selected,
			}
			if m.Role == RoleAssistant {
				cp.PreviousMessageID = lastUserID
			}
			if err := tx.Create(&cp).Error; err != nil {
				return err
			}
			if m.Role == RoleUser {
				id := cp.ID
				lastUserID = &id
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
