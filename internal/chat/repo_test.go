package chat

import (
	"context"
	"testing"

	"gorm.io/gorm"
)

func seedChat(t *testing.T, db *gorm.DB, repo *Repo, userID uint64, id string) *Chat {
	t.Helper()
	title := "seeded"
	c := &Chat{ID: id, UserID: userID, Title: &title}
	if err := repo.CreateChat(context.Background(), c); err != nil {
		t.Fatalf("create chat: %v", err)
	}
	return c
}

func seedMessage(t *testing.T, repo *Repo, chatID, role, content string, seq int, prev *uint64, selected *bool) *Message {
	t.Helper()
	m := &Message{
		ChatID:            chatID,
		Role:              role,
		Content:           &content,
		SeqNum:            seq,
		Selected:          selected,
		PreviousMessageID: prev,
	}
	if err := repo.AddMessage(context.Background(), m); err != nil {
		t.Fatalf("add message: %v", err)
	}
	return m
}

func boolPtr(b bool) *bool { return &b }

func TestDeleteFromSeq(t *testing.T) {
	db := openTestDB(t, "repo_delete_from_seq")
	repo := NewRepo(db)
	ctx := context.Background()

	c := seedChat(t, db, repo, 1, "01CHATDELETEFROMSEQ0000000")
	u1 := seedMessage(t, repo, c.ID, RoleUser, "q1", 1, nil, nil)
	seedMessage(t, repo, c.ID, RoleAssistant, "a1", 2, &u1.ID, nil)
	u2 := seedMessage(t, repo, c.ID, RoleUser, "q2", 4, nil, nil)
	seedMessage(t, repo, c.ID, RoleAssistant, "a2", 5, &u2.ID, nil)

	// exclusive keeps the boundary row
	if err := repo.DeleteFromSeq(ctx, c.ID, 4, false); err != nil {
		t.Fatalf("delete exclusive: %v", err)
	}
	msgs, err := repo.listMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 3 || msgs[2].SeqNum != 4 {
		t.Fatalf("exclusive truncation wrong: %d rows", len(msgs))
	}

	// inclusive removes it too
	if err := repo.DeleteFromSeq(ctx, c.ID, 4, true); err != nil {
		t.Fatalf("delete inclusive: %v", err)
	}
	msgs, err = repo.listMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 || msgs[1].SeqNum != 2 {
		t.Fatalf("inclusive truncation wrong: %d rows", len(msgs))
	}
}

func TestSelectMessage_Exclusive(t *testing.T) {
	db := openTestDB(t, "repo_select_message")
	repo := NewRepo(db)
	ctx := context.Background()

	c := seedChat(t, db, repo, 1, "01CHATSELECTMESSAGE0000000")
	u := seedMessage(t, repo, c.ID, RoleUser, "q", 1, nil, nil)
	seedMessage(t, repo, c.ID, RoleAssistant, "a1", 2, &u.ID, boolPtr(true))
	a2 := seedMessage(t, repo, c.ID, RoleAssistant, "a2", 3, &u.ID, boolPtr(false))
	a3 := seedMessage(t, repo, c.ID, RoleAssistant, "a3", 4, &u.ID, boolPtr(false))

	if err := repo.SelectMessage(ctx, 1, c.ID, a2.ID); err != nil {
		t.Fatalf("select message: %v", err)
	}

	msgs, err := repo.listMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, m := range msgs {
		if m.Role != RoleAssistant {
			continue
		}
		want := m.ID == a2.ID
		if m.Selected == nil || *m.Selected != want {
			t.Fatalf("message %d: selected=%v want %v", m.ID, m.Selected, want)
		}
	}

	// selecting a user message is rejected
	if err := repo.SelectMessage(ctx, 1, c.ID, u.ID); err == nil {
		t.Fatalf("expected error selecting a user message")
	}

	// owner scoping
	if err := repo.SelectMessage(ctx, 99, c.ID, a3.ID); err == nil {
		t.Fatalf("expected error for non-owner")
	}
}

func TestCreateShare_Idempotent(t *testing.T) {
	db := openTestDB(t, "repo_create_share")
	repo := NewRepo(db)
	ctx := context.Background()

	c := seedChat(t, db, repo, 1, "01CHATCREATESHARE000000000")

	s1, err := repo.CreateShare(ctx, 1, c.ID)
	if err != nil {
		t.Fatalf("create share: %v", err)
	}
	s2, err := repo.CreateShare(ctx, 1, c.ID)
	if err != nil {
		t.Fatalf("create share again: %v", err)
	}
	if s1.ID != s2.ID {
		t.Fatalf("expected idempotent share, got %s then %s", s1.ID, s2.ID)
	}

	if _, err := repo.CreateShare(ctx, 99, c.ID); err == nil {
		t.Fatalf("expected error sharing someone else's chat")
	}

	if err := repo.DeleteShare(ctx, 1, c.ID); err != nil {
		t.Fatalf("delete share: %v", err)
	}
	if _, err := repo.GetShare(ctx, s1.ID); err == nil {
		t.Fatalf("share should be gone")
	}
}

func TestCreateChatFromShared_DeepCopy(t *testing.T) {
	db := openTestDB(t, "repo_chat_from_shared")
	repo := NewRepo(db)
	ctx := context.Background()

	src := seedChat(t, db, repo, 1, "01CHATSHAREDSOURCE00000000")
	u1 := seedMessage(t, repo, src.ID, RoleUser, "q1", 1, nil, nil)
	seedMessage(t, repo, src.ID, RoleAssistant, "a1", 2, &u1.ID, boolPtr(true))
	seedMessage(t, repo, src.ID, RoleAssistant, "a1b", 3, &u1.ID, boolPtr(false))
	u2 := seedMessage(t, repo, src.ID, RoleUser, "q2", 4, nil, nil)
	seedMessage(t, repo, src.ID, RoleAssistant, "a2", 5, &u2.ID, boolPtr(true))

	share, err := repo.CreateShare(ctx, 1, src.ID)
	if err != nil {
		t.Fatalf("create share: %v", err)
	}

	cp, err := repo.CreateChatFromShared(ctx, 2, share.ID, "01CHATSHAREDCOPY0000000000")
	if err != nil {
		t.Fatalf("copy from shared: %v", err)
	}
	if cp.UserID != 2 {
		t.Fatalf("copy owned by %d, want 2", cp.UserID)
	}
	if cp.Title == nil || *cp.Title != "seeded" {
		t.Fatalf("title not carried over")
	}

	msgs, err := repo.listMessages(ctx, cp.ID)
	if err != nil {
		t.Fatalf("list copy: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 copied rows, got %d", len(msgs))
	}

	var copiedU1, copiedU2 uint64
	for _, m := range msgs {
		if m.Role == RoleUser {
			if m.SeqNum == 1 {
				copiedU1 = m.ID
			} else {
				copiedU2 = m.ID
			}
		}
	}
	for _, m := range msgs {
		if m.Role != RoleAssistant {
			continue
		}
		if m.PreviousMessageID == nil {
			t.Fatalf("copied assistant row lost its reply pointer")
		}
		if m.SeqNum <= 3 && *m.PreviousMessageID != copiedU1 {
			t.Fatalf("first batch points at %d, want %d", *m.PreviousMessageID, copiedU1)
		}
		if m.SeqNum == 5 && *m.PreviousMessageID != copiedU2 {
			t.Fatalf("second batch points at %d, want %d", *m.PreviousMessageID, copiedU2)
		}
		if m.ID == u1.ID || m.ID == u2.ID {
			t.Fatalf("copy reused a source row id")
		}
	}

	// source untouched
	srcMsgs, err := repo.listMessages(ctx, src.ID)
	if err != nil {
		t.Fatalf("list source: %v", err)
	}
	if len(srcMsgs) != 5 {
		t.Fatalf("source mutated: %d rows", len(srcMsgs))
	}
}

func TestLastAssistantSeqAndMaxSeq(t *testing.T) {
	db := openTestDB(t, "repo_seq_helpers")
	repo := NewRepo(db)
	ctx := context.Background()

	c := seedChat(t, db, repo, 1, "01CHATSEQHELPERS0000000000")

	if _, ok, err := repo.LastAssistantSeq(ctx, c.ID); err != nil || ok {
		t.Fatalf("empty chat: ok=%v err=%v", ok, err)
	}
	maxSeq, err := repo.MaxSeqNum(ctx, c.ID)
	if err != nil || maxSeq != 0 {
		t.Fatalf("empty chat max seq: %d err=%v", maxSeq, err)
	}

	u := seedMessage(t, repo, c.ID, RoleUser, "q", 1, nil, nil)
	seedMessage(t, repo, c.ID, RoleAssistant, "a", 2, &u.ID, nil)
	seedMessage(t, repo, c.ID, RoleAssistant, "b", 3, &u.ID, nil)

	seq, ok, err := repo.LastAssistantSeq(ctx, c.ID)
	if err != nil || !ok || seq != 3 {
		t.Fatalf("last assistant seq: %d ok=%v err=%v", seq, ok, err)
	}
	maxSeq, err = repo.MaxSeqNum(ctx, c.ID)
	if err != nil || maxSeq != 3 {
		t.Fatalf("max seq: %d err=%v", maxSeq, err)
	}
}

func TestDeleteChat_RemovesMessagesAndShare(t *testing.T) {
	db := openTestDB(t, "repo_delete_chat")
	repo := NewRepo(db)
	ctx := context.Background()

	c := seedChat(t, db, repo, 1, "01CHATDELETECHAT0000000000")
	seedMessage(t, repo, c.ID, RoleUser, "q", 1, nil, nil)
	share, err := repo.CreateShare(ctx, 1, c.ID)
	if err != nil {
		t.Fatalf("create share: %v", err)
	}

	if err := repo.DeleteChat(ctx, 99, c.ID); err == nil {
		t.Fatalf("expected error for non-owner delete")
	}
	if err := repo.DeleteChat(ctx, 1, c.ID); err != nil {
		t.Fatalf("delete chat: %v", err)
	}

	var n int64
	if err := db.Model(&Message{}).Where("chat_id = ?", c.ID).Count(&n).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if n != 0 {
		t.Fatalf("messages survived chat delete: %d", n)
	}
	if _, err := repo.GetShare(ctx, share.ID); err == nil {
		t.Fatalf("share survived chat delete")
	}
}
