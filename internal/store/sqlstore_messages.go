package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

const messageSelect = `
	SELECT m.id, m.sender_id, m.receiver_id, m.sender_text, m.receiver_text,
	       fs.token, fs.name, fr.token, fr.name, m.seen, m.sent_at
	FROM messages m
	LEFT JOIN files fs ON fs.token = m.sender_file
	LEFT JOIN files fr ON fr.token = m.receiver_file`

// pairClause matches both directions of a conversation.
const pairClause = ` WHERE ((m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?))`

// scanMessage reads a messageSelect row and returns the copy owned by viewer.
func scanMessage(row rowScanner, viewer string) (Message, error) {
	var (
		m                        Message
		senderText, receiverText sql.NullString
		senderTok, senderName    sql.NullString
		recvTok, recvName        sql.NullString
		seen, sentAt             int64
	)
	err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &senderText, &receiverText,
		&senderTok, &senderName, &recvTok, &recvName, &seen, &sentAt)
	if err != nil {
		return Message{}, err
	}

	text, tok, name := receiverText, recvTok, recvName
	if viewer == m.SenderID {
		text, tok, name = senderText, senderTok, senderName
	}
	m.Text = text.String
	if tok.Valid {
		m.File = &FileRef{Name: name.String, Token: tok.String}
	}
	m.Seen = seen != 0
	m.SentAt = sentAt / 1e6
	return m, nil
}

func (s *SQLStore) SendMessage(ctx context.Context, senderID, receiverID string, forReceiver, forSender map[string]any) (SendResult, error) {
	found, err := s.userExists(ctx, receiverID)
	if err != nil {
		return SendResult{}, err
	}
	if !found {
		return SendResult{ReceiverFound: false}, nil
	}

	receiverCopy, reason := ParseMessageContent(forReceiver)
	if reason != "" {
		return SendResult{ReceiverFound: true, Invalid: reason}, nil
	}
	senderCopy, reason := ParseMessageContent(forSender)
	if reason != "" {
		return SendResult{ReceiverFound: true, Invalid: reason}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SendResult{}, fmt.Errorf("begin send: %w", err)
	}
	defer tx.Rollback()

	senderFile, err := s.insertFile(ctx, tx, senderID, senderCopy.File)
	if err != nil {
		return SendResult{}, err
	}
	receiverFile, err := s.insertFile(ctx, tx, receiverID, receiverCopy.File)
	if err != nil {
		return SendResult{}, err
	}

	sentAt := s.now().UnixNano()
	msg := Message{
		ID:         s.newID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       receiverCopy.Text,
		File:       receiverFile,
		SentAt:     sentAt / 1e6,
	}
	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO messages (id, sender_id, receiver_id, sender_text, receiver_text, sender_file, receiver_file, seen, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`),
		msg.ID, senderID, receiverID,
		nullString(senderCopy.Text), nullString(receiverCopy.Text),
		fileToken(senderFile), fileToken(receiverFile),
		sentAt,
	)
	if err != nil {
		return SendResult{}, fmt.Errorf("insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return SendResult{}, fmt.Errorf("commit send: %w", err)
	}

	return SendResult{Message: msg, ReceiverFound: true}, nil
}

func (s *SQLStore) insertFile(ctx context.Context, tx *sql.Tx, ownerID string, att *Attachment) (*FileRef, error) {
	if att == nil {
		return nil, nil
	}
	ref := &FileRef{Name: att.Name, Token: s.newID()}
	_, err := tx.ExecContext(ctx,
		s.q("INSERT INTO files (token, owner_id, name, data) VALUES (?, ?, ?, ?)"),
		ref.Token, ownerID, att.Name, att.Data,
	)
	if err != nil {
		return nil, fmt.Errorf("insert file: %w", err)
	}
	return ref, nil
}

func (s *SQLStore) Messages(ctx context.Context, userID, otherID string, props ListProperties) ([]Message, bool, []string, error) {
	found, err := s.userExists(ctx, otherID)
	if err != nil {
		return nil, false, nil, err
	}
	if !found {
		return nil, false, nil, nil
	}
	p, invalid := ParseListParams(props)
	if len(invalid) > 0 {
		return nil, true, invalid, nil
	}

	query := messageSelect + pairClause
	args := []any{userID, otherID, otherID, userID}
	if p.Filter != "" {
		query += ` AND LOWER(COALESCE(CASE WHEN m.sender_id = ? THEN m.sender_text ELSE m.receiver_text END, '')) LIKE ? ESCAPE '\'`
		args = append(args, userID, likePattern(p.Filter))
	}
	order := sqlOrder(p.order(SortDesc))
	query += " ORDER BY m.sent_at " + order + ", m.id " + order
	query, args = s.paginate(query, args, p)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, true, nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows, userID)
		if err != nil {
			return nil, true, nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, true, nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, true, nil, nil
}

type chatHead struct {
	otherID string
	lastAt  int64
}

func (s *SQLStore) PeopleWithMessages(ctx context.Context, userID string, props ListProperties) ([]Chat, []string, error) {
	p, invalid := ParseListParams(props)
	if len(invalid) > 0 {
		return nil, invalid, nil
	}

	heads, err := s.chatHeads(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	// Rows are fully drained above; SQLite runs on a single connection.
	filter := strings.ToLower(p.Filter)
	chats := make([]Chat, 0, len(heads))
	for _, h := range heads {
		u, ok, err := s.GetUser(ctx, h.otherID)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(u.Login), filter) &&
			!strings.Contains(strings.ToLower(u.Name), filter) {
			continue
		}

		last, err := scanMessage(s.db.QueryRowContext(ctx,
			s.q(messageSelect+pairClause+" ORDER BY m.sent_at DESC, m.id DESC LIMIT 1"),
			userID, h.otherID, h.otherID, userID,
		), userID)
		if err != nil {
			return nil, nil, fmt.Errorf("last message: %w", err)
		}

		var unread int
		err = s.db.QueryRowContext(ctx,
			s.q("SELECT COUNT(*) FROM messages WHERE sender_id = ? AND receiver_id = ? AND seen = 0"),
			h.otherID, userID,
		).Scan(&unread)
		if err != nil {
			return nil, nil, fmt.Errorf("count unread: %w", err)
		}

		chats = append(chats, Chat{User: u, LastMessage: last, Unread: unread})
	}

	if p.order(SortDesc) == SortAsc {
		sort.SliceStable(chats, func(i, j int) bool {
			return chats[i].LastMessage.SentAt < chats[j].LastMessage.SentAt
		})
	}
	start, end := p.window(len(chats))
	return chats[start:end], nil, nil
}

// chatHeads returns userID's counterparts, most recent conversation first.
func (s *SQLStore) chatHeads(ctx context.Context, userID string) ([]chatHead, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS other_id,
		       MAX(sent_at) AS last_at
		FROM messages
		WHERE sender_id = ? OR receiver_id = ?
		GROUP BY other_id
		ORDER BY last_at DESC`),
		userID, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var heads []chatHead
	for rows.Next() {
		var h chatHead
		if err := rows.Scan(&h.otherID, &h.lastAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		heads = append(heads, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return heads, nil
}

func (s *SQLStore) MarkRead(ctx context.Context, readerID, otherID string) (bool, error) {
	found, err := s.userExists(ctx, otherID)
	if err != nil || !found {
		return false, err
	}
	_, err = s.db.ExecContext(ctx,
		s.q("UPDATE messages SET seen = 1 WHERE sender_id = ? AND receiver_id = ? AND seen = 0"),
		otherID, readerID,
	)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	return true, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func fileToken(ref *FileRef) sql.NullString {
	if ref == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: ref.Token, Valid: true}
}
