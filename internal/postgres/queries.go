package postgres

const (
	queryInsertRoom = `
		INSERT INTO rooms (id, name, creator_id, visibility, secret_hash, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	queryGetRoom = `
		SELECT id, name, creator_id, visibility, secret_hash, status, created_at, updated_at
		FROM rooms
		WHERE id = $1`
	queryLockRoom     = `SELECT 1 FROM rooms WHERE id = $1 FOR UPDATE`
	queryTouchRoom    = `UPDATE rooms SET updated_at = $2 WHERE id = $1`
	queryDeleteRoom   = `DELETE FROM rooms WHERE id = $1`
	querySetRoomState = `UPDATE rooms SET status = $2, updated_at = $3 WHERE id = $1`
	querySetCreator   = `
		UPDATE rooms SET creator_id = $2, updated_at = $3
		WHERE id = $1
		  AND EXISTS (SELECT 1 FROM room_participants WHERE room_id = $1 AND user_id = $2)`

	// keyset pagination over live public rooms, (created_at, id) DESC
	queryListLive = `
		SELECT id, name, creator_id, visibility, secret_hash, status, created_at, updated_at
		FROM rooms
		WHERE status = 'live' AND visibility = 'public'
		  AND ($1::timestamptz IS NULL OR created_at < $1
		       OR (created_at = $1 AND id < $2))
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	queryInsertParticipant = `
		INSERT INTO room_participants (room_id, user_id, status, joined_at)
		VALUES ($1, $2, $3, $4)`
	queryListParticipants = `
		SELECT user_id, status, joined_at
		FROM room_participants
		WHERE room_id = $1
		ORDER BY seq ASC`
	queryDeleteParticipant       = `DELETE FROM room_participants WHERE room_id = $1 AND user_id = $2`
	queryUpdateParticipantStatus = `UPDATE room_participants SET status = $3 WHERE room_id = $1 AND user_id = $2`

	queryInsertMessage = `
		INSERT INTO room_messages (id, room_id, author_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	queryRecentMessages = `
		SELECT id, room_id, author_id, content, created_at
		FROM (
		    SELECT id, room_id, author_id, content, created_at
		    FROM room_messages
		    WHERE room_id = $1
		    ORDER BY created_at DESC, id DESC
		    LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC`
	queryHistory = `
		SELECT id, room_id, author_id, content, created_at
		FROM room_messages
		WHERE room_id = $1
		  AND ($2::timestamptz IS NULL OR created_at < $2
		       OR (created_at = $2 AND id < $3))
		ORDER BY created_at DESC, id DESC
		LIMIT $4`
)
