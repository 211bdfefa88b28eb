package db

import (
	"github.com/google/uuid"

	"github.com/chorus-fm/chorus/models"
)

// ListMembershipStints returns every stint for a (member, group) pair.
func (db *DB) ListMembershipStints(memberID, groupID string) ([]*models.ArtistGroupMembership, error) {
	rows, err := db.Query(`
	SELECT id, member_id, group_id, begin_date, end_date, begin_date_raw, end_date_raw, ended
	FROM artist_group_memberships
	WHERE member_id = ? AND group_id = ?
	ORDER BY begin_date_raw, end_date_raw`, memberID, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stints []*models.ArtistGroupMembership
	for rows.Next() {
		m := &models.ArtistGroupMembership{}
		err := rows.Scan(&m.ID, &m.MemberID, &m.GroupID, &m.BeginDate, &m.EndDate,
			&m.BeginDateRaw, &m.EndDateRaw, &m.Ended)
		if err != nil {
			return nil, err
		}
		stints = append(stints, m)
	}
	return stints, rows.Err()
}

func (db *DB) InsertMembership(m *models.ArtistGroupMembership) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := db.Exec(`
	INSERT INTO artist_group_memberships (id, member_id, group_id, begin_date, end_date, begin_date_raw, end_date_raw, ended)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (member_id, group_id, begin_date_raw, end_date_raw) DO NOTHING`,
		m.ID, m.MemberID, m.GroupID, m.BeginDate, m.EndDate,
		m.BeginDateRaw, m.EndDateRaw, m.Ended)
	return err
}

func (db *DB) UpdateMembership(m *models.ArtistGroupMembership) error {
	_, err := db.Exec(`
	UPDATE artist_group_memberships
	SET begin_date = ?, end_date = ?, begin_date_raw = ?, end_date_raw = ?, ended = ?
	WHERE id = ?`,
		m.BeginDate, m.EndDate, m.BeginDateRaw, m.EndDateRaw, m.Ended, m.ID)
	return err
}

// MembershipView joins a stint with the counterpart artist, for the
// artist-detail endpoint.
type MembershipView struct {
	models.ArtistGroupMembership
	ArtistID   string  `json:"artistId"`
	ArtistName string  `json:"artistName"`
	ArtistType *string `json:"artistType,omitempty"`
}

// ListGroupMembers returns the member side of every stint of a group.
func (db *DB) ListGroupMembers(groupID string) ([]*MembershipView, error) {
	return db.listMembershipViews(`
	SELECT m.id, m.member_id, m.group_id, m.begin_date, m.end_date, m.begin_date_raw, m.end_date_raw, m.ended,
	       a.id, a.name, a.type
	FROM artist_group_memberships m
	JOIN artists a ON a.id = m.member_id
	WHERE m.group_id = ?
	ORDER BY a.name, m.begin_date_raw`, groupID)
}

// ListMemberGroups returns the group side of every stint of a member.
func (db *DB) ListMemberGroups(memberID string) ([]*MembershipView, error) {
	return db.listMembershipViews(`
	SELECT m.id, m.member_id, m.group_id, m.begin_date, m.end_date, m.begin_date_raw, m.end_date_raw, m.ended,
	       a.id, a.name, a.type
	FROM artist_group_memberships m
	JOIN artists a ON a.id = m.group_id
	WHERE m.member_id = ?
	ORDER BY a.name, m.begin_date_raw`, memberID)
}

func (db *DB) listMembershipViews(query string, arg any) ([]*MembershipView, error) {
	rows, err := db.Query(query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []*MembershipView
	for rows.Next() {
		v := &MembershipView{}
		err := rows.Scan(&v.ID, &v.MemberID, &v.GroupID, &v.BeginDate, &v.EndDate,
			&v.BeginDateRaw, &v.EndDateRaw, &v.Ended,
			&v.ArtistID, &v.ArtistName, &v.ArtistType)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}
