package database

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func newMockRepository(t *testing.T) (*PgRepository, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New()
	assert.NoError(t, err, "expected sqlmock connection to open")
	t.Cleanup(func() { conn.Close() })

	return &PgRepository{conn: conn}, mock
}

func TestCreateRoomRollsBackOnMembershipFailure(t *testing.T) {
	db, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO rooms").
		WithArgs("r-1", "Team", 1, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "name", "creator_id", "created_at"}).
			AddRow(7, "r-1", "Team", 1, time.Now().UTC()))
	mock.ExpectExec("INSERT INTO room_memberships").
		WithArgs(7, 1, sqlmock.AnyArg()).
		WillReturnError(errors.New("membership insert failed"))
	mock.ExpectRollback()

	_, err := db.CreateRoom(CreateRoomParams{
		ExternalId: "r-1",
		Name:       "Team",
		CreatorId:  1,
		MemberIds:  []int{1, 2},
	})
	assert.Error(t, err, "expected membership failure to surface")
	assert.NoError(t, mock.ExpectationsWereMet(), "expected the transaction to roll back, leaving no room row")
}

func TestCreateRoomCommitsRoomAndMemberships(t *testing.T) {
	db, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO rooms").
		WithArgs("r-1", "Team", 1, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "name", "creator_id", "created_at"}).
			AddRow(7, "r-1", "Team", 1, time.Now().UTC()))
	mock.ExpectExec("INSERT INTO room_memberships").
		WithArgs(7, 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO room_memberships").
		WithArgs(7, 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, display_name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name"}).
			AddRow(1, "alice").
			AddRow(2, "bob"))
	mock.ExpectCommit()

	room, err := db.CreateRoom(CreateRoomParams{
		ExternalId: "r-1",
		Name:       "Team",
		CreatorId:  1,
		MemberIds:  []int{1, 2},
	})
	assert.NoError(t, err, "expected room creation to succeed")
	assert.Equal(t, 7, room.Id)
	assert.Len(t, room.Members, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchMessagesEscapesLikePattern(t *testing.T) {
	db, mock := newMockRepository(t)

	mock.ExpectQuery("ILIKE").
		WithArgs(5, `\%hello\_`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	msgs, err := db.SearchMessages(5, "%hello_")
	assert.NoError(t, err, "expected search to succeed")
	assert.Empty(t, msgs)
	assert.NoError(t, mock.ExpectationsWereMet(), "expected the term to reach the query with wildcards escaped")
}

func TestEscapeLikePattern(t *testing.T) {
	tests := []struct {
		term     string
		expected string
	}{
		{"hello", "hello"},
		{"100%", `100\%`},
		{"under_score", `under\_score`},
		{`back\slash`, `back\\slash`},
		{`%_\`, `\%\_\\`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, escapeLikePattern(tt.term))
	}
}
