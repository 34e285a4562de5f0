package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/quickshow-booking/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestShowRepo_InsertClaims_SingleStatement(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO show_seat_claims (show_id, seat_id, booking_id) VALUES (?, ?, ?), (?, ?, ?)")).
		WithArgs("s1", "A1", "b1", "s1", "A2", "b1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.InsertClaims(context.Background(), "s1", []string{"A1", "A2"}, "b1"))
}

func TestShowRepo_InsertClaims_MapsDriverErrors(t *testing.T) {
	cases := []struct {
		name string
		code uint16
		want error
	}{
		{"duplicate claim", 1062, ErrSeatTaken},
		{"missing show", 1452, ErrShowNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectExec("INSERT INTO show_seat_claims").
				WillReturnError(&mysql.MySQLError{Number: tc.code})

			err := NewShowRepo(db).InsertClaims(context.Background(), "s1", []string{"A1"}, "b1")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestShowRepo_DeleteClaims_OnlyHolder(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"DELETE FROM show_seat_claims WHERE show_id = ? AND booking_id = ? AND seat_id IN (?, ?)")).
		WithArgs("s1", "b1", "A1", "A2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := NewShowRepo(db).DeleteClaims(context.Background(), "s1", []string{"A1", "A2"}, "b1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestShowRepo_Delete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowRepo(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM shows WHERE id = ?")).
		WithArgs("s1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM shows WHERE id = ?")).
		WithArgs("s2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM shows WHERE id = ?")).
		WithArgs("s3").WillReturnError(&mysql.MySQLError{Number: 1451})

	assert.NoError(t, repo.Delete(ctx, "s1"))
	assert.ErrorIs(t, repo.Delete(ctx, "s2"), ErrShowNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "s3"), ErrConflict)
}

func TestShowRepo_Claims(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT seat_id, booking_id FROM show_seat_claims WHERE show_id = ?").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"seat_id", "booking_id"}).
			AddRow("A1", "b1").AddRow("A2", "b1").AddRow("C4", "b2"))

	claims, err := NewShowRepo(db).Claims(context.Background(), "s1")
	require.NoError(t, err)
	show := model.Show{ID: "s1", OccupiedSeats: claims}
	assert.Equal(t, []string{"A1", "A2", "C4"}, show.SeatIDs())
	assert.Equal(t, []string{"b1", "b2"}, show.HolderIDs())
}

func TestShowRepo_Get_NotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM shows WHERE id = ?").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := NewShowRepo(db).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrShowNotFound)
}

func TestBookingRepo_MarkPaid_Conditional(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)
	q := regexp.QuoteMeta("UPDATE bookings SET status = 'paid', payment_link = '' WHERE id = ? AND status = 'pending'")

	mock.ExpectExec(q).WithArgs("b1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("b1").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkPaid(context.Background(), "b1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkPaid(context.Background(), "b1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBookingRepo_Get_DecodesSeats(t *testing.T) {
	db, mock := newMock(t)
	created := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM bookings WHERE id = \\? FOR UPDATE").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "show_id", "user_id", "seats", "amount_cents", "status", "payment_link", "created_at"}).
			AddRow("b1", "s1", 7, []byte(`["A1","A2"]`), 2400, "pending", "https://pay", created))

	b, err := NewBookingRepo(db).GetForUpdate(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, b.Seats)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.Equal(t, created.Add(10*time.Minute), b.HoldDeadline(10*time.Minute))
}

func TestBookingRepo_Get_NotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM bookings WHERE id = ?").WithArgs("gone").WillReturnError(sql.ErrNoRows)

	_, err := NewBookingRepo(db).Get(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestUserRepo_ContactsForBookings(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT DISTINCT u.id, u.email, u.name FROM users u").
		WithArgs("b1", "b2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).AddRow(7, "ana@example.com", "Ana"))

	contacts, err := NewUserRepo(db).ContactsForBookings(context.Background(), []string{"b1", "b2"})
	require.NoError(t, err)
	assert.Equal(t, []model.Contact{{UserID: 7, Email: "ana@example.com", Name: "Ana"}}, contacts)
}

func TestUserRepo_Create_DuplicateEmail(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("INSERT INTO users").WillReturnError(&mysql.MySQLError{Number: 1062})

	_, err := NewUserRepo(db).Create(context.Background(), "Ana@Example.com ", "Ana", "pw", model.RoleCustomer, 4)
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestOutboxRepo_AppendAndMark(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOutboxRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_events (event_type, payload) VALUES (?, ?)")).
		WithArgs("booking.paid", []byte(`{"booking_id":"b1"}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id IN (?, ?)")).
		WithArgs(uint64(1), uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.Append(context.Background(), "booking.paid", map[string]string{"booking_id": "b1"}))
	require.NoError(t, repo.MarkPublished(context.Background(), 1, 2))
}

func TestTxManager_CommitsAndCarriesTx(t *testing.T) {
	db, mock := newMock(t)
	tm := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM bookings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tm.WithinTx(context.Background(), func(ctx context.Context) error {
		assert.True(t, InTx(ctx))
		_, err := NewBookingRepo(db).DeletePending(ctx, "b1")
		return err
	})
	require.NoError(t, err)
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := NewTxManager(db).WithinTx(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestTxManager_ReplaysDeadlock(t *testing.T) {
	db, mock := newMock(t)
	tm := NewTxManager(db)
	calls := 0

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	err := tm.WithinTx(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestTxManager_NestedJoinsOuter(t *testing.T) {
	db, mock := newMock(t)
	tm := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := tm.WithinTx(context.Background(), func(ctx context.Context) error {
		return tm.WithinTx(ctx, func(context.Context) error { return nil })
	})
	require.NoError(t, err)
}

func TestFavoriteRepo_Toggle(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFavoriteRepo(db)
	del := regexp.QuoteMeta("DELETE FROM user_favorites WHERE user_id = ? AND movie_id = ?")

	mock.ExpectExec(del).WithArgs(uint64(7), "438631").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO user_favorites (user_id, movie_id) VALUES (?, ?)")).
		WithArgs(uint64(7), "438631").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(del).WithArgs(uint64(7), "438631").WillReturnResult(sqlmock.NewResult(0, 1))

	added, err := repo.Toggle(context.Background(), 7, "438631")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.Toggle(context.Background(), 7, "438631")
	require.NoError(t, err)
	assert.False(t, added)
}

func TestFavoriteRepo_List(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT movie_id FROM user_favorites WHERE user_id = ?").
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"movie_id"}).AddRow("438631").AddRow("693134"))
	mock.ExpectQuery("SELECT movie_id FROM user_favorites WHERE user_id = ?").
		WithArgs(uint64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"movie_id"}))

	ids, err := NewFavoriteRepo(db).List(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"438631", "693134"}, ids)

	ids, err = NewFavoriteRepo(db).List(context.Background(), 8)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NotNil(t, ids)
}
