package handler

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/quickshow-booking/internal/config"
	"github.com/iliyamo/quickshow-booking/internal/model"
	"github.com/iliyamo/quickshow-booking/internal/repository"
	"github.com/iliyamo/quickshow-booking/internal/utils"
)

func authServer(t *testing.T) (*echo.Echo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	cfg := config.Config{
		JWTSecret:      jwtSecret,
		AccessTTLMin:   15,
		RefreshTTLDays: 7,
		BcryptCost:     4,
		AdminEmails:    []string{"root@quickshow.test"},
	}
	h := NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db))
	e := echo.New()
	e.POST("/v1/auth/register", h.Register)
	e.POST("/v1/auth/logout", h.Logout)
	return e, mock
}

func TestRegister_AdminEmailGetsAdminRole(t *testing.T) {
	e, mock := authServer(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (email, name, password_hash, role) VALUES (?,?,?,?)")).
		WithArgs("root@quickshow.test", "root", sqlmock.AnyArg(), model.RoleAdmin).
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)")).
		WithArgs(uint64(42), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := serve(e, http.MethodPost, "/v1/auth/register",
		`{"email":" Root@QuickShow.test ","password":"correct-horse"}`, nil)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp authResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, userPart{ID: 42, Email: "root@quickshow.test", Name: "root", Role: model.RoleAdmin}, resp.User)

	claims, err := utils.ParseAccessToken(jwtSecret, resp.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, claims.Role)
	assert.NotEmpty(t, resp.Refresh.Token)
}

func TestRegister_Rejections(t *testing.T) {
	e, mock := authServer(t)
	mock.ExpectExec("INSERT INTO users").
		WithArgs("ana@example.com", "Ana", sqlmock.AnyArg(), model.RoleCustomer).
		WillReturnError(&mysql.MySQLError{Number: 1062})

	rec := serve(e, http.MethodPost, "/v1/auth/register", `{"email":"ana@example.com","password":"short"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(e, http.MethodPost, "/v1/auth/register", `{"email":"not-an-email","password":"long-enough"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(e, http.MethodPost, "/v1/auth/register", `{"email":"ana@example.com","name":"Ana","password":"long-enough"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogout(t *testing.T) {
	e, mock := authServer(t)
	raw := "0123abcd"
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=?")).
		WithArgs(utils.HashRefreshRaw(raw)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE user_id=?")).
		WithArgs(uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	rec := serve(e, http.MethodPost, "/v1/auth/logout", `{"refresh_token":"`+raw+`"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodPost, "/v1/auth/logout", "", map[string]string{"Authorization": bearer(t, 7, model.RoleCustomer)})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(e, http.MethodPost, "/v1/auth/logout", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
