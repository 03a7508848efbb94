package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/address-book/internal/memstore"
	"github.com/iliyamo/address-book/internal/model"
	"github.com/iliyamo/address-book/internal/utils"
)

const testPassword = "correct-horse-1"

type server struct {
	t      *testing.T
	e      *echo.Echo
	store  *memstore.Store
	tokens *utils.TokenIssuer
	ids    map[model.Role]uint64
}

func newServer(t *testing.T) *server {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	st := memstore.New(bcrypt.MinCost)
	tokens := utils.NewTokenIssuer("test-secret", time.Hour)
	s := &server{t: t, store: st, tokens: tokens, ids: map[model.Role]uint64{}}
	for _, r := range []model.Role{model.RoleAdmin, model.RoleEditor, model.RoleUser} {
		id, err := st.Users.Create(context.Background(), string(r)+"1", testPassword, r)
		require.NoError(t, err)
		s.ids[r] = id
	}
	s.e = New(Deps{
		Log:     log,
		Tokens:  tokens,
		Users:   st.Users,
		Entries: st.Entries,
	})
	return s
}

func (s *server) token(r model.Role) string {
	s.t.Helper()
	tok, err := s.tokens.Issue(s.ids[r], string(r))
	require.NoError(s.t, err)
	return tok.Token
}

func (s *server) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if rdr != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func entryBody(name string) map[string]string {
	return map[string]string{
		"name":         name,
		"addressLine1": "Main St 1",
		"zipcode":      "1000",
		"city":         "Copenhagen",
		"telephone":    "12345678",
		"email":        "someone@example.com",
	}
}

func (s *server) createEntry(name string) uint64 {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/entries", s.token(model.RoleEditor), entryBody(name))
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decode(s.t, rec)["data"].(map[string]any)
	return uint64(data["_id"].(float64))
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "memory", body["db_state"])
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	assert.NoError(t, err)
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodGet, "/api/nope?x=1", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "API endpoint not found: GET /api/nope?x=1", body["message"])
}

func TestLogin(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": " Editor1 ", "password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	token := body["token"].(string)
	user := body["user"].(map[string]any)
	assert.Equal(t, "editor1", user["username"])
	assert.Equal(t, "editor", user["role"])
	assert.Equal(t, true, user["mustChangePassword"])
	assert.NotContains(t, rec.Body.String(), "$2a$")

	me := s.do(http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, me.Code)

	wrong := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "editor1", "password": "nope-nope-nope"})
	unknown := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "ghost", "password": "nope-nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.JSONEq(t, wrong.Body.String(), unknown.Body.String())

	missing := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "editor1"})
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestChangePasswordClearsFlag(t *testing.T) {
	s := newServer(t)
	tok := s.token(model.RoleUser)

	short := s.do(http.MethodPost, "/api/auth/change-password", tok, map[string]string{"newPassword": "short"})
	assert.Equal(t, http.StatusBadRequest, short.Code)

	rec := s.do(http.MethodPost, "/api/auth/change-password", tok, map[string]string{"newPassword": "a-much-better-one"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	me := decode(t, s.do(http.MethodGet, "/api/auth/me", tok, nil))
	assert.Equal(t, false, me["user"].(map[string]any)["mustChangePassword"])

	login := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "user1", "password": "a-much-better-one"})
	assert.Equal(t, http.StatusOK, login.Code)
}

func TestPasswordBounds(t *testing.T) {
	s := newServer(t)
	admin := s.token(model.RoleAdmin)
	userID := strconv.FormatUint(s.ids[model.RoleUser], 10)

	fieldOf := func(t *testing.T, rec *httptest.ResponseRecorder) string {
		t.Helper()
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		errs := decode(t, rec)["errors"].([]any)
		require.NotEmpty(t, errs)
		return errs[0].(map[string]any)["field"].(string)
	}

	cases := []struct {
		name     string
		password string
	}{
		{"four two-byte characters", "éééé"},
		{"73 bytes", strings.Repeat("a", 73)},
		{"80 bytes", strings.Repeat("b", 80)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/auth/change-password", s.token(model.RoleUser), map[string]string{"newPassword": tc.password})
			assert.Equal(t, "newPassword", fieldOf(t, rec))

			rec = s.do(http.MethodPost, "/api/users", admin, map[string]string{"username": "dave", "password": tc.password})
			assert.Equal(t, "password", fieldOf(t, rec))

			rec = s.do(http.MethodPut, "/api/users/"+userID+"/password", admin, map[string]string{"newPassword": tc.password})
			assert.Equal(t, "newPassword", fieldOf(t, rec))
		})
	}

	// Exactly 72 bytes and eight multibyte characters are both accepted.
	rec := s.do(http.MethodPost, "/api/auth/change-password", s.token(model.RoleUser), map[string]string{"newPassword": strings.Repeat("c", 72)})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPost, "/api/users", admin, map[string]string{"username": "erin", "password": "éééééééé"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestEntriesRequireAuthenticationFirst(t *testing.T) {
	s := newServer(t)
	cases := []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/api/entries/query", nil},
		{http.MethodGet, "/api/entries/42", nil},
		{http.MethodGet, "/api/entries/no/such/route", nil},
		{http.MethodPost, "/api/entries", "{not json"},
		{http.MethodDelete, "/api/entries/abc", nil},
	}
	for _, tc := range cases {
		rec := s.do(tc.method, tc.path, "", tc.body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}

	rec := s.do(http.MethodGet, "/api/entries/query", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token is invalid.", decode(t, rec)["message"])
}

func TestExpiredToken(t *testing.T) {
	s := newServer(t)
	old := s.tokens.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	tok, err := old.Issue(s.ids[model.RoleAdmin], "admin")
	require.NoError(t, err)

	rec := s.do(http.MethodGet, "/api/entries/query", tok.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token has expired.", decode(t, rec)["message"])
}

func TestRoleChangeAppliesToExistingToken(t *testing.T) {
	s := newServer(t)
	tok := s.token(model.RoleEditor)
	require.NoError(t, s.store.Users.UpdateRole(context.Background(), s.ids[model.RoleEditor], model.RoleUser))

	rec := s.do(http.MethodPost, "/api/entries", tok, entryBody("Ann"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, s.store.Users.Delete(context.Background(), s.ids[model.RoleEditor]))
	rec = s.do(http.MethodGet, "/api/entries/query", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEntryPermissions(t *testing.T) {
	s := newServer(t)
	id := s.createEntry("Ann")
	path := "/api/entries/" + strconv.FormatUint(id, 10)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/entries", s.token(model.RoleUser), entryBody("Bob")).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, s.token(model.RoleUser), nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPut, path, s.token(model.RoleUser), map[string]string{"city": "Aarhus"}).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, path, s.token(model.RoleEditor), nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodDelete, path, s.token(model.RoleAdmin), nil).Code)
}

func TestEntryLifecycle(t *testing.T) {
	s := newServer(t)
	editor := s.token(model.RoleEditor)
	id := s.createEntry("Ann")
	path := "/api/entries/" + strconv.FormatUint(id, 10)

	got := decode(t, s.do(http.MethodGet, path, editor, nil))["data"].(map[string]any)
	assert.Equal(t, "Ann", got["name"])
	assert.Equal(t, "editor1", got["createdBy"].(map[string]any)["username"])

	dup := entryBody("ANN")
	rec := s.do(http.MethodPost, "/api/entries", editor, dup)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPut, path, editor, map[string]string{"city": "Aarhus"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Aarhus", decode(t, rec)["data"].(map[string]any)["city"])

	rec = s.do(http.MethodPut, path, editor, map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	admin := s.token(model.RoleAdmin)
	rec = s.do(http.MethodDelete, path, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(id), decode(t, rec)["data"].(map[string]any)["_id"])

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, path, admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path, editor, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/entries/abc", editor, nil).Code)
}

func TestCreateValidationErrors(t *testing.T) {
	s := newServer(t)
	body := entryBody("")
	body["email"] = "not-an-email"
	rec := s.do(http.MethodPost, "/api/entries", s.token(model.RoleEditor), body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	out := decode(t, rec)
	assert.Equal(t, "Validation failed", out["message"])
	fields := map[string]bool{}
	for _, fe := range out["errors"].([]any) {
		fields[fe.(map[string]any)["field"].(string)] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["email"])
}

func TestQueryPagination(t *testing.T) {
	s := newServer(t)
	for i := 0; i < 12; i++ {
		s.createEntry("Person " + strconv.Itoa(i))
	}
	s.createEntry("Other")

	rec := s.do(http.MethodGet, "/api/entries/query?search=person&page=2&limit=5&sortField=name&sortOrder=asc", s.token(model.RoleUser), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Len(t, out["data"].([]any), 5)

	p := out["pagination"].(map[string]any)
	assert.Equal(t, float64(2), p["currentPage"])
	assert.Equal(t, float64(3), p["totalPages"])
	assert.Equal(t, float64(12), p["totalRecords"])
	assert.Equal(t, "name", p["sortField"])
	assert.Equal(t, "asc", p["sortOrder"])

	rec = s.do(http.MethodGet, "/api/entries/query?sortField=password&page=x", s.token(model.RoleUser), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p = decode(t, rec)["pagination"].(map[string]any)
	assert.Equal(t, "createdAt", p["sortField"])
	assert.Equal(t, float64(1), p["currentPage"])

	rec = s.do(http.MethodGet, "/api/entries/query?page=92233720368547760&limit=100", s.token(model.RoleUser), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decode(t, rec)["data"])
}

func upload(s *server, token, filename, content string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("csvFile", filename)
	require.NoError(s.t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(s.t, err)
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, ImportPath, &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestImportPartialSuccess(t *testing.T) {
	s := newServer(t)
	csv := "Name,Street,Zipcode,City,Telephone,Email\n" +
		"Ann,\"Main St 1, 2nd\",1000,Copenhagen,111,ann@example.com\n" +
		",Side St 2,2000,Aarhus,222,x@example.com\n" +
		"Bob,Low St 3,3000,Odense,333,bob@example.com\n"

	rec := upload(s, s.token(model.RoleEditor), "people.csv", csv)
	require.Equal(t, http.StatusMultiStatus, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	assert.NotEmpty(t, out["batchId"])

	summary := out["summary"].(map[string]any)
	assert.Equal(t, float64(2), summary["successCount"])
	assert.Equal(t, float64(1), summary["errorCount"])
	errs := summary["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, float64(3), errs[0].(map[string]any)["row"])

	list := decode(t, s.do(http.MethodGet, "/api/entries/query?search=main", s.token(model.RoleUser), nil))
	first := list["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "Main St 1", first["addressLine1"])
	assert.Equal(t, "2nd", first["addressLine2"])
}

func TestImportRejections(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusForbidden, upload(s, s.token(model.RoleUser), "a.csv", "Name\nAnn\n").Code)
	assert.Equal(t, http.StatusBadRequest, upload(s, s.token(model.RoleEditor), "a.txt", "Name\nAnn\n").Code)
	assert.Equal(t, http.StatusBadRequest, upload(s, s.token(model.RoleEditor), "a.csv", "").Code)

	rec := s.do(http.MethodPost, ImportPath, s.token(model.RoleEditor), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExport(t *testing.T) {
	s := newServer(t)
	tok := s.token(model.RoleUser)

	rec := s.do(http.MethodGet, "/api/entries/export/csv", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.createEntry("Ann")
	rec = s.do(http.MethodGet, "/api/entries/export/csv", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/csv"))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "entries_export_")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID,Name,"))
	assert.Contains(t, lines[1], "editor1")
}

func TestProtected(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodGet, "/api/protected", s.token(model.RoleUser), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome, user1. You can view protected content.", decode(t, rec)["message"])
}

func TestUserAdministration(t *testing.T) {
	s := newServer(t)
	admin := s.token(model.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/users", s.token(model.RoleEditor), nil).Code)

	rec := s.do(http.MethodPost, "/api/users", admin, map[string]string{"username": "Carol", "password": "carol-pass-1", "role": "editor"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "carol", created["username"])
	id := strconv.FormatInt(int64(created["id"].(float64)), 10)

	assert.Equal(t, http.StatusConflict,
		s.do(http.MethodPost, "/api/users", admin, map[string]string{"username": "carol", "password": "carol-pass-1"}).Code)
	assert.Equal(t, http.StatusBadRequest,
		s.do(http.MethodPost, "/api/users", admin, map[string]string{"username": "x", "password": "short", "role": "viewer"}).Code)

	rec = s.do(http.MethodPut, "/api/users/"+id+"/role", admin, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", decode(t, rec)["data"].(map[string]any)["role"])

	assert.Equal(t, http.StatusOK, s.do(http.MethodPut, "/api/users/"+id+"/password", admin, map[string]string{"newPassword": "reset-pass-1"}).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/users/"+id+"/force-reset", admin, nil).Code)

	self := strconv.FormatUint(s.ids[model.RoleAdmin], 10)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodDelete, "/api/users/"+self, admin, nil).Code)

	editorID := strconv.FormatUint(s.ids[model.RoleEditor], 10)
	s.createEntry("Ann")
	assert.Equal(t, http.StatusConflict, s.do(http.MethodDelete, "/api/users/"+editorID, admin, nil).Code)

	assert.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/api/users/"+id, admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/users/"+id, admin, nil).Code)

	list := decode(t, s.do(http.MethodGet, "/api/users", admin, nil))
	assert.Len(t, list["data"].([]any), 3)
	assert.NotContains(t, s.do(http.MethodGet, "/api/users", admin, nil).Body.String(), "$2a$")
}
