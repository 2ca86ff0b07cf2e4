package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/herdwatch/herdwatch/internal/api/auth"
	"github.com/herdwatch/herdwatch/internal/config"
	"github.com/herdwatch/herdwatch/internal/database"
	"github.com/herdwatch/herdwatch/internal/database/mock"
	"github.com/herdwatch/herdwatch/internal/export"
	"github.com/herdwatch/herdwatch/internal/storage"
	"github.com/herdwatch/herdwatch/web/templates"
	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"
)

type HandlerTestSuite struct {
	suite.Suite
	db     *mock.MockDB
	images *storage.Store
	router *gin.Engine
}

func (s *HandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	s.db = mock.NewMockDB()
	var err error
	s.images, err = storage.New(s.T().TempDir())
	s.Require().NoError(err)

	cfg := &config.Config{
		Upload: &config.UploadConfig{MaxSize: 1 << 20},
		Export: &config.ExportConfig{ThumbnailSize: 32},
		Stream: &config.StreamConfig{URL: "http://camera.local:8080/stream"},
	}

	for _, acc := range []struct {
		name string
		role database.Role
	}{{"admin", database.RoleAdmin}, {"bob", database.RoleUser}} {
		hash, err := auth.HashPassword(acc.name + "-pw")
		s.Require().NoError(err)
		_, err = s.db.CreateAccount(context.Background(), acc.name, hash, acc.role)
		s.Require().NoError(err)
	}

	provider := auth.NewLocalProvider(s.db)
	h := New(s.db, provider, s.images, export.New(s.images, cfg.Export.ThumbnailSize), cfg)

	tpl, err := templates.Load()
	s.Require().NoError(err)

	s.router = gin.New()
	s.router.SetHTMLTemplate(tpl)
	s.router.Use(sessions.Sessions("herdwatch", cookie.NewStore([]byte("test-secret"))))

	s.router.GET("/", h.Home)
	s.router.GET("/login", h.LoginPage)
	s.router.POST("/login", h.Login)
	s.router.GET("/logout", h.Logout)
	s.router.GET("/healthz", h.Healthz)
	s.router.POST("/upload", h.Upload)

	pages := s.router.Group("/", provider.RequireAuth())
	pages.GET("/dashboard", h.Dashboard)
	pages.GET("/download_xlsx", h.DownloadXLSX)
	pages.GET("/realtime", h.Realtime)
	pages.GET("/images/*filepath", h.Image)

	s.router.POST("/delete_image/:id", provider.RequireAuthJSON(), h.DeleteImage)

	admin := s.router.Group("/", provider.RequireAuth(), provider.RequireAdmin())
	admin.GET("/users", h.Users)
	admin.GET("/add_user", h.AddUserPage)
	admin.POST("/add_user", h.AddUser)
	admin.GET("/edit_user/:username", h.EditUserPage)
	admin.POST("/edit_user/:username", h.EditUser)
	admin.GET("/delete_user/:username", h.DeleteUser)
}

func (s *HandlerTestSuite) serve(req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerTestSuite) get(path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	return s.serve(httptest.NewRequest(http.MethodGet, path, nil), cookies)
}

func (s *HandlerTestSuite) postForm(path string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.serve(req, cookies)
}

func (s *HandlerTestSuite) login(username string) []*http.Cookie {
	w := s.postForm("/login", url.Values{"username": {username}, "password": {username + "-pw"}}, nil)
	s.Require().Equal(http.StatusFound, w.Code)
	s.Require().Equal("/dashboard", w.Header().Get("Location"))
	return w.Result().Cookies()
}

func (s *HandlerTestSuite) upload(fields map[string]string, filename string, content []byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		s.Require().NoError(mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("image", filename)
		s.Require().NoError(err)
		_, err = fw.Write(content)
		s.Require().NoError(err)
	}
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.serve(req, nil)
}

// seed inserts 36.5 at 08:00 and 38.2 at 14:00 on the same day.
func (s *HandlerTestSuite) seed() (database.Reading, database.Reading) {
	times := []time.Time{
		time.Date(2025, 3, 14, 8, 0, 0, 0, time.Local),
		time.Date(2025, 3, 14, 14, 0, 0, 0, time.Local),
	}
	i := 0
	s.db.Now = func() time.Time {
		t := times[i%len(times)]
		i++
		return t
	}

	png := filepath.Join(s.images.Dir(), "cow.png")
	s.Require().NoError(imaging.Save(imaging.New(64, 48, color.NRGBA{G: 200, A: 255}), png))

	cool, err := s.db.CreateReading(context.Background(), "36.5", "cow.png")
	s.Require().NoError(err)
	hot, err := s.db.CreateReading(context.Background(), "38.2", "missing.jpg")
	s.Require().NoError(err)
	return *cool, *hot
}

func (s *HandlerTestSuite) allReadings() []database.Reading {
	readings, err := s.db.GetReadings(context.Background(), nil)
	s.Require().NoError(err)
	return readings
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func decodeJSON(body *bytes.Buffer) map[string]any {
	var m map[string]any
	_ = json.Unmarshal(body.Bytes(), &m)
	return m
}

func (s *HandlerTestSuite) TestHome_RedirectsToLogin() {
	w := s.get("/", nil)
	s.Equal(http.StatusFound, w.Code)
	s.Equal("/login", w.Header().Get("Location"))
}

func (s *HandlerTestSuite) TestLoginPage() {
	w := s.get("/login", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `action="/login"`)
}

func (s *HandlerTestSuite) TestLogin_InvalidCredentials() {
	for _, form := range []url.Values{
		{"username": {"bob"}, "password": {"nope"}},
		{"username": {"ghost"}, "password": {"bob-pw"}},
		{"username": {""}, "password": {""}},
	} {
		w := s.postForm("/login", form, nil)
		s.Equal(http.StatusUnauthorized, w.Code)
		s.Contains(w.Body.String(), "Invalid username or password")
	}
}

func (s *HandlerTestSuite) TestLogout() {
	cookies := s.login("bob")
	w := s.get("/logout", cookies)
	s.Equal(http.StatusFound, w.Code)
	s.Equal("/login", w.Header().Get("Location"))

	w = s.get("/dashboard", w.Result().Cookies())
	s.Equal(http.StatusFound, w.Code)
	s.Equal("/login", w.Header().Get("Location"))
}

func (s *HandlerTestSuite) TestDashboard_RequiresSession() {
	w := s.get("/dashboard", nil)
	s.Equal(http.StatusFound, w.Code)
	s.Equal("/login", w.Header().Get("Location"))
}

func (s *HandlerTestSuite) TestDashboard_Filters() {
	s.seed()
	cookies := s.login("bob")

	tests := []struct {
		query   string
		want    []string
		notWant []string
	}{
		{query: "", want: []string{"36.5", "38.2"}},
		{query: "temp_min=37", want: []string{"38.2"}, notWant: []string{"36.5"}},
		{query: "start_time=09:00", want: []string{"38.2"}, notWant: []string{"36.5"}},
		{query: "temp_min=37&start_time=09:00", want: []string{"38.2"}, notWant: []string{"36.5"}},
		{query: "temp_min=40", want: []string{"No readings match the filter."}, notWant: []string{"36.5", "38.2"}},
		{query: "temp_min=warm", want: []string{"36.5", "38.2", `value="warm"`}},
	}

	for _, tt := range tests {
		w := s.get("/dashboard?"+tt.query, cookies)
		s.Require().Equal(http.StatusOK, w.Code, tt.query)
		body := w.Body.String()
		for _, want := range tt.want {
			s.Contains(body, want, tt.query)
		}
		for _, notWant := range tt.notWant {
			s.NotContains(body, ">"+notWant+"<", tt.query)
		}
	}
}

func (s *HandlerTestSuite) TestDashboard_NewestFirst() {
	s.seed()
	body := s.get("/dashboard", s.login("bob")).Body.String()
	s.Less(strings.Index(body, "38.2"), strings.Index(body, "36.5"))
}

func (s *HandlerTestSuite) TestDashboard_AdminSeesAccounts() {
	w := s.get("/dashboard", s.login("admin"))
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "/edit_user/bob")

	w = s.get("/dashboard", s.login("bob"))
	s.Equal(http.StatusOK, w.Code)
	s.NotContains(w.Body.String(), "/edit_user/")
}

func (s *HandlerTestSuite) TestDownloadXLSX() {
	cookies := s.login("bob")

	w := s.get("/download_xlsx", cookies)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("No data to export", w.Body.String())

	s.seed()

	w = s.get("/download_xlsx?temp_min=40", cookies)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.get("/download_xlsx", cookies)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(export.ContentType, w.Header().Get("Content-Type"))
	s.Contains(w.Header().Get("Content-Disposition"), "attachment")

	f, err := excelize.OpenReader(w.Body)
	s.Require().NoError(err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	s.Require().NoError(err)
	s.Len(rows, 3)

	w = s.get("/download_xlsx?temp_min=37", cookies)
	s.Require().Equal(http.StatusOK, w.Code)
	f2, err := excelize.OpenReader(w.Body)
	s.Require().NoError(err)
	defer f2.Close()
	rows, err = f2.GetRows(export.SheetName)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Equal("38.2", rows[1][1])
}

func (s *HandlerTestSuite) TestDeleteImage() {
	cool, hot := s.seed()

	w := s.serve(httptest.NewRequest(http.MethodPost, "/delete_image/1", nil), nil)
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal(false, decodeJSON(w.Body)["ok"])
	s.Len(s.allReadings(), 2)

	cookies := s.login("bob")

	w = s.serve(httptest.NewRequest(http.MethodPost, "/delete_image/abc", nil), cookies)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.serve(httptest.NewRequest(http.MethodPost, "/delete_image/999", nil), cookies)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(false, decodeJSON(w.Body)["ok"])

	w = s.serve(httptest.NewRequest(http.MethodPost, "/delete_image/"+itoa(cool.ID), nil), cookies)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(true, decodeJSON(w.Body)["ok"])
	s.False(s.images.Exists(cool.ImagePath))

	remaining := s.allReadings()
	s.Require().Len(remaining, 1)
	s.Equal(hot.ID, remaining[0].ID)

	// the image of this reading is already missing
	w = s.serve(httptest.NewRequest(http.MethodPost, "/delete_image/"+itoa(hot.ID), nil), cookies)
	s.Equal(http.StatusOK, w.Code)
	s.Empty(s.allReadings())
}

func (s *HandlerTestSuite) TestUpload() {
	w := s.upload(map[string]string{"temperature": "38.5"}, "My Cow.jpg", []byte("jpeg-bytes"))
	s.Require().Equal(http.StatusOK, w.Code)

	readings := s.allReadings()
	s.Require().Len(readings, 1)
	s.Equal("38.5", readings[0].Temperature)
	s.True(strings.HasPrefix(readings[0].ImagePath, "My_Cow_"))
	s.True(s.images.Exists(readings[0].ImagePath))

	data, err := os.ReadFile(filepath.Join(s.images.Dir(), readings[0].ImagePath))
	s.Require().NoError(err)
	s.Equal("jpeg-bytes", string(data))
}

func (s *HandlerTestSuite) TestUpload_SameFilenameDoesNotOverwrite() {
	s.Require().Equal(http.StatusOK, s.upload(map[string]string{"temperature": "1"}, "cow.jpg", []byte("a")).Code)
	s.Require().Equal(http.StatusOK, s.upload(map[string]string{"temperature": "2"}, "cow.jpg", []byte("b")).Code)

	readings := s.allReadings()
	s.Require().Len(readings, 2)
	s.NotEqual(readings[0].ImagePath, readings[1].ImagePath)
	s.True(s.images.Exists(readings[0].ImagePath))
	s.True(s.images.Exists(readings[1].ImagePath))
}

func (s *HandlerTestSuite) TestUpload_KeepsMalformedTemperature() {
	s.Require().Equal(http.StatusOK, s.upload(map[string]string{"temperature": "hot!"}, "cow.jpg", []byte("a")).Code)
	readings := s.allReadings()
	s.Require().Len(readings, 1)
	s.Equal("hot!", readings[0].Temperature)
}

func (s *HandlerTestSuite) TestUpload_MissingFields() {
	w := s.upload(map[string]string{}, "cow.jpg", []byte("a"))
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.upload(map[string]string{"temperature": "37"}, "", nil)
	s.Equal(http.StatusBadRequest, w.Code)

	s.Empty(s.allReadings())
	entries, err := os.ReadDir(s.images.Dir())
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *HandlerTestSuite) TestUpload_TooLarge() {
	w := s.upload(map[string]string{"temperature": "37"}, "cow.jpg", bytes.Repeat([]byte("x"), 2<<20))
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Upload too large", w.Body.String())

	s.Empty(s.allReadings())
	entries, err := os.ReadDir(s.images.Dir())
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *HandlerTestSuite) TestUpload_StoreFailureRemovesImage() {
	s.db.CreateReadingError = os.ErrPermission

	w := s.upload(map[string]string{"temperature": "37"}, "cow.jpg", []byte("a"))
	s.Equal(http.StatusInternalServerError, w.Code)

	entries, err := os.ReadDir(s.images.Dir())
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *HandlerTestSuite) TestImage() {
	s.seed()

	w := s.get("/images/cow.png", nil)
	s.Equal(http.StatusFound, w.Code)

	cookies := s.login("bob")
	w = s.get("/images/cow.png", cookies)
	s.Equal(http.StatusOK, w.Code)

	w = s.get("/images/missing.jpg", cookies)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.get("/images/../../etc/passwd", cookies)
	s.NotEqual(http.StatusOK, w.Code)
}

func (s *HandlerTestSuite) TestAdminRoutes_ForbiddenForUsers() {
	cookies := s.login("bob")
	for _, path := range []string{"/users", "/add_user", "/edit_user/admin", "/delete_user/admin"} {
		w := s.get(path, cookies)
		s.Equal(http.StatusForbidden, w.Code, path)
		s.Equal("Forbidden", w.Body.String(), path)
	}
	w := s.postForm("/add_user", url.Values{"username": {"eve"}, "password": {"x"}, "role": {"admin"}}, cookies)
	s.Equal(http.StatusForbidden, w.Code)

	_, err := s.db.GetAccount(context.Background(), "eve")
	s.ErrorIs(err, database.ErrAccountNotFound)
	_, err = s.db.GetAccount(context.Background(), "admin")
	s.NoError(err)
}

func (s *HandlerTestSuite) TestUsers() {
	w := s.get("/users", s.login("admin"))
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "/edit_user/admin")
	s.Contains(w.Body.String(), "/edit_user/bob")
	s.NotContains(w.Body.String(), "$2a$")
}

func (s *HandlerTestSuite) TestAddUser() {
	cookies := s.login("admin")

	w := s.get("/add_user", cookies)
	s.Equal(http.StatusOK, w.Code)

	w = s.postForm("/add_user", url.Values{"username": {"carol"}, "password": {"carol-pw"}, "role": {"user"}}, cookies)
	s.Equal(http.StatusFound, w.Code)

	account, err := s.db.GetAccount(context.Background(), "carol")
	s.Require().NoError(err)
	s.Equal(database.RoleUser, account.Role)
	s.NotEqual("carol-pw", account.Password)
	s.login("carol")

	w = s.postForm("/add_user", url.Values{"username": {"carol"}, "password": {"other"}, "role": {"admin"}}, cookies)
	s.Equal(http.StatusConflict, w.Code)
	account, err = s.db.GetAccount(context.Background(), "carol")
	s.Require().NoError(err)
	s.Equal(database.RoleUser, account.Role)

	w = s.postForm("/add_user", url.Values{"username": {"dave"}, "password": {"pw"}, "role": {"root"}}, cookies)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.postForm("/add_user", url.Values{"username": {"dave"}, "role": {"user"}}, cookies)
	s.Equal(http.StatusBadRequest, w.Code)

	_, err = s.db.GetAccount(context.Background(), "dave")
	s.ErrorIs(err, database.ErrAccountNotFound)
}

func (s *HandlerTestSuite) TestEditUser() {
	cookies := s.login("admin")

	w := s.get("/edit_user/ghost", cookies)
	s.Equal(http.StatusNotFound, w.Code)
	w = s.postForm("/edit_user/ghost", url.Values{"password": {"x"}, "role": {"user"}}, cookies)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.get("/edit_user/bob", cookies)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `<option value="user" selected>`)

	w = s.postForm("/edit_user/bob", url.Values{"password": {"x"}, "role": {"superuser"}}, cookies)
	s.Equal(http.StatusBadRequest, w.Code)

	before, err := s.db.GetAccount(context.Background(), "bob")
	s.Require().NoError(err)

	w = s.postForm("/edit_user/bob", url.Values{"password": {""}, "role": {"admin"}}, cookies)
	s.Equal(http.StatusFound, w.Code)
	after, err := s.db.GetAccount(context.Background(), "bob")
	s.Require().NoError(err)
	s.Equal(database.RoleAdmin, after.Role)
	s.Equal(before.Password, after.Password)

	w = s.postForm("/edit_user/bob", url.Values{"password": {"new-pw"}, "role": {"user"}}, cookies)
	s.Equal(http.StatusFound, w.Code)
	w = s.postForm("/login", url.Values{"username": {"bob"}, "password": {"new-pw"}}, nil)
	s.Equal(http.StatusFound, w.Code)
}

func (s *HandlerTestSuite) TestDeleteUser() {
	cookies := s.login("admin")

	w := s.get("/delete_user/admin", cookies)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(w.Body.String(), "cannot delete your own account")
	_, err := s.db.GetAccount(context.Background(), "admin")
	s.NoError(err)

	w = s.get("/delete_user/ghost", cookies)
	s.Equal(http.StatusFound, w.Code)
	count, err := s.db.CountAccounts(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(2), count)

	w = s.get("/delete_user/bob", cookies)
	s.Equal(http.StatusFound, w.Code)
	_, err = s.db.GetAccount(context.Background(), "bob")
	s.ErrorIs(err, database.ErrAccountNotFound)
}

func (s *HandlerTestSuite) TestRealtime() {
	w := s.get("/realtime", nil)
	s.Equal(http.StatusFound, w.Code)

	w = s.get("/realtime", s.login("bob"))
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "http://camera.local:8080/stream")
}

func (s *HandlerTestSuite) TestHealthz() {
	w := s.get("/healthz", nil)
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"status":"ok"}`, w.Body.String())
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}
