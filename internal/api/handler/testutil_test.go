package handler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"chathub/internal/api/middleware"
	"chathub/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps every query on the same in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Category{}, &model.Server{}, &model.Channel{}))
	return db
}

// newTestRouter wires the handlers the way cmd/api does, minus the hub.
func newTestRouter(db *gorm.DB, uploadDir string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.POST("/api/v1/register", Register(db))
	r.POST("/api/v1/login", Login(db, testSecret))
	r.GET("/api/v1/servers", middleware.OptionalAuthMiddleware(db, testSecret), ListServers(db))

	auth := r.Group("/api/v1")
	auth.Use(middleware.AuthMiddleware(db, testSecret))
	auth.POST("/servers", CreateServer(db, nil))
	auth.GET("/servers/:id", GetServer(db))
	auth.PUT("/servers/:id", UpdateServer(db, nil))
	auth.DELETE("/servers/:id", DeleteServer(db, nil))
	auth.POST("/servers/:id/icon", UploadServerIcon(db, nil, uploadDir))
	auth.POST("/servers/:id/members", JoinServer(db, nil))
	auth.DELETE("/servers/:id/members", LeaveServer(db, nil))
	auth.POST("/servers/:id/channels", CreateChannel(db))
	auth.GET("/categories", ListCategories(db))
	auth.POST("/categories", middleware.RoleCheck("admin"), CreateCategory(db))
	auth.DELETE("/categories/:id", middleware.RoleCheck("admin"), DeleteCategory(db))
	auth.PUT("/users/change-password", ChangePassword(db))

	return r
}

func createUser(t *testing.T, db *gorm.DB, username, role string) model.User {
	t.Helper()

	user := model.User{Username: username, Password: "password123", Role: role}
	require.NoError(t, db.Create(&user).Error)
	// Reload so defaulted columns (token version) match what the middleware
	// will read back during token verification.
	require.NoError(t, db.First(&user, user.ID).Error)
	return user
}

func tokenFor(t *testing.T, user model.User) string {
	t.Helper()

	token, err := middleware.NewToken(&user, testSecret)
	require.NoError(t, err)
	return token
}

func createCategory(t *testing.T, db *gorm.DB, name string) model.Category {
	t.Helper()

	category := model.Category{Name: name}
	require.NoError(t, db.Create(&category).Error)
	return category
}

func createServer(t *testing.T, db *gorm.DB, name string, owner model.User, category model.Category, members ...model.User) model.Server {
	t.Helper()

	server := model.Server{Name: name, OwnerID: owner.ID, CategoryID: category.ID}
	require.NoError(t, db.Create(&server).Error)
	for i := range members {
		require.NoError(t, db.Model(&server).Association("Members").Append(&members[i]))
	}
	return server
}

func doRequest(r *gin.Engine, method, path string, body io.Reader, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doGet(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	return doRequest(r, http.MethodGet, path, nil, token)
}
