package main

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"chathub/internal/api/handler"
	"chathub/internal/api/middleware"
	"chathub/internal/api/websocket"
	"chathub/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	JWTSecret  string
	ListenAddr string
	DBPath     string
	UploadDir  string
}

func loadConfig() Config {
	// .env is a development convenience; real environments set the variables
	// directly.
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":9090"),
		DBPath:     getEnv("DATABASE_PATH", "data/chathub.db"),
		UploadDir:  getEnv("UPLOAD_DIR", "data/uploads"),
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = loadOrCreateJWTSecret(getEnv("JWT_SECRET_FILE", "data/.sk"))
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func loadOrCreateJWTSecret(path string) string {
	secretBytes, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Println("JWT secret file not found, generating a new one...")
			newSecret, err := generateRandomString(32)
			if err != nil {
				log.Fatalf("failed to generate JWT secret: %v", err)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
				log.Fatalf("failed to create secret directory: %v", err)
			}
			if err := os.WriteFile(path, []byte(newSecret), 0600); err != nil {
				log.Fatalf("failed to write JWT secret to file: %v", err)
			}
			log.Printf("Generated and saved new JWT secret to %s", path)
			return newSecret
		}
		log.Fatalf("failed to read JWT secret file: %v", err)
	}
	log.Printf("Loaded JWT secret from %s", path)
	return string(secretBytes)
}

func generateRandomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func initDB(path string) *gorm.DB {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	db.AutoMigrate(&model.User{}, &model.Category{}, &model.Server{}, &model.Channel{})

	var count int64
	db.Model(&model.User{}).Count(&count)
	if count == 0 {
		admin := model.User{
			Username: "admin",
			Password: "admin123",
			Role:     "admin",
		}
		db.Create(&admin)
		log.Println("Created initial admin user. Password: 'admin123'")
	}

	return db
}

func setupRouter(db *gorm.DB, cfg Config, hub *websocket.Hub) http.Handler {
	router := gin.Default()
	router.Use(middleware.CORSMiddleware())

	public := router.Group("/api/v1")
	{
		public.POST("/register", handler.Register(db))
		public.POST("/login", handler.Login(db, cfg.JWTSecret))

		// The server list is open to anonymous clients; the by_user and
		// by_serverid filters reject them per request.
		public.GET("/servers",
			middleware.OptionalAuthMiddleware(db, cfg.JWTSecret),
			handler.ListServers(db))
	}

	auth := router.Group("/api/v1")
	auth.Use(middleware.AuthMiddleware(db, cfg.JWTSecret))
	{
		// Server Management
		auth.POST("/servers", handler.CreateServer(db, hub))
		auth.GET("/servers/:id", handler.GetServer(db))
		auth.PUT("/servers/:id", handler.UpdateServer(db, hub))
		auth.DELETE("/servers/:id", handler.DeleteServer(db, hub))
		auth.POST("/servers/:id/icon", handler.UploadServerIcon(db, hub, cfg.UploadDir))

		// Membership
		auth.POST("/servers/:id/members", handler.JoinServer(db, hub))
		auth.DELETE("/servers/:id/members", handler.LeaveServer(db, hub))

		// Channels
		auth.POST("/servers/:id/channels", handler.CreateChannel(db))

		// Categories
		auth.GET("/categories", handler.ListCategories(db))
		auth.POST("/categories", middleware.RoleCheck("admin"), handler.CreateCategory(db))
		auth.DELETE("/categories/:id", middleware.RoleCheck("admin"), handler.DeleteCategory(db))

		// Self-service routes
		auth.PUT("/users/change-password", handler.ChangePassword(db))
	}

	// WebSocket routes
	ws := router.Group("/ws")
	ws.Use(middleware.AuthMiddleware(db, cfg.JWTSecret))
	{
		ws.GET("/events", func(c *gin.Context) {
			websocket.EventsHandler(c, hub)
		})
	}

	// Uploaded icons
	router.Static("/uploads", cfg.UploadDir)

	return router
}

func main() {
	cfg := loadConfig()
	db := initDB(cfg.DBPath)

	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		log.Fatalf("failed to create upload directory: %v", err)
	}

	hub := websocket.NewHub()
	router := setupRouter(db, cfg, hub)

	log.Printf("Server listening on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
