package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"chathub/internal/api/middleware"
	ws "chathub/internal/api/websocket"
	"chathub/internal/icon"
	"chathub/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// iconMaxSize caps icon uploads well above the 70x70 pixel bound; anything
// larger is not a plausible icon.
const iconMaxSize = 8 << 20 // 8MB

// CreateServer handles creating a new server entry. The creator becomes the
// owner and the first member.
func CreateServer(db *gorm.DB, hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Name        string `json:"name" binding:"required"`
			Description string `json:"description"`
			CategoryID  uint   `json:"category_id" binding:"required"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		userID, ok := middleware.CurrentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			return
		}

		var category model.Category
		if err := db.First(&category, input.CategoryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "category not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check category"})
			return
		}

		server := model.Server{
			Name:        input.Name,
			Description: input.Description,
			OwnerID:     userID,
			CategoryID:  input.CategoryID,
		}

		// Use a transaction to ensure atomicity
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&server).Error; err != nil {
				return err
			}
			return tx.Model(&server).Association("Members").Append(&model.User{ID: userID})
		})

		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create server"})
			return
		}

		hub.Broadcast(ws.Event{Type: ws.EventServerCreated, ServerID: server.ID, UserID: userID})
		c.JSON(http.StatusCreated, server)
	}
}

// GetServer handles fetching a single server by ID with its category and
// channels.
func GetServer(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, err := parseServerID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid server ID"})
			return
		}

		var server model.Server
		if err := db.Preload("Category").Preload("Channels").First(&server, serverID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch server"})
			return
		}

		c.JSON(http.StatusOK, server)
	}
}

// UpdateServer handles updating an existing server entry. Owner only.
func UpdateServer(db *gorm.DB, hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, ok := ownedServer(c, db)
		if !ok {
			return
		}

		var input struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			CategoryID  uint   `json:"category_id"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Update fields if provided
		if input.Name != "" {
			server.Name = input.Name
		}
		if input.Description != "" {
			server.Description = input.Description
		}
		if input.CategoryID != 0 {
			var category model.Category
			if err := db.First(&category, input.CategoryID).Error; err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "category not found"})
				return
			}
			server.CategoryID = input.CategoryID
		}

		if err := db.Save(&server).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update server"})
			return
		}

		hub.Broadcast(ws.Event{Type: ws.EventServerUpdated, ServerID: server.ID})
		c.JSON(http.StatusOK, server)
	}
}

// DeleteServer handles deleting a server entry along with its memberships
// and channels. Owner only.
func DeleteServer(db *gorm.DB, hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, ok := ownedServer(c, db)
		if !ok {
			return
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&server).Association("Members").Clear(); err != nil {
				return err
			}
			if err := tx.Where("server_id = ?", server.ID).Delete(&model.Channel{}).Error; err != nil {
				return err
			}
			return tx.Delete(&server).Error
		})

		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete server"})
			return
		}

		hub.Broadcast(ws.Event{Type: ws.EventServerDeleted, ServerID: server.ID})
		c.JSON(http.StatusOK, gin.H{"message": "server deleted successfully"})
	}
}

// UploadServerIcon validates and stores a new icon for the server. Owner
// only. The upload is rejected before anything is written to disk when the
// file extension is unrecognized or the image exceeds 70x70 pixels.
func UploadServerIcon(db *gorm.DB, hub *ws.Hub, uploadDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, ok := ownedServer(c, db)
		if !ok {
			return
		}

		fileHeader, err := c.FormFile("icon")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "icon file required"})
			return
		}
		if fileHeader.Size > iconMaxSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "icon file too large"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read icon"})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read icon"})
			return
		}

		if err := icon.Validate(fileHeader.Filename, data); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Random prefix avoids collisions and path tricks in the original
		// filename.
		prefix := make([]byte, 8)
		if _, err := rand.Read(prefix); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store icon"})
			return
		}
		diskName := hex.EncodeToString(prefix) + "_" + filepath.Base(fileHeader.Filename)

		if err := os.WriteFile(filepath.Join(uploadDir, diskName), data, 0644); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store icon"})
			return
		}

		// Drop the previous icon file so orphans don't pile up.
		if server.Icon != "" {
			os.Remove(filepath.Join(uploadDir, filepath.Base(server.Icon)))
		}

		server.Icon = "/uploads/" + diskName
		if err := db.Save(&server).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update server"})
			return
		}

		hub.Broadcast(ws.Event{Type: ws.EventServerUpdated, ServerID: server.ID})
		c.JSON(http.StatusOK, server)
	}
}

// JoinServer adds the authenticated user to the server's members.
func JoinServer(db *gorm.DB, hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, err := parseServerID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid server ID"})
			return
		}
		userID, _ := middleware.CurrentUserID(c)

		var server model.Server
		if err := db.First(&server, serverID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch server"})
			return
		}

		if err := db.Model(&server).Association("Members").Append(&model.User{ID: userID}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join server"})
			return
		}

		hub.Broadcast(ws.Event{Type: ws.EventMemberJoined, ServerID: server.ID, UserID: userID})
		c.JSON(http.StatusOK, gin.H{"message": "joined server"})
	}
}

// LeaveServer removes the authenticated user from the server's members.
func LeaveServer(db *gorm.DB, hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, err := parseServerID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid server ID"})
			return
		}
		userID, _ := middleware.CurrentUserID(c)

		member, err := isMember(db, uint(serverID), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check membership"})
			return
		}
		if !member {
			c.JSON(http.StatusBadRequest, gin.H{"error": "not a member of this server"})
			return
		}

		server := model.Server{ID: uint(serverID)}
		if err := db.Model(&server).Association("Members").Delete(&model.User{ID: userID}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to leave server"})
			return
		}

		hub.Broadcast(ws.Event{Type: ws.EventMemberLeft, ServerID: server.ID, UserID: userID})
		c.JSON(http.StatusOK, gin.H{"message": "left server"})
	}
}

// CreateChannel adds a channel to a server. Members only.
func CreateChannel(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, err := parseServerID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid server ID"})
			return
		}
		userID, _ := middleware.CurrentUserID(c)

		member, err := isMember(db, uint(serverID), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check membership"})
			return
		}
		if !member {
			c.JSON(http.StatusForbidden, gin.H{"error": "must be a member to create channels"})
			return
		}

		var input struct {
			Name  string `json:"name" binding:"required"`
			Topic string `json:"topic"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		channel := model.Channel{
			ServerID: uint(serverID),
			OwnerID:  userID,
			Name:     input.Name,
			Topic:    input.Topic,
		}
		if err := db.Create(&channel).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create channel"})
			return
		}

		c.JSON(http.StatusCreated, channel)
	}
}

func parseServerID(c *gin.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 32)
}

func isMember(db *gorm.DB, serverID, userID uint) (bool, error) {
	var count int64
	err := db.Table("server_members").
		Where("server_id = ? AND user_id = ?", serverID, userID).
		Count(&count).Error
	return count > 0, err
}

// ownedServer loads the server from the :id param and checks that the
// requester owns it. Writes the error response itself when the check fails.
func ownedServer(c *gin.Context, db *gorm.DB) (model.Server, bool) {
	var server model.Server

	serverID, err := parseServerID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid server ID"})
		return server, false
	}

	if err := db.First(&server, serverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
			return server, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch server"})
		return server, false
	}

	userID, _ := middleware.CurrentUserID(c)
	if server.OwnerID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the server owner can do this"})
		return server, false
	}

	return server, true
}
