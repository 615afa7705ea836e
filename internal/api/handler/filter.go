package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"chathub/internal/api/middleware"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// errAuthenticationRequired gates the by_user and by_serverid filters.
var errAuthenticationRequired = errors.New("authentication credentials were not provided")

// invalidInput is a request validation failure whose message is surfaced to
// the client as-is.
type invalidInput string

func (e invalidInput) Error() string { return string(e) }

const (
	// serverColumns is the base projection of the list query. The category
	// name comes from a LEFT JOIN so servers without a category still list.
	serverColumns = "servers.id, servers.name, categories.name AS category"

	// numMembersColumn counts each server's rows in the membership join
	// table. A correlated subquery keeps the count independent of the
	// by_user join on the outer query.
	numMembersColumn = "(SELECT COUNT(*) FROM server_members WHERE server_members.server_id = servers.id) AS num_members"
)

// serverListParams holds the raw query parameters of the server list
// endpoint. The by_user and with_num_members flags are true only for the
// literal string "true"; any other spelling ("True", "1") counts as false.
type serverListParams struct {
	category       string
	qty            string
	byUser         bool
	byServerID     string
	withNumMembers bool
}

func newServerListParams(c *gin.Context) serverListParams {
	return serverListParams{
		category:       c.Query("category"),
		qty:            c.Query("qty"),
		byUser:         c.Query("by_user") == "true",
		byServerID:     c.Query("by_serverid"),
		withNumMembers: c.Query("with_num_members") == "true",
	}
}

// serverRow is the scan target of the list query. NumMembers stays zero when
// the annotation column is not selected.
type serverRow struct {
	ID         uint
	Name       string
	Category   *string
	NumMembers int64
}

// serverRecord is one element of the list response. NumMembers is attached
// if and only if with_num_members=true was supplied; the flag decides
// serialization, not the presence of a value on the row.
type serverRecord struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	NumMembers *int64 `json:"num_members,omitempty"`
}

// ListServers handles GET /servers: a base query over all servers, narrowed
// and annotated by up to five optional query parameters applied in a fixed
// order. Each step takes the query built so far and returns a new one; the
// first failing step aborts the request.
func ListServers(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		params := newServerListParams(c)
		userID, authenticated := middleware.CurrentUserID(c)

		q := db.Table("servers").
			Select(serverColumns).
			Joins("LEFT JOIN categories ON categories.id = servers.category_id").
			Order("servers.id")

		q = params.filterByCategory(q)

		q, err := params.filterByUser(q, userID, authenticated)
		if err != nil {
			abortListError(c, err)
			return
		}

		q = params.annotateNumMembers(q)

		q, err = params.filterByServerID(q, authenticated)
		if err != nil {
			abortListError(c, err)
			return
		}

		q, err = params.truncate(q)
		if err != nil {
			abortListError(c, err)
			return
		}

		var rows []serverRow
		if err := q.Scan(&rows).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch servers"})
			return
		}

		c.JSON(http.StatusOK, serializeServers(rows, params.withNumMembers))
	}
}

// filterByCategory restricts the query to servers whose category name equals
// the given value exactly. No match is not an error, the result just comes
// back empty.
func (p serverListParams) filterByCategory(q *gorm.DB) *gorm.DB {
	if p.category == "" {
		return q
	}
	return q.Where("categories.name = ?", p.category)
}

// filterByUser restricts the query to servers the requester is a member of.
// Anonymous requests are rejected.
func (p serverListParams) filterByUser(q *gorm.DB, userID uint, authenticated bool) (*gorm.DB, error) {
	if !p.byUser {
		return q, nil
	}
	if !authenticated {
		return nil, errAuthenticationRequired
	}
	return q.Joins("JOIN server_members ON server_members.server_id = servers.id").
		Where("server_members.user_id = ?", userID), nil
}

// annotateNumMembers adds the member-count column to the projection.
func (p serverListParams) annotateNumMembers(q *gorm.DB) *gorm.DB {
	if !p.withNumMembers {
		return q
	}
	return q.Select(serverColumns + ", " + numMembersColumn)
}

// filterByServerID narrows the query to a single server id. Anonymous
// requests are rejected, unparseable ids fail with "Server value error", and
// the existence check runs against the queryset already narrowed by the
// category and by_user steps: an id excluded by an earlier filter reports
// not found even though the server exists. That compounding is kept from the
// original behavior on purpose.
func (p serverListParams) filterByServerID(q *gorm.DB, authenticated bool) (*gorm.DB, error) {
	if p.byServerID == "" {
		return q, nil
	}
	if !authenticated {
		return nil, errAuthenticationRequired
	}
	if _, err := strconv.ParseUint(p.byServerID, 10, 64); err != nil {
		return nil, invalidInput("Server value error")
	}

	q = q.Where("servers.id = ?", p.byServerID)

	var count int64
	if err := q.Session(&gorm.Session{}).Select("servers.id").Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, invalidInput(fmt.Sprintf("Server with id %s not found.", p.byServerID))
	}
	return q, nil
}

// truncate limits the result to the first qty records in query order.
func (p serverListParams) truncate(q *gorm.DB) (*gorm.DB, error) {
	if p.qty == "" {
		return q, nil
	}
	n, err := strconv.Atoi(p.qty)
	if err != nil {
		return nil, invalidInput("qty value error")
	}
	return q.Limit(n), nil
}

func serializeServers(rows []serverRow, withNumMembers bool) []serverRecord {
	records := make([]serverRecord, 0, len(rows))
	for _, row := range rows {
		record := serverRecord{ID: row.ID, Name: row.Name}
		if row.Category != nil {
			record.Category = *row.Category
		}
		if withNumMembers {
			n := row.NumMembers
			record.NumMembers = &n
		}
		records = append(records, record)
	}
	return records
}

func abortListError(c *gin.Context, err error) {
	var badInput invalidInput
	switch {
	case errors.Is(err, errAuthenticationRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.As(err, &badInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": badInput.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build server query"})
	}
}
