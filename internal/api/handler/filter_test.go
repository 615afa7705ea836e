package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeList(t *testing.T, body []byte) []map[string]any {
	t.Helper()

	var records []map[string]any
	require.NoError(t, json.Unmarshal(body, &records))
	return records
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()

	var resp map[string]string
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp["error"]
}

func TestListServersNoFilters(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	owner := createUser(t, db, "owner", "user")
	gaming := createCategory(t, db, "Gaming")
	createServer(t, db, "alpha", owner, gaming)
	createServer(t, db, "beta", owner, gaming)

	w := doGet(r, "/api/v1/servers", "")
	require.Equal(t, http.StatusOK, w.Code)

	records := decodeList(t, w.Body.Bytes())
	require.Len(t, records, 2)
	assert.Equal(t, "alpha", records[0]["name"])
	assert.Equal(t, "Gaming", records[0]["category"])
}

func TestListServersCategoryFilter(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	owner := createUser(t, db, "owner", "user")
	gaming := createCategory(t, db, "Gaming")
	tech := createCategory(t, db, "Tech")
	createServer(t, db, "alpha", owner, gaming)
	createServer(t, db, "beta", owner, tech)

	w := doGet(r, "/api/v1/servers?category=Tech", "")
	require.Equal(t, http.StatusOK, w.Code)

	records := decodeList(t, w.Body.Bytes())
	require.Len(t, records, 1)
	assert.Equal(t, "beta", records[0]["name"])
}

func TestListServersCategoryIsCaseSensitive(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	owner := createUser(t, db, "owner", "user")
	gaming := createCategory(t, db, "Gaming")
	createServer(t, db, "alpha", owner, gaming)

	w := doGet(r, "/api/v1/servers?category=gaming", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeList(t, w.Body.Bytes()))
}

func TestListServersUnknownCategoryIsEmptyNotError(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	owner := createUser(t, db, "owner", "user")
	gaming := createCategory(t, db, "Gaming")
	createServer(t, db, "alpha", owner, gaming)

	w := doGet(r, "/api/v1/servers?category=DoesNotExist", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeList(t, w.Body.Bytes()))
}

func TestListServersByUserRequiresAuth(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	w := doGet(r, "/api/v1/servers?by_user=true", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Other parameters don't change the outcome.
	w = doGet(r, "/api/v1/servers?by_user=true&category=Gaming&qty=3", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListServersByUser(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	owner := createUser(t, db, "owner", "user")
	member := createUser(t, db, "member", "user")
	gaming := createCategory(t, db, "Gaming")
	mine := createServer(t, db, "mine", owner, gaming, member)
	createServer(t, db, "other", owner, gaming)

	w := doGet(r, "/api/v1/servers?by_user=true", tokenFor(t, member))
	require.Equal(t, http.StatusOK, w.Code)

	records := decodeList(t, w.Body.Bytes())
	require.Len(t, records, 1)
	assert.EqualValues(t, mine.ID, records[0]["id"])
}

func TestListServersFlagAcceptsOnlyLiteralTrue(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	owner := createUser(t, db, "owner", "user")
	gaming := createCategory(t, db, "Gaming")
	createServer(t, db, "alpha", owner, gaming, owner)

	// "True" and "1" are not the flag; the request stays anonymous-safe.
	for _, value := range []string{"True", "1", "yes", "TRUE"} {
		w := doGet(r, "/api/v1/servers?by_user="+value, "")
		assert.Equal(t, http.StatusOK, w.Code, "by_user=%s", value)
	}

	w := doGet(r, "/api/v1/servers?with_num_members=True", "")
	require.Equal(t, http.StatusOK, w.Code)
	records := decodeList(t, w.Body.Bytes())
	require.Len(t, records, 1)
	_, present := records[0]["num_members"]
	assert.False(t, present)
}

func TestListServersWithNumMembers(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	owner := createUser(t, db, "owner", "user")
	m1 := createUser(t, db, "m1", "user")
	m2 := createUser(t, db, "m2", "user")
	gaming := createCategory(t, db, "Gaming")
	createServer(t, db, "crowded", owner, gaming, owner, m1, m2)
	createServer(t, db, "empty", owner, gaming)

	w := doGet(r, "/api/v1/servers?with_num_members=true", "")
	require.Equal(t, http.StatusOK, w.Code)

	records := decodeList(t, w.Body.Bytes())
	require.Len(t, records, 2)
	assert.EqualValues(t, 3, records[0]["num_members"])
	assert.EqualValues(t, 0, records[1]["num_members"])
}

func TestListServersNumMembersOmittedWithoutFlag(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	owner := createUser(t, db, "owner", "user")
	gaming := createCategory(t, db, "Gaming")
	createServer(t, db, "alpha", owner, gaming, owner)

	w := doGet(r, "/api/v1/servers", "")
	require.Equal(t, http.StatusOK, w.Code)

	records := decodeList(t, w.Body.Bytes())
	require.Len(t, records, 1)
	_, present := records[0]["num_members"]
	assert.False(t, present)
}

func TestListServersNumMembersCountsFullMembership(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	owner := createUser(t, db, "owner", "user")
	m1 := createUser(t, db, "m1", "user")
	m2 := createUser(t, db, "m2", "user")
	gaming := createCategory(t, db, "Gaming")
	createServer(t, db, "crowded", owner, gaming, owner, m1, m2)

	// The count reflects every member of the server, not only the
	// requester's own membership row matched by the by_user join.
	w := doGet(r, "/api/v1/servers?by_user=true&with_num_members=true", tokenFor(t, m1))
	require.Equal(t, http.StatusOK, w.Code)

	records := decodeList(t, w.Body.Bytes())
	require.Len(t, records, 1)
	assert.EqualValues(t, 3, records[0]["num_members"])
}

func TestListServersByServerIDRequiresAuth(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	w := doGet(r, "/api/v1/servers?by_serverid=1", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListServersByServerIDNonNumeric(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	user := createUser(t, db, "user", "user")

	w := doGet(r, "/api/v1/servers?by_serverid=abc", tokenFor(t, user))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Server value error", errorMessage(t, w.Body.Bytes()))
}

func TestListServersByServerIDNotFound(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	user := createUser(t, db, "user", "user")

	w := doGet(r, "/api/v1/servers?by_serverid=9999", tokenFor(t, user))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Server with id 9999 not found.", errorMessage(t, w.Body.Bytes()))
}

func TestListServersByServerIDFound(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	owner := createUser(t, db, "owner", "user")
	gaming := createCategory(t, db, "Gaming")
	server := createServer(t, db, "alpha", owner, gaming)
	createServer(t, db, "beta", owner, gaming)

	w := doGet(r, fmt.Sprintf("/api/v1/servers?by_serverid=%d", server.ID), tokenFor(t, owner))
	require.Equal(t, http.StatusOK, w.Code)

	records := decodeList(t, w.Body.Bytes())
	require.Len(t, records, 1)
	assert.EqualValues(t, server.ID, records[0]["id"])
}

func TestListServersByServerIDCompoundsWithEarlierFilters(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	owner := createUser(t, db, "owner", "user")
	gaming := createCategory(t, db, "Gaming")
	createCategory(t, db, "Tech")
	server := createServer(t, db, "alpha", owner, gaming)

	// The id exists, but the category filter has already excluded it, so the
	// existence check reports not found.
	path := fmt.Sprintf("/api/v1/servers?category=Tech&by_serverid=%d", server.ID)
	w := doGet(r, path, tokenFor(t, owner))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, fmt.Sprintf("Server with id %d not found.", server.ID), errorMessage(t, w.Body.Bytes()))
}

func TestListServersQty(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	owner := createUser(t, db, "owner", "user")
	gaming := createCategory(t, db, "Gaming")
	var ids []uint
	for i := 0; i < 5; i++ {
		server := createServer(t, db, fmt.Sprintf("server-%d", i), owner, gaming)
		ids = append(ids, server.ID)
	}

	w := doGet(r, "/api/v1/servers?qty=2", "")
	require.Equal(t, http.StatusOK, w.Code)

	records := decodeList(t, w.Body.Bytes())
	require.Len(t, records, 2)
	assert.EqualValues(t, ids[0], records[0]["id"])
	assert.EqualValues(t, ids[1], records[1]["id"])
}

func TestListServersQtyNonNumeric(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	w := doGet(r, "/api/v1/servers?qty=lots", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "qty value error", errorMessage(t, w.Body.Bytes()))
}

func TestListServersCombinedFilters(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db, t.TempDir())

	owner := createUser(t, db, "owner", "user")
	member := createUser(t, db, "member", "user")
	gaming := createCategory(t, db, "Gaming")
	tech := createCategory(t, db, "Tech")
	createServer(t, db, "g-mine", owner, gaming, member)
	createServer(t, db, "g-other", owner, gaming)
	createServer(t, db, "t-mine", owner, tech, member)

	w := doGet(r, "/api/v1/servers?category=Gaming&by_user=true&with_num_members=true&qty=5", tokenFor(t, member))
	require.Equal(t, http.StatusOK, w.Code)

	records := decodeList(t, w.Body.Bytes())
	require.Len(t, records, 1)
	assert.Equal(t, "g-mine", records[0]["name"])
	assert.EqualValues(t, 1, records[0]["num_members"])
}
