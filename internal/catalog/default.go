package catalog

import (
	"net/http"
	"time"
)

func read(name, category, method, path string, ttl time.Duration) Entry {
	return Entry{Name: name, Category: category, Cacheable: true, TTL: ttl, Handler: API(method, path)}
}

func write(name, category, method, path string) Entry {
	return Entry{Name: name, Category: category, Handler: API(method, path)}
}

// DefaultEntries returns the standard operation table.
func DefaultEntries() []Entry {
	return []Entry{
		// user directory
		read("listUsers", CategoryAuth, http.MethodGet, "/users", 0),
		read("getUser", CategoryAuth, http.MethodGet, "/users/{uid}", 0),
		read("getUserByEmail", CategoryAuth, http.MethodGet, "/users:byEmail", 0),
		read("getUserByPhoneNumber", CategoryAuth, http.MethodGet, "/users:byPhoneNumber", 0),
		write("createUser", CategoryAuth, http.MethodPost, "/users"),
		write("updateUser", CategoryAuth, http.MethodPatch, "/users/{uid}"),
		write("deleteUser", CategoryAuth, http.MethodDelete, "/users/{uid}"),
		write("deleteUsers", CategoryAuth, http.MethodPost, "/users:batchDelete"),
		write("importUsers", CategoryAuth, http.MethodPost, "/users:import"),
		write("disableUser", CategoryAuth, http.MethodPost, "/users/{uid}:disable"),
		write("enableUser", CategoryAuth, http.MethodPost, "/users/{uid}:enable"),
		write("setCustomUserClaims", CategoryAuth, http.MethodPut, "/users/{uid}/claims"),
		write("revokeRefreshTokens", CategoryAuth, http.MethodPost, "/users/{uid}:revokeTokens"),
		write("createCustomToken", CategoryAuth, http.MethodPost, "/tokens"),
		write("verifyIdToken", CategoryAuth, http.MethodPost, "/tokens:verify"),
		write("generatePasswordResetLink", CategoryAuth, http.MethodPost, "/links:passwordReset"),

		// document store
		read("listCollections", CategoryData, http.MethodGet, "/collections", 0),
		read("listDocuments", CategoryData, http.MethodGet, "/collections/{collection}/documents", 0),
		read("getDocument", CategoryData, http.MethodGet, "/collections/{collection}/documents/{documentId}", 0),
		read("queryDocuments", CategoryData, http.MethodPost, "/collections/{collection}:query", time.Minute),
		read("countDocuments", CategoryData, http.MethodPost, "/collections/{collection}:count", time.Minute),
		write("createDocument", CategoryData, http.MethodPost, "/collections/{collection}/documents"),
		write("setDocument", CategoryData, http.MethodPut, "/collections/{collection}/documents/{documentId}"),
		write("updateDocument", CategoryData, http.MethodPatch, "/collections/{collection}/documents/{documentId}"),
		write("deleteDocument", CategoryData, http.MethodDelete, "/collections/{collection}/documents/{documentId}"),
		write("batchWrite", CategoryData, http.MethodPost, "/documents:batchWrite"),

		// blob storage
		{Name: "listFiles", Category: CategoryStorage, Cacheable: true, TTL: time.Minute, Handler: storageHandler(listFiles)},
		{Name: "getFileMetadata", Category: CategoryStorage, Cacheable: true, TTL: time.Minute, Handler: storageHandler(getFileMetadata)},
		{Name: "downloadFile", Category: CategoryStorage, Handler: storageHandler(downloadFile)},
		{Name: "uploadFile", Category: CategoryStorage, Handler: storageHandler(uploadFile)},
		{Name: "deleteFile", Category: CategoryStorage, Handler: storageHandler(deleteFile)},
		{Name: "copyFile", Category: CategoryStorage, Handler: storageHandler(copyFile)},
		{Name: "moveFile", Category: CategoryStorage, Handler: storageHandler(moveFile)},

		// static hosting
		read("listSites", CategoryHosting, http.MethodGet, "/sites", 0),
		read("getSite", CategoryHosting, http.MethodGet, "/sites/{siteId}", 0),
		read("listReleases", CategoryHosting, http.MethodGet, "/sites/{siteId}/releases", time.Minute),
		read("listChannels", CategoryHosting, http.MethodGet, "/sites/{siteId}/channels", time.Minute),
		write("createSite", CategoryHosting, http.MethodPost, "/sites"),
		write("deleteSite", CategoryHosting, http.MethodDelete, "/sites/{siteId}"),
		write("createRelease", CategoryHosting, http.MethodPost, "/sites/{siteId}/releases"),
		write("rollbackRelease", CategoryHosting, http.MethodPost, "/sites/{siteId}/releases/{releaseId}:rollback"),
		write("deployChannel", CategoryHosting, http.MethodPost, "/sites/{siteId}/channels/{channelId}:deploy"),
	}
}

// Default returns the catalog of the standard operations.
func Default() (*Catalog, error) {
	return New(DefaultEntries()...)
}

// MustDefault returns the standard catalog and panics on error.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}
