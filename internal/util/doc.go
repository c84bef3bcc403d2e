// Package util provides validation helpers shared by configuration loading
// and request handling.
//
//	err := util.ValidateURL("https://admin.example.com")
//	err = util.ValidateListenAddr(":8080")
//	err = util.ValidateTenantID("acme-prod")
package util
