package classify

type tableKey struct {
	category Category
	typ      Type
}

// codeTable maps lowercased structured codes to the taxonomy. It covers the
// platform's own codes ("auth/...", "storage/...", bare status names) and the
// object store's API error codes.
var codeTable = map[string]tableKey{
	// user directory
	"auth/email-already-exists":        {CategoryAuth, TypeDuplicate},
	"auth/uid-already-exists":          {CategoryAuth, TypeDuplicate},
	"auth/phone-number-already-exists": {CategoryAuth, TypeDuplicate},
	"auth/invalid-email":               {CategoryAuth, TypeInvalidInput},
	"auth/invalid-password":            {CategoryAuth, TypeInvalidInput},
	"auth/invalid-uid":                 {CategoryAuth, TypeInvalidInput},
	"auth/invalid-argument":            {CategoryAuth, TypeInvalidInput},
	"auth/invalid-phone-number":        {CategoryAuth, TypeInvalidInput},
	"auth/invalid-claims":              {CategoryAuth, TypeInvalidInput},
	"auth/invalid-credential":          {CategoryAuth, TypeAuthentication},
	"auth/unauthenticated":             {CategoryAuth, TypeAuthentication},
	"auth/id-token-expired":            {CategoryAuth, TypeAuthentication},
	"auth/id-token-revoked":            {CategoryAuth, TypeAuthentication},
	"auth/invalid-id-token":            {CategoryAuth, TypeAuthentication},
	"auth/too-many-requests":           {CategoryAuth, TypeRateLimited},
	"auth/session-cookie-expired":      {CategoryAuth, TypeSession},
	"auth/session-cookie-revoked":      {CategoryAuth, TypeSession},
	"auth/invalid-session-cookie":      {CategoryAuth, TypeSession},
	"auth/insufficient-permission":     {CategoryPermission, TypeAccessDenied},
	"auth/user-not-found":              {CategoryNotFound, TypeResourceMissing},

	// generic platform status names
	"unauthenticated":     {CategoryAuth, TypeAuthentication},
	"invalid-argument":    {CategoryAuth, TypeInvalidInput},
	"permission-denied":   {CategoryPermission, TypeAccessDenied},
	"not-found":           {CategoryNotFound, TypeResourceMissing},
	"already-exists":      {CategoryConflict, TypeDuplicate},
	"aborted":             {CategoryConflict, TypeDuplicate},
	"resource-exhausted":  {CategoryQuota, TypeExceeded},
	"deadline-exceeded":   {CategoryNetwork, TypeTimeout},
	"unavailable":         {CategoryNetwork, TypeServiceUnavailable},
	"internal":            {CategoryNetwork, TypeServiceUnavailable},
	"failed-precondition": {CategoryConflict, TypeDuplicate},

	// blob storage
	"storage/unauthenticated":      {CategoryAuth, TypeAuthentication},
	"storage/unauthorized":         {CategoryPermission, TypeAccessDenied},
	"storage/object-not-found":     {CategoryNotFound, TypeResourceMissing},
	"storage/bucket-not-found":     {CategoryNotFound, TypeResourceMissing},
	"storage/quota-exceeded":       {CategoryQuota, TypeExceeded},
	"storage/retry-limit-exceeded": {CategoryNetwork, TypeTimeout},

	// hosting
	"hosting/site-not-found": {CategoryNotFound, TypeResourceMissing},
	"hosting/site-exists":    {CategoryConflict, TypeDuplicate},
	"hosting/quota-exceeded": {CategoryQuota, TypeExceeded},
	"hosting/invalid-config": {CategoryAuth, TypeInvalidInput},

	// object store API codes
	"nosuchkey":               {CategoryNotFound, TypeResourceMissing},
	"nosuchbucket":            {CategoryNotFound, TypeResourceMissing},
	"notfound":                {CategoryNotFound, TypeResourceMissing},
	"accessdenied":            {CategoryPermission, TypeAccessDenied},
	"allaccessdisabled":       {CategoryPermission, TypeAccessDenied},
	"invalidaccesskeyid":      {CategoryAuth, TypeAuthentication},
	"signaturedoesnotmatch":   {CategoryAuth, TypeAuthentication},
	"expiredtoken":            {CategoryAuth, TypeSession},
	"invalidargument":         {CategoryAuth, TypeInvalidInput},
	"invalidbucketname":       {CategoryAuth, TypeInvalidInput},
	"bucketalreadyexists":     {CategoryConflict, TypeDuplicate},
	"bucketalreadyownedbyyou": {CategoryConflict, TypeDuplicate},
	"slowdown":                {CategoryQuota, TypeExceeded},
	"requesttimeout":          {CategoryNetwork, TypeTimeout},
	"serviceunavailable":      {CategoryNetwork, TypeServiceUnavailable},
	"internalerror":           {CategoryNetwork, TypeServiceUnavailable},
}

func suggestion(category Category, typ Type) string {
	switch typ {
	case TypeDuplicate:
		if category == CategoryAuth {
			return "An account with this identifier already exists; look it up instead of creating it."
		}
		return "The resource already exists or was modified concurrently; re-read it and retry the change."
	case TypeInvalidInput:
		return "Check the operation arguments against the operation's expected format."
	case TypeAuthentication:
		return "Refresh or replace the tenant credentials; the backend rejected them."
	case TypeRateLimited:
		return "The backend is throttling this account; wait before retrying."
	case TypeSession:
		return "The session expired or was revoked; sign in again to obtain a new one."
	case TypeAccessDenied:
		return "Grant the tenant service account the role required by this operation."
	case TypeResourceMissing:
		return "Verify the resource identifier and that it exists in this tenant."
	case TypeExceeded:
		return "A quota or rate limit was exceeded; reduce request volume or raise the limit."
	case TypeTimeout:
		return "The backend did not answer in time; retry later or raise the timeout."
	case TypeServiceUnavailable:
		return "The backend is temporarily unavailable; retry later."
	case TypeConnection:
		return "The connection to the backend failed; check network reachability."
	default:
		return "Unexpected failure; inspect the error message and backend logs."
	}
}
