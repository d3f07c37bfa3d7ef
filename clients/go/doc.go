// Package lmsgo provides a Go client library for the Sci-Bono LMS REST API.
//
// The client handles login, token refresh and logout, and exposes the user
// resources of the API. Every authenticated call goes through one dispatch
// routine: when the server answers 401 while an access token was attached,
// the client refreshes the token once and resends the same request once.
//
// # Basic Usage
//
//	client := lmsgo.NewClient("http://localhost:8081/api/v1")
//
//	// Login with an email or username
//	if _, err := client.Login(ctx, "admin@sci-bono.co.za", "admin123"); err != nil {
//		log.Fatal(err)
//	}
//	defer client.Logout(ctx)
//
//	users, err := client.GetUsers(ctx, &lmsgo.UserFilter{Limit: 10, UserType: "student"})
//
// # Configuration Options
//
// The client can be configured with various options:
//
//	client := lmsgo.NewClient("http://localhost:8081/api/v1",
//		lmsgo.WithTimeout(10*time.Second),
//		lmsgo.WithLogger(logger),
//		lmsgo.WithSessionStore(lmsgo.NewFileSessionStore(lmsgo.DefaultSessionPath())),
//	)
//
// The HTTP exchange itself is delegated to a Transport. The default one is
// backed by resty; tests can plug in MockTransport.
//
// # Error Handling
//
// All failures are *Error values tagged with an ErrorType:
//
//	if _, err := client.GetUser(ctx, 42); err != nil {
//		switch {
//		case lmsgo.StatusCode(err) == http.StatusForbidden:
//			log.Println("Permission denied")
//		case lmsgo.IsAuthFailedError(err):
//			log.Println("Session expired, login again")
//		case lmsgo.IsNetworkError(err):
//			log.Println("Network connectivity issue")
//		}
//	}
//
// # Thread Safety
//
// The client can be used concurrently from multiple goroutines. The session
// is protected by internal synchronization and concurrent refreshes are
// collapsed into a single request.
package lmsgo
