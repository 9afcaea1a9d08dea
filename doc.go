// Package authcore is the authentication and authorization engine behind
// the MaintainPro CMMS. It owns password hashing and policy, JWT token
// pairs, MFA, session lifecycle, role-based access control, brute-force
// defense, and security audit logging.
//
// Construct an [Engine] through the [Builder], provide a [UserProvider]
// backed by your user database, and call [Engine.Login] /
// [Engine.ValidateAccess] from your transport layer. All engine methods are
// safe for concurrent use.
package authcore
